package models

import "time"

// TimeFrame is a uniformly sampled, gap-filled set of continuous features.
type TimeFrame struct {
	Index    []time.Time
	Names    []string
	Values   map[string][]float64
	Interval Interval
	Anchor   Anchor
}

// Len returns the number of samples.
func (f TimeFrame) Len() int {
	return len(f.Index)
}

// Column returns the values of name, or nil.
func (f TimeFrame) Column(name string) []float64 {
	return f.Values[name]
}
