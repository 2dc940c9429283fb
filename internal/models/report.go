package models

// Flag names a feature property detected by the characterizer.
type Flag string

const (
	FlagTrend            Flag = "has_trend"
	FlagSeasonality      Flag = "has_seasonality"
	FlagUpMonotonicity   Flag = "has_up_monotonicity"
	FlagDownMonotonicity Flag = "has_down_monotonicity"
	FlagLinearity        Flag = "has_linearity"
	FlagMissing          Flag = "has_missing"
)

// AllFlags lists every flag in report order.
var AllFlags = []Flag{
	FlagTrend,
	FlagSeasonality,
	FlagUpMonotonicity,
	FlagDownMonotonicity,
	FlagLinearity,
	FlagMissing,
}

// Report maps each flag to the features that exhibit it.
type Report struct {
	Flags    map[Flag][]string `json:"flags"`
	Targets  []string          `json:"targets"`
	Interval Interval          `json:"interval"`
	Anchor   Anchor            `json:"anchor,omitempty"`
}

// NewReport returns a report with every flag present and empty.
func NewReport() Report {
	flags := make(map[Flag][]string, len(AllFlags))
	for _, f := range AllFlags {
		flags[f] = []string{}
	}
	return Report{Flags: flags}
}

// Add appends feature under flag.
func (r *Report) Add(flag Flag, feature string) {
	if r.Flags == nil {
		*r = NewReport()
	}
	r.Flags[flag] = append(r.Flags[flag], feature)
}

// Has reports whether feature carries flag.
func (r Report) Has(flag Flag, feature string) bool {
	for _, f := range r.Flags[flag] {
		if f == feature {
			return true
		}
	}
	return false
}

// Any reports whether at least one feature carries flag.
func (r Report) Any(flag Flag) bool {
	return len(r.Flags[flag]) > 0
}
