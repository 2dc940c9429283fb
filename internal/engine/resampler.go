package engine

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/miradorstack/mirador-prep/internal/models"
	"github.com/miradorstack/mirador-prep/internal/utils"
)

const day = 24 * time.Hour

// Resampler snaps an irregular time-indexed frame onto a uniform grid.
type Resampler struct {
	logger *slog.Logger
}

// NewResampler constructs a Resampler.
func NewResampler(logger *slog.Logger) *Resampler {
	return &Resampler{logger: utils.OrDiscard(logger)}
}

// Resample averages the columns per timestamp, classifies the sampling
// interval (inferring it when interval is IntervalAuto), reindexes onto the
// canonical grid and fills gaps by linear interpolation. An interval that
// cannot be classified is reported as IntervalUnsupported; the frame then
// keeps its observed timestamps.
func (r *Resampler) Resample(index []time.Time, names []string, columns map[string][]float64, interval models.Interval) (models.TimeFrame, error) {
	for _, name := range names {
		if len(columns[name]) != len(index) {
			return models.TimeFrame{}, fmt.Errorf("resample: column %s has %d values for %d timestamps", name, len(columns[name]), len(index))
		}
	}

	times, values := aggregateMean(index, names, columns)

	delta := interval.Nominal()
	if interval == models.IntervalAuto {
		delta = minDelta(times)
	}
	class, anchor := classifyInterval(delta, times)
	frame := models.TimeFrame{Names: names, Interval: class, Anchor: anchor}

	if class == models.IntervalUnsupported {
		r.logger.Warn("data interval is not hourly, daily, weekly, or monthly; give the interval option explicitly",
			slog.Duration("min_delta", delta))
		frame.Index = times
		frame.Values = values
		interpolateAll(frame.Values)
		return frame, nil
	}
	r.logger.Info("data interval detected", slog.String("interval", string(class)), slog.String("anchor", string(anchor)))

	normalized := make([]time.Time, len(times))
	for i, t := range times {
		normalized[i] = normalizeTimestamp(t, class, anchor)
	}
	times, values = aggregateMean(normalized, names, values)

	frame.Index = canonicalGrid(times, class, anchor)
	frame.Values = reindex(times, values, frame.Index)
	interpolateAll(frame.Values)
	return frame, nil
}

// aggregateMean collapses duplicate timestamps to the NaN-skipping mean and
// sorts ascending.
func aggregateMean(index []time.Time, names []string, columns map[string][]float64) ([]time.Time, map[string][]float64) {
	type acc struct {
		sum   []float64
		count []int
	}
	groups := make(map[time.Time]*acc)
	order := make([]time.Time, 0, len(index))
	for row, t := range index {
		g, ok := groups[t]
		if !ok {
			g = &acc{sum: make([]float64, len(names)), count: make([]int, len(names))}
			groups[t] = g
			order = append(order, t)
		}
		for c, name := range names {
			v := columns[name][row]
			if math.IsNaN(v) {
				continue
			}
			g.sum[c] += v
			g.count[c]++
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })

	out := make(map[string][]float64, len(names))
	for c, name := range names {
		vals := make([]float64, len(order))
		for i, t := range order {
			g := groups[t]
			if g.count[c] == 0 {
				vals[i] = math.NaN()
			} else {
				vals[i] = g.sum[c] / float64(g.count[c])
			}
		}
		out[name] = vals
	}
	return order, out
}

func minDelta(times []time.Time) time.Duration {
	var best time.Duration
	for i := 1; i < len(times); i++ {
		d := times[i].Sub(times[i-1])
		if d > 0 && (best == 0 || d < best) {
			best = d
		}
	}
	return best
}

// classifyInterval maps a sampling delta onto a supported granularity. Whole
// days decide the daily-and-longer classes; hourly needs exactly one hour.
func classifyInterval(delta time.Duration, times []time.Time) (models.Interval, models.Anchor) {
	days := int(delta / day)
	switch {
	case days >= 28 && days <= 31:
		if modeDayOfMonth(times) >= 28 {
			return models.IntervalMonthly, models.AnchorMonthEnd
		}
		return models.IntervalMonthly, models.AnchorMonthStart
	case days == 7:
		return models.IntervalWeekly, models.WeekdayAnchor(modeWeekday(times))
	case days == 1:
		return models.IntervalDaily, models.AnchorNone
	case days == 0 && (delta%day).Truncate(time.Second) == time.Hour:
		return models.IntervalHourly, models.AnchorNone
	}
	return models.IntervalUnsupported, models.AnchorNone
}

// modeDayOfMonth returns the most frequent day of month, smallest on ties.
func modeDayOfMonth(times []time.Time) int {
	var counts [32]int
	for _, t := range times {
		counts[t.Day()]++
	}
	best := 0
	for d := 1; d <= 31; d++ {
		if counts[d] > counts[best] {
			best = d
		}
	}
	return best
}

// modeWeekday returns the most frequent weekday, Monday first on ties.
func modeWeekday(times []time.Time) time.Weekday {
	var counts [7]int
	for _, t := range times {
		counts[t.Weekday()]++
	}
	best := time.Monday
	for i := 1; i < 7; i++ {
		wd := time.Weekday((int(time.Monday) + i) % 7)
		if counts[wd] > counts[best] {
			best = wd
		}
	}
	return best
}

func normalizeTimestamp(t time.Time, class models.Interval, anchor models.Anchor) time.Time {
	switch class {
	case models.IntervalMonthly:
		y, m, _ := t.Date()
		if anchor == models.AnchorMonthEnd {
			return time.Date(y, m+1, 0, 0, 0, 0, 0, t.Location())
		}
		return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
	case models.IntervalWeekly, models.IntervalDaily:
		return utils.TruncateDay(t)
	}
	return t
}

func canonicalGrid(times []time.Time, class models.Interval, anchor models.Anchor) []time.Time {
	if len(times) == 0 {
		return nil
	}
	first, last := times[0], times[len(times)-1]
	var grid []time.Time
	switch class {
	case models.IntervalMonthly:
		y, m, _ := first.Date()
		for i := 0; ; i++ {
			var t time.Time
			if anchor == models.AnchorMonthEnd {
				t = time.Date(y, m+time.Month(i)+1, 0, 0, 0, 0, 0, first.Location())
			} else {
				t = time.Date(y, m+time.Month(i), 1, 0, 0, 0, 0, first.Location())
			}
			if t.After(last) {
				break
			}
			grid = append(grid, t)
		}
	case models.IntervalWeekly:
		target := anchorWeekday(anchor)
		start := first.AddDate(0, 0, (int(target)-int(first.Weekday())+7)%7)
		for t := start; !t.After(last); t = t.AddDate(0, 0, 7) {
			grid = append(grid, t)
		}
	case models.IntervalDaily:
		for t := first; !t.After(last); t = t.AddDate(0, 0, 1) {
			grid = append(grid, t)
		}
	case models.IntervalHourly:
		for t := first; !t.After(last); t = t.Add(time.Hour) {
			grid = append(grid, t)
		}
	}
	return grid
}

func anchorWeekday(anchor models.Anchor) time.Weekday {
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if models.WeekdayAnchor(wd) == anchor {
			return wd
		}
	}
	return time.Monday
}

// reindex places values onto grid; grid points without an observation are
// NaN and observations off the grid are dropped.
func reindex(times []time.Time, values map[string][]float64, grid []time.Time) map[string][]float64 {
	pos := make(map[time.Time]int, len(times))
	for i, t := range times {
		pos[t] = i
	}
	out := make(map[string][]float64, len(values))
	for name, vals := range values {
		col := make([]float64, len(grid))
		for i, t := range grid {
			if j, ok := pos[t]; ok {
				col[i] = vals[j]
			} else {
				col[i] = math.NaN()
			}
		}
		out[name] = col
	}
	return out
}

func interpolateAll(values map[string][]float64) {
	for _, vals := range values {
		interpolateLinear(vals)
	}
}

// interpolateLinear fills NaN gaps in place by position. Leading and trailing
// gaps take the nearest valid value; an all-NaN column is left untouched.
func interpolateLinear(vals []float64) {
	prev := -1
	for i, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		if prev == -1 {
			for j := 0; j < i; j++ {
				vals[j] = v
			}
		} else if i-prev > 1 {
			step := (v - vals[prev]) / float64(i-prev)
			for j := prev + 1; j < i; j++ {
				vals[j] = vals[prev] + step*float64(j-prev)
			}
		}
		prev = i
	}
	if prev == -1 {
		return
	}
	for j := prev + 1; j < len(vals); j++ {
		vals[j] = vals[prev]
	}
}
