package models

import (
	"strings"
	"time"

	"github.com/miradorstack/mirador-prep/internal/utils"
)

// Interval is the canonical sampling granularity of a time series.
type Interval string

const (
	IntervalAuto    Interval = ""
	IntervalHourly  Interval = "hourly"
	IntervalDaily   Interval = "daily"
	IntervalWeekly  Interval = "weekly"
	IntervalMonthly Interval = "monthly"
	// IntervalUnsupported is reported when inference finds no supported granularity.
	IntervalUnsupported Interval = "unsupported"
)

// ParseInterval validates an explicit interval descriptor. The empty string
// selects auto-detection.
func ParseInterval(value string) (Interval, error) {
	switch Interval(strings.ToLower(strings.TrimSpace(value))) {
	case IntervalAuto:
		return IntervalAuto, nil
	case IntervalHourly:
		return IntervalHourly, nil
	case IntervalDaily:
		return IntervalDaily, nil
	case IntervalWeekly:
		return IntervalWeekly, nil
	case IntervalMonthly:
		return IntervalMonthly, nil
	}
	return IntervalAuto, utils.NewConfigError("parse interval",
		"data interval must be 'monthly', 'weekly', 'daily', or 'hourly', got %q", value)
}

// Nominal returns the fixed delta used for an explicit descriptor.
func (i Interval) Nominal() time.Duration {
	switch i {
	case IntervalMonthly:
		return 30 * 24 * time.Hour
	case IntervalWeekly:
		return 7 * 24 * time.Hour
	case IntervalDaily:
		return 24 * time.Hour
	case IntervalHourly:
		return time.Hour
	}
	return 0
}

// SeasonalPeriods lists the candidate periods, in samples, for the interval.
func (i Interval) SeasonalPeriods() []int {
	switch i {
	case IntervalMonthly:
		return []int{12}
	case IntervalWeekly:
		return []int{4, 52}
	case IntervalDaily:
		return []int{7, 30, 365}
	case IntervalHourly:
		return []int{24, 24 * 7, 24 * 30, 24 * 365}
	}
	return nil
}

// Anchor pins the resampling grid inside an interval.
type Anchor string

const (
	AnchorNone       Anchor = ""
	AnchorMonthStart Anchor = "month-start"
	AnchorMonthEnd   Anchor = "month-end"
)

// WeekdayAnchor returns the anchor for weekly data ending on day.
func WeekdayAnchor(day time.Weekday) Anchor {
	return Anchor("W-" + strings.ToUpper(day.String()[:3]))
}
