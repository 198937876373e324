package aggregation

import (
	"errors"
	"fmt"
	"time"

	"github.com/soltixdb/insight/internal/models"
)

// ErrInvalidRule marks a malformed aggregation rule
var ErrInvalidRule = errors.New("invalid rule")

// RuleError describes which part of a rule is malformed
type RuleError struct {
	Field  string
	Reason string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("invalid rule: %s: %s", e.Field, e.Reason)
}

func (e *RuleError) Unwrap() error {
	return ErrInvalidRule
}

// Period presets
const (
	PeriodLastHour   = "last1h"
	PeriodLast24h    = "last24h"
	PeriodLast7Days  = "last7d"
	PeriodLast30Days = "last30d"
)

var periodDurations = map[string]time.Duration{
	PeriodLastHour:   time.Hour,
	PeriodLast24h:    24 * time.Hour,
	PeriodLast7Days:  7 * 24 * time.Hour,
	PeriodLast30Days: 30 * 24 * time.Hour,
}

// GroupByDate is the pseudo field that groups by calendar day
const GroupByDate = "date"

// UnknownGroup labels records missing a group-by field
const UnknownGroup = "unknown"

// Rule describes a single-type aggregation
type Rule struct {
	DataType    string                `json:"dataType"`
	GroupBy     []string              `json:"groupBy,omitempty"`
	AggregateBy map[string][]Function `json:"aggregateBy,omitempty"`
	Filter      models.Filter         `json:"filters"`
	Period      string                `json:"period,omitempty"`
	TimeWindow  *TimeWindow           `json:"timeWindow,omitempty"`
	Limit       int                   `json:"limit,omitempty"` // result groups, not records
}

// Validate checks the rule without touching the source
func (r Rule) Validate() error {
	if r.DataType == "" {
		return &RuleError{Field: "dataType", Reason: "must not be empty"}
	}
	if err := validateGroupBy("groupBy", r.GroupBy); err != nil {
		return err
	}
	if err := validateAggregateBy(r.AggregateBy); err != nil {
		return err
	}
	if err := validatePeriod(r.Period); err != nil {
		return err
	}
	if r.TimeWindow != nil {
		if err := r.TimeWindow.Validate(); err != nil {
			return err
		}
	}
	if r.Limit < 0 {
		return &RuleError{Field: "limit", Reason: "must not be negative"}
	}
	return nil
}

func validateGroupBy(name string, fields []string) error {
	for i, f := range fields {
		if f == "" {
			return &RuleError{Field: fmt.Sprintf("%s[%d]", name, i), Reason: "group key must not be empty"}
		}
	}
	return nil
}

func validateAggregateBy(aggs map[string][]Function) error {
	for field, fns := range aggs {
		if field == "" {
			return &RuleError{Field: "aggregateBy", Reason: "field name must not be empty"}
		}
		for _, fn := range fns {
			if !fn.Valid() {
				return &RuleError{Field: "aggregateBy." + field, Reason: fmt.Sprintf("unknown aggregate function %q", fn)}
			}
		}
	}
	return nil
}

func validatePeriod(period string) error {
	if period == "" {
		return nil
	}
	if _, ok := periodDurations[period]; !ok {
		return &RuleError{Field: "period", Reason: fmt.Sprintf("unknown period %q", period)}
	}
	return nil
}

// Window types
const (
	WindowSliding  = "sliding"
	WindowTumbling = "tumbling"
)

// TimeWindow restricts records to a window anchored at BaseTime
type TimeWindow struct {
	SizeMillis int64     `json:"windowSize"`
	Type       string    `json:"windowType,omitempty"` // sliding (default) or tumbling
	BaseTime   time.Time `json:"baseTime,omitempty"`   // defaults to now
}

// Size returns the window length
func (w TimeWindow) Size() time.Duration {
	return time.Duration(w.SizeMillis) * time.Millisecond
}

// Validate checks size and type
func (w TimeWindow) Validate() error {
	if w.SizeMillis <= 0 {
		return &RuleError{Field: "timeWindow.windowSize", Reason: "must be positive"}
	}
	switch w.Type {
	case "", WindowSliding, WindowTumbling:
		return nil
	default:
		return &RuleError{Field: "timeWindow.windowType", Reason: fmt.Sprintf("unknown window type %q", w.Type)}
	}
}

// Bounds returns the inclusive [start, end] of the window. A sliding window
// ends at the base time; a tumbling window is the epoch-aligned bucket
// containing it.
func (w TimeWindow) Bounds(now time.Time) (time.Time, time.Time) {
	base := w.BaseTime
	if base.IsZero() {
		base = now
	}
	size := w.Size()

	if w.Type == WindowTumbling {
		start := base.Truncate(size)
		return start, start.Add(size - time.Nanosecond)
	}
	return base.Add(-size), base
}

// resolveFilter applies the period preset and time window to a filter.
// Explicit dates win over a preset; a time window narrows whatever is set.
func resolveFilter(f models.Filter, period string, window *TimeWindow, now time.Time) models.Filter {
	if d, ok := periodDurations[period]; ok {
		if f.StartDate == nil {
			start := now.Add(-d)
			f.StartDate = &start
		}
		if f.EndDate == nil {
			end := now
			f.EndDate = &end
		}
	}

	if window != nil {
		start, end := window.Bounds(now)
		if f.StartDate == nil || start.After(*f.StartDate) {
			f.StartDate = &start
		}
		if f.EndDate == nil || end.Before(*f.EndDate) {
			f.EndDate = &end
		}
	}
	return f
}
