// Package analytics provides the statistical primitives shared by the trend,
// anomaly and comparison engines.
package analytics

import (
	"math"
	"time"
)

// TimeSeriesPoint is one observation of a metric
type TimeSeriesPoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
	Label string    `json:"label,omitempty"` // e.g. the session id the value came from
}

// TimeSeriesData is a time-ordered series
type TimeSeriesData []TimeSeriesPoint

// Values extracts the values
func (ts TimeSeriesData) Values() []float64 {
	values := make([]float64, len(ts))
	for i, p := range ts {
		values[i] = p.Value
	}
	return values
}

// Times extracts the times
func (ts TimeSeriesData) Times() []time.Time {
	times := make([]time.Time, len(ts))
	for i, p := range ts {
		times[i] = p.Time
	}
	return times
}

// Len returns the number of points
func (ts TimeSeriesData) Len() int {
	return len(ts)
}

// Range is an expected value range
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v lies inside the range
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Index returns 0..n-1 as float64, the x axis of index-vs-value fits
func Index(n int) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = float64(i)
	}
	return x
}

// finite maps NaN and Inf to 0
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// PercentChange returns (current-previous)/|previous|*100; 0 when previous is 0
func PercentChange(previous, current float64) float64 {
	if previous == 0 {
		return 0
	}
	return (current - previous) / math.Abs(previous) * 100
}
