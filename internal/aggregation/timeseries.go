package aggregation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/soltixdb/insight/internal/downsampling"
	"github.com/soltixdb/insight/internal/models"
	"github.com/soltixdb/insight/internal/utils"
)

// TimeSeriesRule buckets one data type by time
type TimeSeriesRule struct {
	DataType    string                `json:"dataType"`
	TimeField   string                `json:"timeField,omitempty"` // defaults to the record timestamp
	Interval    Interval              `json:"interval,omitempty"`
	AggregateBy map[string][]Function `json:"aggregateBy,omitempty"`
	StartDate   *time.Time            `json:"startDate,omitempty"`
	EndDate     *time.Time            `json:"endDate,omitempty"`
	FillGaps    bool                  `json:"fillGaps,omitempty"`
	Filter      models.Filter         `json:"filters"`

	// Downsampling applies when MaxPoints > 0 and the series is longer
	Downsample   string `json:"downsample,omitempty"`   // none (default), auto, lttb, minmax, m4
	MaxPoints    int    `json:"maxPoints,omitempty"`
	DownsampleBy string `json:"downsampleBy,omitempty"` // value column driving selection, defaults to count
}

// Validate checks the rule and normalizes the interval
func (r *TimeSeriesRule) Validate() error {
	if r.DataType == "" {
		return &RuleError{Field: "dataType", Reason: "must not be empty"}
	}
	iv, err := ParseInterval(string(r.Interval))
	if err != nil {
		return err
	}
	r.Interval = iv
	if r.StartDate != nil && r.EndDate != nil && r.EndDate.Before(*r.StartDate) {
		return &RuleError{Field: "endDate", Reason: "must not be before startDate"}
	}
	if _, err := downsampling.ParseMode(r.Downsample); err != nil {
		return &RuleError{Field: "downsample", Reason: err.Error()}
	}
	if r.MaxPoints < 0 {
		return &RuleError{Field: "maxPoints", Reason: "must not be negative"}
	}
	return validateAggregateBy(r.AggregateBy)
}

// SeriesPoint is one time bucket
type SeriesPoint struct {
	Period   string             `json:"period"`
	Datetime time.Time          `json:"datetime"`
	Interval Interval           `json:"interval"`
	Count    int                `json:"count"`
	Values   map[string]float64 `json:"values"`
}

// TimeSeries buckets records by interval. With FillGaps, missing buckets
// between the first bucket (or StartDate) and the last (or EndDate) are
// inserted with zero values. No records yields an empty series.
func (e *Engine) TimeSeries(ctx context.Context, rule TimeSeriesRule) ([]SeriesPoint, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	filter := rule.Filter
	if rule.StartDate != nil {
		filter.StartDate = rule.StartDate
	}
	if rule.EndDate != nil {
		filter.EndDate = rule.EndDate
	}

	records, err := e.fetch(ctx, rule.DataType, filter)
	if err != nil {
		return nil, err
	}

	loc := e.config.Location
	buckets := make(map[time.Time][]models.Record)
	var first, last time.Time
	for _, r := range records {
		ts, ok := recordTime(r, rule.TimeField)
		if !ok {
			continue
		}
		start := rule.Interval.Truncate(ts, loc)
		buckets[start] = append(buckets[start], r)
		if first.IsZero() || start.Before(first) {
			first = start
		}
		if last.IsZero() || start.After(last) {
			last = start
		}
	}

	points := []SeriesPoint{}
	if len(buckets) == 0 {
		return points, nil
	}

	if !rule.FillGaps {
		starts := make([]time.Time, 0, len(buckets))
		for start := range buckets {
			starts = append(starts, start)
		}
		sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
		for _, start := range starts {
			points = append(points, e.point(start, buckets[start], rule))
		}
		return points, nil
	}

	if rule.StartDate != nil {
		if s := rule.Interval.Truncate(*rule.StartDate, loc); s.Before(first) {
			first = s
		}
	}
	if rule.EndDate != nil {
		if s := rule.Interval.Truncate(*rule.EndDate, loc); s.After(last) {
			last = s
		}
	}

	for start := first; !start.After(last); start = rule.Interval.Next(start) {
		if len(points) >= utils.MaxQueryLimit {
			return nil, &RuleError{Field: "interval", Reason: fmt.Sprintf("gap filling exceeds %d buckets", utils.MaxQueryLimit)}
		}
		points = append(points, e.point(start, buckets[start], rule))
	}
	return points, nil
}

func (e *Engine) point(start time.Time, records []models.Record, rule TimeSeriesRule) SeriesPoint {
	return SeriesPoint{
		Period:   rule.Interval.Label(start),
		Datetime: start,
		Interval: rule.Interval,
		Count:    len(records),
		Values:   aggregateFields(records, rule.AggregateBy),
	}
}

// Downsample thins a series produced by TimeSeries to rule.MaxPoints using
// the rule's mode. Selection follows the DownsampleBy column, or the bucket
// count when unset.
func Downsample(points []SeriesPoint, rule TimeSeriesRule) ([]SeriesPoint, error) {
	if rule.MaxPoints <= 0 || len(points) <= rule.MaxPoints {
		return points, nil
	}
	mode, err := downsampling.ParseMode(rule.Downsample)
	if err != nil {
		return nil, &RuleError{Field: "downsample", Reason: err.Error()}
	}

	values := make([]float64, len(points))
	for i, p := range points {
		if rule.DownsampleBy == "" {
			values[i] = float64(p.Count)
		} else {
			values[i] = p.Values[rule.DownsampleBy]
		}
	}

	keep, err := downsampling.Select(values, mode, rule.MaxPoints)
	if err != nil {
		return nil, err
	}
	out := make([]SeriesPoint, len(keep))
	for i, idx := range keep {
		out[i] = points[idx]
	}
	return out, nil
}

func recordTime(r models.Record, field string) (time.Time, bool) {
	if field == "" || field == models.FieldTimestamp {
		return r.Timestamp()
	}
	return r.Time(field)
}
