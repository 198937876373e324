package aggregation

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/soltixdb/insight/internal/models"
)

func TestApply(t *testing.T) {
	values := []float64{10, 20, 30, 40, 50}

	tests := []struct {
		fn   Function
		in   []float64
		want float64
	}{
		{FuncSum, values, 150},
		{FuncAvg, values, 30},
		{FuncMin, values, 10},
		{FuncMax, values, 50},
		{FuncCount, values, 5},
		{FuncDistinct, []float64{1, 2, 2, 3, 3, 3}, 3},
		{FuncMin, []float64{-5, 3}, -5},
	}

	for _, tt := range tests {
		t.Run(string(tt.fn), func(t *testing.T) {
			if got := Apply(tt.fn, tt.in); got != tt.want {
				t.Errorf("Apply(%s) = %v, want %v", tt.fn, got, tt.want)
			}
		})
	}
}

func TestApply_Empty(t *testing.T) {
	for fn := range validFunctions {
		if got := Apply(fn, nil); got != 0 {
			t.Errorf("Apply(%s, empty) = %v, want 0", fn, got)
		}
	}
	assert.Equal(t, 0.0, Apply("median", []float64{1, 2}))
}

func TestParseFunction(t *testing.T) {
	fn, err := ParseFunction(" AVG ")
	assert.NoError(t, err)
	assert.Equal(t, FuncAvg, fn)

	_, err = ParseFunction("median")
	assert.True(t, errors.Is(err, ErrInvalidRule))
}

func TestFieldStats(t *testing.T) {
	fs := NewFieldStats()
	for _, v := range []interface{}{2.0, 4, "6", nil, "red", true} {
		fs.Add(v)
	}

	assert.Equal(t, 5, fs.Count, "nil is not counted")
	assert.Equal(t, 4, fs.Numeric, "bools count as 0/1")
	assert.Equal(t, 13.0, fs.Sum)
	assert.Equal(t, 1.0, fs.Min)
	assert.Equal(t, 6.0, fs.Max)
	assert.Equal(t, 5, fs.Distinct())

	other := NewFieldStats()
	other.AddValue(-1)
	other.AddValue(2)
	fs.Merge(other)
	assert.Equal(t, -1.0, fs.Min)
	assert.Equal(t, 7, fs.Count)
	assert.Equal(t, 6, fs.Distinct(), "only -1 is new")

	var zero FieldStats
	zero.AddValue(3)
	assert.Equal(t, 3.0, zero.Value(FuncMax))
}

func TestFieldStats_StdDev(t *testing.T) {
	fs := NewFieldStats()
	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		fs.AddValue(v)
	}
	assert.InDelta(t, 2.0, fs.StdDev(), 1e-9)
	assert.False(t, math.IsNaN(NewFieldStats().StdDev()))
}

func TestCondition_Match(t *testing.T) {
	record := models.Record{"score": 100, "type": "normal", "completed": true}

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"equal string", Condition{"type", OpEqual, "normal"}, true},
		{"equal string mismatch", Condition{"type", OpEqual, "special"}, false},
		{"equal numeric across types", Condition{"score", OpEqual, 100.0}, true},
		{"equal bool", Condition{"completed", OpEqual, true}, true},
		{"greater", Condition{"score", OpGreater, 50}, true},
		{"less", Condition{"score", OpLess, 50}, false},
		{"greater string operand", Condition{"score", OpGreater, "99"}, true},
		{"in list", Condition{"type", OpIn, []interface{}{"normal", "special"}}, true},
		{"in typed list", Condition{"type", OpIn, []string{"special", "rare"}}, false},
		{"in non-list", Condition{"type", OpIn, "normal"}, false},
		{"missing field", Condition{"absent", OpEqual, nil}, false},
		{"unknown operator", Condition{"type", "!=", "x"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cond.Match(record))
		})
	}
}

func TestCondition_Validate(t *testing.T) {
	assert.NoError(t, Condition{"a", OpIn, []int{1}}.Validate())
	assert.ErrorIs(t, Condition{"a", OpIn, 1}.Validate(), ErrInvalidRule)
	assert.ErrorIs(t, Condition{"a", ">=", 1}.Validate(), ErrInvalidRule)
	assert.ErrorIs(t, Condition{"", OpEqual, 1}.Validate(), ErrInvalidRule)
}

func TestInterval_Duration(t *testing.T) {
	assert.Equal(t, time.Minute, IntervalMinute.Duration())
	assert.Equal(t, time.Hour, IntervalHour.Duration())
	assert.Equal(t, 24*time.Hour, IntervalDay.Duration())
	assert.Equal(t, 7*24*time.Hour, IntervalWeek.Duration())
	assert.Equal(t, 30*24*time.Hour, IntervalMonth.Duration())
	assert.Equal(t, time.Hour, Interval("unknown").Duration())
}

func TestParseInterval(t *testing.T) {
	iv, err := ParseInterval("")
	assert.NoError(t, err)
	assert.Equal(t, IntervalHour, iv)

	_, err = ParseInterval("fortnight")
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestInterval_Truncate(t *testing.T) {
	ts := time.Date(2024, 3, 14, 15, 9, 26, 0, time.UTC) // Thursday
	tokyo := time.FixedZone("JST", 9*3600)

	assert.Equal(t, time.Date(2024, 3, 14, 15, 9, 0, 0, time.UTC), IntervalMinute.Truncate(ts, time.UTC))
	assert.Equal(t, time.Date(2024, 3, 14, 15, 0, 0, 0, time.UTC), IntervalHour.Truncate(ts, time.UTC))
	assert.Equal(t, time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), IntervalDay.Truncate(ts, time.UTC))
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), IntervalWeek.Truncate(ts, time.UTC))
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), IntervalMonth.Truncate(ts, time.UTC))

	// 15:09 UTC is already the next day in Tokyo
	day := IntervalDay.Truncate(ts, tokyo)
	assert.Equal(t, "2024-03-15", day.Format("2006-01-02"))

	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), IntervalMonth.Next(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2024-03", IntervalMonth.Label(ts))
	assert.Equal(t, "2024-03-14T15:00", IntervalHour.Label(IntervalHour.Truncate(ts, time.UTC)))
}

func TestTimeWindow_Bounds(t *testing.T) {
	base := time.Date(2024, 3, 14, 15, 0, 0, 0, time.UTC)

	sliding := TimeWindow{SizeMillis: int64((24 * time.Hour) / time.Millisecond), BaseTime: base}
	start, end := sliding.Bounds(time.Time{})
	assert.Equal(t, base.Add(-24*time.Hour), start)
	assert.Equal(t, base, end)

	tumbling := TimeWindow{SizeMillis: int64(time.Hour / time.Millisecond), Type: WindowTumbling, BaseTime: base.Add(20 * time.Minute)}
	start, end = tumbling.Bounds(time.Time{})
	assert.Equal(t, base, start)
	assert.Equal(t, base.Add(time.Hour-time.Nanosecond), end)

	start, _ = TimeWindow{SizeMillis: 1000}.Bounds(base)
	assert.Equal(t, base.Add(-time.Second), start, "zero base time anchors at now")

	assert.ErrorIs(t, TimeWindow{}.Validate(), ErrInvalidRule)
	assert.ErrorIs(t, TimeWindow{SizeMillis: 1, Type: "hopping"}.Validate(), ErrInvalidRule)
}

func TestRule_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		wantErr bool
	}{
		{"valid", Rule{DataType: "sessionData", GroupBy: []string{"date"}, AggregateBy: map[string][]Function{"finalScore": {FuncAvg}}}, false},
		{"missing data type", Rule{}, true},
		{"empty group key", Rule{DataType: "x", GroupBy: []string{""}}, true},
		{"unknown function", Rule{DataType: "x", AggregateBy: map[string][]Function{"a": {"median"}}}, true},
		{"unknown period", Rule{DataType: "x", Period: "last2y"}, true},
		{"negative limit", Rule{DataType: "x", Limit: -1}, true},
		{"bad window", Rule{DataType: "x", TimeWindow: &TimeWindow{}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRule)
				var re *RuleError
				assert.ErrorAs(t, err, &re)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
