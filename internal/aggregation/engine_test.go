package aggregation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soltixdb/insight/internal/cache"
	"github.com/soltixdb/insight/internal/models"
	"github.com/soltixdb/insight/internal/source"
	"github.com/soltixdb/insight/internal/utils"
)

var now = time.Date(2022, 1, 3, 12, 0, 0, 0, time.UTC)

func fixtureSource() *source.MemorySource {
	src := source.NewMemorySource(0)
	src.SetData(utils.DataTypeSessions, []models.Record{
		{"sessionId": "s1", "timestamp": time.Date(2022, 1, 1, 10, 0, 0, 0, time.UTC), "finalScore": 100, "duration": 60000, "completed": true, "bubblesPopped": 8, "bubblesMissed": 2, "maxCombo": 4},
		{"sessionId": "s2", "timestamp": time.Date(2022, 1, 1, 22, 0, 0, 0, time.UTC), "finalScore": 300, "duration": 120000, "completed": false, "bubblesPopped": 5, "bubblesMissed": 5, "maxCombo": 7},
		{"sessionId": "s3", "timestamp": time.Date(2022, 1, 3, 11, 0, 0, 0, time.UTC), "finalScore": 200, "duration": 90000, "completed": true, "bubblesPopped": 9, "bubblesMissed": 1, "maxCombo": 2},
	})
	src.SetData(utils.DataTypeInteractions, []models.Record{
		{"sessionId": "s1", "timestamp": time.Date(2022, 1, 1, 10, 1, 0, 0, time.UTC), "bubbleType": "normal", "action": "popped", "reactionTime": 200, "scoreGained": 10},
		{"sessionId": "s1", "timestamp": time.Date(2022, 1, 1, 10, 2, 0, 0, time.UTC), "bubbleType": "normal", "action": "missed", "reactionTime": 800, "scoreGained": 0},
		{"sessionId": "s2", "timestamp": time.Date(2022, 1, 1, 22, 1, 0, 0, time.UTC), "bubbleType": "rainbow", "action": "popped", "reactionTime": 300, "scoreGained": 50},
	})
	src.SetData(utils.DataTypePerformance, []models.Record{
		{"sessionId": "s1", "timestamp": time.Date(2022, 1, 1, 10, 1, 0, 0, time.UTC), "fps": 60, "memoryUsage": map[string]interface{}{"used": 100.0, "total": 400.0}},
		{"sessionId": "s2", "timestamp": time.Date(2022, 1, 1, 22, 1, 0, 0, time.UTC), "fps": 30, "memoryUsed": 200},
	})
	return src
}

func newTestEngine(src source.Source, c cache.Cache[*AdvancedResult]) *Engine {
	return NewEngine(src, c, Config{Now: func() time.Time { return now }})
}

func TestAggregate_GroupByField(t *testing.T) {
	e := newTestEngine(fixtureSource(), nil)

	res, err := e.Aggregate(context.Background(), Rule{
		DataType: utils.DataTypeSessions,
		GroupBy:  []string{"completed"},
		AggregateBy: map[string][]Function{
			"finalScore": {FuncSum, FuncAvg, FuncCount},
			"duration":   {FuncAvg, FuncMin, FuncMax},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.SourceDataCount)
	require.Len(t, res.Groups, 2)

	// groups are ordered by key: "false" < "true"
	notDone, done := res.Groups[0], res.Groups[1]
	assert.Equal(t, map[string]string{"completed": "false"}, notDone.Key)
	assert.Equal(t, 1, notDone.Count)
	assert.Equal(t, 300.0, notDone.Values["finalScore_sum"])

	assert.Equal(t, 2, done.Count)
	assert.Equal(t, 300.0, done.Values["finalScore_sum"])
	assert.Equal(t, 150.0, done.Values["finalScore_avg"])
	assert.Equal(t, 2.0, done.Values["finalScore_count"])
	assert.Equal(t, 60000.0, done.Values["duration_min"])
	assert.Equal(t, 90000.0, done.Values["duration_max"])
}

func TestAggregate_GroupByDateUsesTimezone(t *testing.T) {
	src := fixtureSource()
	rule := Rule{
		DataType:    utils.DataTypeSessions,
		GroupBy:     []string{GroupByDate},
		AggregateBy: map[string][]Function{"finalScore": {FuncAvg}},
	}

	res, err := newTestEngine(src, nil).Aggregate(context.Background(), rule)
	require.NoError(t, err)
	require.Len(t, res.Groups, 2)
	assert.Equal(t, "2022-01-01", res.Groups[0].Key["date"])
	assert.Equal(t, 200.0, res.Groups[0].Values["finalScore_avg"])

	// s2 at 22:00 UTC falls on Jan 2 in Tokyo
	tokyo := time.FixedZone("JST", 9*3600)
	e := NewEngine(src, nil, Config{Location: tokyo, Now: func() time.Time { return now }})
	res, err = e.Aggregate(context.Background(), rule)
	require.NoError(t, err)
	require.Len(t, res.Groups, 3)
	assert.Equal(t, "2022-01-02", res.Groups[1].Key["date"])
}

func TestAggregate_MissingGroupFieldIsUnknown(t *testing.T) {
	res, err := newTestEngine(fixtureSource(), nil).Aggregate(context.Background(), Rule{
		DataType: utils.DataTypeSessions,
		GroupBy:  []string{"stageId"},
	})
	require.NoError(t, err)
	require.Len(t, res.Groups, 1)
	assert.Equal(t, UnknownGroup, res.Groups[0].Key["stageId"])
	assert.Equal(t, 3, res.Groups[0].Count)
}

func TestAggregate_PeriodAndLimit(t *testing.T) {
	e := newTestEngine(fixtureSource(), nil)

	res, err := e.Aggregate(context.Background(), Rule{
		DataType:    utils.DataTypeSessions,
		Period:      PeriodLast24h,
		AggregateBy: map[string][]Function{"finalScore": {FuncSum}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.SourceDataCount)
	require.Len(t, res.Groups, 1)
	assert.Equal(t, 200.0, res.Groups[0].Values["finalScore_sum"])

	res, err = e.Aggregate(context.Background(), Rule{
		DataType: utils.DataTypeSessions,
		GroupBy:  []string{"sessionId"},
		Limit:    2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.SourceDataCount, "limit applies to groups, not records")
	assert.Len(t, res.Groups, 2)
}

func TestAggregate_QueryLimitKeepsNewest(t *testing.T) {
	e := NewEngine(fixtureSource(), nil, Config{MaxQueryLimit: 2, Now: func() time.Time { return now }})

	res, err := e.Aggregate(context.Background(), Rule{
		DataType:    utils.DataTypeSessions,
		AggregateBy: map[string][]Function{"finalScore": {FuncSum}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.SourceDataCount)
	require.Len(t, res.Groups, 1)
	assert.Equal(t, 500.0, res.Groups[0].Values["finalScore_sum"], "s2 and s3 are the newest sessions")
}

func TestAggregate_EmptyData(t *testing.T) {
	res, err := newTestEngine(fixtureSource(), nil).Aggregate(context.Background(), Rule{
		DataType:    "emptyData",
		AggregateBy: map[string][]Function{"score": {FuncSum}},
	})
	require.NoError(t, err)
	assert.NotNil(t, res.Groups)
	assert.Empty(t, res.Groups)
}

func TestAggregate_Errors(t *testing.T) {
	src := fixtureSource()
	e := newTestEngine(src, nil)

	_, err := e.Aggregate(context.Background(), Rule{DataType: "x", AggregateBy: map[string][]Function{"a": {"mode"}}})
	assert.ErrorIs(t, err, ErrInvalidRule)
	assert.Equal(t, 0, src.Calls(), "invalid rules never reach the source")

	src.FailWith(errors.New("disk on fire"))
	_, err = e.Aggregate(context.Background(), Rule{DataType: utils.DataTypeSessions})
	assert.ErrorIs(t, err, source.ErrStorage)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestAggregateAdvanced_MultipleTypesWithConditions(t *testing.T) {
	e := newTestEngine(fixtureSource(), nil)

	res, cached, err := e.AggregateAdvanced(context.Background(), AdvancedRule{
		DataTypes:    []string{utils.DataTypeSessions, utils.DataTypeInteractions},
		MultiGroupBy: []string{"bubbleType"},
		ConditionalAggregations: []ConditionalAggregation{{
			Field:       "scoreGained",
			Condition:   Condition{Field: "action", Operator: OpEqual, Value: "popped"},
			Function:    FuncSum,
			ResultField: "totalScore",
		}},
	})
	require.NoError(t, err)
	assert.False(t, cached)

	assert.Equal(t, 6, res.Summary.TotalRecords)
	assert.Equal(t, []string{utils.DataTypeSessions, utils.DataTypeInteractions}, res.Summary.DataTypes)

	sessions := res.Details[utils.DataTypeSessions]
	require.NotNil(t, sessions)
	require.Len(t, sessions.Groups, 1)
	assert.Equal(t, 3, sessions.Groups[UnknownGroup].Count)

	interactions := res.Details[utils.DataTypeInteractions]
	require.Len(t, interactions.Groups, 2)
	assert.Equal(t, 10.0, interactions.Groups["normal"].Conditional["totalScore"])
	assert.Equal(t, 50.0, interactions.Groups["rainbow"].Conditional["totalScore"])
	assert.Equal(t, 3, res.Summary.TotalGroups)
}

func TestAggregateAdvanced_Hierarchy(t *testing.T) {
	e := newTestEngine(fixtureSource(), nil)

	res, _, err := e.AggregateAdvanced(context.Background(), AdvancedRule{
		DataTypes:          []string{utils.DataTypeInteractions},
		HierarchicalLevels: []string{"bubbleType", "action"},
	})
	require.NoError(t, err)

	detail := res.Details[utils.DataTypeInteractions]
	assert.Len(t, detail.Groups, 3)
	require.Len(t, detail.Hierarchy, 2)

	normal := detail.Hierarchy[0]
	assert.Equal(t, "bubbleType", normal.Level)
	assert.Equal(t, "normal", normal.Key)
	assert.Equal(t, 2, normal.Count)
	require.Len(t, normal.Children, 2)
	assert.Equal(t, "missed", normal.Children[0].Key)
	assert.Equal(t, "popped", normal.Children[1].Key)
	assert.Empty(t, normal.Children[0].Children)
}

func TestAggregateAdvanced_TimeWindow(t *testing.T) {
	e := newTestEngine(fixtureSource(), nil)

	res, _, err := e.AggregateAdvanced(context.Background(), AdvancedRule{
		DataTypes:  []string{utils.DataTypeSessions},
		TimeWindow: &TimeWindow{SizeMillis: int64((24 * time.Hour) / time.Millisecond), Type: WindowSliding},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary.TotalRecords)
	require.NotNil(t, res.TimeWindow)
	assert.Equal(t, now, res.TimeWindow.BaseTime)
}

func TestAggregateAdvanced_Cache(t *testing.T) {
	src := fixtureSource()
	c := cache.NewTTLCache[*AdvancedResult]("aggregation", time.Minute, cache.WithCleanupInterval(0))
	e := newTestEngine(src, c)
	rule := AdvancedRule{DataTypes: []string{utils.DataTypeSessions}, CacheKey: "test_cache_key"}

	first, cached, err := e.AggregateAdvanced(context.Background(), rule)
	require.NoError(t, err)
	assert.False(t, cached)
	calls := src.Calls()

	second, cached, err := e.AggregateAdvanced(context.Background(), rule)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Same(t, first, second)
	assert.Equal(t, calls, src.Calls(), "cache hit must not query the source")

	_, err = e.Aggregate(context.Background(), Rule{DataType: utils.DataTypeSessions})
	require.NoError(t, err)
	_, err = e.Aggregate(context.Background(), Rule{DataType: utils.DataTypeSessions})
	require.NoError(t, err)
	assert.Equal(t, calls+2, src.Calls(), "simple aggregation always reads the source")
}

func TestAggregateAdvanced_Validation(t *testing.T) {
	e := newTestEngine(fixtureSource(), nil)

	_, _, err := e.AggregateAdvanced(context.Background(), AdvancedRule{})
	assert.ErrorIs(t, err, ErrInvalidRule)

	_, _, err = e.AggregateAdvanced(context.Background(), AdvancedRule{
		DataTypes: []string{"x"},
		ConditionalAggregations: []ConditionalAggregation{{
			Field: "a", Function: FuncSum, Condition: Condition{Field: "b", Operator: "~"},
		}},
	})
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestCountAndLimitGroups(t *testing.T) {
	details := map[string]*DataTypeDetail{
		"sessionData": {Groups: map[string]*GroupDetail{
			"group1": {Count: 10}, "group2": {Count: 20}, "group3": {Count: 30},
		}},
		"bubbleInteractions": {Groups: map[string]*GroupDetail{
			"group1": {}, "group2": {},
		}},
	}
	assert.Equal(t, 5, CountTotalGroups(details))

	LimitGroups(details, 2)
	assert.Len(t, details["sessionData"].Groups, 2)
	assert.Contains(t, details["sessionData"].Groups, "group3")
	assert.Contains(t, details["sessionData"].Groups, "group2")
	assert.Len(t, details["bubbleInteractions"].Groups, 2)
}

func TestTimeSeries_FillGaps(t *testing.T) {
	e := newTestEngine(fixtureSource(), nil)
	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2022, 1, 3, 23, 0, 0, 0, time.UTC)

	rule := TimeSeriesRule{
		DataType: utils.DataTypeSessions,
		Interval: IntervalDay,
		AggregateBy: map[string][]Function{
			"finalScore": {FuncSum, FuncAvg},
		},
		StartDate: &start,
		EndDate:   &end,
	}

	points, err := e.TimeSeries(context.Background(), rule)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, "2022-01-01", points[0].Period)
	assert.Equal(t, 400.0, points[0].Values["finalScore_sum"])
	assert.Equal(t, IntervalDay, points[0].Interval)

	rule.FillGaps = true
	points, err = e.TimeSeries(context.Background(), rule)
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, "2022-01-02", points[1].Period)
	assert.Equal(t, 0, points[1].Count)
	assert.Equal(t, 0.0, points[1].Values["finalScore_avg"])
	for i := 1; i < len(points); i++ {
		assert.Equal(t, 24*time.Hour, points[i].Datetime.Sub(points[i-1].Datetime))
	}
}

func TestTimeSeries_HourDefaultAndEmpty(t *testing.T) {
	e := newTestEngine(fixtureSource(), nil)

	points, err := e.TimeSeries(context.Background(), TimeSeriesRule{DataType: utils.DataTypeSessions})
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, IntervalHour, points[0].Interval)
	assert.Equal(t, "2022-01-01T10:00", points[0].Period)

	points, err = newTestEngine(source.NewMemorySource(0), nil).TimeSeries(context.Background(), TimeSeriesRule{
		DataType: utils.DataTypeSessions, Interval: IntervalDay, FillGaps: true,
	})
	require.NoError(t, err)
	assert.NotNil(t, points)
	assert.Empty(t, points)

	_, err = e.TimeSeries(context.Background(), TimeSeriesRule{DataType: utils.DataTypeSessions, Interval: "decade"})
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestSummary(t *testing.T) {
	sum, err := newTestEngine(fixtureSource(), nil).Summary(context.Background(), models.Filter{})
	require.NoError(t, err)

	assert.Equal(t, 8, sum.Overview.TotalRecords)

	ss := sum.SessionStats
	assert.Equal(t, 3, ss.TotalSessions)
	assert.Equal(t, 2, ss.CompletedSessions)
	assert.InDelta(t, 2.0/3.0, ss.CompletionRate, 1e-9)
	assert.Equal(t, 200.0, ss.AverageScore)
	assert.Equal(t, 300.0, ss.HighestScore)
	assert.Equal(t, 90.0, ss.AveragePlayTime)
	assert.Equal(t, 7, ss.MaxCombo)

	is := sum.InteractionStats
	assert.Equal(t, 3, is.TotalInteractions)
	assert.Equal(t, 60.0, is.TotalScore)
	assert.Equal(t, []string{"normal", "rainbow"}, is.Categories)
	assert.Equal(t, 2, is.ByCategory["normal"].Count)
	assert.Equal(t, 500.0, is.ByCategory["normal"].AverageReactionTime)

	ps := sum.PerformanceStats
	assert.Equal(t, 2, ps.TotalRecords)
	assert.Equal(t, 45.0, ps.AverageFPS)
	assert.Equal(t, 30.0, ps.MinFPS)
	assert.Equal(t, 60.0, ps.MaxFPS)
	assert.Equal(t, 150.0, ps.AverageMemoryUsed)
}

func TestSummary_NoData(t *testing.T) {
	sum, err := newTestEngine(source.NewMemorySource(0), nil).Summary(context.Background(), models.Filter{})
	require.NoError(t, err)
	assert.True(t, sum.SessionStats.NoData)
	assert.True(t, sum.InteractionStats.NoData)
	assert.True(t, sum.PerformanceStats.NoData)
}

func TestDownsample(t *testing.T) {
	points := make([]SeriesPoint, 12)
	for i := range points {
		points[i] = SeriesPoint{
			Datetime: now.Add(time.Duration(i) * time.Hour),
			Count:    i,
			Values:   map[string]float64{"finalScore_max": float64(100 - i)},
		}
	}

	out, err := Downsample(points, TimeSeriesRule{})
	require.NoError(t, err)
	assert.Len(t, out, 12)

	out, err = Downsample(points, TimeSeriesRule{Downsample: "lttb", MaxPoints: 4})
	require.NoError(t, err)
	require.Len(t, out, 4)
	assert.Equal(t, points[0].Datetime, out[0].Datetime)
	assert.Equal(t, points[11].Datetime, out[3].Datetime)

	out, err = Downsample(points, TimeSeriesRule{Downsample: "minmax", MaxPoints: 2, DownsampleBy: "finalScore_max"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 100.0, out[0].Values["finalScore_max"])
	assert.Equal(t, 89.0, out[1].Values["finalScore_max"])
}

func TestTimeSeries_DownsampleValidation(t *testing.T) {
	e := newTestEngine(fixtureSource(), nil)

	_, err := e.TimeSeries(context.Background(), TimeSeriesRule{DataType: utils.DataTypeSessions, Downsample: "avg"})
	var ruleErr *RuleError
	require.ErrorAs(t, err, &ruleErr)
	assert.Equal(t, "downsample", ruleErr.Field)

	_, err = e.TimeSeries(context.Background(), TimeSeriesRule{DataType: utils.DataTypeSessions, MaxPoints: -1})
	assert.ErrorIs(t, err, ErrInvalidRule)
}
