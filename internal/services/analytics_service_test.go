package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soltixdb/insight/internal/aggregation"
	"github.com/soltixdb/insight/internal/analytics/anomaly"
	"github.com/soltixdb/insight/internal/analytics/comparison"
	"github.com/soltixdb/insight/internal/analytics/trend"
	"github.com/soltixdb/insight/internal/cache"
	"github.com/soltixdb/insight/internal/config"
	"github.com/soltixdb/insight/internal/logging"
	"github.com/soltixdb/insight/internal/models"
	"github.com/soltixdb/insight/internal/source"
	"github.com/soltixdb/insight/internal/utils"
)

var now = time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)

// weekOfSessions creates one session per day for the 7 days before now,
// alternating between two stages
func weekOfSessions(player string, scores ...float64) []models.Record {
	records := make([]models.Record, len(scores))
	start := now.Add(-time.Duration(len(scores)) * 24 * time.Hour).Add(time.Hour)
	for i, score := range scores {
		stage := "stage_1"
		if i%2 == 1 {
			stage = "stage_2"
		}
		s := models.SessionRecord{
			SessionID:     player + "-" + string(rune('a'+i)),
			PlayerID:      player,
			StageID:       stage,
			StartTime:     start.Add(time.Duration(i) * 24 * time.Hour),
			EndTime:       start.Add(time.Duration(i)*24*time.Hour + 5*time.Minute),
			FinalScore:    score,
			BubblesPopped: 80,
			BubblesMissed: 20,
			MaxCombo:      10,
			Completed:     true,
		}
		records[i] = s.Record()
	}
	return records
}

func newTestService(t *testing.T, src source.Source) *AnalyticsService {
	t.Helper()
	cfg := config.DefaultConfig()

	trendCache := cache.NewTTLCache[*trend.Result]("trend", time.Minute, cache.WithCleanupInterval(0))
	aggCache := cache.NewTTLCache[*aggregation.AdvancedResult]("aggregation", time.Minute, cache.WithCleanupInterval(0))
	t.Cleanup(trendCache.Stop)
	t.Cleanup(aggCache.Stop)

	svc, err := NewAnalyticsService(logging.NewNop(), cfg.Analytics, cfg.Queue, Dependencies{
		Source:         src,
		Anonymizer:     source.NewHashAnonymizer(cfg.Analytics.AnonymizationSalt),
		TrendCache:     trendCache,
		AggregateCache: aggCache,
		Now:            func() time.Time { return now },
	})
	require.NoError(t, err)
	return svc
}

func memorySource(records ...models.Record) *source.MemorySource {
	src := source.NewMemorySource(0)
	src.SetData(utils.DataTypeSessions, records)
	return src
}

type panicSource struct{}

func (panicSource) Fetch(context.Context, string, models.Filter) ([]models.Record, error) {
	panic("corrupt record")
}

func TestNewAnalyticsService_RequiresSource(t *testing.T) {
	cfg := config.DefaultConfig()
	_, err := NewAnalyticsService(logging.NewNop(), cfg.Analytics, cfg.Queue, Dependencies{})
	assert.Error(t, err)
}

func TestGetAggregatedData(t *testing.T) {
	svc := newTestService(t, memorySource(weekOfSessions("p1", 100, 200, 300, 400, 500, 600, 700)...))

	env := svc.GetAggregatedData(context.Background(), aggregation.Rule{
		DataType:    utils.DataTypeSessions,
		GroupBy:     []string{models.FieldStageID},
		AggregateBy: map[string][]aggregation.Function{models.FieldFinalScore: {aggregation.FuncAvg}},
	})

	require.True(t, env.Success, "%+v", env.Error)
	res, ok := env.Data.(*aggregation.Result)
	require.True(t, ok)
	assert.Len(t, res.Groups, 2)
	assert.Equal(t, 7, env.Metadata.SourceDataCount)
	assert.Equal(t, 2, env.Metadata.DataPoints)
	assert.GreaterOrEqual(t, env.Metadata.ResponseTime, 0.0)
}

func TestGetAggregatedData_InvalidRule(t *testing.T) {
	src := memorySource()
	svc := newTestService(t, src)

	env := svc.GetAggregatedData(context.Background(), aggregation.Rule{
		DataType:    utils.DataTypeSessions,
		AggregateBy: map[string][]aggregation.Function{models.FieldFinalScore: {"median"}},
	})

	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, CodeInvalidRule, env.Error.Code)
	assert.Equal(t, 0, src.Calls())
}

func TestGetAggregatedData_StorageFailure(t *testing.T) {
	src := memorySource()
	src.FailWith(errors.New("Database error"))
	svc := newTestService(t, src)

	env := svc.GetAggregatedData(context.Background(), aggregation.Rule{DataType: utils.DataTypeSessions})

	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, CodeStorageFailure, env.Error.Code)
	assert.Equal(t, "Database error", env.Error.Message)
}

func TestExecute_RecoversPanics(t *testing.T) {
	svc := newTestService(t, panicSource{})

	env := svc.GetStatsSummary(context.Background(), models.Filter{})

	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, CodeAggregationError, env.Error.Code)
	assert.Contains(t, env.Error.Message, "corrupt record")
}

func TestExecute_RequestID(t *testing.T) {
	svc := newTestService(t, memorySource())

	ctx := logging.WithRequestID(context.Background(), "req-123")
	env := svc.AlertHistory(ctx)

	assert.True(t, env.Success)
	assert.Equal(t, "req-123", env.Metadata.RequestID)
}

func TestGetAdvancedAggregatedData_Cached(t *testing.T) {
	src := memorySource(weekOfSessions("p1", 100, 200, 300)...)
	svc := newTestService(t, src)

	rule := aggregation.AdvancedRule{
		DataTypes:    []string{utils.DataTypeSessions},
		MultiGroupBy: []string{models.FieldStageID},
		CacheKey:     "stages",
	}
	first := svc.GetAdvancedAggregatedData(context.Background(), rule)
	require.True(t, first.Success)
	assert.False(t, first.Metadata.Cached)
	assert.Equal(t, 3, first.Metadata.SourceDataCount)

	second := svc.GetAdvancedAggregatedData(context.Background(), rule)
	require.True(t, second.Success)
	assert.True(t, second.Metadata.Cached)
	assert.Equal(t, 1, src.Calls())
}

func TestGetTimeSeriesAggregation(t *testing.T) {
	svc := newTestService(t, memorySource(weekOfSessions("p1", 100, 200, 300)...))

	env := svc.GetTimeSeriesAggregation(context.Background(), aggregation.TimeSeriesRule{
		DataType: utils.DataTypeSessions,
		Interval: aggregation.IntervalDay,
	})

	require.True(t, env.Success, "%+v", env.Error)
	assert.Equal(t, string(aggregation.IntervalDay), env.Metadata.Interval)
	assert.Equal(t, 3, env.Metadata.DataPoints)
	assert.Equal(t, 3, env.Metadata.SourceDataCount)
}

func TestGetTimeSeriesAggregation_Downsampled(t *testing.T) {
	svc := newTestService(t, memorySource(weekOfSessions("p1", 100, 200, 300, 400, 500)...))

	env := svc.GetTimeSeriesAggregation(context.Background(), aggregation.TimeSeriesRule{
		DataType:   utils.DataTypeSessions,
		Interval:   aggregation.IntervalDay,
		Downsample: "lttb",
		MaxPoints:  3,
	})

	require.True(t, env.Success, "%+v", env.Error)
	assert.Equal(t, 3, env.Metadata.DataPoints)
	assert.Equal(t, 5, env.Metadata.SourceDataCount)
	assert.Equal(t, "downsampled from 5 to 3 points", env.Metadata.Message)
}

func TestGetRecords_Anonymized(t *testing.T) {
	svc := newTestService(t, memorySource(weekOfSessions("p1", 100, 200)...))

	env := svc.GetRecords(context.Background(), utils.DataTypeSessions, models.Filter{})

	require.True(t, env.Success)
	assert.True(t, env.Metadata.Anonymized)
	records, ok := env.Data.([]models.Record)
	require.True(t, ok)
	require.Len(t, records, 2)
	for _, r := range records {
		id := r.String(models.FieldPlayerID)
		assert.True(t, strings.HasPrefix(id, "player_"), id)
		assert.NotEqual(t, "p1", id)
	}
}

func TestGetRecords_SkipAnonymization(t *testing.T) {
	svc := newTestService(t, memorySource(weekOfSessions("p1", 100, 200)...))

	env := svc.GetRecords(context.Background(), utils.DataTypeSessions, models.Filter{SkipAnonymization: true})

	require.True(t, env.Success)
	assert.False(t, env.Metadata.Anonymized)
	records, ok := env.Data.([]models.Record)
	require.True(t, ok)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, "p1", r.String(models.FieldPlayerID))
	}
}

func TestGetRecords_WithoutAnonymizer(t *testing.T) {
	cfg := config.DefaultConfig()
	svc, err := NewAnalyticsService(logging.NewNop(), cfg.Analytics, cfg.Queue, Dependencies{
		Source: memorySource(weekOfSessions("player1", 100)...),
	})
	require.NoError(t, err)

	env := svc.GetRecords(context.Background(), utils.DataTypeSessions, models.Filter{})

	require.True(t, env.Success, "%+v", env.Error)
	assert.False(t, env.Metadata.Anonymized)
	records, ok := env.Data.([]models.Record)
	require.True(t, ok)
	require.Len(t, records, 1)
	assert.Equal(t, "player1", records[0].String(models.FieldPlayerID))
}

func TestGetRecords_EmptyDataType(t *testing.T) {
	svc := newTestService(t, memorySource())

	env := svc.GetRecords(context.Background(), "", models.Filter{})
	require.NotNil(t, env.Error)
	assert.Equal(t, CodeInvalidRule, env.Error.Code)
}

func TestAnalyzeWeeklyTrend(t *testing.T) {
	svc := newTestService(t, memorySource(weekOfSessions("p1", 100, 110, 120, 130, 140, 150, 160)...))

	env := svc.AnalyzeWeeklyTrend(context.Background(), "score", now)
	require.True(t, env.Success, "%+v", env.Error)
	assert.False(t, env.Metadata.Cached)
	assert.Equal(t, 7, env.Metadata.DataPoints)

	res, ok := env.Data.(*trend.Result)
	require.True(t, ok)
	assert.Equal(t, trend.Increasing, res.Trend.Direction)

	again := svc.AnalyzeTrend(context.Background(), "weekly", "score", now)
	require.True(t, again.Success)
	assert.True(t, again.Metadata.Cached)
}

func TestAnalyzeTrend_Errors(t *testing.T) {
	svc := newTestService(t, memorySource(weekOfSessions("p1", 100, 110, 120)...))

	env := svc.AnalyzeMonthlyTrend(context.Background(), "score", now)
	require.NotNil(t, env.Error)
	assert.Equal(t, CodeInsufficientData, env.Error.Code)
	assert.Equal(t, 3, env.Error.Details["dataPoints"])
	assert.Equal(t, 30, env.Error.Details["requiredPoints"])

	env = svc.AnalyzeTrend(context.Background(), "yearly", "score", now)
	require.NotNil(t, env.Error)
	assert.Equal(t, CodeInvalidRule, env.Error.Code)

	env = svc.AnalyzeWeeklyTrend(context.Background(), "luck", now)
	require.NotNil(t, env.Error)
	assert.Equal(t, CodeInvalidRule, env.Error.Code)
}

func TestDetectAnomalies(t *testing.T) {
	svc := newTestService(t, memorySource(weekOfSessions("p1", 100, 110, 120, 130)...))

	env := svc.DetectAnomalies(context.Background(), nil)
	require.True(t, env.Success, "%+v", env.Error)
	report, ok := env.Data.(*anomaly.Report)
	require.True(t, ok)
	assert.True(t, report.Success)
	assert.Equal(t, 4, env.Metadata.SourceDataCount)
}

func TestUpdateThresholds(t *testing.T) {
	svc := newTestService(t, memorySource())

	ratio := 0.5
	env := svc.UpdateThresholds(context.Background(), anomaly.ThresholdUpdate{QuitRatio: &ratio})
	require.True(t, env.Success)
	assert.Equal(t, 0.5, env.Data.(anomaly.Thresholds).QuitRatio)

	bad := 1.5
	env = svc.UpdateThresholds(context.Background(), anomaly.ThresholdUpdate{QuitRatio: &bad})
	require.NotNil(t, env.Error)
	assert.Equal(t, CodeInvalidRule, env.Error.Code)
	assert.Equal(t, 0.5, svc.Detector().Thresholds().QuitRatio)
}

func TestCompareWithPastData_Insufficient(t *testing.T) {
	svc := newTestService(t, memorySource())

	env := svc.CompareWithPastData(context.Background(), comparison.Options{})
	require.NotNil(t, env.Error)
	assert.Equal(t, CodeInsufficientData, env.Error.Code)
	assert.Equal(t, comparison.MsgCurrentInsufficient, env.Error.Message)
}

func TestCompareWithBenchmark(t *testing.T) {
	records := weekOfSessions("p1", 100, 200, 300)
	records = append(records, weekOfSessions("p2", 400, 500)...)
	svc := newTestService(t, memorySource(records...))

	env := svc.CompareWithBenchmark(context.Background(), comparison.Options{PlayerID: "p1"})
	require.True(t, env.Success, "%+v", env.Error)
	assert.True(t, env.Metadata.Anonymized)
	assert.Equal(t, 3, env.Metadata.DataPoints)
	assert.Equal(t, 1, env.Metadata.SourceDataCount)
}

func TestCompareByStage(t *testing.T) {
	svc := newTestService(t, memorySource(weekOfSessions("p1", 100, 200, 300, 400)...))

	env := svc.CompareByStage(context.Background(), comparison.Options{})
	require.True(t, env.Success, "%+v", env.Error)
	assert.Equal(t, 2, env.Metadata.DataPoints)
}

func TestGenerateImprovement(t *testing.T) {
	svc := newTestService(t, memorySource(weekOfSessions("p1", 100, 200, 300)...))

	env := svc.GenerateImprovementSuggestions(context.Background(), ImprovementRequest{})
	require.True(t, env.Success, "%+v", env.Error)
	_, ok := env.Data.(*comparison.Suggestions)
	assert.True(t, ok)

	env = svc.GenerateImprovementPlan(context.Background(), ImprovementRequest{})
	require.NotNil(t, env.Error)
	assert.Equal(t, CodeInvalidRule, env.Error.Code)

	env = svc.GenerateImprovementPlan(context.Background(), ImprovementRequest{
		Options: comparison.Options{PlayerID: "p1"},
	})
	require.True(t, env.Success, "%+v", env.Error)
	plan, ok := env.Data.(*comparison.Plan)
	require.True(t, ok)
	assert.Equal(t, 3, plan.PlayerProfile.TotalSessions)
}
