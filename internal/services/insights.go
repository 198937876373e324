package services

import (
	"context"
	"time"

	"github.com/soltixdb/insight/internal/analytics"
	"github.com/soltixdb/insight/internal/analytics/anomaly"
	"github.com/soltixdb/insight/internal/analytics/comparison"
	"github.com/soltixdb/insight/internal/analytics/trend"
	"github.com/soltixdb/insight/internal/models"
)

// AnalyzeWeeklyTrend analyzes a metric over the 7 days ending at ref
func (s *AnalyticsService) AnalyzeWeeklyTrend(ctx context.Context, metric string, ref time.Time) models.Envelope {
	return s.analyzeTrend(ctx, "trend_weekly", metric, trend.Weekly, ref)
}

// AnalyzeMonthlyTrend analyzes a metric over the 30 days ending at ref
func (s *AnalyticsService) AnalyzeMonthlyTrend(ctx context.Context, metric string, ref time.Time) models.Envelope {
	return s.analyzeTrend(ctx, "trend_monthly", metric, trend.Monthly, ref)
}

// AnalyzeTrend dispatches on a period name ("weekly" or "monthly")
func (s *AnalyticsService) AnalyzeTrend(ctx context.Context, period, metric string, ref time.Time) models.Envelope {
	p, err := trend.ParsePeriod(period)
	if err != nil {
		return s.execute(ctx, "trend", func(context.Context, *models.Metadata) (interface{}, error) {
			return nil, invalid(err)
		})
	}
	if p == trend.Monthly {
		return s.AnalyzeMonthlyTrend(ctx, metric, ref)
	}
	return s.AnalyzeWeeklyTrend(ctx, metric, ref)
}

func (s *AnalyticsService) analyzeTrend(ctx context.Context, name, metric string, period trend.Period, ref time.Time) models.Envelope {
	return s.execute(ctx, name, func(ctx context.Context, meta *models.Metadata) (interface{}, error) {
		res, cached, err := s.trends.Analyze(ctx, metric, period, ref)
		if err != nil {
			return nil, err
		}
		meta.Cached = cached
		meta.DataPoints = res.DataPoints
		if !res.Success {
			return nil, analytics.NewInsufficientData(res.Message, res.DataPoints, res.RequiredPoints)
		}
		return res, nil
	})
}

// DetectAnomalies runs every enabled rule over the window (the last 7 days when nil)
func (s *AnalyticsService) DetectAnomalies(ctx context.Context, window *anomaly.Window) models.Envelope {
	return s.execute(ctx, "anomalies", func(ctx context.Context, meta *models.Metadata) (interface{}, error) {
		report, err := s.detector.DetectAnomalies(ctx, window)
		if err != nil {
			return nil, err
		}
		for _, n := range report.DataPoints {
			meta.SourceDataCount += n
		}
		meta.DataPoints = len(report.Anomalies)
		return report, nil
	})
}

// AlertHistory returns the retained alerts, oldest first
func (s *AnalyticsService) AlertHistory(ctx context.Context) models.Envelope {
	return s.execute(ctx, "alert_history", func(_ context.Context, meta *models.Metadata) (interface{}, error) {
		alerts := s.detector.History()
		meta.DataPoints = len(alerts)
		return alerts, nil
	})
}

// UpdateThresholds applies a partial threshold update. Invalid updates
// leave the current thresholds in place.
func (s *AnalyticsService) UpdateThresholds(ctx context.Context, update anomaly.ThresholdUpdate) models.Envelope {
	return s.execute(ctx, "update_thresholds", func(_ context.Context, _ *models.Metadata) (interface{}, error) {
		t, err := s.detector.UpdateThresholds(update)
		if err != nil {
			return nil, invalid(err)
		}
		return t, nil
	})
}

// CompareWithPastData compares the current window with the previous one per period
func (s *AnalyticsService) CompareWithPastData(ctx context.Context, opts comparison.Options) models.Envelope {
	return s.execute(ctx, "compare_past", func(ctx context.Context, meta *models.Metadata) (interface{}, error) {
		res, err := s.comparer.CompareWithPastData(ctx, opts)
		if err != nil {
			return nil, err
		}
		meta.DataPoints = res.Current.SessionCount
		return res, nil
	})
}

// CompareWithBenchmark compares the player with the anonymized cohort
func (s *AnalyticsService) CompareWithBenchmark(ctx context.Context, opts comparison.Options) models.Envelope {
	return s.execute(ctx, "compare_benchmark", func(ctx context.Context, meta *models.Metadata) (interface{}, error) {
		res, err := s.comparer.CompareWithBenchmark(ctx, opts)
		if err != nil {
			return nil, err
		}
		meta.DataPoints = res.Current.SessionCount
		meta.SourceDataCount = res.Benchmark.TotalPlayers
		meta.Anonymized = true
		return res, nil
	})
}

// CompareByStage compares stage performance in the current window
func (s *AnalyticsService) CompareByStage(ctx context.Context, opts comparison.Options) models.Envelope {
	return s.execute(ctx, "compare_stages", func(ctx context.Context, meta *models.Metadata) (interface{}, error) {
		res, err := s.comparer.CompareByStage(ctx, opts)
		if err != nil {
			return nil, err
		}
		meta.DataPoints = len(res.StageStatistics)
		return res, nil
	})
}

// ImprovementRequest selects the comparisons and shapes the suggestions
type ImprovementRequest struct {
	comparison.Options
	comparison.ImprovementOptions
}

// GenerateImprovementSuggestions turns declines and below average metrics
// into targets, actions and expected outcomes
func (s *AnalyticsService) GenerateImprovementSuggestions(ctx context.Context, req ImprovementRequest) models.Envelope {
	return s.execute(ctx, "improvement", func(ctx context.Context, meta *models.Metadata) (interface{}, error) {
		res, err := s.comparer.SuggestImprovements(ctx, req.Options, req.ImprovementOptions)
		if err != nil {
			return nil, err
		}
		meta.DataPoints = len(res.TargetAreas)
		return res, nil
	})
}

// GenerateImprovementPlan builds a personalized plan for one player
func (s *AnalyticsService) GenerateImprovementPlan(ctx context.Context, req ImprovementRequest) models.Envelope {
	return s.execute(ctx, "improvement_plan", func(ctx context.Context, meta *models.Metadata) (interface{}, error) {
		if req.PlayerID == "" {
			return nil, NewServiceError(CodeInvalidRule, "playerId is required for an improvement plan")
		}
		plan, err := s.comparer.ImprovementPlan(ctx, req.Options, req.ImprovementOptions)
		if err != nil {
			return nil, err
		}
		meta.DataPoints = plan.PlayerProfile.TotalSessions
		return plan, nil
	})
}
