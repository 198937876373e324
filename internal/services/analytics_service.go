package services

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/soltixdb/insight/internal/aggregation"
	"github.com/soltixdb/insight/internal/analytics/anomaly"
	"github.com/soltixdb/insight/internal/analytics/comparison"
	"github.com/soltixdb/insight/internal/analytics/trend"
	"github.com/soltixdb/insight/internal/cache"
	"github.com/soltixdb/insight/internal/config"
	"github.com/soltixdb/insight/internal/logging"
	"github.com/soltixdb/insight/internal/metrics"
	"github.com/soltixdb/insight/internal/models"
	"github.com/soltixdb/insight/internal/queue"
	"github.com/soltixdb/insight/internal/source"
)

// Dependencies are the collaborators of an AnalyticsService. Nil caches
// disable caching and a nil publisher disables alert publishing. Without an
// anonymizer records are listed as stored and reported as not anonymized.
type Dependencies struct {
	Source         source.Source
	Publisher      queue.Publisher
	Anonymizer     source.Anonymizer
	AggregateCache cache.Cache[*aggregation.AdvancedResult]
	TrendCache     cache.Cache[*trend.Result]

	// Now overrides the clock of every engine (tests)
	Now func() time.Time
}

// AnalyticsService exposes the analytics engines
type AnalyticsService struct {
	logger     *logging.Logger
	src        source.Source
	anonymizer source.Anonymizer
	maxLimit   int

	aggregator *aggregation.Engine
	trends     *trend.Analyzer
	detector   *anomaly.Detector
	comparer   *comparison.Engine
}

// NewAnalyticsService wires the engines from configuration
func NewAnalyticsService(logger *logging.Logger, analyticsCfg config.AnalyticsConfig,
	queueCfg config.QueueConfig, deps Dependencies,
) (*AnalyticsService, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("analytics service requires a record source")
	}

	aggCfg := aggregation.ConfigFrom(analyticsCfg)
	trendCfg := trend.ConfigFrom(analyticsCfg)
	anomalyCfg := anomaly.ConfigFrom(analyticsCfg, queueCfg)
	compCfg := comparison.ConfigFrom(analyticsCfg)
	if deps.Now != nil {
		aggCfg.Now = deps.Now
		trendCfg.Now = deps.Now
		anomalyCfg.Now = deps.Now
		compCfg.Now = deps.Now
	}

	detector, err := anomaly.NewDetector(deps.Source, deps.Publisher, anomalyCfg)
	if err != nil {
		return nil, err
	}

	return &AnalyticsService{
		logger:     logger.Component("AnalyticsService"),
		src:        deps.Source,
		anonymizer: deps.Anonymizer,
		maxLimit:   analyticsCfg.MaxQueryLimit,
		aggregator: aggregation.NewEngine(deps.Source, deps.AggregateCache, aggCfg),
		trends:     trend.NewAnalyzer(deps.Source, deps.TrendCache, trendCfg),
		detector:   detector,
		comparer:   comparison.NewEngine(deps.Source, compCfg),
	}, nil
}

// operation is the body of one entry point. It fills meta as it learns
// about the result.
type operation func(ctx context.Context, meta *models.Metadata) (interface{}, error)

// execute runs op and turns its outcome into an envelope. Panics are
// reported as AGGREGATION_ERROR.
func (s *AnalyticsService) execute(ctx context.Context, name string, op operation) (env models.Envelope) {
	start := time.Now()
	logger := s.logger.WithContext(ctx)

	var (
		meta models.Metadata
		data interface{}
		err  error
	)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Analytics operation panicked",
				"operation", name, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			data = nil
			err = NewServiceError(CodeAggregationError, fmt.Sprintf("%s failed: %v", name, r))
		}

		elapsed := time.Since(start)
		meta.ResponseTime = float64(elapsed.Microseconds()) / 1000
		meta.RequestID = logging.RequestID(ctx)

		status := "success"
		if err != nil {
			status = "error"
			svcErr := Classify(err, CodeInternalError)
			env = models.Fail(svcErr.Code, svcErr.Message, svcErr.Details, meta)
			logger.Warn("Analytics operation failed",
				"operation", name, "code", svcErr.Code, "error", svcErr.Message, "latency_ms", meta.ResponseTime)
		} else {
			env = models.OK(data, meta)
			logger.Debug("Analytics operation completed",
				"operation", name, "latency_ms", meta.ResponseTime, "cached", meta.Cached, "data_points", meta.DataPoints)
		}

		metrics.RequestDuration.WithLabelValues(name).Observe(elapsed.Seconds())
		metrics.RequestsTotal.WithLabelValues(name, status).Inc()
	}()

	data, err = op(ctx, &meta)
	return env
}

// Detector returns the anomaly detector (alert subscribers, CLI)
func (s *AnalyticsService) Detector() *anomaly.Detector {
	return s.detector
}
