package services

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/soltixdb/insight/internal/aggregation"
	"github.com/soltixdb/insight/internal/analytics/trend"
	"github.com/soltixdb/insight/internal/cache"
	"github.com/soltixdb/insight/internal/config"
	"github.com/soltixdb/insight/internal/logging"
	"github.com/soltixdb/insight/internal/queue"
	"github.com/soltixdb/insight/internal/source"
)

// Runtime is an AnalyticsService together with the resources it owns
type Runtime struct {
	Service *AnalyticsService
	Source  source.Source
	Queue   queue.Queue

	closers []func() error
}

// Bootstrap opens the configured source, caches and alert queue and wires
// the service over them. Close releases everything that was opened.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *logging.Logger) (rt *Runtime, err error) {
	rt = &Runtime{}
	defer func() {
		if err != nil {
			_ = rt.Close()
			rt = nil
		}
	}()

	rt.Source, err = openSource(ctx, cfg.Source, cfg.Analytics.MaxQueryLimit)
	if err != nil {
		return rt, fmt.Errorf("open source: %w", err)
	}
	if pg, ok := rt.Source.(*source.PostgresSource); ok {
		rt.closers = append(rt.closers, pg.Close)
	}
	logger.Info("Record source ready", "type", cfg.Source.Type)

	rt.Queue, err = queue.New(cfg.Queue)
	if err != nil {
		return rt, fmt.Errorf("open queue: %w", err)
	}
	rt.closers = append(rt.closers, rt.Queue.Close)
	logger.Info("Alert queue ready", "type", cfg.Queue.Type, "subject", queue.Subject(cfg.Queue))

	aggCache, err := cache.New[*aggregation.AdvancedResult]("aggregation", cfg.Cache)
	if err != nil {
		return rt, fmt.Errorf("open aggregation cache: %w", err)
	}
	rt.addCloser(aggCache)

	trendCacheCfg := cfg.Cache
	if cfg.Analytics.TrendCacheTTL > 0 {
		trendCacheCfg.TTL = cfg.Analytics.TrendCacheTTL
	}
	trendCache, err := cache.New[*trend.Result]("trend", trendCacheCfg)
	if err != nil {
		return rt, fmt.Errorf("open trend cache: %w", err)
	}
	rt.addCloser(trendCache)

	deps := Dependencies{
		Source:         rt.Source,
		Publisher:      rt.Queue,
		AggregateCache: aggCache,
		TrendCache:     trendCache,
	}
	if cfg.Analytics.Anonymize {
		deps.Anonymizer = source.NewHashAnonymizer(cfg.Analytics.AnonymizationSalt)
	}
	rt.Service, err = NewAnalyticsService(logger, cfg.Analytics, cfg.Queue, deps)
	return rt, err
}

func openSource(ctx context.Context, cfg config.SourceConfig, maxLimit int) (source.Source, error) {
	src, err := source.New(ctx, cfg.Type, cfg.DSN, maxLimit)
	if err != nil {
		return nil, err
	}

	switch s := src.(type) {
	case *source.MemorySource:
		if cfg.FixturePath == "" {
			return s, nil
		}
		f, err := os.Open(cfg.FixturePath)
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()
		if err := s.LoadJSON(f); err != nil {
			return nil, fmt.Errorf("load fixture %s: %w", cfg.FixturePath, err)
		}
	case *source.PostgresSource:
		if cfg.Migrate {
			if err := s.Migrate(ctx); err != nil {
				_ = s.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
	}
	return src, nil
}

func (r *Runtime) addCloser(c interface{}) {
	switch v := c.(type) {
	case interface{ Close() error }:
		r.closers = append(r.closers, v.Close)
	case interface{ Stop() }:
		r.closers = append(r.closers, func() error { v.Stop(); return nil })
	}
}

// Close releases the resources in reverse order of acquisition
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
