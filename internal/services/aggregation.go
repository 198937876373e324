package services

import (
	"context"
	"fmt"

	"github.com/soltixdb/insight/internal/aggregation"
	"github.com/soltixdb/insight/internal/metrics"
	"github.com/soltixdb/insight/internal/models"
	"github.com/soltixdb/insight/internal/source"
	"github.com/soltixdb/insight/internal/utils"
)

// GetAggregatedData groups and aggregates one data type
func (s *AnalyticsService) GetAggregatedData(ctx context.Context, rule aggregation.Rule) models.Envelope {
	return s.execute(ctx, "aggregate", func(ctx context.Context, meta *models.Metadata) (interface{}, error) {
		res, err := s.aggregator.Aggregate(ctx, rule)
		if err != nil {
			return nil, err
		}
		meta.DataPoints = len(res.Groups)
		meta.SourceDataCount = res.SourceDataCount
		return res, nil
	})
}

// GetAdvancedAggregatedData aggregates several data types with conditional
// and hierarchical grouping. Results with a cache key are served from cache.
func (s *AnalyticsService) GetAdvancedAggregatedData(ctx context.Context, rule aggregation.AdvancedRule) models.Envelope {
	return s.execute(ctx, "aggregate_advanced", func(ctx context.Context, meta *models.Metadata) (interface{}, error) {
		res, cached, err := s.aggregator.AggregateAdvanced(ctx, rule)
		if err != nil {
			return nil, err
		}
		if rule.CacheKey != "" {
			metrics.ObserveCache("aggregation", cached)
		}
		meta.Cached = cached
		meta.DataPoints = res.Summary.TotalGroups
		meta.SourceDataCount = res.Summary.TotalRecords
		return res, nil
	})
}

// GetTimeSeriesAggregation buckets one data type by interval
func (s *AnalyticsService) GetTimeSeriesAggregation(ctx context.Context, rule aggregation.TimeSeriesRule) models.Envelope {
	return s.execute(ctx, "timeseries", func(ctx context.Context, meta *models.Metadata) (interface{}, error) {
		points, err := s.aggregator.TimeSeries(ctx, rule)
		if err != nil {
			return nil, err
		}
		iv, _ := aggregation.ParseInterval(string(rule.Interval))
		meta.Interval = string(iv)
		for _, p := range points {
			meta.SourceDataCount += p.Count
		}

		series, err := aggregation.Downsample(points, rule)
		if err != nil {
			return nil, err
		}
		if len(series) < len(points) {
			meta.Message = fmt.Sprintf("downsampled from %d to %d points", len(points), len(series))
		}
		meta.DataPoints = len(series)
		return series, nil
	})
}

// GetStatsSummary summarizes sessions, interactions and performance samples
func (s *AnalyticsService) GetStatsSummary(ctx context.Context, filter models.Filter) models.Envelope {
	return s.execute(ctx, "stats_summary", func(ctx context.Context, meta *models.Metadata) (interface{}, error) {
		summary, err := s.aggregator.Summary(ctx, filter)
		if err != nil {
			return nil, err
		}
		meta.DataPoints = summary.Overview.TotalRecords
		return summary, nil
	})
}

// GetRecords lists raw records of one data type. Player ids are pseudonymized
// when the service has an anonymizer and the filter does not skip it.
func (s *AnalyticsService) GetRecords(ctx context.Context, dataType string, filter models.Filter) models.Envelope {
	return s.execute(ctx, "records", func(ctx context.Context, meta *models.Metadata) (interface{}, error) {
		if dataType == "" {
			return nil, &aggregation.RuleError{Field: "dataType", Reason: "must not be empty"}
		}

		fetchCtx, cancel := context.WithTimeout(ctx, utils.SourceFetchTimeout)
		defer cancel()

		records, err := s.src.Fetch(fetchCtx, dataType, filter.Normalize(s.maxLimit))
		if err != nil {
			return nil, source.WrapStorage(dataType, err)
		}
		metrics.SourceRecords.WithLabelValues(dataType).Observe(float64(len(records)))

		out := records
		if s.anonymizer != nil && !filter.SkipAnonymization {
			out = s.anonymizer.AnonymizeRecords(records)
			meta.Anonymized = true
		}
		meta.DataPoints = len(out)
		if len(out) == 0 {
			meta.Message = fmt.Sprintf("no %s records match the filter", dataType)
		}
		return out, nil
	})
}
