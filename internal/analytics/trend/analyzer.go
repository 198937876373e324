package trend

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/soltixdb/insight/internal/analytics"
	"github.com/soltixdb/insight/internal/cache"
	"github.com/soltixdb/insight/internal/config"
	"github.com/soltixdb/insight/internal/logging"
	"github.com/soltixdb/insight/internal/metrics"
	"github.com/soltixdb/insight/internal/models"
	"github.com/soltixdb/insight/internal/source"
	"github.com/soltixdb/insight/internal/utils"
)

// Period is the analysis window of a trend
type Period string

const (
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
)

// ParsePeriod accepts weekly/monthly and the short forms week/month
func ParsePeriod(s string) (Period, error) {
	switch s {
	case "weekly", "week":
		return Weekly, nil
	case "monthly", "month":
		return Monthly, nil
	default:
		return "", fmt.Errorf("unknown trend period %q", s)
	}
}

// Window returns the look-back duration
func (p Period) Window() time.Duration {
	if p == Monthly {
		return 30 * 24 * time.Hour
	}
	return 7 * 24 * time.Hour
}

// Noun is used in summaries
func (p Period) Noun() string {
	if p == Monthly {
		return "month"
	}
	return "week"
}

const defaultProjectionHorizon = 3

// Config contains analyzer settings
type Config struct {
	NoiseThreshold    float64
	OutlierZ          float64
	OutlierMinPoints  int
	SeasonalPeriod    int
	WeeklyMinPoints   int
	MonthlyMinPoints  int
	ProjectionHorizon int
	MaxQueryLimit     int
	Now               func() time.Time
}

// DefaultConfig mirrors the analytics defaults
func DefaultConfig() Config {
	return Config{
		NoiseThreshold:    0.01,
		OutlierZ:          2.0,
		OutlierMinPoints:  analytics.MinOutlierPoints,
		SeasonalPeriod:    7,
		WeeklyMinPoints:   analytics.MinWeeklyTrendPoints,
		MonthlyMinPoints:  analytics.MinMonthlyTrendPoints,
		ProjectionHorizon: defaultProjectionHorizon,
		MaxQueryLimit:     utils.MaxQueryLimit,
		Now:               time.Now,
	}
}

// ConfigFrom builds a Config from the analytics section
func ConfigFrom(cfg config.AnalyticsConfig) Config {
	c := DefaultConfig()
	c.NoiseThreshold = cfg.TrendNoiseThreshold
	c.OutlierZ = cfg.OutlierZThreshold
	c.OutlierMinPoints = cfg.OutlierMinPoints
	c.SeasonalPeriod = cfg.SeasonalPeriod
	c.WeeklyMinPoints = cfg.WeeklyMinPoints
	c.MonthlyMinPoints = cfg.MonthlyMinPoints
	c.MaxQueryLimit = cfg.MaxQueryLimit
	return c
}

// OutlierPoint is an outlier tied back to its session
type OutlierPoint struct {
	analytics.Outlier
	Time      time.Time `json:"time"`
	SessionID string    `json:"sessionId,omitempty"`
}

// Result is the outcome of a trend analysis. When Success is false only
// Message, DataPoints and RequiredPoints are meaningful.
type Result struct {
	Success        bool      `json:"success"`
	Metric         Metric    `json:"metric"`
	Period         Period    `json:"period"`
	ReferenceDate  time.Time `json:"referenceDate"`
	Message        string    `json:"message,omitempty"`
	DataPoints     int       `json:"dataPoints"`
	RequiredPoints int       `json:"requiredPoints"`

	Trend      *Trend                    `json:"trend,omitempty"`
	Metrics    map[string]float64        `json:"metrics,omitempty"`
	Statistics *analytics.Description    `json:"statistics,omitempty"`
	Seasonal   *analytics.SeasonalResult `json:"seasonal,omitempty"`
	Outliers   []OutlierPoint            `json:"outliers,omitempty"`
	Projection *analytics.Projection     `json:"projection,omitempty"`
	Series     analytics.TimeSeriesData  `json:"series,omitempty"`
	Summary    string                    `json:"summary,omitempty"`
}

// Analyzer computes trends from session records
type Analyzer struct {
	src    source.Source
	cache  cache.Cache[*Result]
	config Config
	logger *logging.Logger
}

// NewAnalyzer creates an analyzer. A nil cache disables result caching.
func NewAnalyzer(src source.Source, resultCache cache.Cache[*Result], cfg Config) *Analyzer {
	def := DefaultConfig()
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	if cfg.MaxQueryLimit <= 0 {
		cfg.MaxQueryLimit = def.MaxQueryLimit
	}
	if cfg.WeeklyMinPoints <= 0 {
		cfg.WeeklyMinPoints = def.WeeklyMinPoints
	}
	if cfg.MonthlyMinPoints <= 0 {
		cfg.MonthlyMinPoints = def.MonthlyMinPoints
	}
	if cfg.OutlierMinPoints <= 0 {
		cfg.OutlierMinPoints = def.OutlierMinPoints
	}
	if cfg.OutlierZ <= 0 {
		cfg.OutlierZ = def.OutlierZ
	}
	if cfg.SeasonalPeriod <= 0 {
		cfg.SeasonalPeriod = def.SeasonalPeriod
	}
	if cfg.ProjectionHorizon < 0 {
		cfg.ProjectionHorizon = 0
	}

	return &Analyzer{
		src:    src,
		cache:  resultCache,
		config: cfg,
		logger: logging.Global().Component("TrendAnalyzer"),
	}
}

// AnalyzeWeeklyTrend analyzes the 7 days ending at ref (now when zero)
func (a *Analyzer) AnalyzeWeeklyTrend(ctx context.Context, metric string, ref time.Time) (*Result, error) {
	res, _, err := a.Analyze(ctx, metric, Weekly, ref)
	return res, err
}

// AnalyzeMonthlyTrend analyzes the 30 days ending at ref (now when zero)
func (a *Analyzer) AnalyzeMonthlyTrend(ctx context.Context, metric string, ref time.Time) (*Result, error) {
	res, _, err := a.Analyze(ctx, metric, Monthly, ref)
	return res, err
}

// Analyze runs a trend analysis and reports whether the result came from cache
func (a *Analyzer) Analyze(ctx context.Context, metricName string, period Period, ref time.Time) (*Result, bool, error) {
	metric, err := ParseMetric(metricName)
	if err != nil {
		return nil, false, err
	}
	if ref.IsZero() {
		ref = a.config.Now()
	}

	key := cacheKey(metric, period, ref)
	if a.cache != nil {
		cached, ok := a.cache.Get(key)
		metrics.ObserveCache("trend", ok)
		if ok {
			return cached, true, nil
		}
	}

	sessions, err := a.fetchSessions(ctx, ref.Add(-period.Window()), ref)
	if err != nil {
		return nil, false, err
	}

	res := a.analyze(sessions, metric, period, ref)
	if a.cache != nil {
		a.cache.Set(key, res)
	}

	a.logger.Debug("Analyzed trend",
		"metric", metric, "period", period, "data_points", res.DataPoints, "success", res.Success)
	return res, false, nil
}

func cacheKey(metric Metric, period Period, ref time.Time) string {
	return fmt.Sprintf("trend:%s:%s:%d", metric, period, ref.UnixMilli())
}

func (a *Analyzer) fetchSessions(ctx context.Context, start, end time.Time) ([]models.SessionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, utils.SourceFetchTimeout)
	defer cancel()

	filter := models.Between(start, end)
	filter.SortBy = models.FieldTimestamp
	filter.Limit = a.config.MaxQueryLimit

	sessions, err := source.FetchSessions(ctx, a.src, filter)
	if err != nil {
		return nil, err
	}
	metrics.SourceRecords.WithLabelValues(utils.DataTypeSessions).Observe(float64(len(sessions)))

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].StartTime.Before(sessions[j].StartTime)
	})
	return sessions, nil
}

func (a *Analyzer) minPoints(period Period) int {
	if period == Monthly {
		return a.config.MonthlyMinPoints
	}
	return a.config.WeeklyMinPoints
}

func (a *Analyzer) analyze(sessions []models.SessionRecord, metric Metric, period Period, ref time.Time) *Result {
	required := a.minPoints(period)
	res := &Result{
		Metric:         metric,
		Period:         period,
		ReferenceDate:  ref,
		DataPoints:     len(sessions),
		RequiredPoints: required,
	}

	if len(sessions) < required {
		res.Message = analytics.NewInsufficientData(
			fmt.Sprintf("Insufficient data for %s trend analysis: %d sessions, %d required",
				period, len(sessions), required),
			len(sessions), required).Error()
		return res
	}

	series := make(analytics.TimeSeriesData, len(sessions))
	for i, s := range sessions {
		series[i] = analytics.TimeSeriesPoint{Time: s.StartTime, Value: metric.Value(s), Label: s.SessionID}
	}
	values := series.Values()

	t := Fit(values, a.config.NoiseThreshold)
	desc := analytics.Describe(values)
	seasonal := analytics.SeasonalAdjustment(values, a.config.SeasonalPeriod)

	outliers := []OutlierPoint{}
	for _, o := range analytics.DetectOutliersMin(values, a.config.OutlierZ, a.config.OutlierMinPoints) {
		outliers = append(outliers, OutlierPoint{
			Outlier:   o,
			Time:      series[o.Index].Time,
			SessionID: series[o.Index].Label,
		})
	}

	changes := HalfChanges(sessions)

	res.Success = true
	res.Trend = &t
	res.Metrics = changes
	res.Statistics = &desc
	res.Seasonal = &seasonal
	res.Outliers = outliers
	res.Series = series
	res.Summary = Summarize(period, metric, t, changes[improvementKeys[metric]])

	if a.config.ProjectionHorizon > 0 {
		if p, err := analytics.Project(series, a.config.ProjectionHorizon, 0.95); err == nil {
			res.Projection = p
		}
	}
	return res
}
