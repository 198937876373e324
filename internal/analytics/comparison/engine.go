package comparison

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/soltixdb/insight/internal/analytics"
	"github.com/soltixdb/insight/internal/analytics/trend"
	"github.com/soltixdb/insight/internal/config"
	"github.com/soltixdb/insight/internal/logging"
	"github.com/soltixdb/insight/internal/metrics"
	"github.com/soltixdb/insight/internal/models"
	"github.com/soltixdb/insight/internal/source"
	"github.com/soltixdb/insight/internal/utils"
)

// Messages of the insufficient data errors
const (
	MsgCurrentInsufficient   = "Current performance data is insufficient"
	MsgBenchmarkInsufficient = "Benchmark data is insufficient"
)

// Config contains engine settings
type Config struct {
	StabilityThreshold float64
	Salt               string
	BenchmarkPeriod    Period
	MaxQueryLimit      int
	Now                func() time.Time
}

// DefaultConfig returns the engine defaults
func DefaultConfig() Config {
	return Config{
		StabilityThreshold: DefaultStabilityThreshold,
		BenchmarkPeriod:    Quarter,
		MaxQueryLimit:      utils.MaxQueryLimit,
		Now:                time.Now,
	}
}

// ConfigFrom builds a Config from the analytics section
func ConfigFrom(cfg config.AnalyticsConfig) Config {
	c := DefaultConfig()
	c.StabilityThreshold = cfg.StabilityThreshold
	c.Salt = cfg.AnonymizationSalt
	c.MaxQueryLimit = cfg.MaxQueryLimit
	return c
}

// Engine runs comparisons over session records
type Engine struct {
	src    source.Source
	config Config
	logger *logging.Logger
}

// NewEngine creates a comparison engine
func NewEngine(src source.Source, cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.StabilityThreshold <= 0 {
		cfg.StabilityThreshold = def.StabilityThreshold
	}
	if cfg.BenchmarkPeriod == "" {
		cfg.BenchmarkPeriod = def.BenchmarkPeriod
	}
	if cfg.MaxQueryLimit <= 0 {
		cfg.MaxQueryLimit = def.MaxQueryLimit
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	return &Engine{
		src:    src,
		config: cfg,
		logger: logging.Global().Component("ComparisonEngine"),
	}
}

// Options select what is compared. Zero values fall back to defaults.
type Options struct {
	Periods  []Period       `json:"periods,omitempty"`
	Period   Period         `json:"period,omitempty"`
	Metrics  []trend.Metric `json:"metrics,omitempty"`
	PlayerID string         `json:"playerId,omitempty"`
	Now      time.Time      `json:"now,omitzero"`

	// IncludeDifficultyAdjustment adds difficulty adjusted figures to stage statistics
	IncludeDifficultyAdjustment bool `json:"includeDifficultyAdjustment,omitempty"`
}

func (e *Engine) normalize(opts Options, defaultPeriod Period) Options {
	if opts.Now.IsZero() {
		opts.Now = e.config.Now()
	}
	if len(opts.Metrics) == 0 {
		opts.Metrics = DefaultMetrics()
	}
	if opts.Period == "" {
		opts.Period = defaultPeriod
	}
	if len(opts.Periods) == 0 {
		opts.Periods = []Period{Week, Month}
	}
	return opts
}

// PastResult compares the current window with the one before it, per period
type PastResult struct {
	Success     bool                  `json:"success"`
	Metrics     []trend.Metric        `json:"metrics"`
	Periods     []Period              `json:"periods"`
	Current     PerformanceMetrics    `json:"current"`
	Comparisons map[Period]Comparison `json:"comparisons"`
	Summary     Summary               `json:"summary"`
	Analysis    DetailedAnalysis      `json:"analysis"`
}

// CompareWithPastData compares each period's current window [now-p, now]
// with the window before it. A period without past sessions is reported
// unavailable; no current sessions at all is an insufficient data error.
func (e *Engine) CompareWithPastData(ctx context.Context, opts Options) (*PastResult, error) {
	opts = e.normalize(opts, Week)

	longest := opts.Periods[0]
	shortest := opts.Periods[0]
	for _, p := range opts.Periods {
		if p.Window() > longest.Window() {
			longest = p
		}
		if p.Window() < shortest.Window() {
			shortest = p
		}
	}

	sessions, err := e.fetchSessions(ctx, opts.Now.Add(-2*longest.Window()), opts.Now, opts.PlayerID)
	if err != nil {
		return nil, err
	}

	res := &PastResult{
		Success:     true,
		Metrics:     opts.Metrics,
		Periods:     opts.Periods,
		Comparisons: make(map[Period]Comparison, len(opts.Periods)),
	}

	anyCurrent := false
	for _, p := range opts.Periods {
		current, past := split(sessions, opts.Now, p.Window())
		if len(current) > 0 {
			anyCurrent = true
		}
		if p == shortest {
			res.Current = CalculatePerformanceMetrics(current)
		}

		switch {
		case len(current) == 0:
			res.Comparisons[p] = Comparison{Message: "No sessions in the current " + string(p)}
		case len(past) == 0:
			res.Comparisons[p] = Comparison{Message: "No sessions in the previous " + string(p)}
		default:
			res.Comparisons[p] = CalculateComparison(
				CalculatePerformanceMetrics(current), CalculatePerformanceMetrics(past),
				opts.Metrics, e.config.StabilityThreshold)
		}
	}
	if !anyCurrent {
		return nil, analytics.NewInsufficientData(MsgCurrentInsufficient, 0, 1)
	}

	res.Summary = Summarize(res.Comparisons)
	res.Analysis = Analyze(opts.Periods, res.Comparisons, opts.Metrics)

	e.logger.Debug("Compared with past data",
		"periods", len(opts.Periods), "sessions", len(sessions), "overall", res.Summary.Overall)
	return res, nil
}

// BenchmarkResult compares the player with the other players
type BenchmarkResult struct {
	Success    bool                `json:"success"`
	Period     Period              `json:"period"`
	PlayerID   string              `json:"playerId,omitempty"`
	Current    PerformanceMetrics  `json:"current"`
	Benchmark  Benchmark           `json:"benchmark"`
	Comparison BenchmarkComparison `json:"comparison"`
	Summary    Summary             `json:"summary"`
	Analysis   BenchmarkAnalysis   `json:"analysis"`
}

// CompareWithBenchmark compares the current window (opts.Period, a week by
// default) with every other player's sessions over the benchmark period.
// Without opts.PlayerID the players seen in the current window form the
// current player. Cohort ids are pseudonymized before leaving the engine.
func (e *Engine) CompareWithBenchmark(ctx context.Context, opts Options) (*BenchmarkResult, error) {
	opts = e.normalize(opts, Week)

	window := e.config.BenchmarkPeriod.Window()
	if opts.Period.Window() > window {
		window = opts.Period.Window()
	}
	sessions, err := e.fetchSessions(ctx, opts.Now.Add(-window), opts.Now, "")
	if err != nil {
		return nil, err
	}

	currentStart := opts.Now.Add(-opts.Period.Window())
	self := make(map[string]bool)
	if opts.PlayerID != "" {
		self[opts.PlayerID] = true
	}

	var current []models.SessionRecord
	for _, s := range sessions {
		if !s.StartTime.After(currentStart) {
			continue
		}
		if opts.PlayerID == "" || s.PlayerID == opts.PlayerID {
			current = append(current, s)
			if s.PlayerID != "" {
				self[s.PlayerID] = true
			}
		}
	}
	if len(current) == 0 {
		return nil, analytics.NewInsufficientData(MsgCurrentInsufficient, 0, 1)
	}

	cohort := make(map[string][]models.SessionRecord)
	for _, s := range sessions {
		if s.PlayerID == "" || self[s.PlayerID] {
			continue
		}
		id := AnonymizePlayerID(e.config.Salt, s.PlayerID)
		cohort[id] = append(cohort[id], s)
	}
	if len(cohort) < analytics.MinBenchmarkPlayers {
		return nil, analytics.NewInsufficientData(MsgBenchmarkInsufficient, len(cohort), analytics.MinBenchmarkPlayers)
	}

	players := make([]PlayerMetrics, 0, len(cohort))
	for id, ss := range cohort {
		players = append(players, PlayerMetrics{PlayerID: id, PerformanceMetrics: CalculatePerformanceMetrics(ss)})
	}
	sort.Slice(players, func(i, j int) bool { return players[i].PlayerID < players[j].PlayerID })

	res := &BenchmarkResult{
		Success:   true,
		Period:    opts.Period,
		PlayerID:  AnonymizePlayerID(e.config.Salt, opts.PlayerID),
		Current:   CalculatePerformanceMetrics(current),
		Benchmark: CalculateBenchmarkMetrics(players, opts.Metrics),
	}
	res.Comparison = CalculateBenchmarkComparison(res.Current, res.Benchmark, opts.Metrics)
	res.Summary = SummarizeBenchmark(res.Comparison)
	res.Analysis = AnalyzeBenchmark(res.Comparison, opts.Metrics)

	e.logger.Debug("Compared with benchmark",
		"players", len(players), "quality", res.Benchmark.DataQuality.Quality, "overall", res.Summary.Overall)
	return res, nil
}

// CompareByStage compares the stages played in the current window (a month
// by default) and each stage's figures with the previous window
func (e *Engine) CompareByStage(ctx context.Context, opts Options) (*StageResult, error) {
	opts = e.normalize(opts, Month)

	sessions, err := e.fetchSessions(ctx, opts.Now.Add(-2*opts.Period.Window()), opts.Now, opts.PlayerID)
	if err != nil {
		return nil, err
	}
	current, past := split(sessions, opts.Now, opts.Period.Window())

	res, err := CompareStagePerformance(GroupByStage(current), GroupByStage(past),
		opts.Metrics, e.config.StabilityThreshold, opts.IncludeDifficultyAdjustment)
	if err != nil {
		return nil, err
	}
	res.Period = opts.Period
	return res, nil
}

// split partitions sessions into (now-window, now] and the rest
func split(sessions []models.SessionRecord, now time.Time, window time.Duration) (current, past []models.SessionRecord) {
	boundary := now.Add(-window)
	floor := boundary.Add(-window)
	for _, s := range sessions {
		switch {
		case s.StartTime.After(boundary):
			current = append(current, s)
		case !s.StartTime.Before(floor):
			past = append(past, s)
		}
	}
	return current, past
}

func (e *Engine) fetchSessions(ctx context.Context, start, end time.Time, playerID string) ([]models.SessionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, utils.SourceFetchTimeout)
	defer cancel()

	filter := models.Between(start, end)
	filter.SortBy = models.FieldTimestamp
	filter.Limit = e.config.MaxQueryLimit
	if playerID != "" {
		filter.Custom = map[string]interface{}{models.FieldPlayerID: playerID}
	}

	sessions, err := source.FetchSessions(ctx, e.src, filter)
	if err != nil {
		return nil, err
	}
	metrics.SourceRecords.WithLabelValues(utils.DataTypeSessions).Observe(float64(len(sessions)))

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].StartTime.Before(sessions[j].StartTime)
	})
	return sessions, nil
}

// SuggestImprovements draws suggestions from the historical and benchmark
// comparisons. Either comparison may lack data; only storage failures and
// the absence of any current sessions are returned as errors.
func (e *Engine) SuggestImprovements(ctx context.Context, opts Options, improve ImprovementOptions) (*Suggestions, error) {
	past, err := e.CompareWithPastData(ctx, opts)
	if err != nil {
		return nil, err
	}

	in := ImprovementInput{Past: past}
	bench, err := e.CompareWithBenchmark(ctx, opts)
	switch {
	case err == nil:
		in.Benchmark = bench
	case errors.Is(err, analytics.ErrInsufficientData):
		e.logger.Debug("Benchmark skipped for suggestions", "reason", err.Error())
	default:
		return nil, err
	}

	s := GenerateImprovementSuggestions(in, improve)
	return &s, nil
}

// ImprovementPlan builds a personalized plan for opts.PlayerID from the
// player's sessions over the benchmark period and the historical comparison
func (e *Engine) ImprovementPlan(ctx context.Context, opts Options, improve ImprovementOptions) (*Plan, error) {
	opts = e.normalize(opts, Week)

	sessions, err := e.fetchSessions(ctx, opts.Now.Add(-e.config.BenchmarkPeriod.Window()), opts.Now, opts.PlayerID)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, analytics.NewInsufficientData(MsgCurrentInsufficient, 0, 1)
	}

	past, err := e.CompareWithPastData(ctx, opts)
	if err != nil && !errors.Is(err, analytics.ErrInsufficientData) {
		return nil, err
	}

	plan := GeneratePersonalizedImprovementPlan(PlayerDataFrom(sessions), AnalysisFrom(past), improve, opts.Now)
	return &plan, nil
}
