// Package aggregation filters, groups and aggregates telemetry records.
package aggregation

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/soltixdb/insight/internal/cache"
	"github.com/soltixdb/insight/internal/config"
	"github.com/soltixdb/insight/internal/logging"
	"github.com/soltixdb/insight/internal/metrics"
	"github.com/soltixdb/insight/internal/models"
	"github.com/soltixdb/insight/internal/source"
	"github.com/soltixdb/insight/internal/utils"
)

// Config contains engine settings
type Config struct {
	// Location is used for "date" grouping and time bucket boundaries
	Location *time.Location

	// MaxQueryLimit caps records per fetch
	MaxQueryLimit int

	// Now is the clock used for period presets and windows
	Now func() time.Time
}

// DefaultConfig returns UTC, the global query cap and the wall clock
func DefaultConfig() Config {
	return Config{
		Location:      time.UTC,
		MaxQueryLimit: utils.MaxQueryLimit,
		Now:           time.Now,
	}
}

// ConfigFrom builds a Config from the analytics section
func ConfigFrom(cfg config.AnalyticsConfig) Config {
	c := DefaultConfig()
	c.Location = cfg.Location()
	c.MaxQueryLimit = cfg.MaxQueryLimit
	return c
}

// Engine resolves aggregation rules against a record source
type Engine struct {
	src    source.Source
	cache  cache.Cache[*AdvancedResult]
	config Config
	logger *logging.Logger
}

// NewEngine creates an engine. A nil cache disables advanced result caching.
func NewEngine(src source.Source, resultCache cache.Cache[*AdvancedResult], cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	if cfg.MaxQueryLimit <= 0 {
		cfg.MaxQueryLimit = def.MaxQueryLimit
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}

	return &Engine{
		src:    src,
		cache:  resultCache,
		config: cfg,
		logger: logging.Global().Component("AggregationEngine"),
	}
}

// Location returns the grouping timezone
func (e *Engine) Location() *time.Location {
	return e.config.Location
}

// Group is one aggregated partition
type Group struct {
	Key    map[string]string  `json:"key"`
	Count  int                `json:"count"`
	Values map[string]float64 `json:"values"`
}

// Result is the output of Aggregate
type Result struct {
	Groups          []Group `json:"groups"`
	SourceDataCount int     `json:"sourceDataCount"`
}

// Aggregate runs the rule: fetch, group by composite key, compute each
// field/function pair per group, then truncate to Limit groups.
func (e *Engine) Aggregate(ctx context.Context, rule Rule) (*Result, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	filter := resolveFilter(rule.Filter, rule.Period, rule.TimeWindow, e.config.Now())
	records, err := e.fetch(ctx, rule.DataType, filter)
	if err != nil {
		return nil, err
	}

	result := &Result{Groups: []Group{}, SourceDataCount: len(records)}
	if len(records) == 0 {
		return result, nil
	}

	for _, p := range e.partition(records, rule.GroupBy) {
		result.Groups = append(result.Groups, Group{
			Key:    p.key,
			Count:  len(p.records),
			Values: aggregateFields(p.records, rule.AggregateBy),
		})
	}

	if rule.Limit > 0 && len(result.Groups) > rule.Limit {
		result.Groups = result.Groups[:rule.Limit]
	}

	e.logger.Debug("Aggregated records",
		"data_type", rule.DataType, "records", len(records), "groups", len(result.Groups))
	return result, nil
}

func (e *Engine) fetch(ctx context.Context, dataType string, filter models.Filter) ([]models.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, utils.SourceFetchTimeout)
	defer cancel()

	records, err := source.FetchLatest(ctx, e.src, dataType, filter.CapLimit(e.config.MaxQueryLimit))
	if err != nil {
		return nil, source.WrapStorage(dataType, err)
	}
	metrics.SourceRecords.WithLabelValues(dataType).Observe(float64(len(records)))
	return records, nil
}

type partition struct {
	id      string
	key     map[string]string
	records []models.Record
}

// partition splits records by the composite key of fields, ordered by key
func (e *Engine) partition(records []models.Record, fields []string) []*partition {
	byID := make(map[string]*partition)
	for _, r := range records {
		key := make(map[string]string, len(fields))
		parts := make([]string, len(fields))
		for i, f := range fields {
			v := e.groupValue(r, f)
			key[f] = v
			parts[i] = v
		}
		id := strings.Join(parts, "|")
		if len(fields) == 0 {
			id = "all"
		}

		p, ok := byID[id]
		if !ok {
			p = &partition{id: id, key: key}
			byID[id] = p
		}
		p.records = append(p.records, r)
	}

	out := make([]*partition, 0, len(byID))
	for _, p := range byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// groupValue renders a group-by field; "date" truncates the timestamp to a
// calendar day in the engine's timezone
func (e *Engine) groupValue(r models.Record, field string) string {
	if field == GroupByDate {
		if _, present := r[GroupByDate]; !present {
			ts, ok := r.Timestamp()
			if !ok {
				return UnknownGroup
			}
			return ts.In(e.config.Location).Format("2006-01-02")
		}
	}
	v := r.String(field)
	if v == "" {
		return UnknownGroup
	}
	return v
}

func aggregateFields(records []models.Record, aggregateBy map[string][]Function) map[string]float64 {
	values := make(map[string]float64)
	for field, fns := range aggregateBy {
		fs := NewFieldStats()
		for _, r := range records {
			fs.Add(r[field])
		}
		for _, fn := range fns {
			values[ResultField(field, fn)] = fs.Value(fn)
		}
	}
	return values
}
