package anomaly

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/soltixdb/insight/internal/config"
	"github.com/soltixdb/insight/internal/logging"
	"github.com/soltixdb/insight/internal/metrics"
	"github.com/soltixdb/insight/internal/models"
	"github.com/soltixdb/insight/internal/queue"
	"github.com/soltixdb/insight/internal/source"
	"github.com/soltixdb/insight/internal/utils"
)

// DefaultWindow is analyzed when the caller gives none
const DefaultWindow = 7 * 24 * time.Hour

// Window bounds the analyzed records; zero fields default to [now-7d, now]
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Config contains detector settings
type Config struct {
	Thresholds      Thresholds
	MaxAlertHistory int
	MaxQueryLimit   int

	// Rules restricts evaluation to the named rules; empty means all registered
	Rules []Type

	// Subject receives published alert batches
	Subject string

	Now func() time.Time
}

// DefaultConfig uses default thresholds and all rules
func DefaultConfig() Config {
	return Config{
		Thresholds:      DefaultThresholds(),
		MaxAlertHistory: DefaultMaxAlertHistory,
		MaxQueryLimit:   utils.MaxQueryLimit,
		Subject:         queue.DefaultSubject,
		Now:             time.Now,
	}
}

// ConfigFrom builds a Config from the analytics and queue sections
func ConfigFrom(a config.AnalyticsConfig, q config.QueueConfig) Config {
	c := DefaultConfig()
	c.Thresholds = ThresholdsFrom(a.Anomaly)
	c.MaxAlertHistory = a.Anomaly.MaxAlertHistory
	c.MaxQueryLimit = a.MaxQueryLimit
	c.Subject = queue.Subject(q)
	return c
}

// Report is the outcome of one detection run
type Report struct {
	Success           bool             `json:"success"`
	Window            Window           `json:"window"`
	Anomalies         []Anomaly        `json:"anomalies"`
	Summary           string           `json:"summary"`
	SeverityBreakdown map[Severity]int `json:"severityBreakdown"`
	Recommendations   []string         `json:"recommendations"`
	RulesEvaluated    []Type           `json:"rulesEvaluated"`
	DataPoints        map[string]int   `json:"dataPoints"`
}

// AlertBatch is the payload published for a run with anomalies
type AlertBatch struct {
	BatchID    string    `json:"batchId"`
	Window     Window    `json:"window"`
	DetectedAt time.Time `json:"detectedAt"`
	Summary    string    `json:"summary"`
	Anomalies  []Anomaly `json:"anomalies"`
}

// Detector runs the registered rules over a window of telemetry. Thresholds
// and the alert history are owned per instance.
type Detector struct {
	src       source.Source
	publisher queue.Publisher
	history   *AlertHistory
	config    Config
	logger    *logging.Logger

	mu         sync.RWMutex
	thresholds Thresholds
}

// NewDetector creates a detector. A nil publisher disables alert publishing.
func NewDetector(src source.Source, publisher queue.Publisher, cfg Config) (*Detector, error) {
	def := DefaultConfig()
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	if cfg.MaxQueryLimit <= 0 {
		cfg.MaxQueryLimit = def.MaxQueryLimit
	}
	if cfg.Subject == "" {
		cfg.Subject = def.Subject
	}
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = def.Thresholds
	}
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid anomaly thresholds: %w", err)
	}
	for _, name := range cfg.Rules {
		if _, err := GetRule(name); err != nil {
			return nil, err
		}
	}

	return &Detector{
		src:        src,
		publisher:  publisher,
		history:    NewAlertHistory(cfg.MaxAlertHistory),
		config:     cfg,
		logger:     logging.Global().Component("AnomalyDetector"),
		thresholds: cfg.Thresholds,
	}, nil
}

// Thresholds returns the current thresholds
func (d *Detector) Thresholds() Thresholds {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.thresholds
}

// UpdateThresholds merges a partial update; an invalid result is rejected and
// the previous thresholds are kept
func (d *Detector) UpdateThresholds(u ThresholdUpdate) (Thresholds, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := u.Apply(d.thresholds)
	if err := next.Validate(); err != nil {
		return d.thresholds, err
	}
	d.thresholds = next
	d.logger.Info("Anomaly thresholds updated", "thresholds", next)
	return next, nil
}

// History returns the retained alerts, oldest first
func (d *Detector) History() []Alert {
	return d.history.History()
}

// AlertHistory exposes the ring
func (d *Detector) AlertHistory() *AlertHistory {
	return d.history
}

func (d *Detector) rules() []Rule {
	names := d.config.Rules
	if len(names) == 0 {
		names = ListRules()
	}
	out := make([]Rule, 0, len(names))
	for _, n := range names {
		if r, err := GetRule(n); err == nil {
			out = append(out, r)
		}
	}
	return out
}

// DetectAnomalies evaluates every rule over the window. A nil window analyzes
// the last seven days.
func (d *Detector) DetectAnomalies(ctx context.Context, window *Window) (*Report, error) {
	w := d.resolveWindow(window)

	in, err := d.load(ctx, w)
	if err != nil {
		return nil, err
	}

	th := d.Thresholds()
	rules := d.rules()
	anomalies := []Anomaly{}
	evaluated := make([]Type, 0, len(rules))
	for _, r := range rules {
		anomalies = append(anomalies, r.Evaluate(in, th)...)
		evaluated = append(evaluated, r.Name())
	}
	SortBySeverity(anomalies)

	report := &Report{
		Success:           true,
		Window:            w,
		Anomalies:         anomalies,
		Summary:           Summary(anomalies),
		SeverityBreakdown: SeverityBreakdown(anomalies),
		Recommendations:   Recommendations(anomalies),
		RulesEvaluated:    evaluated,
		DataPoints: map[string]int{
			utils.DataTypeSessions:     len(in.Sessions),
			utils.DataTypeInteractions: len(in.Interactions),
			utils.DataTypePerformance:  len(in.Performance),
		},
	}

	d.record(anomalies)
	d.publish(ctx, report)

	d.logger.Debug("Anomaly detection finished",
		"anomalies", len(anomalies), "sessions", len(in.Sessions), "window_start", w.Start, "window_end", w.End)
	return report, nil
}

func (d *Detector) resolveWindow(window *Window) Window {
	var w Window
	if window != nil {
		w = *window
	}
	if w.End.IsZero() {
		w.End = d.config.Now()
	}
	if w.Start.IsZero() {
		w.Start = w.End.Add(-DefaultWindow)
	}
	return w
}

func (d *Detector) load(ctx context.Context, w Window) (Input, error) {
	ctx, cancel := context.WithTimeout(ctx, utils.SourceFetchTimeout)
	defer cancel()

	filter := models.Between(w.Start, w.End)
	filter.SortBy = models.FieldTimestamp
	filter.Limit = d.config.MaxQueryLimit

	in := Input{Now: d.config.Now()}
	var err error
	if in.Sessions, err = source.FetchSessions(ctx, d.src, filter); err != nil {
		return in, err
	}
	if in.Interactions, err = source.FetchInteractions(ctx, d.src, filter); err != nil {
		return in, err
	}
	if in.Performance, err = source.FetchPerformance(ctx, d.src, filter); err != nil {
		return in, err
	}

	sort.SliceStable(in.Sessions, func(i, j int) bool {
		return in.Sessions[i].StartTime.Before(in.Sessions[j].StartTime)
	})
	return in, nil
}

func (d *Detector) record(anomalies []Anomaly) {
	if len(anomalies) == 0 {
		return
	}
	alerts := make([]Alert, len(anomalies))
	for i, a := range anomalies {
		alerts[i] = AlertOf(a)
		metrics.AnomaliesDetected.WithLabelValues(string(a.Type), string(a.Severity)).Inc()
	}
	d.history.Append(alerts...)
	metrics.AlertHistorySize.Set(float64(d.history.Len()))
}

// publish hands the batch to the queue; failures are logged and do not fail detection
func (d *Detector) publish(ctx context.Context, r *Report) {
	if d.publisher == nil || len(r.Anomalies) == 0 {
		return
	}

	payload, err := json.Marshal(AlertBatch{
		BatchID:    r.Anomalies[0].ID,
		Window:     r.Window,
		DetectedAt: r.Anomalies[0].DetectedAt,
		Summary:    r.Summary,
		Anomalies:  r.Anomalies,
	})
	if err != nil {
		d.logger.Error("Failed to encode alert batch", "error", err)
		metrics.AlertsPublished.WithLabelValues("error").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(ctx, utils.PublishTimeout)
	defer cancel()
	if err := d.publisher.Publish(ctx, d.config.Subject, payload); err != nil {
		d.logger.Warn("Failed to publish alert batch", "subject", d.config.Subject, "error", err)
		metrics.AlertsPublished.WithLabelValues("error").Inc()
		return
	}
	metrics.AlertsPublished.WithLabelValues("ok").Inc()
}
