// Package trend fits weekly and monthly trends over per-session metrics.
package trend

import (
	"fmt"
	"math"
	"strings"

	"github.com/soltixdb/insight/internal/aggregation"
	"github.com/soltixdb/insight/internal/analytics"
	"github.com/soltixdb/insight/internal/models"
)

// Metric is a per-session quantity a trend can be computed over
type Metric string

// Supported metrics
const (
	MetricScore      Metric = "score"
	MetricAccuracy   Metric = "accuracy"
	MetricPlayTime   Metric = "playTime"
	MetricCombo      Metric = "combo"
	MetricCompletion Metric = "completion"
)

var metricLabels = map[Metric]string{
	MetricScore:      "score",
	MetricAccuracy:   "accuracy",
	MetricPlayTime:   "play time",
	MetricCombo:      "max combo",
	MetricCompletion: "completion rate",
}

// improvement keys reported in Result.Metrics, one per metric
var improvementKeys = map[Metric]string{
	MetricScore:      "scoreImprovement",
	MetricAccuracy:   "accuracyImprovement",
	MetricPlayTime:   "playTimeChange",
	MetricCombo:      "comboImprovement",
	MetricCompletion: "completionRateChange",
}

// Metrics lists the supported metrics in display order
func Metrics() []Metric {
	return []Metric{MetricScore, MetricAccuracy, MetricPlayTime, MetricCombo, MetricCompletion}
}

// ParseMetric validates a metric name
func ParseMetric(s string) (Metric, error) {
	m := Metric(s)
	if _, ok := metricLabels[m]; !ok {
		return "", &aggregation.RuleError{Field: "metric", Reason: fmt.Sprintf("unknown metric %q", s)}
	}
	return m, nil
}

// Label returns a human readable name
func (m Metric) Label() string {
	if l, ok := metricLabels[m]; ok {
		return l
	}
	return string(m)
}

// Value extracts the metric from a session. Play time is in seconds and
// completion is 1 or 0.
func (m Metric) Value(s models.SessionRecord) float64 {
	switch m {
	case MetricScore:
		return s.FinalScore
	case MetricAccuracy:
		return s.Accuracy()
	case MetricPlayTime:
		return s.PlayTime().Seconds()
	case MetricCombo:
		return float64(s.MaxCombo)
	case MetricCompletion:
		if s.Quit() {
			return 0
		}
		return 1
	default:
		return 0
	}
}

// Direction of a fitted trend
type Direction string

const (
	Increasing Direction = "increasing"
	Decreasing Direction = "decreasing"
	Stable     Direction = "stable"
)

// Trend describes a least squares fit over a series
type Trend struct {
	Direction  Direction `json:"direction"`
	Strength   float64   `json:"strength"`
	Confidence float64   `json:"confidence"`
	Slope      float64   `json:"slope"`
	Intercept  float64   `json:"intercept"`
	RSquared   float64   `json:"rSquared"`
}

// Fit regresses values on their index and classifies the slope relative to
// the series mean. A slope within noise*|mean| of zero is stable.
func Fit(values []float64, noise float64) Trend {
	if len(values) < 2 {
		return Trend{Direction: Stable}
	}

	reg := analytics.LinearRegression(analytics.Index(len(values)), values)
	mean := math.Abs(analytics.Mean(values))

	relative := reg.Slope
	if mean > 0 {
		relative = reg.Slope / mean
	}

	t := Trend{
		Direction:  Stable,
		Slope:      reg.Slope,
		Intercept:  reg.Intercept,
		RSquared:   reg.RSquared,
		Confidence: math.Sqrt(reg.RSquared),
	}
	switch {
	case relative > noise:
		t.Direction = Increasing
	case relative < -noise:
		t.Direction = Decreasing
	}

	switch {
	case mean > 0:
		t.Strength = math.Min(1, math.Abs(reg.Slope)*float64(len(values))/mean)
	case reg.Slope != 0:
		t.Strength = 1
	}
	return t
}

// HalfChanges compares the first and second half of the sessions for every
// metric, as percent change of the per-half mean.
func HalfChanges(sessions []models.SessionRecord) map[string]float64 {
	out := make(map[string]float64, len(improvementKeys))
	half := len(sessions) / 2
	for _, m := range Metrics() {
		if half == 0 {
			out[improvementKeys[m]] = 0
			continue
		}
		first := meanOf(sessions[:half], m)
		second := meanOf(sessions[half:], m)
		out[improvementKeys[m]] = analytics.PercentChange(first, second)
	}
	return out
}

func meanOf(sessions []models.SessionRecord, m Metric) float64 {
	if len(sessions) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range sessions {
		sum += m.Value(s)
	}
	return sum / float64(len(sessions))
}

// Summarize renders a sentence describing the trend
func Summarize(period Period, metric Metric, t Trend, change float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Over the past %s, %s ", period.Noun(), metric.Label())

	switch {
	case change > 0:
		fmt.Fprintf(&b, "improved by %.1f%% between the first and second half of the period", change)
	case change < 0:
		fmt.Fprintf(&b, "declined by %.1f%% between the first and second half of the period", -change)
	default:
		b.WriteString("was unchanged between the first and second half of the period")
	}

	// the regression over the whole series can disagree with the halves
	if t.Direction == Stable {
		b.WriteString(", with no clear trend")
	} else {
		fmt.Fprintf(&b, ", with a %s %s trend", strengthWord(t.Strength), t.Direction)
	}
	fmt.Fprintf(&b, " and %s confidence.", confidenceWord(t.Confidence))
	return b.String()
}

func strengthWord(s float64) string {
	switch {
	case s >= 0.7:
		return "strong"
	case s >= 0.3:
		return "moderate"
	default:
		return "weak"
	}
}

func confidenceWord(c float64) string {
	switch {
	case c >= 0.8:
		return "high"
	case c >= 0.5:
		return "moderate"
	default:
		return "low"
	}
}
