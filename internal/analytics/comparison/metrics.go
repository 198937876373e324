// Package comparison compares a player's performance against earlier
// periods, against an anonymized benchmark cohort and across stages, and
// turns the weak spots it finds into improvement plans.
package comparison

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/soltixdb/insight/internal/analytics/trend"
	"github.com/soltixdb/insight/internal/models"
	"github.com/soltixdb/insight/internal/utils"
)

// Period is a comparison window
type Period string

const (
	Week    Period = "week"
	Month   Period = "month"
	Quarter Period = "quarter"
)

// Window returns the period length
func (p Period) Window() time.Duration {
	switch p {
	case Month:
		return 30 * 24 * time.Hour
	case Quarter:
		return 90 * 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// ParsePeriod accepts week/month/quarter and their -ly forms
func ParsePeriod(s string) (Period, error) {
	switch s {
	case "week", "weekly":
		return Week, nil
	case "month", "monthly":
		return Month, nil
	case "quarter", "quarterly":
		return Quarter, nil
	default:
		return "", fmt.Errorf("unknown comparison period %q", s)
	}
}

// DefaultMetrics are compared when the caller names none
func DefaultMetrics() []trend.Metric {
	return []trend.Metric{trend.MetricScore, trend.MetricAccuracy, trend.MetricPlayTime}
}

// PerformanceMetrics summarizes a set of sessions
type PerformanceMetrics struct {
	SessionCount    int     `json:"sessionCount"`
	AverageScore    float64 `json:"averageScore"`
	AverageAccuracy float64 `json:"averageAccuracy"`
	AveragePlayTime float64 `json:"averagePlayTime"` // seconds
	AverageCombo    float64 `json:"averageCombo"`
	CompletionRate  float64 `json:"completionRate"`
	MaxCombo        int     `json:"maxCombo"`
}

// CalculatePerformanceMetrics reduces sessions to their averages. Accuracy is
// pooled over all bubbles and play time only averages sessions with a known
// length. Empty input yields zero metrics.
func CalculatePerformanceMetrics(sessions []models.SessionRecord) PerformanceMetrics {
	m := PerformanceMetrics{SessionCount: len(sessions)}
	if len(sessions) == 0 {
		return m
	}

	var score, combo, playTime float64
	var popped, bubbles, timed, completed int
	for _, s := range sessions {
		score += s.FinalScore
		combo += float64(s.MaxCombo)
		popped += s.BubblesPopped
		bubbles += s.BubblesPopped + s.BubblesMissed
		if d := s.PlayTime().Seconds(); d > 0 {
			playTime += d
			timed++
		}
		if !s.Quit() {
			completed++
		}
		if s.MaxCombo > m.MaxCombo {
			m.MaxCombo = s.MaxCombo
		}
	}

	n := float64(len(sessions))
	m.AverageScore = score / n
	m.AverageCombo = combo / n
	m.CompletionRate = float64(completed) / n
	m.AverageAccuracy = utils.SafeDiv(float64(popped), float64(bubbles))
	m.AveragePlayTime = utils.SafeDiv(playTime, float64(timed))
	return m
}

// Value returns the figure compared for metric
func (m PerformanceMetrics) Value(metric trend.Metric) float64 {
	switch metric {
	case trend.MetricScore:
		return m.AverageScore
	case trend.MetricAccuracy:
		return m.AverageAccuracy
	case trend.MetricPlayTime:
		return m.AveragePlayTime
	case trend.MetricCombo:
		return m.AverageCombo
	case trend.MetricCompletion:
		return m.CompletionRate
	default:
		return 0
	}
}

type displayUnit struct {
	suffix string
	scale  float64
}

var units = map[trend.Metric]displayUnit{
	trend.MetricScore:      {suffix: "pts", scale: 1},
	trend.MetricAccuracy:   {suffix: "%", scale: 100},
	trend.MetricPlayTime:   {suffix: "s", scale: 1},
	trend.MetricCombo:      {suffix: "x", scale: 1},
	trend.MetricCompletion: {suffix: "%", scale: 100},
}

func scaled(v float64, metric trend.Metric) string {
	u, ok := units[metric]
	if !ok {
		u = displayUnit{scale: 1}
	}
	x := utils.Round(v*u.scale, 1)
	if x == 0 {
		x = 0 // drop the sign of -0
	}
	return strconv.FormatFloat(x, 'f', -1, 64) + u.suffix
}

// FormatValue renders a metric value with its unit, e.g. "1200pts" or "85%"
func FormatValue(v float64, metric trend.Metric) string {
	return scaled(v, metric)
}

// FormatChange renders an absolute and relative change, e.g. "+100pts (+10.0%)"
func FormatChange(change, changePercent float64, metric trend.Metric) string {
	value := scaled(change, metric)
	if !strings.HasPrefix(value, "-") {
		value = "+" + value
	}
	pct := utils.Round(changePercent, 1)
	if pct == 0 {
		pct = 0
	}
	return fmt.Sprintf("%s (%+.1f%%)", value, pct)
}
