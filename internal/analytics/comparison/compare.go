package comparison

import (
	"fmt"

	"github.com/soltixdb/insight/internal/analytics"
	"github.com/soltixdb/insight/internal/analytics/trend"
)

// DefaultStabilityThreshold is the percent change below which a metric is stable
const DefaultStabilityThreshold = 5.0

// Change classifies a metric between two periods
type Change string

const (
	Improved Change = "improved"
	Declined Change = "declined"
	Steady   Change = "stable"
)

// MetricComparison is one metric compared across two periods
type MetricComparison struct {
	Metric        trend.Metric `json:"metric"`
	Label         string       `json:"label"`
	Current       float64      `json:"current"`
	Past          float64      `json:"past"`
	Change        float64      `json:"change"`
	ChangePercent float64      `json:"changePercent"`
	Trend         Change       `json:"trend"`
	DisplayChange string       `json:"displayChange"`
}

// Comparison is the outcome of comparing two periods
type Comparison struct {
	Available    bool                              `json:"available"`
	Message      string                            `json:"message,omitempty"`
	Current      *PerformanceMetrics               `json:"current,omitempty"`
	Past         *PerformanceMetrics               `json:"past,omitempty"`
	Metrics      map[trend.Metric]MetricComparison `json:"metrics,omitempty"`
	Improvements int                               `json:"improvements"`
	Declines     int                               `json:"declines"`
	Stable       int                               `json:"stable"`
}

// CalculateComparison compares current against past for each metric. Higher
// values are better for every metric; a percent change within threshold is
// stable. A non-positive threshold uses DefaultStabilityThreshold.
func CalculateComparison(current, past PerformanceMetrics, metrics []trend.Metric, threshold float64) Comparison {
	if threshold <= 0 {
		threshold = DefaultStabilityThreshold
	}

	c := Comparison{
		Available: true,
		Current:   &current,
		Past:      &past,
		Metrics:   make(map[trend.Metric]MetricComparison, len(metrics)),
	}
	for _, metric := range metrics {
		cur, prev := current.Value(metric), past.Value(metric)
		change := cur - prev
		pct := analytics.PercentChange(prev, cur)

		mc := MetricComparison{
			Metric:        metric,
			Label:         metric.Label(),
			Current:       cur,
			Past:          prev,
			Change:        change,
			ChangePercent: pct,
			Trend:         Steady,
			DisplayChange: FormatChange(change, pct, metric),
		}
		switch {
		case pct > threshold:
			mc.Trend = Improved
			c.Improvements++
		case pct < -threshold:
			mc.Trend = Declined
			c.Declines++
		default:
			c.Stable++
		}
		c.Metrics[metric] = mc
	}
	return c
}

// Overall is the verdict of a comparison summary
type Overall string

const (
	OverallImproving        Overall = "improving"
	OverallDeclining        Overall = "declining"
	OverallStable           Overall = "stable"
	OverallInsufficientData Overall = "insufficient_data"
	OverallAboveAverage     Overall = "above_average"
	OverallAverage          Overall = "average"
	OverallBelowAverage     Overall = "below_average"
)

// Summary totals the available comparisons
type Summary struct {
	Overall      Overall `json:"overall"`
	Message      string  `json:"message"`
	Improvements int     `json:"improvements"`
	Declines     int     `json:"declines"`
	Stable       int     `json:"stable"`
}

// Summarize totals improvements and declines over every available comparison
func Summarize(comparisons map[Period]Comparison) Summary {
	var s Summary
	available := 0
	for _, c := range comparisons {
		if !c.Available {
			continue
		}
		available++
		s.Improvements += c.Improvements
		s.Declines += c.Declines
		s.Stable += c.Stable
	}

	switch {
	case available == 0:
		s.Overall = OverallInsufficientData
		s.Message = "There is not enough past data to compare against yet."
	case s.Improvements > s.Declines:
		s.Overall = OverallImproving
		s.Message = fmt.Sprintf("Performance is improving: %d metrics improved and %d declined.", s.Improvements, s.Declines)
	case s.Declines > s.Improvements:
		s.Overall = OverallDeclining
		s.Message = fmt.Sprintf("Performance shows a decline: %d metrics declined and %d improved.", s.Declines, s.Improvements)
	default:
		s.Overall = OverallStable
		s.Message = "Performance is stable compared with earlier periods."
	}
	return s
}

// StableRecommendation is given when no metric moved
const StableRecommendation = "Performance is stable. Try new stages or a higher difficulty."

var declineAdvice = map[trend.Metric]string{
	trend.MetricScore:      "Focus on chaining pops and special bubbles to bring your score back up.",
	trend.MetricAccuracy:   "Slow down slightly and aim before popping to recover accuracy.",
	trend.MetricPlayTime:   "Sessions are getting shorter; try finishing a full stage each time you play.",
	trend.MetricCombo:      "Practice keeping combos alive by popping nearby bubbles in sequence.",
	trend.MetricCompletion: "More sessions end early; pick a comfortable stage and play it to the end.",
}

// DetailedAnalysis lists what improved and what declined
type DetailedAnalysis struct {
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	Recommendations []string `json:"recommendations"`
}

// Analyze describes each improved and declined metric of the available
// comparisons, in period order
func Analyze(periods []Period, comparisons map[Period]Comparison, metrics []trend.Metric) DetailedAnalysis {
	a := DetailedAnalysis{Strengths: []string{}, Weaknesses: []string{}, Recommendations: []string{}}
	advised := make(map[trend.Metric]bool)
	compared := false

	for _, p := range periods {
		c, ok := comparisons[p]
		if !ok || !c.Available {
			continue
		}
		compared = true
		for _, metric := range metrics {
			mc, ok := c.Metrics[metric]
			if !ok {
				continue
			}
			switch mc.Trend {
			case Improved:
				a.Strengths = append(a.Strengths,
					fmt.Sprintf("%s improved by %s compared with the previous %s", capitalize(mc.Label), mc.DisplayChange, p))
			case Declined:
				a.Weaknesses = append(a.Weaknesses,
					fmt.Sprintf("%s declined by %s compared with the previous %s", capitalize(mc.Label), mc.DisplayChange, p))
				if !advised[metric] {
					advised[metric] = true
					if adv, ok := declineAdvice[metric]; ok {
						a.Recommendations = append(a.Recommendations, adv)
					}
				}
			}
		}
	}

	if compared && len(a.Weaknesses) == 0 {
		if len(a.Strengths) > 0 {
			a.Recommendations = append(a.Recommendations, "Keep up the current routine; your results are trending up.")
		} else {
			a.Recommendations = append(a.Recommendations, StableRecommendation)
		}
	}
	return a
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	if c := s[0]; c >= 'a' && c <= 'z' {
		return string(c-'a'+'A') + s[1:]
	}
	return s
}
