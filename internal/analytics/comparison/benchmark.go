package comparison

import (
	"fmt"
	"sort"

	"github.com/soltixdb/insight/internal/analytics"
	"github.com/soltixdb/insight/internal/analytics/trend"
	"github.com/soltixdb/insight/internal/source"
)

// Benchmark data quality levels
const (
	QualityLow    = "low"
	QualityMedium = "medium"
	QualityHigh   = "high"
)

// Cohort sizes that separate the quality levels
const (
	mediumQualityPlayers = 3
	highQualityPlayers   = 15
)

// Percentile ranks reported as strengths or improvement areas
const (
	strengthPercentile    = 80
	improvementPercentile = 20
)

// PlayerMetrics are one anonymized player's metrics
type PlayerMetrics struct {
	PlayerID string `json:"playerId"`
	PerformanceMetrics
}

// BenchmarkStats describe one metric across the cohort
type BenchmarkStats struct {
	Mean         float64 `json:"mean"`
	Median       float64 `json:"median"`
	Percentile25 float64 `json:"percentile25"`
	Percentile75 float64 `json:"percentile75"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	StdDev       float64 `json:"stdDev"`
}

func (s BenchmarkStats) description() analytics.Description {
	return analytics.Description{
		Mean:   s.Mean,
		Median: s.Median,
		P25:    s.Percentile25,
		P75:    s.Percentile75,
		Min:    s.Min,
		Max:    s.Max,
		StdDev: s.StdDev,
	}
}

// DataQuality rates how representative the cohort is
type DataQuality struct {
	Quality                  string  `json:"quality"`
	PlayerCount              int     `json:"playerCount"`
	TotalSessions            int     `json:"totalSessions"`
	AverageSessionsPerPlayer float64 `json:"averageSessionsPerPlayer"`
}

// Benchmark is the cohort the current player is compared with
type Benchmark struct {
	TotalPlayers int                             `json:"totalPlayers"`
	Metrics      map[trend.Metric]BenchmarkStats `json:"metrics"`
	DataQuality  DataQuality                     `json:"dataQuality"`
}

// AnonymizePlayerID maps a player id to its stable pseudonym
func AnonymizePlayerID(salt, playerID string) string {
	return source.Pseudonym(salt, playerID)
}

// CalculateStandardDeviation returns the population standard deviation, 0 for no values
func CalculateStandardDeviation(values []float64) float64 {
	return analytics.Describe(values).StdDev
}

// CalculateBenchmarkMetrics describes each metric across the players
func CalculateBenchmarkMetrics(players []PlayerMetrics, metrics []trend.Metric) Benchmark {
	b := Benchmark{
		TotalPlayers: len(players),
		Metrics:      make(map[trend.Metric]BenchmarkStats, len(metrics)),
		DataQuality:  AssessBenchmarkDataQuality(players),
	}
	for _, metric := range metrics {
		values := make([]float64, len(players))
		for i, p := range players {
			values[i] = p.Value(metric)
		}
		d := analytics.Describe(values)
		b.Metrics[metric] = BenchmarkStats{
			Mean:         d.Mean,
			Median:       d.Median,
			Percentile25: d.P25,
			Percentile75: d.P75,
			Min:          d.Min,
			Max:          d.Max,
			StdDev:       d.StdDev,
		}
	}
	return b
}

// AssessBenchmarkDataQuality grades the cohort by player count
func AssessBenchmarkDataQuality(players []PlayerMetrics) DataQuality {
	q := DataQuality{PlayerCount: len(players)}
	for _, p := range players {
		q.TotalSessions += p.SessionCount
	}
	if q.PlayerCount > 0 {
		q.AverageSessionsPerPlayer = float64(q.TotalSessions) / float64(q.PlayerCount)
	}

	switch {
	case q.PlayerCount >= highQualityPlayers:
		q.Quality = QualityHigh
	case q.PlayerCount >= mediumQualityPlayers:
		q.Quality = QualityMedium
	default:
		q.Quality = QualityLow
	}
	return q
}

// CalculatePercentileRank places value among the cohort's percentile anchors
func CalculatePercentileRank(value float64, stats BenchmarkStats) float64 {
	return analytics.PercentileRank(value, stats.description())
}

// Performance classes relative to the cohort
const (
	AboveAverage = "above_average"
	Average      = "average"
	BelowAverage = "below_average"
)

// Classify returns above_average at or over the 75th percentile and
// below_average at or under the 25th
func Classify(value float64, stats BenchmarkStats) string {
	switch {
	case value >= stats.Percentile75:
		return AboveAverage
	case value <= stats.Percentile25:
		return BelowAverage
	default:
		return Average
	}
}

// BenchmarkMetricComparison is one metric of the player against the cohort
type BenchmarkMetricComparison struct {
	Metric            trend.Metric `json:"metric"`
	Label             string       `json:"label"`
	Current           float64      `json:"current"`
	Benchmark         float64      `json:"benchmark"`
	Difference        float64      `json:"difference"`
	DifferencePercent float64      `json:"differencePercent"`
	Percentile        float64      `json:"percentile"`
	Performance       string       `json:"performance"`
	DisplayCurrent    string       `json:"displayCurrent"`
	DisplayBenchmark  string       `json:"displayBenchmark"`
	DisplayDifference string       `json:"displayDifference"`
}

// BenchmarkComparison compares the player with the cohort metric by metric
type BenchmarkComparison struct {
	Available    bool                                       `json:"available"`
	Metrics      map[trend.Metric]BenchmarkMetricComparison `json:"metrics"`
	AboveAverage int                                        `json:"aboveAverage"`
	Average      int                                        `json:"average"`
	BelowAverage int                                        `json:"belowAverage"`
}

// CalculateBenchmarkComparison compares current with the cohort median
func CalculateBenchmarkComparison(current PerformanceMetrics, b Benchmark, metrics []trend.Metric) BenchmarkComparison {
	c := BenchmarkComparison{
		Available: true,
		Metrics:   make(map[trend.Metric]BenchmarkMetricComparison, len(metrics)),
	}
	for _, metric := range metrics {
		stats, ok := b.Metrics[metric]
		if !ok {
			continue
		}
		cur := current.Value(metric)
		diff := cur - stats.Median
		pct := analytics.PercentChange(stats.Median, cur)

		mc := BenchmarkMetricComparison{
			Metric:            metric,
			Label:             metric.Label(),
			Current:           cur,
			Benchmark:         stats.Median,
			Difference:        diff,
			DifferencePercent: pct,
			Percentile:        CalculatePercentileRank(cur, stats),
			Performance:       Classify(cur, stats),
			DisplayCurrent:    FormatValue(cur, metric),
			DisplayBenchmark:  FormatValue(stats.Median, metric),
			DisplayDifference: FormatChange(diff, pct, metric),
		}
		switch mc.Performance {
		case AboveAverage:
			c.AboveAverage++
		case BelowAverage:
			c.BelowAverage++
		default:
			c.Average++
		}
		c.Metrics[metric] = mc
	}
	return c
}

// SummarizeBenchmark reduces the per-metric classes to one verdict
func SummarizeBenchmark(c BenchmarkComparison) Summary {
	s := Summary{Improvements: c.AboveAverage, Declines: c.BelowAverage, Stable: c.Average}
	switch {
	case c.AboveAverage > c.BelowAverage:
		s.Overall = OverallAboveAverage
		s.Message = fmt.Sprintf("Above average performance: %d metrics are in the top quartile of players.", c.AboveAverage)
	case c.BelowAverage > c.AboveAverage:
		s.Overall = OverallBelowAverage
		s.Message = fmt.Sprintf("Below average performance: %d metrics are in the bottom quartile of players.", c.BelowAverage)
	default:
		s.Overall = OverallAverage
		s.Message = "Performance is in line with other players."
	}
	return s
}

// Ranking is the player's percentile for one metric
type Ranking struct {
	Metric     trend.Metric `json:"metric"`
	Label      string       `json:"label"`
	Percentile float64      `json:"percentile"`
}

// BenchmarkAnalysis lists where the player stands out
type BenchmarkAnalysis struct {
	Strengths       []string  `json:"strengths"`
	Improvements    []string  `json:"improvements"`
	Rankings        []Ranking `json:"rankings"`
	Recommendations []string  `json:"recommendations"`
}

// AnalyzeBenchmark reports metrics in the top and bottom 20% of the cohort
func AnalyzeBenchmark(c BenchmarkComparison, metrics []trend.Metric) BenchmarkAnalysis {
	a := BenchmarkAnalysis{
		Strengths:       []string{},
		Improvements:    []string{},
		Rankings:        []Ranking{},
		Recommendations: []string{},
	}
	for _, metric := range metrics {
		mc, ok := c.Metrics[metric]
		if !ok {
			continue
		}
		a.Rankings = append(a.Rankings, Ranking{Metric: metric, Label: mc.Label, Percentile: mc.Percentile})

		switch {
		case mc.Percentile >= strengthPercentile:
			a.Strengths = append(a.Strengths, fmt.Sprintf("%s is in the top 20%% of players (%s vs %s)",
				capitalize(mc.Label), mc.DisplayCurrent, mc.DisplayBenchmark))
		case mc.Percentile <= improvementPercentile:
			a.Improvements = append(a.Improvements, fmt.Sprintf("%s is in the bottom 20%% of players (%s vs %s)",
				capitalize(mc.Label), mc.DisplayCurrent, mc.DisplayBenchmark))
			if adv, ok := declineAdvice[metric]; ok {
				a.Recommendations = append(a.Recommendations, adv)
			}
		}
	}
	sort.SliceStable(a.Rankings, func(i, j int) bool {
		return a.Rankings[i].Percentile > a.Rankings[j].Percentile
	})

	if len(a.Recommendations) == 0 {
		a.Recommendations = append(a.Recommendations,
			"Your results compare well with other players; try harder stages to keep improving.")
	}
	return a
}
