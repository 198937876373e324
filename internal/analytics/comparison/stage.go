package comparison

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/soltixdb/insight/internal/analytics"
	"github.com/soltixdb/insight/internal/analytics/trend"
	"github.com/soltixdb/insight/internal/models"
)

// Difficulty is inferred from a stage id
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyNormal Difficulty = "normal"
	DifficultyHard   Difficulty = "hard"
	DifficultyExpert Difficulty = "expert"
)

var difficultyFactors = map[Difficulty]float64{
	DifficultyEasy:   0.7,
	DifficultyNormal: 1.0,
	DifficultyHard:   1.3,
	DifficultyExpert: 1.6,
}

// StageDifficulty reads the difficulty from keywords in the stage id
func StageDifficulty(stageID string) Difficulty {
	id := strings.ToLower(stageID)
	switch {
	case strings.Contains(id, "expert"), strings.Contains(id, "master"):
		return DifficultyExpert
	case strings.Contains(id, "hard"):
		return DifficultyHard
	case strings.Contains(id, "easy"), strings.Contains(id, "tutorial"):
		return DifficultyEasy
	default:
		return DifficultyNormal
	}
}

// Factor returns the difficulty multiplier
func (d Difficulty) Factor() float64 {
	if f, ok := difficultyFactors[d]; ok {
		return f
	}
	return 1
}

// Improvement trend of a stage's scores
const (
	StageImproving = "improving"
	StageDeclining = "declining"
	StageStable    = "stable"
)

// slope in points per play beyond which a stage's scores are trending
const stageTrendSlope = 50.0

// reference values for the performance rating
const (
	ratingScoreScale = 1000.0
	ratingTimeScale  = 300.0
)

// AdjustedMetrics are stage metrics normalized by difficulty
type AdjustedMetrics struct {
	Score float64 `json:"score"`
	Time  float64 `json:"time"`
}

// StageStatistics summarize the plays of one stage
type StageStatistics struct {
	StageID           string             `json:"stageId"`
	PlayCount         int                `json:"playCount"`
	AverageScore      float64            `json:"averageScore"`
	BestScore         float64            `json:"bestScore"`
	ScoreStdDev       float64            `json:"scoreStdDev"`
	AverageTime       float64            `json:"averageTime"`
	AverageAccuracy   float64            `json:"averageAccuracy"`
	CompletionRate    float64            `json:"completionRate"`
	Consistency       float64            `json:"consistency"`
	PerformanceRating float64            `json:"performanceRating"`
	ImprovementTrend  string             `json:"improvementTrend"`
	Difficulty        Difficulty         `json:"difficulty"`
	DifficultyFactor  float64            `json:"difficultyFactor"`
	Adjusted          *AdjustedMetrics   `json:"difficultyAdjustedMetrics,omitempty"`
	LastPlayed        time.Time          `json:"lastPlayed"`
	Metrics           PerformanceMetrics `json:"metrics"`
	Comparison        Comparison         `json:"comparison"`
}

// CalculateStageStatistics summarizes the plays of one stage, ordered by start time
func CalculateStageStatistics(stageID string, plays []models.SessionRecord, adjust bool) StageStatistics {
	m := CalculatePerformanceMetrics(plays)
	difficulty := StageDifficulty(stageID)
	st := StageStatistics{
		StageID:          stageID,
		PlayCount:        len(plays),
		AverageScore:     m.AverageScore,
		AverageTime:      m.AveragePlayTime,
		AverageAccuracy:  m.AverageAccuracy,
		CompletionRate:   m.CompletionRate,
		ImprovementTrend: StageStable,
		Difficulty:       difficulty,
		DifficultyFactor: difficulty.Factor(),
		Metrics:          m,
	}
	if len(plays) == 0 {
		return st
	}

	scores := make([]float64, len(plays))
	for i, p := range plays {
		scores[i] = p.FinalScore
		if p.StartTime.After(st.LastPlayed) {
			st.LastPlayed = p.StartTime
		}
	}
	d := analytics.Describe(scores)
	st.BestScore = d.Max
	st.ScoreStdDev = d.StdDev
	if d.Mean > 0 && len(plays) > 1 {
		st.Consistency = math.Max(0, 1-d.StdDev/d.Mean)
	}

	st.PerformanceRating = 0.4*math.Min(100, m.AverageScore/ratingScoreScale*100) +
		0.3*math.Max(0, 100-m.AveragePlayTime/ratingTimeScale*100) +
		0.3*m.AverageAccuracy*100

	if len(scores) >= 2 {
		slope := analytics.LinearRegression(analytics.Index(len(scores)), scores).Slope
		switch {
		case slope > stageTrendSlope:
			st.ImprovementTrend = StageImproving
		case slope < -stageTrendSlope:
			st.ImprovementTrend = StageDeclining
		}
	}

	if adjust {
		st.Adjusted = &AdjustedMetrics{
			Score: m.AverageScore * st.DifficultyFactor,
			Time:  m.AveragePlayTime / st.DifficultyFactor,
		}
	}
	return st
}

// StagePairComparison compares two stages
type StagePairComparison struct {
	StageA                   string   `json:"stageA"`
	StageB                   string   `json:"stageB"`
	ScoreDifference          float64  `json:"scoreDifference"`
	AdjustedScoreDifference  float64  `json:"adjustedScoreDifference"`
	AccuracyDifference       float64  `json:"accuracyDifference"`
	CompletionRateDifference float64  `json:"completionRateDifference"`
	TimeDifference           float64  `json:"timeDifference"`
	BetterStage              string   `json:"betterStage"`
	Summary                  []string `json:"summary"`
}

// CompareStages compares a with b; differences are a minus b
func CompareStages(a, b StageStatistics) StagePairComparison {
	c := StagePairComparison{
		StageA:                   a.StageID,
		StageB:                   b.StageID,
		ScoreDifference:          a.AverageScore - b.AverageScore,
		AdjustedScoreDifference:  a.AverageScore*a.DifficultyFactor - b.AverageScore*b.DifficultyFactor,
		AccuracyDifference:       a.AverageAccuracy - b.AverageAccuracy,
		CompletionRateDifference: a.CompletionRate - b.CompletionRate,
		TimeDifference:           a.AverageTime - b.AverageTime,
		Summary:                  []string{},
	}

	c.BetterStage = a.StageID
	if b.PerformanceRating > a.PerformanceRating {
		c.BetterStage = b.StageID
	}

	if c.ScoreDifference != 0 {
		hi, lo := a.StageID, b.StageID
		if c.ScoreDifference < 0 {
			hi, lo = lo, hi
		}
		c.Summary = append(c.Summary, fmt.Sprintf("Scores are %.0f points higher on %s than on %s",
			math.Abs(c.ScoreDifference), hi, lo))
	}
	if diff := math.Abs(c.AccuracyDifference); diff >= 0.05 {
		hi := a.StageID
		if c.AccuracyDifference < 0 {
			hi = b.StageID
		}
		c.Summary = append(c.Summary, fmt.Sprintf("Accuracy is %.0f%% better on %s", diff*100, hi))
	}
	if diff := math.Abs(c.CompletionRateDifference); diff >= 0.1 {
		lo := b.StageID
		if c.CompletionRateDifference < 0 {
			lo = a.StageID
		}
		c.Summary = append(c.Summary, fmt.Sprintf("%s is abandoned more often", lo))
	}
	return c
}

// StageRank is one entry of a stage ranking
type StageRank struct {
	Rank    int     `json:"rank"`
	StageID string  `json:"stageId"`
	Value   float64 `json:"value"`
}

// StageRankings orders stages by several figures, best first
type StageRankings struct {
	ByPerformance   []StageRank `json:"byPerformance"`
	ByScore         []StageRank `json:"byScore"`
	ByCompletion    []StageRank `json:"byCompletion"`
	ByAdjustedScore []StageRank `json:"byAdjustedScore"`
}

func rank(stats []StageStatistics, value func(StageStatistics) float64) []StageRank {
	out := make([]StageRank, len(stats))
	for i, s := range stats {
		out[i] = StageRank{StageID: s.StageID, Value: value(s)}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// RankStages builds the rankings; stats must be ordered by stage id
func RankStages(stats []StageStatistics) StageRankings {
	return StageRankings{
		ByPerformance:   rank(stats, func(s StageStatistics) float64 { return s.PerformanceRating }),
		ByScore:         rank(stats, func(s StageStatistics) float64 { return s.AverageScore }),
		ByCompletion:    rank(stats, func(s StageStatistics) float64 { return s.CompletionRate }),
		ByAdjustedScore: rank(stats, func(s StageStatistics) float64 { return s.AverageScore * s.DifficultyFactor }),
	}
}

// StageSummary totals a stage comparison
type StageSummary struct {
	TotalStages         int    `json:"totalStages"`
	TotalComparisons    int    `json:"totalComparisons"`
	BestPerformingStage string `json:"bestPerformingStage"`
	MostDifficultStage  string `json:"mostDifficultStage"`
}

// mostDifficult picks the highest difficulty factor, then the lowest
// completion rate
func mostDifficult(stats []StageStatistics) string {
	if len(stats) == 0 {
		return ""
	}
	best := stats[0]
	for _, s := range stats[1:] {
		if s.DifficultyFactor > best.DifficultyFactor ||
			(s.DifficultyFactor == best.DifficultyFactor && s.CompletionRate < best.CompletionRate) {
			best = s
		}
	}
	return best.StageID
}

// GroupByStage splits sessions by stage id; sessions without one are dropped
func GroupByStage(sessions []models.SessionRecord) map[string][]models.SessionRecord {
	out := make(map[string][]models.SessionRecord)
	for _, s := range sessions {
		if s.StageID == "" {
			continue
		}
		out[s.StageID] = append(out[s.StageID], s)
	}
	return out
}

// StageResult is the outcome of a stage comparison
type StageResult struct {
	Success          bool                           `json:"success"`
	Period           Period                         `json:"period"`
	StageStatistics  map[string]StageStatistics     `json:"stageStatistics"`
	StageComparisons map[string]StagePairComparison `json:"stageComparisons"`
	Rankings         StageRankings                  `json:"rankings"`
	Summary          StageSummary                   `json:"summary"`
}

// CompareStagePerformance compares the stages played in the current window.
// A stage's history comparison is available only when it also has past plays.
func CompareStagePerformance(current, past map[string][]models.SessionRecord, metrics []trend.Metric, threshold float64, adjust bool) (*StageResult, error) {
	if len(current) < analytics.MinComparedStages {
		return nil, analytics.NewInsufficientData(
			fmt.Sprintf("At least %d stages required for comparison, found %d", analytics.MinComparedStages, len(current)),
			len(current), analytics.MinComparedStages)
	}

	ids := make([]string, 0, len(current))
	for id := range current {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	res := &StageResult{
		Success:          true,
		StageStatistics:  make(map[string]StageStatistics, len(ids)),
		StageComparisons: make(map[string]StagePairComparison),
	}
	ordered := make([]StageStatistics, len(ids))
	for i, id := range ids {
		st := CalculateStageStatistics(id, current[id], adjust)
		if prev := past[id]; len(prev) > 0 {
			st.Comparison = CalculateComparison(st.Metrics, CalculatePerformanceMetrics(prev), metrics, threshold)
		} else {
			st.Comparison = Comparison{Message: "No past plays for this stage"}
		}
		ordered[i] = st
		res.StageStatistics[id] = st
	}

	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			key := ordered[i].StageID + "_vs_" + ordered[j].StageID
			res.StageComparisons[key] = CompareStages(ordered[i], ordered[j])
		}
	}

	res.Rankings = RankStages(ordered)
	res.Summary = StageSummary{
		TotalStages:         len(ordered),
		TotalComparisons:    len(res.StageComparisons),
		BestPerformingStage: res.Rankings.ByPerformance[0].StageID,
		MostDifficultStage:  mostDifficult(ordered),
	}
	return res, nil
}
