package comparison

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soltixdb/insight/internal/analytics/trend"
	"github.com/soltixdb/insight/internal/models"
)

func weakInput() ImprovementInput {
	past := &PastResult{
		Periods: []Period{Week},
		Metrics: []trend.Metric{trend.MetricScore, trend.MetricAccuracy},
		Comparisons: map[Period]Comparison{
			Week: {
				Available: true,
				Metrics: map[trend.Metric]MetricComparison{
					trend.MetricAccuracy: {Label: "accuracy", Current: 0.7, Trend: Declined, ChangePercent: -12, DisplayChange: "-10% (-12.0%)"},
					trend.MetricScore:    {Label: "score", Current: 900, Trend: Improved, ChangePercent: 8},
				},
			},
		},
		Analysis: DetailedAnalysis{Strengths: []string{"Score improved"}},
	}
	bench := &BenchmarkResult{
		Comparison: BenchmarkComparison{
			Available: true,
			Metrics: map[trend.Metric]BenchmarkMetricComparison{
				trend.MetricScore:    {Label: "score", Current: 900, Percentile: 10, Performance: BelowAverage},
				trend.MetricPlayTime: {Label: "play time", Current: 200, Percentile: 50, Performance: Average},
			},
		},
	}
	return ImprovementInput{Past: past, Benchmark: bench}
}

func TestGenerateImprovementSuggestions_Empty(t *testing.T) {
	s := GenerateImprovementSuggestions(ImprovementInput{}, ImprovementOptions{})
	assert.NotNil(t, s.TargetAreas)
	assert.NotNil(t, s.ActionPlan)
	assert.NotNil(t, s.ExpectedOutcomes)
	assert.NotNil(t, s.FollowUpActions)
	assert.Empty(t, s.TargetAreas)
	assert.Empty(t, s.FollowUpActions)
	assert.Nil(t, s.Motivation)

	s = GenerateImprovementSuggestions(ImprovementInput{}, ImprovementOptions{IncludeMotivationalElements: true})
	require.NotNil(t, s.Motivation)
	assert.NotEmpty(t, s.Motivation.Encouragement)
	assert.Empty(t, s.Motivation.Milestones)
}

func TestGenerateImprovementSuggestions(t *testing.T) {
	s := GenerateImprovementSuggestions(weakInput(), ImprovementOptions{
		TimeHorizon:                 14,
		DifficultyPreference:        Gradual,
		IncludeMotivationalElements: true,
	})

	require.Len(t, s.TargetAreas, 2)
	first := s.TargetAreas[0]
	assert.Equal(t, 1, first.Priority)
	assert.Equal(t, trend.MetricScore, first.Metric)
	assert.Equal(t, SourceBenchmark, first.Source)
	assert.Greater(t, first.Target, first.Current)
	assert.Equal(t, trend.MetricAccuracy, s.TargetAreas[1].Metric)
	assert.Equal(t, SourceHistorical, s.TargetAreas[1].Source)

	require.Len(t, s.ActionPlan, 2)
	for _, a := range s.ActionPlan {
		assert.Equal(t, ActionEasy, a.Difficulty)
		assert.Equal(t, 14, a.DurationDays)
	}

	require.Len(t, s.ExpectedOutcomes, 2)
	for _, o := range s.ExpectedOutcomes {
		assert.GreaterOrEqual(t, o.Confidence, 0.0)
		assert.LessOrEqual(t, o.Confidence, 1.0)
		assert.Equal(t, 14, o.TimeframeDays)
	}
	assert.Greater(t, s.ExpectedOutcomes[0].Confidence, s.ExpectedOutcomes[1].Confidence)

	require.Len(t, s.FollowUpActions, 2)
	assert.Equal(t, 7, s.FollowUpActions[0].Day)
	assert.Equal(t, 14, s.FollowUpActions[1].Day)

	require.NotNil(t, s.Motivation)
	assert.Contains(t, s.Motivation.Achievements, "Score improved")
	assert.Len(t, s.Motivation.Milestones, 3)
	assert.NotEmpty(t, s.Motivation.Rewards)
}

func TestGenerateImprovementSuggestions_Options(t *testing.T) {
	s := GenerateImprovementSuggestions(weakInput(), ImprovementOptions{FocusAreas: 1, DifficultyPreference: Challenging})
	require.Len(t, s.TargetAreas, 1)
	assert.Equal(t, ActionHard, s.ActionPlan[0].Difficulty)
	assert.Nil(t, s.Motivation)

	s = GenerateImprovementSuggestions(weakInput(), ImprovementOptions{DifficultyPreference: "unknown"})
	assert.Equal(t, ActionMedium, s.ActionPlan[0].Difficulty)
	assert.Len(t, s.FollowUpActions, 5)
}

func TestGenerateImprovementSuggestions_CapsRatios(t *testing.T) {
	in := ImprovementInput{Benchmark: &BenchmarkResult{Comparison: BenchmarkComparison{
		Available: true,
		Metrics: map[trend.Metric]BenchmarkMetricComparison{
			trend.MetricAccuracy: {Label: "accuracy", Current: 0.98, Percentile: 5, Performance: BelowAverage},
		},
	}}}
	s := GenerateImprovementSuggestions(in, ImprovementOptions{DifficultyPreference: Challenging})
	require.Len(t, s.TargetAreas, 1)
	assert.Equal(t, 1.0, s.TargetAreas[0].Target)
}

func TestParsePreference(t *testing.T) {
	p, err := ParsePreference("")
	require.NoError(t, err)
	assert.Equal(t, Balanced, p)

	p, err = ParsePreference("challenging")
	require.NoError(t, err)
	assert.Equal(t, Challenging, p)

	_, err = ParsePreference("extreme")
	assert.Error(t, err)
}

func TestGeneratePersonalizedImprovementPlan(t *testing.T) {
	data := PlayerData{
		TotalSessions:   50,
		TotalPlayTime:   15000,
		AverageScore:    1200,
		AverageAccuracy: 0.75,
		MaxCombo:        25,
		CompletionRate:  0.8,
		PreferredStages: []string{"stage_normal", "stage_time_attack"},
	}
	analysis := PlanAnalysis{
		Strengths:    []string{"score", "combo"},
		Weaknesses:   []string{"accuracy", "completion", "luck"},
		OverallTrend: OverallImproving,
	}
	ts := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)

	plan := GeneratePersonalizedImprovementPlan(data, analysis, ImprovementOptions{}, ts)
	assert.NotEmpty(t, plan.PlanID)
	assert.Equal(t, ts, plan.Timestamp)
	assert.Equal(t, SkillAdvanced, plan.PlayerProfile.SkillLevel)
	assert.Equal(t, "regular", plan.PlayerProfile.Experience)
	assert.Equal(t, []string{"score", "combo"}, plan.Analysis.Strengths)

	require.Len(t, plan.Suggestions, 2)
	assert.Equal(t, trend.MetricAccuracy, plan.Suggestions[0].Metric)
	assert.InDelta(t, 0.825, plan.Suggestions[0].Target, 1e-9)
	assert.Len(t, plan.ActionPlan, 2)
	require.Len(t, plan.SuccessMetrics, 2)
	assert.Equal(t, "82.5%", plan.SuccessMetrics[0].DisplayTarget)
	assert.NotEmpty(t, plan.FollowUp)
	require.NotNil(t, plan.Motivation)
	assert.Contains(t, plan.Motivation.Achievements, "Score is a strength")

	other := GeneratePersonalizedImprovementPlan(data, analysis, ImprovementOptions{}, ts)
	assert.NotEqual(t, plan.PlanID, other.PlanID)
}

func TestGeneratePersonalizedImprovementPlan_CustomOptions(t *testing.T) {
	data := PlayerData{AverageScore: 1000, AverageAccuracy: 0.75, TotalSessions: 30}
	analysis := PlanAnalysis{Strengths: []string{"score"}, Weaknesses: []string{"accuracy"}}

	plan := GeneratePersonalizedImprovementPlan(data, analysis, ImprovementOptions{
		FocusAreas:                  3,
		TimeHorizon:                 14,
		DifficultyPreference:        Gradual,
		IncludeMotivationalElements: true,
	}, time.Now())
	assert.NotEmpty(t, plan.PlanID)
	require.Len(t, plan.ActionPlan, 1)
	assert.Equal(t, ActionEasy, plan.ActionPlan[0].Difficulty)
	assert.NotNil(t, plan.Motivation)
	require.Len(t, plan.FollowUp, 2)
	assert.Equal(t, 14, plan.FollowUp[1].Day)

	empty := GeneratePersonalizedImprovementPlan(PlayerData{}, PlanAnalysis{}, ImprovementOptions{}, time.Now())
	assert.NotNil(t, empty.Analysis.Strengths)
	assert.Empty(t, empty.Suggestions)
	assert.Empty(t, empty.FollowUp)
	assert.Equal(t, SkillBeginner, empty.PlayerProfile.SkillLevel)
}

func TestPlayerDataFrom(t *testing.T) {
	sessions := []models.SessionRecord{
		play("stage_b", 0, 1000, 80, 20, true),
		play("stage_a", time.Hour, 1000, 80, 20, true),
		play("stage_b", 2*time.Hour, 1000, 80, 20, false),
	}
	d := PlayerDataFrom(sessions)
	assert.Equal(t, 3, d.TotalSessions)
	assert.InDelta(t, 900, d.TotalPlayTime, 1e-9)
	assert.Equal(t, []string{"stage_b", "stage_a"}, d.PreferredStages)
	assert.InDelta(t, 2.0/3.0, d.CompletionRate, 1e-9)
}

func TestAnalysisFrom(t *testing.T) {
	a := AnalysisFrom(weakInput().Past)
	assert.Equal(t, []string{"score"}, a.Strengths)
	assert.Equal(t, []string{"accuracy"}, a.Weaknesses)

	none := AnalysisFrom(nil)
	assert.Equal(t, OverallInsufficientData, none.OverallTrend)
	assert.NotNil(t, none.Weaknesses)
}
