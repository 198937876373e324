package comparison

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/soltixdb/insight/internal/analytics/trend"
	"github.com/soltixdb/insight/internal/models"
)

// PlayerData is what is known about a player when building a plan
type PlayerData struct {
	TotalSessions   int      `json:"totalSessions"`
	TotalPlayTime   float64  `json:"totalPlayTime"` // seconds
	AverageScore    float64  `json:"averageScore"`
	AverageAccuracy float64  `json:"averageAccuracy"`
	AverageCombo    float64  `json:"averageCombo"`
	MaxCombo        int      `json:"maxCombo"`
	CompletionRate  float64  `json:"completionRate"`
	PreferredStages []string `json:"preferredStages,omitempty"`
}

// PlayerDataFrom builds PlayerData from a player's sessions; the most
// played stages come first in PreferredStages
func PlayerDataFrom(sessions []models.SessionRecord) PlayerData {
	m := CalculatePerformanceMetrics(sessions)
	d := PlayerData{
		TotalSessions:   m.SessionCount,
		AverageScore:    m.AverageScore,
		AverageAccuracy: m.AverageAccuracy,
		AverageCombo:    m.AverageCombo,
		MaxCombo:        m.MaxCombo,
		CompletionRate:  m.CompletionRate,
	}
	plays := make(map[string]int)
	for _, s := range sessions {
		d.TotalPlayTime += s.PlayTime().Seconds()
		if s.StageID != "" {
			plays[s.StageID]++
		}
	}
	for id := range plays {
		d.PreferredStages = append(d.PreferredStages, id)
	}
	sort.Slice(d.PreferredStages, func(i, j int) bool {
		a, b := d.PreferredStages[i], d.PreferredStages[j]
		if plays[a] != plays[b] {
			return plays[a] > plays[b]
		}
		return a < b
	})
	return d
}

func (d PlayerData) value(metric trend.Metric) float64 {
	switch metric {
	case trend.MetricScore:
		return d.AverageScore
	case trend.MetricAccuracy:
		return d.AverageAccuracy
	case trend.MetricPlayTime:
		if d.TotalSessions == 0 {
			return 0
		}
		return d.TotalPlayTime / float64(d.TotalSessions)
	case trend.MetricCombo:
		return d.AverageCombo
	case trend.MetricCompletion:
		return d.CompletionRate
	default:
		return 0
	}
}

// PlanAnalysis names the player's strong and weak metrics
type PlanAnalysis struct {
	Strengths    []string `json:"strengths"`
	Weaknesses   []string `json:"weaknesses"`
	OverallTrend Overall  `json:"overallTrend,omitempty"`
}

// AnalysisFrom derives a PlanAnalysis from a past comparison
func AnalysisFrom(past *PastResult) PlanAnalysis {
	a := PlanAnalysis{Strengths: []string{}, Weaknesses: []string{}}
	if past == nil {
		a.OverallTrend = OverallInsufficientData
		return a
	}
	a.OverallTrend = past.Summary.Overall

	seen := make(map[trend.Metric]bool)
	for _, p := range past.Periods {
		c := past.Comparisons[p]
		for _, metric := range past.Metrics {
			mc, ok := c.Metrics[metric]
			if !ok || seen[metric] {
				continue
			}
			switch mc.Trend {
			case Improved:
				a.Strengths = append(a.Strengths, string(metric))
				seen[metric] = true
			case Declined:
				a.Weaknesses = append(a.Weaknesses, string(metric))
				seen[metric] = true
			}
		}
	}
	return a
}

// Skill levels
const (
	SkillBeginner     = "beginner"
	SkillIntermediate = "intermediate"
	SkillAdvanced     = "advanced"
	SkillExpert       = "expert"
)

// PlayerProfile classifies the player
type PlayerProfile struct {
	SkillLevel      string   `json:"skillLevel"`
	Experience      string   `json:"experience"`
	TotalSessions   int      `json:"totalSessions"`
	AverageScore    float64  `json:"averageScore"`
	AverageAccuracy float64  `json:"averageAccuracy"`
	CompletionRate  float64  `json:"completionRate"`
	PreferredStages []string `json:"preferredStages"`
}

func profileOf(d PlayerData) PlayerProfile {
	p := PlayerProfile{
		TotalSessions:   d.TotalSessions,
		AverageScore:    d.AverageScore,
		AverageAccuracy: d.AverageAccuracy,
		CompletionRate:  d.CompletionRate,
		PreferredStages: append([]string{}, d.PreferredStages...),
	}

	rating := 0.5*clamp01(d.AverageScore/2000) + 0.5*clamp01(d.AverageAccuracy)
	switch {
	case rating >= 0.85:
		p.SkillLevel = SkillExpert
	case rating >= 0.65:
		p.SkillLevel = SkillAdvanced
	case rating >= 0.4:
		p.SkillLevel = SkillIntermediate
	default:
		p.SkillLevel = SkillBeginner
	}

	switch {
	case d.TotalSessions >= 100:
		p.Experience = "veteran"
	case d.TotalSessions >= 20:
		p.Experience = "regular"
	default:
		p.Experience = "new"
	}
	return p
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// SuccessMetric is a measurable goal of a plan
type SuccessMetric struct {
	Metric        trend.Metric `json:"metric"`
	Current       float64      `json:"current"`
	Target        float64      `json:"target"`
	DisplayTarget string       `json:"displayTarget"`
	TimeframeDays int          `json:"timeframeDays"`
}

// Plan is a personalized improvement plan
type Plan struct {
	PlanID         string          `json:"planId"`
	Timestamp      time.Time       `json:"timestamp"`
	PlayerProfile  PlayerProfile   `json:"playerProfile"`
	Analysis       PlanAnalysis    `json:"analysis"`
	Suggestions    []TargetArea    `json:"suggestions"`
	ActionPlan     []Action        `json:"actionPlan"`
	Motivation     *Motivation     `json:"motivation,omitempty"`
	SuccessMetrics []SuccessMetric `json:"successMetrics"`
	FollowUp       []FollowUp      `json:"followUp"`
}

// GeneratePersonalizedImprovementPlan turns the weaknesses named in analysis
// into a plan for the player. Weakness names that are not metrics are ignored.
// Unlike GenerateImprovementSuggestions a plan always carries motivation.
func GeneratePersonalizedImprovementPlan(data PlayerData, analysis PlanAnalysis, opts ImprovementOptions, now time.Time) Plan {
	opts = opts.normalize()
	profile := preferenceProfiles[opts.DifficultyPreference]
	gain := profile.gain * float64(opts.TimeHorizon) / DefaultTimeHorizon

	if analysis.Strengths == nil {
		analysis.Strengths = []string{}
	}
	if analysis.Weaknesses == nil {
		analysis.Weaknesses = []string{}
	}

	plan := Plan{
		PlanID:         uuid.NewString(),
		Timestamp:      now,
		PlayerProfile:  profileOf(data),
		Analysis:       analysis,
		Suggestions:    []TargetArea{},
		ActionPlan:     []Action{},
		SuccessMetrics: []SuccessMetric{},
		FollowUp:       []FollowUp{},
	}

	for _, name := range analysis.Weaknesses {
		if len(plan.Suggestions) >= opts.FocusAreas {
			break
		}
		metric, err := trend.ParseMetric(name)
		if err != nil {
			continue
		}
		current := data.value(metric)
		target := projected(metric, current, gain)
		plan.Suggestions = append(plan.Suggestions, TargetArea{
			Priority: len(plan.Suggestions) + 1,
			Metric:   metric,
			Label:    metric.Label(),
			Source:   SourceHistorical,
			Current:  current,
			Target:   target,
			Reason:   fmt.Sprintf("%s was identified as a weakness", capitalize(metric.Label())),
		})
		plan.ActionPlan = append(plan.ActionPlan, actionFor(metric, profile, opts.TimeHorizon))
		plan.SuccessMetrics = append(plan.SuccessMetrics, SuccessMetric{
			Metric:        metric,
			Current:       current,
			Target:        target,
			DisplayTarget: FormatValue(target, metric),
			TimeframeDays: opts.TimeHorizon,
		})
	}
	if len(plan.Suggestions) > 0 {
		plan.FollowUp = followUps(plan.Suggestions, opts.TimeHorizon)
	}

	strengths := make([]string, 0, len(analysis.Strengths))
	for _, s := range analysis.Strengths {
		if m, err := trend.ParseMetric(s); err == nil {
			s = capitalize(m.Label()) + " is a strength"
		}
		strengths = append(strengths, s)
	}
	plan.Motivation = motivation(strengths, plan.Suggestions, opts.TimeHorizon)
	return plan
}
