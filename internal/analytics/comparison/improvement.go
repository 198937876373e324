package comparison

import (
	"fmt"
	"math"
	"sort"

	"github.com/soltixdb/insight/internal/analytics/trend"
	"github.com/soltixdb/insight/internal/utils"
)

// Preference controls how demanding the suggested actions are
type Preference string

const (
	Gradual     Preference = "gradual"
	Balanced    Preference = "balanced"
	Challenging Preference = "challenging"
)

// ParsePreference accepts the three preferences; empty means balanced
func ParsePreference(s string) (Preference, error) {
	switch Preference(s) {
	case "":
		return Balanced, nil
	case Gradual, Balanced, Challenging:
		return Preference(s), nil
	default:
		return "", fmt.Errorf("unknown difficulty preference %q", s)
	}
}

// Action difficulty tags
const (
	ActionEasy   = "easy"
	ActionMedium = "medium"
	ActionHard   = "hard"
)

type preferenceProfile struct {
	difficulty string
	// target gain in percent over 30 days
	gain       float64
	confidence float64
	sessions   int // per week
}

var preferenceProfiles = map[Preference]preferenceProfile{
	Gradual:     {difficulty: ActionEasy, gain: 5, confidence: 0.8, sessions: 3},
	Balanced:    {difficulty: ActionMedium, gain: 10, confidence: 0.65, sessions: 4},
	Challenging: {difficulty: ActionHard, gain: 20, confidence: 0.5, sessions: 6},
}

// Defaults for ImprovementOptions
const (
	DefaultFocusAreas  = 3
	DefaultTimeHorizon = 30
	checkInInterval    = 7
)

// ImprovementOptions shape a suggestion set
type ImprovementOptions struct {
	FocusAreas                  int        `json:"focusAreas,omitempty"`
	TimeHorizon                 int        `json:"timeHorizon,omitempty"` // days
	DifficultyPreference        Preference `json:"difficultyPreference,omitempty"`
	IncludeMotivationalElements bool       `json:"includeMotivationalElements,omitempty"`
}

func (o ImprovementOptions) normalize() ImprovementOptions {
	if o.FocusAreas <= 0 {
		o.FocusAreas = DefaultFocusAreas
	}
	if o.TimeHorizon <= 0 {
		o.TimeHorizon = DefaultTimeHorizon
	}
	if _, ok := preferenceProfiles[o.DifficultyPreference]; !ok {
		o.DifficultyPreference = Balanced
	}
	return o
}

// ImprovementInput carries the comparisons suggestions are drawn from; either may be nil
type ImprovementInput struct {
	Past      *PastResult      `json:"past,omitempty"`
	Benchmark *BenchmarkResult `json:"benchmark,omitempty"`
}

// Weakness sources
const (
	SourceHistorical = "historical"
	SourceBenchmark  = "benchmark"
)

// TargetArea is a metric selected for improvement
type TargetArea struct {
	Priority int          `json:"priority"`
	Metric   trend.Metric `json:"metric"`
	Label    string       `json:"label"`
	Source   string       `json:"source"`
	Current  float64      `json:"current"`
	Target   float64      `json:"target"`
	Severity float64      `json:"severity"`
	Reason   string       `json:"reason"`
}

// Action is one step of an action plan
type Action struct {
	Metric       trend.Metric `json:"metric"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Difficulty   string       `json:"difficulty"`
	DurationDays int          `json:"durationDays"`
	Frequency    string       `json:"frequency"`
}

// ExpectedOutcome projects a target area at the end of the horizon
type ExpectedOutcome struct {
	Metric             trend.Metric `json:"metric"`
	Current            float64      `json:"current"`
	Projected          float64      `json:"projected"`
	ImprovementPercent float64      `json:"improvementPercent"`
	Confidence         float64      `json:"confidence"`
	TimeframeDays      int          `json:"timeframeDays"`
}

// FollowUp is a check-in on a given day of the plan
type FollowUp struct {
	Day    int    `json:"day"`
	Action string `json:"action"`
}

// Milestone is an intermediate goal
type Milestone struct {
	Day  int    `json:"day"`
	Goal string `json:"goal"`
}

// Motivation holds the optional encouraging elements of a plan
type Motivation struct {
	Encouragement string      `json:"encouragement"`
	Achievements  []string    `json:"achievements"`
	Milestones    []Milestone `json:"milestones"`
	Rewards       []string    `json:"rewards"`
}

// Suggestions is a generated improvement plan
type Suggestions struct {
	TargetAreas      []TargetArea      `json:"targetAreas"`
	ActionPlan       []Action          `json:"actionPlan"`
	ExpectedOutcomes []ExpectedOutcome `json:"expectedOutcomes"`
	FollowUpActions  []FollowUp        `json:"followUpActions"`
	Motivation       *Motivation       `json:"motivation,omitempty"`
}

var actionTemplates = map[trend.Metric]struct{ title, description string }{
	trend.MetricScore: {"Score drills",
		"Replay a familiar stage aiming to beat your best score, prioritizing special bubbles and chains."},
	trend.MetricAccuracy: {"Precision practice",
		"Play focusing on clean pops only; stop a run after three misses and restart."},
	trend.MetricPlayTime: {"Full sessions",
		"Plan sessions long enough to finish a stage without interruption."},
	trend.MetricCombo: {"Combo chaining",
		"Practice popping clusters in sequence to keep the combo counter alive."},
	trend.MetricCompletion: {"Finish what you start",
		"Choose stages at a comfortable difficulty and complete each one you begin."},
}

// collectWeaknesses gathers declined metrics and below average metrics,
// keeping the more severe finding per metric
func collectWeaknesses(in ImprovementInput) []TargetArea {
	found := make(map[trend.Metric]TargetArea)
	add := func(t TargetArea) {
		if prev, ok := found[t.Metric]; !ok || t.Severity > prev.Severity {
			found[t.Metric] = t
		}
	}

	if in.Past != nil {
		for _, p := range in.Past.Periods {
			c, ok := in.Past.Comparisons[p]
			if !ok || !c.Available {
				continue
			}
			for metric, mc := range c.Metrics {
				if mc.Trend != Declined {
					continue
				}
				add(TargetArea{
					Metric:   metric,
					Label:    mc.Label,
					Source:   SourceHistorical,
					Current:  mc.Current,
					Severity: math.Abs(mc.ChangePercent),
					Reason:   fmt.Sprintf("%s declined %s compared with the previous %s", capitalize(mc.Label), mc.DisplayChange, p),
				})
			}
		}
	}

	if in.Benchmark != nil && in.Benchmark.Comparison.Available {
		for metric, mc := range in.Benchmark.Comparison.Metrics {
			if mc.Performance != BelowAverage {
				continue
			}
			add(TargetArea{
				Metric:   metric,
				Label:    mc.Label,
				Source:   SourceBenchmark,
				Current:  mc.Current,
				Severity: 100 - mc.Percentile,
				Reason:   fmt.Sprintf("%s is at the %.0fth percentile of players", capitalize(mc.Label), mc.Percentile),
			})
		}
	}

	out := make([]TargetArea, 0, len(found))
	for _, t := range found {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Severity != out[j].Severity {
			return out[i].Severity > out[j].Severity
		}
		return out[i].Metric < out[j].Metric
	})
	return out
}

// GenerateImprovementSuggestions builds a plan from the weakest metrics of the
// comparisons. Without comparison data every collection is empty.
func GenerateImprovementSuggestions(in ImprovementInput, opts ImprovementOptions) Suggestions {
	opts = opts.normalize()
	profile := preferenceProfiles[opts.DifficultyPreference]

	targets := collectWeaknesses(in)
	if len(targets) > opts.FocusAreas {
		targets = targets[:opts.FocusAreas]
	}

	s := Suggestions{
		TargetAreas:      []TargetArea{},
		ActionPlan:       []Action{},
		ExpectedOutcomes: []ExpectedOutcome{},
		FollowUpActions:  []FollowUp{},
	}
	gain := profile.gain * float64(opts.TimeHorizon) / DefaultTimeHorizon
	for i, t := range targets {
		t.Priority = i + 1
		t.Target = projected(t.Metric, t.Current, gain)
		s.TargetAreas = append(s.TargetAreas, t)
		s.ActionPlan = append(s.ActionPlan, actionFor(t.Metric, profile, opts.TimeHorizon))
		s.ExpectedOutcomes = append(s.ExpectedOutcomes, ExpectedOutcome{
			Metric:             t.Metric,
			Current:            t.Current,
			Projected:          t.Target,
			ImprovementPercent: utils.Round(gain, 1),
			Confidence:         outcomeConfidence(profile.confidence, opts.TimeHorizon, i),
			TimeframeDays:      opts.TimeHorizon,
		})
	}
	if len(targets) > 0 {
		s.FollowUpActions = followUps(targets, opts.TimeHorizon)
	}

	if opts.IncludeMotivationalElements {
		s.Motivation = motivation(strengthsOf(in), targets, opts.TimeHorizon)
	}
	return s
}

// projected raises current by gain percent; ratios are capped at 1
func projected(metric trend.Metric, current, gain float64) float64 {
	v := current * (1 + gain/100)
	if metric == trend.MetricAccuracy || metric == trend.MetricCompletion {
		v = math.Min(1, v)
	}
	return v
}

// outcomeConfidence shrinks with a short horizon and with lower priority
func outcomeConfidence(base float64, horizon, index int) float64 {
	c := base
	if horizon < 14 {
		c *= 0.9
	}
	c -= 0.05 * float64(index)
	return utils.Round(math.Max(0, math.Min(1, c)), 2)
}

func actionFor(metric trend.Metric, profile preferenceProfile, horizon int) Action {
	tpl, ok := actionTemplates[metric]
	if !ok {
		tpl.title = "Practice " + metric.Label()
		tpl.description = "Set aside sessions dedicated to " + metric.Label() + "."
	}
	return Action{
		Metric:       metric,
		Title:        tpl.title,
		Description:  tpl.description,
		Difficulty:   profile.difficulty,
		DurationDays: horizon,
		Frequency:    fmt.Sprintf("%d sessions per week", profile.sessions),
	}
}

func followUps(targets []TargetArea, horizon int) []FollowUp {
	labels := make([]string, len(targets))
	for i, t := range targets {
		labels[i] = t.Label
	}
	focus := joinLabels(labels)

	var out []FollowUp
	for day := checkInInterval; day < horizon; day += checkInInterval {
		out = append(out, FollowUp{Day: day, Action: "Check progress on " + focus})
	}
	out = append(out, FollowUp{Day: horizon, Action: "Compare " + focus + " with the starting point and set the next goals"})
	return out
}

func joinLabels(labels []string) string {
	switch len(labels) {
	case 0:
		return ""
	case 1:
		return labels[0]
	default:
		out := labels[0]
		for _, l := range labels[1 : len(labels)-1] {
			out += ", " + l
		}
		return out + " and " + labels[len(labels)-1]
	}
}

func strengthsOf(in ImprovementInput) []string {
	var out []string
	if in.Past != nil {
		out = append(out, in.Past.Analysis.Strengths...)
	}
	if in.Benchmark != nil {
		out = append(out, in.Benchmark.Analysis.Strengths...)
	}
	return out
}

func motivation(strengths []string, targets []TargetArea, horizon int) *Motivation {
	m := &Motivation{
		Achievements: []string{},
		Milestones:   []Milestone{},
		Rewards: []string{
			"Unlock a harder stage once every target is reached",
			"Share a personal best when a milestone is met",
		},
	}
	m.Achievements = append(m.Achievements, strengths...)

	switch {
	case len(targets) == 0:
		m.Encouragement = "Great work! Nothing needs fixing right now, so set yourself a new challenge."
	case len(strengths) > 0:
		m.Encouragement = "You are already improving in some areas. Keep that momentum and tackle the rest step by step."
	default:
		m.Encouragement = "Every session is practice. Small steady gains add up quickly."
	}

	if len(targets) > 0 {
		first := targets[0]
		third := horizon / 3
		if third < 1 {
			third = 1
		}
		m.Milestones = append(m.Milestones,
			Milestone{Day: third, Goal: "Play regularly and get comfortable with the " + first.Label + " routine"},
			Milestone{Day: 2 * third, Goal: "Reach half of the " + first.Label + " target"},
			Milestone{Day: horizon, Goal: fmt.Sprintf("Reach %s %s", first.Label, FormatValue(first.Target, first.Metric))},
		)
	}
	return m
}
