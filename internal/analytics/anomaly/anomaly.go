// Package anomaly evaluates rule families over a window of telemetry and
// keeps a bounded history of the alerts they raise.
package anomaly

import (
	"fmt"
	"time"

	"github.com/soltixdb/insight/internal/analytics"
	"github.com/soltixdb/insight/internal/config"
	"github.com/soltixdb/insight/internal/models"
)

// Type names a rule family
type Type string

const (
	TypeScoreOutlier       Type = "score_outlier"
	TypeAccuracyDrop       Type = "accuracy_drop"
	TypePlaytime           Type = "playtime_anomaly"
	TypeComboInconsistency Type = "combo_inconsistency"
	TypeInteraction        Type = "bubble_interaction_anomaly"
	TypePerformance        Type = "performance_degradation"
	TypeQuitPattern        Type = "unusual_quit_pattern"
)

// Subtypes
const (
	SubtypeOutlierHigh    = analytics.OutlierHigh
	SubtypeOutlierLow     = analytics.OutlierLow
	SubtypeUnusuallyShort = "unusually_short"
	SubtypeUnusuallyLong  = "unusually_long"
	SubtypeVariability    = "variability"
	SubtypeSlowReactions  = "slow_reactions"
	SubtypeLowFPS         = "low_fps"
)

// Quit patterns
const (
	PatternConsecutiveQuits = "consecutive_quits"
	PatternFrequentQuits    = "frequent_quits"
)

// Severity of an anomaly, ordered low < medium < high < critical
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists all levels in ascending order
func Severities() []Severity {
	return []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
}

// Rank orders severities
func (s Severity) Rank() int {
	switch s {
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

// Anomaly is one rule match
type Anomaly struct {
	ID            string             `json:"id"`
	Type          Type               `json:"type"`
	Subtype       string             `json:"subtype,omitempty"`
	Severity      Severity           `json:"severity"`
	SessionID     string             `json:"sessionId,omitempty"`
	Value         float64            `json:"value"`
	ZScore        float64            `json:"zScore,omitempty"`
	Ratio         float64            `json:"ratio,omitempty"`
	ExpectedRange *analytics.Range   `json:"expectedRange,omitempty"`
	Details       map[string]float64 `json:"details,omitempty"`
	Pattern       string             `json:"pattern,omitempty"`
	Description   string             `json:"description"`
	DetectedAt    time.Time          `json:"detectedAt"`
}

// SeverityBands maps "observed / threshold" to a severity
type SeverityBands struct {
	Medium   float64 `json:"medium"`
	High     float64 `json:"high"`
	Critical float64 `json:"critical"`
}

// Classify returns the severity of an excess ratio
func (b SeverityBands) Classify(excess float64) Severity {
	switch {
	case excess >= b.Critical:
		return SeverityCritical
	case excess >= b.High:
		return SeverityHigh
	case excess >= b.Medium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Of classifies observed against threshold; a non-positive threshold is low
func (b SeverityBands) Of(observed, threshold float64) Severity {
	if threshold <= 0 {
		return SeverityLow
	}
	return b.Classify(observed / threshold)
}

// Thresholds parameterize every rule
type Thresholds struct {
	Statistical         float64       `json:"statistical"`
	AccuracyDrop        float64       `json:"accuracyDrop"`
	PlaytimeZ           float64       `json:"playtimeZ"`
	ComboConsistency    float64       `json:"comboConsistency"`
	ReactionZ           float64       `json:"reactionZ"`
	SlowReactionRatio   float64       `json:"slowReactionRatio"`
	FPSFloor            float64       `json:"fpsFloor"`
	LowPerformanceRatio float64       `json:"lowPerformanceRatio"`
	QuitRatio           float64       `json:"quitRatio"`
	RecentSessions      int           `json:"recentSessions"`
	Severity            SeverityBands `json:"severity"`
}

// DefaultThresholds returns the configured defaults
func DefaultThresholds() Thresholds {
	return ThresholdsFrom(config.DefaultConfig().Analytics.Anomaly)
}

// ThresholdsFrom converts the anomaly config section
func ThresholdsFrom(c config.AnomalyConfig) Thresholds {
	return Thresholds{
		Statistical:         c.Statistical,
		AccuracyDrop:        c.AccuracyDrop,
		PlaytimeZ:           c.PlaytimeZ,
		ComboConsistency:    c.ComboConsistency,
		ReactionZ:           c.ReactionZ,
		SlowReactionRatio:   c.SlowReactionRatio,
		FPSFloor:            c.FPSFloor,
		LowPerformanceRatio: c.LowPerformanceRatio,
		QuitRatio:           c.QuitRatio,
		RecentSessions:      c.RecentSessions,
		Severity: SeverityBands{
			Medium:   c.Severity.Medium,
			High:     c.Severity.High,
			Critical: c.Severity.Critical,
		},
	}
}

// Validate checks ranges
func (t Thresholds) Validate() error {
	if t.Statistical <= 0 || t.PlaytimeZ <= 0 || t.ReactionZ <= 0 {
		return fmt.Errorf("z-score thresholds must be positive")
	}
	for name, v := range map[string]float64{
		"accuracyDrop":        t.AccuracyDrop,
		"comboConsistency":    t.ComboConsistency,
		"slowReactionRatio":   t.SlowReactionRatio,
		"lowPerformanceRatio": t.LowPerformanceRatio,
		"quitRatio":           t.QuitRatio,
	} {
		if v <= 0 || v >= 1 {
			return fmt.Errorf("%s must be in (0, 1), got %v", name, v)
		}
	}
	if t.FPSFloor <= 0 {
		return fmt.Errorf("fpsFloor must be positive")
	}
	if t.RecentSessions < 1 {
		return fmt.Errorf("recentSessions must be at least 1")
	}
	s := t.Severity
	if !(s.Medium >= 1 && s.High > s.Medium && s.Critical > s.High) {
		return fmt.Errorf("severity bands must satisfy 1 <= medium < high < critical")
	}
	return nil
}

// ThresholdUpdate is a partial update; nil fields are left untouched
type ThresholdUpdate struct {
	Statistical         *float64       `json:"statistical,omitempty"`
	AccuracyDrop        *float64       `json:"accuracyDrop,omitempty"`
	PlaytimeZ           *float64       `json:"playtimeZ,omitempty"`
	ComboConsistency    *float64       `json:"comboConsistency,omitempty"`
	ReactionZ           *float64       `json:"reactionZ,omitempty"`
	SlowReactionRatio   *float64       `json:"slowReactionRatio,omitempty"`
	FPSFloor            *float64       `json:"fpsFloor,omitempty"`
	LowPerformanceRatio *float64       `json:"lowPerformanceRatio,omitempty"`
	QuitRatio           *float64       `json:"quitRatio,omitempty"`
	RecentSessions      *int           `json:"recentSessions,omitempty"`
	Severity            *SeverityBands `json:"severity,omitempty"`
}

// Apply merges the update into t
func (u ThresholdUpdate) Apply(t Thresholds) Thresholds {
	setFloat := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	setFloat(&t.Statistical, u.Statistical)
	setFloat(&t.AccuracyDrop, u.AccuracyDrop)
	setFloat(&t.PlaytimeZ, u.PlaytimeZ)
	setFloat(&t.ComboConsistency, u.ComboConsistency)
	setFloat(&t.ReactionZ, u.ReactionZ)
	setFloat(&t.SlowReactionRatio, u.SlowReactionRatio)
	setFloat(&t.FPSFloor, u.FPSFloor)
	setFloat(&t.LowPerformanceRatio, u.LowPerformanceRatio)
	setFloat(&t.QuitRatio, u.QuitRatio)
	if u.RecentSessions != nil {
		t.RecentSessions = *u.RecentSessions
	}
	if u.Severity != nil {
		t.Severity = *u.Severity
	}
	return t
}

// Input is the telemetry a rule evaluates. Sessions are ordered by start time.
type Input struct {
	Sessions     []models.SessionRecord
	Interactions []models.InteractionRecord
	Performance  []models.PerformanceRecord
	Now          time.Time
}

// Rule is one anomaly family
type Rule interface {
	Name() Type
	Evaluate(in Input, th Thresholds) []Anomaly
}

var (
	ruleRegistry = make(map[Type]Rule)
	ruleOrder    []Type
)

// RegisterRule adds a rule; registering a name twice replaces the rule
func RegisterRule(rule Rule) {
	if _, exists := ruleRegistry[rule.Name()]; !exists {
		ruleOrder = append(ruleOrder, rule.Name())
	}
	ruleRegistry[rule.Name()] = rule
}

// GetRule returns a rule by name
func GetRule(name Type) (Rule, error) {
	if r, ok := ruleRegistry[name]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("unknown anomaly rule: %s", name)
}

// ListRules returns rule names in registration order
func ListRules() []Type {
	return append([]Type(nil), ruleOrder...)
}
