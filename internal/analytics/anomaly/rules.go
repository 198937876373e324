package anomaly

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/soltixdb/insight/internal/analytics"
	"github.com/soltixdb/insight/internal/models"
)

// Minimum samples per rule
const (
	minScoreSessions       = analytics.MinOutlierPoints
	minAccuracySessions    = analytics.MinAccuracyPoints
	minPlaytimeSessions    = analytics.MinOutlierPoints
	minComboSessions       = 3
	minSessionInteractions = 5
	minPerformanceSamples  = 5
	minQuitSessions        = 3
	accuracyTrailingWindow = 5
	consecutiveQuitRun     = 3
)

func init() {
	RegisterRule(scoreOutlierRule{})
	RegisterRule(accuracyDropRule{})
	RegisterRule(playtimeRule{})
	RegisterRule(comboRule{})
	RegisterRule(interactionRule{})
	RegisterRule(performanceRule{})
	RegisterRule(quitPatternRule{})
}

func newAnomaly(t Type, in Input) Anomaly {
	return Anomaly{ID: uuid.NewString(), Type: t, DetectedAt: in.Now}
}

// scoreOutlierRule flags final scores far from the window mean
type scoreOutlierRule struct{}

func (scoreOutlierRule) Name() Type { return TypeScoreOutlier }

func (r scoreOutlierRule) Evaluate(in Input, th Thresholds) []Anomaly {
	scores := make([]float64, len(in.Sessions))
	for i, s := range in.Sessions {
		scores[i] = s.FinalScore
	}

	var out []Anomaly
	for _, o := range analytics.DetectOutliersMin(scores, th.Statistical, minScoreSessions) {
		s := in.Sessions[o.Index]
		a := newAnomaly(r.Name(), in)
		a.Subtype = o.Type
		a.SessionID = s.SessionID
		a.Value = o.Value
		a.ZScore = o.ZScore
		a.ExpectedRange = &analytics.Range{Min: o.ExpectedRange.Min, Max: o.ExpectedRange.Max}
		a.Severity = th.Severity.Of(math.Abs(o.ZScore), th.Statistical)
		direction := "above"
		if o.ZScore < 0 {
			direction = "below"
		}
		a.Description = fmt.Sprintf("Session %s scored %.0f, %.1f standard deviations %s the average",
			s.SessionID, o.Value, math.Abs(o.ZScore), direction)
		out = append(out, a)
	}
	return out
}

// accuracyDropRule compares each session's accuracy to the trailing average
// of the sessions before it
type accuracyDropRule struct{}

func (accuracyDropRule) Name() Type { return TypeAccuracyDrop }

func (r accuracyDropRule) Evaluate(in Input, th Thresholds) []Anomaly {
	var sessions []models.SessionRecord
	for _, s := range in.Sessions {
		if s.BubblesPopped+s.BubblesMissed > 0 {
			sessions = append(sessions, s)
		}
	}
	if len(sessions) < minAccuracySessions {
		return nil
	}

	var out []Anomaly
	for i := 2; i < len(sessions); i++ {
		from := i - accuracyTrailingWindow
		if from < 0 {
			from = 0
		}
		trailing := 0.0
		for _, prev := range sessions[from:i] {
			trailing += prev.Accuracy()
		}
		trailing /= float64(i - from)
		if trailing <= 0 {
			continue
		}

		acc := sessions[i].Accuracy()
		drop := (trailing - acc) / trailing
		if drop <= th.AccuracyDrop {
			continue
		}

		a := newAnomaly(r.Name(), in)
		a.SessionID = sessions[i].SessionID
		a.Value = acc
		a.Ratio = drop
		a.Severity = th.Severity.Of(drop, th.AccuracyDrop)
		a.Details = map[string]float64{
			"accuracy":        acc,
			"trailingAverage": trailing,
			"drop":            drop,
		}
		a.Description = fmt.Sprintf("Accuracy in session %s fell to %.0f%%, %.0f%% below the recent average of %.0f%%",
			a.SessionID, acc*100, drop*100, trailing*100)
		out = append(out, a)
	}
	return out
}

// playtimeRule flags unusually short or long sessions
type playtimeRule struct{}

func (playtimeRule) Name() Type { return TypePlaytime }

func (r playtimeRule) Evaluate(in Input, th Thresholds) []Anomaly {
	var sessions []models.SessionRecord
	var durations []float64
	for _, s := range in.Sessions {
		if d := s.PlayTime().Seconds(); d > 0 {
			sessions = append(sessions, s)
			durations = append(durations, d)
		}
	}

	var out []Anomaly
	for _, o := range analytics.DetectOutliersMin(durations, th.PlaytimeZ, minPlaytimeSessions) {
		s := sessions[o.Index]
		a := newAnomaly(r.Name(), in)
		a.SessionID = s.SessionID
		a.Value = o.Value
		a.ZScore = o.ZScore
		a.ExpectedRange = &analytics.Range{Min: math.Max(0, o.ExpectedRange.Min), Max: o.ExpectedRange.Max}
		a.Severity = th.Severity.Of(math.Abs(o.ZScore), th.PlaytimeZ)
		a.Subtype = SubtypeUnusuallyLong
		label := "unusually long"
		if o.ZScore < 0 {
			a.Subtype = SubtypeUnusuallyShort
			label = "unusually short"
		}
		a.Description = fmt.Sprintf("Session %s lasted %.0fs, which is %s", s.SessionID, o.Value, label)
		out = append(out, a)
	}
	return out
}

// comboRule measures how consistent max combos are across sessions
type comboRule struct{}

func (comboRule) Name() Type { return TypeComboInconsistency }

func (r comboRule) Evaluate(in Input, th Thresholds) []Anomaly {
	if len(in.Sessions) < minComboSessions {
		return nil
	}
	combos := make([]float64, len(in.Sessions))
	for i, s := range in.Sessions {
		combos[i] = float64(s.MaxCombo)
	}

	mean, std := stat.PopMeanStdDev(combos, nil)
	if mean <= 0 {
		return nil
	}
	variability := std / mean
	consistency := 1 - variability
	if consistency >= th.ComboConsistency {
		return nil
	}

	a := newAnomaly(r.Name(), in)
	a.Subtype = SubtypeVariability
	a.Value = consistency
	a.Ratio = variability
	a.Severity = th.Severity.Of(variability, 1-th.ComboConsistency)
	a.Details = map[string]float64{
		"consistencyScore": consistency,
		"variability":      variability,
		"mean":             mean,
		"stdDev":           std,
	}
	a.Description = fmt.Sprintf("Max combo varies widely between sessions (consistency %.2f, variability %.0f%%)",
		consistency, variability*100)
	return []Anomaly{a}
}

// interactionRule flags sessions where a large share of reactions are slow
// relative to the session's own reaction time distribution
type interactionRule struct{}

func (interactionRule) Name() Type { return TypeInteraction }

func (r interactionRule) Evaluate(in Input, th Thresholds) []Anomaly {
	bySession := make(map[string][]float64)
	for _, it := range in.Interactions {
		if it.ReactionTime <= 0 {
			continue
		}
		bySession[it.SessionID] = append(bySession[it.SessionID], it.ReactionTime)
	}

	ids := make([]string, 0, len(bySession))
	for id := range bySession {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []Anomaly
	for _, id := range ids {
		times := bySession[id]
		if len(times) < minSessionInteractions {
			continue
		}
		mean, std := stat.PopMeanStdDev(times, nil)
		if std == 0 {
			continue
		}
		cutoff := mean + th.ReactionZ*std

		slow := 0
		for _, rt := range times {
			if rt > cutoff {
				slow++
			}
		}
		ratio := float64(slow) / float64(len(times))
		if ratio <= th.SlowReactionRatio {
			continue
		}

		a := newAnomaly(r.Name(), in)
		a.Subtype = SubtypeSlowReactions
		a.SessionID = id
		a.Value = mean
		a.Ratio = ratio
		a.ExpectedRange = &analytics.Range{Min: 0, Max: cutoff}
		a.Severity = th.Severity.Of(ratio, th.SlowReactionRatio)
		a.Details = map[string]float64{
			"slowReactions": float64(slow),
			"interactions":  float64(len(times)),
			"sessionMean":   mean,
			"sessionStdDev": std,
		}
		a.Description = fmt.Sprintf("%.0f%% of reactions in session %s were slower than %.0fms",
			ratio*100, id, cutoff)
		out = append(out, a)
	}
	return out
}

// performanceRule flags a window where too many samples fall under the FPS floor
type performanceRule struct{}

func (performanceRule) Name() Type { return TypePerformance }

func (r performanceRule) Evaluate(in Input, th Thresholds) []Anomaly {
	if len(in.Performance) < minPerformanceSamples {
		return nil
	}
	low := 0
	sum := 0.0
	for _, p := range in.Performance {
		sum += p.FPS
		if p.FPS < th.FPSFloor {
			low++
		}
	}
	ratio := float64(low) / float64(len(in.Performance))
	if ratio <= th.LowPerformanceRatio {
		return nil
	}

	avg := sum / float64(len(in.Performance))
	a := newAnomaly(r.Name(), in)
	a.Subtype = SubtypeLowFPS
	a.Value = avg
	a.Ratio = ratio
	a.Severity = th.Severity.Of(ratio, th.LowPerformanceRatio)
	a.Details = map[string]float64{
		"lowPerformanceRatio": ratio,
		"averageFps":          avg,
		"samples":             float64(len(in.Performance)),
		"fpsFloor":            th.FPSFloor,
	}
	a.Description = fmt.Sprintf("%.0f%% of performance samples were below %.0f FPS (average %.1f FPS)",
		ratio*100, th.FPSFloor, avg)
	return []Anomaly{a}
}

// quitPatternRule looks at the share of unfinished sessions among the most recent ones
type quitPatternRule struct{}

func (quitPatternRule) Name() Type { return TypeQuitPattern }

func (r quitPatternRule) Evaluate(in Input, th Thresholds) []Anomaly {
	recent := in.Sessions
	if n := th.RecentSessions; n > 0 && len(recent) > n {
		recent = recent[len(recent)-n:]
	}
	if len(recent) < minQuitSessions {
		return nil
	}

	quits := 0
	for _, s := range recent {
		if s.Quit() {
			quits++
		}
	}
	ratio := float64(quits) / float64(len(recent))
	if ratio <= th.QuitRatio {
		return nil
	}

	pattern := PatternFrequentQuits
	if trailingQuits(recent) >= consecutiveQuitRun {
		pattern = PatternConsecutiveQuits
	}

	a := newAnomaly(r.Name(), in)
	a.Pattern = pattern
	a.Value = float64(quits)
	a.Ratio = ratio
	a.Severity = th.Severity.Of(ratio, th.QuitRatio)
	a.Details = map[string]float64{
		"quitRatio": ratio,
		"quits":     float64(quits),
		"sessions":  float64(len(recent)),
	}
	a.Description = fmt.Sprintf("%d of the last %d sessions were abandoned (%s)", quits, len(recent), pattern)
	return []Anomaly{a}
}

// trailingQuits counts consecutive quits at the end of the slice
func trailingQuits(sessions []models.SessionRecord) int {
	n := 0
	for i := len(sessions) - 1; i >= 0 && sessions[i].Quit(); i-- {
		n++
	}
	return n
}
