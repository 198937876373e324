package anomaly

import (
	"fmt"
	"sort"
)

// NoAnomaliesSummary is reported for an empty result set
const NoAnomaliesSummary = "No anomalies detected in the analyzed period."

var recommendations = map[Type]string{
	TypeScoreOutlier:       "Review sessions with outlying scores for scoring bugs, exploits or unusual difficulty spikes.",
	TypeAccuracyDrop:       "Accuracy dropped sharply; consider easier warm-up stages or a short tutorial refresher.",
	TypePlaytime:           "Check sessions with unusual lengths for crashes, idle players or stages that end too quickly.",
	TypeComboInconsistency: "Combo results are inconsistent; practice modes focused on chaining could help stabilize play.",
	TypeInteraction:        "Reaction times are frequently slow; check input latency and consider adjusting bubble speed.",
	TypePerformance:        "Frame rate often falls below target; lower visual effects or profile rendering on affected devices.",
	TypeQuitPattern:        "Players are abandoning sessions; review difficulty and session pacing for frustration points.",
}

// SeverityBreakdown counts anomalies per severity; every level is present
func SeverityBreakdown(anomalies []Anomaly) map[Severity]int {
	out := make(map[Severity]int, 4)
	for _, s := range Severities() {
		out[s] = 0
	}
	for _, a := range anomalies {
		out[a.Severity]++
	}
	return out
}

// Summary describes the result set: count, high/critical share and the most
// frequent type (ties resolve to the type seen first)
func Summary(anomalies []Anomaly) string {
	if len(anomalies) == 0 {
		return NoAnomaliesSummary
	}

	severe := 0
	counts := make(map[Type]int)
	var order []Type
	for _, a := range anomalies {
		if a.Severity.Rank() >= SeverityHigh.Rank() {
			severe++
		}
		if counts[a.Type] == 0 {
			order = append(order, a.Type)
		}
		counts[a.Type]++
	}

	top := order[0]
	for _, t := range order[1:] {
		if counts[t] > counts[top] {
			top = t
		}
	}

	noun := "anomalies"
	if len(anomalies) == 1 {
		noun = "anomaly"
	}
	return fmt.Sprintf("Detected %d %s; %.0f%% are high or critical severity. Most frequent type: %s (%d).",
		len(anomalies), noun, float64(severe)/float64(len(anomalies))*100, top, counts[top])
}

// Recommendations returns one suggestion per distinct type in first-seen order
func Recommendations(anomalies []Anomaly) []string {
	out := []string{}
	seen := make(map[Type]bool)
	for _, a := range anomalies {
		if seen[a.Type] {
			continue
		}
		seen[a.Type] = true
		if rec, ok := recommendations[a.Type]; ok {
			out = append(out, rec)
		} else {
			out = append(out, fmt.Sprintf("Investigate %s anomalies.", a.Type))
		}
	}
	return out
}

// SortBySeverity orders anomalies most severe first, then by type. Anomalies
// of the same severity and type keep their rule order.
func SortBySeverity(anomalies []Anomaly) {
	sort.SliceStable(anomalies, func(i, j int) bool {
		ri, rj := anomalies[i].Severity.Rank(), anomalies[j].Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		return anomalies[i].Type < anomalies[j].Type
	})
}
