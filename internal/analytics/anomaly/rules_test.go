package anomaly

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soltixdb/insight/internal/models"
)

var now = time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC)

func session(i int) models.SessionRecord {
	start := now.Add(-time.Duration(24-i) * time.Hour)
	return models.SessionRecord{
		SessionID:     fmt.Sprintf("s%02d", i),
		StartTime:     start,
		EndTime:       start.Add(5 * time.Minute),
		FinalScore:    1000,
		BubblesPopped: 90,
		BubblesMissed: 10,
		MaxCombo:      10,
		Completed:     true,
	}
}

func sessions(n int) []models.SessionRecord {
	out := make([]models.SessionRecord, n)
	for i := range out {
		out[i] = session(i)
	}
	return out
}

func evaluate(t *testing.T, name Type, in Input) []Anomaly {
	t.Helper()
	r, err := GetRule(name)
	require.NoError(t, err)
	in.Now = now
	return r.Evaluate(in, DefaultThresholds())
}

func TestScoreOutlierRule(t *testing.T) {
	ss := sessions(9)
	for i := range ss {
		ss[i].FinalScore = 100
	}
	ss[8].FinalScore = 1000

	got := evaluate(t, TypeScoreOutlier, Input{Sessions: ss})
	require.Len(t, got, 1)
	a := got[0]
	assert.Equal(t, "s08", a.SessionID)
	assert.Equal(t, SubtypeOutlierHigh, a.Subtype)
	assert.InDelta(t, 2.828, a.ZScore, 1e-3)
	assert.Equal(t, SeverityLow, a.Severity)
	require.NotNil(t, a.ExpectedRange)
	assert.Less(t, a.ExpectedRange.Max, 1000.0)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, now, a.DetectedAt)
}

func TestScoreOutlierRule_TooFewSessions(t *testing.T) {
	ss := sessions(4)
	ss[3].FinalScore = 100000
	assert.Empty(t, evaluate(t, TypeScoreOutlier, Input{Sessions: ss}))
}

func TestAccuracyDropRule(t *testing.T) {
	ss := sessions(5)
	ss[4].BubblesPopped = 30
	ss[4].BubblesMissed = 70

	got := evaluate(t, TypeAccuracyDrop, Input{Sessions: ss})
	require.Len(t, got, 1)
	a := got[0]
	assert.Equal(t, "s04", a.SessionID)
	assert.InDelta(t, 0.3, a.Value, 1e-9)
	assert.InDelta(t, 2.0/3.0, a.Ratio, 1e-9)
	assert.Equal(t, SeverityCritical, a.Severity)
	assert.InDelta(t, 0.9, a.Details["trailingAverage"], 1e-9)
}

func TestAccuracyDropRule_IgnoresSessionsWithoutBubbles(t *testing.T) {
	ss := sessions(4)
	ss[0].BubblesPopped, ss[0].BubblesMissed = 0, 0
	ss[1].BubblesPopped, ss[1].BubblesMissed = 0, 0
	ss[3].BubblesPopped, ss[3].BubblesMissed = 10, 90

	assert.Empty(t, evaluate(t, TypeAccuracyDrop, Input{Sessions: ss}))
}

func TestPlaytimeRule(t *testing.T) {
	long := sessions(9)
	long[8].EndTime = long[8].StartTime.Add(50 * time.Minute)

	got := evaluate(t, TypePlaytime, Input{Sessions: long})
	require.Len(t, got, 1)
	assert.Equal(t, SubtypeUnusuallyLong, got[0].Subtype)
	assert.Equal(t, 3000.0, got[0].Value)
	assert.Equal(t, SeverityMedium, got[0].Severity)

	short := sessions(9)
	short[2].EndTime = short[2].StartTime.Add(10 * time.Second)

	got = evaluate(t, TypePlaytime, Input{Sessions: short})
	require.Len(t, got, 1)
	assert.Equal(t, SubtypeUnusuallyShort, got[0].Subtype)
	assert.Equal(t, "s02", got[0].SessionID)
	assert.GreaterOrEqual(t, got[0].ExpectedRange.Min, 0.0)
}

func TestComboRule(t *testing.T) {
	ss := sessions(5)
	for i, c := range []int{1, 50, 2, 40, 1} {
		ss[i].MaxCombo = c
	}

	got := evaluate(t, TypeComboInconsistency, Input{Sessions: ss})
	require.Len(t, got, 1)
	a := got[0]
	assert.Equal(t, SubtypeVariability, a.Subtype)
	assert.Empty(t, a.SessionID)
	assert.Less(t, a.Value, 0.5)
	assert.InDelta(t, 1-a.Value, a.Ratio, 1e-9)
	assert.Equal(t, SeverityCritical, a.Severity)
}

func TestComboRule_Consistent(t *testing.T) {
	ss := sessions(4)
	ss[1].MaxCombo = 11
	assert.Empty(t, evaluate(t, TypeComboInconsistency, Input{Sessions: ss}))
	assert.Empty(t, evaluate(t, TypeComboInconsistency, Input{Sessions: sessions(2)}))
}

func interactions(sessionID string, reactions ...float64) []models.InteractionRecord {
	out := make([]models.InteractionRecord, len(reactions))
	for i, rt := range reactions {
		out[i] = models.InteractionRecord{
			SessionID:    sessionID,
			Timestamp:    now.Add(time.Duration(i) * time.Second),
			Category:     "normal",
			Action:       "pop",
			ReactionTime: rt,
		}
	}
	return out
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestInteractionRule(t *testing.T) {
	var in Input
	in.Interactions = append(in.Interactions, interactions("fast", repeat(200, 20)...)...)
	in.Interactions = append(in.Interactions, interactions("steady", 200, 210, 190, 205, 195, 200)...)
	slow := append(repeat(100, 7), 1000, 1000, 1000)
	in.Interactions = append(in.Interactions, interactions("slow", slow...)...)

	got := evaluate(t, TypeInteraction, in)
	require.Len(t, got, 1)
	a := got[0]
	assert.Equal(t, "slow", a.SessionID)
	assert.Equal(t, SubtypeSlowReactions, a.Subtype)
	assert.InDelta(t, 0.3, a.Ratio, 1e-9)
	assert.Equal(t, SeverityMedium, a.Severity)
	assert.Equal(t, 3.0, a.Details["slowReactions"])
	assert.InDelta(t, 370, a.Details["sessionMean"], 1e-9)
	assert.InDelta(t, 412.43, a.Details["sessionStdDev"], 0.01)
	require.NotNil(t, a.ExpectedRange)
	assert.InDelta(t, 988.65, a.ExpectedRange.Max, 0.01)
}

func TestInteractionRule_UsesSessionBaseline(t *testing.T) {
	var in Input
	// slow compared to the other session, but uniform within itself
	in.Interactions = append(in.Interactions, interactions("uniform_slow", repeat(2000, 5)...)...)
	in.Interactions = append(in.Interactions, interactions("fast", repeat(200, 20)...)...)
	assert.Empty(t, evaluate(t, TypeInteraction, in))

	// one spike among five stays under the slow ratio
	spike := Input{Interactions: interactions("a", 200, 200, 200, 200, 2000)}
	assert.Empty(t, evaluate(t, TypeInteraction, spike))
}

func TestInteractionRule_NotEnoughData(t *testing.T) {
	in := Input{Interactions: interactions("a", 100, 5000, 100)}
	assert.Empty(t, evaluate(t, TypeInteraction, in))

	uniform := Input{Interactions: interactions("a", repeat(300, 10)...)}
	assert.Empty(t, evaluate(t, TypeInteraction, uniform))
}

func performance(fps ...float64) []models.PerformanceRecord {
	out := make([]models.PerformanceRecord, len(fps))
	for i, f := range fps {
		out[i] = models.PerformanceRecord{SessionID: "p", Timestamp: now.Add(-time.Duration(i+1) * time.Minute), FPS: f}
	}
	return out
}

func TestPerformanceRule(t *testing.T) {
	in := Input{Performance: performance(60, 60, 60, 60, 60, 20, 20, 20, 20, 20)}

	got := evaluate(t, TypePerformance, in)
	require.Len(t, got, 1)
	a := got[0]
	assert.Equal(t, SubtypeLowFPS, a.Subtype)
	assert.InDelta(t, 0.5, a.Ratio, 1e-9)
	assert.InDelta(t, 40, a.Value, 1e-9)
	assert.Equal(t, SeverityHigh, a.Severity)

	healthy := Input{Performance: performance(60, 58, 25, 60, 59)}
	assert.Empty(t, evaluate(t, TypePerformance, healthy))

	few := Input{Performance: performance(10, 10, 10)}
	assert.Empty(t, evaluate(t, TypePerformance, few))
}

func TestQuitPatternRule(t *testing.T) {
	consecutive := sessions(5)
	for _, i := range []int{2, 3, 4} {
		consecutive[i].Completed = false
	}
	got := evaluate(t, TypeQuitPattern, Input{Sessions: consecutive})
	require.Len(t, got, 1)
	assert.Equal(t, PatternConsecutiveQuits, got[0].Pattern)
	assert.InDelta(t, 0.6, got[0].Ratio, 1e-9)
	assert.Equal(t, SeverityHigh, got[0].Severity)

	frequent := sessions(5)
	for _, i := range []int{0, 2, 4} {
		frequent[i].ExitReason = "user_quit"
	}
	got = evaluate(t, TypeQuitPattern, Input{Sessions: frequent})
	require.Len(t, got, 1)
	assert.Equal(t, PatternFrequentQuits, got[0].Pattern)
}

func TestQuitPatternRule_OnlyRecentSessions(t *testing.T) {
	ss := sessions(12)
	ss[0].Completed = false
	ss[1].Completed = false

	assert.Empty(t, evaluate(t, TypeQuitPattern, Input{Sessions: ss}))
	assert.Empty(t, evaluate(t, TypeQuitPattern, Input{Sessions: sessions(2)}))
}
