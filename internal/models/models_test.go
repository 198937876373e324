package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordAccessors(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	r := Record{
		"score":     "42.5",
		"completed": "true",
		"count":     3,
		"flag":      1.0,
		"iso":       "2024-03-01T10:00:00Z",
		"epoch":     float64(ts.UnixMilli()),
		"native":    ts,
		"label":     "normal",
	}

	f, ok := r.Float("score")
	assert.True(t, ok)
	assert.Equal(t, 42.5, f)

	_, ok = r.Float("missing")
	assert.False(t, ok)

	b, ok := r.Bool("completed")
	assert.True(t, ok)
	assert.True(t, b)

	b, ok = r.Bool("flag")
	assert.True(t, ok)
	assert.True(t, b)

	assert.Equal(t, "3", r.String("count"))
	assert.Equal(t, "normal", r.String("label"))
	assert.Equal(t, "", r.String("missing"))

	for _, field := range []string{"iso", "epoch", "native"} {
		got, ok := r.Time(field)
		assert.True(t, ok, field)
		assert.True(t, got.Equal(ts), field)
	}
}

func TestSessionRoundTripAndDerivedValues(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	withEnd := SessionRecord{
		SessionID:     "s1",
		StartTime:     start,
		EndTime:       start.Add(300 * time.Second),
		BubblesPopped: 80,
		BubblesMissed: 20,
		Completed:     true,
	}
	assert.Equal(t, 300*time.Second, withEnd.PlayTime())
	assert.InDelta(t, 0.8, withEnd.Accuracy(), 1e-9)
	assert.False(t, withEnd.Quit())

	decoded := SessionFromRecord(withEnd.Record())
	assert.Equal(t, withEnd.SessionID, decoded.SessionID)
	assert.True(t, decoded.StartTime.Equal(start))
	assert.Equal(t, 300*time.Second, decoded.PlayTime())

	durationOnly := SessionFromRecord(Record{
		FieldSessionID:  "s2",
		FieldStartTime:  start,
		FieldDuration:   120000,
		FieldExitReason: "timeout",
	})
	assert.Equal(t, 120*time.Second, durationOnly.PlayTime())
	assert.True(t, durationOnly.Quit())
	assert.Equal(t, 0.0, durationOnly.Accuracy())
}

func TestPerformanceFromRecord_NestedMemory(t *testing.T) {
	p := PerformanceFromRecord(Record{
		FieldSessionID: "s1",
		FieldFPS:       58,
		"memoryUsage":  map[string]interface{}{"used": 100.0, "total": 400.0},
	})
	assert.Equal(t, 58.0, p.FPS)
	assert.Equal(t, 100.0, p.MemoryUsed)
	assert.Equal(t, 400.0, p.MemoryTotal)
}

func TestFilterMatchesAndNormalize(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	f := Between(start, start.Add(24*time.Hour))
	f.SessionID = "s1"
	f.Custom = map[string]interface{}{"completed": true}

	in := Record{FieldTimestamp: start.Add(time.Hour), FieldSessionID: "s1", "completed": true}
	out := Record{FieldTimestamp: start.Add(48 * time.Hour), FieldSessionID: "s1", "completed": true}
	other := Record{FieldTimestamp: start.Add(time.Hour), FieldSessionID: "s2", "completed": true}
	noTime := Record{FieldSessionID: "s1", "completed": true}

	assert.True(t, f.Matches(in))
	assert.False(t, f.Matches(out))
	assert.False(t, f.Matches(other))
	assert.False(t, f.Matches(noTime))

	n := Filter{Limit: 20000}.Normalize(0)
	assert.Equal(t, 10000, n.Limit)
	assert.Equal(t, SortAsc, n.SortOrder)

	n = Filter{Limit: 5, SortOrder: SortDesc}.Normalize(100)
	assert.Equal(t, 5, n.Limit)
	assert.Equal(t, SortDesc, n.SortOrder)

	n = Filter{}.CapLimit(100)
	assert.Equal(t, 100, n.Limit)
	assert.Empty(t, n.SortOrder)
}

func TestEnvelopeBuilders(t *testing.T) {
	ok := OK([]int{1}, Metadata{Cached: true})
	assert.True(t, ok.Success)
	assert.Nil(t, ok.Error)

	fail := Fail("STORAGE_FAILURE", "Database error", nil, Metadata{})
	assert.False(t, fail.Success)
	assert.Equal(t, "Database error", fail.Error.Message)
}
