package anomaly

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soltixdb/insight/internal/models"
	"github.com/soltixdb/insight/internal/queue"
	"github.com/soltixdb/insight/internal/source"
	"github.com/soltixdb/insight/internal/utils"
)

func newDetector(t *testing.T, ss []models.SessionRecord, perf []models.PerformanceRecord) (*Detector, *source.MemorySource, *queue.MemoryQueue) {
	t.Helper()
	src := source.NewMemorySource(0)

	records := make([]models.Record, len(ss))
	for i, s := range ss {
		records[i] = s.Record()
	}
	src.SetData(utils.DataTypeSessions, records)

	perfRecords := make([]models.Record, len(perf))
	for i, p := range perf {
		perfRecords[i] = p.Record()
	}
	src.SetData(utils.DataTypePerformance, perfRecords)

	q := queue.NewMemoryQueue(0)
	t.Cleanup(func() { _ = q.Close() })

	cfg := DefaultConfig()
	cfg.Now = func() time.Time { return now }
	cfg.MaxAlertHistory = 3
	d, err := NewDetector(src, q, cfg)
	require.NoError(t, err)
	return d, src, q
}

func TestDetector_NoAnomalies(t *testing.T) {
	d, _, q := newDetector(t, sessions(6), nil)

	report, err := d.DetectAnomalies(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Empty(t, report.Anomalies)
	assert.NotNil(t, report.Anomalies)
	assert.Equal(t, NoAnomaliesSummary, report.Summary)
	assert.Len(t, report.SeverityBreakdown, 4)
	assert.Empty(t, report.Recommendations)
	assert.Equal(t, ListRules(), report.RulesEvaluated)
	assert.Equal(t, 6, report.DataPoints[utils.DataTypeSessions])
	assert.Equal(t, now, report.Window.End)
	assert.Equal(t, now.Add(-DefaultWindow), report.Window.Start)

	assert.Empty(t, d.History())
	assert.Empty(t, q.Messages(queue.DefaultSubject))
}

func TestDetector_DetectsAndPublishes(t *testing.T) {
	ss := sessions(5)
	for _, i := range []int{2, 3, 4} {
		ss[i].Completed = false
	}
	perf := performance(60, 60, 60, 60, 60, 20, 20, 20, 20, 20)
	d, _, q := newDetector(t, ss, perf)

	report, err := d.DetectAnomalies(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, report.Anomalies, 2)
	assert.Equal(t, 2, report.SeverityBreakdown[SeverityHigh])
	assert.Equal(t, TypePerformance, report.Anomalies[0].Type)
	assert.Equal(t, TypeQuitPattern, report.Anomalies[1].Type)
	assert.Len(t, report.Recommendations, 2)

	history := d.History()
	require.Len(t, history, 2)
	assert.Equal(t, report.Anomalies[0].ID, history[0].ID)

	msgs := q.Messages(queue.DefaultSubject)
	require.Len(t, msgs, 1)
	var batch AlertBatch
	require.NoError(t, json.Unmarshal(msgs[0], &batch))
	assert.Len(t, batch.Anomalies, 2)
	assert.Equal(t, report.Summary, batch.Summary)
}

func TestDetector_HistoryIsBounded(t *testing.T) {
	ss := sessions(5)
	for _, i := range []int{2, 3, 4} {
		ss[i].Completed = false
	}
	d, _, _ := newDetector(t, ss, performance(20, 20, 20, 20, 20))

	for i := 0; i < 3; i++ {
		_, err := d.DetectAnomalies(context.Background(), nil)
		require.NoError(t, err)
	}
	assert.Len(t, d.History(), 3)
	assert.Equal(t, 3, d.AlertHistory().Cap())
}

func TestDetector_Window(t *testing.T) {
	old := sessions(5)
	for i := range old {
		old[i].StartTime = old[i].StartTime.Add(-30 * 24 * time.Hour)
		old[i].EndTime = old[i].StartTime.Add(time.Minute)
		old[i].Completed = false
	}
	d, _, _ := newDetector(t, old, nil)

	report, err := d.DetectAnomalies(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, report.DataPoints[utils.DataTypeSessions])

	w := &Window{Start: now.Add(-40 * 24 * time.Hour), End: now}
	report, err = d.DetectAnomalies(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, 5, report.DataPoints[utils.DataTypeSessions])
	require.NotEmpty(t, report.Anomalies)
	assert.Equal(t, TypeQuitPattern, report.Anomalies[0].Type)
}

func TestDetector_StorageError(t *testing.T) {
	d, src, _ := newDetector(t, sessions(5), nil)
	src.FailWith(errors.New("connection refused"))

	_, err := d.DetectAnomalies(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, source.ErrStorage)
}

type failingPublisher struct{ queue.NopQueue }

func (failingPublisher) Publish(context.Context, string, []byte) error {
	return errors.New("broker down")
}

func TestDetector_PublishFailureDoesNotFail(t *testing.T) {
	ss := sessions(5)
	for _, i := range []int{2, 3, 4} {
		ss[i].Completed = false
	}
	src := source.NewMemorySource(0)
	records := make([]models.Record, len(ss))
	for i, s := range ss {
		records[i] = s.Record()
	}
	src.SetData(utils.DataTypeSessions, records)

	cfg := DefaultConfig()
	cfg.Now = func() time.Time { return now }
	d, err := NewDetector(src, failingPublisher{}, cfg)
	require.NoError(t, err)

	report, err := d.DetectAnomalies(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, report.Anomalies, 1)
	assert.Len(t, d.History(), 1)
}

func TestDetector_UpdateThresholds(t *testing.T) {
	d, _, _ := newDetector(t, sessions(5), nil)

	ratio := 0.5
	got, err := d.UpdateThresholds(ThresholdUpdate{QuitRatio: &ratio})
	require.NoError(t, err)
	assert.Equal(t, 0.5, got.QuitRatio)
	assert.Equal(t, 2.5, got.Statistical)
	assert.Equal(t, got, d.Thresholds())

	bad := 2.0
	_, err = d.UpdateThresholds(ThresholdUpdate{AccuracyDrop: &bad})
	assert.Error(t, err)
	assert.Equal(t, 0.3, d.Thresholds().AccuracyDrop)
}

func TestDetector_RuleSubset(t *testing.T) {
	ss := sessions(5)
	for _, i := range []int{2, 3, 4} {
		ss[i].Completed = false
	}
	src := source.NewMemorySource(0)
	records := make([]models.Record, len(ss))
	for i, s := range ss {
		records[i] = s.Record()
	}
	src.SetData(utils.DataTypeSessions, records)

	cfg := DefaultConfig()
	cfg.Now = func() time.Time { return now }
	cfg.Rules = []Type{TypeScoreOutlier}
	d, err := NewDetector(src, nil, cfg)
	require.NoError(t, err)

	report, err := d.DetectAnomalies(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, report.Anomalies)
	assert.Equal(t, []Type{TypeScoreOutlier}, report.RulesEvaluated)

	cfg.Rules = []Type{"nope"}
	_, err = NewDetector(src, nil, cfg)
	assert.Error(t, err)
}
