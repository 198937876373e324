package models

import (
	"time"
)

// Record field names
const (
	FieldSessionID     = "sessionId"
	FieldPlayerID      = "playerId"
	FieldStageID       = "stageId"
	FieldTimestamp     = "timestamp"
	FieldStartTime     = "startTime"
	FieldEndTime       = "endTime"
	FieldDuration      = "duration"
	FieldFinalScore    = "finalScore"
	FieldBubblesPopped = "bubblesPopped"
	FieldBubblesMissed = "bubblesMissed"
	FieldMaxCombo      = "maxCombo"
	FieldCompleted     = "completed"
	FieldExitReason    = "exitReason"
	FieldCategory      = "bubbleType"
	FieldAction        = "action"
	FieldReactionTime  = "reactionTime"
	FieldScoreGained   = "scoreGained"
	FieldFPS           = "fps"
	FieldMemoryUsed    = "memoryUsed"
	FieldMemoryTotal   = "memoryTotal"
)

// ExitReasonCompleted marks a session that ended normally
const ExitReasonCompleted = "completed"

// SessionRecord is one play session
type SessionRecord struct {
	SessionID     string        `json:"sessionId"`
	PlayerID      string        `json:"playerId,omitempty"`
	StageID       string        `json:"stageId,omitempty"`
	StartTime     time.Time     `json:"startTime"`
	EndTime       time.Time     `json:"endTime,omitempty"`
	Duration      time.Duration `json:"duration,omitempty"`
	FinalScore    float64       `json:"finalScore"`
	BubblesPopped int           `json:"bubblesPopped"`
	BubblesMissed int           `json:"bubblesMissed"`
	MaxCombo      int           `json:"maxCombo"`
	Completed     bool          `json:"completed"`
	ExitReason    string        `json:"exitReason,omitempty"`
}

// PlayTime returns the session length; an explicit duration is used when the end time is unknown
func (s SessionRecord) PlayTime() time.Duration {
	if !s.EndTime.IsZero() && !s.StartTime.IsZero() && s.EndTime.After(s.StartTime) {
		return s.EndTime.Sub(s.StartTime)
	}
	return s.Duration
}

// Accuracy returns popped / (popped + missed), 0 when no bubbles were seen
func (s SessionRecord) Accuracy() float64 {
	total := s.BubblesPopped + s.BubblesMissed
	if total == 0 {
		return 0
	}
	return float64(s.BubblesPopped) / float64(total)
}

// Quit reports whether the session ended without completion
func (s SessionRecord) Quit() bool {
	if s.ExitReason != "" {
		return s.ExitReason != ExitReasonCompleted
	}
	return !s.Completed
}

// SessionFromRecord decodes a session. Duration is read in milliseconds.
func SessionFromRecord(r Record) SessionRecord {
	s := SessionRecord{
		SessionID:  r.String(FieldSessionID),
		PlayerID:   r.String(FieldPlayerID),
		StageID:    r.String(FieldStageID),
		ExitReason: r.String(FieldExitReason),
	}
	if t, ok := r.Timestamp(); ok {
		s.StartTime = t
	}
	if t, ok := r.Time(FieldEndTime); ok {
		s.EndTime = t
	}
	if ms, ok := r.Float(FieldDuration); ok {
		s.Duration = time.Duration(ms * float64(time.Millisecond))
	}
	s.FinalScore, _ = r.Float(FieldFinalScore)
	if v, ok := r.Float(FieldBubblesPopped); ok {
		s.BubblesPopped = int(v)
	}
	if v, ok := r.Float(FieldBubblesMissed); ok {
		s.BubblesMissed = int(v)
	}
	if v, ok := r.Float(FieldMaxCombo); ok {
		s.MaxCombo = int(v)
	}
	s.Completed, _ = r.Bool(FieldCompleted)
	return s
}

// Record encodes the session in the source's field layout
func (s SessionRecord) Record() Record {
	r := Record{
		FieldSessionID:     s.SessionID,
		FieldStartTime:     s.StartTime,
		FieldTimestamp:     s.StartTime,
		FieldFinalScore:    s.FinalScore,
		FieldBubblesPopped: s.BubblesPopped,
		FieldBubblesMissed: s.BubblesMissed,
		FieldMaxCombo:      s.MaxCombo,
		FieldCompleted:     s.Completed,
	}
	if s.PlayerID != "" {
		r[FieldPlayerID] = s.PlayerID
	}
	if s.StageID != "" {
		r[FieldStageID] = s.StageID
	}
	if !s.EndTime.IsZero() {
		r[FieldEndTime] = s.EndTime
	}
	if s.Duration > 0 {
		r[FieldDuration] = s.Duration.Milliseconds()
	}
	if s.ExitReason != "" {
		r[FieldExitReason] = s.ExitReason
	}
	return r
}

// SessionsFromRecords decodes a slice of records
func SessionsFromRecords(records []Record) []SessionRecord {
	out := make([]SessionRecord, len(records))
	for i, r := range records {
		out[i] = SessionFromRecord(r)
	}
	return out
}

// InteractionRecord is one bubble interaction
type InteractionRecord struct {
	SessionID    string    `json:"sessionId"`
	Timestamp    time.Time `json:"timestamp"`
	Category     string    `json:"bubbleType"`
	Action       string    `json:"action"`
	ReactionTime float64   `json:"reactionTime"` // milliseconds
	ScoreGained  float64   `json:"scoreGained"`
}

// InteractionFromRecord decodes an interaction
func InteractionFromRecord(r Record) InteractionRecord {
	i := InteractionRecord{
		SessionID: r.String(FieldSessionID),
		Category:  r.String(FieldCategory),
		Action:    r.String(FieldAction),
	}
	i.Timestamp, _ = r.Timestamp()
	i.ReactionTime, _ = r.Float(FieldReactionTime)
	i.ScoreGained, _ = r.Float(FieldScoreGained)
	return i
}

// Record encodes the interaction
func (i InteractionRecord) Record() Record {
	return Record{
		FieldSessionID:    i.SessionID,
		FieldTimestamp:    i.Timestamp,
		FieldCategory:     i.Category,
		FieldAction:       i.Action,
		FieldReactionTime: i.ReactionTime,
		FieldScoreGained:  i.ScoreGained,
	}
}

// PerformanceRecord is one client performance sample
type PerformanceRecord struct {
	SessionID   string    `json:"sessionId"`
	Timestamp   time.Time `json:"timestamp"`
	FPS         float64   `json:"fps"`
	MemoryUsed  float64   `json:"memoryUsed"`
	MemoryTotal float64   `json:"memoryTotal"`
}

// PerformanceFromRecord decodes a performance sample. Both flat fields and the
// nested memoryUsage{used,total} object are accepted.
func PerformanceFromRecord(r Record) PerformanceRecord {
	p := PerformanceRecord{SessionID: r.String(FieldSessionID)}
	p.Timestamp, _ = r.Timestamp()
	p.FPS, _ = r.Float(FieldFPS)
	p.MemoryUsed, _ = r.Float(FieldMemoryUsed)
	p.MemoryTotal, _ = r.Float(FieldMemoryTotal)

	if mem, ok := r["memoryUsage"].(map[string]interface{}); ok {
		nested := Record(mem)
		if v, ok := nested.Float("used"); ok {
			p.MemoryUsed = v
		}
		if v, ok := nested.Float("total"); ok {
			p.MemoryTotal = v
		}
	}
	return p
}

// Record encodes the sample
func (p PerformanceRecord) Record() Record {
	return Record{
		FieldSessionID:   p.SessionID,
		FieldTimestamp:   p.Timestamp,
		FieldFPS:         p.FPS,
		FieldMemoryUsed:  p.MemoryUsed,
		FieldMemoryTotal: p.MemoryTotal,
	}
}
