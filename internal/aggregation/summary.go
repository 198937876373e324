package aggregation

import (
	"context"
	"sort"
	"time"

	"github.com/soltixdb/insight/internal/models"
	"github.com/soltixdb/insight/internal/utils"
)

// StatsSummary is a one-shot overview of every data type
type StatsSummary struct {
	Overview         Overview         `json:"overview"`
	SessionStats     SessionStats     `json:"sessionStats"`
	InteractionStats InteractionStats `json:"interactionStats"`
	PerformanceStats PerformanceStats `json:"performanceStats"`
}

// Overview counts records per data type
type Overview struct {
	TotalRecords int            `json:"totalRecords"`
	DataTypes    map[string]int `json:"dataTypes"`
	GeneratedAt  time.Time      `json:"generatedAt"`
}

// SessionStats summarizes sessions
type SessionStats struct {
	NoData            bool    `json:"noData,omitempty"`
	TotalSessions     int     `json:"totalSessions"`
	CompletedSessions int     `json:"completedSessions"`
	CompletionRate    float64 `json:"completionRate"`
	AverageScore      float64 `json:"averageScore"`
	HighestScore      float64 `json:"highestScore"`
	AverageAccuracy   float64 `json:"averageAccuracy"`
	AveragePlayTime   float64 `json:"averagePlayTime"` // seconds
	MaxCombo          int     `json:"maxCombo"`
}

// CategoryStats summarizes interactions of one category
type CategoryStats struct {
	Count               int     `json:"count"`
	TotalScore          float64 `json:"totalScore"`
	AverageReactionTime float64 `json:"averageReactionTime"`
}

// InteractionStats summarizes interactions
type InteractionStats struct {
	NoData              bool                     `json:"noData,omitempty"`
	TotalInteractions   int                      `json:"totalInteractions"`
	TotalScore          float64                  `json:"totalScore"`
	AverageReactionTime float64                  `json:"averageReactionTime"`
	Categories          []string                 `json:"categories,omitempty"`
	ByCategory          map[string]CategoryStats `json:"bubbleTypeStats,omitempty"`
}

// PerformanceStats summarizes performance samples
type PerformanceStats struct {
	NoData            bool    `json:"noData,omitempty"`
	TotalRecords      int     `json:"totalRecords"`
	AverageFPS        float64 `json:"averageFPS"`
	MinFPS            float64 `json:"minFPS"`
	MaxFPS            float64 `json:"maxFPS"`
	AverageMemoryUsed float64 `json:"averageMemoryUsed"`
}

// Summary computes the stats summary over the filter
func (e *Engine) Summary(ctx context.Context, filter models.Filter) (*StatsSummary, error) {
	sessions, err := e.fetch(ctx, utils.DataTypeSessions, filter)
	if err != nil {
		return nil, err
	}
	interactions, err := e.fetch(ctx, utils.DataTypeInteractions, filter)
	if err != nil {
		return nil, err
	}
	performance, err := e.fetch(ctx, utils.DataTypePerformance, filter)
	if err != nil {
		return nil, err
	}

	return &StatsSummary{
		Overview: Overview{
			TotalRecords: len(sessions) + len(interactions) + len(performance),
			DataTypes: map[string]int{
				utils.DataTypeSessions:     len(sessions),
				utils.DataTypeInteractions: len(interactions),
				utils.DataTypePerformance:  len(performance),
			},
			GeneratedAt: e.config.Now(),
		},
		SessionStats:     summarizeSessions(models.SessionsFromRecords(sessions)),
		InteractionStats: summarizeInteractions(interactions),
		PerformanceStats: summarizePerformance(performance),
	}, nil
}

func summarizeSessions(sessions []models.SessionRecord) SessionStats {
	if len(sessions) == 0 {
		return SessionStats{NoData: true}
	}

	var (
		st       = SessionStats{TotalSessions: len(sessions)}
		score    = NewFieldStats()
		accuracy = NewFieldStats()
		playTime = NewFieldStats()
	)
	for _, s := range sessions {
		if s.Completed {
			st.CompletedSessions++
		}
		score.AddValue(s.FinalScore)
		accuracy.AddValue(s.Accuracy())
		playTime.AddValue(s.PlayTime().Seconds())
		if s.MaxCombo > st.MaxCombo {
			st.MaxCombo = s.MaxCombo
		}
	}

	st.CompletionRate = float64(st.CompletedSessions) / float64(st.TotalSessions)
	st.AverageScore = score.Avg()
	st.HighestScore = score.Max
	st.AverageAccuracy = accuracy.Avg()
	st.AveragePlayTime = playTime.Avg()
	return st
}

func summarizeInteractions(records []models.Record) InteractionStats {
	if len(records) == 0 {
		return InteractionStats{NoData: true}
	}

	st := InteractionStats{
		TotalInteractions: len(records),
		ByCategory:        make(map[string]CategoryStats),
	}
	reaction := NewFieldStats()
	perCategory := make(map[string]*FieldStats)

	for _, r := range records {
		in := models.InteractionFromRecord(r)
		st.TotalScore += in.ScoreGained
		reaction.AddValue(in.ReactionTime)

		cat := in.Category
		if cat == "" {
			cat = UnknownGroup
		}
		cs := st.ByCategory[cat]
		cs.Count++
		cs.TotalScore += in.ScoreGained
		st.ByCategory[cat] = cs

		if perCategory[cat] == nil {
			perCategory[cat] = NewFieldStats()
		}
		perCategory[cat].AddValue(in.ReactionTime)
	}

	for cat, fs := range perCategory {
		cs := st.ByCategory[cat]
		cs.AverageReactionTime = fs.Avg()
		st.ByCategory[cat] = cs
		st.Categories = append(st.Categories, cat)
	}
	sort.Strings(st.Categories)
	st.AverageReactionTime = reaction.Avg()
	return st
}

func summarizePerformance(records []models.Record) PerformanceStats {
	if len(records) == 0 {
		return PerformanceStats{NoData: true}
	}

	fps := NewFieldStats()
	mem := NewFieldStats()
	for _, r := range records {
		p := models.PerformanceFromRecord(r)
		fps.AddValue(p.FPS)
		mem.AddValue(p.MemoryUsed)
	}

	return PerformanceStats{
		TotalRecords:      len(records),
		AverageFPS:        fps.Avg(),
		MinFPS:            fps.Min,
		MaxFPS:            fps.Max,
		AverageMemoryUsed: mem.Avg(),
	}
}
