package models

import (
	"time"

	"github.com/soltixdb/insight/internal/utils"
)

// Sort orders
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// Filter narrows a record source query
type Filter struct {
	StartDate *time.Time             `json:"startDate,omitempty"`
	EndDate   *time.Time             `json:"endDate,omitempty"`
	SessionID string                 `json:"sessionId,omitempty"`
	Category  string                 `json:"category,omitempty"`
	Limit     int                    `json:"limit,omitempty"`
	SortBy    string                 `json:"sortBy,omitempty"`
	SortOrder string                 `json:"sortOrder,omitempty"`
	Custom    map[string]interface{} `json:"custom,omitempty"` // field equality constraints

	// SkipAnonymization returns player ids as stored. Sources ignore it.
	SkipAnonymization bool `json:"skipAnonymization,omitempty"`
}

// Between returns a filter for [start, end]
func Between(start, end time.Time) Filter {
	return Filter{StartDate: &start, EndDate: &end}
}

// CapLimit caps the limit at max (utils.MaxQueryLimit when max <= 0)
func (f Filter) CapLimit(max int) Filter {
	if max <= 0 {
		max = utils.MaxQueryLimit
	}
	if f.Limit <= 0 || f.Limit > max {
		f.Limit = max
	}
	return f
}

// Normalize caps the limit and defaults the sort order to ascending
func (f Filter) Normalize(max int) Filter {
	f = f.CapLimit(max)
	if f.SortOrder != SortDesc {
		f.SortOrder = SortAsc
	}
	return f
}

// Matches reports whether a record satisfies the non-paging parts of the filter.
// Records without a timestamp only pass when no date range is set.
func (f Filter) Matches(r Record) bool {
	if f.StartDate != nil || f.EndDate != nil {
		ts, ok := r.Timestamp()
		if !ok {
			return false
		}
		if f.StartDate != nil && ts.Before(*f.StartDate) {
			return false
		}
		if f.EndDate != nil && ts.After(*f.EndDate) {
			return false
		}
	}
	if f.SessionID != "" && r.String(FieldSessionID) != f.SessionID {
		return false
	}
	if f.Category != "" && r.String(FieldCategory) != f.Category {
		return false
	}
	for field, want := range f.Custom {
		if !equalValues(r[field], want) {
			return false
		}
	}
	return true
}

func equalValues(got, want interface{}) bool {
	if gf, ok := utils.ToFloat64(got); ok {
		if wf, ok := utils.ToFloat64(want); ok {
			return gf == wf
		}
	}
	return Record{"v": got}.String("v") == Record{"v": want}.String("v")
}
