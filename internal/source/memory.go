package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/soltixdb/insight/internal/models"
	"github.com/soltixdb/insight/internal/utils"
)

// MemorySource keeps records per data type in memory
type MemorySource struct {
	mu       sync.RWMutex
	data     map[string][]models.Record
	failWith error
	maxLimit int
	calls    atomic.Int64
}

// NewMemorySource creates an empty source
func NewMemorySource(maxLimit int) *MemorySource {
	return &MemorySource{
		data:     make(map[string][]models.Record),
		maxLimit: maxLimit,
	}
}

// SetData replaces all records of a data type
func (s *MemorySource) SetData(dataType string, records []models.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[dataType] = append([]models.Record(nil), records...)
}

// Append adds records to a data type
func (s *MemorySource) Append(dataType string, records ...models.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[dataType] = append(s.data[dataType], records...)
}

// FailWith makes every subsequent Fetch return err (nil clears it)
func (s *MemorySource) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

// Calls returns how many times Fetch was invoked
func (s *MemorySource) Calls() int {
	return int(s.calls.Load())
}

// LoadJSON reads a fixture of the form {"sessionData": [...], "bubbleInteractions": [...]}
func (s *MemorySource) LoadJSON(r io.Reader) error {
	var fixture map[string][]map[string]interface{}
	if err := json.NewDecoder(r).Decode(&fixture); err != nil {
		return fmt.Errorf("decoding fixture: %w", err)
	}
	for dataType, rows := range fixture {
		records := make([]models.Record, len(rows))
		for i, row := range rows {
			records[i] = models.Record(row)
		}
		s.SetData(dataType, records)
	}
	return nil
}

// Fetch returns the filtered, sorted and limited records; unknown data types yield none
func (s *MemorySource) Fetch(ctx context.Context, dataType string, filter models.Filter) ([]models.Record, error) {
	s.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	failWith := s.failWith
	all := s.data[dataType]
	s.mu.RUnlock()

	if failWith != nil {
		return nil, WrapStorage(dataType, failWith)
	}

	filter = filter.Normalize(s.maxLimit)
	out := make([]models.Record, 0, len(all))
	for _, r := range all {
		if filter.Matches(r) {
			out = append(out, r)
		}
	}

	SortRecords(out, filter.SortBy, filter.SortOrder)

	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// SortRecords orders records by field (timestamp when empty); numeric fields compare numerically
func SortRecords(records []models.Record, field, order string) {
	desc := order == models.SortDesc
	less := func(a, b models.Record) bool {
		if field == "" || field == models.FieldTimestamp {
			ta, _ := a.Timestamp()
			tb, _ := b.Timestamp()
			return ta.Before(tb)
		}
		if fa, ok := a.Float(field); ok {
			if fb, ok := b.Float(field); ok {
				return fa < fb
			}
		}
		return a.String(field) < b.String(field)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if desc {
			return less(records[j], records[i])
		}
		return less(records[i], records[j])
	})
}

var _ Source = (*MemorySource)(nil)

// limitOrDefault is shared with the postgres source
func limitOrDefault(limit int) int {
	if limit <= 0 {
		return utils.MaxQueryLimit
	}
	return limit
}
