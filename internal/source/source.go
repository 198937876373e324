// Package source provides read-only access to persisted telemetry records.
package source

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/soltixdb/insight/internal/models"
	"github.com/soltixdb/insight/internal/utils"
)

// ErrStorage marks failures raised by the underlying store
var ErrStorage = errors.New("storage failure")

// Source supplies records of a named data type
type Source interface {
	Fetch(ctx context.Context, dataType string, filter models.Filter) ([]models.Record, error)
}

// StorageError wraps a store failure while keeping its original message
type StorageError struct {
	DataType string
	Err      error
}

func (e *StorageError) Error() string {
	return e.Err.Error()
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

// WrapStorage marks err as a storage failure for dataType; nil stays nil
func WrapStorage(dataType string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{DataType: dataType, Err: err}
}

// FetchLatest fetches records for the analytics engines. When the filter
// leaves the timestamp order unset, the source is queried newest first so a
// capped limit drops the oldest records, and the result is returned oldest first.
func FetchLatest(ctx context.Context, src Source, dataType string, filter models.Filter) ([]models.Record, error) {
	if filter.SortOrder != "" || (filter.SortBy != "" && filter.SortBy != models.FieldTimestamp) {
		return src.Fetch(ctx, dataType, filter)
	}

	filter.SortOrder = models.SortDesc
	records, err := src.Fetch(ctx, dataType, filter)
	if err != nil {
		return nil, err
	}
	slices.Reverse(records)
	return records, nil
}

// FetchSessions fetches and decodes session records
func FetchSessions(ctx context.Context, src Source, filter models.Filter) ([]models.SessionRecord, error) {
	records, err := FetchLatest(ctx, src, utils.DataTypeSessions, filter)
	if err != nil {
		return nil, WrapStorage(utils.DataTypeSessions, err)
	}
	return models.SessionsFromRecords(records), nil
}

// FetchInteractions fetches and decodes interaction records
func FetchInteractions(ctx context.Context, src Source, filter models.Filter) ([]models.InteractionRecord, error) {
	records, err := FetchLatest(ctx, src, utils.DataTypeInteractions, filter)
	if err != nil {
		return nil, WrapStorage(utils.DataTypeInteractions, err)
	}
	out := make([]models.InteractionRecord, len(records))
	for i, r := range records {
		out[i] = models.InteractionFromRecord(r)
	}
	return out, nil
}

// FetchPerformance fetches and decodes performance samples
func FetchPerformance(ctx context.Context, src Source, filter models.Filter) ([]models.PerformanceRecord, error) {
	records, err := FetchLatest(ctx, src, utils.DataTypePerformance, filter)
	if err != nil {
		return nil, WrapStorage(utils.DataTypePerformance, err)
	}
	out := make([]models.PerformanceRecord, len(records))
	for i, r := range records {
		out[i] = models.PerformanceFromRecord(r)
	}
	return out, nil
}

// New returns an empty in-memory source or a connected postgres source
func New(ctx context.Context, kind, dsn string, maxLimit int) (Source, error) {
	switch kind {
	case "", "memory":
		return NewMemorySource(maxLimit), nil
	case "postgres":
		return OpenPostgres(ctx, dsn, maxLimit)
	default:
		return nil, fmt.Errorf("unsupported source type: %s (supported: memory, postgres)", kind)
	}
}
