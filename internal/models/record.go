package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/soltixdb/insight/internal/utils"
)

// Record is a single telemetry record as stored by the record source.
// Field names follow the collector's camelCase JSON (sessionId, finalScore, ...).
type Record map[string]interface{}

// Float returns a numeric field
func (r Record) Float(field string) (float64, bool) {
	v, ok := r[field]
	if !ok {
		return 0, false
	}
	return utils.ToFloat64(v)
}

// String returns a field rendered as a string; missing fields return ""
func (r Record) String(field string) string {
	switch v := r[field].(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	default:
		if f, ok := utils.ToFloat64(v); ok {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return ""
	}
}

// Bool returns a boolean field; "true"/"false" strings and 0/1 numbers are accepted
func (r Record) Bool(field string) (bool, bool) {
	switch v := r[field].(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return b, err == nil
	default:
		if f, ok := utils.ToFloat64(v); ok {
			return f != 0, true
		}
		return false, false
	}
}

// Time returns a timestamp field. time.Time, RFC3339 strings and epoch
// milliseconds (the collector's native format) are accepted.
func (r Record) Time(field string) (time.Time, bool) {
	switch v := r[field].(type) {
	case time.Time:
		return v, !v.IsZero()
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t, true
			}
		}
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), true
		}
		return time.Time{}, false
	default:
		if f, ok := utils.ToFloat64(v); ok && f > 0 {
			return time.UnixMilli(int64(f)).UTC(), true
		}
		return time.Time{}, false
	}
}

// Timestamp returns the record's primary timestamp: timestamp, then startTime
func (r Record) Timestamp() (time.Time, bool) {
	if t, ok := r.Time(FieldTimestamp); ok {
		return t, true
	}
	return r.Time(FieldStartTime)
}

// Clone returns a shallow copy
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
