package source

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/soltixdb/insight/internal/logging"
	"github.com/soltixdb/insight/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresSource reads records from the telemetry_records table.
// Each row keeps the collector payload as JSONB; a few columns are
// lifted out so the common filters can use indexes.
type PostgresSource struct {
	conn     *sql.DB
	maxLimit int
	logger   *logging.Logger
}

// OpenPostgres connects and pings the database
func OpenPostgres(ctx context.Context, dsn string, maxLimit int) (*PostgresSource, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger := logging.Global().Component("PostgresSource")
	logger.Info("Connected to PostgreSQL")
	return &PostgresSource{conn: conn, maxLimit: limitOrDefault(maxLimit), logger: logger}, nil
}

// Close closes the connection pool
func (s *PostgresSource) Close() error {
	return s.conn.Close()
}

// Ping checks connectivity
func (s *PostgresSource) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Migrate applies the embedded schema files in name order
func (s *PostgresSource) Migrate(ctx context.Context) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations dir: %w", err)
	}

	for _, entry := range entries {
		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}
		if _, err := s.conn.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", entry.Name(), err)
		}
		s.logger.Info("Applied migration", "name", entry.Name())
	}
	return nil
}

// Insert stores records of a data type in one transaction
func (s *PostgresSource) Insert(ctx context.Context, dataType string, records []models.Record) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO telemetry_records (data_type, recorded_at, session_id, category, payload)
		VALUES ($1, $2, $3, $4, $5)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range records {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encoding record: %w", err)
		}
		var recordedAt interface{}
		if ts, ok := r.Timestamp(); ok {
			recordedAt = ts
		}
		if _, err := stmt.ExecContext(ctx, dataType, recordedAt,
			nullString(r.String(models.FieldSessionID)), nullString(r.String(models.FieldCategory)), payload); err != nil {
			return fmt.Errorf("inserting %s record: %w", dataType, err)
		}
	}

	return tx.Commit()
}

// Fetch runs the filter against the table
func (s *PostgresSource) Fetch(ctx context.Context, dataType string, filter models.Filter) ([]models.Record, error) {
	filter = filter.Normalize(s.maxLimit)
	query, args, err := buildQuery(dataType, filter)
	if err != nil {
		return nil, WrapStorage(dataType, err)
	}

	start := time.Now()
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, WrapStorage(dataType, fmt.Errorf("fetching %s: %w", dataType, err))
	}
	defer func() { _ = rows.Close() }()

	var out []models.Record
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, WrapStorage(dataType, fmt.Errorf("scanning %s row: %w", dataType, err))
		}
		var rec models.Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, WrapStorage(dataType, fmt.Errorf("decoding %s payload: %w", dataType, err))
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapStorage(dataType, fmt.Errorf("fetching %s: %w", dataType, err))
	}

	if !sortsInSQL(filter.SortBy) {
		SortRecords(out, filter.SortBy, filter.SortOrder)
		if len(out) > filter.Limit {
			out = out[:filter.Limit]
		}
	}

	s.logger.Debug("Fetched records", "data_type", dataType, "count", len(out), "duration", time.Since(start))
	return out, nil
}

// buildQuery renders the positional SQL for a filter.
// Sorting by a payload field other than the timestamp happens in Go after the scan,
// so the limit is only pushed down when the database can order the rows itself.
func buildQuery(dataType string, filter models.Filter) (string, []interface{}, error) {
	var (
		where = []string{"data_type = $1"}
		args  = []interface{}{dataType}
	)
	next := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.StartDate != nil {
		where = append(where, "recorded_at >= "+next(*filter.StartDate))
	}
	if filter.EndDate != nil {
		where = append(where, "recorded_at <= "+next(*filter.EndDate))
	}
	if filter.SessionID != "" {
		where = append(where, "session_id = "+next(filter.SessionID))
	}
	if filter.Category != "" {
		where = append(where, "category = "+next(filter.Category))
	}
	if len(filter.Custom) > 0 {
		custom, err := json.Marshal(filter.Custom)
		if err != nil {
			return "", nil, fmt.Errorf("encoding custom filter: %w", err)
		}
		where = append(where, "payload @> "+next(string(custom))+"::jsonb")
	}

	var b strings.Builder
	b.WriteString("SELECT payload FROM telemetry_records WHERE ")
	b.WriteString(strings.Join(where, " AND "))

	if sortsInSQL(filter.SortBy) {
		order := "ASC"
		if filter.SortOrder == models.SortDesc {
			order = "DESC"
		}
		b.WriteString(" ORDER BY recorded_at " + order + ", id " + order)
		if filter.Limit > 0 {
			b.WriteString(" LIMIT " + next(filter.Limit))
		}
	}

	return b.String(), args, nil
}

func sortsInSQL(field string) bool {
	return field == "" || field == models.FieldTimestamp
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ Source = (*PostgresSource)(nil)
