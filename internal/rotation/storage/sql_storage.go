package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL
	_ "github.com/lib/pq"              // PostgreSQL
)

// Dialect selects placeholder and DDL syntax.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

const runsTable = "pacert_runs"

// SQLStorage implements Storage on PostgreSQL or MySQL. Queryable columns
// are stored next to the full JSON record.
type SQLStorage struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQLStorage opens a connection for backend ("postgres" or "mysql") and
// creates the runs table if needed.
func OpenSQLStorage(ctx context.Context, backend, dsn string) (*SQLStorage, error) {
	dialect, err := ParseDialect(backend)
	if err != nil {
		return nil, err
	}
	if dsn == "" {
		return nil, fmt.Errorf("%s history backend requires a dsn", backend)
	}

	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", dialect, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", dialect, err)
	}

	s := NewSQLStorage(db, dialect)
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStorage wraps an existing connection.
func NewSQLStorage(db *sql.DB, dialect Dialect) *SQLStorage {
	return &SQLStorage{db: db, dialect: dialect}
}

// ParseDialect maps a backend name to a Dialect.
func ParseDialect(backend string) (Dialect, error) {
	switch strings.ToLower(backend) {
	case "postgres", "postgresql":
		return DialectPostgres, nil
	case "mysql":
		return DialectMySQL, nil
	default:
		return "", fmt.Errorf("unsupported history backend %q", backend)
	}
}

// EnsureSchema creates the runs table.
func (s *SQLStorage) EnsureSchema(ctx context.Context) error {
	recordType := "TEXT"
	if s.dialect == DialectMySQL {
		recordType = "LONGTEXT"
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id VARCHAR(64) PRIMARY KEY,
	host VARCHAR(255) NOT NULL,
	started_at TIMESTAMP NOT NULL,
	duration_ms BIGINT NOT NULL,
	state VARCHAR(32) NOT NULL,
	success BOOLEAN NOT NULL,
	dry_run BOOLEAN NOT NULL,
	record %s NOT NULL
)`, runsTable, recordType)

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create %s table: %w", runsTable, err)
	}
	return nil
}

// SaveRun inserts the record.
func (s *SQLStorage) SaveRun(ctx context.Context, record *RunRecord) error {
	if record == nil {
		return fmt.Errorf("run record is nil")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (id, host, started_at, duration_ms, state, success, dry_run, record) VALUES (%s)",
		runsTable, s.placeholders(1, 8))

	_, err = s.db.ExecContext(ctx, query,
		record.ID,
		record.Host,
		record.StartedAt.UTC(),
		record.Duration.Milliseconds(),
		record.State,
		record.Success,
		record.DryRun,
		string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", record.ID, err)
	}
	return nil
}

// ListRuns returns records newest first.
func (s *SQLStorage) ListRuns(ctx context.Context, host string, limit int) ([]RunRecord, error) {
	var (
		where string
		args  []interface{}
	)
	if host != "" {
		where = " WHERE host = " + s.placeholder(1)
		args = append(args, host)
	}
	query := fmt.Sprintf("SELECT record FROM %s%s ORDER BY started_at DESC", runsTable, where)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := []RunRecord{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		var record RunRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return nil, fmt.Errorf("failed to decode run record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	return records, nil
}

// CleanupOldEntries deletes runs older than the cutoff.
func (s *SQLStorage) CleanupOldEntries(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	query := fmt.Sprintf("DELETE FROM %s WHERE started_at < %s", runsTable, s.placeholder(1))

	res, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}

// Close closes the underlying connection.
func (s *SQLStorage) Close() error {
	return s.db.Close()
}

func (s *SQLStorage) placeholder(n int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStorage) placeholders(from, count int) string {
	parts := make([]string, count)
	for i := range parts {
		parts[i] = s.placeholder(from + i)
	}
	return strings.Join(parts, ", ")
}
