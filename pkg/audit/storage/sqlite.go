package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"pilothouse-hq/ganymede/pkg/audit"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS audit_entries (
	id                TEXT PRIMARY KEY,
	kind              TEXT NOT NULL,
	policy_id         TEXT NOT NULL DEFAULT '',
	action_id         TEXT NOT NULL,
	algo_key          TEXT NOT NULL,
	decision          TEXT NOT NULL,
	reasons           TEXT NOT NULL DEFAULT '[]',
	mutations_applied TEXT NOT NULL DEFAULT '{}',
	risk_cost         REAL NOT NULL DEFAULT 0,
	mode_effective    TEXT NOT NULL,
	snapshot_version  TEXT NOT NULL DEFAULT '',
	timestamp         INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_entries(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_algo_key ON audit_entries(algo_key, timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_policy_id ON audit_entries(policy_id, timestamp);
`

// SQLiteStorage persists audit entries in a SQLite database with WAL mode
// enabled for concurrent readers.
type SQLiteStorage struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStorage opens (creating if needed) the audit database at path.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database %s: %w", path, err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}

	return &SQLiteStorage{
		db:     db,
		logger: slog.Default().With("component", "audit.storage.sqlite"),
	}, nil
}

// Store persists entries in one transaction.
func (s *SQLiteStorage) Store(ctx context.Context, entries []*audit.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO audit_entries
		(id, kind, policy_id, action_id, algo_key, decision, reasons,
		 mutations_applied, risk_cost, mode_effective, snapshot_version, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		reasons, err := json.Marshal(e.Reasons)
		if err != nil {
			return fmt.Errorf("failed to marshal reasons: %w", err)
		}
		mutations, err := json.Marshal(e.MutationsApplied)
		if err != nil {
			return fmt.Errorf("failed to marshal mutations: %w", err)
		}

		_, err = stmt.ExecContext(ctx,
			e.ID, string(e.Kind), e.PolicyID, e.ActionID, e.AlgoKey,
			string(e.Decision), string(reasons), string(mutations),
			e.RiskCost, e.ModeEffective, e.SnapshotVersion,
			e.Timestamp.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to insert audit entry %s: %w", e.ID, err)
		}
	}

	return tx.Commit()
}

// Query returns matching entries, newest first.
func (s *SQLiteStorage) Query(ctx context.Context, query *audit.Query) ([]*audit.Entry, error) {
	where, args := buildWhere(query)

	querySQL := `
		SELECT id, kind, policy_id, action_id, algo_key, decision, reasons,
		       mutations_applied, risk_cost, mode_effective, snapshot_version, timestamp
		FROM audit_entries` + where + " ORDER BY timestamp DESC"

	if query.Limit > 0 {
		querySQL += fmt.Sprintf(" LIMIT %d", query.Limit)
	}
	if query.Offset > 0 {
		querySQL += fmt.Sprintf(" OFFSET %d", query.Offset)
	}

	rows, err := s.db.QueryContext(ctx, querySQL, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*audit.Entry
	for rows.Next() {
		e := &audit.Entry{}
		var kind, decision, reasons, mutations string
		var ts int64

		err := rows.Scan(&e.ID, &kind, &e.PolicyID, &e.ActionID, &e.AlgoKey,
			&decision, &reasons, &mutations, &e.RiskCost,
			&e.ModeEffective, &e.SnapshotVersion, &ts)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}

		e.Kind = audit.Kind(kind)
		e.Decision = audit.Decision(decision)
		e.Timestamp = time.Unix(0, ts)
		if err := json.Unmarshal([]byte(reasons), &e.Reasons); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reasons: %w", err)
		}
		if err := json.Unmarshal([]byte(mutations), &e.MutationsApplied); err != nil {
			return nil, fmt.Errorf("failed to unmarshal mutations: %w", err)
		}

		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of matching entries.
func (s *SQLiteStorage) Count(ctx context.Context, query *audit.Query) (int64, error) {
	where, args := buildWhere(query)

	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_entries"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit entries: %w", err)
	}
	return count, nil
}

// Stats aggregates action-level decisions matching the filters.
func (s *SQLiteStorage) Stats(ctx context.Context, query *audit.Query) (*audit.Stats, error) {
	q := *query
	q.Kind = audit.KindAction
	where, args := buildWhere(&q)

	rows, err := s.db.QueryContext(ctx,
		"SELECT decision, COUNT(*) FROM audit_entries"+where+" GROUP BY decision", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate audit stats: %w", err)
	}
	defer rows.Close()

	stats := &audit.Stats{}
	for rows.Next() {
		var decision string
		var count int64
		if err := rows.Scan(&decision, &count); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		stats.Total += count
		switch audit.Decision(decision) {
		case audit.DecisionAllowed:
			stats.Allowed = count
		case audit.DecisionBlocked:
			stats.Blocked = count
		case audit.DecisionWarned:
			stats.Warned = count
		}
	}
	return stats, rows.Err()
}

// DeleteBefore removes entries older than cutoff.
func (s *SQLiteStorage) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM audit_entries WHERE timestamp < ?", cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to delete audit entries: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// buildWhere translates a query into a WHERE clause and its arguments.
func buildWhere(q *audit.Query) (string, []any) {
	var clauses []string
	var args []any

	if q.StartTime != nil {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, q.StartTime.UnixNano())
	}
	if q.EndTime != nil {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, q.EndTime.UnixNano())
	}
	if q.AlgoKey != "" {
		clauses = append(clauses, "algo_key = ?")
		args = append(args, q.AlgoKey)
	}
	if q.PolicyID != "" {
		clauses = append(clauses, "policy_id = ?")
		args = append(args, q.PolicyID)
	}
	if q.ActionID != "" {
		clauses = append(clauses, "action_id = ?")
		args = append(args, q.ActionID)
	}
	if q.Decision != "" {
		clauses = append(clauses, "decision = ?")
		args = append(args, string(q.Decision))
	}
	if q.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, string(q.Kind))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
