package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite" // SQLite driver

	"pilothouse-hq/ganymede/pkg/limits"
	"pilothouse-hq/ganymede/pkg/limits/ratelimit"
	"pilothouse-hq/ganymede/pkg/limits/riskbudget"
)

const schema = `
CREATE TABLE IF NOT EXISTS rate_counters (
	policy_id    TEXT NOT NULL,
	scope_key    TEXT NOT NULL,
	window_start INTEGER NOT NULL,
	count        INTEGER NOT NULL,
	PRIMARY KEY (policy_id, scope_key, window_start)
);

CREATE TABLE IF NOT EXISTS risk_budgets (
	policy_id TEXT NOT NULL,
	day       TEXT NOT NULL,
	spent     REAL NOT NULL,
	PRIMARY KEY (policy_id, day)
);
`

// SQLiteBackend persists tracker state in a SQLite database.
type SQLiteBackend struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteBackend opens (creating if needed) the database at path.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open limits database %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize limits schema: %w", err)
	}

	return &SQLiteBackend{
		db:     db,
		logger: slog.Default().With("component", "limits.storage.sqlite"),
	}, nil
}

// Save replaces the persisted state with the given snapshot in one
// transaction.
func (b *SQLiteBackend) Save(ctx context.Context, state *limits.TrackerState) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM rate_counters"); err != nil {
		return fmt.Errorf("failed to clear rate counters: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM risk_budgets"); err != nil {
		return fmt.Errorf("failed to clear risk budgets: %w", err)
	}

	for _, r := range state.Rates {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO rate_counters (policy_id, scope_key, window_start, count) VALUES (?, ?, ?, ?)",
			r.PolicyID, r.ScopeKey, r.WindowStart, r.Count)
		if err != nil {
			return fmt.Errorf("failed to save rate counter: %w", err)
		}
	}

	for _, bs := range state.Budgets {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO risk_budgets (policy_id, day, spent) VALUES (?, ?, ?)",
			bs.PolicyID, bs.Day, bs.Spent)
		if err != nil {
			return fmt.Errorf("failed to save risk budget: %w", err)
		}
	}

	return tx.Commit()
}

// Load returns the persisted state.
func (b *SQLiteBackend) Load(ctx context.Context) (*limits.TrackerState, error) {
	state := &limits.TrackerState{}

	rows, err := b.db.QueryContext(ctx,
		"SELECT policy_id, scope_key, window_start, count FROM rate_counters")
	if err != nil {
		return nil, fmt.Errorf("failed to load rate counters: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r ratelimit.State
		if err := rows.Scan(&r.PolicyID, &r.ScopeKey, &r.WindowStart, &r.Count); err != nil {
			return nil, fmt.Errorf("failed to scan rate counter: %w", err)
		}
		state.Rates = append(state.Rates, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rate counters: %w", err)
	}

	budgetRows, err := b.db.QueryContext(ctx,
		"SELECT policy_id, day, spent FROM risk_budgets")
	if err != nil {
		return nil, fmt.Errorf("failed to load risk budgets: %w", err)
	}
	defer budgetRows.Close()

	for budgetRows.Next() {
		var rb riskbudget.State
		if err := budgetRows.Scan(&rb.PolicyID, &rb.Day, &rb.Spent); err != nil {
			return nil, fmt.Errorf("failed to scan risk budget: %w", err)
		}
		state.Budgets = append(state.Budgets, rb)
	}
	if err := budgetRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate risk budgets: %w", err)
	}

	return state, nil
}

// Close closes the database.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
