package history

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

const schema = `
	CREATE TABLE IF NOT EXISTS risk_refresh_runs (
		id          UUID PRIMARY KEY,
		user_id     TEXT,
		started_at  TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL,
		attempted   INTEGER NOT NULL,
		succeeded   INTEGER NOT NULL,
		failed      INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS risk_refresh_items (
		run_id      UUID NOT NULL REFERENCES risk_refresh_runs(id) ON DELETE CASCADE,
		position    INTEGER NOT NULL,
		project_id  BIGINT NOT NULL,
		label       TEXT,
		probability DOUBLE PRECISION,
		error       TEXT,
		PRIMARY KEY (run_id, position)
	);
	CREATE INDEX IF NOT EXISTS risk_refresh_runs_user_started_idx
		ON risk_refresh_runs (user_id, started_at DESC);
`

// Repository handles PostgreSQL operations for refresh runs
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the history tables when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create history schema: %w", err)
	}
	return nil
}

// Record stores a run and its items in one transaction.
func (r *Repository) Record(ctx context.Context, run Run) (err error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin history tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO risk_refresh_runs (id, user_id, started_at, finished_at, attempted, succeeded, failed)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, run.ID, nullString(run.UserID), run.StartedAt, run.FinishedAt, run.Attempted, run.Succeeded, run.Failed)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, item := range run.Items {
		var prob sql.NullFloat64
		if item.Probability != nil {
			prob = sql.NullFloat64{Float64: *item.Probability, Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO risk_refresh_items (run_id, position, project_id, label, probability, error)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, run.ID, item.Position, item.ProjectID, nullString(string(item.Label)), prob, nullString(item.Error))
		if err != nil {
			return fmt.Errorf("failed to insert item %d of run %s: %w", item.Position, run.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// ListRecent returns the newest runs for userID without their items.
// An empty userID lists runs of every scope.
func (r *Repository) ListRecent(ctx context.Context, userID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, started_at, finished_at, attempted, succeeded, failed
		FROM risk_refresh_runs
		WHERE ($1 = '' OR user_id = $1)
		ORDER BY started_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var uid sql.NullString
		if err := rows.Scan(&run.ID, &uid, &run.StartedAt, &run.FinishedAt, &run.Attempted, &run.Succeeded, &run.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.UserID = uid.String
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
