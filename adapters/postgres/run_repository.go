package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"

	"github.com/jmoiron/sqlx"

	"macrobench/domain/backtest"
	"macrobench/domain/core"
	"macrobench/internal/errors"
	"macrobench/models"
	"macrobench/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS backtest_runs (
	id            UUID PRIMARY KEY,
	status        TEXT NOT NULL,
	spec          JSONB NOT NULL,
	tick_count    INTEGER NOT NULL DEFAULT 0,
	tick_results  JSONB,
	results       JSONB,
	error_message TEXT,
	started_at    TIMESTAMPTZ NOT NULL,
	completed_at  TIMESTAMPTZ
)`

// RunRepositoryImpl implements RunRepository for PostgreSQL
type RunRepositoryImpl struct {
	db *sqlx.DB
}

// NewRunRepository creates a new PostgreSQL run repository
func NewRunRepository(db *sqlx.DB) *RunRepositoryImpl {
	return &RunRepositoryImpl{db: db}
}

var _ ports.RunRepository = (*RunRepositoryImpl)(nil)

// EnsureSchema creates the runs table when missing.
func (r *RunRepositoryImpl) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to ensure backtest_runs schema")
	}
	return nil
}

// SaveRun upserts a run record; it is called when a run starts and again
// when it settles.
func (r *RunRepositoryImpl) SaveRun(ctx context.Context, run *models.RunRecord) error {
	spec, err := json.Marshal(run.Spec)
	if err != nil {
		return errors.Wrap(err, "failed to marshal run spec")
	}
	tickResults, err := json.Marshal(run.TickResults)
	if err != nil {
		return errors.Wrap(err, "failed to marshal tick results")
	}
	var results []byte
	if run.Results != nil {
		results, err = json.Marshal(run.Results)
		if err != nil {
			return errors.Wrap(err, "failed to marshal results")
		}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO backtest_runs (id, status, spec, tick_count, tick_results, results, error_message, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			tick_count = EXCLUDED.tick_count,
			tick_results = EXCLUDED.tick_results,
			results = EXCLUDED.results,
			error_message = EXCLUDED.error_message,
			completed_at = EXCLUDED.completed_at
	`, run.ID.String(), run.Status, spec, run.TickCount, tickResults, results, run.Error, run.StartedAt, run.CompletedAt)
	if err != nil {
		return errors.Wrap(err, "failed to save run")
	}
	return nil
}

// GetRun retrieves one run with its full payload.
func (r *RunRepositoryImpl) GetRun(ctx context.Context, id core.RunID) (*models.RunRecord, error) {
	var row struct {
		ID          string         `db:"id"`
		Status      string         `db:"status"`
		Spec        []byte         `db:"spec"`
		TickCount   int            `db:"tick_count"`
		TickResults []byte         `db:"tick_results"`
		Results     []byte         `db:"results"`
		Error       sql.NullString `db:"error_message"`
		StartedAt   sql.NullTime   `db:"started_at"`
		CompletedAt sql.NullTime   `db:"completed_at"`
	}
	err := r.db.GetContext(ctx, &row, `
		SELECT id, status, spec, tick_count, tick_results, results, error_message, started_at, completed_at
		FROM backtest_runs
		WHERE id = $1
	`, id.String())
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("run")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load run")
	}

	run := &models.RunRecord{
		ID:        core.RunID(row.ID),
		Status:    models.RunStatus(row.Status),
		TickCount: row.TickCount,
		Error:     row.Error.String,
		StartedAt: row.StartedAt.Time,
	}
	if row.CompletedAt.Valid {
		t := row.CompletedAt.Time
		run.CompletedAt = &t
	}
	if err := json.Unmarshal(row.Spec, &run.Spec); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal run spec")
	}
	if len(row.TickResults) > 0 {
		if err := json.Unmarshal(row.TickResults, &run.TickResults); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal tick results")
		}
	}
	if len(row.Results) > 0 {
		var results backtest.BacktestResults
		if err := json.Unmarshal(row.Results, &results); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal results")
		}
		run.Results = &results
	}
	return run, nil
}

// ListRuns returns recent runs without tick payloads.
func (r *RunRepositoryImpl) ListRuns(ctx context.Context, limit int) ([]models.RunSummary, error) {
	query := `
		SELECT id, status, tick_count, started_at, completed_at
		FROM backtest_runs
		ORDER BY started_at DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var out []models.RunSummary
	for rows.Next() {
		var (
			summary     models.RunSummary
			id, status  string
			completedAt sql.NullTime
		)
		if err := rows.Scan(&id, &status, &summary.TickCount, &summary.StartedAt, &completedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan run summary")
		}
		summary.ID = core.RunID(id)
		summary.Status = models.RunStatus(status)
		if completedAt.Valid {
			t := completedAt.Time
			summary.CompletedAt = &t
		}
		out = append(out, summary)
	}
	return out, rows.Err()
}
