package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/tramites-sync/internal/db"
	"github.com/sells-group/tramites-sync/internal/model"
)

// PostgresStore implements Store on a shared Postgres database, for
// deployments where several hosts read the run history.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres connects to Postgres and returns a store over the pool.
func NewPostgres(ctx context.Context, connString string, opts db.PoolOptions) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, opts)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ,
	summary      JSONB,
	error        TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS run_events (
	run_id    TEXT NOT NULL REFERENCES runs(id),
	seq       INTEGER NOT NULL,
	kind      TEXT NOT NULL,
	record_id TEXT NOT NULL,
	field     TEXT NOT NULL DEFAULT '',
	old_value TEXT NOT NULL DEFAULT '',
	new_value TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_run_events_record ON run_events(record_id);
`

var eventColumns = []string{"run_id", "seq", "kind", "record_id", "field", "old_value", "new_value"}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, started_at) VALUES ($1, $2, $3)`,
		id, string(model.RunStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Status:    model.RunStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, summary model.RunSummary) error {
	return s.finish(ctx, runID, model.RunStatusComplete, "", &summary)
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, reason string, summary *model.RunSummary) error {
	return s.finish(ctx, runID, model.RunStatusFailed, reason, summary)
}

func (s *PostgresStore) finish(ctx context.Context, runID string, status model.RunStatus, reason string, summary *model.RunSummary) error {
	summaryJSON, err := marshalSummary(summary)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, completed_at = $2, summary = $3, error = $4 WHERE id = $5`,
		string(status), time.Now().UTC(), summaryJSON, reason, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, status, started_at, completed_at, summary, error FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanPostgresRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, started_at, completed_at, summary, error FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// SaveEvents bulk-loads a run's events with COPY.
func (s *PostgresStore) SaveEvents(ctx context.Context, runID string, events []model.RunEvent) (int64, error) {
	rows := make([][]any, len(events))
	for i, e := range events {
		rows[i] = []any{runID, i + 1, e.Kind, e.RecordID, e.Field, e.Old, e.New}
	}
	n, err := db.CopyFrom(ctx, s.pool, "run_events", eventColumns, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: save events for run %s", runID)
	}
	return n, nil
}

func (s *PostgresStore) ListEvents(ctx context.Context, runID string, limit int) ([]model.RunEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT kind, record_id, field, old_value, new_value FROM run_events WHERE run_id = $1 ORDER BY seq LIMIT $2`,
		runID, listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list events for run %s", runID)
	}
	defer rows.Close()

	var events []model.RunEvent
	for rows.Next() {
		var e model.RunEvent
		if err := rows.Scan(&e.Kind, &e.RecordID, &e.Field, &e.Old, &e.New); err != nil {
			return nil, eris.Wrap(err, "postgres: scan event")
		}
		events = append(events, e)
	}
	return events, eris.Wrap(rows.Err(), "postgres: list events iterate")
}

func scanPostgresRun(row scannable) (*model.Run, error) {
	var r model.Run
	var status string
	var completedAt *time.Time
	var summaryJSON []byte

	if err := row.Scan(&r.ID, &status, &r.StartedAt, &completedAt, &summaryJSON, &r.Error); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	r.CompletedAt = completedAt

	summary, err := unmarshalSummary(summaryJSON)
	if err != nil {
		return nil, err
	}
	r.Summary = summary
	return &r, nil
}
