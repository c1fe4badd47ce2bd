package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/tramites-sync/internal/model"
)

// Nop is a Store that keeps nothing. It backs runs with store.driver "none"
// so the pipeline never has to check for a missing store.
type Nop struct{}

func (Nop) CreateRun(context.Context) (*model.Run, error) {
	return &model.Run{
		ID:        uuid.New().String(),
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}, nil
}

func (Nop) CompleteRun(context.Context, string, model.RunSummary) error { return nil }

func (Nop) FailRun(context.Context, string, string, *model.RunSummary) error { return nil }

func (Nop) GetRun(_ context.Context, runID string) (*model.Run, error) {
	return nil, eris.Wrapf(ErrNotFound, "nop: run %s", runID)
}

func (Nop) ListRuns(context.Context, RunFilter) ([]model.Run, error) { return nil, nil }

func (Nop) SaveEvents(context.Context, string, []model.RunEvent) (int64, error) { return 0, nil }

func (Nop) ListEvents(context.Context, string, int) ([]model.RunEvent, error) { return nil, nil }

func (Nop) Migrate(context.Context) error { return nil }

func (Nop) Close() error { return nil }
