// Package store persists the history of sync runs and the changes each one
// detected.
package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tramites-sync/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
}

// Store defines the persistence interface for run history.
type Store interface {
	CreateRun(ctx context.Context) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, summary model.RunSummary) error
	FailRun(ctx context.Context, runID string, reason string, summary *model.RunSummary) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// SaveEvents archives the changes a run detected, in order.
	SaveEvents(ctx context.Context, runID string, events []model.RunEvent) (int64, error)
	ListEvents(ctx context.Context, runID string, limit int) ([]model.RunEvent, error)

	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}

func marshalSummary(s *model.RunSummary) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	return b, eris.Wrap(err, "store: marshal summary")
}

func unmarshalSummary(b []byte) (*model.RunSummary, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var s model.RunSummary
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal summary")
	}
	return &s, nil
}
