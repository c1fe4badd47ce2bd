package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tramites-sync/internal/model"
	"github.com/sells-group/tramites-sync/internal/store"
)

// historyLimit bounds how many runs a collection reads. Weekly runs make
// this years of history.
const historyLimit = 500

// HealthSnapshot holds a point-in-time view of the sync schedule.
type HealthSnapshot struct {
	// Run counts within the lookback window.
	Total    int `json:"total"`
	Complete int `json:"complete"`
	Failed   int `json:"failed"`
	Running  int `json:"running"`

	// Change totals across completed runs in the window.
	Added    int `json:"added"`
	Removed  int `json:"removed"`
	Modified int `json:"modified"`

	LastRunID           string     `json:"last_run_id,omitempty"`
	LastSuccess         *time.Time `json:"last_success,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers health figures from the run store.
type Collector struct {
	store store.Store
}

// NewCollector creates a new collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect builds a snapshot over the given lookback window. LastSuccess and
// ConsecutiveFailures look at the whole retained history.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*HealthSnapshot, error) {
	now := time.Now().UTC()
	snap := &HealthSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	// Newest first.
	runs, err := c.store.ListRuns(ctx, store.RunFilter{Limit: historyLimit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}
	if len(runs) > 0 {
		snap.LastRunID = runs[0].ID
	}

	streakOpen := true
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			if snap.LastSuccess == nil {
				t := r.StartedAt
				if r.CompletedAt != nil {
					t = *r.CompletedAt
				}
				snap.LastSuccess = &t
			}
			streakOpen = false
		case model.RunStatusFailed:
			if streakOpen {
				snap.ConsecutiveFailures++
			}
		}

		if r.StartedAt.Before(cutoff) {
			continue
		}
		snap.Total++
		switch r.Status {
		case model.RunStatusComplete:
			snap.Complete++
			if r.Summary != nil {
				snap.Added += r.Summary.Added
				snap.Removed += r.Summary.Removed
				snap.Modified += r.Summary.Modified
			}
		case model.RunStatusFailed:
			snap.Failed++
		case model.RunStatusRunning:
			snap.Running++
		}
	}

	return snap, nil
}
