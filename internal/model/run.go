package model

import "time"

// RunStatus represents the state of a sync run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RunSummary holds the counters recorded when a run completes. Carried counts
// procedures whose detail fetch failed and whose previous version was kept.
type RunSummary struct {
	Fetched      int  `json:"fetched"`
	FetchErrors  int  `json:"fetch_errors"`
	Previous     int  `json:"previous"`
	Added        int  `json:"added"`
	Removed      int  `json:"removed"`
	Modified     int  `json:"modified"`
	FieldChanges int  `json:"field_changes"`
	Anomalies    int  `json:"anomalies"`
	Carried      int  `json:"carried,omitempty"`
	Bootstrap    bool `json:"bootstrap,omitempty"`
	DryRun       bool `json:"dry_run,omitempty"`
}

// Run is one scheduled execution of fetch, diff and publish.
type Run struct {
	ID          string      `json:"id"`
	Status      RunStatus   `json:"status"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Summary     *RunSummary `json:"summary,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// RunEvent is one change detected by a run, as archived in the run store.
// Field, Old and New are empty for lifecycle events.
type RunEvent struct {
	Kind     string `json:"kind"`
	RecordID string `json:"record_id"`
	Field    string `json:"field,omitempty"`
	Old      string `json:"old,omitempty"`
	New      string `json:"new,omitempty"`
}
