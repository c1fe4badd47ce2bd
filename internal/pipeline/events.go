package pipeline

import (
	"github.com/sells-group/tramites-sync/internal/diff"
	"github.com/sells-group/tramites-sync/internal/model"
)

// Event kinds archived in the run store.
const (
	EventAdded    = "added"
	EventRemoved  = "removed"
	EventModified = "modified"
)

// Events flattens a diff into archive rows: lifecycle events in identifier
// order, then one row per field change.
func Events(res *diff.Result) []model.RunEvent {
	events := make([]model.RunEvent, 0, len(res.Added)+len(res.Removed)+res.FieldChangeCount())
	for _, e := range res.Lifecycle() {
		kind := EventAdded
		if e.Direction == diff.Removed {
			kind = EventRemoved
		}
		events = append(events, model.RunEvent{Kind: kind, RecordID: e.ID})
	}
	for _, m := range res.Modified {
		for _, c := range m.Changes {
			events = append(events, model.RunEvent{
				Kind:     EventModified,
				RecordID: m.ID,
				Field:    c.Field,
				Old:      c.Old.Text(),
				New:      c.New.Text(),
			})
		}
	}
	return events
}
