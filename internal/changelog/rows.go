// Package changelog renders diff results as append-only CSV logs and
// publishes a run's outputs to the output directory.
package changelog

import (
	"time"

	"github.com/sells-group/tramites-sync/internal/diff"
)

// DefaultTimestampLayout renders the run time in UTC to the minute,
// e.g. 2025-01-06T10:00+00:00.
const DefaultTimestampLayout = "2006-01-02T15:04-07:00"

// LifecycleRow is one line of the additions/removals log.
type LifecycleRow struct {
	Timestamp string `csv:"timestamp"`
	ID        string `csv:"id"`
	Direction string `csv:"direction"`
}

// ModificationRow is one line of the modifications log: a single differing
// field of a single record.
type ModificationRow struct {
	Timestamp string `csv:"timestamp"`
	ID        string `csv:"id"`
	Field     string `csv:"field"`
	Old       string `csv:"old"`
	New       string `csv:"new"`
}

// FormatTimestamp renders t in UTC with layout, falling back to
// DefaultTimestampLayout.
func FormatTimestamp(t time.Time, layout string) string {
	if layout == "" {
		layout = DefaultTimestampLayout
	}
	return t.UTC().Format(layout)
}

// LifecycleRows flattens additions and removals into identifier order.
func LifecycleRows(res *diff.Result, layout string) []LifecycleRow {
	events := res.Lifecycle()
	rows := make([]LifecycleRow, 0, len(events))
	for _, e := range events {
		rows = append(rows, LifecycleRow{
			Timestamp: FormatTimestamp(e.At, layout),
			ID:        e.ID,
			Direction: string(e.Direction),
		})
	}
	return rows
}

// ModificationRows emits one row per field change. Strings are written raw,
// other values as compact JSON and absent values as empty cells.
func ModificationRows(res *diff.Result, layout string) []ModificationRow {
	rows := make([]ModificationRow, 0, res.FieldChangeCount())
	for _, m := range res.Modified {
		ts := FormatTimestamp(m.At, layout)
		for _, c := range m.Changes {
			rows = append(rows, ModificationRow{
				Timestamp: ts,
				ID:        m.ID,
				Field:     c.Field,
				Old:       c.Old.Text(),
				New:       c.New.Text(),
			})
		}
	}
	return rows
}
