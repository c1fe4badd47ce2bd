// Package diff compares two snapshots of the procedure dataset and reports
// which records appeared, disappeared, or changed between runs.
package diff

import (
	"sort"
	"time"

	"github.com/sells-group/tramites-sync/internal/model"
	"github.com/sells-group/tramites-sync/internal/snapshot"
)

// Direction tells whether a record appeared or disappeared.
type Direction string

const (
	Added   Direction = "added"
	Removed Direction = "removed"
)

// LifecycleEvent is an identifier present in only one of the two snapshots.
// Record is the current content for additions and the last-known content
// for removals.
type LifecycleEvent struct {
	ID        string
	Direction Direction
	At        time.Time
	Record    model.Record
}

// FieldChange is one differing field. Old or New is the absent Value when
// the field exists on only one side.
type FieldChange struct {
	Field string
	Old   model.Value
	New   model.Value
}

// Modification lists every differing field of a record present in both snapshots.
type Modification struct {
	ID      string
	At      time.Time
	Changes []FieldChange
}

// Result holds the events of one comparison, each slice ordered by identifier.
type Result struct {
	At       time.Time
	Added    []LifecycleEvent
	Removed  []LifecycleEvent
	Modified []Modification
}

// Snapshots compares previous against current. Neither input is modified.
func Snapshots(previous, current *snapshot.Snapshot, at time.Time) *Result {
	res := &Result{At: at}

	for _, id := range current.IDs() {
		cur, _ := current.Get(id)
		prev, ok := previous.Get(id)
		if !ok {
			res.Added = append(res.Added, LifecycleEvent{ID: id, Direction: Added, At: at, Record: cur})
			continue
		}
		if changes := Fields(prev, cur); len(changes) > 0 {
			res.Modified = append(res.Modified, Modification{ID: id, At: at, Changes: changes})
		}
	}

	for _, id := range previous.IDs() {
		if current.Has(id) {
			continue
		}
		prev, _ := previous.Get(id)
		res.Removed = append(res.Removed, LifecycleEvent{ID: id, Direction: Removed, At: at, Record: prev})
	}

	return res
}

// Fields compares two versions of a record over the union of their field
// names, in ascending name order. A field on only one side is a change.
func Fields(old, cur model.Record) []FieldChange {
	var changes []FieldChange
	for _, name := range unionNames(old, cur) {
		ov, _ := old.Field(name)
		nv, _ := cur.Field(name)
		if model.Equal(ov, nv) {
			continue
		}
		changes = append(changes, FieldChange{Field: name, Old: ov, New: nv})
	}
	return changes
}

func unionNames(a, b model.Record) []string {
	seen := make(map[string]struct{}, a.Len()+b.Len())
	names := make([]string, 0, a.Len()+b.Len())
	for _, r := range []model.Record{a, b} {
		for _, n := range r.FieldNames() {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// Lifecycle merges additions and removals into one identifier-ordered list.
func (r *Result) Lifecycle() []LifecycleEvent {
	out := make([]LifecycleEvent, 0, len(r.Added)+len(r.Removed))
	out = append(out, r.Added...)
	out = append(out, r.Removed...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

// FieldChangeCount returns the total number of field changes.
func (r *Result) FieldChangeCount() int {
	n := 0
	for _, m := range r.Modified {
		n += len(m.Changes)
	}
	return n
}

// Empty reports whether the snapshots were equivalent.
func (r *Result) Empty() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0 && len(r.Modified) == 0
}
