// Package snapshot holds the set of procedure records captured by one run and
// the line-delimited JSON format used to persist it between runs.
package snapshot

import (
	"fmt"
	"sort"

	"github.com/sells-group/tramites-sync/internal/model"
)

// DefaultIDField is the portal's identifier attribute.
const DefaultIDField = "id"

// Snapshot is an immutable set of records keyed by identifier.
// A nil *Snapshot behaves as an empty one.
type Snapshot struct {
	records map[string]model.Record
}

// Empty returns a snapshot with no records.
func Empty() *Snapshot {
	return &Snapshot{records: map[string]model.Record{}}
}

// Len returns the number of records.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

// Get returns the record with the given identifier.
func (s *Snapshot) Get(id string) (model.Record, bool) {
	if s == nil {
		return model.Record{}, false
	}
	r, ok := s.records[id]
	return r, ok
}

// Has reports whether id is present.
func (s *Snapshot) Has(id string) bool {
	_, ok := s.Get(id)
	return ok
}

// IDs returns every identifier in ascending byte order.
func (s *Snapshot) IDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Records returns every record ordered by identifier.
func (s *Snapshot) Records() []model.Record {
	ids := s.IDs()
	out := make([]model.Record, len(ids))
	for i, id := range ids {
		out[i] = s.records[id]
	}
	return out
}

// AnomalyKind classifies a recoverable per-record problem.
type AnomalyKind string

const (
	// AnomalyDuplicate: an identifier appeared more than once; the last record won.
	AnomalyDuplicate AnomalyKind = "duplicate_identifier"
	// AnomalyMalformed: a record had no usable identifier and was dropped.
	AnomalyMalformed AnomalyKind = "malformed_record"
)

// Anomaly describes a record that was replaced or dropped while building a
// snapshot. Position is the 1-based input position (line number for files).
type Anomaly struct {
	Kind     AnomalyKind `json:"kind"`
	ID       string      `json:"id,omitempty"`
	Position int         `json:"position"`
	Reason   string      `json:"reason"`
}

// Builder assembles a snapshot from records in arrival order.
// Duplicate identifiers resolve last-write-wins; records without an
// identifier are excluded. Both cases are reported as anomalies.
type Builder struct {
	idField   string
	records   map[string]model.Record
	seenAt    map[string]int
	anomalies []Anomaly
	pos       int
}

// NewBuilder returns a builder that reads identifiers from idField.
func NewBuilder(idField string) *Builder {
	if idField == "" {
		idField = DefaultIDField
	}
	return &Builder{
		idField: idField,
		records: make(map[string]model.Record),
		seenAt:  make(map[string]int),
	}
}

// Add inserts an already-identified record.
func (b *Builder) Add(rec model.Record) {
	b.pos++
	b.put(rec)
}

// AddValue inserts a decoded JSON object, extracting its identifier.
func (b *Builder) AddValue(v model.Value) {
	b.pos++
	rec, err := model.RecordFromValue(b.idField, v)
	if err != nil {
		b.anomalies = append(b.anomalies, Anomaly{
			Kind:     AnomalyMalformed,
			Position: b.pos,
			Reason:   err.Error(),
		})
		return
	}
	b.put(rec)
}

func (b *Builder) put(rec model.Record) {
	if first, dup := b.seenAt[rec.ID()]; dup {
		b.anomalies = append(b.anomalies, Anomaly{
			Kind:     AnomalyDuplicate,
			ID:       rec.ID(),
			Position: b.pos,
			Reason:   duplicateReason(first),
		})
	}
	b.seenAt[rec.ID()] = b.pos
	b.records[rec.ID()] = rec
}

// Build returns the snapshot and the anomalies found so far. The builder
// must not be used afterwards.
func (b *Builder) Build() (*Snapshot, []Anomaly) {
	s := &Snapshot{records: b.records}
	b.records = nil
	return s, b.anomalies
}

// FromRecords builds a snapshot from records, applying the builder policies.
func FromRecords(records ...model.Record) (*Snapshot, []Anomaly) {
	b := NewBuilder(DefaultIDField)
	for _, r := range records {
		b.Add(r)
	}
	return b.Build()
}

func duplicateReason(first int) string {
	return fmt.Sprintf("replaces earlier record at position %d", first)
}
