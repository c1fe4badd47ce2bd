package model

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// Record is one procedure as published by the portal. Identity is the ID,
// never the field contents. Records are immutable: constructors copy their
// input and accessors never expose the backing map.
type Record struct {
	id     string
	fields map[string]Value
}

// NewRecord builds a record from an identifier and its fields.
func NewRecord(id string, fields map[string]Value) Record {
	cp := make(map[string]Value, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return Record{id: id, fields: cp}
}

// RecordFromValue builds a record from a decoded JSON object, reading the
// identifier from idField. Numeric identifiers are kept as their decimal text.
// The identifier field stays in the field map so the record round-trips.
func RecordFromValue(idField string, obj Value) (Record, error) {
	if obj.Kind() != KindObject {
		return Record{}, eris.Errorf("model: record is a %s, not an object", obj.Kind())
	}
	raw, ok := obj.Get(idField)
	if !ok {
		return Record{}, eris.Errorf("model: missing identifier field %q", idField)
	}
	id, ok := IdentifierText(raw)
	if !ok {
		return Record{}, eris.Errorf("model: identifier field %q holds unusable %s value", idField, raw.Kind())
	}
	return Record{id: id, fields: obj.obj}, nil
}

// IdentifierText renders an identifier value. Only non-empty strings and
// numbers qualify.
func IdentifierText(v Value) (string, bool) {
	switch v.Kind() {
	case KindString:
		// Matched byte for byte; blank text carries no identity.
		return v.s, strings.TrimSpace(v.s) != ""
	case KindNumber:
		return v.s, true
	default:
		return "", false
	}
}

// ID returns the identifier.
func (r Record) ID() string { return r.id }

// Field returns a field value; the absent Value when missing.
func (r Record) Field(name string) (Value, bool) {
	v, ok := r.fields[name]
	return v, ok
}

// FieldNames returns the field names in ascending order.
func (r Record) FieldNames() []string {
	names := make([]string, 0, len(r.fields))
	for k := range r.fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of fields.
func (r Record) Len() int { return len(r.fields) }

// Value returns the record as a JSON object value.
func (r Record) Value() Value { return Object(r.fields) }

// MarshalJSON encodes the record's fields as one JSON object.
func (r Record) MarshalJSON() ([]byte, error) {
	return Value{kind: KindObject, obj: r.fields}.MarshalJSON()
}
