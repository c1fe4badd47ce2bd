package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeValue(t *testing.T, raw string) Value {
	t.Helper()
	var v Value
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestRecordFromValue_NumericID(t *testing.T) {
	rec, err := RecordFromValue("id", decodeValue(t, `{"id": 101, "nombre": "Licencia A"}`))
	require.NoError(t, err)
	assert.Equal(t, "101", rec.ID())
	assert.Equal(t, []string{"id", "nombre"}, rec.FieldNames())

	nombre, ok := rec.Field("nombre")
	require.True(t, ok)
	s, _ := nombre.AsString()
	assert.Equal(t, "Licencia A", s)
}

func TestRecordFromValue_StringID(t *testing.T) {
	rec, err := RecordFromValue("id", decodeValue(t, `{"id": "abc-1"}`))
	require.NoError(t, err)
	assert.Equal(t, "abc-1", rec.ID())
}

func TestIdentifierText_ExactBytes(t *testing.T) {
	padded, ok := IdentifierText(String(" 101"))
	require.True(t, ok)
	assert.Equal(t, " 101", padded)

	plain, ok := IdentifierText(String("101"))
	require.True(t, ok)
	assert.NotEqual(t, plain, padded)

	_, ok = IdentifierText(String(" \t "))
	assert.False(t, ok)
}

func TestRecordFromValue_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		msg  string
	}{
		{"missing id", `{"nombre": "x"}`, "missing identifier"},
		{"null id", `{"id": null}`, "unusable null"},
		{"empty id", `{"id": "  "}`, "unusable string"},
		{"object id", `{"id": {"v": 1}}`, "unusable object"},
		{"not an object", `["id", 1]`, "not an object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RecordFromValue("id", decodeValue(t, tt.raw))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestNewRecord_CopiesInput(t *testing.T) {
	fields := map[string]Value{"status": String("activo")}
	rec := NewRecord("101", fields)
	fields["status"] = String("inactivo")

	got, _ := rec.Field("status")
	s, _ := got.AsString()
	assert.Equal(t, "activo", s)
}

func TestRecord_MarshalJSON(t *testing.T) {
	rec := NewRecord("7", map[string]Value{"nombre": String("B"), "id": Int(7)})
	b, err := rec.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"id":7,"nombre":"B"}`, string(b))
}
