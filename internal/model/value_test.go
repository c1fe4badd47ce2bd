package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustNumber(t *testing.T, text string) Value {
	t.Helper()
	v, err := Number(text)
	require.NoError(t, err)
	return v
}

func TestEqual_Scalars(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"same string", String("activo"), String("activo"), true},
		{"different string", String("activo"), String("inactivo"), false},
		{"null vs null", Null(), Null(), true},
		{"null vs absent", Null(), Value{}, false},
		{"bool", Bool(true), Bool(true), true},
		{"bool differs", Bool(true), Bool(false), false},
		{"int vs float text", mustNumber(t, "1"), mustNumber(t, "1.0"), true},
		{"exponent", mustNumber(t, "300"), mustNumber(t, "3e2"), true},
		{"numbers differ", Int(1), Int(2), false},
		{"string vs number", String("1"), Int(1), false},
		{"empty string vs null", String(""), Null(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
			assert.Equal(t, tt.want, Equal(tt.b, tt.a))
		})
	}
}

func TestEqual_Nested(t *testing.T) {
	a := Object(map[string]Value{
		"nombre":     String("Ministerio"),
		"requisitos": Array(String("CI"), String("Formulario")),
		"costo":      Object(map[string]Value{"monto": Int(50)}),
	})
	b := Object(map[string]Value{
		"costo":      Object(map[string]Value{"monto": mustNumber(t, "50.00")}),
		"requisitos": Array(String("CI"), String("Formulario")),
		"nombre":     String("Ministerio"),
	})
	assert.True(t, Equal(a, b))

	reordered := Object(map[string]Value{
		"nombre":     String("Ministerio"),
		"requisitos": Array(String("Formulario"), String("CI")),
		"costo":      Object(map[string]Value{"monto": Int(50)}),
	})
	assert.False(t, Equal(a, reordered), "sequence order is significant")

	extra := Object(map[string]Value{
		"nombre":     String("Ministerio"),
		"requisitos": Array(String("CI"), String("Formulario")),
		"costo":      Object(map[string]Value{"monto": Int(50), "moneda": String("Bs")}),
	})
	assert.False(t, Equal(a, extra))
}

func TestFromAny_JSONNumbers(t *testing.T) {
	var v Value
	require.NoError(t, json.Unmarshal([]byte(`{"id": 12345678901234567890, "precio": 1.50, "tags": ["a", null, true]}`), &v))

	require.Equal(t, KindObject, v.Kind())
	id, ok := v.Get("id")
	require.True(t, ok)
	text, ok := id.NumberText()
	require.True(t, ok)
	assert.Equal(t, "12345678901234567890", text, "large integers keep full precision")

	precio, _ := v.Get("precio")
	assert.True(t, Equal(precio, mustNumber(t, "1.5")))

	tags, _ := v.Get("tags")
	assert.Equal(t, 3, tags.Len())
	assert.Equal(t, KindNull, tags.Index(1).Kind())
}

func TestFromAny_Unsupported(t *testing.T) {
	_, err := FromAny(struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported value type")
}

func TestNumber_Invalid(t *testing.T) {
	_, err := Number("12abc")
	require.Error(t, err)
}

func TestMarshalJSON_SortedAndUnescaped(t *testing.T) {
	v := Object(map[string]Value{
		"nombre": String("Trámite <urgente> & rápido"),
		"activo": Bool(true),
		"monto":  mustNumber(t, "10.50"),
		"vacío":  Null(),
	})
	b, err := v.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"activo":true,"monto":10.50,"nombre":"Trámite <urgente> & rápido","vacío":null}`, string(b))
}

func TestText(t *testing.T) {
	assert.Equal(t, "activo", String("activo").Text())
	assert.Equal(t, "", Value{}.Text())
	assert.Equal(t, "null", Null().Text())
	assert.Equal(t, "42", Int(42).Text())
	assert.Equal(t, `["a","b"]`, Array(String("a"), String("b")).Text())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "absent", KindAbsent.String())
	assert.Equal(t, "object", KindObject.String())
}
