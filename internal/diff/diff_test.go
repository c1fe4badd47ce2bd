package diff

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tramites-sync/internal/model"
	"github.com/sells-group/tramites-sync/internal/snapshot"
)

var runAt = time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)

func rec(id string, kv ...any) model.Record {
	fields := map[string]model.Value{}
	for i := 0; i+1 < len(kv); i += 2 {
		v, err := model.FromAny(kv[i+1])
		if err != nil {
			panic(err)
		}
		fields[kv[i].(string)] = v
	}
	return model.NewRecord(id, fields)
}

func snap(records ...model.Record) *snapshot.Snapshot {
	s, _ := snapshot.FromRecords(records...)
	return s
}

func ids(events []LifecycleEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func TestSnapshots_AdditionScenario(t *testing.T) {
	prev := snap(rec("101", "name", "Licencia A"))
	cur := snap(rec("101", "name", "Licencia A"), rec("102", "name", "Licencia B"))

	res := Snapshots(prev, cur, runAt)
	assert.Equal(t, []string{"102"}, ids(res.Added))
	assert.Empty(t, res.Removed)
	assert.Empty(t, res.Modified)

	require.Len(t, res.Added, 1)
	assert.Equal(t, Added, res.Added[0].Direction)
	assert.Equal(t, runAt, res.Added[0].At)
	name, _ := res.Added[0].Record.Field("name")
	assert.Equal(t, "Licencia B", name.Text(), "additions carry the current record")
}

func TestSnapshots_ModificationScenario(t *testing.T) {
	prev := snap(rec("101", "name", "Licencia A", "status", "activo"))
	cur := snap(rec("101", "name", "Licencia A", "status", "inactivo"))

	res := Snapshots(prev, cur, runAt)
	assert.Empty(t, res.Added)
	assert.Empty(t, res.Removed)
	require.Len(t, res.Modified, 1)

	m := res.Modified[0]
	assert.Equal(t, "101", m.ID)
	require.Len(t, m.Changes, 1)
	assert.Equal(t, "status", m.Changes[0].Field)
	assert.Equal(t, "activo", m.Changes[0].Old.Text())
	assert.Equal(t, "inactivo", m.Changes[0].New.Text())
}

func TestSnapshots_RemovalScenario(t *testing.T) {
	prev := snap(rec("101", "name", "Licencia A"))
	cur := snapshot.Empty()

	res := Snapshots(prev, cur, runAt)
	assert.Empty(t, res.Added)
	assert.Equal(t, []string{"101"}, ids(res.Removed))
	assert.Empty(t, res.Modified)

	name, _ := res.Removed[0].Record.Field("name")
	assert.Equal(t, "Licencia A", name.Text(), "removals carry the last-known record")
	assert.Equal(t, Removed, res.Removed[0].Direction)
}

func TestSnapshots_Bootstrap(t *testing.T) {
	cur := snap(rec("3"), rec("1"), rec("2"))

	res := Snapshots(snapshot.Empty(), cur, runAt)
	assert.Equal(t, []string{"1", "2", "3"}, ids(res.Added))
	assert.Empty(t, res.Removed)
	assert.Empty(t, res.Modified)

	res = Snapshots(nil, cur, runAt)
	assert.Len(t, res.Added, 3)
}

func TestSnapshots_FieldPresentOnOneSide(t *testing.T) {
	prev := snap(rec("7", "name", "X", "legacy", "old"))
	cur := snap(rec("7", "name", "X", "costo", 25))

	res := Snapshots(prev, cur, runAt)
	require.Len(t, res.Modified, 1)
	changes := res.Modified[0].Changes
	require.Len(t, changes, 2)

	assert.Equal(t, "costo", changes[0].Field)
	assert.True(t, changes[0].Old.IsAbsent())
	assert.Equal(t, "25", changes[0].New.Text())

	assert.Equal(t, "legacy", changes[1].Field)
	assert.Equal(t, "old", changes[1].Old.Text())
	assert.True(t, changes[1].New.IsAbsent())
}

func TestSnapshots_NullVersusAbsent(t *testing.T) {
	prev := snap(rec("7", "name", "X", "nota", nil))
	cur := snap(rec("7", "name", "X"))

	res := Snapshots(prev, cur, runAt)
	require.Len(t, res.Modified, 1)
	assert.Equal(t, "nota", res.Modified[0].Changes[0].Field)
}

func TestSnapshots_TypeMismatchIsModification(t *testing.T) {
	prev := snap(rec("5", "costo", "1"))
	cur := snap(rec("5", "costo", 1))

	res := Snapshots(prev, cur, runAt)
	require.Len(t, res.Modified, 1)
	assert.Equal(t, "costo", res.Modified[0].Changes[0].Field)
}

func TestSnapshots_NumericRepresentationIsNotModification(t *testing.T) {
	one, err := model.Number("1.0")
	require.NoError(t, err)
	prev := snap(rec("5", "costo", 1))
	cur := snap(model.NewRecord("5", map[string]model.Value{"costo": one}))

	res := Snapshots(prev, cur, runAt)
	assert.True(t, res.Empty())
}

func TestSnapshots_NestedStructuresCompareDeeply(t *testing.T) {
	entidad := func(name string) map[string]any {
		return map[string]any{"nombre": name, "sigla": "AGETIC", "contactos": []any{"a@b.bo", int64(2)}}
	}
	prev := snap(rec("9", "entidad", entidad("Agencia")))
	same := snap(rec("9", "entidad", entidad("Agencia")))
	changed := snap(rec("9", "entidad", entidad("Agencia de Gobierno")))

	assert.True(t, Snapshots(prev, same, runAt).Empty())

	res := Snapshots(prev, changed, runAt)
	require.Len(t, res.Modified, 1)
	assert.Equal(t, "entidad", res.Modified[0].Changes[0].Field)
	assert.Contains(t, res.Modified[0].Changes[0].New.Text(), "Agencia de Gobierno")
}

func TestSnapshots_DoesNotMutateInputs(t *testing.T) {
	prev := snap(rec("1", "a", "x"), rec("2", "a", "y"))
	cur := snap(rec("2", "a", "z"), rec("3", "a", "w"))

	_ = Snapshots(prev, cur, runAt)
	assert.Equal(t, []string{"1", "2"}, prev.IDs())
	assert.Equal(t, []string{"2", "3"}, cur.IDs())
	r, _ := prev.Get("2")
	v, _ := r.Field("a")
	assert.Equal(t, "y", v.Text())
}

func TestResult_LifecycleMergedByID(t *testing.T) {
	prev := snap(rec("20"), rec("05"))
	cur := snap(rec("10"), rec("30"))

	res := Snapshots(prev, cur, runAt)
	merged := res.Lifecycle()
	assert.Equal(t, []string{"05", "10", "20", "30"}, ids(merged))
	assert.Equal(t, Removed, merged[0].Direction)
	assert.Equal(t, Added, merged[1].Direction)
}

func TestResult_FieldChangeCount(t *testing.T) {
	prev := snap(rec("1", "a", "x", "b", "y"), rec("2", "a", "x"))
	cur := snap(rec("1", "a", "X", "b", "Y"), rec("2", "a", "X"))

	res := Snapshots(prev, cur, runAt)
	assert.Len(t, res.Modified, 2)
	assert.Equal(t, 3, res.FieldChangeCount())
}

// randomSnapshot builds n records with ids prefixed by prefix and a few
// random fields.
func randomSnapshot(r *rand.Rand, prefix string, n int) *snapshot.Snapshot {
	records := make([]model.Record, 0, n)
	for i := range n {
		records = append(records, rec(
			fmt.Sprintf("%s%d", prefix, r.IntN(10_000)+i*10_000),
			"nombre", fmt.Sprintf("tramite-%d", r.IntN(100)),
			"costo", r.IntN(500),
			"activo", r.IntN(2) == 0,
		))
	}
	return snap(records...)
}

func TestProperty_SelfDiffIsEmpty(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for range 25 {
		s := randomSnapshot(r, "", r.IntN(40))
		res := Snapshots(s, s, runAt)
		assert.True(t, res.Empty())
	}
}

func TestProperty_DisjointSnapshots(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	for range 25 {
		a := randomSnapshot(r, "a", r.IntN(30))
		b := randomSnapshot(r, "b", r.IntN(30))
		res := Snapshots(a, b, runAt)
		assert.Len(t, res.Added, b.Len())
		assert.Len(t, res.Removed, a.Len())
		assert.Empty(t, res.Modified)
	}
}

func TestProperty_OutputOrdering(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 6))
	prev := randomSnapshot(r, "", 60)
	cur := randomSnapshot(r, "", 60)

	res := Snapshots(prev, cur, runAt)
	assert.True(t, sort.StringsAreSorted(ids(res.Added)))
	assert.True(t, sort.StringsAreSorted(ids(res.Removed)))

	modIDs := make([]string, len(res.Modified))
	for i, m := range res.Modified {
		modIDs[i] = m.ID
		fields := make([]string, len(m.Changes))
		for j, c := range m.Changes {
			fields[j] = c.Field
		}
		assert.True(t, sort.StringsAreSorted(fields))
	}
	assert.True(t, sort.StringsAreSorted(modIDs))
}
