package actions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/ngw-sync-kit/schema"
)

func TestActionTypes(t *testing.T) {
	all := []Action{
		FeatureCreate{ID: 1},
		DataChange{ID: 1},
		FeatureDelete{ID: 1},
		Continue{URL: "http://example.com/next"},
	}
	want := []string{WireCreate, WireUpdate, WireDelete, WireContinue}
	for i, a := range all {
		assert.Equal(t, want[i], a.Type().String())
	}

	fid, ok := FIDOf(DataChange{ID: 7})
	assert.True(t, ok)
	assert.Equal(t, FeatureID(7), fid)

	_, ok = FIDOf(Continue{})
	assert.False(t, ok)
}

func TestDataChangeFieldsDict(t *testing.T) {
	change := DataChange{ID: 1, Fields: []FieldValue{{10, "x"}, {11, "y"}, {10, "z"}}}

	dict := change.FieldsDict()
	assert.Equal(t, map[schema.FieldID]any{10: "z", 11: "y"}, dict)
	assert.Equal(t, []schema.FieldID{10, 11, 10}, change.FieldIDs())
}

func TestTouchesGeometry(t *testing.T) {
	assert.False(t, TouchesGeometry(DataChange{ID: 1}))
	assert.True(t, TouchesGeometry(DataChange{ID: 1, Geom: GeometryPtr("POINT (0 0)")}))
	assert.True(t, TouchesGeometry(FeatureCreate{ID: 1, Geom: GeometryPtr("POINT (0 0)")}))
	assert.False(t, TouchesGeometry(FeatureDelete{ID: 1}))
	assert.False(t, TouchesGeometry(Continue{}))
}

func TestFeatureApply(t *testing.T) {
	base := &Feature{
		FID:        1,
		Attributes: map[schema.FieldID]any{10: "a", 11: int64(5)},
		Geometry:   GeometryPtr("POINT (0 0)"),
	}

	updated := base.Apply(DataChange{ID: 1, Fields: []FieldValue{{10, "b"}}})
	require.NotNil(t, updated)
	assert.Equal(t, "b", updated.Attribute(10))
	assert.Equal(t, int64(5), updated.Attribute(11))
	assert.Equal(t, Geometry("POINT (0 0)"), *updated.Geometry)
	assert.Equal(t, "a", base.Attribute(10), "base must not be modified")

	moved := base.Apply(DataChange{ID: 1, Geom: GeometryPtr("POINT (1 1)")})
	assert.Equal(t, Geometry("POINT (1 1)"), *moved.Geometry)

	assert.Nil(t, base.Apply(FeatureDelete{ID: 1}))

	var none *Feature
	created := none.Apply(FeatureCreate{ID: 2, Fields: map[schema.FieldID]any{10: "new"}})
	require.NotNil(t, created)
	assert.Equal(t, FeatureID(2), created.FID)
	assert.Equal(t, "new", created.Attribute(10))
	assert.Nil(t, created.Geometry)
}

func TestFeatureEqualAndClone(t *testing.T) {
	f := &Feature{FID: 1, Attributes: map[schema.FieldID]any{10: "a", 11: nil}, Geometry: GeometryPtr("P")}
	clone := f.Clone()
	assert.True(t, f.Equal(clone))

	clone.SetAttribute(10, "b")
	assert.False(t, f.Equal(clone))
	assert.Equal(t, "a", f.Attribute(10))

	sparse := &Feature{FID: 1, Attributes: map[schema.FieldID]any{10: "a"}, Geometry: GeometryPtr("P")}
	assert.True(t, f.Equal(sparse), "missing attribute equals nil")

	var none *Feature
	assert.Nil(t, none.Clone())
	assert.True(t, none.Equal(nil))
	assert.False(t, none.Equal(f))
}

func TestCollapse(t *testing.T) {
	log := []Action{
		FeatureCreate{ID: 1, Fields: map[schema.FieldID]any{10: "a"}},
		DataChange{ID: 1, Fields: []FieldValue{{10, "b"}, {11, "c"}}, Geom: GeometryPtr("G")},
		DataChange{ID: 2, Fields: []FieldValue{{10, "x"}}},
		DataChange{ID: 2, Fields: []FieldValue{{11, "y"}, {10, "z"}}},
		FeatureCreate{ID: 3},
		FeatureDelete{ID: 3},
		DataChange{ID: 4, Fields: []FieldValue{{10, "gone"}}},
		FeatureDelete{ID: 4},
		FeatureDelete{ID: 5},
		FeatureCreate{ID: 5, Fields: map[schema.FieldID]any{11: "back", 10: "again"}},
		Continue{URL: "next"},
	}

	collapsed := Collapse(log)
	require.Len(t, collapsed, 4)

	create, ok := collapsed[1].(FeatureCreate)
	require.True(t, ok, "expected create, got %T", collapsed[1])
	assert.Equal(t, map[schema.FieldID]any{10: "b", 11: "c"}, create.Fields)
	assert.Equal(t, Geometry("G"), *create.Geom)

	change, ok := collapsed[2].(DataChange)
	require.True(t, ok)
	assert.Equal(t, []FieldValue{{10, "z"}, {11, "y"}}, change.Fields)

	_, exists := collapsed[3]
	assert.False(t, exists, "create followed by delete cancels out")

	assert.Equal(t, FeatureDelete{ID: 4}, collapsed[4])

	restored, ok := collapsed[5].(DataChange)
	require.True(t, ok)
	assert.Equal(t, []FieldValue{{10, "again"}, {11, "back"}}, restored.Fields)

	// the input log is untouched
	assert.Equal(t, map[schema.FieldID]any{10: "a"}, log[0].(FeatureCreate).Fields)
	assert.Equal(t, []FieldValue{{10, "x"}}, log[2].(DataChange).Fields)
}
