package actions

import (
	"reflect"
	"sort"

	"github.com/c0deZ3R0/ngw-sync-kit/schema"
)

// Feature is a point-in-time snapshot of a feature's attributes and geometry.
type Feature struct {
	FID        FeatureID
	Attributes map[schema.FieldID]any
	Geometry   *Geometry
}

// NewFeature returns an empty feature without attributes or geometry.
func NewFeature(fid FeatureID) *Feature {
	return &Feature{FID: fid, Attributes: make(map[schema.FieldID]any)}
}

// Clone returns a deep copy. Clone of nil is nil.
func (f *Feature) Clone() *Feature {
	if f == nil {
		return nil
	}
	out := &Feature{FID: f.FID, Attributes: make(map[schema.FieldID]any, len(f.Attributes))}
	for k, v := range f.Attributes {
		out.Attributes[k] = v
	}
	if f.Geometry != nil {
		geom := *f.Geometry
		out.Geometry = &geom
	}
	return out
}

// Attribute returns the value of a field. Missing fields read as nil.
func (f *Feature) Attribute(id schema.FieldID) any {
	return f.Attributes[id]
}

// SetAttribute overwrites one field value.
func (f *Feature) SetAttribute(id schema.FieldID, value any) {
	if f.Attributes == nil {
		f.Attributes = make(map[schema.FieldID]any)
	}
	f.Attributes[id] = value
}

// SetGeometry replaces the geometry with a copy of g.
func (f *Feature) SetGeometry(g *Geometry) {
	if g == nil {
		f.Geometry = nil
		return
	}
	geom := *g
	f.Geometry = &geom
}

// FieldIDs returns the ids of all set attributes, sorted.
func (f *Feature) FieldIDs() []schema.FieldID {
	ids := make([]schema.FieldID, 0, len(f.Attributes))
	for id := range f.Attributes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Equal compares attributes and geometry. A missing attribute equals nil.
func (f *Feature) Equal(other *Feature) bool {
	if f == nil || other == nil {
		return f == nil && other == nil
	}
	if f.FID != other.FID || !GeometryEqual(f.Geometry, other.Geometry) {
		return false
	}
	for id, v := range f.Attributes {
		if !reflect.DeepEqual(v, other.Attributes[id]) {
			return false
		}
	}
	for id, v := range other.Attributes {
		if _, ok := f.Attributes[id]; !ok && v != nil {
			return false
		}
	}
	return true
}

// Apply returns the snapshot that results from applying a to f. f is not
// modified. A nil receiver is the implicit "no prior value" base used for
// creates. Deletes yield nil.
func (f *Feature) Apply(a Action) *Feature {
	switch a.Type() {
	case ActionCreate:
		create := a.(FeatureCreate)
		out := f.Clone()
		if out == nil {
			out = NewFeature(create.ID)
		}
		for id, v := range create.Fields {
			out.SetAttribute(id, v)
		}
		if create.Geom != nil {
			out.SetGeometry(create.Geom)
		}
		return out

	case ActionDataChange:
		change := a.(DataChange)
		out := f.Clone()
		if out == nil {
			out = NewFeature(change.ID)
		}
		for _, fv := range change.Fields {
			out.SetAttribute(fv.Field, fv.Value)
		}
		if change.Geom != nil {
			out.SetGeometry(change.Geom)
		}
		return out

	case ActionDelete:
		return nil

	default:
		return f.Clone()
	}
}
