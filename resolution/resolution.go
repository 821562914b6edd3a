package resolution

import (
	"reflect"
	"sort"

	"github.com/c0deZ3R0/ngw-sync-kit/actions"
	"github.com/c0deZ3R0/ngw-sync-kit/schema"
)

// ConflictResolution is the committed outcome for one feature.
type ConflictResolution struct {
	FID  actions.FeatureID
	Type ResolutionType

	// Delete is set when the resolution accepts a deletion; Attributes and
	// Geometry are empty then.
	Delete     bool
	Attributes map[schema.FieldID]any
	Geometry   *actions.Geometry

	// Scope limits ActionAgainst. Nil means the whole feature.
	Scope *Scope
}

// Scope lists what a resolution decides for a feature the server still
// has. Attributes outside it keep their server values.
type Scope struct {
	Fields   []schema.FieldID
	Geometry bool
}

func (s *Scope) covers(field schema.FieldID) bool {
	if s == nil {
		return true
	}
	for _, f := range s.Fields {
		if f == field {
			return true
		}
	}
	return false
}

func (s *Scope) coversGeometry() bool {
	return s == nil || s.Geometry
}

// Feature returns the resulting snapshot, or nil for a delete.
func (r ConflictResolution) Feature() *actions.Feature {
	if r.Delete {
		return nil
	}
	f := &actions.Feature{FID: r.FID, Attributes: r.Attributes, Geometry: r.Geometry}
	return f.Clone()
}

// Action returns the resolution as a full-record action: a delete, or a
// data change carrying every attribute and the geometry.
func (r ConflictResolution) Action() actions.FeatureAction {
	if r.Delete {
		return actions.FeatureDelete{ID: r.FID}
	}
	return actions.DataChange{ID: r.FID, Fields: sortedValues(r.Attributes, nil, nil), Geom: copyGeometry(r.Geometry)}
}

// ActionAgainst returns the smallest action that turns remote into the
// resolved feature within Scope, or nil when they already match. A nil
// remote means the server no longer has the feature.
func (r ConflictResolution) ActionAgainst(remote *actions.Feature) actions.FeatureAction {
	if r.Delete {
		if remote == nil {
			return nil
		}
		return actions.FeatureDelete{ID: r.FID}
	}

	if remote == nil {
		fields := make(map[schema.FieldID]any, len(r.Attributes))
		for k, v := range r.Attributes {
			fields[k] = v
		}
		return actions.FeatureCreate{ID: r.FID, Fields: fields, Geom: copyGeometry(r.Geometry)}
	}

	change := actions.DataChange{ID: r.FID, Fields: sortedValues(r.Attributes, remote, r.Scope)}
	if r.Geometry != nil && r.Scope.coversGeometry() && !actions.GeometryEqual(r.Geometry, remote.Geometry) {
		change.Geom = copyGeometry(r.Geometry)
	}
	if len(change.Fields) == 0 && change.Geom == nil {
		return nil
	}
	return change
}

// sortedValues lists attrs within scope by field id, skipping values equal
// to those of against when it is not nil.
func sortedValues(attrs map[schema.FieldID]any, against *actions.Feature, scope *Scope) []actions.FieldValue {
	ids := make([]schema.FieldID, 0, len(attrs))
	for id, v := range attrs {
		if !scope.covers(id) {
			continue
		}
		if against != nil && reflect.DeepEqual(v, against.Attribute(id)) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]actions.FieldValue, len(ids))
	for i, id := range ids {
		out[i] = actions.FieldValue{Field: id, Value: attrs[id]}
	}
	return out
}

func copyGeometry(g *actions.Geometry) *actions.Geometry {
	if g == nil {
		return nil
	}
	geom := *g
	return &geom
}
