// Package actions models versioned changes to features of a vector layer.
//
// Action is a closed set: only the types in this package implement it, and
// callers classify an action by Type(), never by inspecting its fields.
package actions

import (
	"fmt"
	"sort"

	"github.com/c0deZ3R0/ngw-sync-kit/schema"
)

// FeatureID identifies a feature, stable between the container and the server.
type FeatureID int64

// ActionType is the discriminant of an Action.
type ActionType int

const (
	ActionCreate ActionType = iota + 1
	ActionDataChange
	ActionDelete
	ActionContinue
)

// Wire names of the action types.
const (
	WireCreate   = "feature.create"
	WireUpdate   = "feature.update"
	WireDelete   = "feature.delete"
	WireRestore  = "feature.restore"
	WireContinue = "continue"
)

func (t ActionType) String() string {
	switch t {
	case ActionCreate:
		return WireCreate
	case ActionDataChange:
		return WireUpdate
	case ActionDelete:
		return WireDelete
	case ActionContinue:
		return WireContinue
	default:
		return fmt.Sprintf("ActionType(%d)", int(t))
	}
}

// Geometry is an opaque wire geometry as exchanged with the server.
type Geometry string

// GeometryPtr is a helper for building actions in literals.
func GeometryPtr(g string) *Geometry {
	geom := Geometry(g)
	return &geom
}

// GeometryEqual compares two optional geometries.
func GeometryEqual(a, b *Geometry) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// FieldValue is one (field, value) pair of a data change.
type FieldValue struct {
	Field schema.FieldID
	Value any
}

// Action is a single versioned change.
type Action interface {
	Type() ActionType
	sealed()
}

// FeatureAction is an action bound to one feature.
type FeatureAction interface {
	Action
	FID() FeatureID
}

// FeatureCreate adds a feature.
type FeatureCreate struct {
	ID     FeatureID
	Fields map[schema.FieldID]any
	Geom   *Geometry
}

// DataChange updates attributes and/or geometry of a feature. Geom is set
// only when the geometry changed.
type DataChange struct {
	ID     FeatureID
	Fields []FieldValue
	Geom   *Geometry
}

// FeatureDelete removes a feature.
type FeatureDelete struct {
	ID FeatureID
}

// Continue is not a feature change: it tells the fetcher that more pages
// follow at URL. It is always the last action of a page.
type Continue struct {
	URL string
}

func (FeatureCreate) Type() ActionType { return ActionCreate }
func (DataChange) Type() ActionType    { return ActionDataChange }
func (FeatureDelete) Type() ActionType { return ActionDelete }
func (Continue) Type() ActionType      { return ActionContinue }

func (FeatureCreate) sealed() {}
func (DataChange) sealed()    {}
func (FeatureDelete) sealed() {}
func (Continue) sealed()      {}

func (a FeatureCreate) FID() FeatureID { return a.ID }
func (a DataChange) FID() FeatureID    { return a.ID }
func (a FeatureDelete) FID() FeatureID { return a.ID }

// FieldsDict returns the field pairs as a map. Later pairs win.
func (a DataChange) FieldsDict() map[schema.FieldID]any {
	dict := make(map[schema.FieldID]any, len(a.Fields))
	for _, fv := range a.Fields {
		dict[fv.Field] = fv.Value
	}
	return dict
}

// FieldIDs returns the ids touched by the change, in order.
func (a DataChange) FieldIDs() []schema.FieldID {
	ids := make([]schema.FieldID, len(a.Fields))
	for i, fv := range a.Fields {
		ids[i] = fv.Field
	}
	return ids
}

// SortedFields returns the create fields ordered by field id.
func (a FeatureCreate) SortedFields() []FieldValue {
	ids := make([]schema.FieldID, 0, len(a.Fields))
	for id := range a.Fields {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]FieldValue, len(ids))
	for i, id := range ids {
		out[i] = FieldValue{Field: id, Value: a.Fields[id]}
	}
	return out
}

// TouchesGeometry reports whether the action carries a geometry.
func TouchesGeometry(a Action) bool {
	switch a.Type() {
	case ActionCreate:
		return a.(FeatureCreate).Geom != nil
	case ActionDataChange:
		return a.(DataChange).Geom != nil
	}
	return false
}

// FIDOf returns the feature id of a, or false for a Continue marker.
func FIDOf(a Action) (FeatureID, bool) {
	fa, ok := a.(FeatureAction)
	if !ok {
		return 0, false
	}
	return fa.FID(), true
}
