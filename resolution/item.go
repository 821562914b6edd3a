package resolution

import (
	"sort"

	"github.com/c0deZ3R0/ngw-sync-kit/actions"
	"github.com/c0deZ3R0/ngw-sync-kit/conflicts"
	"github.com/c0deZ3R0/ngw-sync-kit/schema"
)

// Item is the working state of one conflict. Values returned by Model are
// copies; changes go through Model methods.
type Item struct {
	Conflict conflicts.VersioningConflict

	// Snapshots after applying each side's action to the synced base.
	// A side that deletes the feature has a nil snapshot.
	LocalFeature  *actions.Feature
	RemoteFeature *actions.Feature

	// ResultFeature is the candidate outcome. Nil means the feature is deleted.
	ResultFeature *actions.Feature

	Type     ResolutionType
	Resolved bool

	// Explicit field and geometry choices, reapplied after every
	// whole-feature resolve.
	fieldPicks     map[schema.FieldID]any
	geometryPicked bool
	geometryPick   *actions.Geometry
}

// FID returns the conflicting feature id.
func (it Item) FID() actions.FeatureID {
	return it.Conflict.FID()
}

// Shape returns the conflict shape.
func (it Item) Shape() conflicts.Shape {
	return it.Conflict.Shape()
}

// Picked reports whether field was chosen explicitly.
func (it Item) Picked(field schema.FieldID) bool {
	_, ok := it.fieldPicks[field]
	return ok
}

// GeometryPicked reports whether the geometry was chosen explicitly.
func (it Item) GeometryPicked() bool {
	return it.geometryPicked
}

func (it Item) clone() Item {
	it.LocalFeature = it.LocalFeature.Clone()
	it.RemoteFeature = it.RemoteFeature.Clone()
	it.ResultFeature = it.ResultFeature.Clone()
	if it.fieldPicks != nil {
		picks := make(map[schema.FieldID]any, len(it.fieldPicks))
		for k, v := range it.fieldPicks {
			picks[k] = v
		}
		it.fieldPicks = picks
	}
	it.geometryPick = copyGeometry(it.geometryPick)
	return it
}

func (it *Item) pickField(field schema.FieldID, value any) {
	if it.fieldPicks == nil {
		it.fieldPicks = make(map[schema.FieldID]any)
	}
	it.fieldPicks[field] = value
	it.ResultFeature.SetAttribute(field, value)
}

func (it *Item) pickGeometry(g *actions.Geometry) {
	it.geometryPicked = true
	it.geometryPick = copyGeometry(g)
	it.ResultFeature.SetGeometry(g)
}

// applyPicks writes the explicit choices over the current result.
func (it *Item) applyPicks() {
	if it.ResultFeature == nil {
		return
	}
	for field, value := range it.fieldPicks {
		it.ResultFeature.SetAttribute(field, value)
	}
	if it.geometryPicked {
		it.ResultFeature.SetGeometry(it.geometryPick)
	}
}

// scope returns what the resolution decides against the server state: the
// attributes and geometry the local action wrote plus the explicit picks.
func (it *Item) scope() *Scope {
	seen := make(map[schema.FieldID]bool)
	s := &Scope{Geometry: it.geometryPicked || actions.TouchesGeometry(it.Conflict.LocalAction)}

	switch it.Conflict.LocalAction.Type() {
	case actions.ActionDataChange:
		change := it.Conflict.LocalAction.(actions.DataChange)
		for _, fv := range change.Fields {
			seen[fv.Field] = true
		}
	case actions.ActionCreate:
		create := it.Conflict.LocalAction.(actions.FeatureCreate)
		for field := range create.Fields {
			seen[field] = true
		}
	}
	for field := range it.fieldPicks {
		seen[field] = true
	}

	s.Fields = make([]schema.FieldID, 0, len(seen))
	for field := range seen {
		s.Fields = append(s.Fields, field)
	}
	sort.Slice(s.Fields, func(i, j int) bool { return s.Fields[i] < s.Fields[j] })
	return s
}

// side returns the snapshot selected by t.
func (it *Item) side(t ResolutionType) *actions.Feature {
	if t == Local {
		return it.LocalFeature
	}
	return it.RemoteFeature
}
