// Package conflicts pairs pending local changes with a fetched remote delta
// and describes where they collide.
package conflicts

import (
	"errors"
	"fmt"
	"sort"

	"github.com/c0deZ3R0/ngw-sync-kit/actions"
	syncErrors "github.com/c0deZ3R0/ngw-sync-kit/errors"
	"github.com/c0deZ3R0/ngw-sync-kit/schema"
)

// Shape classifies a conflict by which sides delete the feature.
type Shape int

const (
	// ShapeUpdateUpdate: both sides change the feature. Creates count as changes.
	ShapeUpdateUpdate Shape = iota
	// ShapeUpdateDelete: local changes a feature the server deleted.
	ShapeUpdateDelete
	// ShapeDeleteUpdate: local deleted a feature the server changed.
	ShapeDeleteUpdate
)

func (s Shape) String() string {
	switch s {
	case ShapeUpdateUpdate:
		return "update/update"
	case ShapeUpdateDelete:
		return "update/delete"
	case ShapeDeleteUpdate:
		return "delete/update"
	default:
		return fmt.Sprintf("Shape(%d)", int(s))
	}
}

// VersioningConflict is an immutable pair of actions on the same feature.
// Field and geometry overlap are computed once by New.
type VersioningConflict struct {
	LocalAction  actions.FeatureAction
	RemoteAction actions.FeatureAction

	conflictingFields   []schema.FieldID
	hasGeometryConflict bool
}

// New builds a conflict. Both actions must target the same feature and at
// most one of them may be a delete.
func New(local, remote actions.FeatureAction) (VersioningConflict, error) {
	if local == nil || remote == nil {
		return VersioningConflict{}, syncErrors.NewValidationError(syncErrors.OpDetect, errors.New("conflict needs both a local and a remote action"))
	}
	if local.FID() != remote.FID() {
		return VersioningConflict{}, syncErrors.NewValidationError(syncErrors.OpDetect,
			fmt.Errorf("local action targets feature %d, remote action targets %d", local.FID(), remote.FID()))
	}
	if local.Type() == actions.ActionDelete && remote.Type() == actions.ActionDelete {
		return VersioningConflict{}, syncErrors.NewValidationError(syncErrors.OpDetect,
			fmt.Errorf("feature %d is deleted on both sides", local.FID()))
	}

	c := VersioningConflict{LocalAction: local, RemoteAction: remote}

	localChange, localOK := asDataChange(local)
	remoteChange, remoteOK := asDataChange(remote)
	if localOK && remoteOK {
		if len(localChange.Fields) > 0 && len(remoteChange.Fields) > 0 {
			remoteFields := remoteChange.FieldsDict()
			seen := make(map[schema.FieldID]bool)
			for _, fv := range localChange.Fields {
				if _, ok := remoteFields[fv.Field]; ok && !seen[fv.Field] {
					seen[fv.Field] = true
					c.conflictingFields = append(c.conflictingFields, fv.Field)
				}
			}
			sort.Slice(c.conflictingFields, func(i, j int) bool {
				return c.conflictingFields[i] < c.conflictingFields[j]
			})
		}
		c.hasGeometryConflict = localChange.Geom != nil && remoteChange.Geom != nil
	}

	return c, nil
}

// asDataChange views creates as data changes over an empty base.
func asDataChange(a actions.FeatureAction) (actions.DataChange, bool) {
	switch a.Type() {
	case actions.ActionDataChange:
		return a.(actions.DataChange), true
	case actions.ActionCreate:
		create := a.(actions.FeatureCreate)
		return actions.DataChange{ID: create.ID, Fields: create.SortedFields(), Geom: create.Geom}, true
	}
	return actions.DataChange{}, false
}

// FID returns the feature both actions target.
func (c VersioningConflict) FID() actions.FeatureID {
	return c.LocalAction.FID()
}

// ConflictingFields returns the field ids changed on both sides, sorted.
func (c VersioningConflict) ConflictingFields() []schema.FieldID {
	return append([]schema.FieldID(nil), c.conflictingFields...)
}

// HasGeometryConflict reports whether both sides changed the geometry.
func (c VersioningConflict) HasGeometryConflict() bool {
	return c.hasGeometryConflict
}

// HasFieldCollision reports whether any attribute or the geometry was
// changed on both sides.
func (c VersioningConflict) HasFieldCollision() bool {
	return len(c.conflictingFields) > 0 || c.hasGeometryConflict
}

// Shape derives the conflict shape from the action types.
func (c VersioningConflict) Shape() Shape {
	switch {
	case c.LocalAction.Type() == actions.ActionDelete:
		return ShapeDeleteUpdate
	case c.RemoteAction.Type() == actions.ActionDelete:
		return ShapeUpdateDelete
	default:
		return ShapeUpdateUpdate
	}
}

func (c VersioningConflict) String() string {
	return fmt.Sprintf("conflict(fid=%d, %s, fields=%v, geometry=%t)",
		c.FID(), c.Shape(), c.conflictingFields, c.hasGeometryConflict)
}
