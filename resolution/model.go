// Package resolution holds the working set of a conflict resolution session:
// one item per conflict with local, remote and candidate result snapshots,
// and the operations a user (or a headless policy) applies to them.
package resolution

import (
	"context"
	"fmt"
	"strings"

	"github.com/c0deZ3R0/ngw-sync-kit/actions"
	"github.com/c0deZ3R0/ngw-sync-kit/codec"
	"github.com/c0deZ3R0/ngw-sync-kit/conflicts"
	syncErrors "github.com/c0deZ3R0/ngw-sync-kit/errors"
	"github.com/c0deZ3R0/ngw-sync-kit/schema"
)

// BaseSource returns last synchronized feature records. A missing record is
// reported as nil without error.
type BaseSource interface {
	Feature(ctx context.Context, fid actions.FeatureID) (*actions.Feature, error)
}

// Model is the session-scoped set of resolving items. Items live in a slice
// addressed by a stable index; a side map finds the index of a fid.
// A Model is not safe for concurrent use.
type Model struct {
	items []Item
	index map[actions.FeatureID]int
}

// NewModel reconstructs the snapshots of every conflict from its base
// record. Items keep the order of list.
func NewModel(ctx context.Context, list []conflicts.VersioningConflict, base BaseSource) (*Model, error) {
	m := &Model{
		items: make([]Item, 0, len(list)),
		index: make(map[actions.FeatureID]int, len(list)),
	}

	for _, c := range list {
		fid := c.FID()
		if _, dup := m.index[fid]; dup {
			return nil, syncErrors.NewValidationError(syncErrors.OpResolve, fmt.Errorf("feature %d has more than one conflict", fid))
		}

		var record *actions.Feature
		if base != nil {
			var err error
			if record, err = base.Feature(ctx, fid); err != nil {
				return nil, syncErrors.WrapOpComponent(fmt.Errorf("load base record of feature %d: %w", fid, err), syncErrors.OpResolve, "resolution")
			}
		}

		item := Item{
			Conflict:      c,
			LocalFeature:  record.Apply(c.LocalAction),
			RemoteFeature: record.Apply(c.RemoteAction),
		}
		item.ResultFeature = item.side(defaultSide(c.Shape())).Clone()

		m.index[fid] = len(m.items)
		m.items = append(m.items, item)
	}
	return m, nil
}

// defaultSide is the side a result starts from and an acknowledged but
// otherwise untouched item resolves to: the non-deleting side, or local
// when both sides change the feature.
func defaultSide(shape conflicts.Shape) ResolutionType {
	if shape == conflicts.ShapeDeleteUpdate {
		return Remote
	}
	return Local
}

// Len returns the number of items.
func (m *Model) Len() int {
	return len(m.items)
}

// ResolvedCount returns the number of acknowledged items.
func (m *Model) ResolvedCount() int {
	n := 0
	for i := range m.items {
		if m.items[i].Resolved {
			n++
		}
	}
	return n
}

// Ready reports whether Commit would succeed.
func (m *Model) Ready() bool {
	return m.ResolvedCount() == m.Len()
}

// Index returns the item index of fid.
func (m *Model) Index(fid actions.FeatureID) (int, bool) {
	i, ok := m.index[fid]
	return i, ok
}

// Item returns a copy of item i.
func (m *Model) Item(i int) (Item, error) {
	item, err := m.item(i)
	if err != nil {
		return Item{}, err
	}
	return item.clone(), nil
}

// Items returns copies of all items in index order.
func (m *Model) Items() []Item {
	out := make([]Item, len(m.items))
	for i := range m.items {
		out[i] = m.items[i].clone()
	}
	return out
}

func (m *Model) item(i int) (*Item, error) {
	if i < 0 || i >= len(m.items) {
		return nil, syncErrors.NewValidationError(syncErrors.OpResolve, fmt.Errorf("item index %d out of range [0, %d)", i, len(m.items)))
	}
	return &m.items[i], nil
}

// ResolveAsLocal makes item i take the local side and marks it resolved.
// Fields and geometry picked explicitly keep their picked values.
// For a shape with a delete this either keeps the local update or accepts
// the local delete.
func (m *Model) ResolveAsLocal(i int) error {
	return m.resolveAs(i, Local)
}

// ResolveAsRemote makes item i take the remote side and marks it resolved.
func (m *Model) ResolveAsRemote(i int) error {
	return m.resolveAs(i, Remote)
}

func (m *Model) resolveAs(i int, t ResolutionType) error {
	item, err := m.item(i)
	if err != nil {
		return err
	}
	item.ResultFeature = item.side(t).Clone()
	item.applyPicks()
	item.Type = t
	item.Resolved = true
	return nil
}

// ResolveAllAsLocal applies ResolveAsLocal to every item.
func (m *Model) ResolveAllAsLocal() {
	for i := range m.items {
		_ = m.resolveAs(i, Local)
	}
}

// ResolveAllAsRemote applies ResolveAsRemote to every item.
func (m *Model) ResolveAllAsRemote() {
	for i := range m.items {
		_ = m.resolveAs(i, Remote)
	}
}

// SetResolved sets the acknowledgement flag of item i. Acknowledging an
// item no side was chosen for records the side its result started from,
// or Custom when both sides change the feature.
func (m *Model) SetResolved(i int, resolved bool) error {
	item, err := m.item(i)
	if err != nil {
		return err
	}
	item.Resolved = resolved
	if resolved && item.Type == Unresolved {
		if item.Shape() == conflicts.ShapeUpdateUpdate {
			item.Type = Custom
		} else {
			item.Type = defaultSide(item.Shape())
		}
	}
	return nil
}

// mergeable returns item i when it supports field level edits.
func (m *Model) mergeable(i int) (*Item, error) {
	item, err := m.item(i)
	if err != nil {
		return nil, err
	}
	if item.Shape() != conflicts.ShapeUpdateUpdate {
		return nil, syncErrors.NewValidationError(syncErrors.OpResolve,
			fmt.Errorf("feature %d is a %s conflict; only local or remote can be chosen", item.FID(), item.Shape()))
	}
	if item.ResultFeature == nil {
		item.ResultFeature = actions.NewFeature(item.FID())
	}
	return item, nil
}

func (m *Model) knownField(item *Item, field schema.FieldID) error {
	for _, f := range []*actions.Feature{item.LocalFeature, item.RemoteFeature, item.ResultFeature} {
		if f == nil {
			continue
		}
		if _, ok := f.Attributes[field]; ok {
			return nil
		}
	}
	return syncErrors.NewValidationError(syncErrors.OpResolve, fmt.Errorf("feature %d has no field %d", item.FID(), field))
}

// TakeLocalField copies one attribute from the local snapshot into the
// result. The resolution type is left unchanged.
func (m *Model) TakeLocalField(i int, field schema.FieldID) error {
	return m.takeField(i, field, Local)
}

// TakeRemoteField copies one attribute from the remote snapshot into the
// result. The resolution type is left unchanged.
func (m *Model) TakeRemoteField(i int, field schema.FieldID) error {
	return m.takeField(i, field, Remote)
}

func (m *Model) takeField(i int, field schema.FieldID, t ResolutionType) error {
	item, err := m.mergeable(i)
	if err != nil {
		return err
	}
	if err := m.knownField(item, field); err != nil {
		return err
	}
	item.pickField(field, item.side(t).Attribute(field))
	return nil
}

// SetFieldValue stores an arbitrary value for one attribute of the result.
func (m *Model) SetFieldValue(i int, field schema.FieldID, value any) error {
	item, err := m.mergeable(i)
	if err != nil {
		return err
	}
	if err := m.knownField(item, field); err != nil {
		return err
	}
	item.pickField(field, codec.Simplify(value))
	return nil
}

// TakeLocalGeometry copies the local geometry into the result.
func (m *Model) TakeLocalGeometry(i int) error {
	return m.takeGeometry(i, Local)
}

// TakeRemoteGeometry copies the remote geometry into the result.
func (m *Model) TakeRemoteGeometry(i int) error {
	return m.takeGeometry(i, Remote)
}

func (m *Model) takeGeometry(i int, t ResolutionType) error {
	item, err := m.mergeable(i)
	if err != nil {
		return err
	}
	item.pickGeometry(item.side(t).Geometry)
	return nil
}

// Commit returns one resolution per item in index order. It refuses with a
// validation error naming the unresolved features while any item is not
// acknowledged.
func (m *Model) Commit() ([]ConflictResolution, error) {
	var pending []string
	for i := range m.items {
		if !m.items[i].Resolved {
			pending = append(pending, fmt.Sprint(m.items[i].FID()))
		}
	}
	if len(pending) > 0 {
		return nil, syncErrors.NewValidationError(syncErrors.OpResolve,
			fmt.Errorf("%d of %d conflicts are unresolved", len(pending), len(m.items))).
			AddNote("Unresolved: %s", strings.Join(pending, ", ")).
			WithMetadata("resolved", m.ResolvedCount()).
			WithMetadata("total", len(m.items))
	}

	out := make([]ConflictResolution, len(m.items))
	for i := range m.items {
		item := &m.items[i]
		res := ConflictResolution{FID: item.FID(), Type: item.Type}
		if item.ResultFeature == nil {
			res.Delete = true
		} else {
			snapshot := item.ResultFeature.Clone()
			res.Attributes = snapshot.Attributes
			res.Geometry = snapshot.Geometry
			res.Scope = item.scope()
		}
		out[i] = res
	}
	return out, nil
}
