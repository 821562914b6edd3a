// Package container describes the detached-editing container a sync
// session works against: its NGW metadata, its last synchronized feature
// records and the log of local edits not yet pushed to the server.
package container

import (
	"context"
	"fmt"
	"time"

	"github.com/c0deZ3R0/ngw-sync-kit/actions"
	"github.com/c0deZ3R0/ngw-sync-kit/schema"
)

// Metadata is the NGW binding of a container as recorded at its last sync.
type Metadata struct {
	ContainerPath string
	ConnectionID  string
	ResourceID    int64
	LayerName     string

	// Epoch identifies the remote history the container belongs to.
	Epoch int64
	// Version is the last remote version applied to the container.
	Version int64

	GeometryType string
	SRSID        int64

	// Fields is the remote schema cached when the container was created.
	Fields schema.Fields

	SyncDate time.Time
}

func (m Metadata) String() string {
	return fmt.Sprintf("%q (resource %d, epoch %d, version %d)", m.LayerName, m.ResourceID, m.Epoch, m.Version)
}

// MetadataSource is what the delta fetcher needs from a container.
type MetadataSource interface {
	Metadata(ctx context.Context) (Metadata, error)

	// Fields returns the container's current field definitions.
	Fields(ctx context.Context) (schema.Fields, error)

	// FieldsChanged reports whether the container's own field set has
	// structurally diverged from the cached remote schema.
	FieldsChanged(ctx context.Context) (bool, error)
}

// FeatureSource reads last synchronized feature records.
type FeatureSource interface {
	// Feature returns nil without error when fid has no base record.
	Feature(ctx context.Context, fid actions.FeatureID) (*actions.Feature, error)
}

// CommitRequest is everything written back at the end of a session.
type CommitRequest struct {
	// Delta is the remote action sequence, applied in order to base records.
	Delta []actions.Action

	// Resolutions replace the pending local actions of the listed fids.
	// A nil action drops the local edits for that fid.
	Resolutions map[actions.FeatureID]actions.FeatureAction

	Version  int64
	SyncDate time.Time
}

// Store is the full container contract used by a sync session.
type Store interface {
	MetadataSource
	FeatureSource

	// PendingActions returns local edits not yet pushed, oldest first.
	PendingActions(ctx context.Context) ([]actions.Action, error)

	// Commit applies req atomically: either everything is written or the
	// container is left unchanged.
	Commit(ctx context.Context, req CommitRequest) error

	Close() error
}
