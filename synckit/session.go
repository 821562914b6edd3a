package synckit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/c0deZ3R0/ngw-sync-kit/actions"
	"github.com/c0deZ3R0/ngw-sync-kit/conflicts"
	"github.com/c0deZ3R0/ngw-sync-kit/container"
	"github.com/c0deZ3R0/ngw-sync-kit/delta"
	syncErrors "github.com/c0deZ3R0/ngw-sync-kit/errors"
	"github.com/c0deZ3R0/ngw-sync-kit/logging"
	"github.com/c0deZ3R0/ngw-sync-kit/resolution"
)

var (
	ErrSessionClosed    = errors.New("session is closed")
	ErrSessionCommitted = errors.New("session is already committed")
)

// Session is one open synchronization of a container. It holds the
// container lock until Close. Nothing is written to the container before
// Commit.
type Session struct {
	id        string
	meta      container.Metadata
	store     container.Store
	result    *delta.Result
	pending   []actions.Action
	conflicts []conflicts.VersioningConflict
	model     *resolution.Model
	logger    *logging.Logger
	metrics   MetricsCollector
	release   func()

	mu        sync.Mutex
	committed bool
	closed    bool
}

// ID returns the session id used in diagnostics.
func (s *Session) ID() string { return s.id }

// Metadata returns the container binding as read when the session opened.
func (s *Session) Metadata() container.Metadata { return s.meta }

// Result returns the downloaded delta with its target version.
func (s *Session) Result() *delta.Result { return s.result }

// Delta returns the remote changes in server order.
func (s *Session) Delta() []actions.Action { return s.result.Delta }

// PendingActions returns the local edits the conflicts were detected against.
func (s *Session) PendingActions() []actions.Action { return s.pending }

// Conflicts returns the detected conflicts ordered by feature id.
func (s *Session) Conflicts() []conflicts.VersioningConflict { return s.conflicts }

// Model returns the resolution model. It must not be used concurrently.
func (s *Session) Model() *resolution.Model { return s.model }

// Commit writes the session outcome to the container: the remote delta is
// applied to the base records, the pending edits of every conflicting
// feature are replaced by the edit that turns the new base record into the
// resolved feature, and the version advances to the delta target. The edit
// covers only the attributes the resolution decides, so server changes to
// other attributes stay. The model must be fully resolved.
func (s *Session) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return syncErrors.NewValidationError(syncErrors.OpCommit, ErrSessionClosed)
	case s.committed:
		return syncErrors.NewValidationError(syncErrors.OpCommit, ErrSessionCommitted)
	}

	start := time.Now()
	resolved, err := s.model.Commit()
	if err != nil {
		return err
	}

	items := s.model.Items()
	replace := make(map[actions.FeatureID]actions.FeatureAction, len(resolved))
	for i, r := range resolved {
		replace[r.FID] = r.ActionAgainst(items[i].RemoteFeature)
	}

	err = s.store.Commit(ctx, container.CommitRequest{
		Delta:       s.result.Delta,
		Resolutions: replace,
		Version:     s.result.Target,
		SyncDate:    s.result.Timestamp,
	})
	if err != nil {
		s.metrics.RecordSyncErrors(string(syncErrors.OpCommit), string(syncErrors.CodeOf(err)))
		s.logger.LogError(ctx, err, "Failed to commit synchronization session")
		return syncErrors.WrapOpComponent(err, syncErrors.OpCommit, component)
	}

	s.committed = true
	s.metrics.RecordCommit(len(resolved))
	s.metrics.RecordSyncDuration("commit", time.Since(start))
	s.logger.Info("Synchronization session committed",
		slog.Int("resolutions", len(resolved)),
		slog.Int64("version", s.result.Target),
	)
	return nil
}

// Committed reports whether Commit succeeded.
func (s *Session) Committed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed
}

// Close releases the container lock. Closing an uncommitted session
// discards the delta and every resolution.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.release()

	if !s.committed {
		s.logger.Info("Synchronization session discarded", slog.Int("conflicts", len(s.conflicts)))
	}
	return nil
}
