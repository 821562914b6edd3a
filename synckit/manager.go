// Package synckit runs synchronization sessions for detached containers:
// fetch the remote delta, detect conflicts with the pending local edits,
// let the caller resolve them and write the outcome back in one step.
package synckit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/c0deZ3R0/ngw-sync-kit/conflicts"
	"github.com/c0deZ3R0/ngw-sync-kit/container"
	"github.com/c0deZ3R0/ngw-sync-kit/delta"
	syncErrors "github.com/c0deZ3R0/ngw-sync-kit/errors"
	"github.com/c0deZ3R0/ngw-sync-kit/logging"
	"github.com/c0deZ3R0/ngw-sync-kit/resolution"
)

const component = "synckit"

// ManagerOption is a functional option for configuring a Manager via NewManager.
type ManagerOption func(*Manager) error

// WithGetter sets the client used to reach the server.
func WithGetter(g delta.Getter) ManagerOption {
	return func(m *Manager) error {
		if g == nil {
			return errors.New("getter cannot be nil")
		}
		m.getter = g
		return nil
	}
}

// WithLogger sets a custom logger for the Manager.
func WithLogger(l *logging.Logger) ManagerOption {
	return func(m *Manager) error {
		if l == nil {
			return errors.New("logger cannot be nil")
		}
		m.logger = l
		return nil
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(c MetricsCollector) ManagerOption {
	return func(m *Manager) error {
		if c == nil {
			return errors.New("metrics collector cannot be nil")
		}
		m.metrics = c
		return nil
	}
}

// WithHooks sets the fetch observation callbacks passed to every session.
func WithHooks(h delta.Hooks) ManagerOption {
	return func(m *Manager) error {
		m.hooks = h
		return nil
	}
}

// WithMaxPages bounds the number of change pages fetched per session.
func WithMaxPages(n int) ManagerOption {
	return func(m *Manager) error {
		if n < 0 {
			return fmt.Errorf("max pages must not be negative, got %d", n)
		}
		m.maxPages = n
		return nil
	}
}

// WithLockRegistry shares a lock registry between managers.
func WithLockRegistry(r *LockRegistry) ManagerOption {
	return func(m *Manager) error {
		if r == nil {
			return errors.New("lock registry cannot be nil")
		}
		m.locks = r
		return nil
	}
}

// Manager opens synchronization sessions. At most one session per container
// is open at any time.
type Manager struct {
	getter   delta.Getter
	logger   *logging.Logger
	metrics  MetricsCollector
	hooks    delta.Hooks
	maxPages int
	locks    *LockRegistry
}

// NewManager constructs a Manager. WithGetter is required.
func NewManager(opts ...ManagerOption) (*Manager, error) {
	m := &Manager{
		logger:  logging.WithComponent(component),
		metrics: &NoOpMetricsCollector{},
		locks:   NewLockRegistry(),
	}

	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, syncErrors.NewValidationError(syncErrors.OpConfig, err)
		}
	}

	if m.getter == nil {
		return nil, syncErrors.NewValidationError(syncErrors.OpConfig, errors.New("getter is required (use WithGetter(...))"))
	}
	return m, nil
}

// Locks returns the registry guarding containers.
func (m *Manager) Locks() *LockRegistry {
	return m.locks
}

func lockKey(meta container.Metadata) string {
	if meta.ContainerPath != "" {
		return meta.ContainerPath
	}
	return fmt.Sprintf("%s/%d", meta.ConnectionID, meta.ResourceID)
}

// Open starts a session for store: it takes the container lock, downloads
// the remote delta, detects conflicts with the pending local edits and
// builds the resolution model. On error nothing is held.
func (m *Manager) Open(ctx context.Context, store container.Store) (_ *Session, err error) {
	start := time.Now()

	meta, err := store.Metadata(ctx)
	if err != nil {
		return nil, syncErrors.WrapOpComponent(err, syncErrors.OpSession, component)
	}

	release, err := m.locks.TryLock(lockKey(meta))
	if err != nil {
		return nil, syncErrors.NewWithComponent(syncErrors.OpSession, component, err).
			AddNote("Container: %s", lockKey(meta))
	}
	defer func() {
		if err != nil {
			release()
		}
	}()

	id := uuid.NewString()
	logger := m.logger.WithSession(id, lockKey(meta))
	logger.Info("Opening synchronization session",
		slog.Int64("resource_id", meta.ResourceID),
		slog.Int64("version", meta.Version),
	)

	fetcher := delta.NewFetcher(m.getter, store,
		delta.WithLogger(logger),
		delta.WithHooks(m.hooks),
		delta.WithMetrics(m.metrics),
		delta.WithMaxPages(m.maxPages),
	)
	result, err := fetcher.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	pending, err := store.PendingActions(ctx)
	if err != nil {
		m.metrics.RecordSyncErrors(string(syncErrors.OpDetect), string(syncErrors.CodeOf(err)))
		logger.LogError(ctx, err, "Failed to load pending actions")
		return nil, syncErrors.WrapOpComponent(err, syncErrors.OpDetect, component)
	}

	list, err := conflicts.DetectLogs(pending, result.Delta)
	if err != nil {
		m.metrics.RecordSyncErrors(string(syncErrors.OpDetect), string(syncErrors.CodeOf(err)))
		logger.LogError(ctx, err, "Failed to detect conflicts")
		return nil, syncErrors.WrapOpComponent(err, syncErrors.OpDetect, component)
	}
	model, err := resolution.NewModel(ctx, list, store)
	if err != nil {
		m.metrics.RecordSyncErrors(string(syncErrors.OpResolve), string(syncErrors.CodeOf(err)))
		logger.LogError(ctx, err, "Failed to build resolution model")
		return nil, err
	}

	m.metrics.RecordConflicts(len(list))
	m.metrics.RecordSyncDuration("open", time.Since(start))
	logger.Info("Synchronization session opened",
		slog.Int("changes", len(result.Delta)),
		slog.Int("pending", len(pending)),
		slog.Int("conflicts", len(list)),
		slog.Int64("target", result.Target),
	)

	return &Session{
		id:        id,
		meta:      meta,
		store:     store,
		result:    result,
		pending:   pending,
		conflicts: list,
		model:     model,
		logger:    logger,
		metrics:   m.metrics,
		release:   release,
	}, nil
}
