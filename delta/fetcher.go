// Package delta downloads the remote changes of a versioned NGW layer since
// the version recorded in a local container.
package delta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c0deZ3R0/ngw-sync-kit/actions"
	"github.com/c0deZ3R0/ngw-sync-kit/codec"
	"github.com/c0deZ3R0/ngw-sync-kit/container"
	syncErrors "github.com/c0deZ3R0/ngw-sync-kit/errors"
	"github.com/c0deZ3R0/ngw-sync-kit/logging"
	"github.com/c0deZ3R0/ngw-sync-kit/transport/ngw"
)

// Getter issues a GET request and returns the JSON body, or nil when the
// server answered with no content.
type Getter interface {
	Get(ctx context.Context, url string) (json.RawMessage, error)
}

// GetterFunc adapts a function to Getter.
type GetterFunc func(ctx context.Context, url string) (json.RawMessage, error)

func (f GetterFunc) Get(ctx context.Context, url string) (json.RawMessage, error) {
	return f(ctx, url)
}

// Result is the outcome of a successful fetch.
type Result struct {
	// Target is the version to record once the delta has been applied.
	Target int64
	// Timestamp is the server clock at the time the delta was computed.
	Timestamp time.Time
	// Delta holds every change in server order, continuation markers removed.
	Delta []actions.Action
	Pages int
}

// Empty reports whether there is nothing to apply.
func (r *Result) Empty() bool {
	return len(r.Delta) == 0
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithLogger sets the logger used for fetch diagnostics.
func WithLogger(l *logging.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithHooks sets the observation callbacks.
func WithHooks(h Hooks) Option {
	return func(f *Fetcher) {
		f.hooks = h
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(f *Fetcher) {
		if m != nil {
			f.metrics = m
		}
	}
}

// WithMaxPages bounds the number of fetched pages. Zero means unbounded.
func WithMaxPages(n int) Option {
	return func(f *Fetcher) {
		f.maxPages = n
	}
}

// Fetcher runs a single check and fetch attempt for one container.
type Fetcher struct {
	getter   Getter
	source   container.MetadataSource
	logger   *logging.Logger
	hooks    Hooks
	metrics  Metrics
	maxPages int

	mu    sync.Mutex
	state State
	page  int
}

// NewFetcher creates a fetcher in the Idle state.
func NewFetcher(getter Getter, source container.MetadataSource, opts ...Option) *Fetcher {
	f := &Fetcher{
		getter:  getter,
		source:  source,
		logger:  logging.WithComponent("delta"),
		metrics: noOpMetrics{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// State returns the current state. Safe to call while Fetch runs.
func (f *Fetcher) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Page returns the number of the page being fetched, starting at 1.
func (f *Fetcher) Page() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.page
}

func (f *Fetcher) setState(s State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

func (f *Fetcher) setPage(page int) {
	f.mu.Lock()
	f.page = page
	f.mu.Unlock()
}

// Fetch checks the remote layer for changes and downloads all delta pages.
// Cancellation is honored between page requests. On failure no partial
// delta is returned.
func (f *Fetcher) Fetch(ctx context.Context) (*Result, error) {
	f.mu.Lock()
	if f.state != StateIdle {
		state := f.state
		f.mu.Unlock()
		return nil, syncErrors.NewValidationError(syncErrors.OpFetch, fmt.Errorf("fetcher already used (state %s)", state))
	}
	f.state = StateChecking
	f.mu.Unlock()

	start := time.Now()

	meta, err := f.source.Metadata(ctx)
	if err != nil {
		return nil, f.fail(ctx, err)
	}

	log := f.logger.With(slog.String("layer", meta.LayerName), slog.Int64("resource_id", meta.ResourceID))
	log.Debug("Start changes fetching", slog.Int64("epoch", meta.Epoch), slog.Int64("version", meta.Version))
	if f.hooks.OnStart != nil {
		f.hooks.OnStart(ctx, meta)
	}

	raw, err := f.getter.Get(ctx, CheckURL(meta.ResourceID, meta.Epoch, meta.Version))
	if err != nil {
		if errors.Is(err, ngw.ErrVersioningNotEnabled) {
			err = syncErrors.NewVersioningDisabledError(syncErrors.OpCheck, fmt.Errorf("versioning is not enabled: %w", err)).
				AddNote("Resource: %d", meta.ResourceID)
		}
		return nil, f.fail(ctx, err)
	}

	if raw == nil {
		log.Debug("No changes available")
		return f.complete(ctx, &Result{Target: meta.Version, Timestamp: time.Now().UTC(), Delta: []actions.Action{}}, start), nil
	}

	check, err := ParseCheck(raw)
	if err != nil {
		return nil, f.fail(ctx, err)
	}
	if err := checkCompatibility(ctx, f.source, meta, check); err != nil {
		return nil, f.fail(ctx, err)
	}

	f.setState(StateFetching)
	delta, pages, err := f.fetchPages(ctx, log, codec.NewSerializer(meta.Fields), check.FetchURL)
	if err != nil {
		return nil, f.fail(ctx, err)
	}

	log.Debug("Fetched changes", slog.Int("actions", len(delta)), slog.Int("pages", pages))
	return f.complete(ctx, &Result{
		Target:    check.Target,
		Timestamp: check.Timestamp,
		Delta:     delta,
		Pages:     pages,
	}, start), nil
}

func (f *Fetcher) fetchPages(ctx context.Context, log *slog.Logger, serializer *codec.Serializer, next string) ([]actions.Action, int, error) {
	var delta []actions.Action

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, page - 1, err
		}
		if f.maxPages > 0 && page > f.maxPages {
			return nil, page - 1, syncErrors.NewMalformedPayloadError(syncErrors.OpFetch,
				fmt.Errorf("server kept continuing after %d pages", f.maxPages))
		}
		f.setPage(page)

		payload, err := f.getter.Get(ctx, next)
		if err != nil {
			return nil, page, err
		}

		var list []actions.Action
		if payload != nil {
			if list, err = serializer.FromJSON(payload); err != nil {
				return nil, page, err
			}
		}

		next = ""
		if n := len(list); n > 0 && list[n-1].Type() == actions.ActionContinue {
			next = list[n-1].(actions.Continue).URL
			list = list[:n-1]
		}
		delta = append(delta, list...)

		log.Debug("Fetched page", slog.Int("page", page), slog.Int("actions", len(list)))
		f.metrics.RecordPage(len(list))
		if f.hooks.OnPage != nil {
			f.hooks.OnPage(ctx, page, len(list))
		}

		if next == "" {
			if delta == nil {
				delta = []actions.Action{}
			}
			return delta, page, nil
		}
	}
}

func (f *Fetcher) complete(ctx context.Context, result *Result, start time.Time) *Result {
	f.setState(StateComplete)
	f.metrics.RecordDelta(result.Pages, len(result.Delta), time.Since(start))
	if f.hooks.OnComplete != nil {
		f.hooks.OnComplete(ctx, result)
	}
	return result
}

// fetchErrorCodes are the kinds a failed attempt is reported with as is.
var fetchErrorCodes = map[syncErrors.ErrorCode]bool{
	syncErrors.ErrCodeVersioningDisabled:     true,
	syncErrors.ErrCodeEpochChanged:           true,
	syncErrors.ErrCodeStructureChanged:       true,
	syncErrors.ErrCodeMalformedPayload:       true,
	syncErrors.ErrCodeSynchronizationFailure: true,
}

// fail classifies err and moves the fetcher to Failed. Anything that is not
// already one of the fetch error kinds becomes a SynchronizationFailure
// wrapping the cause.
func (f *Fetcher) fail(ctx context.Context, err error) error {
	f.setState(StateFailed)

	classified := err
	if !fetchErrorCodes[syncErrors.CodeOf(err)] {
		classified = syncErrors.WrapOpComponentCode(
			fmt.Errorf("failed to download changes: %w", err),
			syncErrors.OpFetch, "delta", syncErrors.ErrCodeSynchronizationFailure)
	}

	f.logger.LogError(ctx, classified, "Changes fetching failed")
	f.metrics.RecordSyncErrors(string(syncErrors.OpFetch), string(syncErrors.CodeOf(classified)))
	if f.hooks.OnFailure != nil {
		f.hooks.OnFailure(ctx, classified)
	}
	return classified
}
