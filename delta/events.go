package delta

import (
	"context"
	"time"

	"github.com/c0deZ3R0/ngw-sync-kit/container"
)

// Hooks provides optional callbacks for observing a fetch attempt.
type Hooks struct {
	OnStart    func(ctx context.Context, meta container.Metadata)
	OnPage     func(ctx context.Context, page int, actions int)
	OnComplete func(ctx context.Context, result *Result)
	OnFailure  func(ctx context.Context, err error)
}

// Metrics receives fetch measurements.
type Metrics interface {
	// RecordPage records one fetched page and the number of changes on it
	RecordPage(actions int)

	// RecordDelta records a completed fetch
	RecordDelta(pages, actions int, duration time.Duration)

	// RecordSyncErrors records sync operation errors by type
	RecordSyncErrors(operation string, errorType string)
}

type noOpMetrics struct{}

func (noOpMetrics) RecordPage(int)                      {}
func (noOpMetrics) RecordDelta(int, int, time.Duration) {}
func (noOpMetrics) RecordSyncErrors(string, string)     {}
