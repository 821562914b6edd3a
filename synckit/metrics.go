package synckit

import (
	"time"

	"github.com/c0deZ3R0/ngw-sync-kit/delta"
)

// MetricsCollector provides hooks for collecting sync operation metrics
type MetricsCollector interface {
	delta.Metrics

	// RecordSyncDuration records how long a session step took
	RecordSyncDuration(operation string, duration time.Duration)

	// RecordConflicts records the number of conflicts detected when a session opens
	RecordConflicts(detected int)

	// RecordCommit records the number of resolutions written back to a container
	RecordCommit(resolutions int)
}

// NoOpMetricsCollector is a default implementation that does nothing
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordPage(actions int)                                      {}
func (n *NoOpMetricsCollector) RecordDelta(pages, actions int, duration time.Duration)      {}
func (n *NoOpMetricsCollector) RecordSyncErrors(operation string, errorType string)         {}
func (n *NoOpMetricsCollector) RecordSyncDuration(operation string, duration time.Duration) {}
func (n *NoOpMetricsCollector) RecordConflicts(detected int)                                {}
func (n *NoOpMetricsCollector) RecordCommit(resolutions int)                                {}
