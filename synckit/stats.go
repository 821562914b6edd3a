package synckit

import (
	"sync"
	"sync/atomic"
	"time"
)

// StatsCollector is an in-memory MetricsCollector. Counters are cumulative
// over every session reported to it.
type StatsCollector struct {
	pages       atomic.Int64
	changes     atomic.Int64
	deltas      atomic.Int64
	conflicts   atomic.Int64
	resolutions atomic.Int64
	lastSync    atomic.Value // stores time.Time

	mu        sync.Mutex
	durations map[string]time.Duration
	errors    map[string]int64
}

func NewStatsCollector() *StatsCollector {
	return &StatsCollector{
		durations: make(map[string]time.Duration),
		errors:    make(map[string]int64),
	}
}

func (m *StatsCollector) RecordPage(actions int) {
	m.pages.Add(1)
}

func (m *StatsCollector) RecordDelta(pages, actions int, duration time.Duration) {
	m.deltas.Add(1)
	m.changes.Add(int64(actions))
	m.RecordSyncDuration("fetch", duration)
}

func (m *StatsCollector) RecordSyncErrors(operation string, errorType string) {
	if errorType == "" {
		errorType = "unclassified"
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[operation+"/"+errorType]++
}

func (m *StatsCollector) RecordSyncDuration(operation string, duration time.Duration) {
	m.mu.Lock()
	m.durations[operation] += duration
	m.mu.Unlock()
	m.lastSync.Store(time.Now())
}

func (m *StatsCollector) RecordConflicts(detected int) {
	m.conflicts.Add(int64(detected))
}

func (m *StatsCollector) RecordCommit(resolutions int) {
	m.resolutions.Add(int64(resolutions))
}

// Stats is a point-in-time copy of a StatsCollector.
type Stats struct {
	Pages       int64            `json:"pages"`
	Changes     int64            `json:"changes"`
	Deltas      int64            `json:"deltas"`
	Conflicts   int64            `json:"conflicts"`
	Resolutions int64            `json:"resolutions"`
	DurationsMS map[string]int64 `json:"durations_ms"`
	Errors      map[string]int64 `json:"errors,omitempty"`
	LastSync    string           `json:"last_sync,omitempty"`
}

// Snapshot returns the current counters.
func (m *StatsCollector) Snapshot() Stats {
	s := Stats{
		Pages:       m.pages.Load(),
		Changes:     m.changes.Load(),
		Deltas:      m.deltas.Load(),
		Conflicts:   m.conflicts.Load(),
		Resolutions: m.resolutions.Load(),
		DurationsMS: make(map[string]int64),
	}
	if lastSync, ok := m.lastSync.Load().(time.Time); ok {
		s.LastSync = lastSync.UTC().Format(time.RFC3339)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for op, d := range m.durations {
		s.DurationsMS[op] = d.Milliseconds()
	}
	if len(m.errors) > 0 {
		s.Errors = make(map[string]int64, len(m.errors))
		for k, v := range m.errors {
			s.Errors[k] = v
		}
	}
	return s
}
