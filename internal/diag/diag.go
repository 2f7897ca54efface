// Package diag tracks tick-core health: phase-hook liveness, pipeline
// counters, and tick duration statistics. Counter and statistic writers are
// lock-free atomics; hook liveness takes a lock only to look up or create a
// hook's record. Readers get consistent-enough point-in-time reports.
package diag

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/caelmor/world/internal/core"
)

// ============================================================================
// HOOK LIVENESS
// ============================================================================

type hookRecord struct {
	lastTick  atomic.Int64
	execCount atomic.Int64
}

// HookReport is a read-only liveness row for one phase hook.
type HookReport struct {
	Name      string     `json:"name"`
	LastTick  core.Tick  `json:"last_tick"`
	ExecCount int64      `json:"exec_count"`
	Stale     bool       `json:"stale"`
}

// HookLiveness records, per named hook, the last tick it ran and how often.
type HookLiveness struct {
	mu    sync.RWMutex
	hooks map[string]*hookRecord

	// StaleThreshold is the tick gap at or beyond which a hook counts as
	// stale in reports.
	StaleThreshold int64
}

// NewHookLiveness creates a tracker with the given staleness threshold.
func NewHookLiveness(staleThreshold int64) *HookLiveness {
	if staleThreshold <= 0 {
		staleThreshold = 5
	}
	return &HookLiveness{hooks: make(map[string]*hookRecord), StaleThreshold: staleThreshold}
}

// Touch records one execution of the named hook at tick.
func (h *HookLiveness) Touch(name string, tick core.Tick) {
	h.mu.RLock()
	rec := h.hooks[name]
	h.mu.RUnlock()
	if rec == nil {
		h.mu.Lock()
		rec = h.hooks[name]
		if rec == nil {
			rec = &hookRecord{}
			h.hooks[name] = rec
		}
		h.mu.Unlock()
	}
	rec.lastTick.Store(int64(tick))
	rec.execCount.Add(1)
}

// Report returns liveness rows for every known hook at currentTick.
func (h *HookLiveness) Report(currentTick core.Tick) []HookReport {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]HookReport, 0, len(h.hooks))
	for name, rec := range h.hooks {
		last := rec.lastTick.Load()
		out = append(out, HookReport{
			Name:      name,
			LastTick:  core.Tick(last),
			ExecCount: rec.execCount.Load(),
			Stale:     int64(currentTick)-last >= h.StaleThreshold,
		})
	}
	return out
}

// ============================================================================
// PIPELINE COUNTERS
// ============================================================================

// PipelineCounters aggregates monotonic counters across the snapshot and
// persistence pipelines plus combat application. All fields are atomic.
type PipelineCounters struct {
	// Snapshot pipeline.
	SnapshotsBuilt           atomic.Int64
	SnapshotsSerialized      atomic.Int64
	SnapshotsEnqueued        atomic.Int64
	SnapshotsDequeuedForSend atomic.Int64
	SnapshotsDropped         atomic.Int64
	SnapshotSlicesRun        atomic.Int64
	SnapshotSlicesAbandoned  atomic.Int64

	// Persistence pipeline.
	PersistRequestEnqueued atomic.Int64
	PersistRequestDrained  atomic.Int64
	PersistDrops           atomic.Int64
	PersistBacklog         atomic.Int64 // gauge

	// Combat application.
	OutcomesApplied           atomic.Int64
	DuplicateOutcomesRejected atomic.Int64
	IdempotenceOverflow       atomic.Int64
	EventsCreated             atomic.Int64

	// Command ingress.
	CommandsAccepted atomic.Int64
	CommandsRejected atomic.Int64
	CommandsDrained  atomic.Int64
}

// PipelineReport is the JSON-friendly snapshot of PipelineCounters.
type PipelineReport struct {
	SnapshotsBuilt           int64 `json:"snapshots_built"`
	SnapshotsSerialized      int64 `json:"snapshots_serialized"`
	SnapshotsEnqueued        int64 `json:"snapshots_enqueued"`
	SnapshotsDequeuedForSend int64 `json:"snapshots_dequeued_for_send"`
	SnapshotsDropped         int64 `json:"snapshots_dropped"`
	SnapshotSlicesRun        int64 `json:"snapshot_slices_run"`
	SnapshotSlicesAbandoned  int64 `json:"snapshot_slices_abandoned"`
	PersistRequestEnqueued   int64 `json:"persist_request_enqueued"`
	PersistRequestDrained    int64 `json:"persist_request_drained"`
	PersistDrops             int64 `json:"persist_drops"`
	PersistBacklog           int64 `json:"persist_backlog"`
	OutcomesApplied          int64 `json:"outcomes_applied"`
	DuplicateOutcomesRejected int64 `json:"duplicate_outcomes_rejected"`
	IdempotenceOverflow      int64 `json:"idempotence_overflow"`
	EventsCreated            int64 `json:"events_created"`
	CommandsAccepted         int64 `json:"commands_accepted"`
	CommandsRejected         int64 `json:"commands_rejected"`
	CommandsDrained          int64 `json:"commands_drained"`
}

// Report captures the counters.
func (p *PipelineCounters) Report() PipelineReport {
	return PipelineReport{
		SnapshotsBuilt:            p.SnapshotsBuilt.Load(),
		SnapshotsSerialized:       p.SnapshotsSerialized.Load(),
		SnapshotsEnqueued:         p.SnapshotsEnqueued.Load(),
		SnapshotsDequeuedForSend:  p.SnapshotsDequeuedForSend.Load(),
		SnapshotsDropped:          p.SnapshotsDropped.Load(),
		SnapshotSlicesRun:         p.SnapshotSlicesRun.Load(),
		SnapshotSlicesAbandoned:   p.SnapshotSlicesAbandoned.Load(),
		PersistRequestEnqueued:    p.PersistRequestEnqueued.Load(),
		PersistRequestDrained:     p.PersistRequestDrained.Load(),
		PersistDrops:              p.PersistDrops.Load(),
		PersistBacklog:            p.PersistBacklog.Load(),
		OutcomesApplied:           p.OutcomesApplied.Load(),
		DuplicateOutcomesRejected: p.DuplicateOutcomesRejected.Load(),
		IdempotenceOverflow:       p.IdempotenceOverflow.Load(),
		EventsCreated:             p.EventsCreated.Load(),
		CommandsAccepted:          p.CommandsAccepted.Load(),
		CommandsRejected:          p.CommandsRejected.Load(),
		CommandsDrained:           p.CommandsDrained.Load(),
	}
}

// ============================================================================
// TICK STATISTICS
// ============================================================================

// TickStats tracks per-tick timing: the last duration, overruns (duration
// exceeded the interval), and catch-up clamps.
type TickStats struct {
	TicksRun       atomic.Int64
	Overruns       atomic.Int64
	Clamps         atomic.Int64
	LastDurationNs atomic.Int64
	MaxDurationNs  atomic.Int64
	CurrentTick    atomic.Int64
}

// RecordTick records one completed tick.
func (s *TickStats) RecordTick(tick core.Tick, duration time.Duration, overrun bool) {
	s.TicksRun.Add(1)
	s.CurrentTick.Store(int64(tick))
	ns := duration.Nanoseconds()
	s.LastDurationNs.Store(ns)
	for {
		max := s.MaxDurationNs.Load()
		if ns <= max || s.MaxDurationNs.CompareAndSwap(max, ns) {
			break
		}
	}
	if overrun {
		s.Overruns.Add(1)
	}
}

// RecordClamp records one catch-up clamp event.
func (s *TickStats) RecordClamp() { s.Clamps.Add(1) }

// TickReport is the JSON-friendly view of TickStats.
type TickReport struct {
	CurrentTick    int64 `json:"current_tick"`
	TicksRun       int64 `json:"ticks_run"`
	Overruns       int64 `json:"overruns"`
	Clamps         int64 `json:"clamps"`
	LastDurationUs int64 `json:"last_duration_us"`
	MaxDurationUs  int64 `json:"max_duration_us"`
}

// Report captures the stats.
func (s *TickStats) Report() TickReport {
	return TickReport{
		CurrentTick:    s.CurrentTick.Load(),
		TicksRun:       s.TicksRun.Load(),
		Overruns:       s.Overruns.Load(),
		Clamps:         s.Clamps.Load(),
		LastDurationUs: s.LastDurationNs.Load() / 1000,
		MaxDurationUs:  s.MaxDurationNs.Load() / 1000,
	}
}

// Diagnostics bundles the three trackers; one instance is shared by the whole
// process.
type Diagnostics struct {
	Hooks    *HookLiveness
	Pipeline *PipelineCounters
	Ticks    *TickStats
}

// New creates the process diagnostics bundle.
func New() *Diagnostics {
	return &Diagnostics{
		Hooks:    NewHookLiveness(5),
		Pipeline: &PipelineCounters{},
		Ticks:    &TickStats{},
	}
}
