package diag

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry builds a prometheus registry whose collectors read the live
// diagnostics atomics. The ops server mounts it at /metrics.
func (d *Diagnostics) Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()

	counter := func(name, help string, read func() int64) {
		reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "caelmor",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(read()) }))
	}
	gauge := func(name, help string, read func() int64) {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "caelmor",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(read()) }))
	}

	p := d.Pipeline
	counter("snapshots_built_total", "Client snapshots captured.", p.SnapshotsBuilt.Load)
	counter("snapshots_serialized_total", "Delta snapshots serialized.", p.SnapshotsSerialized.Load)
	counter("snapshots_enqueued_total", "Serialized snapshots enqueued outbound.", p.SnapshotsEnqueued.Load)
	counter("snapshots_dequeued_total", "Serialized snapshots handed to transport.", p.SnapshotsDequeuedForSend.Load)
	counter("snapshots_dropped_total", "Snapshots dropped by outbound backpressure.", p.SnapshotsDropped.Load)
	counter("snapshot_slices_total", "Time-sliced capture slices executed.", p.SnapshotSlicesRun.Load)
	counter("snapshot_slices_abandoned_total", "Capture work items abandoned at budget.", p.SnapshotSlicesAbandoned.Load)
	counter("persist_enqueued_total", "Persistence write requests enqueued.", p.PersistRequestEnqueued.Load)
	counter("persist_drained_total", "Persistence write requests drained.", p.PersistRequestDrained.Load)
	counter("persist_drops_total", "Persistence requests dropped by caps.", p.PersistDrops.Load)
	gauge("persist_backlog", "Persistence requests currently queued.", p.PersistBacklog.Load)
	counter("combat_outcomes_applied_total", "Combat payloads applied.", p.OutcomesApplied.Load)
	counter("combat_duplicates_rejected_total", "Combat payloads skipped as per-tick duplicates.", p.DuplicateOutcomesRejected.Load)
	counter("combat_idempotence_overflow_total", "Ticks whose applied-set overflowed.", p.IdempotenceOverflow.Load)
	counter("combat_events_total", "Combat events emitted.", p.EventsCreated.Load)
	counter("commands_accepted_total", "Inbound commands accepted.", p.CommandsAccepted.Load)
	counter("commands_rejected_total", "Inbound commands rejected.", p.CommandsRejected.Load)
	counter("commands_drained_total", "Inbound commands drained by the tick thread.", p.CommandsDrained.Load)

	t := d.Ticks
	gauge("tick_current", "Current authoritative tick.", t.CurrentTick.Load)
	counter("ticks_total", "Ticks executed.", t.TicksRun.Load)
	counter("tick_overruns_total", "Ticks whose duration exceeded the interval.", t.Overruns.Load)
	counter("tick_clamps_total", "Catch-up clamp events.", t.Clamps.Load)
	gauge("tick_last_duration_us", "Last tick duration in microseconds.", func() int64 { return t.LastDurationNs.Load() / 1000 })

	return reg
}
