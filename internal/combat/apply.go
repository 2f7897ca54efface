package combat

import (
	"go.uber.org/zap"

	"github.com/caelmor/world/internal/core"
	"github.com/caelmor/world/internal/diag"
	"github.com/caelmor/world/internal/fault"
	"github.com/caelmor/world/internal/ids"
	"github.com/caelmor/world/internal/tick"
)

// DefaultAppliedSetCap bounds per-tick idempotence tracking. Past the cap the
// applier keeps applying and emitting but stops deduplicating, flags the tick
// as overflowed, and counts it.
const DefaultAppliedSetCap = 4096

// appliedSetRetainTicks is how far back applied-sets are retained; older sets
// are pruned on each apply.
const appliedSetRetainTicks = 4

// payload kind bytes mixed into payload ids.
const (
	payloadKindIntentResult uint64 = 1
	payloadKindDamage       uint64 = 2
	payloadKindMitigation   uint64 = 3
	payloadKindStateChange  uint64 = 4
)

func payloadIDIntentResult(r IntentResult) uint64 {
	return core.Fnv64(payloadKindIntentResult, core.Fnv64String(r.IntentID), 0)
}

func payloadIDDamage(d DamageOutcome) uint64 {
	return core.Fnv64(payloadKindDamage, d.OutcomeID, 0)
}

func payloadIDMitigation(m MitigationOutcome) uint64 {
	return core.Fnv64(payloadKindMitigation, m.OutcomeID, 0)
}

func payloadIDStateChange(c StateChange) uint64 {
	return core.Fnv64(payloadKindStateChange, uint64(c.Entity.Value()), uint64(c.Kind))
}

// StatSink is the optional collaborator that actually lands damage and
// mitigation magnitudes on entity stats. The core applies ordering,
// idempotence, and events; the stat model lives outside.
type StatSink interface {
	ApplyDamage(d DamageOutcome)
	ApplyMitigation(m MitigationOutcome)
}

type appliedSet struct {
	seen       map[uint64]struct{}
	overflowed bool
}

// Applier applies resolved outcome batches for exactly one authoritative tick
// at a time, with per-tick idempotence and deterministic event emission.
// Tick-thread-only.
type Applier struct {
	authority   *Authority
	events      EventSink
	checkpoints core.CheckpointRequester
	stats       StatSink
	counters    *diag.PipelineCounters
	logger      *zap.Logger

	appliedCap   int
	applied      map[core.Tick]*appliedSet
	lastResolved map[ids.EntityHandle]string
}

// NewApplier wires the outcome applier. stats may be nil when no stat model
// is attached (harnesses).
func NewApplier(authority *Authority, events EventSink, checkpoints core.CheckpointRequester,
	stats StatSink, counters *diag.PipelineCounters, appliedCap int, logger *zap.Logger) *Applier {
	if counters == nil {
		counters = &diag.PipelineCounters{}
	}
	if appliedCap <= 0 {
		appliedCap = DefaultAppliedSetCap
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Applier{
		authority:    authority,
		events:       events,
		checkpoints:  checkpoints,
		stats:        stats,
		counters:     counters,
		logger:       logger.Named("combat.apply"),
		appliedCap:   appliedCap,
		applied:      make(map[core.Tick]*appliedSet),
		lastResolved: make(map[ids.EntityHandle]string),
	}
}

// LastResolvedIntent returns the last resolved or canceled intent id recorded
// for the entity, or "".
func (ap *Applier) LastResolvedIntent(entity ids.EntityHandle) string {
	return ap.lastResolved[entity]
}

// batchPayloadIDs flattens the batch's payload ids in apply order.
func batchPayloadIDs(batch *OutcomeBatch) []uint64 {
	out := make([]uint64, 0, len(batch.Results)+len(batch.Damage)+len(batch.Mitigation)+len(batch.StateChanges))
	for _, r := range batch.Results {
		out = append(out, payloadIDIntentResult(r))
	}
	for _, d := range batch.Damage {
		out = append(out, payloadIDDamage(d))
	}
	for _, m := range batch.Mitigation {
		out = append(out, payloadIDMitigation(m))
	}
	for _, c := range batch.StateChanges {
		out = append(out, payloadIDStateChange(c))
	}
	return out
}

// Apply applies the batch for currentTick. Entry checks are fatal: the batch
// tick must match and payload ids within the batch must be unique.
//
// Apply order is strict: IntentResults, then Damage, then Mitigation, then
// explicit StateChanges, each list in input order.
func (ap *Applier) Apply(batch *OutcomeBatch, currentTick core.Tick) error {
	if err := tick.AssertTickThread("combat.Apply"); err != nil {
		return err
	}
	if batch.Tick != currentTick {
		return fault.Contract(fault.TickMismatch,
			"batch tick %d != current tick %d", batch.Tick, currentTick)
	}
	allIDs := batchPayloadIDs(batch)
	unique := make(map[uint64]struct{}, len(allIDs))
	for _, id := range allIDs {
		if _, dup := unique[id]; dup {
			return fault.Contract(fault.DuplicatePayloadInBatch, "payload id %x appears twice in batch", id)
		}
		unique[id] = struct{}{}
	}

	set := ap.applied[currentTick]
	if set == nil {
		set = &appliedSet{seen: make(map[uint64]struct{})}
		ap.applied[currentTick] = set
	}
	ap.pruneApplied(currentTick)

	appliedCount := 0

	// admit consults and updates the per-tick applied-set. Returns false when
	// the payload already applied this tick.
	admit := func(payloadID uint64) bool {
		if _, dup := set.seen[payloadID]; dup {
			ap.counters.DuplicateOutcomesRejected.Add(1)
			return false
		}
		if !set.overflowed {
			if len(set.seen) >= ap.appliedCap {
				set.overflowed = true
				ap.counters.IdempotenceOverflow.Add(1)
				ap.logger.Warn("applied-set overflow, idempotence degraded",
					zap.Int64("tick", int64(currentTick)))
			} else {
				set.seen[payloadID] = struct{}{}
			}
		}
		return true
	}

	emit := func(t EventType, payloadID uint64) {
		ev := Event{
			EventID:   eventID(currentTick, t, payloadID),
			Tick:      currentTick,
			Type:      t,
			PayloadID: payloadID,
		}
		ap.events.Emit(ev)
		ap.counters.EventsCreated.Add(1)
	}

	for _, r := range batch.Results {
		payloadID := payloadIDIntentResult(r)
		if !admit(payloadID) {
			continue
		}
		if err := ap.applyIntentResult(r, currentTick); err != nil {
			return err
		}
		appliedCount++
		ap.counters.OutcomesApplied.Add(1)
		emit(EventIntentResult, payloadID)
	}

	for _, d := range batch.Damage {
		payloadID := payloadIDDamage(d)
		if !admit(payloadID) {
			continue
		}
		if ap.stats != nil {
			ap.stats.ApplyDamage(d)
		}
		appliedCount++
		ap.counters.OutcomesApplied.Add(1)
		emit(EventDamage, payloadID)
	}

	for _, m := range batch.Mitigation {
		payloadID := payloadIDMitigation(m)
		if !admit(payloadID) {
			continue
		}
		if ap.stats != nil {
			ap.stats.ApplyMitigation(m)
		}
		appliedCount++
		ap.counters.OutcomesApplied.Add(1)
		emit(EventMitigation, payloadID)
	}

	for _, c := range batch.StateChanges {
		payloadID := payloadIDStateChange(c)
		if !admit(payloadID) {
			continue
		}
		if err := ap.authority.ApplyStateChange(c, currentTick); err != nil {
			return err
		}
		appliedCount++
		ap.counters.OutcomesApplied.Add(1)
		emit(EventStateChange, payloadID)
	}

	if appliedCount > 0 && ap.checkpoints != nil {
		ap.checkpoints.RequestCheckpoint(currentTick)
	}
	return nil
}

// applyIntentResult lands the state effects of one terminal intent record.
func (ap *Applier) applyIntentResult(r IntentResult, currentTick core.Tick) error {
	switch r.Status {
	case ResultAccepted:
		return fault.Contract(fault.AcceptedIntentResultAtApplyTime,
			"intent %q reached application still Accepted", r.IntentID)
	case ResultRejected:
		// Rejections never mutate state.
		return nil
	case ResultResolved, ResultCanceled:
		state := ap.authority.GetState(r.Actor)
		if state.State == StateActing || state.State == StateDefending {
			if state.CommittedIntentID != r.IntentID {
				return fault.Invariant(fault.CommittedIntentMismatch,
					"entity %d committed to %q, result is for %q",
					r.Actor.Value(), state.CommittedIntentID, r.IntentID)
			}
			// Back to Engaged in the same combat context; the context id is
			// stable across Engaged → Acting → Engaged round-trips.
			if err := ap.authority.ApplyStateChange(StateChange{
				Entity:          r.Actor,
				Kind:            ToEngaged,
				CombatContextID: state.CombatContextID,
			}, currentTick); err != nil {
				return err
			}
		}
		ap.lastResolved[r.Actor] = r.IntentID
		return nil
	default:
		return fault.Contract(fault.AcceptedIntentResultAtApplyTime,
			"intent %q has unknown result status %d", r.IntentID, r.Status)
	}
}

// pruneApplied drops applied-sets older than the retention window.
func (ap *Applier) pruneApplied(currentTick core.Tick) {
	for t := range ap.applied {
		if t < currentTick-appliedSetRetainTicks {
			delete(ap.applied, t)
		}
	}
}
