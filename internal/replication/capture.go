package replication

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/caelmor/world/internal/core"
	"github.com/caelmor/world/internal/diag"
	"github.com/caelmor/world/internal/fault"
	"github.com/caelmor/world/internal/ids"
	"github.com/caelmor/world/internal/sim"
)

// SliceBudget governs time-sliced capture work.
type SliceBudget struct {
	// SliceBudgetPerTick is the wall-clock budget one slice may consume.
	SliceBudgetPerTick time.Duration
	// MaxSlicesPerTick bounds slices executed per post-tick.
	MaxSlicesPerTick int
	// EntitiesPerSlice is the capture batch size; sessions with at most this
	// many eligible entities capture synchronously.
	EntitiesPerSlice int
}

// DeltaPipeline is the default SnapshotQueue: serialize the capture against
// the session baseline, then hand the bytes to the outbound queue.
type DeltaPipeline struct {
	Serializer *DeltaSerializer
	Outbound   *OutboundQueue
	Counters   *diag.PipelineCounters
}

// Enqueue implements SnapshotQueue.
func (p *DeltaPipeline) Enqueue(session ids.SessionId, snap *ClientSnapshot) {
	serialized := p.Serializer.Serialize(session, snap)
	p.Counters.SnapshotsSerialized.Add(1)
	p.Outbound.Enqueue(session, serialized)
}

// sliceWorkItem is a cursor-based capture of one large session. No suspension
// primitives: the driver calls executeSlice until it reports finished.
type sliceWorkItem struct {
	session  ids.SessionId
	tick     core.Tick
	entities []ids.EntityHandle
	cursor   int
	rows     []EntitySnapshot
}

// executeSlice captures up to entitiesPerSlice entities within the wall-clock
// budget. Returns true when the item is finished.
func (w *sliceWorkItem) executeSlice(reader core.ReplicationStateReader, budget time.Duration, entitiesPerSlice int) bool {
	deadline := time.Now().Add(budget)
	processed := 0
	for w.cursor < len(w.entities) && processed < entitiesPerSlice {
		entity := w.entities[w.cursor]
		w.rows = append(w.rows, EntitySnapshot{
			Entity:      entity,
			Fingerprint: reader.ReadCommittedState(entity),
		})
		w.cursor++
		processed++
		if !time.Now().Before(deadline) {
			break
		}
	}
	return w.cursor >= len(w.entities)
}

// Capturer is the post-tick replication phase hook. Captures are armed only
// inside OnPostTick; a capture request in any other phase is a contract
// violation.
type Capturer struct {
	reader      core.ReplicationStateReader
	entityGate  core.ReplicationEligibilityGate
	sessions    core.ActiveSessionIndex
	eligibility core.SnapshotEligibilityView
	queue       SnapshotQueue
	budget      SliceBudget
	counters    *diag.PipelineCounters
	logger      *zap.Logger

	armed bool
}

// NewCapturer wires the capture hook.
func NewCapturer(
	reader core.ReplicationStateReader,
	entityGate core.ReplicationEligibilityGate,
	sessions core.ActiveSessionIndex,
	eligibility core.SnapshotEligibilityView,
	queue SnapshotQueue,
	budget SliceBudget,
	counters *diag.PipelineCounters,
	logger *zap.Logger,
) *Capturer {
	if counters == nil {
		counters = &diag.PipelineCounters{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if budget.EntitiesPerSlice <= 0 {
		budget.EntitiesPerSlice = 128
	}
	if budget.MaxSlicesPerTick <= 0 {
		budget.MaxSlicesPerTick = 4
	}
	if budget.SliceBudgetPerTick <= 0 {
		budget.SliceBudgetPerTick = 2 * time.Millisecond
	}
	return &Capturer{
		reader:      reader,
		entityGate:  entityGate,
		sessions:    sessions,
		eligibility: eligibility,
		queue:       queue,
		budget:      budget,
		counters:    counters,
		logger:      logger.Named("capture"),
	}
}

// Name implements sim.PhaseHook.
func (c *Capturer) Name() string { return "replication.capture" }

// OnPreTick disarms captures for the tick body.
func (c *Capturer) OnPreTick(*sim.TickContext, sim.EligibleView) error {
	c.armed = false
	return nil
}

// OnPostTick arms captures and walks the deterministic session index. Small
// sessions capture synchronously; larger ones run through the time slicer.
// Every work item created for this tick either finishes now or is abandoned
// and counted, so nothing from tick T can be enqueued after tick T+1 starts.
func (c *Capturer) OnPostTick(ctx *sim.TickContext, eligible sim.EligibleView) error {
	c.armed = true
	defer func() { c.armed = false }()

	entities := append([]ids.EntityHandle(nil), eligible.Entities()...)
	sort.Slice(entities, func(i, j int) bool { return entities[i] < entities[j] })

	slicesUsed := 0
	var pending []*sliceWorkItem

	for _, session := range c.sessions.SnapshotSessionsDeterministic() {
		if !c.eligibility.IsSnapshotEligible(session) {
			continue
		}
		visible := c.visibleEntities(session, entities)
		if len(visible) <= c.budget.EntitiesPerSlice {
			snap, err := c.CaptureForSession(session, ctx.TickIndex, visible)
			if err != nil {
				return err
			}
			c.queue.Enqueue(session, snap)
			continue
		}
		pending = append(pending, &sliceWorkItem{
			session:  session,
			tick:     ctx.TickIndex,
			entities: visible,
		})
	}

	for _, item := range pending {
		finished := false
		for slicesUsed < c.budget.MaxSlicesPerTick {
			slicesUsed++
			c.counters.SnapshotSlicesRun.Add(1)
			if item.executeSlice(c.reader, c.budget.SliceBudgetPerTick, c.budget.EntitiesPerSlice) {
				finished = true
				break
			}
		}
		if !finished {
			// Budget exhausted: drop the item rather than leak tick-T data
			// into a later tick. The session re-captures fresh next tick.
			c.counters.SnapshotSlicesAbandoned.Add(1)
			c.logger.Debug("capture work item abandoned at slice budget",
				zap.String("session", string(item.session)),
				zap.Int64("tick", int64(item.tick)))
			continue
		}
		c.counters.SnapshotsBuilt.Add(1)
		c.queue.Enqueue(item.session, &ClientSnapshot{
			Session:  item.session,
			Tick:     item.tick,
			Entities: item.rows,
		})
	}
	return nil
}

// visibleEntities filters the tick's eligible entities through the per
// (session, entity) replication gate. Input is already sorted ascending.
func (c *Capturer) visibleEntities(session ids.SessionId, entities []ids.EntityHandle) []ids.EntityHandle {
	out := make([]ids.EntityHandle, 0, len(entities))
	for _, entity := range entities {
		if c.entityGate.IsEntityReplicationEligible(session, entity) {
			out = append(out, entity)
		}
	}
	return out
}

// CaptureForSession synchronously captures the given entities for the
// session. Fatal CaptureOutsidePostTick unless invoked inside OnPostTick.
func (c *Capturer) CaptureForSession(session ids.SessionId, tickIndex core.Tick, entities []ids.EntityHandle) (*ClientSnapshot, error) {
	if !c.armed {
		return nil, fault.Contract(fault.CaptureOutsidePostTick,
			"capture for session %s requested outside the post-tick phase", session)
	}
	sorted := append([]ids.EntityHandle(nil), entities...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	rows := make([]EntitySnapshot, 0, len(sorted))
	for _, entity := range sorted {
		rows = append(rows, EntitySnapshot{
			Entity:      entity,
			Fingerprint: c.reader.ReadCommittedState(entity),
		})
	}
	c.counters.SnapshotsBuilt.Add(1)
	return &ClientSnapshot{Session: session, Tick: tickIndex, Entities: rows}, nil
}
