// Package sim is the simulation core: it registers eligibility gates,
// participants, and phase hooks with deterministic ordering and drives the
// three tick phases. All entry points are tick-thread-only.
package sim

import (
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/caelmor/world/internal/core"
	"github.com/caelmor/world/internal/diag"
	"github.com/caelmor/world/internal/fault"
	"github.com/caelmor/world/internal/ids"
	"github.com/caelmor/world/internal/tick"
)

// Phase identifies where inside a tick the engine currently is.
type Phase int32

const (
	// PhaseIdle means no tick is in progress.
	PhaseIdle Phase = iota
	// PhasePreTick covers gate evaluation, pre-tick hooks, and authoritative
	// command application. Mutation is permitted.
	PhasePreTick
	// PhaseSimulate covers participant execution. Mutation is forbidden;
	// participants buffer effects instead.
	PhaseSimulate
	// PhasePostTick covers gate re-evaluation, effect commit, and post-tick
	// hooks. Mutation is permitted.
	PhasePostTick
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhasePreTick:
		return "PreTick"
	case PhaseSimulate:
		return "Simulate"
	case PhasePostTick:
		return "PostTick"
	default:
		return "Unknown"
	}
}

// EligibleView is the read-only slice of entities that passed every gate this
// tick, in canonical entity order.
type EligibleView struct {
	entities []ids.EntityHandle
	set      map[ids.EntityHandle]bool
}

// NewEligibleView builds a view over the given entities. The engine builds
// views internally; harnesses use this to drive hooks directly.
func NewEligibleView(entities []ids.EntityHandle) EligibleView {
	view := EligibleView{set: make(map[ids.EntityHandle]bool, len(entities))}
	for _, e := range entities {
		view.entities = append(view.entities, e)
		view.set[e] = true
	}
	return view
}

// Entities returns the eligible entities in order. Callers must not mutate
// the returned slice.
func (v EligibleView) Entities() []ids.EntityHandle { return v.entities }

// Contains reports whether the entity is eligible this tick.
func (v EligibleView) Contains(e ids.EntityHandle) bool { return v.set[e] }

// Len returns the eligible entity count.
func (v EligibleView) Len() int { return len(v.entities) }

// EligibilityGate is one predicate in the ordered pre-tick gate chain.
type EligibilityGate interface {
	Name() string
	IsEligible(entity ids.EntityHandle) bool
}

// Participant runs during the simulation phase. Participants must not mutate
// authoritative state directly; mutations go through the tick context's
// effect buffer.
type Participant interface {
	Name() string
	Simulate(ctx *TickContext, eligible EligibleView) error
}

// PhaseHook brackets the tick: pre-tick after gate evaluation, post-tick
// after the effect buffer commits.
type PhaseHook interface {
	Name() string
	OnPreTick(ctx *TickContext, eligible EligibleView) error
	OnPostTick(ctx *TickContext, eligible EligibleView) error
}

// TickContext is handed to participants and hooks. The buffer handle is
// tick-scoped: effects buffered through it land in the current tick's commit.
type TickContext struct {
	TickIndex  core.Tick
	FixedDelta time.Duration

	buffer *EffectBuffer
}

// Buffer returns the tick-scoped effect buffer.
func (c *TickContext) Buffer() *EffectBuffer { return c.buffer }

type registeredParticipant struct {
	p        Participant
	orderKey int
	seq      int
}

type registeredHook struct {
	h        PhaseHook
	orderKey int
	seq      int
}

// Engine is the simulation core.
type Engine struct {
	entityIndex core.EntityIndex
	effects     *EffectBuffer
	liveness    *diag.HookLiveness
	logger      *zap.Logger

	gates        []EligibilityGate
	participants []registeredParticipant
	hooks        []registeredHook
	regSeq       int

	phase       atomic.Int32
	currentTick atomic.Int64
}

// NewEngine builds the engine around the entity index.
func NewEngine(index core.EntityIndex, effects *EffectBuffer, liveness *diag.HookLiveness, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if effects == nil {
		effects = NewEffectBuffer(DefaultEffectCapacity)
	}
	if liveness == nil {
		liveness = diag.NewHookLiveness(5)
	}
	return &Engine{
		entityIndex: index,
		effects:     effects,
		liveness:    liveness,
		logger:      logger.Named("sim"),
	}
}

// RegisterGate appends a gate; gates evaluate in registration order.
func (e *Engine) RegisterGate(g EligibilityGate) {
	e.gates = append(e.gates, g)
}

// RegisterParticipant registers a participant at the given order key.
// Execution order is order key ascending, registration sequence breaking ties.
func (e *Engine) RegisterParticipant(p Participant, orderKey int) {
	e.participants = append(e.participants, registeredParticipant{p: p, orderKey: orderKey, seq: e.regSeq})
	e.regSeq++
	sort.SliceStable(e.participants, func(i, j int) bool {
		if e.participants[i].orderKey != e.participants[j].orderKey {
			return e.participants[i].orderKey < e.participants[j].orderKey
		}
		return e.participants[i].seq < e.participants[j].seq
	})
}

// RegisterHook registers a phase hook at the given order key; same ordering
// rule as participants.
func (e *Engine) RegisterHook(h PhaseHook, orderKey int) {
	e.hooks = append(e.hooks, registeredHook{h: h, orderKey: orderKey, seq: e.regSeq})
	e.regSeq++
	sort.SliceStable(e.hooks, func(i, j int) bool {
		if e.hooks[i].orderKey != e.hooks[j].orderKey {
			return e.hooks[i].orderKey < e.hooks[j].orderKey
		}
		return e.hooks[i].seq < e.hooks[j].seq
	})
}

// Phase returns the engine's current tick phase.
func (e *Engine) Phase() Phase { return Phase(e.phase.Load()) }

// IsMutationAllowedNow implements the mutation gate consulted by the
// mutation-bearing subsystems: authoritative state may change only in the
// pre-tick and post-tick phases, on the tick thread.
func (e *Engine) IsMutationAllowedNow() bool {
	p := e.Phase()
	return (p == PhasePreTick || p == PhasePostTick) && tick.OnTickThread()
}

// CurrentTick returns the tick currently executing (or last executed).
func (e *Engine) CurrentTick() core.Tick { return core.Tick(e.currentTick.Load()) }

func (e *Engine) evaluateGates(entities []ids.EntityHandle) (EligibleView, map[ids.EntityHandle]bool) {
	eligibility := make(map[ids.EntityHandle]bool, len(entities))
	view := EligibleView{set: make(map[ids.EntityHandle]bool, len(entities))}
	for _, entity := range entities {
		ok := true
		for _, g := range e.gates {
			if !g.IsEligible(entity) {
				ok = false
				break
			}
		}
		eligibility[entity] = ok
		if ok {
			view.entities = append(view.entities, entity)
			view.set[entity] = true
		}
	}
	return view, eligibility
}

// RunTick executes the three tick phases. It satisfies tick.Runner.
func (e *Engine) RunTick(tickIndex core.Tick, fixedDelta time.Duration) error {
	if err := tick.AssertTickThread("sim.RunTick"); err != nil {
		return err
	}
	e.currentTick.Store(int64(tickIndex))
	ctx := &TickContext{TickIndex: tickIndex, FixedDelta: fixedDelta, buffer: e.effects}
	defer e.phase.Store(int32(PhaseIdle))

	// Phase 1: pre-tick gate evaluation.
	e.phase.Store(int32(PhasePreTick))
	entities := e.entityIndex.SnapshotEntitiesDeterministic()
	view, preEligibility := e.evaluateGates(entities)

	for i := range e.hooks {
		h := e.hooks[i].h
		if err := h.OnPreTick(ctx, view); err != nil {
			return err
		}
		e.liveness.Touch(h.Name()+"/pre", tickIndex)
	}

	// Phase 2: simulation execution. The effect buffer window opens here;
	// direct mutation is off until finalization.
	e.phase.Store(int32(PhaseSimulate))
	e.effects.beginTick()
	for i := range e.participants {
		p := e.participants[i].p
		if err := p.Simulate(ctx, view); err != nil {
			if fault.IsFatal(err) {
				e.effects.clear()
				return err
			}
			e.logger.Warn("participant fault",
				zap.String("participant", p.Name()),
				zap.Int64("tick", int64(tickIndex)),
				zap.Error(err))
		}
	}

	// Phase 3: post-tick finalization.
	e.phase.Store(int32(PhasePostTick))
	_, postEligibility := e.evaluateGates(entities)
	for _, entity := range entities {
		if preEligibility[entity] != postEligibility[entity] {
			e.effects.clear()
			return fault.Invariant(fault.EligibilityMutatedMidTick,
				"entity %d eligibility changed mid-tick (pre=%t post=%t)",
				entity.Value(), preEligibility[entity], postEligibility[entity])
		}
	}

	if err := e.effects.commit(); err != nil {
		return err
	}

	for i := range e.hooks {
		h := e.hooks[i].h
		if err := h.OnPostTick(ctx, view); err != nil {
			return err
		}
		e.liveness.Touch(h.Name()+"/post", tickIndex)
	}
	return nil
}
