package combat

import (
	"go.uber.org/zap"

	"github.com/caelmor/world/internal/core"
	"github.com/caelmor/world/internal/fault"
	"github.com/caelmor/world/internal/ids"
	"github.com/caelmor/world/internal/tick"
)

// MutationGate is consulted before any authoritative combat mutation. The
// simulation engine implements it: mutation is legal only in the pre-tick and
// post-tick phases on the tick thread.
type MutationGate interface {
	IsMutationAllowedNow() bool
}

// alwaysAllowed is the default gate for harnesses that drive the authority
// directly.
type alwaysAllowed struct{}

func (alwaysAllowed) IsMutationAllowedNow() bool { return true }

// Authority owns all per-entity combat state. Records are created lazily in
// Idle on first reference and never destroyed.
type Authority struct {
	states map[ids.EntityHandle]EntityState
	gate   MutationGate
	logger *zap.Logger
}

// NewAuthority creates an empty combat state authority.
func NewAuthority(gate MutationGate, logger *zap.Logger) *Authority {
	if gate == nil {
		gate = alwaysAllowed{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authority{
		states: make(map[ids.EntityHandle]EntityState),
		gate:   gate,
		logger: logger.Named("combat"),
	}
}

// GetState returns the entity's combat state, lazily creating the Idle record
// on first reference.
func (a *Authority) GetState(entity ids.EntityHandle) EntityState {
	if s, ok := a.states[entity]; ok {
		return s
	}
	s := EntityState{Entity: entity, State: StateIdle}
	a.states[entity] = s
	return s
}

// peek reads without creating; gating uses it to stay strictly read-only.
func (a *Authority) peek(entity ids.EntityHandle) EntityState {
	if s, ok := a.states[entity]; ok {
		return s
	}
	return EntityState{Entity: entity, State: StateIdle}
}

// ApplyStateChange mutates the entity's combat state per the change request.
// The post-mutation record must satisfy every structural invariant; a
// violation is fatal and the mutation does not land.
func (a *Authority) ApplyStateChange(change StateChange, atTick core.Tick) error {
	if err := tick.AssertTickThread("combat.ApplyStateChange"); err != nil {
		return err
	}
	if !a.gate.IsMutationAllowedNow() {
		return fault.Transition(fault.MidTickMutationForbidden,
			"state change for entity %d outside a mutation-permitted phase", change.Entity.Value())
	}

	next := EntityState{
		Entity:            change.Entity,
		State:             change.Kind.targetState(),
		CombatContextID:   change.CombatContextID,
		CommittedIntentID: change.CommittedIntentID,
		StateChangeTick:   atTick,
	}
	if err := next.validate(); err != nil {
		return err
	}
	a.states[change.Entity] = next
	return nil
}

// EstablishCombatContext transitions an Idle entity into Engaged under the
// given context. Any other starting state is a transition rejection.
func (a *Authority) EstablishCombatContext(entity ids.EntityHandle, contextID string, atTick core.Tick) error {
	if err := tick.AssertTickThread("combat.EstablishCombatContext"); err != nil {
		return err
	}
	if !a.gate.IsMutationAllowedNow() {
		return fault.Transition(fault.MidTickMutationForbidden,
			"establish context for entity %d outside a mutation-permitted phase", entity.Value())
	}
	if contextID == "" {
		return fault.Transition(fault.InvalidTransition, "empty combat context id")
	}
	current := a.GetState(entity)
	if current.State != StateIdle {
		return fault.Transition(fault.InvalidTransition,
			"entity %d is %s, context can only be established from Idle", entity.Value(), current.State)
	}
	a.states[entity] = EntityState{
		Entity:          entity,
		State:           StateEngaged,
		CombatContextID: contextID,
		StateChangeTick: atTick,
	}
	return nil
}

// gatingTable maps (state, intent type) to admission. Missing entries are
// blocked.
var gatingTable = map[State]map[IntentType]bool{
	StateIdle: {
		IntentMovement: true,
		IntentInteract: true,
	},
	StateEngaged: {
		IntentAttack:   true,
		IntentDefend:   true,
		IntentAbility:  true,
		IntentMovement: true,
		IntentInteract: true,
	},
	StateActing: {
		IntentCancel: true,
	},
	StateDefending: {
		IntentCancel: true,
	},
	StateRestricted: {
		IntentDefend:   true,
		IntentMovement: true,
		IntentCancel:   true,
	},
	StateIncapacitated: {
		IntentCancel: true,
	},
}

// GateFrozenQueue evaluates a frozen intent queue against current combat
// state. Strictly read-only: the pre and post state snapshots are compared
// bitwise and any divergence is fatal. Input order is preserved in every
// output sequence.
func (a *Authority) GateFrozenQueue(frozen []FrozenIntentRecord) (GateResult, error) {
	pre := a.snapshotStates()

	result := GateResult{
		Dispositions: make([]DispositionRow, 0, len(frozen)),
	}

	for _, intent := range frozen {
		state := a.peek(intent.Actor)

		reason := fault.Code("")
		switch {
		case state.State != StateIdle && state.CombatContextID == "":
			reason = fault.MissingCombatContext
		case state.validate() != nil:
			reason = fault.InvalidCombatState
		case !gatingTable[state.State][intent.Type]:
			reason = fault.IntentBlockedByState
		}

		row := DispositionRow{
			IntentID: intent.IntentID,
			Type:     intent.Type,
			Actor:    intent.Actor,
		}
		if reason == "" {
			row.Status = DispositionAccepted
			result.Accepted = append(result.Accepted, intent)
		} else {
			row.Status = DispositionRejected
			row.Reason = reason
			result.Rejections = append(result.Rejections, RejectionNotice{
				IntentID: intent.IntentID,
				Actor:    intent.Actor,
				Reason:   reason,
			})
		}
		result.Dispositions = append(result.Dispositions, row)
	}

	post := a.snapshotStates()
	if !statesEqual(pre, post) {
		return GateResult{}, fault.Invariant(fault.InvalidCombatState,
			"gating mutated combat state")
	}
	return result, nil
}

func (a *Authority) snapshotStates() map[ids.EntityHandle]EntityState {
	out := make(map[ids.EntityHandle]EntityState, len(a.states))
	for k, v := range a.states {
		out[k] = v
	}
	return out
}

func statesEqual(a, b map[ids.EntityHandle]EntityState) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
