// Package combat owns authoritative combat state and the per-tick
// gate → resolve → apply pipeline. All mutation runs on the tick thread in a
// mutation-permitted phase; gating and resolution are read-only.
package combat

import (
	"github.com/caelmor/world/internal/core"
	"github.com/caelmor/world/internal/fault"
	"github.com/caelmor/world/internal/ids"
)

// ============================================================================
// COMBAT STATE
// ============================================================================

// State is an entity's combat state.
type State int

const (
	StateIdle State = iota
	StateEngaged
	StateActing
	StateDefending
	StateRestricted
	StateIncapacitated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateEngaged:
		return "Engaged"
	case StateActing:
		return "Acting"
	case StateDefending:
		return "Defending"
	case StateRestricted:
		return "Restricted"
	case StateIncapacitated:
		return "Incapacitated"
	default:
		return "Unknown"
	}
}

// EntityState is the authoritative combat record for one entity.
// CommittedIntentID empty means no committed intent.
type EntityState struct {
	Entity            ids.EntityHandle
	State             State
	CombatContextID   string
	CommittedIntentID string
	StateChangeTick   core.Tick
}

// validate enforces the structural invariants. Violations are fatal: state
// this broken is never silently repaired.
func (s EntityState) validate() error {
	switch s.State {
	case StateIdle:
		if s.CombatContextID != "" || s.CommittedIntentID != "" {
			return fault.Invariant(fault.InvalidCombatState,
				"entity %d Idle with context=%q committed=%q", s.Entity.Value(), s.CombatContextID, s.CommittedIntentID)
		}
	case StateActing, StateDefending:
		if s.CombatContextID == "" || s.CommittedIntentID == "" {
			return fault.Invariant(fault.InvalidCombatState,
				"entity %d %s requires context and committed intent", s.Entity.Value(), s.State)
		}
	case StateEngaged:
		if s.CombatContextID == "" {
			return fault.Invariant(fault.InvalidCombatState,
				"entity %d Engaged without combat context", s.Entity.Value())
		}
		if s.CommittedIntentID != "" {
			return fault.Invariant(fault.InvalidCombatState,
				"entity %d Engaged with committed intent %q", s.Entity.Value(), s.CommittedIntentID)
		}
	case StateRestricted, StateIncapacitated:
		if s.CombatContextID == "" {
			return fault.Invariant(fault.InvalidCombatState,
				"entity %d %s without combat context", s.Entity.Value(), s.State)
		}
	}
	return nil
}

// ============================================================================
// INTENTS
// ============================================================================

// IntentType tags a combat intent.
type IntentType int

const (
	IntentAttack IntentType = iota
	IntentDefend
	IntentAbility
	IntentMovement
	IntentInteract
	IntentCancel
)

func (t IntentType) String() string {
	switch t {
	case IntentAttack:
		return "Attack"
	case IntentDefend:
		return "Defend"
	case IntentAbility:
		return "Ability"
	case IntentMovement:
		return "Movement"
	case IntentInteract:
		return "Interact"
	case IntentCancel:
		return "Cancel"
	default:
		return "Unknown"
	}
}

// FrozenIntentRecord is one immutable entry of the frozen intent queue. The
// payload is opaque to the core.
type FrozenIntentRecord struct {
	IntentID   string
	Type       IntentType
	Actor      ids.EntityHandle
	SubmitTick core.Tick
	Sequence   uint64
	Payload    []byte
}

// DispositionStatus is the gating verdict for one intent.
type DispositionStatus int

const (
	DispositionAccepted DispositionStatus = iota
	DispositionRejected
)

func (d DispositionStatus) String() string {
	if d == DispositionAccepted {
		return "Accepted"
	}
	return "Rejected"
}

// DispositionRow records the gating verdict for one input intent, in input
// order.
type DispositionRow struct {
	IntentID string
	Type     IntentType
	Actor    ids.EntityHandle
	Status   DispositionStatus
	Reason   fault.Code
}

// RejectionNotice is the observable notification for a rejected intent.
type RejectionNotice struct {
	IntentID string
	Actor    ids.EntityHandle
	Reason   fault.Code
}

// GateResult is the full output of gating one frozen queue.
type GateResult struct {
	Accepted     []FrozenIntentRecord
	Dispositions []DispositionRow
	Rejections   []RejectionNotice
}

// ============================================================================
// RESOLUTION OUTCOMES
// ============================================================================

// ProposalKind is the resolution verdict class for one accepted intent.
type ProposalKind int

const (
	AttackProposed ProposalKind = iota
	DefenseProposed
	AbilityProposed
	MovementProposed
	InteractionProposed
	CancellationEvaluated
)

func (k ProposalKind) String() string {
	switch k {
	case AttackProposed:
		return "AttackProposed"
	case DefenseProposed:
		return "DefenseProposed"
	case AbilityProposed:
		return "AbilityProposed"
	case MovementProposed:
		return "MovementProposed"
	case InteractionProposed:
		return "InteractionProposed"
	case CancellationEvaluated:
		return "CancellationEvaluated"
	default:
		return "Unknown"
	}
}

// Proposal is the proposal-level outcome of resolving one accepted intent.
// Not yet applied; application happens in the outcome batch.
type Proposal struct {
	IntentID string
	Type     IntentType
	Actor    ids.EntityHandle
	Tick     core.Tick
	Kind     ProposalKind
}

// ============================================================================
// OUTCOME BATCH
// ============================================================================

// ResultStatus is the terminal status of one intent. Accepted is a transient
// gating status and is a contract violation at application time.
type ResultStatus int

const (
	ResultAccepted ResultStatus = iota
	ResultRejected
	ResultResolved
	ResultCanceled
)

func (s ResultStatus) String() string {
	switch s {
	case ResultAccepted:
		return "Accepted"
	case ResultRejected:
		return "Rejected"
	case ResultResolved:
		return "Resolved"
	case ResultCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// IntentResult is the terminal record for one intent within a batch.
type IntentResult struct {
	IntentID           string
	Type               IntentType
	Actor              ids.EntityHandle
	Status             ResultStatus
	AuthoritativeTick  core.Tick
	Reason             fault.Code
	ProducedOutcomeIDs []uint64
}

// DamageOutcome carries a resolved damage application.
type DamageOutcome struct {
	OutcomeID        uint64
	Source           ids.EntityHandle
	Target           ids.EntityHandle
	ResolvedIntentID string
	Magnitude        int64
}

// MitigationOutcome carries a resolved mitigation application.
type MitigationOutcome struct {
	OutcomeID        uint64
	Source           ids.EntityHandle
	Target           ids.EntityHandle
	ResolvedIntentID string
	Magnitude        int64
}

// StateChangeKind names the target state of an explicit state change.
type StateChangeKind int

const (
	ToIdle StateChangeKind = iota
	ToEngaged
	ToActing
	ToDefending
	ToRestricted
	ToIncapacitated
)

func (k StateChangeKind) String() string {
	switch k {
	case ToIdle:
		return "ToIdle"
	case ToEngaged:
		return "ToEngaged"
	case ToActing:
		return "ToActing"
	case ToDefending:
		return "ToDefending"
	case ToRestricted:
		return "ToRestricted"
	case ToIncapacitated:
		return "ToIncapacitated"
	default:
		return "Unknown"
	}
}

// targetState maps the change kind onto the state enum.
func (k StateChangeKind) targetState() State {
	switch k {
	case ToIdle:
		return StateIdle
	case ToEngaged:
		return StateEngaged
	case ToActing:
		return StateActing
	case ToDefending:
		return StateDefending
	case ToRestricted:
		return StateRestricted
	default:
		return StateIncapacitated
	}
}

// StateChange is an explicit combat state mutation request.
type StateChange struct {
	Entity            ids.EntityHandle
	Kind              StateChangeKind
	CombatContextID   string
	CommittedIntentID string
}

// OutcomeBatch is the resolved outcome set for exactly one authoritative
// tick, applied in the strict order Results → Damage → Mitigation →
// StateChanges.
type OutcomeBatch struct {
	Tick         core.Tick
	Results      []IntentResult
	Damage       []DamageOutcome
	Mitigation   []MitigationOutcome
	StateChanges []StateChange
}
