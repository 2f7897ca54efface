package combat

import "github.com/caelmor/world/internal/core"

// proposalKindFor maps an intent type onto its proposal verdict class.
func proposalKindFor(t IntentType) ProposalKind {
	switch t {
	case IntentAttack:
		return AttackProposed
	case IntentDefend:
		return DefenseProposed
	case IntentAbility:
		return AbilityProposed
	case IntentMovement:
		return MovementProposed
	case IntentInteract:
		return InteractionProposed
	default:
		return CancellationEvaluated
	}
}

// Resolve maps the accepted intents of one tick onto proposal outcomes. Pure
// and side-effect-free: no state reads, no short-circuit; every input yields
// exactly one output in the same position.
func Resolve(accepted []FrozenIntentRecord, authoritativeTick core.Tick) []Proposal {
	out := make([]Proposal, len(accepted))
	for i, intent := range accepted {
		out[i] = Proposal{
			IntentID: intent.IntentID,
			Type:     intent.Type,
			Actor:    intent.Actor,
			Tick:     authoritativeTick,
			Kind:     proposalKindFor(intent.Type),
		}
	}
	return out
}
