package combat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caelmor/world/internal/ids"
)

func TestResolveMapsEveryIntentInOrder(t *testing.T) {
	accepted := []FrozenIntentRecord{
		intent("i1", 1, IntentAttack),
		intent("i2", 2, IntentDefend),
		intent("i3", 3, IntentAbility),
		intent("i4", 4, IntentMovement),
		intent("i5", 5, IntentInteract),
		intent("i6", 6, IntentCancel),
	}

	out := Resolve(accepted, 42)

	require.Len(t, out, len(accepted))
	wantKinds := []ProposalKind{
		AttackProposed, DefenseProposed, AbilityProposed,
		MovementProposed, InteractionProposed, CancellationEvaluated,
	}
	for i, proposal := range out {
		assert.Equal(t, accepted[i].IntentID, proposal.IntentID)
		assert.Equal(t, accepted[i].Actor, proposal.Actor)
		assert.Equal(t, wantKinds[i], proposal.Kind)
		assert.Equal(t, int64(42), int64(proposal.Tick))
	}
}

func TestResolveEmptyInput(t *testing.T) {
	assert.Empty(t, Resolve(nil, 1))
}

func TestResolveIsDeterministic(t *testing.T) {
	accepted := []FrozenIntentRecord{
		intent("a", ids.EntityHandle(9), IntentAttack),
		intent("b", ids.EntityHandle(2), IntentCancel),
	}
	assert.Equal(t, Resolve(accepted, 7), Resolve(accepted, 7))
}
