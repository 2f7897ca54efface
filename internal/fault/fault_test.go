package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindFatality(t *testing.T) {
	assert.True(t, KindInvariantViolation.Fatal())
	assert.True(t, KindContractViolation.Fatal())
	assert.False(t, KindBackpressureRejection.Fatal())
	assert.False(t, KindTransitionRejection.Fatal())
	assert.False(t, KindNotFound.Fatal())
}

func TestKindAndCodeExtraction(t *testing.T) {
	err := Backpressure(BackpressureLimitHit, "queue full for %s", "s0")

	assert.Equal(t, KindBackpressureRejection, KindOf(err))
	assert.Equal(t, BackpressureLimitHit, CodeOf(err))
	assert.False(t, IsFatal(err))
	assert.Contains(t, err.Error(), "BACKPRESSURE_REJECTION/BackpressureLimitHit")
	assert.Contains(t, err.Error(), "queue full for s0")
}

func TestWrappedFaultStillMatches(t *testing.T) {
	inner := Invariant(CommittedIntentMismatch, "entity 3")
	wrapped := fmt.Errorf("tick 7: %w", inner)

	assert.True(t, IsFatal(wrapped))
	assert.Equal(t, CommittedIntentMismatch, CodeOf(wrapped))

	var f *Fault
	require.True(t, errors.As(wrapped, &f))
	assert.Equal(t, KindInvariantViolation, f.Kind)
}

func TestErrorsIsMatchesOnKindAndCode(t *testing.T) {
	a := Contract(TickMismatch, "batch 5 at tick 6")
	b := Contract(TickMismatch, "different message")
	c := Contract(DuplicatePayloadInBatch, "")

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}

func TestForeignErrorsAreUnknown(t *testing.T) {
	err := errors.New("plain")
	assert.Equal(t, KindUnknown, KindOf(err))
	assert.Equal(t, Code(""), CodeOf(err))
	assert.False(t, IsFatal(err))
}
