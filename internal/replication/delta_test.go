package replication

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caelmor/world/internal/ids"
	"github.com/caelmor/world/internal/pool"
)

func snap(session ids.SessionId, tick int64, rows ...EntitySnapshot) *ClientSnapshot {
	return &ClientSnapshot{Session: session, Tick: coreTick(tick), Entities: rows}
}

func row(entity uint32, fp string) EntitySnapshot {
	return EntitySnapshot{Entity: ids.EntityHandle(entity), Fingerprint: fingerprint(fp)}
}

func TestDeltaWireLayout(t *testing.T) {
	serializer := NewDeltaSerializer(pool.NewBufferPool(256))
	session := ids.SessionId("s0")

	// Seed the baseline with {E=2: fpA}.
	first := serializer.Serialize(session, snap(session, 6, row(2, "fpA")))
	first.Release()

	// Snapshot at tick 7 adds E=5: only the new entity serializes.
	out := serializer.Serialize(session, snap(session, 7, row(2, "fpA"), row(5, "fpC")))
	defer out.Release()

	want := []byte{
		0x07, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // tick 7
		0x01, 0x00, 0x00, 0x00, // 1 changed
		0x00, 0x00, 0x00, 0x00, // 0 removed
		0x05, 0x00, 0x00, 0x00, // entity 5
		0x03, 0x00, 0x00, 0x00, // 3 fingerprint bytes
		'f', 'p', 'C',
	}
	assert.Equal(t, want, out.Bytes())
	assert.Equal(t, 1, out.Changes)
	assert.Equal(t, 0, out.Removals)

	// Next tick drops E=2: empty changed set, one removal.
	next := serializer.Serialize(session, snap(session, 8, row(5, "fpC")))
	defer next.Release()
	assert.Equal(t, 0, next.Changes)
	assert.Equal(t, 1, next.Removals)

	decoded, err := DecodeDelta(next.Bytes())
	require.NoError(t, err)
	assert.Empty(t, decoded.Changed)
	assert.Equal(t, []ids.EntityHandle{2}, decoded.Removed)
}

func TestDeltaRoundTrip(t *testing.T) {
	serializer := NewDeltaSerializer(pool.NewBufferPool(256))
	session := ids.SessionId("s1")

	out := serializer.Serialize(session, snap(session, 42,
		row(11, "state_a"), row(5, "state_b"), row(30, "state_c")))
	defer out.Release()

	decoded, err := DecodeDelta(out.Bytes())
	require.NoError(t, err)
	assert.Equal(t, int64(42), int64(decoded.Tick))

	// Changed entries come back sorted ascending by entity.
	require.Len(t, decoded.Changed, 3)
	assert.Equal(t, row(5, "state_b"), decoded.Changed[0])
	assert.Equal(t, row(11, "state_a"), decoded.Changed[1])
	assert.Equal(t, row(30, "state_c"), decoded.Changed[2])
	assert.Empty(t, decoded.Removed)
}

func TestDeltaBaselineResetIsDeterministic(t *testing.T) {
	serializer := NewDeltaSerializer(pool.NewBufferPool(256))
	session := ids.SessionId("s2")

	// Same snapshot twice: the second emission has no changes.
	a := serializer.Serialize(session, snap(session, 1, row(1, "x"), row(2, "y")))
	a.Release()
	b := serializer.Serialize(session, snap(session, 2, row(1, "x"), row(2, "y")))
	defer b.Release()
	assert.Equal(t, 0, b.Changes)
	assert.Equal(t, 0, b.Removals)

	// A fingerprint change shows up exactly once.
	c := serializer.Serialize(session, snap(session, 3, row(1, "x2"), row(2, "y")))
	defer c.Release()
	assert.Equal(t, 1, c.Changes)
}

func TestDeltaSessionsAreIndependent(t *testing.T) {
	serializer := NewDeltaSerializer(pool.NewBufferPool(256))

	a := serializer.Serialize("sa", snap("sa", 1, row(1, "x")))
	a.Release()

	// A fresh session has no baseline: everything is a change.
	b := serializer.Serialize("sb", snap("sb", 1, row(1, "x")))
	defer b.Release()
	assert.Equal(t, 1, b.Changes)
}

func TestDeltaRemoveSessionDropsBaseline(t *testing.T) {
	serializer := NewDeltaSerializer(pool.NewBufferPool(256))
	session := ids.SessionId("s3")

	a := serializer.Serialize(session, snap(session, 1, row(1, "x")))
	a.Release()
	serializer.RemoveSession(session)

	b := serializer.Serialize(session, snap(session, 2, row(1, "x")))
	defer b.Release()
	assert.Equal(t, 1, b.Changes)
}

func TestDecodeDeltaRejectsTruncation(t *testing.T) {
	_, err := DecodeDelta([]byte{1, 2, 3})
	require.Error(t, err)
}
