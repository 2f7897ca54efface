package replication

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caelmor/world/internal/diag"
	"github.com/caelmor/world/internal/ids"
	"github.com/caelmor/world/internal/pool"
)

func serialized(t *testing.T, buffers *pool.BufferPool, session ids.SessionId, tick int64, size int) *SerializedSnapshot {
	t.Helper()
	return &SerializedSnapshot{
		Session: session,
		Tick:    coreTick(tick),
		Lease:   buffers.Rent(size),
	}
}

func TestOutboundQueueFIFO(t *testing.T) {
	buffers := pool.NewBufferPool(64)
	q := NewOutboundQueue(4, 1<<20, nil, nil)

	q.Enqueue("s0", serialized(t, buffers, "s0", 1, 8))
	q.Enqueue("s0", serialized(t, buffers, "s0", 2, 8))

	first := q.Dequeue("s0")
	require.NotNil(t, first)
	assert.Equal(t, int64(1), int64(first.Tick))
	first.Release()

	second := q.Dequeue("s0")
	require.NotNil(t, second)
	assert.Equal(t, int64(2), int64(second.Tick))
	second.Release()

	assert.Nil(t, q.Dequeue("s0"))
}

func TestOutboundQueueCountCapDropsOldest(t *testing.T) {
	buffers := pool.NewBufferPool(64)
	counters := &diag.PipelineCounters{}
	q := NewOutboundQueue(2, 1<<20, counters, nil)

	a := serialized(t, buffers, "s0", 1, 8)
	q.Enqueue("s0", a)
	q.Enqueue("s0", serialized(t, buffers, "s0", 2, 8))
	q.Enqueue("s0", serialized(t, buffers, "s0", 3, 8))

	assert.Equal(t, 2, q.Len("s0"))
	// The oldest snapshot was dropped and its lease released.
	assert.True(t, a.Lease.Disposed())
	assert.Equal(t, int64(1), counters.SnapshotsDropped.Load())
	assert.Equal(t, int64(1), q.Metrics("s0").Dropped)

	head := q.Dequeue("s0")
	require.NotNil(t, head)
	assert.Equal(t, int64(2), int64(head.Tick))
	head.Release()
}

func TestOutboundQueueByteCapDropsOldest(t *testing.T) {
	buffers := pool.NewBufferPool(64)
	q := NewOutboundQueue(100, 20, nil, nil)

	a := serialized(t, buffers, "s0", 1, 16)
	q.Enqueue("s0", a)
	q.Enqueue("s0", serialized(t, buffers, "s0", 2, 16))

	// 32 bytes exceeds the 20-byte cap: the oldest goes.
	assert.Equal(t, 1, q.Len("s0"))
	assert.True(t, a.Lease.Disposed())
	assert.Equal(t, 16, q.QueuedBytes("s0"))
}

func TestOutboundQueueSessionsAreIsolated(t *testing.T) {
	buffers := pool.NewBufferPool(64)
	q := NewOutboundQueue(1, 1<<20, nil, nil)

	q.Enqueue("s0", serialized(t, buffers, "s0", 1, 8))
	q.Enqueue("s1", serialized(t, buffers, "s1", 1, 8))

	assert.Equal(t, 1, q.Len("s0"))
	assert.Equal(t, 1, q.Len("s1"))
}

func TestOutboundQueueTeardownReleasesEverything(t *testing.T) {
	buffers := pool.NewBufferPool(64)
	counters := &diag.PipelineCounters{}
	q := NewOutboundQueue(4, 1<<20, counters, nil)

	a := serialized(t, buffers, "s0", 1, 8)
	b := serialized(t, buffers, "s0", 2, 8)
	q.Enqueue("s0", a)
	q.Enqueue("s0", b)

	q.RemoveSession("s0")
	assert.Equal(t, 0, q.Len("s0"))
	assert.True(t, a.Lease.Disposed())
	assert.True(t, b.Lease.Disposed())
	// Retired metrics survive teardown.
	assert.Equal(t, int64(2), q.Metrics("s0").Dropped)
	assert.Equal(t, int64(2), counters.SnapshotsDropped.Load())
}
