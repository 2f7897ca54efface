package replication

import (
	"sync"

	"go.uber.org/zap"

	"github.com/caelmor/world/internal/diag"
	"github.com/caelmor/world/internal/ids"
)

// OutboundMetrics reports per-session outbound drop accounting.
type OutboundMetrics struct {
	Dropped      int64
	DroppedBytes int64
}

type outbox struct {
	queue        []*SerializedSnapshot
	queuedBytes  int
	dropped      int64
	droppedBytes int64
}

// OutboundQueue is the per-session bounded FIFO of serialized snapshots.
// Overflow drops oldest until both the count cap and the byte cap hold;
// dropped snapshots are released back to the pool.
type OutboundQueue struct {
	mu       sync.Mutex
	sessions map[ids.SessionId]*outbox
	retired  map[ids.SessionId]OutboundMetrics

	maxSnapshots int
	maxBytes     int

	counters *diag.PipelineCounters
	logger   *zap.Logger
}

// NewOutboundQueue creates the queue with the given per-session caps.
func NewOutboundQueue(maxSnapshots, maxBytes int, counters *diag.PipelineCounters, logger *zap.Logger) *OutboundQueue {
	if counters == nil {
		counters = &diag.PipelineCounters{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutboundQueue{
		sessions:     make(map[ids.SessionId]*outbox),
		retired:      make(map[ids.SessionId]OutboundMetrics),
		maxSnapshots: maxSnapshots,
		maxBytes:     maxBytes,
		counters:     counters,
		logger:       logger.Named("outbound"),
	}
}

// Enqueue appends the snapshot, then drops oldest entries until both caps are
// satisfied again.
func (q *OutboundQueue) Enqueue(session ids.SessionId, snap *SerializedSnapshot) {
	var dropped []*SerializedSnapshot

	q.mu.Lock()
	box := q.sessions[session]
	if box == nil {
		box = &outbox{}
		q.sessions[session] = box
	}
	box.queue = append(box.queue, snap)
	box.queuedBytes += snap.ByteLength()
	for len(box.queue) > q.maxSnapshots || box.queuedBytes > q.maxBytes {
		oldest := box.queue[0]
		box.queue = box.queue[1:]
		box.queuedBytes -= oldest.ByteLength()
		box.dropped++
		box.droppedBytes += int64(oldest.ByteLength())
		dropped = append(dropped, oldest)
	}
	q.mu.Unlock()

	q.counters.SnapshotsEnqueued.Add(1)
	for _, s := range dropped {
		s.Release()
		q.counters.SnapshotsDropped.Add(1)
	}
}

// Dequeue pops the oldest snapshot for the session, or nil when empty. The
// caller (transport) owns the lease and must release it after send.
func (q *OutboundQueue) Dequeue(session ids.SessionId) *SerializedSnapshot {
	q.mu.Lock()
	box := q.sessions[session]
	var snap *SerializedSnapshot
	if box != nil && len(box.queue) > 0 {
		snap = box.queue[0]
		box.queue = box.queue[1:]
		box.queuedBytes -= snap.ByteLength()
	}
	q.mu.Unlock()

	if snap != nil {
		q.counters.SnapshotsDequeuedForSend.Add(1)
	}
	return snap
}

// Len returns the session's queue depth.
func (q *OutboundQueue) Len(session ids.SessionId) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if box := q.sessions[session]; box != nil {
		return len(box.queue)
	}
	return 0
}

// QueuedBytes returns the session's queued byte total.
func (q *OutboundQueue) QueuedBytes(session ids.SessionId) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if box := q.sessions[session]; box != nil {
		return box.queuedBytes
	}
	return 0
}

// Metrics returns drop accounting for the session, live or retired.
func (q *OutboundQueue) Metrics(session ids.SessionId) OutboundMetrics {
	q.mu.Lock()
	defer q.mu.Unlock()
	if box, ok := q.sessions[session]; ok {
		return OutboundMetrics{Dropped: box.dropped, DroppedBytes: box.droppedBytes}
	}
	return q.retired[session]
}

// RemoveSession drops and releases everything queued for the session.
func (q *OutboundQueue) RemoveSession(session ids.SessionId) {
	q.mu.Lock()
	box := q.sessions[session]
	delete(q.sessions, session)
	var dropped []*SerializedSnapshot
	metrics := OutboundMetrics{}
	if box != nil {
		dropped = box.queue
		metrics.Dropped = box.dropped + int64(len(box.queue))
		metrics.DroppedBytes = box.droppedBytes + int64(box.queuedBytes)
	}
	q.retired[session] = metrics
	q.mu.Unlock()

	for _, s := range dropped {
		s.Release()
		q.counters.SnapshotsDropped.Add(1)
	}
}
