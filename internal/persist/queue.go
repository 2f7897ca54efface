// Package persist implements the checkpoint write-request queue. The core
// only requests persistence; actual save I/O belongs to the drain side,
// strictly off the tick thread.
package persist

import (
	"sync"

	"go.uber.org/zap"

	"github.com/caelmor/world/internal/core"
	"github.com/caelmor/world/internal/diag"
	"github.com/caelmor/world/internal/ids"
)

// WriteRequest is one pending checkpoint write.
type WriteRequest struct {
	Seq     uint64
	Player  ids.PlayerId
	Save    ids.SaveId
	Tick    core.Tick
	Payload []byte
}

func (r *WriteRequest) size() int { return len(r.Payload) }

// Caps bounds the queue per player and globally, by count and by bytes.
type Caps struct {
	MaxPerPlayer      int
	MaxGlobal         int
	MaxBytesPerPlayer int
	MaxBytesGlobal    int
}

// Queue is the bounded write-request queue. Enqueue keeps both the per-player
// FIFO and the global FIFO consistent; overflow drops the oldest offender
// from both.
type Queue struct {
	mu     sync.Mutex
	global []*WriteRequest
	byPlayer map[ids.PlayerId][]*WriteRequest
	playerBytes map[ids.PlayerId]int
	globalBytes int
	seq     uint64

	caps     Caps
	counters *diag.PipelineCounters
	logger   *zap.Logger
}

// NewQueue creates the queue with the given caps.
func NewQueue(caps Caps, counters *diag.PipelineCounters, logger *zap.Logger) *Queue {
	if counters == nil {
		counters = &diag.PipelineCounters{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		byPlayer:    make(map[ids.PlayerId][]*WriteRequest),
		playerBytes: make(map[ids.PlayerId]int),
		caps:        caps,
		counters:    counters,
		logger:      logger.Named("persist"),
	}
}

// Enqueue records a write request, evicting oldest entries when any cap is
// exceeded.
func (q *Queue) Enqueue(player ids.PlayerId, save ids.SaveId, tickIndex core.Tick, payload []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	req := &WriteRequest{Seq: q.seq, Player: player, Save: save, Tick: tickIndex, Payload: payload}
	q.global = append(q.global, req)
	q.byPlayer[player] = append(q.byPlayer[player], req)
	q.playerBytes[player] += req.size()
	q.globalBytes += req.size()
	q.counters.PersistRequestEnqueued.Add(1)

	for q.overPlayerCap(player) {
		q.dropLocked(q.byPlayer[player][0])
	}
	for q.overGlobalCap() && len(q.global) > 0 {
		q.dropLocked(q.global[0])
	}
	q.counters.PersistBacklog.Store(int64(len(q.global)))
}

func (q *Queue) overPlayerCap(player ids.PlayerId) bool {
	if q.caps.MaxPerPlayer > 0 && len(q.byPlayer[player]) > q.caps.MaxPerPlayer {
		return true
	}
	return q.caps.MaxBytesPerPlayer > 0 && q.playerBytes[player] > q.caps.MaxBytesPerPlayer
}

func (q *Queue) overGlobalCap() bool {
	if q.caps.MaxGlobal > 0 && len(q.global) > q.caps.MaxGlobal {
		return true
	}
	return q.caps.MaxBytesGlobal > 0 && q.globalBytes > q.caps.MaxBytesGlobal
}

// dropLocked removes req from both FIFOs.
func (q *Queue) dropLocked(req *WriteRequest) {
	for i, r := range q.global {
		if r == req {
			q.global = append(q.global[:i], q.global[i+1:]...)
			break
		}
	}
	fifo := q.byPlayer[req.Player]
	for i, r := range fifo {
		if r == req {
			q.byPlayer[req.Player] = append(fifo[:i], fifo[i+1:]...)
			break
		}
	}
	q.playerBytes[req.Player] -= req.size()
	q.globalBytes -= req.size()
	q.counters.PersistDrops.Add(1)
}

// Dequeue pops the globally-oldest request, keeping the per-player FIFO
// consistent. Nil when empty.
func (q *Queue) Dequeue() *WriteRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.global) == 0 {
		return nil
	}
	req := q.global[0]
	q.global = q.global[1:]
	fifo := q.byPlayer[req.Player]
	for i, r := range fifo {
		if r == req {
			q.byPlayer[req.Player] = append(fifo[:i], fifo[i+1:]...)
			break
		}
	}
	q.playerBytes[req.Player] -= req.size()
	q.globalBytes -= req.size()
	q.counters.PersistRequestDrained.Add(1)
	q.counters.PersistBacklog.Store(int64(len(q.global)))
	return req
}

// Len returns the global backlog.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.global)
}

// PlayerLen returns the player's backlog.
func (q *Queue) PlayerLen(player ids.PlayerId) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byPlayer[player])
}

// Reset drops all queued state.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.global = nil
	q.byPlayer = make(map[ids.PlayerId][]*WriteRequest)
	q.playerBytes = make(map[ids.PlayerId]int)
	q.globalBytes = 0
	q.counters.PersistBacklog.Store(0)
}
