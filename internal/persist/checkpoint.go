package persist

import (
	"encoding/binary"

	"github.com/caelmor/world/internal/core"
	"github.com/caelmor/world/internal/ids"
)

// worldPlayer is the reserved owner for world-level checkpoint requests not
// attributable to a single player.
const worldPlayer ids.PlayerId = "world"

// CheckpointSink bridges outcome application to the write queue: each
// checkpoint request becomes one queued world write. Request-only; the drain
// side performs the actual save.
type CheckpointSink struct {
	queue *Queue
}

// NewCheckpointSink wires the sink.
func NewCheckpointSink(queue *Queue) *CheckpointSink {
	return &CheckpointSink{queue: queue}
}

// RequestCheckpoint implements core.CheckpointRequester.
func (s *CheckpointSink) RequestCheckpoint(tickIndex core.Tick) {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint64(payload, uint64(tickIndex))
	s.queue.Enqueue(worldPlayer, ids.NewSaveId(), tickIndex, payload)
}
