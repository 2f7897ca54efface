// Package ingress is the authoritative command ingress: per-session bounded
// mailboxes fed by transport workers and drained deterministically by the
// tick thread. Overflow rejects the incoming command; the tick thread is
// never blocked by inbound pressure.
package ingress

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/caelmor/world/internal/core"
	"github.com/caelmor/world/internal/diag"
	"github.com/caelmor/world/internal/fault"
	"github.com/caelmor/world/internal/ids"
	"github.com/caelmor/world/internal/pool"
	"github.com/caelmor/world/internal/tick"
)

// CommandType tags the kind of inbound command.
type CommandType string

const (
	CommandAttack   CommandType = "attack"
	CommandDefend   CommandType = "defend"
	CommandAbility  CommandType = "ability"
	CommandMovement CommandType = "movement"
	CommandInteract CommandType = "interact"
	CommandCancel   CommandType = "cancel"
)

// CommandEnvelope is one inbound command. The payload lease is owned by the
// envelope until the consumer releases it (or the queue drops it).
type CommandEnvelope struct {
	Session    ids.SessionId
	SubmitTick core.Tick
	Sequence   uint64
	Type       CommandType
	Payload    *pool.Lease
}

// SessionValidator answers whether a session is currently attached.
type SessionValidator interface {
	Known(session ids.SessionId) bool
}

// SessionMetrics reports per-session drop accounting.
type SessionMetrics struct {
	DroppedCommands int64
	DroppedBytes    int64
}

type mailbox struct {
	queue        []*CommandEnvelope
	queuedBytes  int
	droppedCount int64
	droppedBytes int64
}

// Ingress owns the per-session mailboxes.
type Ingress struct {
	mu       sync.Mutex
	sessions map[ids.SessionId]*mailbox
	// retired keeps drop metrics for sessions already torn down.
	retired map[ids.SessionId]SessionMetrics

	seq atomic.Uint64

	maxCommands int
	maxBytes    int

	validator SessionValidator
	counters  *diag.PipelineCounters
	logger    *zap.Logger
}

// New creates the ingress with the given per-session budgets.
func New(validator SessionValidator, maxCommands, maxBytes int, counters *diag.PipelineCounters, logger *zap.Logger) *Ingress {
	if counters == nil {
		counters = &diag.PipelineCounters{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingress{
		sessions:    make(map[ids.SessionId]*mailbox),
		retired:     make(map[ids.SessionId]SessionMetrics),
		maxCommands: maxCommands,
		maxBytes:    maxBytes,
		validator:   validator,
		counters:    counters,
		logger:      logger.Named("ingress"),
	}
}

// TryEnqueue accepts an inbound command or rejects it under backpressure. On
// rejection the payload lease is disposed immediately; the caller keeps
// nothing. Returns the assigned deterministic sequence on acceptance.
//
// Safe from any thread; the work inside the lock is bounded.
func (in *Ingress) TryEnqueue(session ids.SessionId, payload *pool.Lease, commandType CommandType, submitTick core.Tick) (uint64, error) {
	if in.validator != nil && !in.validator.Known(session) {
		payload.Release()
		in.counters.CommandsRejected.Add(1)
		return 0, fault.Backpressure(fault.InvalidSession, "session %s is not attached", session)
	}

	size := payload.Len()

	in.mu.Lock()
	mb := in.sessions[session]
	if mb == nil {
		mb = &mailbox{}
		in.sessions[session] = mb
	}
	if len(mb.queue) >= in.maxCommands || mb.queuedBytes+size > in.maxBytes {
		mb.droppedCount++
		mb.droppedBytes += int64(size)
		in.mu.Unlock()
		payload.Release()
		in.counters.CommandsRejected.Add(1)
		return 0, fault.Backpressure(fault.BackpressureLimitHit,
			"session %s inbound budget exhausted", session)
	}
	sequence := in.seq.Add(1)
	mb.queue = append(mb.queue, &CommandEnvelope{
		Session:    session,
		SubmitTick: submitTick,
		Sequence:   sequence,
		Type:       commandType,
		Payload:    payload,
	})
	mb.queuedBytes += size
	in.mu.Unlock()

	in.counters.CommandsAccepted.Add(1)
	return sequence, nil
}

// DrainDeterministic moves up to maxCommands envelopes into dest in global
// deterministic order: ascending sequence, ties broken by ascending session
// id. Tick-thread-only. Ownership of the payload leases moves to the caller.
func (in *Ingress) DrainDeterministic(dest *[]*CommandEnvelope, maxCommands int) (int, error) {
	if err := tick.AssertTickThread("ingress.DrainDeterministic"); err != nil {
		return 0, err
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	drained := 0
	for drained < maxCommands {
		var bestSession ids.SessionId
		var best *mailbox
		for session, mb := range in.sessions {
			if len(mb.queue) == 0 {
				continue
			}
			head := mb.queue[0]
			if best == nil ||
				head.Sequence < best.queue[0].Sequence ||
				(head.Sequence == best.queue[0].Sequence && session < bestSession) {
				best = mb
				bestSession = session
			}
		}
		if best == nil {
			break
		}
		env := best.queue[0]
		best.queue = best.queue[1:]
		best.queuedBytes -= env.Payload.Len()
		*dest = append(*dest, env)
		drained++
	}
	in.counters.CommandsDrained.Add(int64(drained))
	return drained, nil
}

// RemoveSession tears down the session's mailbox, disposing every queued
// payload lease and folding the counts into the retired metrics.
func (in *Ingress) RemoveSession(session ids.SessionId) {
	in.mu.Lock()
	mb := in.sessions[session]
	delete(in.sessions, session)
	var dropped []*CommandEnvelope
	metrics := SessionMetrics{}
	if mb != nil {
		dropped = mb.queue
		metrics.DroppedCommands = mb.droppedCount + int64(len(mb.queue))
		metrics.DroppedBytes = mb.droppedBytes + int64(mb.queuedBytes)
	}
	in.retired[session] = metrics
	in.mu.Unlock()

	for _, env := range dropped {
		env.Payload.Release()
	}
	if len(dropped) > 0 {
		in.logger.Debug("session mailbox dropped on teardown",
			zap.String("session", string(session)),
			zap.Int("commands", len(dropped)))
	}
}

// Metrics returns drop accounting for the session, live or retired.
func (in *Ingress) Metrics(session ids.SessionId) SessionMetrics {
	in.mu.Lock()
	defer in.mu.Unlock()
	if mb, ok := in.sessions[session]; ok {
		return SessionMetrics{DroppedCommands: mb.droppedCount, DroppedBytes: mb.droppedBytes}
	}
	return in.retired[session]
}

// QueuedCommands returns the live queue depth for the session.
func (in *Ingress) QueuedCommands(session ids.SessionId) int {
	in.mu.Lock()
	defer in.mu.Unlock()
	if mb, ok := in.sessions[session]; ok {
		return len(mb.queue)
	}
	return 0
}
