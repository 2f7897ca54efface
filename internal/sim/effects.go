package sim

import (
	"github.com/caelmor/world/internal/fault"
	"github.com/caelmor/world/internal/ids"
)

// DefaultEffectCapacity is the hard ceiling on buffered effects per tick.
const DefaultEffectCapacity = 512

// CommitSink receives a buffered combat resolution at post-tick finalization.
type CommitSink interface {
	Commit(entity ids.EntityHandle, resolution interface{}) error
}

// FlagSignal is a marker effect: committing it records that the tick reached
// finalization with the signal buffered.
type FlagSignal struct {
	marked bool
}

// Marked reports whether the signal committed.
func (f *FlagSignal) Marked() bool { return f.marked }

type effectKind int

const (
	effectCombatCommit effectKind = iota
	effectFlag
	effectAppend
)

type effect struct {
	kind       effectKind
	entity     ids.EntityHandle
	sink       CommitSink
	resolution interface{}
	flag       *FlagSignal
	target     *[]string
	entry      string
}

// EffectBuffer stages state mutations requested during the simulation phase.
// Nothing mutates authoritative state mid-tick; participants buffer effects
// and the engine commits them in insertion order at post-tick finalization.
//
// The buffer is tick-thread-only; no locking.
type EffectBuffer struct {
	capacity int
	entries  []effect
	open     bool
}

// NewEffectBuffer creates a buffer with the given hard capacity.
func NewEffectBuffer(capacity int) *EffectBuffer {
	if capacity <= 0 {
		capacity = DefaultEffectCapacity
	}
	return &EffectBuffer{capacity: capacity, entries: make([]effect, 0, capacity)}
}

// beginTick opens the buffering window.
func (b *EffectBuffer) beginTick() {
	b.open = true
}

func (b *EffectBuffer) push(e effect) error {
	if !b.open {
		return fault.Invariant(fault.EffectBufferMisuse, "effect buffered outside an open tick window")
	}
	if len(b.entries) >= b.capacity {
		return fault.Invariant(fault.EffectBufferMisuse, "effect buffer capacity %d exceeded", b.capacity)
	}
	b.entries = append(b.entries, e)
	return nil
}

// BufferCombatCommit stages a combat resolution commit against the sink.
func (b *EffectBuffer) BufferCombatCommit(entity ids.EntityHandle, sink CommitSink, resolution interface{}) error {
	return b.push(effect{kind: effectCombatCommit, entity: entity, sink: sink, resolution: resolution})
}

// BufferFlag stages a marker signal.
func (b *EffectBuffer) BufferFlag(flag *FlagSignal) error {
	return b.push(effect{kind: effectFlag, flag: flag})
}

// BufferAppend stages an append of entry onto target.
func (b *EffectBuffer) BufferAppend(target *[]string, entry string) error {
	return b.push(effect{kind: effectAppend, target: target, entry: entry})
}

// Len returns the number of buffered effects.
func (b *EffectBuffer) Len() int { return len(b.entries) }

// clear drops buffered effects without applying them and closes the window.
// Used when a fatal fault aborts the tick.
func (b *EffectBuffer) clear() {
	b.entries = b.entries[:0]
	b.open = false
}

// commit drains the buffer in insertion order, then closes and clears the
// window. The clear happens even when a commit fails partway.
func (b *EffectBuffer) commit() error {
	defer func() {
		b.entries = b.entries[:0]
		b.open = false
	}()

	for i := range b.entries {
		e := &b.entries[i]
		switch e.kind {
		case effectCombatCommit:
			if err := e.sink.Commit(e.entity, e.resolution); err != nil {
				return err
			}
		case effectFlag:
			e.flag.marked = true
		case effectAppend:
			*e.target = append(*e.target, e.entry)
		}
	}
	return nil
}
