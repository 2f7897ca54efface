package replication

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/caelmor/world/internal/core"
	"github.com/caelmor/world/internal/ids"
	"github.com/caelmor/world/internal/pool"
)

// SerializedSnapshot is one tick's delta for one session, encoded in the
// fixed little-endian wire layout. It owns its pooled buffer until released;
// the transport consumer releases after send.
type SerializedSnapshot struct {
	Session  ids.SessionId
	Tick     core.Tick
	Changes  int
	Removals int
	Lease    *pool.Lease
}

// ByteLength returns the encoded size.
func (s *SerializedSnapshot) ByteLength() int { return s.Lease.Len() }

// Bytes returns the encoded delta. Valid until Release.
func (s *SerializedSnapshot) Bytes() []byte { return s.Lease.Bytes() }

// Release returns the buffer to the pool. Idempotent.
func (s *SerializedSnapshot) Release() { s.Lease.Release() }

// DeltaSerializer keeps a per-session baseline (entity → last-sent
// fingerprint) and emits sorted changed/removed deltas against it. No state
// beyond the baselines and transient sort buffers.
type DeltaSerializer struct {
	mu        sync.Mutex
	baselines map[ids.SessionId]map[ids.EntityHandle]core.Fingerprint
	buffers   *pool.BufferPool
}

// NewDeltaSerializer creates a serializer renting encode buffers from buffers.
func NewDeltaSerializer(buffers *pool.BufferPool) *DeltaSerializer {
	return &DeltaSerializer{
		baselines: make(map[ids.SessionId]map[ids.EntityHandle]core.Fingerprint),
		buffers:   buffers,
	}
}

// Serialize diffs the snapshot against the session baseline, emits the wire
// layout, and deterministically resets the baseline to the snapshot's
// fingerprints.
//
// Wire layout (little-endian, no framing):
//
//	i64 tick ‖ i32 n_changed ‖ i32 n_removed ‖
//	(i32 entity, i32 len, utf8 fingerprint) × n_changed ‖
//	i32 entity × n_removed
func (d *DeltaSerializer) Serialize(session ids.SessionId, snap *ClientSnapshot) *SerializedSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	baseline := d.baselines[session]

	present := make(map[ids.EntityHandle]bool, len(snap.Entities))
	var changed []EntitySnapshot
	for _, row := range snap.Entities {
		present[row.Entity] = true
		if baseline[row.Entity] != row.Fingerprint {
			changed = append(changed, row)
		}
	}
	var removed []ids.EntityHandle
	for entity := range baseline {
		if !present[entity] {
			removed = append(removed, entity)
		}
	}

	sort.Slice(changed, func(i, j int) bool { return changed[i].Entity < changed[j].Entity })
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })

	size := 8 + 4 + 4
	for _, row := range changed {
		size += 4 + 4 + len(row.Fingerprint)
	}
	size += 4 * len(removed)

	buf := make([]byte, size)
	off := 0
	binary.LittleEndian.PutUint64(buf[off:], uint64(snap.Tick))
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(changed)))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(removed)))
	off += 4
	for _, row := range changed {
		binary.LittleEndian.PutUint32(buf[off:], row.Entity.Value())
		off += 4
		binary.LittleEndian.PutUint32(buf[off:], uint32(len(row.Fingerprint)))
		off += 4
		off += copy(buf[off:], row.Fingerprint)
	}
	for _, entity := range removed {
		binary.LittleEndian.PutUint32(buf[off:], entity.Value())
		off += 4
	}

	// Deterministic baseline reset.
	next := make(map[ids.EntityHandle]core.Fingerprint, len(snap.Entities))
	for _, row := range snap.Entities {
		next[row.Entity] = row.Fingerprint
	}
	d.baselines[session] = next

	return &SerializedSnapshot{
		Session:  session,
		Tick:     snap.Tick,
		Changes:  len(changed),
		Removals: len(removed),
		Lease:    d.buffers.RentCopy(buf),
	}
}

// RemoveSession drops the session baseline.
func (d *DeltaSerializer) RemoveSession(session ids.SessionId) {
	d.mu.Lock()
	delete(d.baselines, session)
	d.mu.Unlock()
}

// DecodedDelta is the result of decoding one serialized snapshot.
type DecodedDelta struct {
	Tick    core.Tick
	Changed []EntitySnapshot
	Removed []ids.EntityHandle
}

// DecodeDelta reads the wire layout back. The delta round-trip tests and the
// world pipeline test decode with it.
func DecodeDelta(data []byte) (DecodedDelta, error) {
	var out DecodedDelta
	if len(data) < 16 {
		return out, fmt.Errorf("delta too short: %d bytes", len(data))
	}
	off := 0
	out.Tick = core.Tick(binary.LittleEndian.Uint64(data[off:]))
	off += 8
	nChanged := int(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	nRemoved := int(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	for i := 0; i < nChanged; i++ {
		if len(data) < off+8 {
			return out, fmt.Errorf("delta truncated in changed entry %d", i)
		}
		entity := ids.EntityHandle(binary.LittleEndian.Uint32(data[off:]))
		off += 4
		fpLen := int(binary.LittleEndian.Uint32(data[off:]))
		off += 4
		if len(data) < off+fpLen {
			return out, fmt.Errorf("delta truncated in fingerprint of entry %d", i)
		}
		out.Changed = append(out.Changed, EntitySnapshot{
			Entity:      entity,
			Fingerprint: core.Fingerprint(data[off : off+fpLen]),
		})
		off += fpLen
	}
	for i := 0; i < nRemoved; i++ {
		if len(data) < off+4 {
			return out, fmt.Errorf("delta truncated in removed entry %d", i)
		}
		out.Removed = append(out.Removed, ids.EntityHandle(binary.LittleEndian.Uint32(data[off:])))
		off += 4
	}
	if off != len(data) {
		return out, fmt.Errorf("delta has %d trailing bytes", len(data)-off)
	}
	return out, nil
}
