// Package core holds the shared domain vocabulary of the tick core: the tick
// index, replication fingerprints, and the collaborator contracts the core
// consumes. Concrete collaborators (zone index, save pipeline, transport) live
// outside the core and are wired at boot.
package core

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"

	"github.com/caelmor/world/internal/ids"
)

// Tick is an authoritative simulation tick index. Tick 0 is "before start".
type Tick int64

// Fingerprint is the opaque 64-bit hash of an entity's committed
// replication-relevant state, rendered in its canonical fixed-width form. The
// core never inspects it; equality is the only operation.
type Fingerprint string

// FingerprintBytes computes the canonical fingerprint of a committed state
// blob: FNV-64a over the bytes, fixed 16-digit hex.
func FingerprintBytes(data []byte) Fingerprint {
	h := fnv.New64a()
	h.Write(data)
	return Fingerprint(fmt.Sprintf("%016x", h.Sum64()))
}

// Fnv64 mixes the given byte groups through FNV-64a. Event and payload ids
// derive from this and nothing else, so replays reproduce them exactly.
func Fnv64(parts ...uint64) uint64 {
	h := fnv.New64a()
	var scratch [8]byte
	for _, p := range parts {
		binary.LittleEndian.PutUint64(scratch[:], p)
		h.Write(scratch[:])
	}
	return h.Sum64()
}

// Fnv64String hashes a string through FNV-64a.
func Fnv64String(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

// EntityIndex supplies the deterministically ordered entity list the
// simulation core iterates each tick.
type EntityIndex interface {
	SnapshotEntitiesDeterministic() []ids.EntityHandle
}

// ReplicationStateReader reads an entity's committed state fingerprint. Called
// only during post-tick capture, after the effect buffer has committed.
type ReplicationStateReader interface {
	ReadCommittedState(entity ids.EntityHandle) Fingerprint
}

// ReplicationEligibilityGate decides per (session, entity) whether the entity
// appears in that session's snapshots.
type ReplicationEligibilityGate interface {
	IsEntityReplicationEligible(session ids.SessionId, entity ids.EntityHandle) bool
}

// ActiveSessionIndex enumerates sessions in deterministic order.
type ActiveSessionIndex interface {
	SnapshotSessionsDeterministic() []ids.SessionId
}

// SnapshotEligibilityView decides whether a session receives snapshots at all
// this tick.
type SnapshotEligibilityView interface {
	IsSnapshotEligible(session ids.SessionId) bool
}

// CheckpointRequester receives checkpoint requests from outcome application.
// Request-only: implementations must not perform I/O on the calling thread.
type CheckpointRequester interface {
	RequestCheckpoint(tick Tick)
}
