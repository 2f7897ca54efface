// Package world is the in-process implementation of the collaborator
// contracts the tick core consumes: the entity index, the committed-state
// reader, the replication eligibility gate, and the session→actor binding.
// Zone geometry, NPC AI, and quest rules stay outside; this is the minimal
// authoritative entity table a single-zone server needs.
package world

import (
	"encoding/binary"
	"sort"
	"sync"

	"github.com/caelmor/world/internal/combat"
	"github.com/caelmor/world/internal/core"
	"github.com/caelmor/world/internal/ids"
)

type entityRecord struct {
	handle ids.EntityHandle
	zone   ids.ZoneId
	health int64
	alive  bool
	hidden bool
}

// World is the authoritative entity table. Spawning, liveness and visibility
// changes, and binding run at boot or from mutation-permitted phases; the tick
// thread reads hot paths.
type World struct {
	mu       sync.RWMutex
	entities map[ids.EntityHandle]*entityRecord
	next     ids.EntityHandle
	bindings map[ids.SessionId]ids.EntityHandle
}

// New creates an empty world.
func New() *World {
	return &World{
		entities: make(map[ids.EntityHandle]*entityRecord),
		bindings: make(map[ids.SessionId]ids.EntityHandle),
	}
}

// Spawn creates a live entity in the zone with the given starting health.
func (w *World) Spawn(zone ids.ZoneId, health int64) ids.EntityHandle {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.next++
	handle := w.next
	w.entities[handle] = &entityRecord{handle: handle, zone: zone, health: health, alive: true}
	return handle
}

// SetAlive flips the entity's liveness; dead entities fail the eligibility
// gate and drop out of simulation.
func (w *World) SetAlive(entity ids.EntityHandle, alive bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if rec, ok := w.entities[entity]; ok {
		rec.alive = alive
	}
}

// SetHidden hides the entity from replication without affecting simulation.
func (w *World) SetHidden(entity ids.EntityHandle, hidden bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if rec, ok := w.entities[entity]; ok {
		rec.hidden = hidden
	}
}

// BindSession binds a session to the entity it controls.
func (w *World) BindSession(session ids.SessionId, entity ids.EntityHandle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.bindings[session] = entity
}

// UnbindSession removes the session binding; registered as a detach hook.
func (w *World) UnbindSession(session ids.SessionId) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.bindings, session)
}

// ActorForSession implements combat.ActorResolver.
func (w *World) ActorForSession(session ids.SessionId) ids.EntityHandle {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.bindings[session]
}

// SnapshotEntitiesDeterministic implements core.EntityIndex: all entities,
// ascending by handle.
func (w *World) SnapshotEntitiesDeterministic() []ids.EntityHandle {
	w.mu.RLock()
	out := make([]ids.EntityHandle, 0, len(w.entities))
	for handle := range w.entities {
		out = append(out, handle)
	}
	w.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ReadCommittedState implements core.ReplicationStateReader: the fingerprint
// covers every replication-relevant field, so any committed change moves it.
func (w *World) ReadCommittedState(entity ids.EntityHandle) core.Fingerprint {
	w.mu.RLock()
	rec, ok := w.entities[entity]
	if !ok {
		w.mu.RUnlock()
		return core.FingerprintBytes(nil)
	}
	var buf [21]byte
	binary.LittleEndian.PutUint32(buf[0:], rec.handle.Value())
	binary.LittleEndian.PutUint32(buf[4:], uint32(rec.zone))
	binary.LittleEndian.PutUint64(buf[8:], uint64(rec.health))
	if rec.alive {
		buf[16] = 1
	}
	w.mu.RUnlock()
	return core.FingerprintBytes(buf[:])
}

// IsEntityReplicationEligible implements core.ReplicationEligibilityGate.
func (w *World) IsEntityReplicationEligible(_ ids.SessionId, entity ids.EntityHandle) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	rec, ok := w.entities[entity]
	return ok && !rec.hidden
}

// ApplyDamage implements combat.StatSink.
func (w *World) ApplyDamage(d combat.DamageOutcome) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if rec, ok := w.entities[d.Target]; ok {
		rec.health -= d.Magnitude
		if rec.health < 0 {
			rec.health = 0
		}
	}
}

// ApplyMitigation implements combat.StatSink.
func (w *World) ApplyMitigation(m combat.MitigationOutcome) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if rec, ok := w.entities[m.Target]; ok {
		rec.health += m.Magnitude
	}
}

// Health returns the entity's current health.
func (w *World) Health(entity ids.EntityHandle) int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if rec, ok := w.entities[entity]; ok {
		return rec.health
	}
	return 0
}

// AliveGate is the eligibility gate excluding dead entities from the tick.
type AliveGate struct {
	World *World
}

// Name implements sim.EligibilityGate.
func (AliveGate) Name() string { return "world.alive" }

// IsEligible implements sim.EligibilityGate.
func (g AliveGate) IsEligible(entity ids.EntityHandle) bool {
	g.World.mu.RLock()
	defer g.World.mu.RUnlock()
	rec, ok := g.World.entities[entity]
	return ok && rec.alive
}
