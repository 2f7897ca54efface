package core

import (
	"sort"
	"sync"

	"github.com/caelmor/world/internal/ids"
)

// SessionRecord is the table's view of one attached session.
type SessionRecord struct {
	Session          ids.SessionId
	Player           ids.PlayerId
	SnapshotEligible bool
}

// DetachHook runs when a session is removed; subsystems register teardown here
// so per-session queue state never outlives the session.
type DetachHook func(session ids.SessionId)

// SessionTable is the in-process session registry. It implements
// ActiveSessionIndex and SnapshotEligibilityView for the boot wiring.
// Transport attaches and detaches; the tick thread only reads.
type SessionTable struct {
	mu          sync.RWMutex
	records     map[ids.SessionId]*SessionRecord
	detachHooks []DetachHook
}

// NewSessionTable creates an empty registry.
func NewSessionTable() *SessionTable {
	return &SessionTable{records: make(map[ids.SessionId]*SessionRecord)}
}

// OnDetach registers a teardown hook. Boot-time only; not safe to call
// concurrently with Detach.
func (t *SessionTable) OnDetach(hook DetachHook) {
	t.detachHooks = append(t.detachHooks, hook)
}

// Attach mints a session for the player and records it. Snapshot eligibility
// starts false until onboarding flips it.
func (t *SessionTable) Attach(player ids.PlayerId) ids.SessionId {
	session := ids.NewSessionId()
	t.mu.Lock()
	t.records[session] = &SessionRecord{Session: session, Player: player}
	t.mu.Unlock()
	return session
}

// Detach removes the session and fans out teardown hooks.
func (t *SessionTable) Detach(session ids.SessionId) {
	t.mu.Lock()
	_, ok := t.records[session]
	delete(t.records, session)
	t.mu.Unlock()
	if !ok {
		return
	}
	for _, hook := range t.detachHooks {
		hook(session)
	}
}

// Known reports whether the session is attached.
func (t *SessionTable) Known(session ids.SessionId) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.records[session]
	return ok
}

// SetSnapshotEligible flips snapshot delivery for the session.
func (t *SessionTable) SetSnapshotEligible(session ids.SessionId, eligible bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, ok := t.records[session]; ok {
		rec.SnapshotEligible = eligible
	}
}

// SnapshotSessionsDeterministic returns attached sessions in ascending id
// order, the canonical session order for capture and drain tie-breaks.
func (t *SessionTable) SnapshotSessionsDeterministic() []ids.SessionId {
	t.mu.RLock()
	out := make([]ids.SessionId, 0, len(t.records))
	for session := range t.records {
		out = append(out, session)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsSnapshotEligible reports whether the session receives snapshots.
func (t *SessionTable) IsSnapshotEligible(session ids.SessionId) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.records[session]
	return ok && rec.SnapshotEligible
}
