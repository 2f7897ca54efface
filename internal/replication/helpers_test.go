package replication

import (
	"sync"

	"github.com/caelmor/world/internal/core"
	"github.com/caelmor/world/internal/ids"
)

func coreTick(t int64) core.Tick { return core.Tick(t) }

func fingerprint(s string) core.Fingerprint { return core.Fingerprint(s) }

// fakeReader is a mutable committed-state reader.
type fakeReader struct {
	mu     sync.Mutex
	states map[ids.EntityHandle]core.Fingerprint
}

func newFakeReader() *fakeReader {
	return &fakeReader{states: make(map[ids.EntityHandle]core.Fingerprint)}
}

func (r *fakeReader) set(entity ids.EntityHandle, fp string) {
	r.mu.Lock()
	r.states[entity] = core.Fingerprint(fp)
	r.mu.Unlock()
}

func (r *fakeReader) ReadCommittedState(entity ids.EntityHandle) core.Fingerprint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[entity]
}

// fakeSessionIndex serves a fixed session list with per-session snapshot
// eligibility.
type fakeSessionIndex struct {
	sessions []ids.SessionId
	eligible map[ids.SessionId]bool
}

func (f *fakeSessionIndex) SnapshotSessionsDeterministic() []ids.SessionId {
	return f.sessions
}

func (f *fakeSessionIndex) IsSnapshotEligible(session ids.SessionId) bool {
	return f.eligible[session]
}

// fakeEntityGate blocks the listed entities for every session.
type fakeEntityGate struct {
	blocked map[ids.EntityHandle]bool
}

func (f *fakeEntityGate) IsEntityReplicationEligible(_ ids.SessionId, entity ids.EntityHandle) bool {
	return !f.blocked[entity]
}

// recordingQueue collects captured snapshots instead of serializing them.
type recordingQueue struct {
	enqueued []*ClientSnapshot
}

func (q *recordingQueue) Enqueue(_ ids.SessionId, snap *ClientSnapshot) {
	q.enqueued = append(q.enqueued, snap)
}
