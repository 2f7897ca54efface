// Package replication implements the post-tick client replication pipeline:
// per-session snapshot capture, delta serialization against a per-session
// baseline, and the bounded outbound queue the transport layer consumes.
package replication

import (
	"github.com/caelmor/world/internal/core"
	"github.com/caelmor/world/internal/ids"
)

// EntitySnapshot is one entity's replicated row: the handle and the opaque
// fingerprint of its committed state.
type EntitySnapshot struct {
	Entity      ids.EntityHandle
	Fingerprint core.Fingerprint
}

// ClientSnapshot is the per-session capture of one tick, entities sorted
// ascending by handle. Immutable once enqueued: the rows are value copies, so
// later mutations of the state reader cannot reach it.
type ClientSnapshot struct {
	Session ids.SessionId
	Tick    core.Tick
	Entities []EntitySnapshot
}

// SnapshotQueue accepts captured snapshots for delivery. The default
// implementation is the delta pipeline (serialize, then enqueue outbound).
type SnapshotQueue interface {
	Enqueue(session ids.SessionId, snap *ClientSnapshot)
}
