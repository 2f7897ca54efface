// Package ids defines the opaque identifier and handle types shared by every
// subsystem of the world core. Handles are value-compared; the zero value is
// always the invalid sentinel.
package ids

import "github.com/google/uuid"

// EntityHandle is a dense positive index into the entity arena. Handle 0 is
// invalid. Numeric order is the canonical deterministic order everywhere a
// sequence of entities must be stable across runs.
type EntityHandle uint32

// InvalidEntity is the sentinel handle.
const InvalidEntity EntityHandle = 0

// Valid reports whether the handle refers to an entity.
func (h EntityHandle) Valid() bool { return h != InvalidEntity }

// Value returns the raw index for serialization and ordering.
func (h EntityHandle) Value() uint32 { return uint32(h) }

// SessionId identifies a connected client session. Empty is invalid.
type SessionId string

func (s SessionId) Valid() bool { return s != "" }

// PlayerId identifies a player account. Empty is invalid.
type PlayerId string

func (p PlayerId) Valid() bool { return p != "" }

// SaveId identifies one persistence checkpoint request. Empty is invalid.
type SaveId string

func (s SaveId) Valid() bool { return s != "" }

// ZoneId identifies a world zone. Zero is invalid.
type ZoneId uint32

func (z ZoneId) Valid() bool { return z != 0 }

// ItemInstanceId identifies one concrete item instance. Zero is invalid.
type ItemInstanceId uint64

func (i ItemInstanceId) Valid() bool { return i != 0 }

// NpcId identifies a non-player character. Zero is invalid.
type NpcId uint32

func (n NpcId) Valid() bool { return n != 0 }

// QuestInstanceId identifies one in-flight quest instance. Zero is invalid.
type QuestInstanceId uint64

func (q QuestInstanceId) Valid() bool { return q != 0 }

// NewSessionId mints a fresh session id. Sessions are minted at attach time by
// the transport layer; the core treats the value as opaque and orders it
// lexicographically.
func NewSessionId() SessionId { return SessionId(uuid.NewString()) }

// NewSaveId mints a fresh checkpoint request id.
func NewSaveId() SaveId { return SaveId(uuid.NewString()) }
