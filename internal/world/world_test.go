package world

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caelmor/world/internal/combat"
	"github.com/caelmor/world/internal/core"
	"github.com/caelmor/world/internal/diag"
	"github.com/caelmor/world/internal/ingress"
	"github.com/caelmor/world/internal/persist"
	"github.com/caelmor/world/internal/pool"
	"github.com/caelmor/world/internal/replication"
	"github.com/caelmor/world/internal/sim"
	"github.com/caelmor/world/internal/tick"
)

func TestFingerprintTracksCommittedState(t *testing.T) {
	w := New()
	entity := w.Spawn(1, 100)

	before := w.ReadCommittedState(entity)
	w.ApplyDamage(combat.DamageOutcome{Target: entity, Magnitude: 10})
	after := w.ReadCommittedState(entity)

	assert.NotEqual(t, before, after)
	assert.Equal(t, int64(90), w.Health(entity))
	// Unchanged state keeps the same fingerprint.
	assert.Equal(t, after, w.ReadCommittedState(entity))
}

func TestEntityIndexIsSortedAscending(t *testing.T) {
	w := New()
	for i := 0; i < 5; i++ {
		w.Spawn(1, 10)
	}
	entities := w.SnapshotEntitiesDeterministic()
	require.Len(t, entities, 5)
	for i := 1; i < len(entities); i++ {
		assert.Less(t, entities[i-1], entities[i])
	}
}

func TestHiddenEntitiesAreNotReplicated(t *testing.T) {
	w := New()
	entity := w.Spawn(1, 10)

	assert.True(t, w.IsEntityReplicationEligible("s0", entity))
	w.SetHidden(entity, true)
	assert.False(t, w.IsEntityReplicationEligible("s0", entity))
}

// TestFullTickPipeline drives one command through the entire core: ingress →
// freeze → gate → resolve → apply → capture → delta → outbound queue.
func TestFullTickPipeline(t *testing.T) {
	w := New()
	actor := w.Spawn(1, 100)
	other := w.Spawn(1, 100)
	_ = other

	diagnostics := diag.New()
	buffers := pool.NewBufferPool(256)
	sessions := core.NewSessionTable()
	session := sessions.Attach("p1")
	sessions.SetSnapshotEligible(session, true)
	w.BindSession(session, actor)

	engine := sim.NewEngine(w, sim.NewEffectBuffer(64), diagnostics.Hooks, nil)
	engine.RegisterGate(AliveGate{World: w})

	inbound := ingress.New(sessions, 16, 1<<16, diagnostics.Pipeline, nil)
	persistQueue := persist.NewQueue(persist.Caps{MaxPerPlayer: 8, MaxGlobal: 64}, diagnostics.Pipeline, nil)

	authority := combat.NewAuthority(engine, nil)
	events := combat.NewEventBus()
	eventCh := events.Subscribe(16)
	applier := combat.NewApplier(authority, events, persist.NewCheckpointSink(persistQueue),
		w, diagnostics.Pipeline, 0, nil)
	intents := combat.NewIngressIntentSource(inbound, w, 64, nil)
	engine.RegisterHook(combat.NewPipeline(intents, authority, nil, applier, nil), 10)

	serializer := replication.NewDeltaSerializer(buffers)
	outbound := replication.NewOutboundQueue(8, 1<<20, diagnostics.Pipeline, nil)
	capturer := replication.NewCapturer(w, w, sessions, sessions,
		&replication.DeltaPipeline{Serializer: serializer, Outbound: outbound, Counters: diagnostics.Pipeline},
		replication.SliceBudget{
			SliceBudgetPerTick: 2 * time.Millisecond,
			MaxSlicesPerTick:   4,
			EntitiesPerSlice:   128,
		}, diagnostics.Pipeline, nil)
	engine.RegisterHook(capturer, 100)

	scheduler := tick.NewScheduler(engine, diagnostics.Ticks, nil)

	// A movement command is legal from Idle.
	lease := buffers.RentCopy([]byte(`{"dx":1}`))
	_, err := inbound.TryEnqueue(session, lease, ingress.CommandMovement, 0)
	require.NoError(t, err)

	require.NoError(t, scheduler.ExecuteOneTick())

	// The command drained and applied: one intent-result event, one
	// checkpoint request.
	select {
	case ev := <-eventCh:
		assert.Equal(t, combat.EventIntentResult, ev.Type)
		assert.Equal(t, core.Tick(1), ev.Tick)
	default:
		t.Fatal("expected a combat event")
	}
	assert.Equal(t, int64(1), diagnostics.Pipeline.OutcomesApplied.Load())
	assert.Equal(t, 1, persistQueue.Len())
	// The intent id derives from (session, sequence).
	assert.Equal(t, fmt.Sprintf("%s#1", session), applier.LastResolvedIntent(actor))

	// The post-tick capture produced one delta for the session.
	snap := outbound.Dequeue(session)
	require.NotNil(t, snap)
	decoded, err := replication.DecodeDelta(snap.Bytes())
	require.NoError(t, err)
	assert.Equal(t, core.Tick(1), decoded.Tick)
	assert.Len(t, decoded.Changed, 2) // both entities are new vs the empty baseline
	snap.Release()

	// A second tick with no commands and no state change produces an empty
	// delta.
	require.NoError(t, scheduler.ExecuteOneTick())
	snap = outbound.Dequeue(session)
	require.NotNil(t, snap)
	decoded, err = replication.DecodeDelta(snap.Bytes())
	require.NoError(t, err)
	assert.Empty(t, decoded.Changed)
	assert.Empty(t, decoded.Removed)
	snap.Release()
}
