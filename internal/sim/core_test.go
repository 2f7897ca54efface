package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caelmor/world/internal/fault"
	"github.com/caelmor/world/internal/ids"
)

type fixedIndex struct {
	entities []ids.EntityHandle
}

func (f *fixedIndex) SnapshotEntitiesDeterministic() []ids.EntityHandle {
	return f.entities
}

type funcGate struct {
	name string
	fn   func(ids.EntityHandle) bool
}

func (g funcGate) Name() string                        { return g.name }
func (g funcGate) IsEligible(e ids.EntityHandle) bool { return g.fn(e) }

type traceParticipant struct {
	name  string
	trace *[]string
	fn    func(ctx *TickContext, eligible EligibleView) error
}

func (p traceParticipant) Name() string { return p.name }
func (p traceParticipant) Simulate(ctx *TickContext, eligible EligibleView) error {
	*p.trace = append(*p.trace, p.name)
	if p.fn != nil {
		return p.fn(ctx, eligible)
	}
	return nil
}

type traceHook struct {
	name  string
	trace *[]string
}

func (h traceHook) Name() string { return h.name }
func (h traceHook) OnPreTick(*TickContext, EligibleView) error {
	*h.trace = append(*h.trace, h.name+"/pre")
	return nil
}
func (h traceHook) OnPostTick(*TickContext, EligibleView) error {
	*h.trace = append(*h.trace, h.name+"/post")
	return nil
}

func allowGate() EligibilityGate {
	return funcGate{name: "allow", fn: func(ids.EntityHandle) bool { return true }}
}

func TestRunTickPhaseOrder(t *testing.T) {
	index := &fixedIndex{entities: []ids.EntityHandle{1, 2}}
	engine := NewEngine(index, nil, nil, nil)
	engine.RegisterGate(allowGate())

	var trace []string
	engine.RegisterHook(traceHook{name: "hookB", trace: &trace}, 20)
	engine.RegisterHook(traceHook{name: "hookA", trace: &trace}, 10)
	engine.RegisterParticipant(traceParticipant{name: "partB", trace: &trace}, 20)
	engine.RegisterParticipant(traceParticipant{name: "partA", trace: &trace}, 10)

	require.NoError(t, engine.RunTick(1, 100*time.Millisecond))

	// Hooks and participants run in order-key order; pre hooks before
	// participants, post hooks after.
	assert.Equal(t, []string{
		"hookA/pre", "hookB/pre",
		"partA", "partB",
		"hookA/post", "hookB/post",
	}, trace)
	assert.Equal(t, PhaseIdle, engine.Phase())
}

func TestRegistrationSequenceBreaksOrderKeyTies(t *testing.T) {
	index := &fixedIndex{entities: []ids.EntityHandle{1}}
	engine := NewEngine(index, nil, nil, nil)
	engine.RegisterGate(allowGate())

	var trace []string
	engine.RegisterParticipant(traceParticipant{name: "first", trace: &trace}, 5)
	engine.RegisterParticipant(traceParticipant{name: "second", trace: &trace}, 5)

	require.NoError(t, engine.RunTick(1, 100*time.Millisecond))
	assert.Equal(t, []string{"first", "second"}, trace)
}

func TestGateChainShortCircuits(t *testing.T) {
	index := &fixedIndex{entities: []ids.EntityHandle{1, 2, 3}}
	engine := NewEngine(index, nil, nil, nil)

	evaluatedSecond := map[ids.EntityHandle]bool{}
	engine.RegisterGate(funcGate{name: "blockTwo", fn: func(e ids.EntityHandle) bool { return e != 2 }})
	engine.RegisterGate(funcGate{name: "recording", fn: func(e ids.EntityHandle) bool {
		evaluatedSecond[e] = true
		return true
	}})

	var views []EligibleView
	engine.RegisterParticipant(traceParticipant{
		name:  "observer",
		trace: new([]string),
		fn: func(_ *TickContext, eligible EligibleView) error {
			views = append(views, eligible)
			return nil
		},
	}, 0)

	require.NoError(t, engine.RunTick(1, 100*time.Millisecond))

	require.Len(t, views, 1)
	assert.Equal(t, []ids.EntityHandle{1, 3}, views[0].Entities())
	assert.True(t, views[0].Contains(1))
	assert.False(t, views[0].Contains(2))
	// The chain short-circuited on entity 2 at the first gate.
	assert.False(t, evaluatedSecond[2])
}

func TestEligibilityMutatedMidTickIsFatal(t *testing.T) {
	index := &fixedIndex{entities: []ids.EntityHandle{1}}
	engine := NewEngine(index, nil, nil, nil)

	flip := true
	engine.RegisterGate(funcGate{name: "flapping", fn: func(ids.EntityHandle) bool { return flip }})
	engine.RegisterParticipant(traceParticipant{
		name:  "mutator",
		trace: new([]string),
		fn: func(*TickContext, EligibleView) error {
			flip = false
			return nil
		},
	}, 0)

	err := engine.RunTick(1, 100*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, fault.EligibilityMutatedMidTick, fault.CodeOf(err))
	assert.True(t, fault.IsFatal(err))
}

func TestEffectBufferCommitsAtFinalization(t *testing.T) {
	index := &fixedIndex{entities: []ids.EntityHandle{1}}
	engine := NewEngine(index, nil, nil, nil)
	engine.RegisterGate(allowGate())

	var log []string
	flag := &FlagSignal{}
	engine.RegisterParticipant(traceParticipant{
		name:  "buffering",
		trace: new([]string),
		fn: func(ctx *TickContext, _ EligibleView) error {
			require.NoError(t, ctx.Buffer().BufferAppend(&log, "first"))
			require.NoError(t, ctx.Buffer().BufferFlag(flag))
			require.NoError(t, ctx.Buffer().BufferAppend(&log, "second"))
			// Nothing commits mid-tick.
			assert.Empty(t, log)
			assert.False(t, flag.Marked())
			return nil
		},
	}, 0)

	require.NoError(t, engine.RunTick(1, 100*time.Millisecond))

	// Commit drained in insertion order at post-tick finalization.
	assert.Equal(t, []string{"first", "second"}, log)
	assert.True(t, flag.Marked())
	assert.Equal(t, 0, engine.effects.Len())
}

type recordingCommitSink struct {
	commits []interface{}
}

func (r *recordingCommitSink) Commit(_ ids.EntityHandle, resolution interface{}) error {
	r.commits = append(r.commits, resolution)
	return nil
}

func TestEffectBufferCombatCommit(t *testing.T) {
	index := &fixedIndex{entities: []ids.EntityHandle{1}}
	engine := NewEngine(index, nil, nil, nil)
	engine.RegisterGate(allowGate())

	sink := &recordingCommitSink{}
	engine.RegisterParticipant(traceParticipant{
		name:  "combat",
		trace: new([]string),
		fn: func(ctx *TickContext, _ EligibleView) error {
			return ctx.Buffer().BufferCombatCommit(1, sink, "resolution-a")
		},
	}, 0)

	require.NoError(t, engine.RunTick(1, 100*time.Millisecond))
	assert.Equal(t, []interface{}{"resolution-a"}, sink.commits)
}

func TestEffectBufferOutsideWindowIsFatal(t *testing.T) {
	buffer := NewEffectBuffer(8)
	var log []string

	err := buffer.BufferAppend(&log, "late")
	require.Error(t, err)
	assert.Equal(t, fault.EffectBufferMisuse, fault.CodeOf(err))
	assert.True(t, fault.IsFatal(err))
}

func TestEffectBufferCapacityIsFatal(t *testing.T) {
	buffer := NewEffectBuffer(2)
	buffer.beginTick()
	var log []string

	require.NoError(t, buffer.BufferAppend(&log, "1"))
	require.NoError(t, buffer.BufferAppend(&log, "2"))
	err := buffer.BufferAppend(&log, "3")
	require.Error(t, err)
	assert.Equal(t, fault.EffectBufferMisuse, fault.CodeOf(err))
}

func TestEffectBufferClearsEvenOnCommitFailure(t *testing.T) {
	buffer := NewEffectBuffer(8)
	buffer.beginTick()
	require.NoError(t, buffer.BufferCombatCommit(1, failingSink{}, "r"))

	require.Error(t, buffer.commit())
	assert.Equal(t, 0, buffer.Len())

	// The window is closed after commit: further buffering is misuse.
	var log []string
	err := buffer.BufferAppend(&log, "late")
	assert.Equal(t, fault.EffectBufferMisuse, fault.CodeOf(err))
}

type failingSink struct{}

func (failingSink) Commit(ids.EntityHandle, interface{}) error {
	return fault.Invariant(fault.InvalidCombatState, "boom")
}

func TestMutationGatePhases(t *testing.T) {
	index := &fixedIndex{entities: []ids.EntityHandle{1}}
	engine := NewEngine(index, nil, nil, nil)
	engine.RegisterGate(allowGate())

	var observed []bool
	engine.RegisterHook(phaseProbe{engine: engine, observed: &observed}, 0)
	engine.RegisterParticipant(traceParticipant{
		name:  "mid",
		trace: new([]string),
		fn: func(*TickContext, EligibleView) error {
			observed = append(observed, engine.IsMutationAllowedNow())
			return nil
		},
	}, 0)

	require.NoError(t, engine.RunTick(1, 100*time.Millisecond))

	// pre-tick: allowed; mid-tick: forbidden; post-tick: allowed.
	assert.Equal(t, []bool{true, false, true}, observed)
	// Outside any tick: forbidden.
	assert.False(t, engine.IsMutationAllowedNow())
}

type phaseProbe struct {
	engine   *Engine
	observed *[]bool
}

func (phaseProbe) Name() string { return "probe" }
func (p phaseProbe) OnPreTick(*TickContext, EligibleView) error {
	*p.observed = append(*p.observed, p.engine.IsMutationAllowedNow())
	return nil
}
func (p phaseProbe) OnPostTick(*TickContext, EligibleView) error {
	*p.observed = append(*p.observed, p.engine.IsMutationAllowedNow())
	return nil
}
