package combat

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/caelmor/world/internal/core"
	"github.com/caelmor/world/internal/ids"
	"github.com/caelmor/world/internal/ingress"
	"github.com/caelmor/world/internal/sim"
)

// ActorResolver binds a session to the entity it controls. Sessions without a
// bound actor produce no intents.
type ActorResolver interface {
	ActorForSession(session ids.SessionId) ids.EntityHandle
}

// IntentSource produces the frozen intent queue for one tick.
type IntentSource interface {
	FreezeIntents(tickIndex core.Tick) []FrozenIntentRecord
}

// commandTypeToIntent maps inbound command tags onto intent types. Unmapped
// tags are skipped; the ingress accepts more command kinds than combat cares
// about.
var commandTypeToIntent = map[ingress.CommandType]IntentType{
	ingress.CommandAttack:   IntentAttack,
	ingress.CommandDefend:   IntentDefend,
	ingress.CommandAbility:  IntentAbility,
	ingress.CommandMovement: IntentMovement,
	ingress.CommandInteract: IntentInteract,
	ingress.CommandCancel:   IntentCancel,
}

// IngressIntentSource drains the command ingress on the tick thread and
// freezes the result into immutable intent records. Payload bytes are copied
// out of the lease, and the lease is released here: command envelopes never
// outlive the freeze.
type IngressIntentSource struct {
	ingress  *ingress.Ingress
	resolver ActorResolver
	maxDrain int
	logger   *zap.Logger

	scratch []*ingress.CommandEnvelope
}

// NewIngressIntentSource wires the default intent source.
func NewIngressIntentSource(in *ingress.Ingress, resolver ActorResolver, maxDrain int, logger *zap.Logger) *IngressIntentSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxDrain <= 0 {
		maxDrain = 256
	}
	return &IngressIntentSource{
		ingress:  in,
		resolver: resolver,
		maxDrain: maxDrain,
		logger:   logger.Named("combat.intents"),
	}
}

// FreezeIntents implements IntentSource.
func (s *IngressIntentSource) FreezeIntents(tickIndex core.Tick) []FrozenIntentRecord {
	s.scratch = s.scratch[:0]
	if _, err := s.ingress.DrainDeterministic(&s.scratch, s.maxDrain); err != nil {
		s.logger.Error("drain failed", zap.Error(err))
		return nil
	}

	frozen := make([]FrozenIntentRecord, 0, len(s.scratch))
	for _, env := range s.scratch {
		intentType, mapped := commandTypeToIntent[env.Type]
		actor := s.resolver.ActorForSession(env.Session)
		if mapped && actor.Valid() {
			payload := append([]byte(nil), env.Payload.Bytes()...)
			frozen = append(frozen, FrozenIntentRecord{
				IntentID:   fmt.Sprintf("%s#%d", env.Session, env.Sequence),
				Type:       intentType,
				Actor:      actor,
				SubmitTick: env.SubmitTick,
				Sequence:   env.Sequence,
				Payload:    payload,
			})
		}
		env.Payload.Release()
	}
	return frozen
}

// BatchBuilder turns one tick's gating and resolution output into the
// outcome batch to apply. The default builder covers the core's own rules;
// gameplay rule evaluation (damage rolls, mitigation) plugs in here.
type BatchBuilder interface {
	BuildBatch(tickIndex core.Tick, gated GateResult, proposals []Proposal) *OutcomeBatch
}

// DefaultBatchBuilder produces the minimal authoritative batch: every
// disposition becomes a terminal IntentResult (accepted → Resolved, rejected
// → Rejected with its reason), cancellations become Canceled.
type DefaultBatchBuilder struct{}

// BuildBatch implements BatchBuilder.
func (DefaultBatchBuilder) BuildBatch(tickIndex core.Tick, gated GateResult, proposals []Proposal) *OutcomeBatch {
	batch := &OutcomeBatch{Tick: tickIndex}
	accepted := 0
	for _, row := range gated.Dispositions {
		result := IntentResult{
			IntentID:          row.IntentID,
			Type:              row.Type,
			Actor:             row.Actor,
			AuthoritativeTick: tickIndex,
		}
		if row.Status == DispositionRejected {
			result.Status = ResultRejected
			result.Reason = row.Reason
		} else {
			if proposals[accepted].Kind == CancellationEvaluated {
				result.Status = ResultCanceled
			} else {
				result.Status = ResultResolved
			}
			accepted++
		}
		batch.Results = append(batch.Results, result)
	}
	return batch
}

// Pipeline is the pre-tick combat phase hook: freeze → gate → resolve →
// build → apply, all on the tick thread in the mutation-permitted phase.
type Pipeline struct {
	source    IntentSource
	authority *Authority
	builder   BatchBuilder
	applier   *Applier
	logger    *zap.Logger
}

// NewPipeline wires the combat pipeline hook.
func NewPipeline(source IntentSource, authority *Authority, builder BatchBuilder, applier *Applier, logger *zap.Logger) *Pipeline {
	if builder == nil {
		builder = DefaultBatchBuilder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		source:    source,
		authority: authority,
		builder:   builder,
		applier:   applier,
		logger:    logger.Named("combat.pipeline"),
	}
}

// Name implements sim.PhaseHook.
func (p *Pipeline) Name() string { return "combat.pipeline" }

// OnPreTick runs the full gate → resolve → apply chain for this tick's
// frozen intents.
func (p *Pipeline) OnPreTick(ctx *sim.TickContext, _ sim.EligibleView) error {
	frozen := p.source.FreezeIntents(ctx.TickIndex)
	if len(frozen) == 0 {
		return nil
	}

	gated, err := p.authority.GateFrozenQueue(frozen)
	if err != nil {
		return err
	}
	for _, rejection := range gated.Rejections {
		p.logger.Debug("intent rejected",
			zap.String("intent", rejection.IntentID),
			zap.Uint32("actor", rejection.Actor.Value()),
			zap.String("reason", string(rejection.Reason)))
	}

	proposals := Resolve(gated.Accepted, ctx.TickIndex)
	batch := p.builder.BuildBatch(ctx.TickIndex, gated, proposals)
	return p.applier.Apply(batch, ctx.TickIndex)
}

// OnPostTick implements sim.PhaseHook; the combat pipeline is pre-tick only.
func (p *Pipeline) OnPostTick(*sim.TickContext, sim.EligibleView) error { return nil }
