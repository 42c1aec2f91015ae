package orchestratornode

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/contract"
	statex "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/state"
	toolx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/tool"
)

const (
	DefaultMaxIters       = 6
	DefaultPlannerTimeout = 45 * time.Second
	DefaultFallbackReply  = "Sorry, I could not complete that just now. Please try again."
)

type LoopPolicy struct {
	MaxIters       int
	PlannerTimeout time.Duration
	FallbackReply  string
}

func (p LoopPolicy) withDefaults() LoopPolicy {
	if p.MaxIters <= 0 {
		p.MaxIters = DefaultMaxIters
	}
	if p.PlannerTimeout <= 0 {
		p.PlannerTimeout = DefaultPlannerTimeout
	}
	if strings.TrimSpace(p.FallbackReply) == "" {
		p.FallbackReply = DefaultFallbackReply
	}
	return p
}

// RunReasoningLoop drives plan, validate, dispatch and observe until the planner replies
// or the iteration cap forces the fallback reply.
func RunReasoningLoop(
	ctx context.Context,
	in *GraphState,
	planner contractx.Planner,
	caps Capabilities,
	policy LoopPolicy,
) (*GraphState, error) {
	if in == nil || in.Thread == nil {
		return nil, fmt.Errorf("%w: graph thread is nil", contractx.ErrValidation)
	}
	policy = policy.withDefaults()
	catalogue := caps.Catalogue()

	var facts cycleFacts
	th := in.Thread
	th.Iteration = 0
	for {
		th.Iteration++
		in.Delta.Iteration = th.Iteration
		if th.Iteration > policy.MaxIters {
			log.Warn().
				Str("thread_key", in.ThreadKey).
				Int("max_iters", policy.MaxIters).
				Msg("iteration cap reached")
			// Keep the counter at the last iteration that ran.
			th.Iteration = policy.MaxIters
			in.Delta.Iteration = th.Iteration
			in.fallback(policy.FallbackReply, fmt.Sprintf("iteration cap %d reached", policy.MaxIters))
			return in, nil
		}

		dec, err := planNext(ctx, in, planner, catalogue, policy.PlannerTimeout)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			log.Error().Err(err).
				Str("thread_key", in.ThreadKey).
				Int("iteration", th.Iteration).
				Msg("planner failed")
			in.fallback(policy.FallbackReply, err.Error())
			return in, nil
		}

		switch dec.Kind {
		case contractx.DecisionInvokeCapability:
			in.checkpoint(statex.CheckpointDecision, dec, "")
			facts.observe(dispatchCapability(ctx, in, caps, dec.Capability, dec.Arguments, false))

		case contractx.DecisionFinalReply:
			text := strings.TrimSpace(dec.Reply)
			if text == "" {
				in.fallback(policy.FallbackReply, "planner returned an empty reply")
				return in, nil
			}
			if needsCompletenessCheck(dec, facts, th.Profile) {
				in.checkpoint(statex.CheckpointGuard, dec, "reply held until completeness is checked")
				facts.observe(dispatchCapability(ctx, in, caps, toolx.CapCheckCompleteness, nil, true))
				continue
			}
			in.checkpoint(statex.CheckpointDecision, dec, "")
			in.reply(text)
			return in, nil

		default:
			in.fallback(policy.FallbackReply, fmt.Sprintf("planner returned unknown decision kind %q", dec.Kind))
			return in, nil
		}
	}
}
