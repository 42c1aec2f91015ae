package orchestratornode

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/contract"
	toolx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/tool"
)

// Capabilities is the sealed catalogue the loop dispatches through.
type Capabilities interface {
	Catalogue() []contractx.CapabilityInfo
	Invoke(ctx context.Context, name string, args map[string]any, env toolx.Env) contractx.CapabilityCall
}

func dispatchCapability(
	ctx context.Context,
	in *GraphState,
	caps Capabilities,
	name string,
	args map[string]any,
	forced bool,
) contractx.CapabilityCall {
	th := in.Thread
	env := toolx.Env{
		ThreadKey:  th.ThreadKey,
		Profile:    th.Profile.Clone(),
		Insights:   append([]string(nil), th.Insights...),
		Plan:       th.CurrentPlan,
		Transcript: append([]contractx.Turn(nil), th.Transcript...),
	}

	call := caps.Invoke(ctx, name, args, env)
	call.Forced = forced
	logDispatch(in, call)
	applyCapabilityResult(in, call)
	return call
}

// applyCapabilityResult folds a call's effects into the working thread and appends its tool turn.
func applyCapabilityResult(in *GraphState, call contractx.CapabilityCall) {
	if res := call.Result; res != nil && !call.Failed() {
		if len(res.ProfilePatch) > 0 {
			in.Thread.MergeProfile(res.ProfilePatch)
			in.Delta.mergeProfile(res.ProfilePatch)
		}
		if len(res.Insights) > 0 {
			in.Thread.AddInsights(res.Insights)
			in.Delta.Insights = append(in.Delta.Insights, res.Insights...)
		}
		if res.Plan != nil {
			plan := *res.Plan
			in.Thread.CurrentPlan = &plan
			in.Delta.Plan = &plan
		}
	}

	recorded := call
	in.appendTurn(contractx.Turn{
		Role:    contractx.RoleTool,
		Content: recorded.Observation(),
		At:      in.now(),
		Call:    &recorded,
	})
}

func logDispatch(in *GraphState, call contractx.CapabilityCall) {
	var ev *zerolog.Event
	switch {
	case call.Failed():
		ev = log.Warn().
			Str("error_kind", string(call.Error.Kind)).
			Str("error", call.Error.Message)
	case call.SideEffect == contractx.SideEffectMutating:
		ev = log.Info()
	default:
		ev = log.Debug()
	}
	ev.Str("thread_key", in.ThreadKey).
		Str("capability", call.Capability).
		Str("side_effect", string(call.SideEffect)).
		Int64("latency_ms", call.Latency.Milliseconds()).
		Int("iteration", in.Thread.Iteration).
		Bool("forced", call.Forced).
		Msg("capability dispatched")
}
