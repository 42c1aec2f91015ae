package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/contract"
	statex "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/state"
)

// RecordCheckpoints appends the cycle's audit entries. The turn is already committed, so
// a failure here is logged and does not change the reply.
func RecordCheckpoints(
	ctx context.Context,
	in *GraphState,
	store statex.Store,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if len(in.Checkpoints) == 0 {
		return in, nil
	}

	for i := range in.Checkpoints {
		in.Checkpoints[i].Version = in.Version
	}
	if err := store.AppendCheckpoints(ctx, in.ThreadKey, in.Checkpoints); err != nil {
		log.Warn().Err(err).
			Str("thread_key", in.ThreadKey).
			Int("checkpoints", len(in.Checkpoints)).
			Msg("append checkpoints failed")
	}
	return in, nil
}

// NotifyTurn publishes the committed turn when a notifier is configured.
func NotifyTurn(
	ctx context.Context,
	in *GraphState,
	notifier contractx.TurnNotifier,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if notifier == nil {
		return in, nil
	}

	err := notifier.NotifyTurn(ctx, contractx.TurnEvent{
		ThreadKey: in.ThreadKey,
		Version:   in.Version,
		Reply:     in.Reply,
		Degraded:  in.Degraded,
		At:        in.now(),
	})
	if err != nil {
		log.Warn().Err(err).
			Str("thread_key", in.ThreadKey).
			Int64("version", in.Version).
			Msg("turn notification failed")
	}
	return in, nil
}
