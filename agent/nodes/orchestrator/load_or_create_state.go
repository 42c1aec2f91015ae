package orchestratornode

import (
	"context"
	"errors"
	"fmt"
	"time"

	contractx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/contract"
	statex "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/state"
)

// LoadOrCreateState loads the thread, remembers the version read, and appends the inbound user turn.
func LoadOrCreateState(
	ctx context.Context,
	in *GraphState,
	store statex.Store,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	th, err := loadOrCreateThread(ctx, store, in.ThreadKey, in.Now)
	if err != nil {
		return nil, err
	}
	in.Thread = th
	in.BaseVersion = th.Version
	in.Delta = Delta{}
	in.appendTurn(contractx.Turn{
		Role:    contractx.RoleUser,
		Content: in.Text,
		At:      in.Now,
	})
	return in, nil
}

func loadOrCreateThread(
	ctx context.Context,
	store statex.Store,
	threadKey string,
	now time.Time,
) (*statex.ConversationThread, error) {
	th, err := store.Load(ctx, threadKey)
	if err == nil {
		return th, nil
	}
	if !errors.Is(err, statex.ErrStateNotFound) {
		return nil, err
	}

	return statex.NewConversationThread(threadKey, now), nil
}
