package orchestratornode

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/contract"
	statex "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/state"
)

// ValidateAndSaveState writes the working thread with compare-and-save against the version read
// at load time. On conflict the cycle delta is replayed onto a fresh base and written once more.
func ValidateAndSaveState(
	ctx context.Context,
	in *GraphState,
	store statex.Store,
) (*GraphState, error) {
	if in == nil || in.Thread == nil {
		return nil, fmt.Errorf("%w: graph thread is nil", contractx.ErrValidation)
	}

	in.Thread.Touch(in.now())
	if err := in.Thread.Validate(); err != nil {
		return nil, fmt.Errorf("state validation failed: %w", err)
	}

	version, err := store.CompareAndSave(ctx, in.Thread, in.BaseVersion)
	if errors.Is(err, statex.ErrVersionConflict) {
		log.Warn().
			Str("thread_key", in.ThreadKey).
			Int64("expected_version", in.BaseVersion).
			Msg("version conflict, replaying turn on fresh state")
		version, err = replayAndSave(ctx, in, store)
	}
	if err != nil {
		return nil, err
	}

	in.Version = version
	in.Thread.Version = version
	return in, nil
}

func replayAndSave(ctx context.Context, in *GraphState, store statex.Store) (int64, error) {
	fresh, err := loadOrCreateThread(ctx, store, in.ThreadKey, in.Now)
	if err != nil {
		return 0, fmt.Errorf("reload after conflict: %w", err)
	}
	in.Delta.Replay(fresh, in.now())
	if err := fresh.Validate(); err != nil {
		return 0, fmt.Errorf("state validation failed: %w", err)
	}

	version, err := store.CompareAndSave(ctx, fresh, fresh.Version)
	if errors.Is(err, statex.ErrVersionConflict) {
		return 0, fmt.Errorf("%w: %w", contractx.ErrTransient, err)
	}
	if err != nil {
		return 0, err
	}
	in.Thread = fresh
	in.BaseVersion = fresh.Version
	return version, nil
}
