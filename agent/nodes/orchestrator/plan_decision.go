package orchestratornode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/contract"
	statex "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/state"
)

const plannerAttempts = 2

// planNext asks the planner for the next decision. A timed out attempt is retried once.
func planNext(
	ctx context.Context,
	in *GraphState,
	planner contractx.Planner,
	catalogue []contractx.CapabilityInfo,
	timeout time.Duration,
) (contractx.Decision, error) {
	th := in.Thread
	req := contractx.PlannerRequest{
		ThreadKey:    th.ThreadKey,
		Transcript:   append([]contractx.Turn(nil), th.Transcript...),
		Profile:      th.Profile.Clone(),
		Missing:      statex.MissingAttributes(th.Profile),
		Insights:     append([]string(nil), th.Insights...),
		Capabilities: catalogue,
		Iteration:    th.Iteration,
		Now:          in.now(),
	}

	var lastErr error
	for attempt := 1; attempt <= plannerAttempts; attempt++ {
		dec, err := planOnce(ctx, planner, req, timeout)
		if err == nil {
			return dec, nil
		}
		lastErr = err
		if !errors.Is(err, contractx.ErrPlannerTimeout) {
			return contractx.Decision{}, err
		}
		log.Warn().
			Str("thread_key", th.ThreadKey).
			Int("iteration", th.Iteration).
			Int("attempt", attempt).
			Dur("timeout", timeout).
			Msg("planner timed out")
	}
	return contractx.Decision{}, lastErr
}

type planOutcome struct {
	dec contractx.Decision
	err error
}

func planOnce(
	ctx context.Context,
	planner contractx.Planner,
	req contractx.PlannerRequest,
	timeout time.Duration,
) (contractx.Decision, error) {
	planCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan planOutcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- planOutcome{err: fmt.Errorf("planner panic: %v", p)}
			}
		}()
		dec, err := planner.Plan(planCtx, req)
		done <- planOutcome{dec: dec, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil && ctx.Err() == nil && errors.Is(planCtx.Err(), context.DeadlineExceeded) {
			return contractx.Decision{}, fmt.Errorf("%w after %s: %v", contractx.ErrPlannerTimeout, timeout, o.err)
		}
		return o.dec, o.err
	case <-planCtx.Done():
		if err := ctx.Err(); err != nil {
			return contractx.Decision{}, err
		}
		return contractx.Decision{}, fmt.Errorf("%w after %s", contractx.ErrPlannerTimeout, timeout)
	}
}
