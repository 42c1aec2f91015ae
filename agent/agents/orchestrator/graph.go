package orchestrator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	nodex "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/nodes/orchestrator"
)

func (o *Orchestrator) compileProcessGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.GraphInput, nodex.GraphOutput]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateRequest(in, o.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("load_or_create_state",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.LoadOrCreateState(ctx, in, o.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node load_or_create_state: %w", err)
	}

	if err := graph.AddLambdaNode("reasoning_loop",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.RunReasoningLoop(ctx, in, o.planner, o.caps, o.policy)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node reasoning_loop: %w", err)
	}

	if err := graph.AddLambdaNode("validate_and_save_state",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ValidateAndSaveState(ctx, in, o.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_and_save_state: %w", err)
	}

	if err := graph.AddLambdaNode("record_checkpoints",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.RecordCheckpoints(ctx, in, o.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node record_checkpoints: %w", err)
	}

	if err := graph.AddLambdaNode("notify_turn",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.NotifyTurn(ctx, in, o.notifier)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node notify_turn: %w", err)
	}

	if err := graph.AddLambdaNode("finalize_reply",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.FinalizeReply(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize_reply: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "load_or_create_state"},
		{"load_or_create_state", "reasoning_loop"},
		{"reasoning_loop", "validate_and_save_state"},
		{"validate_and_save_state", "record_checkpoints"},
		{"record_checkpoints", "notify_turn"},
		{"notify_turn", "finalize_reply"},
		{"finalize_reply", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("orchestrator.process"))
	if err != nil {
		return nil, fmt.Errorf("compile orchestrator graph: %w", err)
	}
	return runner, nil
}
