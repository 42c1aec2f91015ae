package specialist

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/contract"
)

type plannerTurnInput struct {
	Messages []*schema.Message
	Tools    []*schema.ToolInfo
}

// compilePlannerGraph wires render_messages -> call_model -> to_decision.
// Tools are bound per call because the catalogue travels with the request.
func compilePlannerGraph(
	ctx context.Context,
	chatModel einomodel.ToolCallingChatModel,
	systemPrompt string,
) (compose.Runnable[contractx.PlannerRequest, contractx.Decision], error) {
	graph := compose.NewGraph[contractx.PlannerRequest, contractx.Decision]()

	if err := graph.AddLambdaNode("render_messages",
		compose.InvokableLambda(func(ctx context.Context, req contractx.PlannerRequest) (*plannerTurnInput, error) {
			return &plannerTurnInput{
				Messages: renderPlannerMessages(systemPrompt, req),
				Tools:    toolInfosFor(req.Capabilities),
			}, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add planner render node: %w", err)
	}

	if err := graph.AddLambdaNode("call_model",
		compose.InvokableLambda(func(ctx context.Context, in *plannerTurnInput) (*schema.Message, error) {
			if in == nil {
				return nil, fmt.Errorf("%w: planner input is nil", contractx.ErrValidation)
			}
			var m einomodel.BaseChatModel = chatModel
			if len(in.Tools) > 0 {
				bound, err := chatModel.WithTools(in.Tools)
				if err != nil {
					return nil, fmt.Errorf("%w: bind planner tools: %v", contractx.ErrModelInvoke, err)
				}
				m = bound
			}
			msg, err := m.Generate(ctx, in.Messages)
			if err != nil {
				return nil, fmt.Errorf("%w: planner invoke: %w", contractx.ErrModelInvoke, err)
			}
			return msg, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add planner model node: %w", err)
	}

	if err := graph.AddLambdaNode("to_decision", compose.InvokableLambda(func(ctx context.Context, msg *schema.Message) (contractx.Decision, error) {
		return toDecision(msg)
	})); err != nil {
		return nil, fmt.Errorf("add planner decision node: %w", err)
	}

	if err := graph.AddEdge(compose.START, "render_messages"); err != nil {
		return nil, fmt.Errorf("add planner edge start->render: %w", err)
	}
	if err := graph.AddEdge("render_messages", "call_model"); err != nil {
		return nil, fmt.Errorf("add planner edge render->model: %w", err)
	}
	if err := graph.AddEdge("call_model", "to_decision"); err != nil {
		return nil, fmt.Errorf("add planner edge model->decision: %w", err)
	}
	if err := graph.AddEdge("to_decision", compose.END); err != nil {
		return nil, fmt.Errorf("add planner edge decision->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("planner.tool_calling_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile planner graph: %w", err)
	}
	return runner, nil
}

// compileStructuredLLMGraph builds prompt -> model -> unfence -> JSON parser. The system
// prompt is an FString template, so it must not contain braces.
func compileStructuredLLMGraph[T any](
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
	graphName string,
) (compose.Runnable[map[string]any, T], error) {
	template := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.UserMessage("{input}"),
	)
	parser := schema.NewMessageJSONParser[T](&schema.MessageJSONParseConfig{
		ParseFrom: schema.MessageParseFromContent,
	})

	graph := compose.NewGraph[map[string]any, T]()
	if err := graph.AddChatTemplateNode("render_prompt", template); err != nil {
		return nil, fmt.Errorf("add node render_prompt: %w", err)
	}
	if err := graph.AddChatModelNode("call_model", chatModel); err != nil {
		return nil, fmt.Errorf("add node call_model: %w", err)
	}
	if err := graph.AddLambdaNode("unfence",
		compose.InvokableLambda(func(ctx context.Context, msg *schema.Message) (*schema.Message, error) {
			if msg == nil {
				return nil, fmt.Errorf("%w: empty model response", contractx.ErrSchemaViolation)
			}
			out := *msg
			out.Content = stripCodeFence(msg.Content)
			return &out, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node unfence: %w", err)
	}
	if err := graph.AddLambdaNode("decode_json",
		compose.InvokableLambda(func(ctx context.Context, msg *schema.Message) (T, error) {
			v, err := parser.Parse(ctx, msg)
			if err != nil {
				return v, fmt.Errorf("%w: %v", contractx.ErrSchemaViolation, err)
			}
			return v, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node decode_json: %w", err)
	}

	chain := []string{compose.START, "render_prompt", "call_model", "unfence", "decode_json", compose.END}
	for i := 1; i < len(chain); i++ {
		if err := graph.AddEdge(chain[i-1], chain[i]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", chain[i-1], chain[i], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName(graphName))
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", graphName, err)
	}
	return runner, nil
}

// stripCodeFence removes a surrounding markdown code fence, which some models add
// around JSON despite instructions.
func stripCodeFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		t = t[nl+1:]
	} else {
		t = strings.TrimPrefix(t, "json")
	}
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}
