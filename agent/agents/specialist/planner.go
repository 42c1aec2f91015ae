package specialist

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/contract"
	toolx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/tool"
)

const maxPlannerTurns = 40

type plannerImpl struct {
	runner compose.Runnable[contractx.PlannerRequest, contractx.Decision]
}

func newPlanner(ctx context.Context, chatModel einomodel.ToolCallingChatModel, systemPrompt string) (*plannerImpl, error) {
	runner, err := compilePlannerGraph(ctx, chatModel, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: compile planner graph: %v", contractx.ErrModelInvoke, err)
	}
	return &plannerImpl{runner: runner}, nil
}

func (p *plannerImpl) Plan(ctx context.Context, req contractx.PlannerRequest) (contractx.Decision, error) {
	if len(req.Transcript) == 0 {
		return contractx.Decision{}, fmt.Errorf("%w: transcript is empty", contractx.ErrValidation)
	}
	return p.runner.Invoke(ctx, req)
}

func toolInfosFor(catalogue []contractx.CapabilityInfo) []*schema.ToolInfo {
	if len(catalogue) == 0 {
		return nil
	}
	return toolx.ToolInfos(catalogue)
}

func renderPlannerMessages(systemPrompt string, req contractx.PlannerRequest) []*schema.Message {
	turns := req.Transcript
	if len(turns) > maxPlannerTurns {
		turns = turns[len(turns)-maxPlannerTurns:]
	}

	msgs := make([]*schema.Message, 0, len(turns)+2)
	msgs = append(msgs, schema.SystemMessage(systemPrompt+"\n\n"+plannerContext(req)))

	for _, turn := range turns {
		switch turn.Role {
		case contractx.RoleUser:
			msgs = append(msgs, schema.UserMessage(turn.Content))
		case contractx.RoleAssistant:
			msgs = append(msgs, schema.AssistantMessage(turn.Content, nil))
		case contractx.RoleTool:
			if turn.Call == nil {
				continue
			}
			args := "{}"
			if len(turn.Call.Arguments) > 0 {
				if raw, err := json.Marshal(turn.Call.Arguments); err == nil {
					args = string(raw)
				}
			}
			msgs = append(msgs,
				schema.AssistantMessage("", []schema.ToolCall{{
					ID:   turn.Call.ID,
					Type: "function",
					Function: schema.FunctionCall{
						Name:      turn.Call.Capability,
						Arguments: args,
					},
				}}),
				&schema.Message{
					Role:       schema.Tool,
					Content:    turn.Call.Observation(),
					ToolCallID: turn.Call.ID,
				},
			)
		}
	}
	return msgs
}

func plannerContext(req contractx.PlannerRequest) string {
	var b strings.Builder
	b.WriteString("Business profile:\n")
	if len(req.Profile) == 0 {
		b.WriteString("- (empty)\n")
	}
	keys := make([]string, 0, len(req.Profile))
	for k := range req.Profile {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", k, req.Profile[k])
	}
	if len(req.Missing) > 0 {
		fmt.Fprintf(&b, "Missing required attributes: %s\n", strings.Join(req.Missing, ", "))
	} else {
		b.WriteString("Profile is complete.\n")
	}
	if len(req.Insights) > 0 {
		b.WriteString("Known insights:\n")
		for _, it := range req.Insights {
			fmt.Fprintf(&b, "- %s\n", it)
		}
	}
	fmt.Fprintf(&b, "Loop iteration: %d\n", req.Iteration)
	if !req.Now.IsZero() {
		fmt.Fprintf(&b, "Current time: %s\n", req.Now.UTC().Format("2006-01-02 15:04 MST"))
	}
	return strings.TrimSpace(b.String())
}

// toDecision maps a model reply to a Decision. Only the first tool call is honoured.
func toDecision(msg *schema.Message) (contractx.Decision, error) {
	if msg == nil {
		return contractx.Decision{}, fmt.Errorf("%w: empty planner response", contractx.ErrSchemaViolation)
	}

	if len(msg.ToolCalls) > 0 {
		call := msg.ToolCalls[0]
		name := strings.TrimSpace(call.Function.Name)
		if name == "" {
			return contractx.Decision{}, fmt.Errorf("%w: tool call name is empty", contractx.ErrSchemaViolation)
		}
		args := map[string]any{}
		if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return contractx.Decision{}, fmt.Errorf("%w: invalid tool args for tool=%s: %v", contractx.ErrSchemaViolation, name, err)
			}
		}
		return contractx.InvokeCapability(name, args), nil
	}

	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return contractx.Decision{}, fmt.Errorf("%w: planner returned neither tool call nor reply", contractx.ErrSchemaViolation)
	}
	return contractx.FinalReply(content), nil
}
