package specialist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	contractx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/contract"
)

const maxExtractorTurns = 6

type extractorLLMOutput struct {
	Fields    map[string]any `json:"fields,omitempty"`
	Insights  []string       `json:"insights,omitempty"`
	NextTopic string         `json:"next_topic,omitempty"`
}

type extractorImpl struct {
	runner compose.Runnable[map[string]any, extractorLLMOutput]
}

func newExtractor(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*extractorImpl, error) {
	runner, err := compileStructuredLLMGraph[extractorLLMOutput](ctx, chatModel, systemPrompt, "extractor.structured_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: compile extractor graph: %v", contractx.ErrModelInvoke, err)
	}
	return &extractorImpl{runner: runner}, nil
}

func (e *extractorImpl) Extract(ctx context.Context, req contractx.ExtractionRequest) (contractx.ExtractionResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		return contractx.ExtractionResponse{}, fmt.Errorf("%w: message is required", contractx.ErrValidation)
	}

	recent := make([]map[string]string, 0, maxExtractorTurns)
	turns := req.Transcript
	if len(turns) > maxExtractorTurns {
		turns = turns[len(turns)-maxExtractorTurns:]
	}
	for _, t := range turns {
		if t.Role == contractx.RoleTool {
			continue
		}
		recent = append(recent, map[string]string{"role": string(t.Role), "content": t.Content})
	}

	out, err := invokeStructured(ctx, e.runner, map[string]any{
		"latest_message":  req.Message,
		"current_profile": req.Profile,
		"recent_turns":    recent,
	})
	if err != nil {
		return contractx.ExtractionResponse{}, err
	}

	fields := make(map[string]string, len(out.Fields))
	for k, v := range out.Fields {
		if s := stringifyField(v); s != "" {
			fields[k] = s
		}
	}
	return contractx.ExtractionResponse{
		Fields:    fields,
		Insights:  out.Insights,
		NextTopic: strings.TrimSpace(out.NextTopic),
	}, nil
}

func stringifyField(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case []any:
		parts := make([]string, 0, len(x))
		for _, it := range x {
			if s := stringifyField(it); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

type consultantLLMOutput struct {
	Advice string `json:"advice"`
}

type consultantImpl struct {
	runner compose.Runnable[map[string]any, consultantLLMOutput]
}

func newConsultant(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*consultantImpl, error) {
	runner, err := compileStructuredLLMGraph[consultantLLMOutput](ctx, chatModel, systemPrompt, "consultant.structured_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: compile consultant graph: %v", contractx.ErrModelInvoke, err)
	}
	return &consultantImpl{runner: runner}, nil
}

func (c *consultantImpl) Consult(ctx context.Context, req contractx.ConsultationRequest) (string, error) {
	if strings.TrimSpace(req.Question) == "" {
		return "", fmt.Errorf("%w: question is required", contractx.ErrValidation)
	}
	out, err := invokeStructured(ctx, c.runner, map[string]any{
		"question":     req.Question,
		"profile":      req.Profile,
		"insights":     req.Insights,
		"current_plan": req.Plan,
	})
	if err != nil {
		return "", err
	}
	advice := strings.TrimSpace(out.Advice)
	if advice == "" {
		return "", fmt.Errorf("%w: advice is empty", contractx.ErrSchemaViolation)
	}
	return advice, nil
}

type strategistImpl struct {
	runner compose.Runnable[map[string]any, contractx.ActionPlan]
}

func newStrategist(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*strategistImpl, error) {
	runner, err := compileStructuredLLMGraph[contractx.ActionPlan](ctx, chatModel, systemPrompt, "strategist.structured_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: compile strategist graph: %v", contractx.ErrModelInvoke, err)
	}
	return &strategistImpl{runner: runner}, nil
}

func (s *strategistImpl) CreatePlan(ctx context.Context, req contractx.ActionPlanRequest) (contractx.ActionPlan, error) {
	if strings.TrimSpace(req.InitiativeSummary) == "" {
		return contractx.ActionPlan{}, fmt.Errorf("%w: initiative summary is required", contractx.ErrValidation)
	}
	plan, err := invokeStructured(ctx, s.runner, map[string]any{
		"initiative_summary": req.InitiativeSummary,
		"profile":            req.Profile,
	})
	if err != nil {
		return contractx.ActionPlan{}, err
	}
	for i := range plan.ActionSteps {
		if plan.ActionSteps[i].Step <= 0 {
			plan.ActionSteps[i].Step = i + 1
		}
	}
	return plan, nil
}

func invokeStructured[T any](ctx context.Context, runner compose.Runnable[map[string]any, T], payload map[string]any) (T, error) {
	var zero T
	input, err := json.Marshal(payload)
	if err != nil {
		return zero, fmt.Errorf("%w: marshal payload: %v", contractx.ErrValidation, err)
	}
	out, err := runner.Invoke(ctx, map[string]any{
		"input": string(input),
	})
	if err != nil {
		return zero, fmt.Errorf("%w: %w", contractx.ErrModelInvoke, err)
	}
	return out, nil
}
