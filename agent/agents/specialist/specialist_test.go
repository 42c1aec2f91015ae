package specialist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/contract"
)

type fakeToolCallingModel struct {
	mu        sync.Mutex
	responses []*schema.Message
	err       error
	idx       int
	inputs    [][]*schema.Message
	tools     []*schema.ToolInfo
}

func (f *fakeToolCallingModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	if f.idx >= len(f.responses) {
		return nil, errors.New("no fake response left")
	}
	msg := f.responses[f.idx]
	f.idx++
	return msg, nil
}

func (f *fakeToolCallingModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not implemented in fake model")
}

func (f *fakeToolCallingModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	f.mu.Lock()
	f.tools = tools
	f.mu.Unlock()
	return f, nil
}

func plannerRequest() contractx.PlannerRequest {
	return contractx.PlannerRequest{
		ThreadKey: "t1",
		Transcript: []contractx.Turn{
			{Role: contractx.RoleUser, Content: "My company is called Pollos Hermanos"},
			{Role: contractx.RoleTool, Call: &contractx.CapabilityCall{
				ID:         "call-1",
				Capability: "extract_business_info",
				Arguments:  map[string]any{"message": "My company is called Pollos Hermanos"},
				Result:     &contractx.CapabilityResult{Content: "Recorded: business_name"},
			}},
		},
		Profile: map[string]string{"business_name": "Pollos Hermanos"},
		Missing: []string{"industry", "primary_goal"},
		Capabilities: []contractx.CapabilityInfo{{
			Name:   "extract_business_info",
			Desc:   "extract",
			Params: []contractx.ParamSpec{{Name: "message", Type: contractx.ParamString, Required: true}},
		}},
		Iteration: 2,
		Now:       time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC),
	}
}

func TestPlannerPlanToolCall(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{{
			Role: schema.Assistant,
			ToolCalls: []schema.ToolCall{
				{ID: "x", Function: schema.FunctionCall{Name: "check_business_info_completeness", Arguments: ""}},
				{ID: "y", Function: schema.FunctionCall{Name: "ignored", Arguments: "{}"}},
			},
		}},
	}
	planner, err := newPlanner(context.Background(), fake, "planner prompt")
	if err != nil {
		t.Fatalf("newPlanner() error = %v", err)
	}

	out, err := planner.Plan(context.Background(), plannerRequest())
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if out.Kind != contractx.DecisionInvokeCapability || out.Capability != "check_business_info_completeness" {
		t.Fatalf("unexpected decision: %+v", out)
	}
	if len(fake.tools) != 1 || fake.tools[0].Name != "extract_business_info" {
		t.Fatalf("tools bound = %v", fake.tools)
	}

	msgs := fake.inputs[0]
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages (system, user, tool call, tool result), got %d", len(msgs))
	}
	if msgs[2].Role != schema.Assistant || len(msgs[2].ToolCalls) != 1 || msgs[2].ToolCalls[0].ID != "call-1" {
		t.Fatalf("unexpected tool call message: %+v", msgs[2])
	}
	if msgs[3].Role != schema.Tool || msgs[3].ToolCallID != "call-1" || msgs[3].Content != "Recorded: business_name" {
		t.Fatalf("unexpected tool result message: %+v", msgs[3])
	}
}

func TestPlannerPlanFinalReply(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{{Role: schema.Assistant, Content: "  What industry are you in?  "}},
	}
	planner, err := newPlanner(context.Background(), fake, "planner prompt")
	if err != nil {
		t.Fatalf("newPlanner() error = %v", err)
	}

	out, err := planner.Plan(context.Background(), plannerRequest())
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if out.Kind != contractx.DecisionFinalReply || out.Reply != "What industry are you in?" {
		t.Fatalf("unexpected decision: %+v", out)
	}
}

func TestPlannerPlanSchemaFailure(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{{Role: schema.Assistant, Content: "   "}},
	}
	planner, err := newPlanner(context.Background(), fake, "planner prompt")
	if err != nil {
		t.Fatalf("newPlanner() error = %v", err)
	}

	_, err = planner.Plan(context.Background(), plannerRequest())
	if !errors.Is(err, contractx.ErrSchemaViolation) {
		t.Fatalf("expected ErrSchemaViolation, got %v", err)
	}
}

func TestPlannerPlanModelFailure(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{err: errors.New("rate limited")}
	planner, err := newPlanner(context.Background(), fake, "planner prompt")
	if err != nil {
		t.Fatalf("newPlanner() error = %v", err)
	}

	_, err = planner.Plan(context.Background(), plannerRequest())
	if !errors.Is(err, contractx.ErrModelInvoke) {
		t.Fatalf("expected ErrModelInvoke, got %v", err)
	}
}

func TestToDecisionInvalidArguments(t *testing.T) {
	t.Parallel()

	_, err := toDecision(&schema.Message{ToolCalls: []schema.ToolCall{{Function: schema.FunctionCall{Name: "x", Arguments: "{not json"}}}})
	if !errors.Is(err, contractx.ErrSchemaViolation) {
		t.Fatalf("toDecision() error = %v, want ErrSchemaViolation", err)
	}
}

func TestPlannerContextListsMissingAttributes(t *testing.T) {
	t.Parallel()

	got := plannerContext(plannerRequest())
	want := []string{"- business_name: Pollos Hermanos", "Missing required attributes: industry, primary_goal", "Loop iteration: 2"}
	for _, w := range want {
		if !contains(got, w) {
			t.Fatalf("plannerContext() missing %q in:\n%s", w, got)
		}
	}
}

func TestExtractorExtract(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{{
			Content: `{"fields":{"business_name":"Pollos Hermanos","employees":12,"products_services":["fried chicken","sides"],"industry":null},"insights":["Family run"],"next_topic":"primary_goal"}`,
		}},
	}
	ext, err := newExtractor(context.Background(), fake, "extractor prompt")
	if err != nil {
		t.Fatalf("newExtractor() error = %v", err)
	}

	out, err := ext.Extract(context.Background(), contractx.ExtractionRequest{Message: "We are Pollos Hermanos"})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if out.Fields["business_name"] != "Pollos Hermanos" || out.Fields["employees"] != "12" {
		t.Fatalf("unexpected fields: %v", out.Fields)
	}
	if out.Fields["products_services"] != "fried chicken, sides" {
		t.Fatalf("products_services = %q", out.Fields["products_services"])
	}
	if _, ok := out.Fields["industry"]; ok {
		t.Fatal("null field must be dropped")
	}
	if out.NextTopic != "primary_goal" || len(out.Insights) != 1 {
		t.Fatalf("unexpected response: %+v", out)
	}
}

func TestExtractorRejectsEmptyMessage(t *testing.T) {
	t.Parallel()

	ext, err := newExtractor(context.Background(), &fakeToolCallingModel{}, "extractor prompt")
	if err != nil {
		t.Fatalf("newExtractor() error = %v", err)
	}
	if _, err := ext.Extract(context.Background(), contractx.ExtractionRequest{Message: " "}); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Extract() error = %v, want ErrValidation", err)
	}
}

func TestConsultantConsult(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{{Content: `{"advice":"Open a food truck first."}`}},
	}
	c, err := newConsultant(context.Background(), fake, "consultant prompt")
	if err != nil {
		t.Fatalf("newConsultant() error = %v", err)
	}
	advice, err := c.Consult(context.Background(), contractx.ConsultationRequest{Question: "How can I expand?"})
	if err != nil {
		t.Fatalf("Consult() error = %v", err)
	}
	if advice != "Open a food truck first." {
		t.Fatalf("Consult() = %q", advice)
	}
}

func TestConsultantEmptyAdviceIsSchemaViolation(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{responses: []*schema.Message{{Content: `{"advice":""}`}}}
	c, err := newConsultant(context.Background(), fake, "consultant prompt")
	if err != nil {
		t.Fatalf("newConsultant() error = %v", err)
	}
	if _, err := c.Consult(context.Background(), contractx.ConsultationRequest{Question: "q"}); !errors.Is(err, contractx.ErrSchemaViolation) {
		t.Fatalf("Consult() error = %v, want ErrSchemaViolation", err)
	}
}

func TestConsultantAcceptsFencedJSON(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{{Content: "```json\n{\"advice\":\"Track food cost weekly.\"}\n```"}},
	}
	c, err := newConsultant(context.Background(), fake, "consultant prompt")
	if err != nil {
		t.Fatalf("newConsultant() error = %v", err)
	}
	advice, err := c.Consult(context.Background(), contractx.ConsultationRequest{Question: "How do I cut costs?"})
	if err != nil {
		t.Fatalf("Consult() error = %v", err)
	}
	if advice != "Track food cost weekly." {
		t.Fatalf("Consult() = %q", advice)
	}
}

func TestStripCodeFence(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		`{"a":1}`:                 `{"a":1}`,
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}```":        `{"a":1}`,
		"  ```json{\"a\":1}``` ":    `{"a":1}`,
	}
	for in, want := range cases {
		if got := stripCodeFence(in); got != want {
			t.Fatalf("stripCodeFence(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStrategistCreatePlanNumbersSteps(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{{
			Content: `{"initiative":"Second branch","action_steps":[{"title":"Scout"},{"title":"Lease"}],"savings":[{"tactic":"Shared suppliers","estimated_monthly_savings_usd":250}],"summary":"Go"}`,
		}},
	}
	s, err := newStrategist(context.Background(), fake, "strategist prompt")
	if err != nil {
		t.Fatalf("newStrategist() error = %v", err)
	}
	plan, err := s.CreatePlan(context.Background(), contractx.ActionPlanRequest{InitiativeSummary: "Open a second branch"})
	if err != nil {
		t.Fatalf("CreatePlan() error = %v", err)
	}
	if len(plan.ActionSteps) != 2 || plan.ActionSteps[1].Step != 2 {
		t.Fatalf("unexpected steps: %+v", plan.ActionSteps)
	}
	if plan.Savings[0].EstimatedMonthlySavingsUSD != 250 {
		t.Fatalf("unexpected savings: %+v", plan.Savings)
	}
}

func contains(s, sub string) bool {
	return len(sub) == 0 || (len(s) >= len(sub) && indexOf(s, sub) >= 0)
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
