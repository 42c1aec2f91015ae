package contract

import (
	"encoding/json"
	"time"
)

type AgentType string

const (
	AgentTypePlanner    AgentType = "planner"
	AgentTypeExtractor  AgentType = "extractor"
	AgentTypeConsultant AgentType = "consultant"
	AgentTypeStrategist AgentType = "strategist"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Turn is one transcript entry. Tool turns carry the capability call they record.
type Turn struct {
	Role    Role            `json:"role"`
	Content string          `json:"content"`
	At      time.Time       `json:"at"`
	Call    *CapabilityCall `json:"call,omitempty"`
}

type SideEffect string

const (
	SideEffectPure     SideEffect = "pure"
	SideEffectMutating SideEffect = "mutating"
)

// CapabilityCall records a single dispatch. It is never modified after the registry returns it.
type CapabilityCall struct {
	ID         string            `json:"id"`
	Capability string            `json:"capability"`
	Arguments  map[string]any    `json:"arguments,omitempty"`
	Result     *CapabilityResult `json:"result,omitempty"`
	Error      *CapabilityError  `json:"error,omitempty"`
	Latency    time.Duration     `json:"latency"`
	SideEffect SideEffect        `json:"side_effect"`
	Forced     bool              `json:"forced,omitempty"`
	At         time.Time         `json:"at"`
}

func (c *CapabilityCall) Failed() bool {
	return c != nil && c.Error != nil
}

// Observation is the text fed back to the planner for this call.
func (c *CapabilityCall) Observation() string {
	if c == nil {
		return ""
	}
	if c.Error != nil {
		return "error: " + c.Error.Error()
	}
	if c.Result != nil {
		return c.Result.Content
	}
	return ""
}

type CapabilityResult struct {
	Content      string            `json:"content"`
	Data         json.RawMessage   `json:"data,omitempty"`
	ProfilePatch map[string]string `json:"profile_patch,omitempty"`
	Insights     []string          `json:"insights,omitempty"`
	Plan         *ActionPlan       `json:"plan,omitempty"`
}

type ActionStep struct {
	Step                  int     `json:"step"`
	Title                 string  `json:"title"`
	Description           string  `json:"description"`
	EstimatedCostUSD      float64 `json:"estimated_cost_usd"`
	EstimatedTimelineDays int     `json:"estimated_timeline_days"`
}

type SavingsTactic struct {
	Tactic                     string  `json:"tactic"`
	EstimatedMonthlySavingsUSD float64 `json:"estimated_monthly_savings_usd"`
	ImplementationNotes        string  `json:"implementation_notes"`
}

type ActionPlan struct {
	Initiative  string          `json:"initiative"`
	ActionSteps []ActionStep    `json:"action_steps"`
	Savings     []SavingsTactic `json:"savings"`
	Summary     string          `json:"summary"`
}

type DecisionKind string

const (
	DecisionInvokeCapability DecisionKind = "invoke_capability"
	DecisionFinalReply       DecisionKind = "final_reply"
)

// Decision is what the planner proposes for one loop iteration.
type Decision struct {
	Kind       DecisionKind   `json:"kind"`
	Capability string         `json:"capability,omitempty"`
	Arguments  map[string]any `json:"arguments,omitempty"`
	Reply      string         `json:"reply,omitempty"`
}

func InvokeCapability(name string, args map[string]any) Decision {
	return Decision{Kind: DecisionInvokeCapability, Capability: name, Arguments: args}
}

func FinalReply(text string) Decision {
	return Decision{Kind: DecisionFinalReply, Reply: text}
}

type ParamType string

const (
	ParamString  ParamType = "string"
	ParamInteger ParamType = "integer"
	ParamNumber  ParamType = "number"
	ParamBoolean ParamType = "boolean"
	ParamArray   ParamType = "array"
	ParamObject  ParamType = "object"
)

type ParamSpec struct {
	Name     string    `json:"name"`
	Type     ParamType `json:"type"`
	Desc     string    `json:"desc,omitempty"`
	Required bool      `json:"required"`
}

// CapabilityInfo is the planner-facing view of a registered capability.
type CapabilityInfo struct {
	Name       string      `json:"name"`
	Desc       string      `json:"desc"`
	Params     []ParamSpec `json:"params,omitempty"`
	SideEffect SideEffect  `json:"side_effect"`
}

type PlannerRequest struct {
	ThreadKey    string            `json:"thread_key"`
	Transcript   []Turn            `json:"transcript"`
	Profile      map[string]string `json:"profile"`
	Missing      []string          `json:"missing,omitempty"`
	Insights     []string          `json:"insights,omitempty"`
	Capabilities []CapabilityInfo  `json:"capabilities"`
	Iteration    int               `json:"iteration"`
	Now          time.Time         `json:"now"`
}

type ExtractionRequest struct {
	Message    string            `json:"message"`
	Profile    map[string]string `json:"profile"`
	Transcript []Turn            `json:"transcript,omitempty"`
}

type ExtractionResponse struct {
	Fields    map[string]string `json:"fields,omitempty"`
	Insights  []string          `json:"insights,omitempty"`
	NextTopic string            `json:"next_topic,omitempty"`
}

type ConsultationRequest struct {
	Question string            `json:"question"`
	Profile  map[string]string `json:"profile"`
	Insights []string          `json:"insights,omitempty"`
	Plan     *ActionPlan       `json:"plan,omitempty"`
}

type ActionPlanRequest struct {
	InitiativeSummary string            `json:"initiative_summary"`
	Profile           map[string]string `json:"profile"`
}

// TurnEvent is published after a turn is durably saved.
type TurnEvent struct {
	ThreadKey string    `json:"thread_key"`
	Version   int64     `json:"version"`
	Reply     string    `json:"reply"`
	Degraded  bool      `json:"degraded"`
	At        time.Time `json:"at"`
}
