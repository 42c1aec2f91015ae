package contract

import "context"

// Planner proposes the next action of the reasoning loop. Its output is untrusted.
type Planner interface {
	Plan(ctx context.Context, req PlannerRequest) (Decision, error)
}

type Extractor interface {
	Extract(ctx context.Context, req ExtractionRequest) (ExtractionResponse, error)
}

type Consultant interface {
	Consult(ctx context.Context, req ConsultationRequest) (string, error)
}

type Strategist interface {
	CreatePlan(ctx context.Context, req ActionPlanRequest) (ActionPlan, error)
}

// Registry hands out the model-backed workers.
type Registry interface {
	Planner() Planner
	Extractor() Extractor
	Consultant() Consultant
	Strategist() Strategist
}

type TurnNotifier interface {
	NotifyTurn(ctx context.Context, ev TurnEvent) error
}
