package specialist

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/contract"
	llmx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/llm"
	promptx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/prompt"
)

type registryImpl struct {
	planner    contractx.Planner
	extractor  contractx.Extractor
	consultant contractx.Consultant
	strategist contractx.Strategist
}

func (r *registryImpl) Planner() contractx.Planner {
	return r.planner
}

func (r *registryImpl) Extractor() contractx.Extractor {
	return r.extractor
}

func (r *registryImpl) Consultant() contractx.Consultant {
	return r.consultant
}

func (r *registryImpl) Strategist() contractx.Strategist {
	return r.strategist
}

func NewRegistry(ctx context.Context, cfg llmx.Config) (contractx.Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	prompts, err := promptx.LoadPromptSet()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrPromptMissing, err)
	}

	plannerModelCfg := cfg.OpenRouterFor(contractx.AgentTypePlanner)
	plannerModel, err := plannerModelCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create planner model: %v", contractx.ErrModelInvoke, err)
	}
	extractorModelCfg := cfg.OpenRouterFor(contractx.AgentTypeExtractor)
	extractorModel, err := extractorModelCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create extractor model: %v", contractx.ErrModelInvoke, err)
	}
	consultantModelCfg := cfg.OpenRouterFor(contractx.AgentTypeConsultant)
	consultantModel, err := consultantModelCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create consultant model: %v", contractx.ErrModelInvoke, err)
	}
	strategistModelCfg := cfg.OpenRouterFor(contractx.AgentTypeStrategist)
	strategistModel, err := strategistModelCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create strategist model: %v", contractx.ErrModelInvoke, err)
	}

	planner, err := newPlanner(ctx, plannerModel, prompts.Planner)
	if err != nil {
		return nil, err
	}
	extractor, err := newExtractor(ctx, extractorModel, prompts.Extractor)
	if err != nil {
		return nil, err
	}
	consultant, err := newConsultant(ctx, consultantModel, prompts.Consultant)
	if err != nil {
		return nil, err
	}
	strategist, err := newStrategist(ctx, strategistModel, prompts.Strategist)
	if err != nil {
		return nil, err
	}

	return &registryImpl{
		planner:    planner,
		extractor:  extractor,
		consultant: consultant,
		strategist: strategist,
	}, nil
}
