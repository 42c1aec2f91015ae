package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/contract"
	"github.com/tanpawarit/Kumak-Business-Orchestrator/agent/state"
	"github.com/tanpawarit/Kumak-Business-Orchestrator/pkg/vectorstore"
	"github.com/tanpawarit/Kumak-Business-Orchestrator/pkg/websearch"
)

const (
	CapExtractBusinessInfo   = "extract_business_info"
	CapMarketResearch        = "perform_market_research"
	CapSearchKnowledge       = "search_business_knowledge"
	CapCheckCompleteness     = "check_business_info_completeness"
	CapProvideConsultation   = "provide_business_consultation"
	CapCreateActionPlan      = "create_action_plan"
	defaultMarketResearchMax = 5
)

type MarketSearcher interface {
	Search(ctx context.Context, req websearch.SearchRequest) (websearch.SearchResult, error)
}

type KnowledgeSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]vectorstore.Document, error)
}

func ExtractBusinessInfo(extractor contractx.Extractor) Descriptor {
	return Descriptor{
		Name: CapExtractBusinessInfo,
		Desc: "Extract business facts (name, industry, goals, challenges...) and long-term insights from the user's message and record them in the business profile.",
		Params: []contractx.ParamSpec{
			{Name: "message", Type: contractx.ParamString, Desc: "The user message to analyse", Required: true},
		},
		SideEffect: contractx.SideEffectMutating,
		Func: func(ctx context.Context, args map[string]any, env Env) (contractx.CapabilityResult, error) {
			resp, err := extractor.Extract(ctx, contractx.ExtractionRequest{
				Message:    args["message"].(string),
				Profile:    env.Profile,
				Transcript: env.Transcript,
			})
			if err != nil {
				return contractx.CapabilityResult{}, err
			}

			fields := make(map[string]string, len(resp.Fields))
			for k, v := range resp.Fields {
				if key, val := state.NormalizeAttribute(k), strings.TrimSpace(v); key != "" && val != "" {
					fields[key] = val
				}
			}
			merged := state.Merge(env.Profile, fields)

			var b strings.Builder
			if len(fields) == 0 {
				b.WriteString("No new business information found.")
			} else {
				b.WriteString("Recorded:")
				for _, k := range state.BusinessProfile(fields).Keys() {
					fmt.Fprintf(&b, " %s=%q;", k, fields[k])
				}
			}
			if missing := state.MissingAttributes(merged); len(missing) > 0 {
				fmt.Fprintf(&b, " Still missing: %s.", strings.Join(missing, ", "))
			} else {
				b.WriteString(" Profile is complete.")
			}
			if topic := strings.TrimSpace(resp.NextTopic); topic != "" {
				fmt.Fprintf(&b, " Suggested next topic: %s.", topic)
			}

			return contractx.CapabilityResult{
				Content:      b.String(),
				ProfilePatch: fields,
				Insights:     resp.Insights,
			}, nil
		},
	}
}

func MarketResearch(searcher MarketSearcher) Descriptor {
	return Descriptor{
		Name: CapMarketResearch,
		Desc: "Search the web for current market data, competitors and trends relevant to the user's business.",
		Params: []contractx.ParamSpec{
			{Name: "query", Type: contractx.ParamString, Desc: "Search query", Required: true},
			{Name: "max_results", Type: contractx.ParamInteger, Desc: "Number of results (1-10, default 5)"},
		},
		SideEffect: contractx.SideEffectPure,
		Func: func(ctx context.Context, args map[string]any, _ Env) (contractx.CapabilityResult, error) {
			count := defaultMarketResearchMax
			if n, ok := args["max_results"].(int); ok {
				count = n
			}
			res, err := searcher.Search(ctx, websearch.SearchRequest{Query: args["query"].(string), Count: count})
			if err != nil {
				return contractx.CapabilityResult{}, err
			}

			var b strings.Builder
			if res.Answer != "" {
				fmt.Fprintf(&b, "Summary: %s\n", res.Answer)
			}
			if len(res.Results) == 0 {
				b.WriteString("No market research results found.")
			}
			for i, item := range res.Results {
				fmt.Fprintf(&b, "%d. %s (%s)", i+1, item.Title, item.URL)
				if item.Snippet != "" {
					fmt.Fprintf(&b, ": %s", item.Snippet)
				}
				b.WriteByte('\n')
			}
			data, err := json.Marshal(res)
			if err != nil {
				return contractx.CapabilityResult{}, fmt.Errorf("%w: encode search result: %v", contractx.ErrCapabilityInternal, err)
			}
			return contractx.CapabilityResult{Content: strings.TrimSpace(b.String()), Data: data}, nil
		},
	}
}

func SearchKnowledge(searcher KnowledgeSearcher) Descriptor {
	return Descriptor{
		Name: CapSearchKnowledge,
		Desc: "Retrieve passages from the curated business knowledge base (playbooks, guides, case studies).",
		Params: []contractx.ParamSpec{
			{Name: "query", Type: contractx.ParamString, Desc: "What to look up", Required: true},
			{Name: "top_k", Type: contractx.ParamInteger, Desc: "Number of passages (default 4)"},
		},
		SideEffect: contractx.SideEffectPure,
		Func: func(ctx context.Context, args map[string]any, _ Env) (contractx.CapabilityResult, error) {
			topK, _ := args["top_k"].(int)
			docs, err := searcher.Search(ctx, args["query"].(string), topK)
			if err != nil {
				return contractx.CapabilityResult{}, err
			}
			if len(docs) == 0 {
				return contractx.CapabilityResult{Content: "No relevant knowledge found."}, nil
			}

			var b strings.Builder
			for i, d := range docs {
				title := d.Title
				if title == "" {
					title = d.ID
				}
				fmt.Fprintf(&b, "[%d] %s (score %.2f)\n%s\n", i+1, title, d.Score, strings.TrimSpace(d.Content))
			}
			data, err := json.Marshal(docs)
			if err != nil {
				return contractx.CapabilityResult{}, fmt.Errorf("%w: encode documents: %v", contractx.ErrCapabilityInternal, err)
			}
			return contractx.CapabilityResult{Content: strings.TrimSpace(b.String()), Data: data}, nil
		},
	}
}

type completenessReport struct {
	Complete bool     `json:"complete"`
	Missing  []string `json:"missing,omitempty"`
}

func CheckCompleteness() Descriptor {
	return Descriptor{
		Name:       CapCheckCompleteness,
		Desc:       "Check whether the business profile has every attribute required before giving consultation.",
		SideEffect: contractx.SideEffectPure,
		Func: func(_ context.Context, _ map[string]any, env Env) (contractx.CapabilityResult, error) {
			report := completenessReport{Missing: state.MissingAttributes(env.Profile)}
			report.Complete = len(report.Missing) == 0

			content := "complete: all required business information is present"
			if !report.Complete {
				content = "incomplete: missing " + strings.Join(report.Missing, ", ") + "; ask the user for these before consulting"
			}
			data, err := json.Marshal(report)
			if err != nil {
				return contractx.CapabilityResult{}, fmt.Errorf("%w: %v", contractx.ErrCapabilityInternal, err)
			}
			return contractx.CapabilityResult{Content: content, Data: data}, nil
		},
	}
}

func ProvideConsultation(consultant contractx.Consultant) Descriptor {
	return Descriptor{
		Name: CapProvideConsultation,
		Desc: "Produce tailored business advice for the user's question using the business profile and known insights.",
		Params: []contractx.ParamSpec{
			{Name: "question", Type: contractx.ParamString, Desc: "The business question to answer", Required: true},
		},
		SideEffect: contractx.SideEffectPure,
		Func: func(ctx context.Context, args map[string]any, env Env) (contractx.CapabilityResult, error) {
			advice, err := consultant.Consult(ctx, contractx.ConsultationRequest{
				Question: args["question"].(string),
				Profile:  env.Profile,
				Insights: env.Insights,
				Plan:     env.Plan,
			})
			if err != nil {
				return contractx.CapabilityResult{}, err
			}
			advice = strings.TrimSpace(advice)
			if advice == "" {
				return contractx.CapabilityResult{}, fmt.Errorf("%w: empty consultation", contractx.ErrCapabilityUpstream)
			}
			return contractx.CapabilityResult{Content: advice}, nil
		},
	}
}

func CreateActionPlan(strategist contractx.Strategist) Descriptor {
	return Descriptor{
		Name: CapCreateActionPlan,
		Desc: "Create a step-by-step action plan with cost-saving tactics for an initiative the user wants to pursue.",
		Params: []contractx.ParamSpec{
			{Name: "initiative_summary", Type: contractx.ParamString, Desc: "Short description of the initiative", Required: true},
		},
		SideEffect: contractx.SideEffectMutating,
		Func: func(ctx context.Context, args map[string]any, env Env) (contractx.CapabilityResult, error) {
			plan, err := strategist.CreatePlan(ctx, contractx.ActionPlanRequest{
				InitiativeSummary: args["initiative_summary"].(string),
				Profile:           env.Profile,
			})
			if err != nil {
				return contractx.CapabilityResult{}, err
			}
			if len(plan.ActionSteps) == 0 {
				return contractx.CapabilityResult{}, fmt.Errorf("%w: plan has no action steps", contractx.ErrCapabilityUpstream)
			}
			if plan.Initiative == "" {
				plan.Initiative = args["initiative_summary"].(string)
			}
			return contractx.CapabilityResult{Content: RenderActionPlan(plan), Plan: &plan}, nil
		},
	}
}

func RenderActionPlan(plan contractx.ActionPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Action plan: %s\n", plan.Initiative)
	for _, s := range plan.ActionSteps {
		fmt.Fprintf(&b, "%d. %s - %s (~$%.0f, %d days)\n", s.Step, s.Title, s.Description, s.EstimatedCostUSD, s.EstimatedTimelineDays)
	}
	if len(plan.Savings) > 0 {
		b.WriteString("Savings:\n")
		for _, t := range plan.Savings {
			fmt.Fprintf(&b, "- %s (~$%.0f/month)", t.Tactic, t.EstimatedMonthlySavingsUSD)
			if t.ImplementationNotes != "" {
				fmt.Fprintf(&b, ": %s", t.ImplementationNotes)
			}
			b.WriteByte('\n')
		}
	}
	if plan.Summary != "" {
		b.WriteString(plan.Summary)
	}
	return strings.TrimSpace(b.String())
}
