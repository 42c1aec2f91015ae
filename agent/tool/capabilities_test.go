package tool

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	contractx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/contract"
	"github.com/tanpawarit/Kumak-Business-Orchestrator/agent/state"
	"github.com/tanpawarit/Kumak-Business-Orchestrator/pkg/vectorstore"
	"github.com/tanpawarit/Kumak-Business-Orchestrator/pkg/websearch"
)

type fakeExtractor struct {
	resp contractx.ExtractionResponse
	got  contractx.ExtractionRequest
}

func (f *fakeExtractor) Extract(_ context.Context, req contractx.ExtractionRequest) (contractx.ExtractionResponse, error) {
	f.got = req
	return f.resp, nil
}

type fakeConsultant struct{ advice string }

func (f fakeConsultant) Consult(context.Context, contractx.ConsultationRequest) (string, error) {
	return f.advice, nil
}

type fakeStrategist struct{ plan contractx.ActionPlan }

func (f fakeStrategist) CreatePlan(context.Context, contractx.ActionPlanRequest) (contractx.ActionPlan, error) {
	return f.plan, nil
}

type fakeMarket struct{ got websearch.SearchRequest }

func (f *fakeMarket) Search(_ context.Context, req websearch.SearchRequest) (websearch.SearchResult, error) {
	f.got = req
	return websearch.SearchResult{
		Query:   req.Query,
		Results: []websearch.ResultItem{{Title: "Chicken index", URL: "https://x.test", Snippet: "up 4%"}},
	}, nil
}

type fakeKnowledge struct{}

func (fakeKnowledge) Search(context.Context, string, int) ([]vectorstore.Document, error) {
	return []vectorstore.Document{{ID: "kb-1", Title: "Franchising 101", Content: "Start with one unit.", Score: 0.91}}, nil
}

func TestExtractBusinessInfoReturnsProfilePatch(t *testing.T) {
	t.Parallel()

	ext := &fakeExtractor{resp: contractx.ExtractionResponse{
		Fields:    map[string]string{"Business Name": "Pollos Hermanos", "products_services": "fried chicken", "industry": " "},
		Insights:  []string{"Sells fried chicken"},
		NextTopic: "industry",
	}}
	reg := mustBuild(t, NewBuilder(time.Second).Register(ExtractBusinessInfo(ext)))

	call := reg.Invoke(context.Background(), CapExtractBusinessInfo,
		map[string]any{"message": "My company is called Pollos Hermanos, we sell fried chicken"},
		Env{Profile: map[string]string{}})
	if call.Error != nil {
		t.Fatalf("Invoke() error = %v", call.Error)
	}
	if call.SideEffect != contractx.SideEffectMutating {
		t.Fatalf("SideEffect = %s, want mutating", call.SideEffect)
	}
	patch := call.Result.ProfilePatch
	if patch[state.AttrBusinessName] != "Pollos Hermanos" || patch[state.AttrProductsServices] != "fried chicken" {
		t.Fatalf("ProfilePatch = %v", patch)
	}
	if _, ok := patch[state.AttrIndustry]; ok {
		t.Fatal("blank industry must not be patched")
	}
	if !strings.Contains(call.Result.Content, "Still missing: industry, primary_goal") {
		t.Fatalf("Content = %q", call.Result.Content)
	}
	if ext.got.Message == "" {
		t.Fatal("extractor did not receive the message")
	}
}

func TestCheckCompleteness(t *testing.T) {
	t.Parallel()

	reg := mustBuild(t, NewBuilder(time.Second).Register(CheckCompleteness()))

	call := reg.Invoke(context.Background(), CapCheckCompleteness, nil, Env{Profile: map[string]string{state.AttrBusinessName: "Acme"}})
	if call.Error != nil {
		t.Fatalf("Invoke() error = %v", call.Error)
	}
	var report completenessReport
	if err := json.Unmarshal(call.Result.Data, &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if report.Complete || len(report.Missing) != 2 {
		t.Fatalf("report = %+v", report)
	}

	full := map[string]string{state.AttrBusinessName: "Acme", state.AttrIndustry: "retail", state.AttrPrimaryGoal: "grow"}
	call = reg.Invoke(context.Background(), CapCheckCompleteness, nil, Env{Profile: full})
	if !strings.HasPrefix(call.Result.Content, "complete") {
		t.Fatalf("Content = %q", call.Result.Content)
	}
}

func TestMarketResearchDefaultsMaxResults(t *testing.T) {
	t.Parallel()

	market := &fakeMarket{}
	reg := mustBuild(t, NewBuilder(time.Second).Register(MarketResearch(market)))

	call := reg.Invoke(context.Background(), CapMarketResearch, map[string]any{"query": "fried chicken demand"}, Env{})
	if call.Error != nil {
		t.Fatalf("Invoke() error = %v", call.Error)
	}
	if market.got.Count != defaultMarketResearchMax {
		t.Fatalf("Count = %d, want %d", market.got.Count, defaultMarketResearchMax)
	}
	if !strings.Contains(call.Result.Content, "Chicken index") {
		t.Fatalf("Content = %q", call.Result.Content)
	}
}

func TestCreateActionPlanCarriesPlan(t *testing.T) {
	t.Parallel()

	plan := contractx.ActionPlan{
		ActionSteps: []contractx.ActionStep{{Step: 1, Title: "Scout location", EstimatedTimelineDays: 14}},
		Savings:     []contractx.SavingsTactic{{Tactic: "Bulk buying", EstimatedMonthlySavingsUSD: 300}},
	}
	reg := mustBuild(t, NewBuilder(time.Second).Register(CreateActionPlan(fakeStrategist{plan: plan})))

	call := reg.Invoke(context.Background(), CapCreateActionPlan, map[string]any{"initiative_summary": "Open second branch"}, Env{})
	if call.Error != nil {
		t.Fatalf("Invoke() error = %v", call.Error)
	}
	if call.Result.Plan == nil || call.Result.Plan.Initiative != "Open second branch" {
		t.Fatalf("Plan = %+v", call.Result.Plan)
	}
	if !strings.Contains(call.Result.Content, "Scout location") {
		t.Fatalf("Content = %q", call.Result.Content)
	}
}

func TestProvideConsultationRejectsEmptyAdvice(t *testing.T) {
	t.Parallel()

	reg := mustBuild(t, NewBuilder(time.Second).Register(ProvideConsultation(fakeConsultant{advice: "  "})))
	call := reg.Invoke(context.Background(), CapProvideConsultation, map[string]any{"question": "How can I expand?"}, Env{})
	if call.Error == nil || call.Error.Kind != contractx.ErrorKindUpstream {
		t.Fatalf("Invoke() error = %v, want upstream", call.Error)
	}
}

func TestBuildCatalogSkipsUnconfiguredBackends(t *testing.T) {
	t.Parallel()

	reg, err := BuildCatalog(Collaborators{Consultant: fakeConsultant{advice: "x"}}, time.Second)
	if err != nil {
		t.Fatalf("BuildCatalog() error = %v", err)
	}
	names := reg.Names()
	if len(names) != 2 || names[0] != CapCheckCompleteness || names[1] != CapProvideConsultation {
		t.Fatalf("Names() = %v", names)
	}

	reg, err = BuildCatalog(Collaborators{
		Extractor:  &fakeExtractor{},
		Consultant: fakeConsultant{advice: "x"},
		Strategist: fakeStrategist{},
		Market:     &fakeMarket{},
		Knowledge:  fakeKnowledge{},
	}, time.Second)
	if err != nil {
		t.Fatalf("BuildCatalog() error = %v", err)
	}
	if len(reg.Catalogue()) != 6 {
		t.Fatalf("Catalogue() len = %d, want 6", len(reg.Catalogue()))
	}
	if !reg.Has(CapSearchKnowledge) {
		t.Fatal("knowledge capability missing")
	}
}
