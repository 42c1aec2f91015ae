package state

import (
	"reflect"
	"testing"
	"time"

	contractx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/contract"
)

func TestMissingAttributesPolicyOrder(t *testing.T) {
	t.Parallel()

	got := MissingAttributes(BusinessProfile{AttrIndustry: "restaurant"})
	want := []string{AttrBusinessName, AttrPrimaryGoal}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("MissingAttributes() = %v, want %v", got, want)
	}
	if IsComplete(BusinessProfile{AttrIndustry: "restaurant"}) {
		t.Fatal("IsComplete() = true, want false")
	}
}

func TestIsCompleteTreatsWhitespaceAsMissing(t *testing.T) {
	t.Parallel()

	p := BusinessProfile{
		AttrBusinessName: "Los Pollos Hermanos",
		AttrIndustry:     "restaurant",
		AttrPrimaryGoal:  "  ",
	}
	if IsComplete(p) {
		t.Fatal("IsComplete() = true, want false")
	}
	p[AttrPrimaryGoal] = "open a second branch"
	if !IsComplete(p) {
		t.Fatal("IsComplete() = false, want true")
	}
}

func TestMergeNeverClearsKnownAttributes(t *testing.T) {
	t.Parallel()

	base := BusinessProfile{AttrBusinessName: "Los Pollos Hermanos", AttrIndustry: "restaurant"}
	got := Merge(base, map[string]string{
		AttrBusinessName: "",
		"Primary Goal":   " expand delivery ",
		"":               "ignored",
	})

	if got[AttrBusinessName] != "Los Pollos Hermanos" {
		t.Fatalf("business_name = %q, want preserved", got[AttrBusinessName])
	}
	if got[AttrPrimaryGoal] != "expand delivery" {
		t.Fatalf("primary_goal = %q, want %q", got[AttrPrimaryGoal], "expand delivery")
	}
	if _, ok := got[""]; ok {
		t.Fatal("Merge() kept empty attribute name")
	}
	if _, ok := base[AttrPrimaryGoal]; ok {
		t.Fatal("Merge() mutated its input")
	}
}

func TestMergeIsMonotonic(t *testing.T) {
	t.Parallel()

	p := BusinessProfile{}
	patches := []map[string]string{
		{AttrBusinessName: "Acme"},
		{AttrIndustry: "retail", AttrBusinessName: " "},
		{AttrPrimaryGoal: "grow", AttrIndustry: "e-commerce"},
	}
	for _, patch := range patches {
		next := Merge(p, patch)
		for k := range p {
			if next[k] == "" {
				t.Fatalf("attribute %s was cleared by %v", k, patch)
			}
		}
		p = next
	}
	if p[AttrIndustry] != "e-commerce" || !IsComplete(p) {
		t.Fatalf("final profile = %v", p)
	}
}

func TestConversationThreadAddInsightsDeduplicates(t *testing.T) {
	t.Parallel()

	th := NewConversationThread("t", time.Now())
	th.AddInsights([]string{"Prefers organic growth", " ", "prefers organic growth", "Budget is tight"})
	want := []string{"Prefers organic growth", "Budget is tight"}
	if !reflect.DeepEqual(th.Insights, want) {
		t.Fatalf("Insights = %v, want %v", th.Insights, want)
	}
}

func TestConversationThreadCloneIsDeep(t *testing.T) {
	t.Parallel()

	th := NewConversationThread("t", time.Now())
	th.Append(contractx.Turn{Role: contractx.RoleUser, Content: "hi"})
	th.MergeProfile(map[string]string{AttrIndustry: "retail"})
	th.CurrentPlan = &contractx.ActionPlan{Initiative: "delivery"}

	cp := th.Clone()
	cp.Append(contractx.Turn{Role: contractx.RoleAssistant, Content: "hello"})
	cp.Profile[AttrIndustry] = "food"
	cp.CurrentPlan.Initiative = "catering"

	if len(th.Transcript) != 1 || th.Profile[AttrIndustry] != "retail" || th.CurrentPlan.Initiative != "delivery" {
		t.Fatalf("Clone() shares state with original: %+v", th)
	}
}

func TestConversationThreadValidate(t *testing.T) {
	t.Parallel()

	th := NewConversationThread("t", time.Now())
	th.Append(contractx.Turn{Role: contractx.RoleTool, Content: "orphan"})
	if err := th.Validate(); err == nil {
		t.Fatal("Validate() error = nil, want tool turn without call to fail")
	}

	th = NewConversationThread("t", time.Now())
	th.Append(contractx.Turn{Role: "system", Content: "x"})
	if err := th.Validate(); err == nil {
		t.Fatal("Validate() error = nil, want unknown role to fail")
	}
}
