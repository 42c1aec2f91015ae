package tool

import (
	"time"

	contractx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/contract"
)

// Collaborators are the backends capabilities delegate to. Nil members leave their
// capability out of the catalogue.
type Collaborators struct {
	Extractor  contractx.Extractor
	Consultant contractx.Consultant
	Strategist contractx.Strategist
	Market     MarketSearcher
	Knowledge  KnowledgeSearcher
}

// BuildCatalog registers every capability whose backend is configured.
// The completeness check has no backend and is always present.
func BuildCatalog(c Collaborators, callTimeout time.Duration) (*Registry, error) {
	b := NewBuilder(callTimeout)
	if c.Extractor != nil {
		b.Register(ExtractBusinessInfo(c.Extractor))
	}
	b.Register(CheckCompleteness())
	if c.Consultant != nil {
		b.Register(ProvideConsultation(c.Consultant))
	}
	if c.Market != nil {
		b.Register(MarketResearch(c.Market))
	}
	if c.Knowledge != nil {
		b.Register(SearchKnowledge(c.Knowledge))
	}
	if c.Strategist != nil {
		b.Register(CreateActionPlan(c.Strategist))
	}
	return b.Build()
}
