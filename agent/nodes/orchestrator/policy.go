package orchestratornode

import (
	contractx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/contract"
	statex "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/state"
	toolx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/tool"
)

// cycleFacts tracks which successful calls happened in the current cycle.
type cycleFacts struct {
	checked bool
}

func (c *cycleFacts) observe(call contractx.CapabilityCall) {
	if call.Failed() {
		return
	}
	if call.Capability == toolx.CapCheckCompleteness {
		c.checked = true
	}
}

// needsCompletenessCheck reports whether a final reply must be held back.
// No reply reaches an incomplete profile before completeness was checked this cycle; the planner's
// wording is not trusted to tell advice apart from a follow-up question.
func needsCompletenessCheck(dec contractx.Decision, facts cycleFacts, profile statex.BusinessProfile) bool {
	if dec.Kind != contractx.DecisionFinalReply || facts.checked {
		return false
	}
	return !statex.IsComplete(profile)
}
