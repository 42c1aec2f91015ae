package orchestratornode

import (
	"time"

	contractx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/contract"
	statex "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/state"
)

// Delta is everything one cycle added to its base thread.
// Replaying it onto a newer base yields the same turns and profile effects.
type Delta struct {
	Turns        []contractx.Turn
	ProfilePatch map[string]string
	Insights     []string
	Plan         *contractx.ActionPlan
	Iteration    int
}

func (d *Delta) mergeProfile(fields map[string]string) {
	if len(fields) == 0 {
		return
	}
	// Same rules as the live profile: later non-empty values win, empty values never clear.
	merged := statex.Merge(d.ProfilePatch, fields)
	if len(merged) == 0 {
		return
	}
	d.ProfilePatch = merged
}

func (d Delta) Replay(th *statex.ConversationThread, now time.Time) {
	th.EnsureProfile()
	for _, turn := range d.Turns {
		th.Append(turn)
	}
	th.MergeProfile(d.ProfilePatch)
	th.AddInsights(d.Insights)
	if d.Plan != nil {
		plan := *d.Plan
		th.CurrentPlan = &plan
	}
	th.Iteration = d.Iteration
	th.Touch(now)
}
