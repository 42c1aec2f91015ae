package orchestratornode

import (
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/contract"
)

func FinalizeReply(in *GraphState) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	reply := strings.TrimSpace(in.Reply)
	if reply == "" {
		return GraphOutput{}, fmt.Errorf("%w: cycle produced an empty reply", contractx.ErrValidation)
	}
	return GraphOutput{
		Reply:    reply,
		Version:  in.Version,
		Degraded: in.Degraded,
	}, nil
}
