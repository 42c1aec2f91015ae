package orchestratornode

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	contractx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/contract"
	statex "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/state"
)

var (
	ErrInvalidMessage   = fmt.Errorf("%w: message is empty", contractx.ErrValidation)
	ErrInvalidThreadKey = fmt.Errorf("%w: thread key is empty", contractx.ErrValidation)
)

type GraphInput struct {
	ThreadKey string
	Text      string
}

type GraphOutput struct {
	Reply    string
	Version  int64
	Degraded bool
}

// GraphState is the working set of one processing cycle.
// Thread is a private copy; nothing is visible to other callers until it is saved.
type GraphState struct {
	ThreadKey string
	Text      string
	Now       time.Time
	Clock     func() time.Time

	Thread      *statex.ConversationThread
	BaseVersion int64
	Delta       Delta

	Reply       string
	Degraded    bool
	Checkpoints []statex.Checkpoint
	Version     int64
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	threadKey := strings.TrimSpace(in.ThreadKey)
	if threadKey == "" {
		return nil, ErrInvalidThreadKey
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrInvalidMessage
	}

	if nowFn == nil {
		nowFn = time.Now
	}
	return &GraphState{
		ThreadKey: threadKey,
		Text:      text,
		Now:       nowFn().UTC(),
		Clock:     nowFn,
	}, nil
}

func (in *GraphState) now() time.Time {
	if in.Clock == nil {
		return time.Now().UTC()
	}
	return in.Clock().UTC()
}

// appendTurn records a turn on the working thread and in the cycle delta.
func (in *GraphState) appendTurn(turn contractx.Turn) {
	in.Thread.Append(turn)
	in.Delta.Turns = append(in.Delta.Turns, turn)
}

func (in *GraphState) checkpoint(kind statex.CheckpointKind, dec contractx.Decision, note string) {
	in.Checkpoints = append(in.Checkpoints, statex.Checkpoint{
		ID:        uuid.NewString(),
		ThreadKey: in.ThreadKey,
		Iteration: in.Thread.Iteration,
		Kind:      kind,
		Decision:  dec,
		Note:      note,
		At:        in.now(),
	})
}

func (in *GraphState) reply(text string) {
	in.Reply = text
	in.appendTurn(contractx.Turn{
		Role:    contractx.RoleAssistant,
		Content: text,
		At:      in.now(),
	})
}

func (in *GraphState) fallback(text string, reason string) {
	in.Degraded = true
	in.checkpoint(statex.CheckpointFallback, contractx.FinalReply(text), reason)
	in.reply(text)
}
