package state

import (
	"errors"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/contract"
)

// ConversationThread is the persistent source-of-truth for one conversation.
// - Transcript is append-only; turns are never edited once appended.
// - Profile only grows or overwrites with non-empty values (see Merge).
// - Completeness is derived from Profile and never stored.
type ConversationThread struct {
	ThreadKey string `json:"thread_key"`
	Version   int64  `json:"version"`

	Transcript  []contractx.Turn      `json:"transcript"`
	Profile     BusinessProfile       `json:"profile"`
	Insights    []string              `json:"insights,omitempty"`
	CurrentPlan *contractx.ActionPlan `json:"current_plan,omitempty"`

	// Iteration is the loop counter of the latest processing cycle.
	Iteration int `json:"iteration"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	ErrNilThread       = errors.New("conversation thread is nil")
	ErrInvalidTurnRole = errors.New("invalid turn role")
)

func NewConversationThread(threadKey string, now time.Time) *ConversationThread {
	return &ConversationThread{
		ThreadKey: threadKey,
		Profile:   make(BusinessProfile, 8),
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}

func (t *ConversationThread) Touch(now time.Time) {
	t.UpdatedAt = now.UTC()
}

// EnsureProfile makes sure t.Profile is initialized.
func (t *ConversationThread) EnsureProfile() {
	if t.Profile == nil {
		t.Profile = make(BusinessProfile, 8)
	}
}

func (t *ConversationThread) IsComplete() bool {
	return t != nil && IsComplete(t.Profile)
}

func (t *ConversationThread) Append(turn contractx.Turn) {
	t.Transcript = append(t.Transcript, turn)
}

func (t *ConversationThread) MergeProfile(fields map[string]string) {
	if len(fields) == 0 {
		return
	}
	t.Profile = Merge(t.Profile, fields)
}

// AddInsights appends insights not already recorded.
func (t *ConversationThread) AddInsights(insights []string) {
	seen := make(map[string]struct{}, len(t.Insights))
	for _, it := range t.Insights {
		seen[strings.ToLower(it)] = struct{}{}
	}
	for _, it := range insights {
		v := strings.TrimSpace(it)
		if v == "" {
			continue
		}
		if _, ok := seen[strings.ToLower(v)]; ok {
			continue
		}
		seen[strings.ToLower(v)] = struct{}{}
		t.Insights = append(t.Insights, v)
	}
}

// Clone returns a deep copy sufficient for working on a cycle without touching the original.
func (t *ConversationThread) Clone() *ConversationThread {
	if t == nil {
		return nil
	}
	out := *t
	out.Transcript = append([]contractx.Turn(nil), t.Transcript...)
	out.Profile = t.Profile.Clone()
	out.Insights = append([]string(nil), t.Insights...)
	if t.CurrentPlan != nil {
		plan := *t.CurrentPlan
		out.CurrentPlan = &plan
	}
	return &out
}

func (t *ConversationThread) Validate() error {
	if t == nil {
		return ErrNilThread
	}
	if strings.TrimSpace(t.ThreadKey) == "" {
		return ErrInvalidThreadKey
	}
	for i, turn := range t.Transcript {
		switch turn.Role {
		case contractx.RoleUser, contractx.RoleAssistant:
		case contractx.RoleTool:
			if turn.Call == nil {
				return fmt.Errorf("%w: tool turn %d has no capability call", ErrInvalidTurnRole, i)
			}
		default:
			return fmt.Errorf("%w: turn %d role=%q", ErrInvalidTurnRole, i, turn.Role)
		}
	}
	for k, v := range t.Profile {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("profile attribute %s is empty", k)
		}
	}
	return nil
}
