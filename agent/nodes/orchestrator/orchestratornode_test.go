package orchestratornode

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	contractx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/contract"
	statex "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/state"
)

func fixedClock() time.Time {
	return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
}

func TestValidateRequest(t *testing.T) {
	t.Parallel()

	if _, err := ValidateRequest(GraphInput{ThreadKey: " ", Text: "hi"}, fixedClock); !errors.Is(err, ErrInvalidThreadKey) {
		t.Fatalf("ValidateRequest() error = %v, want ErrInvalidThreadKey", err)
	}
	if _, err := ValidateRequest(GraphInput{ThreadKey: "t1", Text: "  "}, fixedClock); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("ValidateRequest() error = %v, want ErrInvalidMessage", err)
	}
	if _, err := ValidateRequest(GraphInput{ThreadKey: "t1"}, fixedClock); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("ValidateRequest() error = %v, want ErrValidation", err)
	}

	st, err := ValidateRequest(GraphInput{ThreadKey: " t1 ", Text: " hello "}, fixedClock)
	if err != nil {
		t.Fatalf("ValidateRequest() error = %v", err)
	}
	if st.ThreadKey != "t1" || st.Text != "hello" || !st.Now.Equal(fixedClock()) {
		t.Fatalf("unexpected state: %+v", st)
	}
}

func TestNeedsCompletenessCheck(t *testing.T) {
	t.Parallel()

	complete := statex.BusinessProfile{
		statex.AttrBusinessName: "Pollos Hermanos",
		statex.AttrIndustry:     "restaurants",
		statex.AttrPrimaryGoal:  "expand",
	}
	partial := statex.BusinessProfile{statex.AttrBusinessName: "Pollos Hermanos"}
	advice := contractx.FinalReply("Open a second branch near the university.")
	question := contractx.FinalReply("What industry are you in?")

	cases := []struct {
		name    string
		dec     contractx.Decision
		facts   cycleFacts
		profile statex.BusinessProfile
		want    bool
	}{
		{name: "advice on partial profile", dec: advice, profile: partial, want: true},
		{name: "question on empty profile", dec: question, profile: nil, want: true},
		{name: "already checked", dec: advice, facts: cycleFacts{checked: true}, profile: partial, want: false},
		{name: "complete profile", dec: advice, profile: complete, want: false},
		{name: "invoke decision", dec: contractx.InvokeCapability("x", nil), profile: partial, want: false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := needsCompletenessCheck(tc.dec, tc.facts, tc.profile); got != tc.want {
				t.Fatalf("needsCompletenessCheck() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDeltaReplayAppendsTurnsOnce(t *testing.T) {
	t.Parallel()

	base := statex.NewConversationThread("t1", fixedClock())
	base.Append(contractx.Turn{Role: contractx.RoleUser, Content: "from another writer"})
	base.Profile[statex.AttrIndustry] = "restaurants"

	d := Delta{
		Turns: []contractx.Turn{
			{Role: contractx.RoleUser, Content: "We are Pollos Hermanos"},
			{Role: contractx.RoleAssistant, Content: "Nice to meet you"},
		},
		ProfilePatch: map[string]string{statex.AttrBusinessName: "Pollos Hermanos"},
		Insights:     []string{"family run"},
		Iteration:    2,
	}
	d.Replay(base, fixedClock())

	if len(base.Transcript) != 3 || base.Transcript[1].Content != "We are Pollos Hermanos" {
		t.Fatalf("unexpected transcript: %+v", base.Transcript)
	}
	if base.Profile[statex.AttrIndustry] != "restaurants" || base.Profile[statex.AttrBusinessName] != "Pollos Hermanos" {
		t.Fatalf("unexpected profile: %v", base.Profile)
	}
	if base.Iteration != 2 || len(base.Insights) != 1 {
		t.Fatalf("unexpected thread: iteration=%d insights=%v", base.Iteration, base.Insights)
	}
}

func TestDeltaProfilePatchMatchesLiveMerge(t *testing.T) {
	t.Parallel()

	patches := []map[string]string{
		{statex.AttrBusinessName: "Pollos Hermanos", "Primary Goal": "open a second branch"},
		{statex.AttrBusinessName: "  ", statex.AttrIndustry: "restaurants"},
		{statex.AttrIndustry: ""},
	}

	live := statex.NewConversationThread("t1", fixedClock())
	var d Delta
	for _, p := range patches {
		live.MergeProfile(p)
		d.mergeProfile(p)
	}

	replayed := statex.NewConversationThread("t1", fixedClock())
	d.Replay(replayed, fixedClock())

	want := statex.BusinessProfile{
		statex.AttrBusinessName: "Pollos Hermanos",
		statex.AttrIndustry:     "restaurants",
		statex.AttrPrimaryGoal:  "open a second branch",
	}
	for _, got := range []statex.BusinessProfile{live.Profile, replayed.Profile, statex.BusinessProfile(d.ProfilePatch)} {
		if len(got) != len(want) {
			t.Fatalf("profile = %v, want %v", got, want)
		}
		for k, v := range want {
			if got[k] != v {
				t.Fatalf("profile[%s] = %q, want %q (profile %v)", k, got[k], v, got)
			}
		}
	}
}

type blockingPlanner struct {
	calls atomic.Int32
}

func (p *blockingPlanner) Plan(ctx context.Context, req contractx.PlannerRequest) (contractx.Decision, error) {
	p.calls.Add(1)
	<-ctx.Done()
	return contractx.Decision{}, ctx.Err()
}

func TestPlanNextRetriesTimeoutOnce(t *testing.T) {
	t.Parallel()

	in, err := ValidateRequest(GraphInput{ThreadKey: "t1", Text: "hi"}, fixedClock)
	if err != nil {
		t.Fatalf("ValidateRequest() error = %v", err)
	}
	in, err = LoadOrCreateState(context.Background(), in, statex.NewMemoryStore())
	if err != nil {
		t.Fatalf("LoadOrCreateState() error = %v", err)
	}

	planner := &blockingPlanner{}
	_, err = planNext(context.Background(), in, planner, nil, 20*time.Millisecond)
	if !errors.Is(err, contractx.ErrPlannerTimeout) {
		t.Fatalf("planNext() error = %v, want ErrPlannerTimeout", err)
	}
	if got := planner.calls.Load(); got != 2 {
		t.Fatalf("planner calls = %d, want 2", got)
	}
}

func TestValidateAndSaveStateReplaysOnConflict(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := statex.NewMemoryStore()
	seed := statex.NewConversationThread("t1", fixedClock())
	seed.Append(contractx.Turn{Role: contractx.RoleUser, Content: "first"})
	if _, err := store.CompareAndSave(ctx, seed, 0); err != nil {
		t.Fatalf("seed CompareAndSave() error = %v", err)
	}

	in, err := ValidateRequest(GraphInput{ThreadKey: "t1", Text: "second"}, fixedClock)
	if err != nil {
		t.Fatalf("ValidateRequest() error = %v", err)
	}
	in, err = LoadOrCreateState(ctx, in, store)
	if err != nil {
		t.Fatalf("LoadOrCreateState() error = %v", err)
	}
	in.reply("ok")

	// A concurrent writer commits first.
	other, err := store.Load(ctx, "t1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	other.Append(contractx.Turn{Role: contractx.RoleUser, Content: "concurrent"})
	if _, err := store.CompareAndSave(ctx, other, other.Version); err != nil {
		t.Fatalf("concurrent CompareAndSave() error = %v", err)
	}

	out, err := ValidateAndSaveState(ctx, in, store)
	if err != nil {
		t.Fatalf("ValidateAndSaveState() error = %v", err)
	}
	if out.Version != 3 {
		t.Fatalf("version = %d, want 3", out.Version)
	}

	saved, err := store.Load(ctx, "t1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	count := 0
	for _, turn := range saved.Transcript {
		if turn.Role == contractx.RoleUser && turn.Content == "second" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("inbound message recorded %d times, want 1", count)
	}
	if len(saved.Transcript) != 4 || saved.Transcript[1].Content != "concurrent" {
		t.Fatalf("unexpected transcript: %+v", saved.Transcript)
	}
}

type conflictingStore struct {
	*statex.MemoryStore
	saves int
}

func (s *conflictingStore) CompareAndSave(ctx context.Context, th *statex.ConversationThread, expected int64) (int64, error) {
	s.saves++
	return 0, statex.ErrVersionConflict
}

func TestValidateAndSaveStateSecondConflictIsTransient(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &conflictingStore{MemoryStore: statex.NewMemoryStore()}
	in, err := ValidateRequest(GraphInput{ThreadKey: "t1", Text: "hello"}, fixedClock)
	if err != nil {
		t.Fatalf("ValidateRequest() error = %v", err)
	}
	in, err = LoadOrCreateState(ctx, in, store)
	if err != nil {
		t.Fatalf("LoadOrCreateState() error = %v", err)
	}
	in.reply("hi")

	_, err = ValidateAndSaveState(ctx, in, store)
	if !errors.Is(err, contractx.ErrTransient) || !errors.Is(err, statex.ErrVersionConflict) {
		t.Fatalf("ValidateAndSaveState() error = %v, want transient version conflict", err)
	}
	if store.saves != 2 {
		t.Fatalf("saves = %d, want 2", store.saves)
	}
	if _, err := store.Load(ctx, "t1"); !errors.Is(err, statex.ErrStateNotFound) {
		t.Fatalf("Load() error = %v, want ErrStateNotFound", err)
	}
}

type failingCheckpointStore struct {
	*statex.MemoryStore
}

func (failingCheckpointStore) AppendCheckpoints(context.Context, string, []statex.Checkpoint) error {
	return errors.New("disk full")
}

func TestRecordCheckpointsStampsVersionAndSwallowsErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := statex.NewMemoryStore()
	in := &GraphState{ThreadKey: "t1", Version: 4, Thread: statex.NewConversationThread("t1", fixedClock())}
	in.checkpoint(statex.CheckpointDecision, contractx.FinalReply("hi"), "")

	if _, err := RecordCheckpoints(ctx, in, store); err != nil {
		t.Fatalf("RecordCheckpoints() error = %v", err)
	}
	cps, err := store.ListCheckpoints(ctx, "t1", 10)
	if err != nil {
		t.Fatalf("ListCheckpoints() error = %v", err)
	}
	if len(cps) != 1 || cps[0].Version != 4 {
		t.Fatalf("unexpected checkpoints: %+v", cps)
	}

	if _, err := RecordCheckpoints(ctx, in, failingCheckpointStore{statex.NewMemoryStore()}); err != nil {
		t.Fatalf("RecordCheckpoints() with failing store error = %v", err)
	}
}

func TestFinalizeReplyRejectsEmpty(t *testing.T) {
	t.Parallel()

	if _, err := FinalizeReply(&GraphState{}); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("FinalizeReply() error = %v, want ErrValidation", err)
	}
	out, err := FinalizeReply(&GraphState{Reply: " done ", Version: 2, Degraded: true})
	if err != nil {
		t.Fatalf("FinalizeReply() error = %v", err)
	}
	if out.Reply != "done" || out.Version != 2 || !out.Degraded {
		t.Fatalf("unexpected output: %+v", out)
	}
}
