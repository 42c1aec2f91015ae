package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/contract"
	nodex "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/nodes/orchestrator"
	statex "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/state"
)

var (
	ErrInvalidMessage   = nodex.ErrInvalidMessage
	ErrInvalidThreadKey = nodex.ErrInvalidThreadKey
)

// Config is loaded with the ORCHESTRATOR_ prefix.
type Config struct {
	MaxIters          int           `envconfig:"MAX_ITERS" split_words:"true" default:"6"`
	PlannerTimeout    time.Duration `envconfig:"PLANNER_TIMEOUT" split_words:"true" default:"45s"`
	CapabilityTimeout time.Duration `envconfig:"CAPABILITY_TIMEOUT" split_words:"true" default:"30s"`
	FallbackReply     string        `envconfig:"FALLBACK_REPLY" split_words:"true"`
}

type Orchestrator struct {
	store    statex.Store
	planner  contractx.Planner
	caps     nodex.Capabilities
	notifier contractx.TurnNotifier
	policy   nodex.LoopPolicy

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	now func() time.Time
}

// New wires the orchestrator. notifier may be nil.
func New(
	store statex.Store,
	planner contractx.Planner,
	caps nodex.Capabilities,
	notifier contractx.TurnNotifier,
	cfg Config,
) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if planner == nil {
		return nil, errors.New("planner is required")
	}
	if caps == nil {
		return nil, errors.New("capability registry is required")
	}

	o := &Orchestrator{
		store:    store,
		planner:  planner,
		caps:     caps,
		notifier: notifier,
		policy: nodex.LoopPolicy{
			MaxIters:       cfg.MaxIters,
			PlannerTimeout: cfg.PlannerTimeout,
			FallbackReply:  strings.TrimSpace(cfg.FallbackReply),
		},
		now: time.Now,
	}

	graphRunner, err := o.compileProcessGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// Process handles one inbound message and returns the reply with the committed thread version.
// A second version conflict is returned as contract.ErrTransient; the caller should retry the turn.
func (o *Orchestrator) Process(ctx context.Context, threadKey string, text string) (string, int64, error) {
	start := o.now()
	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{
		ThreadKey: threadKey,
		Text:      text,
	})
	if err != nil {
		log.Error().Err(err).Str("thread_key", threadKey).Msg("process turn failed")
		return "", 0, err
	}

	log.Info().
		Str("thread_key", threadKey).
		Int64("version", out.Version).
		Bool("degraded", out.Degraded).
		Dur("elapsed", o.now().Sub(start)).
		Msg("turn processed")
	return out.Reply, out.Version, nil
}

// History returns the stored thread and its most recent checkpoints.
func (o *Orchestrator) History(ctx context.Context, threadKey string, checkpointLimit int) (*statex.ConversationThread, []statex.Checkpoint, error) {
	th, err := o.store.Load(ctx, threadKey)
	if err != nil {
		return nil, nil, err
	}
	cps, err := o.store.ListCheckpoints(ctx, threadKey, checkpointLimit)
	if err != nil {
		return nil, nil, err
	}
	return th, cps, nil
}

// Reset replaces the thread with an empty one at the next version. Unknown threads are left alone.
func (o *Orchestrator) Reset(ctx context.Context, threadKey string) (int64, error) {
	current, err := o.store.Load(ctx, threadKey)
	if errors.Is(err, statex.ErrStateNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	empty := statex.NewConversationThread(current.ThreadKey, o.now())
	empty.CreatedAt = current.CreatedAt
	version, err := o.store.CompareAndSave(ctx, empty, current.Version)
	if errors.Is(err, statex.ErrVersionConflict) {
		return 0, fmt.Errorf("%w: %w", contractx.ErrTransient, err)
	}
	if err != nil {
		return 0, err
	}
	log.Info().Str("thread_key", threadKey).Int64("version", version).Msg("thread reset")
	return version, nil
}
