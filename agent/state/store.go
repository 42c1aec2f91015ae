package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/contract"
)

var (
	ErrStateNotFound    = errors.New("conversation thread not found")
	ErrInvalidThreadKey = errors.New("thread key is empty")
	ErrVersionConflict  = errors.New("conversation thread version conflict")
	ErrInvalidVersion   = errors.New("expected version must be >= 0")
)

// Store is the persistence contract used by the orchestrator.
// CompareAndSave must be atomic per thread key: it writes only when the stored version
// equals expectedVersion (0 means "not stored yet") and returns the new version.
type Store interface {
	Load(ctx context.Context, threadKey string) (*ConversationThread, error)
	CompareAndSave(ctx context.Context, th *ConversationThread, expectedVersion int64) (int64, error)
	AppendCheckpoints(ctx context.Context, threadKey string, cps []Checkpoint) error
	ListCheckpoints(ctx context.Context, threadKey string, limit int) ([]Checkpoint, error)
}

type CheckpointKind string

const (
	CheckpointDecision CheckpointKind = "decision"
	CheckpointGuard    CheckpointKind = "guard"
	CheckpointFallback CheckpointKind = "fallback"
)

// Checkpoint is an audit entry for one loop iteration of a committed turn.
type Checkpoint struct {
	ID        string             `json:"id"`
	ThreadKey string             `json:"thread_key"`
	Version   int64              `json:"version"`
	Iteration int                `json:"iteration"`
	Kind      CheckpointKind     `json:"kind"`
	Decision  contractx.Decision `json:"decision"`
	Note      string             `json:"note,omitempty"`
	At        time.Time          `json:"at"`
}

const defaultCheckpointRetention = 200

func validateKey(threadKey string) (string, error) {
	key := strings.TrimSpace(threadKey)
	if key == "" {
		return "", ErrInvalidThreadKey
	}
	return key, nil
}

// prepareForSave validates th and returns the encoded document stamped with the next version.
func prepareForSave(th *ConversationThread, expectedVersion int64) (string, []byte, int64, error) {
	if th == nil {
		return "", nil, 0, ErrNilThread
	}
	if expectedVersion < 0 {
		return "", nil, 0, ErrInvalidVersion
	}
	key, err := validateKey(th.ThreadKey)
	if err != nil {
		return "", nil, 0, err
	}
	th.EnsureProfile()
	if err := th.Validate(); err != nil {
		return "", nil, 0, fmt.Errorf("invalid conversation thread: %w", err)
	}

	doc := th.Clone()
	doc.ThreadKey = key
	doc.Version = expectedVersion + 1
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now().UTC()
	} else {
		doc.UpdatedAt = doc.UpdatedAt.UTC()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = doc.UpdatedAt
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return "", nil, 0, fmt.Errorf("marshal conversation thread: %w", err)
	}
	return key, payload, doc.Version, nil
}

func decodeThread(payload []byte, version int64) (*ConversationThread, error) {
	var th ConversationThread
	if err := json.Unmarshal(payload, &th); err != nil {
		return nil, fmt.Errorf("unmarshal conversation thread: %w", err)
	}
	th.Version = version
	th.EnsureProfile()
	if err := th.Validate(); err != nil {
		return nil, fmt.Errorf("invalid conversation thread loaded from store: %w", err)
	}
	return &th, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > defaultCheckpointRetention {
		return defaultCheckpointRetention
	}
	return limit
}
