package state

import (
	"context"
	"sync"
)

type memoryRecord struct {
	version int64
	payload []byte
}

// MemoryStore keeps encoded threads in process memory. It honours the same
// compare-and-save contract as the durable stores.
type MemoryStore struct {
	mu          sync.Mutex
	threads     map[string]memoryRecord
	checkpoints map[string][]Checkpoint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		threads:     make(map[string]memoryRecord),
		checkpoints: make(map[string][]Checkpoint),
	}
}

func (s *MemoryStore) Load(ctx context.Context, threadKey string) (*ConversationThread, error) {
	key, err := validateKey(threadKey)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	rec, ok := s.threads[key]
	s.mu.Unlock()
	if !ok {
		return nil, ErrStateNotFound
	}
	return decodeThread(rec.payload, rec.version)
}

func (s *MemoryStore) CompareAndSave(ctx context.Context, th *ConversationThread, expectedVersion int64) (int64, error) {
	key, payload, next, err := prepareForSave(th, expectedVersion)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.threads[key].version != expectedVersion {
		return 0, ErrVersionConflict
	}
	s.threads[key] = memoryRecord{version: next, payload: payload}
	return next, nil
}

func (s *MemoryStore) AppendCheckpoints(ctx context.Context, threadKey string, cps []Checkpoint) error {
	key, err := validateKey(threadKey)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list := append(s.checkpoints[key], cps...)
	if len(list) > defaultCheckpointRetention {
		list = list[len(list)-defaultCheckpointRetention:]
	}
	s.checkpoints[key] = list
	return nil
}

func (s *MemoryStore) ListCheckpoints(ctx context.Context, threadKey string, limit int) ([]Checkpoint, error) {
	key, err := validateKey(threadKey)
	if err != nil {
		return nil, err
	}
	limit = normalizeLimit(limit)
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.checkpoints[key]
	if len(list) > limit {
		list = list[len(list)-limit:]
	}
	return append([]Checkpoint(nil), list...), nil
}
