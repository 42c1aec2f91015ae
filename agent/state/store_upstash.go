package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultStoreKeyPrefix = "kumak:thread:"
	maxResponseSizeBytes  = 2 << 20
)

// compareAndSaveScript runs server-side so the version check and the write are one atomic step.
// KEYS[1]=thread hash, ARGV: expected version, next version, document, ttl seconds (0 = keep forever).
const compareAndSaveScript = `
local cur = redis.call('HGET', KEYS[1], 'version')
if not cur then cur = '0' end
if cur ~= ARGV[1] then return -1 end
redis.call('HSET', KEYS[1], 'version', ARGV[2], 'doc', ARGV[3])
if tonumber(ARGV[4]) > 0 then redis.call('EXPIRE', KEYS[1], ARGV[4]) end
return tonumber(ARGV[2])
`

// KEYS[1]=checkpoint list, ARGV[1]=retention, ARGV[2..]=entries.
const appendCheckpointsScript = `
for i = 2, #ARGV do redis.call('RPUSH', KEYS[1], ARGV[i]) end
redis.call('LTRIM', KEYS[1], -tonumber(ARGV[1]), -1)
return redis.call('LLEN', KEYS[1])
`

// StoreOption customizes UpstashRedisStore.
type StoreOption func(*UpstashRedisStore)

func WithKeyPrefix(prefix string) StoreOption {
	return func(s *UpstashRedisStore) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

func WithTTL(ttl time.Duration) StoreOption {
	return func(s *UpstashRedisStore) {
		s.ttl = ttl
	}
}

func WithHTTPClient(client *http.Client) StoreOption {
	return func(s *UpstashRedisStore) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// UpstashRedisStore persists ConversationThread documents in Upstash Redis via REST.
// Each thread is a hash {version, doc}; checkpoints live in a capped list next to it.
type UpstashRedisStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
	ttl        time.Duration
}

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

type UpstashRedisConfig struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
	TTL     time.Duration `envconfig:"TTL" split_words:"true" default:"0s"`
}

func NewUpstashRedisStore(cfg UpstashRedisConfig, opts ...StoreOption) (*UpstashRedisStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	store := &UpstashRedisStore{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		keyPrefix: defaultStoreKeyPrefix,
		ttl:       cfg.TTL,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	if store.ttl < 0 {
		return nil, errors.New("ttl must be >= 0")
	}

	return store, nil
}

func (s *UpstashRedisStore) Load(ctx context.Context, threadKey string) (*ConversationThread, error) {
	key, err := s.redisKey(threadKey)
	if err != nil {
		return nil, err
	}

	resp, err := s.exec(ctx, []any{"HMGET", key, "version", "doc"})
	if err != nil {
		return nil, err
	}

	var fields []*string
	if err := json.Unmarshal(resp.Result, &fields); err != nil {
		return nil, fmt.Errorf("decode thread payload: %w", err)
	}
	if len(fields) != 2 || fields[0] == nil || fields[1] == nil {
		return nil, ErrStateNotFound
	}

	version, err := strconv.ParseInt(*fields[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode thread version: %w", err)
	}
	return decodeThread([]byte(*fields[1]), version)
}

func (s *UpstashRedisStore) CompareAndSave(ctx context.Context, th *ConversationThread, expectedVersion int64) (int64, error) {
	threadKey, payload, next, err := prepareForSave(th, expectedVersion)
	if err != nil {
		return 0, err
	}
	key, err := s.redisKey(threadKey)
	if err != nil {
		return 0, err
	}

	resp, err := s.exec(ctx, []any{
		"EVAL", compareAndSaveScript, "1", key,
		strconv.FormatInt(expectedVersion, 10),
		strconv.FormatInt(next, 10),
		string(payload),
		strconv.FormatInt(ttlSeconds(s.ttl), 10),
	})
	if err != nil {
		return 0, err
	}

	var got int64
	if err := json.Unmarshal(resp.Result, &got); err != nil {
		return 0, fmt.Errorf("decode compare-and-save result: %w", err)
	}
	if got < 0 {
		return 0, ErrVersionConflict
	}
	return got, nil
}

func (s *UpstashRedisStore) AppendCheckpoints(ctx context.Context, threadKey string, cps []Checkpoint) error {
	if len(cps) == 0 {
		return nil
	}
	key, err := s.redisKey(threadKey)
	if err != nil {
		return err
	}

	cmd := []any{"EVAL", appendCheckpointsScript, "1", key + ":checkpoints", strconv.Itoa(defaultCheckpointRetention)}
	for _, cp := range cps {
		raw, err := json.Marshal(cp)
		if err != nil {
			return fmt.Errorf("marshal checkpoint: %w", err)
		}
		cmd = append(cmd, string(raw))
	}
	_, err = s.exec(ctx, cmd)
	return err
}

func (s *UpstashRedisStore) ListCheckpoints(ctx context.Context, threadKey string, limit int) ([]Checkpoint, error) {
	key, err := s.redisKey(threadKey)
	if err != nil {
		return nil, err
	}
	limit = normalizeLimit(limit)

	resp, err := s.exec(ctx, []any{"LRANGE", key + ":checkpoints", strconv.Itoa(-limit), "-1"})
	if err != nil {
		return nil, err
	}
	var entries []string
	if err := json.Unmarshal(resp.Result, &entries); err != nil {
		return nil, fmt.Errorf("decode checkpoints: %w", err)
	}
	out := make([]Checkpoint, 0, len(entries))
	for _, raw := range entries {
		var cp Checkpoint
		if err := json.Unmarshal([]byte(raw), &cp); err != nil {
			return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
		}
		out = append(out, cp)
	}
	return out, nil
}

func (s *UpstashRedisStore) redisKey(threadKey string) (string, error) {
	key, err := validateKey(threadKey)
	if err != nil {
		return "", err
	}
	prefix := strings.TrimSpace(s.keyPrefix)
	if prefix == "" {
		prefix = defaultStoreKeyPrefix
	}
	return prefix + key, nil
}

func (s *UpstashRedisStore) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	if s == nil {
		return nil, errors.New("nil store")
	}
	if len(command) == 0 {
		return nil, errors.New("empty redis command")
	}

	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}

func ttlSeconds(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	seconds := ttl / time.Second
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}
