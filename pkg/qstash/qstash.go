package qstash

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Kumak-Business-Orchestrator/agent/contract"
)

const maxResponseSizeBytes = 1 << 20

type Config struct {
	URL               string        `split_words:"true" default:"https://qstash.upstash.io"`
	Token             string        `split_words:"true"`
	CurrentSigningKey string        `split_words:"true"`
	NextSigningKey    string        `split_words:"true"`
	Timeout           time.Duration `split_words:"true" default:"10s"`
	// Destination receives turn events. Publishing is disabled when empty.
	Destination string `split_words:"true"`
	Retries     int    `split_words:"true" default:"3"`
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Token) != "" && strings.TrimSpace(c.Destination) != ""
}

type Client struct {
	baseURL           string
	token             string
	currentSigningKey string
	nextSigningKey    string
	retries           int
	httpClient        *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL == "" {
		return nil, errors.New("qstash url is required")
	}

	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, err
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("qstash token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &Client{
		baseURL:           strings.TrimRight(baseURL, "/"),
		token:             token,
		currentSigningKey: strings.TrimSpace(cfg.CurrentSigningKey),
		nextSigningKey:    strings.TrimSpace(cfg.NextSigningKey),
		retries:           cfg.Retries,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}

	return client, nil
}

type publishResponse struct {
	MessageID string `json:"messageId"`
	Error     string `json:"error"`
}

// Publish enqueues body for delivery to destination and returns the QStash message id.
func (c *Client) Publish(ctx context.Context, destination string, body []byte) (string, error) {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return "", errors.New("qstash destination is required")
	}
	if _, err := url.ParseRequestURI(destination); err != nil {
		return "", fmt.Errorf("invalid qstash destination: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/publish/"+destination, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build qstash request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	if c.retries >= 0 {
		req.Header.Set("Upstash-Retries", fmt.Sprint(c.retries))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute qstash request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return "", fmt.Errorf("read qstash response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("qstash http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed publishResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode qstash response: %w", err)
	}
	if parsed.Error != "" {
		return "", errors.New(parsed.Error)
	}
	return parsed.MessageID, nil
}

// TurnNotifier publishes committed turns to a fixed destination.
type TurnNotifier struct {
	client      *Client
	destination string
}

var _ contractx.TurnNotifier = (*TurnNotifier)(nil)

func NewTurnNotifier(client *Client, destination string) (*TurnNotifier, error) {
	if client == nil {
		return nil, errors.New("qstash client is required")
	}
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return nil, errors.New("qstash destination is required")
	}
	return &TurnNotifier{client: client, destination: destination}, nil
}

func (n *TurnNotifier) NotifyTurn(ctx context.Context, ev contractx.TurnEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal turn event: %w", err)
	}
	_, err = n.client.Publish(ctx, n.destination, body)
	return err
}
