package websearch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxBodyBytes = 2 << 20

// Client runs market research queries against the configured provider.
type Client struct {
	provider   string
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

func New(cfg Config) (*Client, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider == "" {
		provider = ProviderTavily
	}
	switch provider {
	case ProviderTavily, ProviderBrave:
	default:
		return nil, fmt.Errorf("unsupported web search provider %q", provider)
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("missing web search api key")
	}

	client := &http.Client{Timeout: cfg.Timeout}
	return &Client{
		provider:   provider,
		apiKey:     apiKey,
		endpoint:   strings.TrimSpace(cfg.Endpoint),
		httpClient: client,
	}, nil
}

func (c *Client) Provider() string {
	return c.provider
}

func (c *Client) Search(ctx context.Context, req SearchRequest) (SearchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req = req.Normalize()
	if req.Query == "" {
		return SearchResult{}, errors.New("missing query")
	}

	switch c.provider {
	case ProviderBrave:
		return c.braveWebSearch(ctx, req)
	default:
		return c.tavilySearch(ctx, req)
	}
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = fmt.Sprintf("%s search failed (status %d)", c.provider, resp.StatusCode)
		}
		return nil, errors.New(msg)
	}
	return body, nil
}

func (c *Client) endpointOr(def string) string {
	if c.endpoint != "" {
		return c.endpoint
	}
	return def
}
