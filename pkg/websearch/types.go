package websearch

import (
	"strings"
	"time"
)

const (
	ProviderTavily = "tavily"
	ProviderBrave  = "brave"
)

// Config is loaded with the SEARCH_ prefix.
type Config struct {
	Provider string        `envconfig:"PROVIDER" default:"tavily"`
	APIKey   string        `envconfig:"API_KEY" split_words:"true"`
	Timeout  time.Duration `envconfig:"TIMEOUT" default:"15s"`
	// Endpoint overrides the provider URL; used against local fakes.
	Endpoint string `envconfig:"ENDPOINT"`
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

type SearchRequest struct {
	Query string
	Count int
}

func (r SearchRequest) Normalize() SearchRequest {
	out := r
	out.Query = strings.TrimSpace(out.Query)
	if out.Count <= 0 {
		out.Count = 5
	}
	if out.Count > 10 {
		out.Count = 10
	}
	return out
}

type ResultItem struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

type SearchResult struct {
	Provider string       `json:"provider"`
	Query    string       `json:"query"`
	Answer   string       `json:"answer,omitempty"`
	Results  []ResultItem `json:"results"`
}
