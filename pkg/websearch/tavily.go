package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

const tavilySearchEndpoint = "https://api.tavily.com/search"

type tavilySearchRequest struct {
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
}

type tavilySearchResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

func (c *Client) tavilySearch(ctx context.Context, req SearchRequest) (SearchResult, error) {
	payload, err := json.Marshal(tavilySearchRequest{
		Query:         req.Query,
		MaxResults:    req.Count,
		SearchDepth:   "basic",
		IncludeAnswer: true,
	})
	if err != nil {
		return SearchResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointOr(tavilySearchEndpoint), bytes.NewReader(payload))
	if err != nil {
		return SearchResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	body, err := c.do(httpReq)
	if err != nil {
		return SearchResult{}, err
	}

	var decoded tavilySearchResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return SearchResult{}, errors.New("invalid tavily search response")
	}

	results := make([]ResultItem, 0, len(decoded.Results))
	for _, item := range decoded.Results {
		u := strings.TrimSpace(item.URL)
		if u == "" {
			continue
		}
		title := strings.TrimSpace(item.Title)
		if title == "" {
			title = u
		}
		results = append(results, ResultItem{
			Title:   title,
			URL:     u,
			Snippet: strings.TrimSpace(item.Content),
		})
	}

	return SearchResult{
		Provider: ProviderTavily,
		Query:    req.Query,
		Answer:   strings.TrimSpace(decoded.Answer),
		Results:  results,
	}, nil
}
