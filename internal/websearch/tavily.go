package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

type tavilyRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
		Snippet string `json:"snippet"`
	} `json:"results"`
}

func (c *Client) tavilySearch(ctx context.Context, req SearchRequest) (SearchResult, error) {
	buf, err := json.Marshal(tavilyRequest{
		APIKey:      c.tavilyKey,
		Query:       req.Query,
		MaxResults:  req.Count,
		SearchDepth: "basic",
	})
	if err != nil {
		return SearchResult{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tavilyEndpoint, bytes.NewReader(buf))
	if err != nil {
		return SearchResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	body, err := c.do(httpReq, ProviderTavily)
	if err != nil {
		return SearchResult{}, err
	}

	var decoded tavilyResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return SearchResult{}, errors.New("failed to parse Tavily response")
	}

	results := make([]ResultItem, 0, len(decoded.Results))
	for _, r := range decoded.Results {
		snippet := r.Content
		if snippet == "" {
			snippet = r.Snippet
		}
		if item, ok := cleanItem(r.Title, r.URL, snippet); ok {
			results = append(results, item)
		}
	}
	return SearchResult{Provider: ProviderTavily, Query: req.Query, Results: results}, nil
}
