package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
)

type searxngResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func (c *Client) searxngSearch(ctx context.Context, req SearchRequest) (SearchResult, error) {
	endpoint, err := url.Parse(c.searxngBaseURL + "/search")
	if err != nil {
		return SearchResult{}, errors.New("invalid SearXNG base url")
	}
	q := endpoint.Query()
	q.Set("q", req.Query)
	q.Set("format", "json")
	q.Set("count", strconv.Itoa(req.Count))
	endpoint.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return SearchResult{}, err
	}
	httpReq.Header.Set("Accept", "application/json")

	body, err := c.do(httpReq, ProviderSearXNG)
	if err != nil {
		return SearchResult{}, err
	}

	var decoded searxngResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return SearchResult{}, errors.New("failed to parse SearXNG response")
	}

	results := make([]ResultItem, 0, req.Count)
	for _, r := range decoded.Results {
		if len(results) == req.Count {
			break
		}
		if item, ok := cleanItem(r.Title, r.URL, r.Content); ok {
			results = append(results, item)
		}
	}
	return SearchResult{Provider: ProviderSearXNG, Query: req.Query, Results: results}, nil
}
