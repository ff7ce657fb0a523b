// Package websearch queries a web search backend: Tavily when an API key is
// configured, otherwise a SearXNG instance, otherwise an offline placeholder
// that explains how to enable search.
package websearch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTavilyEndpoint = "https://api.tavily.com/search"
	maxBodyBytes          = 2 << 20
	requestTimeout        = 10 * time.Second
)

type Options struct {
	TavilyAPIKey   string
	SearXNGBaseURL string
	TavilyEndpoint string
	HTTPClient     *http.Client
}

type Client struct {
	tavilyKey      string
	searxngBaseURL string
	tavilyEndpoint string
	httpClient     *http.Client
	timeout        time.Duration
}

func New(opts Options) *Client {
	endpoint := strings.TrimSpace(opts.TavilyEndpoint)
	if endpoint == "" {
		endpoint = defaultTavilyEndpoint
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}
	return &Client{
		tavilyKey:      strings.TrimSpace(opts.TavilyAPIKey),
		searxngBaseURL: strings.TrimRight(strings.TrimSpace(opts.SearXNGBaseURL), "/"),
		tavilyEndpoint: endpoint,
		httpClient:     client,
		timeout:        requestTimeout,
	}
}

// Provider names the backend Search will use.
func (c *Client) Provider() string {
	switch {
	case c.tavilyKey != "":
		return ProviderTavily
	case c.searxngBaseURL != "":
		return ProviderSearXNG
	default:
		return ProviderPlaceholder
	}
}

func (c *Client) Search(ctx context.Context, req SearchRequest) (SearchResult, error) {
	req = req.Normalize()
	if req.Query == "" {
		return SearchResult{}, errors.New("missing query")
	}

	provider := c.Provider()
	if provider == ProviderPlaceholder {
		return placeholderResult(req), nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if provider == ProviderTavily {
		return c.tavilySearch(ctx, req)
	}
	return c.searxngSearch(ctx, req)
}

func placeholderResult(req SearchRequest) SearchResult {
	return SearchResult{
		Provider: ProviderPlaceholder,
		Query:    req.Query,
		Results: []ResultItem{{
			Title:   "Search results for: " + req.Query,
			URL:     "https://example.com",
			Snippet: "No search API configured. Set TAVILY_API_KEY or SEARXNG_BASE_URL to enable web search.",
		}},
		Note: "Configure TAVILY_API_KEY or SEARXNG_BASE_URL for real search results.",
	}
}

func (c *Client) do(httpReq *http.Request, provider string) ([]byte, error) {
	resp, err := c.httpClient.Do(httpReq)
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
			msg = fmt.Sprintf("%s search failed (status %d)", provider, resp.StatusCode)
		}
		return nil, errors.New(msg)
	}
	return body, nil
}

func cleanItem(title, url, snippet string) (ResultItem, bool) {
	u := strings.TrimSpace(url)
	if u == "" {
		return ResultItem{}, false
	}
	t := strings.TrimSpace(title)
	if t == "" {
		t = u
	}
	return ResultItem{Title: t, URL: u, Snippet: strings.TrimSpace(snippet)}, true
}
