package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSearchPlaceholderWithoutConfig(t *testing.T) {
	c := New(Options{})
	if c.Provider() != ProviderPlaceholder {
		t.Fatalf("Provider() = %q", c.Provider())
	}
	res, err := c.Search(context.Background(), SearchRequest{Query: " golang "})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(res.Results) != 1 || res.Results[0].Title != "Search results for: golang" || res.Note == "" {
		t.Fatalf("Search() = %#v", res)
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	if _, err := New(Options{}).Search(context.Background(), SearchRequest{Query: "  "}); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestTavilySearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		if body["api_key"] != "tvly-key" || body["query"] != "go" || body["max_results"] != float64(3) {
			t.Errorf("body = %#v", body)
		}
		_, _ = io.WriteString(w, `{"results":[{"title":"Go","url":"https://go.dev","content":"The Go language"},{"title":"","url":"https://x.dev","snippet":"alt"},{"title":"no url"}]}`)
	}))
	defer srv.Close()

	c := New(Options{TavilyAPIKey: "tvly-key", SearXNGBaseURL: "http://ignored", TavilyEndpoint: srv.URL, HTTPClient: srv.Client()})
	if c.Provider() != ProviderTavily {
		t.Fatalf("Provider() = %q", c.Provider())
	}
	res, err := c.Search(context.Background(), SearchRequest{Query: "go", Count: 3})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	want := []ResultItem{
		{Title: "Go", URL: "https://go.dev", Snippet: "The Go language"},
		{Title: "https://x.dev", URL: "https://x.dev", Snippet: "alt"},
	}
	if len(res.Results) != 2 || res.Results[0] != want[0] || res.Results[1] != want[1] {
		t.Fatalf("Results = %#v", res.Results)
	}
}

func TestSearXNGSearchLimitsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" || r.URL.Query().Get("format") != "json" || r.URL.Query().Get("q") != "cats" {
			t.Errorf("url = %s", r.URL.String())
		}
		_, _ = io.WriteString(w, `{"results":[{"title":"a","url":"https://a"},{"title":"b","url":"https://b"},{"title":"c","url":"https://c"}]}`)
	}))
	defer srv.Close()

	c := New(Options{SearXNGBaseURL: srv.URL + "/", HTTPClient: srv.Client()})
	res, err := c.Search(context.Background(), SearchRequest{Query: "cats", Count: 2})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if res.Provider != ProviderSearXNG || len(res.Results) != 2 {
		t.Fatalf("Search() = %#v", res)
	}
}

func TestSearchPropagatesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(Options{SearXNGBaseURL: srv.URL, HTTPClient: srv.Client()})
	if _, err := c.Search(context.Background(), SearchRequest{Query: "x"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestSearchTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := New(Options{SearXNGBaseURL: srv.URL, HTTPClient: srv.Client()})
	if c.timeout != 10*time.Second {
		t.Fatalf("timeout = %v, want 10s", c.timeout)
	}
	c.timeout = 50 * time.Millisecond

	start := time.Now()
	_, err := c.Search(context.Background(), SearchRequest{Query: "slow"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Search() error = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Search() took %v", elapsed)
	}
}
