package websearch

import "strings"

const (
	ProviderTavily      = "tavily"
	ProviderSearXNG     = "searxng"
	ProviderPlaceholder = "placeholder"
)

const (
	defaultCount = 5
	maxCount     = 20
)

type SearchRequest struct {
	Query string
	Count int
}

func (r SearchRequest) Normalize() SearchRequest {
	out := r
	out.Query = strings.TrimSpace(out.Query)
	if out.Count <= 0 {
		out.Count = defaultCount
	}
	if out.Count > maxCount {
		out.Count = maxCount
	}
	return out
}

type ResultItem struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

type SearchResult struct {
	Provider string       `json:"provider"`
	Query    string       `json:"query"`
	Results  []ResultItem `json:"results"`
	Note     string       `json:"note,omitempty"`
}
