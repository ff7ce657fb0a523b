package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

const (
	fetchTimeout      = 10 * time.Second
	fetchMaxRedirects = 5
	fetchMaxChars     = 5000
	fetchMaxBodySize  = 5 << 20
	fetchUserAgent    = "Mozilla/5.0 (compatible; llmchat/1.0)"
)

var (
	errTooManyRedirects = errors.New("too many redirects")
	blankLines          = regexp.MustCompile(`\n{3,}`)
)

type fetcher struct {
	client  *http.Client
	timeout time.Duration
}

func newFetcher(base *http.Client) *fetcher {
	client := &http.Client{}
	if base != nil {
		*client = *base
	}
	client.CheckRedirect = func(_ *http.Request, via []*http.Request) error {
		if len(via) > fetchMaxRedirects {
			return errTooManyRedirects
		}
		return nil
	}
	return &fetcher{client: client, timeout: fetchTimeout}
}

// Fetch returns the page as markdown text. Failures come back as
// "Error..." strings so the model can read them.
func (f *fetcher) Fetch(ctx context.Context, raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Sprintf("Error: invalid URL: %s", raw)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Sprintf("Error: invalid URL: %s", raw)
	}
	req.Header.Set("User-Agent", fetchUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain")

	resp, err := f.client.Do(req)
	if err != nil {
		switch {
		case errors.Is(err, errTooManyRedirects):
			return "Error: too many redirects"
		case errors.Is(err, context.DeadlineExceeded):
			return "Error: request timed out"
		default:
			return fmt.Sprintf("Error fetching URL: %v", unwrapURLError(err))
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchMaxBodySize))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "Error: request timed out"
		}
		return fmt.Sprintf("Error fetching URL: %v", err)
	}

	text := string(body)
	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "html") || (contentType == "" && looksLikeHTML(text)) {
		if md, err := htmltomarkdown.ConvertString(text); err == nil {
			text = md
		}
	}
	text = strings.TrimSpace(blankLines.ReplaceAllString(text, "\n\n"))
	return truncateRunes(text, fetchMaxChars)
}

func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

func looksLikeHTML(s string) bool {
	head := strings.ToLower(strings.TrimSpace(s))
	if len(head) > 512 {
		head = head[:512]
	}
	return strings.HasPrefix(head, "<!doctype html") || strings.Contains(head, "<html")
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "... [truncated]"
}

func webFetchTool(f *fetcher) Tool {
	return Tool{
		Name:        "web_fetch",
		Description: "Fetch the content of a web page and return it as plain text.",
		Parameters: map[string]Param{
			"url": {Type: "string", Description: "The URL to fetch", Required: true},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			raw, err := requiredString(args, "url")
			if err != nil {
				return nil, err
			}
			return f.Fetch(ctx, raw), nil
		},
	}
}
