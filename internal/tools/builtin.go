package tools

import (
	"context"
	"net/http"
	"time"

	"github.com/user/llmchat/internal/db"
	"github.com/user/llmchat/internal/websearch"
)

// Deps carries what the built-in tools need. A nil Todos or Calendar leaves
// the matching tools out of the registry.
type Deps struct {
	Todos      *db.TodoRepo
	Calendar   *db.CalendarRepo
	Search     *websearch.Client
	HTTPClient *http.Client
	Now        func() time.Time
}

// Builtin returns a registry holding every built-in tool that deps can back.
func Builtin(deps Deps) *Registry {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Search == nil {
		deps.Search = websearch.New(websearch.Options{})
	}

	r := NewRegistry(
		datetimeTool(deps.Now),
		webSearchTool(deps.Search),
		webFetchTool(newFetcher(deps.HTTPClient)),
	)
	if deps.Todos != nil {
		for _, t := range todoTools(deps.Todos) {
			r.Register(t)
		}
	}
	if deps.Calendar != nil {
		for _, t := range calendarTools(deps.Calendar) {
			r.Register(t)
		}
	}
	return r
}

func datetimeTool(now func() time.Time) Tool {
	return Tool{
		Name:        "get_datetime",
		Description: "Get the current date and time in ISO 8601 format",
		Parameters:  map[string]Param{},
		Execute: func(context.Context, map[string]any) (any, error) {
			return now().UTC().Format("2006-01-02T15:04:05.000Z07:00"), nil
		},
	}
}

func webSearchTool(client *websearch.Client) Tool {
	return Tool{
		Name:        "web_search",
		Description: "Search the web for information. Returns a list of results with title, url, and snippet.",
		Parameters: map[string]Param{
			"query":       {Type: "string", Description: "Search query", Required: true},
			"max_results": {Type: "number", Description: "Maximum number of results to return (default: 5)"},
		},
		Execute: func(ctx context.Context, args map[string]any) (any, error) {
			query, err := requiredString(args, "query")
			if err != nil {
				return nil, err
			}
			count, err := optionalInt(args, "max_results")
			if err != nil {
				return nil, err
			}
			return client.Search(ctx, websearch.SearchRequest{Query: query, Count: count})
		},
	}
}
