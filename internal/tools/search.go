package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	bravesearch "github.com/cnosuke/go-brave-search"
	"github.com/tmc/langchaingo/tools/duckduckgo"
)

const (
	defaultSearchResults = 5
	maxSearchResults     = 20
)

// Search looks a query up on the web. Brave is used when an API key is
// configured, DuckDuckGo otherwise.
type Search struct {
	backend string
	search  func(ctx context.Context, query string) (string, error)
}

func NewSearch(braveAPIKey string, count int, userAgent string) (*Search, error) {
	if count <= 0 {
		count = defaultSearchResults
	}
	if count > maxSearchResults {
		count = maxSearchResults
	}

	if braveAPIKey != "" {
		client, err := bravesearch.NewClient(braveAPIKey)
		if err != nil {
			return nil, fmt.Errorf("creating brave client: %w", err)
		}
		return &Search{backend: "brave", search: braveSearch(client, count)}, nil
	}

	ddg, err := duckduckgo.New(count, userAgent)
	if err != nil {
		return nil, fmt.Errorf("creating duckduckgo client: %w", err)
	}
	return &Search{backend: "duckduckgo", search: ddg.Call}, nil
}

func (s *Search) Name() string { return "search" }
func (s *Search) Description() string {
	return "Search the web for information. Input should be a search query."
}

// Backend names the search engine in use.
func (s *Search) Backend() string { return s.backend }

func (s *Search) Call(ctx context.Context, input string) (string, error) {
	query := strings.TrimSpace(input)
	if query == "" {
		return "", errEmptyQuery
	}

	slog.Debug("search: querying", "backend", s.backend, "query", query)
	out, err := s.search(ctx, query)
	if err != nil {
		return "", fmt.Errorf("%s search: %w", s.backend, err)
	}
	if strings.TrimSpace(out) == "" {
		return "No results found.", nil
	}

	slog.Debug("search: done", "backend", s.backend, "query", query, "bytes", len(out))
	return clip(out), nil
}

func braveSearch(client *bravesearch.Client, count int) func(context.Context, string) (string, error) {
	return func(ctx context.Context, query string) (string, error) {
		resp, err := client.WebSearch(ctx, query, &bravesearch.WebSearchParams{
			Count: count,
		})
		if err != nil {
			return "", err
		}

		var b strings.Builder
		for i, r := range resp.GetWebResults() {
			if i > 0 {
				b.WriteString("\n---\n")
			}
			fmt.Fprintf(&b, "%s\n%s\n%s", r.Title, r.URL, stripTags(r.Description))
		}
		return b.String(), nil
	}
}
