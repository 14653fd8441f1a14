package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/tools/wikipedia"
)

const (
	defaultWikiLanguage = "en"
	wikiTopK            = 1
	wikiMaxChars        = 100
)

// Wiki queries Wikipedia and returns short summaries of the top article.
type Wiki struct {
	lookup func(ctx context.Context, query string) (string, error)
}

func NewWiki(language, userAgent string) *Wiki {
	if language == "" {
		language = defaultWikiLanguage
	}
	w := wikipedia.New(userAgent)
	w.LanguageCode = language
	w.TopK = wikiTopK
	w.DocMaxChars = wikiMaxChars
	return &Wiki{lookup: w.Call}
}

func (w *Wiki) Name() string { return "wikipedia" }
func (w *Wiki) Description() string {
	return "Look up a topic on Wikipedia. Input should be a search query."
}

func (w *Wiki) Call(ctx context.Context, input string) (string, error) {
	query := strings.TrimSpace(input)
	if query == "" {
		return "", errEmptyQuery
	}

	slog.Debug("wikipedia: querying", "query", query)
	out, err := w.lookup(ctx, query)
	if err != nil {
		return "", fmt.Errorf("wikipedia: %w", err)
	}
	if strings.TrimSpace(out) == "" {
		return "No good Wikipedia Search Result was found", nil
	}
	return clip(out), nil
}
