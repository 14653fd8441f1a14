package llm

import (
	"context"

	"github.com/openai/openai-go/v3/responses"
)

// Provider sends one model turn over the Responses API.
type Provider interface {
	ChatStream(ctx context.Context, input []responses.ResponseInputItemUnionParam, tools []responses.ToolUnionParam, onToken func(string)) (*responses.Response, error)
}

// Settings identifies a hosted model and how to reach it.
type Settings struct {
	Model   string
	BaseURL string
	APIKey  string
}
