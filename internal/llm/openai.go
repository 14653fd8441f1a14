package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var ErrIncompleteStream = errors.New("response stream ended before completion")

type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// HTTPClient returns the instrumented client used for model calls.
// A zero timeout leaves requests bounded only by their context.
func HTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

func NewOpenAI(s Settings, timeout time.Duration) *OpenAIProvider {
	var opts []option.RequestOption
	if s.APIKey != "" {
		opts = append(opts, option.WithAPIKey(s.APIKey))
	}
	if s.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(s.BaseURL))
	}
	opts = append(opts, option.WithHTTPClient(HTTPClient(timeout)))
	client := openai.NewClient(opts...)
	return &OpenAIProvider{client: &client, model: s.Model}
}

func (o *OpenAIProvider) ChatStream(ctx context.Context, input []responses.ResponseInputItemUnionParam, tools []responses.ToolUnionParam, onToken func(string)) (*responses.Response, error) {
	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(o.model),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: input,
		},
		Tools: tools,
	}

	stream := o.client.Responses.NewStreaming(ctx, params)
	defer stream.Close()

	var completed *responses.Response

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "response.output_text.delta":
			if event.Delta != "" && onToken != nil {
				onToken(event.Delta)
			}
		case "response.completed":
			completed = &event.Response
		case "response.failed":
			return nil, fmt.Errorf("response failed: %s", event.Response.Error.Message)
		}
	}

	if err := stream.Err(); err != nil {
		return nil, err
	}
	if completed == nil {
		return nil, ErrIncompleteStream
	}

	return completed, nil
}

// NewLangChainModel returns a langchaingo chat model for the same endpoint,
// used by the langchain runtime.
func NewLangChainModel(s Settings, timeout time.Duration) (*lcopenai.LLM, error) {
	opts := []lcopenai.Option{
		lcopenai.WithModel(s.Model),
		lcopenai.WithHTTPClient(HTTPClient(timeout)),
	}
	if s.APIKey != "" {
		opts = append(opts, lcopenai.WithToken(s.APIKey))
	}
	if s.BaseURL != "" {
		opts = append(opts, lcopenai.WithBaseURL(s.BaseURL))
	}
	model, err := lcopenai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating langchain model: %w", err)
	}
	return model, nil
}
