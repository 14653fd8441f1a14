package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"deepresearch/internal/llm"
	"deepresearch/internal/trace"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/responses"
	"github.com/tmc/langchaingo/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const defaultMaxIterations = 10

var ErrMaxIterations = errors.New("agent stopped after reaching the iteration limit")

type ReactOption func(*ReactRunner)

// WithMaxIterations bounds the number of model turns per invocation.
func WithMaxIterations(n int) ReactOption {
	return func(r *ReactRunner) {
		if n > 0 {
			r.maxIterations = n
		}
	}
}

// ReactRunner implements a ReAct (Reason + Act) agent loop over the
// Responses API. The agent keeps thinking and acting until the model
// returns no more tool calls, the iteration limit is hit or the context is
// cancelled.
type ReactRunner struct {
	provider      llm.Provider
	maxIterations int
}

func NewReactRunner(provider llm.Provider, opts ...ReactOption) *ReactRunner {
	r := &ReactRunner{
		provider:      provider,
		maxIterations: defaultMaxIterations,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *ReactRunner) Invoke(ctx context.Context, req Request) (string, error) {
	emit := req.emitter()
	ctx = ContextWithEmit(ctx, emit)

	ctx, span := trace.Tracer().Start(ctx, "agent.react.invoke",
		oteltrace.WithAttributes(
			attribute.String("session.id", SessionIDFromContext(ctx)),
			attribute.Int("agent.messages", len(req.Messages)),
			attribute.Int("agent.tools", req.registry().Len()),
		),
	)
	defer span.End()

	reg := req.registry()
	input := MessagesToInput(req.Messages)
	tools := functionTools(reg)

	resp, err := r.loop(ctx, input, tools, reg, emit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		emit(Event{Type: EventError, Data: err.Error()})
		return "", err
	}

	text := resp.OutputText()
	emit(Event{Type: EventDone, Data: text})
	return text, nil
}

// loop is the core ReAct cycle. Each iteration is a single model call in
// which the model reasons about the current state and picks actions. Tool
// failures go back into context so the model can adapt on the next turn.
func (r *ReactRunner) loop(ctx context.Context, input []responses.ResponseInputItemUnionParam, tools []responses.ToolUnionParam, reg *Registry, emit func(Event)) (*responses.Response, error) {
	for iteration := 0; iteration < r.maxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		llmCtx, llmSpan := trace.Tracer().Start(ctx, "llm.react",
			oteltrace.WithAttributes(attribute.Int("llm.iteration", iteration)),
		)
		resp, err := r.provider.ChatStream(llmCtx, input, tools, func(token string) {
			emit(Event{Type: EventToken, Data: token})
		})
		if err != nil {
			llmSpan.RecordError(err)
			llmSpan.SetStatus(codes.Error, err.Error())
			llmSpan.End()
			return nil, err
		}
		llmSpan.SetAttributes(
			attribute.String("llm.model", string(resp.Model)),
			attribute.Int64("llm.input_tokens", resp.Usage.InputTokens),
			attribute.Int64("llm.output_tokens", resp.Usage.OutputTokens),
		)
		llmSpan.End()

		input = append(input, OutputToInput(resp.Output)...)

		var calls []responses.ResponseFunctionToolCall
		for _, item := range resp.Output {
			if item.Type == "function_call" {
				calls = append(calls, item.AsFunctionCall())
			}
		}

		slog.Debug("agent.react: turn complete", "iteration", iteration, "tool_calls", len(calls))

		if len(calls) == 0 {
			return resp, nil
		}

		input = append(input, r.act(ctx, calls, reg)...)
	}

	return nil, fmt.Errorf("%w (%d)", ErrMaxIterations, r.maxIterations)
}

// act executes tool calls in parallel and returns their results as input
// items for the next model turn, in call order.
func (r *ReactRunner) act(ctx context.Context, calls []responses.ResponseFunctionToolCall, reg *Registry) []responses.ResponseInputItemUnionParam {
	var wg sync.WaitGroup
	results := make([]responses.ResponseInputItemUnionParam, len(calls))

	for i, fc := range calls {
		wg.Add(1)
		go func(i int, fc responses.ResponseFunctionToolCall) {
			defer wg.Done()

			tool, ok := reg.Get(fc.Name)
			if !ok {
				slog.Warn("unknown tool call", "name", fc.Name)
				results[i] = responses.ResponseInputItemParamOfFunctionCallOutput(fc.CallID, "error: unknown tool")
				return
			}

			out, err := observe(tool).Call(ctx, toolInput(fc.Arguments))
			if err != nil {
				out = "error: " + err.Error()
			}
			results[i] = responses.ResponseInputItemParamOfFunctionCallOutput(fc.CallID, out)
		}(i, fc)
	}

	wg.Wait()
	return results
}

// toolInput extracts the "input" argument of a function call, falling back
// to the raw arguments when they are not the expected object.
func toolInput(arguments string) string {
	var args struct {
		Input *string `json:"input"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil || args.Input == nil {
		return arguments
	}
	return *args.Input
}

func functionTools(reg *Registry) []responses.ToolUnionParam {
	var out []responses.ToolUnionParam
	for _, t := range reg.All() {
		out = append(out, responses.ToolUnionParam{
			OfFunction: &responses.FunctionToolParam{
				Name:        t.Name(),
				Description: openai.String(t.Description()),
				Parameters:  toolInputSchema(t),
				Strict:      openai.Bool(true),
			},
		})
	}
	return out
}

// MessagesToInput converts rendered prompt messages into Responses API
// input items.
func MessagesToInput(msgs []llms.ChatMessage) []responses.ResponseInputItemUnionParam {
	items := make([]responses.ResponseInputItemUnionParam, 0, len(msgs))
	for _, m := range msgs {
		var role responses.EasyInputMessageRole
		switch m.GetType() {
		case llms.ChatMessageTypeSystem:
			role = responses.EasyInputMessageRoleSystem
		case llms.ChatMessageTypeAI:
			role = responses.EasyInputMessageRoleAssistant
		case llms.ChatMessageTypeHuman, llms.ChatMessageTypeGeneric:
			role = responses.EasyInputMessageRoleUser
		default:
			slog.Debug("agent: skipping prompt message", "type", m.GetType())
			continue
		}
		items = append(items, responses.ResponseInputItemParamOfMessage(m.GetContent(), role))
	}
	return items
}

// OutputToInput converts response output items into input item params for
// the next call.
func OutputToInput(output []responses.ResponseOutputItemUnion) []responses.ResponseInputItemUnionParam {
	var items []responses.ResponseInputItemUnionParam
	for _, item := range output {
		switch item.Type {
		case "message":
			v := item.AsMessage().ToParam()
			items = append(items, responses.ResponseInputItemUnionParam{OfOutputMessage: &v})
		case "function_call":
			v := item.AsFunctionCall().ToParam()
			items = append(items, responses.ResponseInputItemUnionParam{OfFunctionCall: &v})
		case "reasoning":
			v := item.AsReasoning().ToParam()
			items = append(items, responses.ResponseInputItemUnionParam{OfReasoning: &v})
		default:
			slog.Debug("skipping unknown output item type", "type", item.Type)
		}
	}
	return items
}
