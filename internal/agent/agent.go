package agent

import (
	"context"

	"github.com/tmc/langchaingo/llms"
)

type EventType string

const (
	EventToken      EventType = "token"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventDone       EventType = "done"
	EventError      EventType = "error"
)

type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// Request is one agent invocation: the rendered prompt and the tools the
// agent may call. Emit, when set, receives progress events.
type Request struct {
	Messages []llms.ChatMessage
	Tools    *Registry
	Emit     func(Event)
}

func (r Request) emitter() func(Event) {
	if r.Emit != nil {
		return r.Emit
	}
	return func(Event) {}
}

func (r Request) registry() *Registry {
	if r.Tools != nil {
		return r.Tools
	}
	return NewRegistry()
}

// Runtime runs the agent until it produces its final text.
type Runtime interface {
	Invoke(ctx context.Context, req Request) (string, error)
}

// RuntimeFunc adapts a function to Runtime.
type RuntimeFunc func(ctx context.Context, req Request) (string, error)

func (f RuntimeFunc) Invoke(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
