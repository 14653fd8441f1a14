package agent

import (
	"context"
	"fmt"
	"strings"

	"deepresearch/internal/trace"

	"github.com/tmc/langchaingo/agents"
	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms"
	lctools "github.com/tmc/langchaingo/tools"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

var _ lctools.Tool = Tool(nil)

const toolsSection = "\n\nYou have access to the following tools:\n\n{{.tool_descriptions}}"

// LangChainRunner delegates the tool loop to a langchaingo one-shot agent.
// System messages become the agent's prompt prefix; history and the query
// are passed as its input.
type LangChainRunner struct {
	model         llms.Model
	maxIterations int
}

func NewLangChainRunner(model llms.Model, maxIterations int) *LangChainRunner {
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	return &LangChainRunner{model: model, maxIterations: maxIterations}
}

func (r *LangChainRunner) Invoke(ctx context.Context, req Request) (string, error) {
	emit := req.emitter()
	ctx = ContextWithEmit(ctx, emit)

	ctx, span := trace.Tracer().Start(ctx, "agent.langchain.invoke",
		oteltrace.WithAttributes(attribute.String("session.id", SessionIDFromContext(ctx))),
	)
	defer span.End()

	prefix, input := splitPrompt(req.Messages)

	reg := req.registry()
	tools := make([]lctools.Tool, 0, reg.Len())
	for _, t := range reg.All() {
		tools = append(tools, observe(t))
	}

	a := agents.NewOneShotAgent(r.model, tools,
		agents.WithMaxIterations(r.maxIterations),
		agents.WithPromptPrefix(escapeTemplate(prefix)+toolsSection),
	)
	executor := agents.NewExecutor(a, agents.WithMaxIterations(r.maxIterations))

	out, err := chains.Call(ctx, executor, map[string]any{"input": input})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		emit(Event{Type: EventError, Data: err.Error()})
		return "", err
	}

	text, ok := out["output"].(string)
	if !ok {
		err := fmt.Errorf("langchain executor returned %T output", out["output"])
		emit(Event{Type: EventError, Data: err.Error()})
		return "", err
	}
	emit(Event{Type: EventDone, Data: text})
	return text, nil
}

// splitPrompt separates system messages from the conversation. The
// conversation is flattened into a transcript ending with the query.
func splitPrompt(msgs []llms.ChatMessage) (string, string) {
	var system []string
	var convo []llms.ChatMessage
	for _, m := range msgs {
		if m.GetType() == llms.ChatMessageTypeSystem {
			system = append(system, m.GetContent())
			continue
		}
		convo = append(convo, m)
	}

	if len(convo) == 1 {
		return strings.Join(system, "\n\n"), convo[0].GetContent()
	}

	var b strings.Builder
	for i, m := range convo {
		if i > 0 {
			b.WriteString("\n")
		}
		switch m.GetType() {
		case llms.ChatMessageTypeAI:
			b.WriteString("Assistant: ")
		default:
			b.WriteString("Human: ")
		}
		b.WriteString(m.GetContent())
	}
	return strings.Join(system, "\n\n"), b.String()
}

func escapeTemplate(s string) string {
	return strings.ReplaceAll(s, "{{", `{{"{{"}}`)
}
