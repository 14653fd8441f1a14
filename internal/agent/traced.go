package agent

import (
	"context"
	"log/slog"
	"time"

	"deepresearch/internal/trace"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// observedTool wraps a Tool with a span and tool_call/tool_result events
// sent to the emitter found in the call context.
type observedTool struct {
	Tool
}

func observe(t Tool) Tool {
	if _, ok := t.(*observedTool); ok {
		return t
	}
	return &observedTool{Tool: t}
}

func (t *observedTool) Call(ctx context.Context, input string) (string, error) {
	emit := EmitFromContext(ctx)
	emit(Event{Type: EventToolCall, Data: map[string]string{
		"name":  t.Name(),
		"input": input,
	}})

	ctx, span := trace.Tracer().Start(ctx, t.Name(),
		oteltrace.WithAttributes(
			attribute.String("gen_ai.operation.name", "execute_tool"),
			attribute.String("gen_ai.tool.name", t.Name()),
			attribute.String("gen_ai.tool.input", input),
		),
	)
	defer span.End()

	start := time.Now()
	result, err := t.Tool.Call(ctx, input)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Warn("tool execution failed", "name", t.Name(), "error", err)
		emit(Event{Type: EventToolResult, Data: map[string]string{
			"name":    t.Name(),
			"content": "error: " + err.Error(),
		}})
		return result, err
	}

	span.SetAttributes(attribute.Int("gen_ai.tool.output_length", len(result)))
	slog.Debug("tool executed", "name", t.Name(), "duration", time.Since(start), "bytes", len(result))
	emit(Event{Type: EventToolResult, Data: map[string]string{
		"name":    t.Name(),
		"content": result,
	}})
	return result, nil
}
