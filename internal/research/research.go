// Package research turns a user query into a research result: it renders
// the prompt, runs the agent and extracts the answer from its final text.
package research

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"deepresearch/internal/agent"
	"deepresearch/internal/extract"
	"deepresearch/internal/prompt"
	"deepresearch/internal/trace"

	"github.com/tmc/langchaingo/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Config is built once at startup and never modified afterwards.
type Config struct {
	Runtime agent.Runtime
	// Prompt defaults to prompt.New(Mode).
	Prompt *prompt.Template
	Tools  *agent.Registry
	Mode   extract.Mode
	// HistoryTurns is how many earlier entries of the session are sent as
	// chat history. Zero sends none.
	HistoryTurns int
}

// Entry is one answered question of a session.
type Entry struct {
	Question  string    `json:"question"`
	Topic     string    `json:"topic,omitempty"`
	Answer    string    `json:"answer"`
	Sources   []string  `json:"sources"`
	ToolsUsed []string  `json:"tools_used"`
	AskedAt   time.Time `json:"asked_at"`
}

func NewEntry(question string, r extract.Result) Entry {
	return Entry{
		Question:  question,
		Topic:     r.Topic,
		Answer:    r.Answer,
		Sources:   r.Sources,
		ToolsUsed: r.ToolsUsed,
		AskedAt:   time.Now().UTC(),
	}
}

func (e Entry) Result() extract.Result {
	return extract.Result{
		Topic:     e.Topic,
		Answer:    e.Answer,
		Sources:   e.Sources,
		ToolsUsed: e.ToolsUsed,
	}
}

type Researcher struct {
	cfg Config
}

func New(cfg Config) (*Researcher, error) {
	if cfg.Runtime == nil {
		return nil, errors.New("research: runtime is required")
	}
	if cfg.Prompt == nil {
		cfg.Prompt = prompt.New(cfg.Mode)
	}
	if cfg.Tools == nil {
		cfg.Tools = agent.NewRegistry()
	}
	if cfg.HistoryTurns < 0 {
		cfg.HistoryTurns = 0
	}
	return &Researcher{cfg: cfg}, nil
}

func (r *Researcher) Mode() extract.Mode { return r.cfg.Mode }

// Research runs one query. On failure the raw agent text, if any, is
// returned alongside the error so callers can show it.
func (r *Researcher) Research(ctx context.Context, query string, history []Entry, emit func(agent.Event)) (extract.Result, string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return extract.Result{}, "", ErrEmptyInput
	}

	ctx, span := trace.Tracer().Start(ctx, "research",
		oteltrace.WithAttributes(
			attribute.String("session.id", agent.SessionIDFromContext(ctx)),
			attribute.String("research.mode", r.cfg.Mode.String()),
			attribute.Int("research.history", len(history)),
		),
	)
	defer span.End()

	msgs, err := r.cfg.Prompt.Format(query, r.historyMessages(history), nil)
	if err != nil {
		span.RecordError(err)
		return extract.Result{}, "", err
	}

	slog.Debug("research: invoking", "mode", r.cfg.Mode.String(), "tools", r.cfg.Tools.Names(), "history", len(history))
	start := time.Now()
	raw, err := r.cfg.Runtime.Invoke(ctx, agent.Request{
		Messages: msgs,
		Tools:    r.cfg.Tools,
		Emit:     emit,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Warn("research: runtime failed", "error", err)
		return extract.Result{}, raw, &TransportError{Err: err}
	}
	slog.Debug("research: runtime done", "duration", time.Since(start), "bytes", len(raw))

	res, err := extract.Extract(r.cfg.Mode, raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed output")
		slog.Warn("research: malformed output", "error", err)
		return extract.Result{}, raw, err
	}

	span.SetAttributes(
		attribute.Int("research.sources", len(res.Sources)),
		attribute.Int("research.tools_used", len(res.ToolsUsed)),
	)
	return res, raw, nil
}

// historyMessages renders the most recent entries as alternating human and
// AI messages, oldest first.
func (r *Researcher) historyMessages(history []Entry) []llms.ChatMessage {
	n := r.cfg.HistoryTurns
	if n == 0 || len(history) == 0 {
		return nil
	}
	if len(history) > n {
		history = history[len(history)-n:]
	}

	msgs := make([]llms.ChatMessage, 0, 2*len(history))
	for _, e := range history {
		msgs = append(msgs,
			llms.HumanChatMessage{Content: e.Question},
			llms.AIChatMessage{Content: extract.Render(r.cfg.Mode, e.Result())},
		)
	}
	return msgs
}
