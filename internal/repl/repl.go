// Package repl runs the interactive research prompt on a terminal.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"deepresearch/internal/agent"
	"deepresearch/internal/extract"
	"deepresearch/internal/research"
)

const Prompt = "What can I help you research? (Type 'exit' to quit) "

type State int

const (
	AwaitingInput State = iota
	Invoking
	Displaying
	Ended
)

func (s State) String() string {
	switch s {
	case AwaitingInput:
		return "awaiting_input"
	case Invoking:
		return "invoking"
	case Displaying:
		return "displaying"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

// Loop reads one query per line and prints each answer. Verbose prints
// tool activity while the agent runs.
type Loop struct {
	Session *research.Session
	Verbose bool

	state State
}

func New(s *research.Session, verbose bool) *Loop {
	return &Loop{Session: s, Verbose: verbose}
}

func (l *Loop) State() State { return l.state }

// Run uses stdin and stdout.
func (l *Loop) Run(ctx context.Context) error {
	return l.RunRW(ctx, os.Stdin, os.Stdout)
}

// RunRW runs until exit, EOF or context cancellation.
func (l *Loop) RunRW(ctx context.Context, r io.Reader, w io.Writer) error {
	// Tool events may arrive from parallel tool calls.
	var mu sync.Mutex
	writeAndFlush := func(s string) error {
		mu.Lock()
		defer mu.Unlock()
		if _, err := io.WriteString(w, s); err != nil {
			return err
		}
		if flusher, ok := w.(interface{ Flush() error }); ok {
			_ = flusher.Flush()
		}
		return nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	l.state = AwaitingInput
	for l.state != Ended {
		if err := ctx.Err(); err != nil {
			l.state = Ended
			return err
		}
		if err := writeAndFlush(Prompt); err != nil {
			return err
		}

		if !scanner.Scan() {
			l.state = Ended
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("reading input: %w", err)
			}
			return writeAndFlush("\n")
		}

		var emit func(agent.Event)
		if l.Verbose {
			emit = func(ev agent.Event) { _ = writeAndFlush(formatEvent(ev)) }
		}

		l.state = Invoking
		reply := l.Session.Submit(ctx, scanner.Text(), emit)

		switch reply.Status {
		case research.StatusEnded:
			l.state = Ended
			continue
		case research.StatusIgnored:
			l.state = AwaitingInput
			continue
		}

		l.state = Displaying
		if err := writeAndFlush(display(reply)); err != nil {
			return err
		}
		l.state = AwaitingInput
	}
	return nil
}

func display(reply research.Reply) string {
	switch reply.Status {
	case research.StatusAnswered, research.StatusRepeated:
		return "\n" + extract.Render(extract.Delimited, reply.Entry.Result()) + "\n\n"
	case research.StatusNoPrevious:
		return "No previous answer found.\n"
	case research.StatusFailed:
		raw := reply.Raw
		var me *extract.MalformedOutputError
		if errors.As(reply.Err, &me) {
			raw = me.Raw
		}
		return fmt.Sprintf("Error parsing response %v Raw Response - %s\n", reply.Err, raw)
	default:
		return ""
	}
}

func formatEvent(ev agent.Event) string {
	data, _ := ev.Data.(map[string]string)
	switch ev.Type {
	case agent.EventToolCall:
		return fmt.Sprintf("[tool call] %s: %s\n", data["name"], data["input"])
	case agent.EventToolResult:
		return fmt.Sprintf("[tool result] %s: %s\n", data["name"], preview(data["content"]))
	default:
		return ""
	}
}

func preview(s string) string {
	const limit = 200
	r := []rune(s)
	if len(r) > limit {
		return string(r[:limit]) + "..."
	}
	return s
}
