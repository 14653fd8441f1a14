package research

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"deepresearch/internal/agent"

	"github.com/google/uuid"
)

const exitCommand = "exit"

var repeatPhrases = []string{
	"previous answer",
	"repeat last answer",
	"last answer",
	"previous response",
	"repeat previous",
}

// IsExit reports whether input is the exit sentinel.
func IsExit(input string) bool {
	return strings.EqualFold(strings.TrimSpace(input), exitCommand)
}

// IsRepeatRequest reports whether input asks for the previous answer again.
func IsRepeatRequest(input string) bool {
	lower := strings.ToLower(input)
	for _, p := range repeatPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Archive persists answered entries beyond the session's lifetime.
type Archive interface {
	Append(ctx context.Context, sessionID string, e Entry) error
}

type Status int

const (
	StatusAnswered Status = iota
	StatusRepeated
	StatusNoPrevious
	StatusEnded
	StatusIgnored
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusAnswered:
		return "answered"
	case StatusRepeated:
		return "repeated"
	case StatusNoPrevious:
		return "no_previous"
	case StatusEnded:
		return "ended"
	case StatusIgnored:
		return "ignored"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Reply is the outcome of one submitted input. Entry is set for answered
// and repeated replies; Raw and Err for failed ones.
type Reply struct {
	Status Status
	Entry  Entry
	Raw    string
	Err    error
}

type Option func(*Session)

// WithRepeatDetection makes the session answer repeat requests from its
// history instead of calling the agent.
func WithRepeatDetection() Option {
	return func(s *Session) { s.repeat = true }
}

func WithArchive(a Archive) Option {
	return func(s *Session) { s.archive = a }
}

func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// Session is one conversation. Submissions are serialized; history is kept
// for the lifetime of the session.
type Session struct {
	id         string
	researcher *Researcher
	repeat     bool
	archive    Archive

	mu      sync.Mutex
	history []Entry
	ended   bool
}

func NewSession(r *Researcher, opts ...Option) *Session {
	s := &Session{researcher: r}
	for _, o := range opts {
		o(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	return s
}

func (s *Session) ID() string { return s.id }

// Submit handles one line of user input. It blocks until the agent, if
// called, returns.
func (s *Session) Submit(ctx context.Context, input string, emit func(agent.Event)) Reply {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return Reply{Status: StatusEnded}
	}
	if IsExit(input) {
		s.ended = true
		slog.Debug("session: ended", "session", s.id, "entries", len(s.history))
		return Reply{Status: StatusEnded}
	}

	query := strings.TrimSpace(input)
	if query == "" {
		return Reply{Status: StatusIgnored, Err: ErrEmptyInput}
	}

	if s.repeat && IsRepeatRequest(query) {
		if len(s.history) == 0 {
			return Reply{Status: StatusNoPrevious}
		}
		slog.Debug("session: repeating", "session", s.id)
		return Reply{Status: StatusRepeated, Entry: s.history[len(s.history)-1]}
	}

	ctx = agent.ContextWithSessionID(ctx, s.id)
	res, raw, err := s.researcher.Research(ctx, query, s.history, emit)
	if err != nil {
		if errors.Is(err, ErrEmptyInput) {
			return Reply{Status: StatusIgnored, Err: err}
		}
		return Reply{Status: StatusFailed, Raw: raw, Err: err}
	}

	entry := NewEntry(query, res)
	s.history = append(s.history, entry)

	if s.archive != nil {
		if err := s.archive.Append(ctx, s.id, entry); err != nil {
			slog.Warn("session: archiving entry", "session", s.id, "error", err)
		}
	}
	return Reply{Status: StatusAnswered, Entry: entry, Raw: raw}
}

// History returns a copy of the answered entries, oldest first.
func (s *Session) History() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.history...)
}

// Last returns the most recent entry.
func (s *Session) Last() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		return Entry{}, false
	}
	return s.history[len(s.history)-1], true
}

func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}
