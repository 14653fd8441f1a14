package gateway

import (
	"log/slog"
	"sync"
	"time"

	"deepresearch/internal/research"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultMaxSessions = 1000
	defaultSessionIdle = time.Hour
)

// sessionStore holds the live sessions, keyed by IDs the server issued.
// Sessions idle past the TTL or pushed out by the size cap are dropped.
// Ended sessions leave only their ID behind so a stale form can still be
// told the session is over.
type sessionStore struct {
	mu     sync.Mutex
	live   *expirable.LRU[string, *research.Session]
	ended  *expirable.LRU[string, struct{}]
	create func() *research.Session
}

func newSessionStore(limit int, idle time.Duration, create func() *research.Session) *sessionStore {
	if limit <= 0 {
		limit = defaultMaxSessions
	}
	if idle <= 0 {
		idle = defaultSessionIdle
	}
	onEvict := func(id string, _ *research.Session) {
		slog.Debug("gateway: session dropped", "session", id)
	}
	return &sessionStore{
		live:   expirable.NewLRU[string, *research.Session](limit, onEvict, idle),
		ended:  expirable.NewLRU[string, struct{}](limit, nil, idle),
		create: create,
	}
}

// get returns the live session for id. Any other ID, including one the
// client made up, gets a new session under a new ID.
func (s *sessionStore) get(id string) *research.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.live.Get(id); ok {
		s.live.Add(id, sess)
		return sess
	}
	return s.start(id)
}

// fresh is get for a page load: an ended session is replaced too.
func (s *sessionStore) fresh(id string) *research.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.live.Get(id); ok && !sess.Ended() {
		s.live.Add(id, sess)
		return sess
	}
	s.live.Remove(id)
	s.ended.Remove(id)
	return s.start(id)
}

func (s *sessionStore) start(prev string) *research.Session {
	sess := s.create()
	s.live.Add(sess.ID(), sess)
	slog.Debug("gateway: session started", "session", sess.ID(), "requested", prev)
	return sess
}

// end drops a session that received exit.
func (s *sessionStore) end(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live.Remove(id)
	s.ended.Add(id, struct{}{})
}

func (s *sessionStore) hasEnded(id string) bool {
	_, ok := s.ended.Get(id)
	return ok
}

func (s *sessionStore) lookup(id string) (*research.Session, bool) {
	return s.live.Get(id)
}

func (s *sessionStore) len() int {
	return s.live.Len()
}
