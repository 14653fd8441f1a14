package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"deepresearch/internal/channels"
	"deepresearch/internal/research"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Server struct {
	researcher *research.Researcher
	sessions   *sessionStore
	token      string
	mux        *http.ServeMux

	archive     research.Archive
	maxSessions int
	sessionIdle time.Duration
}

type Option func(*Server)

// WithToken requires API requests to carry "Authorization: Bearer <token>".
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithArchive stores every answered entry of every session.
func WithArchive(a research.Archive) Option {
	return func(s *Server) { s.archive = a }
}

// WithSessionLimits caps the number of live sessions and drops sessions
// idle for longer than idle. Zero values keep the defaults.
func WithSessionLimits(limit int, idle time.Duration) Option {
	return func(s *Server) {
		s.maxSessions = limit
		s.sessionIdle = idle
	}
}

func NewServer(researcher *research.Researcher, chs []channels.Channel, opts ...Option) *Server {
	s := &Server{
		researcher: researcher,
		mux:        http.NewServeMux(),
	}
	for _, o := range opts {
		o(s)
	}
	s.sessions = newSessionStore(s.maxSessions, s.sessionIdle, s.newSession)

	s.routes()
	for _, ch := range chs {
		ch.RegisterRoutes(s.mux)
	}
	return s
}

func (s *Server) newSession() *research.Session {
	opts := []research.Option{research.WithRepeatDetection()}
	if s.archive != nil {
		opts = append(opts, research.WithArchive(s.archive))
	}
	return research.NewSession(s.researcher, opts...)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleFormPage)
	s.mux.HandleFunc("POST /{$}", s.handleFormSubmit)
	s.mux.HandleFunc("POST /v1/research", s.requireToken(s.handleResearch))
	s.mux.HandleFunc("GET /v1/sessions/{id}", s.requireToken(s.handleGetSession))
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
}

func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.mux, "gateway")
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("gateway: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
