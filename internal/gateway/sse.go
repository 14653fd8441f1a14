package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
)

// SSEWriter writes server-sent events. Tools may run in parallel, so Send
// is safe for concurrent use.
type SSEWriter struct {
	mu sync.Mutex
	w  http.ResponseWriter
	rc *http.ResponseController
}

func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &SSEWriter{
		w:  w,
		rc: http.NewResponseController(w),
	}
}

func (s *SSEWriter) Send(event string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		slog.Warn("gateway: encoding event", "event", event, "error", err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, b); err != nil {
		return err
	}
	return s.rc.Flush()
}
