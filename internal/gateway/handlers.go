package gateway

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"deepresearch/internal/agent"
	"deepresearch/internal/extract"
	"deepresearch/internal/research"
)

type researchRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

type resultPayload struct {
	SessionID string          `json:"session_id"`
	Status    string          `json:"status"`
	Entry     *research.Entry `json:"entry,omitempty"`
}

type errorPayload struct {
	SessionID string `json:"session_id"`
	Error     string `json:"error"`
	Raw       string `json:"raw,omitempty"`
}

type sessionPayload struct {
	ID      string           `json:"id"`
	Ended   bool             `json:"ended"`
	History []research.Entry `json:"history"`
}

func (s *Server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	var req researchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSONError(w, http.StatusBadRequest, "query is required")
		return
	}

	if s.sessions.hasEnded(req.SessionID) {
		sse := NewSSEWriter(w)
		sse.Send("result", resultPayload{SessionID: req.SessionID, Status: research.StatusEnded.String()})
		sse.Send("done", map[string]any{})
		return
	}

	sess := s.sessions.get(req.SessionID)
	sse := NewSSEWriter(w)

	// Structured output is only shown once it parses.
	streamTokens := s.researcher.Mode() != extract.Structured
	reply := sess.Submit(r.Context(), req.Query, func(ev agent.Event) {
		switch ev.Type {
		case agent.EventToken:
			if streamTokens {
				sse.Send("token", map[string]any{"content": ev.Data})
			}
		case agent.EventToolCall, agent.EventToolResult:
			sse.Send(string(ev.Type), ev.Data)
		}
	})
	if reply.Status == research.StatusEnded {
		s.sessions.end(sess.ID())
	}

	if reply.Status == research.StatusFailed {
		payload := errorPayload{SessionID: sess.ID(), Error: reply.Err.Error(), Raw: reply.Raw}
		var me *extract.MalformedOutputError
		if errors.As(reply.Err, &me) {
			payload.Raw = me.Raw
		}
		sse.Send("error", payload)
		return
	}

	payload := resultPayload{SessionID: sess.ID(), Status: reply.Status.String()}
	if reply.Status == research.StatusAnswered || reply.Status == research.StatusRepeated {
		payload.Entry = &reply.Entry
	}
	sse.Send("result", payload)
	sse.Send("done", map[string]any{})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.lookup(r.PathValue("id"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "session not found")
		return
	}

	history := sess.History()
	if history == nil {
		history = []research.Entry{}
	}
	writeJSON(w, http.StatusOK, sessionPayload{
		ID:      sess.ID(),
		Ended:   sess.Ended(),
		History: history,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
