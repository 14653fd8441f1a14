// Package history archives answered research entries in sqlite.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"deepresearch/internal/db"
	"deepresearch/internal/research"
)

var _ research.Archive = (*Store)(nil)

// Record is an archived entry with the session it belongs to.
type Record struct {
	ID        int64
	SessionID string
	research.Entry
}

type Store struct {
	q *db.Queries
}

func NewStore(database *db.DB) *Store {
	return &Store{q: db.New(database.Conn())}
}

func (s *Store) Append(ctx context.Context, sessionID string, e research.Entry) error {
	sources, err := json.Marshal(orEmpty(e.Sources))
	if err != nil {
		return fmt.Errorf("encoding sources: %w", err)
	}
	tools, err := json.Marshal(orEmpty(e.ToolsUsed))
	if err != nil {
		return fmt.Errorf("encoding tools used: %w", err)
	}

	askedAt := e.AskedAt
	if askedAt.IsZero() {
		askedAt = time.Now().UTC()
	}

	id, err := s.q.InsertEntry(ctx, db.InsertEntryParams{
		SessionID:     sessionID,
		Question:      e.Question,
		Topic:         e.Topic,
		Answer:        e.Answer,
		SourcesJson:   string(sources),
		ToolsUsedJson: string(tools),
		CreatedAt:     askedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("inserting entry: %w", err)
	}
	slog.Debug("history: entry archived", "id", id, "session", sessionID)
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.q.ListRecentEntries(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	return toRecords(rows), nil
}

// Session returns every archived entry of one session, oldest first.
func (s *Store) Session(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := s.q.ListEntriesBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing session %s: %w", sessionID, err)
	}
	return toRecords(rows), nil
}

func toRecords(rows []db.Entry) []Record {
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		r := Record{
			ID:        row.ID,
			SessionID: row.SessionID,
			Entry: research.Entry{
				Question:  row.Question,
				Topic:     row.Topic,
				Answer:    row.Answer,
				Sources:   decodeList(row.ID, row.SourcesJson),
				ToolsUsed: decodeList(row.ID, row.ToolsUsedJson),
			},
		}
		if t, err := time.Parse(time.RFC3339Nano, row.CreatedAt); err == nil {
			r.AskedAt = t
		}
		out = append(out, r)
	}
	return out
}

func decodeList(id int64, raw string) []string {
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		slog.Warn("history: skipping invalid list", "id", id, "error", err)
	}
	return orEmpty(items)
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
