package db

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Entry struct {
	ID            int64
	SessionID     string
	Question      string
	Topic         string
	Answer        string
	SourcesJson   string
	ToolsUsedJson string
	CreatedAt     string
}

const insertEntry = `INSERT INTO entries (session_id, question, topic, answer, sources_json, tools_used_json, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
RETURNING id`

type InsertEntryParams struct {
	SessionID     string
	Question      string
	Topic         string
	Answer        string
	SourcesJson   string
	ToolsUsedJson string
	CreatedAt     string
}

func (q *Queries) InsertEntry(ctx context.Context, arg InsertEntryParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, insertEntry,
		arg.SessionID,
		arg.Question,
		arg.Topic,
		arg.Answer,
		arg.SourcesJson,
		arg.ToolsUsedJson,
		arg.CreatedAt,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const listRecentEntries = `SELECT id, session_id, question, topic, answer, sources_json, tools_used_json, created_at
FROM entries
ORDER BY id DESC
LIMIT ?`

func (q *Queries) ListRecentEntries(ctx context.Context, limit int64) ([]Entry, error) {
	rows, err := q.db.QueryContext(ctx, listRecentEntries, limit)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

const listEntriesBySession = `SELECT id, session_id, question, topic, answer, sources_json, tools_used_json, created_at
FROM entries
WHERE session_id = ?
ORDER BY id ASC`

func (q *Queries) ListEntriesBySession(ctx context.Context, sessionID string) ([]Entry, error) {
	rows, err := q.db.QueryContext(ctx, listEntriesBySession, sessionID)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	var items []Entry
	for rows.Next() {
		var i Entry
		if err := rows.Scan(
			&i.ID,
			&i.SessionID,
			&i.Question,
			&i.Topic,
			&i.Answer,
			&i.SourcesJson,
			&i.ToolsUsedJson,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
