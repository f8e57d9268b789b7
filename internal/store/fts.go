package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SearchQuery is the parsed form of a search_messages query string (tokenizer
// lives in internal/mail/query.go, kept out of this package to avoid a
// store<->mail import cycle). AndTokens are ANDed; PrefixTokens enable
// trailing-wildcard prefix matching; Phrases must match exactly as a unit.
type SearchQuery struct {
	AndTokens    []string
	PrefixTokens []string
	Phrases      []string
}

func (q SearchQuery) empty() bool {
	return len(q.AndTokens) == 0 && len(q.PrefixTokens) == 0 && len(q.Phrases) == 0
}

// MessageRow is the row shape returned by search and inbox queries.
type MessageRow struct {
	ID          int64
	ProjectID   int64
	SenderID    int64
	ThreadID    string
	Subject     string
	BodyMD      string
	Importance  string
	AckRequired bool
	CreatedTS   Epoch
	Attachments string
}

// fts5Available reports whether migrateFTS successfully created the fts5
// virtual table on this database, cached via schema_meta so callers never
// need to re-probe.
func (db *DB) fts5Available(ctx context.Context) bool {
	var value string
	err := db.read.QueryRowContext(ctx, `SELECT value FROM schema_meta WHERE key = 'fts5_available'`).Scan(&value)
	if err != nil {
		return false
	}
	return value == "1"
}

// SearchMessages runs q against project projectID's messages, transparently
// using FTS5 MATCH when available and falling back to tokenized LIKE
// AND-combination otherwise (spec §4.1: "the fallback must be transparent
// to callers"). Empty queries and queries against nonexistent projects both
// return an empty, non-error result (spec §4.3).
func (db *DB) SearchMessages(ctx context.Context, projectID int64, q SearchQuery, limit int) ([]MessageRow, error) {
	if q.empty() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	if db.fts5Available(ctx) {
		rows, err := db.searchFTS(ctx, projectID, q, limit)
		if err == nil {
			return rows, nil
		}
		// Fall through to LIKE on any FTS-path failure; the caller never sees
		// which path ran.
	}
	return db.searchLike(ctx, projectID, q, limit)
}

func (db *DB) searchFTS(ctx context.Context, projectID int64, q SearchQuery, limit int) ([]MessageRow, error) {
	match := buildFTSMatch(q)
	if match == "" {
		return nil, nil
	}
	rows, err := db.read.QueryContext(ctx, `
		SELECT m.id, m.project_id, m.sender_id, m.thread_id, m.subject, m.body_md, m.importance, m.ack_required, m.created_ts, m.attachments
		FROM messages_fts
		JOIN messages m ON m.id = messages_fts.rowid
		WHERE messages_fts MATCH ? AND m.project_id = ?
		ORDER BY m.created_ts DESC
		LIMIT ?`, match, projectID, limit)
	if err != nil {
		return nil, err
	}
	return scanMessageRows(rows)
}

// buildFTSMatch renders a SearchQuery into an FTS5 MATCH query string: plain
// tokens and phrases are ANDed implicitly by FTS5 (space-separated terms),
// prefix tokens get a trailing '*'.
func buildFTSMatch(q SearchQuery) string {
	var parts []string
	for _, t := range q.AndTokens {
		parts = append(parts, sanitizeFTSTerm(t))
	}
	for _, t := range q.PrefixTokens {
		parts = append(parts, sanitizeFTSTerm(t)+"*")
	}
	for _, p := range q.Phrases {
		parts = append(parts, `"`+strings.ReplaceAll(p, `"`, `""`)+`"`)
	}
	return strings.Join(parts, " ")
}

func sanitizeFTSTerm(t string) string {
	// FTS5 bare terms can't contain quotes or the MATCH operators; quoting
	// every term sidesteps escaping edge cases entirely.
	return `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
}

func (db *DB) searchLike(ctx context.Context, projectID int64, q SearchQuery, limit int) ([]MessageRow, error) {
	var clauses []string
	var args []any
	args = append(args, projectID)

	addLike := func(term string) {
		clauses = append(clauses, "(subject LIKE ? ESCAPE '\\' OR body_md LIKE ? ESCAPE '\\')")
		pattern := "%" + escapeLike(term) + "%"
		args = append(args, pattern, pattern)
	}
	for _, t := range q.AndTokens {
		addLike(t)
	}
	for _, t := range q.PrefixTokens {
		clauses = append(clauses, "(subject LIKE ? ESCAPE '\\' OR body_md LIKE ? ESCAPE '\\')")
		pattern := escapeLike(t) + "%"
		args = append(args, pattern, pattern)
	}
	for _, p := range q.Phrases {
		addLike(p)
	}
	if len(clauses) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT id, project_id, sender_id, thread_id, subject, body_md, importance, ack_required, created_ts, attachments
		FROM messages
		WHERE project_id = ? AND %s
		ORDER BY created_ts DESC
		LIMIT %d`, strings.Join(clauses, " AND "), limit)

	rows, err := db.read.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanMessageRows(rows)
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}

func scanMessageRows(rows *sql.Rows) ([]MessageRow, error) {
	defer func() { _ = rows.Close() }()
	var out []MessageRow
	for rows.Next() {
		var r MessageRow
		var ack int
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.SenderID, &r.ThreadID, &r.Subject, &r.BodyMD, &r.Importance, &ack, &r.CreatedTS, &r.Attachments); err != nil {
			return nil, err
		}
		r.AckRequired = ack != 0
		out = append(out, r)
	}
	if out == nil {
		out = []MessageRow{}
	}
	return out, rows.Err()
}
