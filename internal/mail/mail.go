package mail

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dicklesworthstone/agentmail/internal/identity"
	"github.com/dicklesworthstone/agentmail/internal/mcperr"
	"github.com/dicklesworthstone/agentmail/internal/store"
)

const subjectMaxLen = 200

// Message mirrors the Message entity (spec §3).
type Message struct {
	ID           int64
	ProjectID    int64
	SenderID     int64
	ThreadID     string
	Subject      string
	BodyMD       string
	Importance   string
	AckRequired  bool
	CreatedTS    store.Epoch
	Attachments  []string
	Recipients   []Recipient
}

// Recipient is one row of message_recipients, joined onto the read path.
type Recipient struct {
	AgentID int64
	Kind    string // to, cc, bcc
	ReadTS  store.Epoch
	AckTS   store.Epoch
}

// RecipientSpec is the caller-supplied recipient list for send_message.
type RecipientSpec struct {
	AgentID int64
	Kind    string
}

var validImportance = map[string]bool{"low": true, "normal": true, "high": true, "urgent": true}

// SendMessage implements send_message (spec §4.3). Subject longer than 200
// characters is silently truncated (spec §9 Open Question, resolved: no
// error, no warning field — truncation is a fact of the stored row, not an
// event). Every recipient is checked against the sender's standing with
// that recipient's contact_policy; the first blocked recipient fails the
// whole send rather than silently dropping it, so a sender always knows
// exactly who did or didn't receive the message.
func SendMessage(ctx context.Context, db *store.DB, projectID, senderID int64, recipients []RecipientSpec, threadID, subject, bodyMD, importance string, ackRequired bool, attachments []string) (*Message, error) {
	if len(recipients) == 0 {
		return nil, mcperr.Invalid("send_message requires at least one recipient")
	}
	if importance == "" {
		importance = "normal"
	}
	if !validImportance[importance] {
		return nil, mcperr.Invalid("importance must be one of low, normal, high, urgent")
	}
	for _, r := range recipients {
		ok, err := identity.CanContact(ctx, db, projectID, senderID, r.AgentID)
		if err != nil {
			return nil, mcperr.FromStoreErr("send_message", err)
		}
		if !ok {
			return nil, mcperr.Newf(mcperr.Forbidden, "agent %d's contact policy rejects this sender", r.AgentID)
		}
	}

	if runes := []rune(subject); len(runes) > subjectMaxLen {
		subject = string(runes[:subjectMaxLen])
	}
	if threadID == "" {
		threadID = fmt.Sprintf("t-%d-%d", senderID, store.Now())
	}
	attJSON, err := json.Marshal(attachmentsOrEmpty(attachments))
	if err != nil {
		return nil, mcperr.Wrap(mcperr.InvalidArgument, "attachments could not be encoded", err)
	}

	var id int64
	now := store.Now()
	err = db.Write(ctx, func(tx *sql.Tx) error {
		ackFlag := 0
		if ackRequired {
			ackFlag = 1
		}
		res, err := tx.Exec(`INSERT INTO messages(project_id, sender_id, thread_id, subject, body_md, importance, ack_required, created_ts, attachments)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			projectID, senderID, threadID, subject, bodyMD, importance, ackFlag, int64(now), string(attJSON))
		if err != nil {
			return err
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}
		for _, r := range recipients {
			kind := r.Kind
			if kind == "" {
				kind = "to"
			}
			if _, err := tx.Exec(`INSERT INTO message_recipients(message_id, agent_id, kind) VALUES (?, ?, ?)`,
				id, r.AgentID, kind); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, mcperr.FromStoreErr("send_message", err)
	}

	return GetMessage(ctx, db, id)
}

func attachmentsOrEmpty(a []string) []string {
	if a == nil {
		return []string{}
	}
	return a
}

// AcknowledgeMessage implements acknowledge_message: idempotent, a second
// call against an already-acked recipient row is a no-op success rather
// than an error.
func AcknowledgeMessage(ctx context.Context, db *store.DB, messageID, agentID int64) error {
	now := store.Now()
	err := db.Write(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE message_recipients SET ack_ts = COALESCE(ack_ts, ?) WHERE message_id = ? AND agent_id = ?`,
			int64(now), messageID, agentID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return store.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return mcperr.FromStoreErr("acknowledge_message", err)
	}
	return nil
}

// MarkRead stamps a recipient's read_ts the first time fetch_inbox (or a
// direct read) observes the message, idempotently.
func MarkRead(ctx context.Context, db *store.DB, messageID, agentID int64) error {
	now := store.Now()
	return db.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE message_recipients SET read_ts = COALESCE(read_ts, ?) WHERE message_id = ? AND agent_id = ?`,
			int64(now), messageID, agentID)
		return err
	})
}

// GetMessage loads one message with its full recipient set.
func GetMessage(ctx context.Context, db *store.DB, id int64) (*Message, error) {
	row := db.ReadConn().QueryRowContext(ctx,
		`SELECT id, project_id, sender_id, thread_id, subject, body_md, importance, ack_required, created_ts, attachments
		 FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	recipients, err := loadRecipients(ctx, db, id)
	if err != nil {
		return nil, err
	}
	m.Recipients = recipients
	return m, nil
}

func loadRecipients(ctx context.Context, db *store.DB, messageID int64) ([]Recipient, error) {
	rows, err := db.ReadConn().QueryContext(ctx,
		`SELECT agent_id, kind, read_ts, ack_ts FROM message_recipients WHERE message_id = ?`, messageID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Recipient
	for rows.Next() {
		var r Recipient
		var readTS, ackTS sql.NullInt64
		if err := rows.Scan(&r.AgentID, &r.Kind, &readTS, &ackTS); err != nil {
			return nil, err
		}
		if readTS.Valid {
			r.ReadTS = store.Epoch(readTS.Int64)
		}
		if ackTS.Valid {
			r.AckTS = store.Epoch(ackTS.Int64)
		}
		out = append(out, r)
	}
	if out == nil {
		out = []Recipient{}
	}
	return out, rows.Err()
}

func scanMessage(row *sql.Row) (*Message, error) {
	var m Message
	var attJSON string
	var ackFlag int
	if err := row.Scan(&m.ID, &m.ProjectID, &m.SenderID, &m.ThreadID, &m.Subject, &m.BodyMD, &m.Importance, &ackFlag, &m.CreatedTS, &attJSON); err != nil {
		return nil, err
	}
	m.AckRequired = ackFlag != 0
	_ = json.Unmarshal([]byte(attJSON), &m.Attachments)
	return &m, nil
}

// FetchInbox implements fetch_inbox: messages addressed to agentID,
// newest first, with a schema that never changes shape regardless of
// limit (spec §8: "pagination schema parity" — a limit of 1 and a limit
// of 1000 return rows of the identical shape, just fewer of them).
func FetchInbox(ctx context.Context, db *store.DB, agentID int64, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.ReadConn().QueryContext(ctx,
		`SELECT m.id, m.project_id, m.sender_id, m.thread_id, m.subject, m.body_md, m.importance, m.ack_required, m.created_ts, m.attachments
		 FROM messages m JOIN message_recipients r ON r.message_id = m.id
		 WHERE r.agent_id = ? ORDER BY m.created_ts DESC, m.id DESC LIMIT ?`, agentID, limit)
	if err != nil {
		return nil, mcperr.FromStoreErr("fetch_inbox", err)
	}
	defer func() { _ = rows.Close() }()
	var out []*Message
	for rows.Next() {
		var m Message
		var attJSON string
		var ackFlag int
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.SenderID, &m.ThreadID, &m.Subject, &m.BodyMD, &m.Importance, &ackFlag, &m.CreatedTS, &attJSON); err != nil {
			return nil, mcperr.FromStoreErr("fetch_inbox", err)
		}
		m.AckRequired = ackFlag != 0
		_ = json.Unmarshal([]byte(attJSON), &m.Attachments)
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, mcperr.FromStoreErr("fetch_inbox", err)
	}
	if out == nil {
		out = []*Message{}
	}
	for _, m := range out {
		_ = MarkRead(ctx, db, m.ID, agentID)
	}
	return out, nil
}

// ReplyMessage implements reply_message: inherits thread_id and (unless
// overridden) subject from the message being replied to, prefixing the
// inherited subject with "Re: " when it does not already start with it.
func ReplyMessage(ctx context.Context, db *store.DB, projectID, senderID, inReplyTo int64, recipients []RecipientSpec, subject, bodyMD, importance string, ackRequired bool, attachments []string) (*Message, error) {
	orig, err := GetMessage(ctx, db, inReplyTo)
	if err != nil {
		return nil, mcperr.FromStoreErr("reply_message", err)
	}
	if subject == "" {
		subject = orig.Subject
		if !strings.HasPrefix(subject, "Re: ") {
			subject = "Re: " + subject
		}
	}
	return SendMessage(ctx, db, projectID, senderID, recipients, orig.ThreadID, subject, bodyMD, importance, ackRequired, attachments)
}

// SearchMessages implements search_messages: parses the raw query and
// delegates to the store's FTS-or-LIKE search.
func SearchMessages(ctx context.Context, db *store.DB, projectID int64, rawQuery string, limit int) ([]store.MessageRow, error) {
	if limit <= 0 {
		limit = 50
	}
	q := ParseSearchQuery(rawQuery)
	rows, err := db.SearchMessages(ctx, projectID, q, limit)
	if err != nil {
		return nil, mcperr.FromStoreErr("search_messages", err)
	}
	return rows, nil
}

// maxDerivedSummaryLines caps the heuristic key_points/action_items lists
// summarize_thread derives, so a long thread doesn't echo every subject
// line back verbatim.
const maxDerivedSummaryLines = 10

// ThreadSummary is summarize_thread's result (spec §4.3): a nested summary
// of participants, key points, and action items, plus bookkeeping fields
// useful to CLI callers but not part of the nested summary object itself.
type ThreadSummary struct {
	ThreadID       string
	MessageCount   int
	PendingAcks    int
	LastActivityTS store.Epoch
	LatestSubject  string
	Participants   []int64
	KeyPoints      []string
	ActionItems    []string
}

// SummarizeThread implements summarize_thread (spec §4.3). Participants are
// the union of senders and `to`-kind recipients; cc/bcc recipients don't
// count. Key-points and action-items derivation is implementation-local:
// key points are the thread's distinct subject lines in order of first
// appearance, and action items are the subject lines of messages that
// demand an acknowledgement.
func SummarizeThread(ctx context.Context, db *store.DB, projectID int64, threadID string) (*ThreadSummary, error) {
	rows, err := db.ReadConn().QueryContext(ctx,
		`SELECT id, sender_id, subject, ack_required, created_ts FROM messages
		 WHERE project_id = ? AND thread_id = ? ORDER BY created_ts ASC`, projectID, threadID)
	if err != nil {
		return nil, mcperr.FromStoreErr("summarize_thread", err)
	}
	defer func() { _ = rows.Close() }()

	summary := &ThreadSummary{ThreadID: threadID}
	participants := map[int64]bool{}
	seenSubjects := map[string]bool{}
	seenActions := map[string]bool{}
	var ids []int64
	for rows.Next() {
		var id, sender int64
		var subject string
		var ackRequired int
		var createdTS store.Epoch
		if err := rows.Scan(&id, &sender, &subject, &ackRequired, &createdTS); err != nil {
			return nil, mcperr.FromStoreErr("summarize_thread", err)
		}
		summary.MessageCount++
		summary.LatestSubject = subject
		summary.LastActivityTS = createdTS
		participants[sender] = true
		ids = append(ids, id)
		if subject != "" && !seenSubjects[subject] && len(summary.KeyPoints) < maxDerivedSummaryLines {
			seenSubjects[subject] = true
			summary.KeyPoints = append(summary.KeyPoints, subject)
		}
		if ackRequired != 0 && subject != "" && !seenActions[subject] && len(summary.ActionItems) < maxDerivedSummaryLines {
			seenActions[subject] = true
			summary.ActionItems = append(summary.ActionItems, subject)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, mcperr.FromStoreErr("summarize_thread", err)
	}
	if summary.MessageCount == 0 {
		return nil, store.ErrNotFound
	}

	for _, id := range ids {
		rrows, err := db.ReadConn().QueryContext(ctx,
			`SELECT agent_id, kind, ack_ts FROM message_recipients WHERE message_id = ?`, id)
		if err != nil {
			return nil, mcperr.FromStoreErr("summarize_thread", err)
		}
		for rrows.Next() {
			var agentID int64
			var kind string
			var ackTS sql.NullInt64
			if err := rrows.Scan(&agentID, &kind, &ackTS); err != nil {
				_ = rrows.Close()
				return nil, mcperr.FromStoreErr("summarize_thread", err)
			}
			if kind == "to" {
				participants[agentID] = true
			}
			if !ackTS.Valid {
				summary.PendingAcks++
			}
		}
		_ = rrows.Close()
	}

	for agentID := range participants {
		summary.Participants = append(summary.Participants, agentID)
	}
	if summary.KeyPoints == nil {
		summary.KeyPoints = []string{}
	}
	if summary.ActionItems == nil {
		summary.ActionItems = []string{}
	}
	return summary, nil
}
