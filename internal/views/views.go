// Package views implements spec §4.5: pure read projections over the
// Store, built on internal/identity, internal/mail, and
// internal/reservations; the message views run their own read-only SQL
// over messages and message_recipients. Nothing in this package writes.
package views

import (
	"context"
	"database/sql"
	"time"

	"github.com/dicklesworthstone/agentmail/internal/identity"
	"github.com/dicklesworthstone/agentmail/internal/mail"
	"github.com/dicklesworthstone/agentmail/internal/mcperr"
	"github.com/dicklesworthstone/agentmail/internal/reservations"
	"github.com/dicklesworthstone/agentmail/internal/store"
)

const defaultOverdueAfter = 4 * time.Hour

// UrgentUnread lists high/urgent messages addressed to agentID that it has
// never read.
func UrgentUnread(ctx context.Context, db *store.DB, agentID int64) ([]*mail.Message, error) {
	return queryMessagesForAgent(ctx, db, agentID,
		`m.importance IN ('high', 'urgent') AND r.read_ts IS NULL`)
}

// AckRequired lists messages addressed to agentID that demand an
// acknowledgement it has not yet given.
func AckRequired(ctx context.Context, db *store.DB, agentID int64) ([]*mail.Message, error) {
	return queryMessagesForAgent(ctx, db, agentID, `m.ack_required = 1 AND r.ack_ts IS NULL`)
}

// AcksStale lists ack-required messages still unacknowledged past
// staleAfter since they were sent. staleAfter=0 matches every unacked
// message, sent or not.
func AcksStale(ctx context.Context, db *store.DB, agentID int64, staleAfter time.Duration) ([]*mail.Message, error) {
	threshold := store.Now().Add(-staleAfter)
	return queryMessagesForAgentArgs(ctx, db, agentID,
		`m.ack_required = 1 AND r.ack_ts IS NULL AND m.created_ts < ?`,
		int64(threshold))
}

// AckOverdue lists ack-required messages still unacknowledged past
// overdueAfter since they were sent, read or not. It runs the same query
// as AcksStale; the only difference is that overdueAfter <= 0 falls back
// to a 4h default instead of matching every unacked message.
func AckOverdue(ctx context.Context, db *store.DB, agentID int64, overdueAfter time.Duration) ([]*mail.Message, error) {
	if overdueAfter <= 0 {
		overdueAfter = defaultOverdueAfter
	}
	threshold := store.Now().Add(-overdueAfter)
	return queryMessagesForAgentArgs(ctx, db, agentID,
		`m.ack_required = 1 AND r.ack_ts IS NULL AND m.created_ts < ?`,
		int64(threshold))
}

func queryMessagesForAgent(ctx context.Context, db *store.DB, agentID int64, clause string) ([]*mail.Message, error) {
	return queryMessagesForAgentArgs(ctx, db, agentID, clause)
}

func queryMessagesForAgentArgs(ctx context.Context, db *store.DB, agentID int64, clause string, extraArgs ...any) ([]*mail.Message, error) {
	args := append([]any{agentID}, extraArgs...)
	rows, err := db.ReadConn().QueryContext(ctx,
		`SELECT m.id, m.project_id, m.sender_id, m.thread_id, m.subject, m.body_md, m.importance, m.ack_required, m.created_ts, m.attachments
		 FROM messages m JOIN message_recipients r ON r.message_id = m.id
		 WHERE r.agent_id = ? AND `+clause+`
		 ORDER BY m.created_ts DESC, m.id DESC`, args...)
	if err != nil {
		return nil, mcperr.FromStoreErr("view", err)
	}
	defer func() { _ = rows.Close() }()
	var out []*mail.Message
	for rows.Next() {
		m, err := scanRowMessage(rows)
		if err != nil {
			return nil, mcperr.FromStoreErr("view", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, mcperr.FromStoreErr("view", err)
	}
	if out == nil {
		out = []*mail.Message{}
	}
	return out, nil
}

func scanRowMessage(rows *sql.Rows) (*mail.Message, error) {
	var m mail.Message
	var attJSON string
	var ackFlag int
	if err := rows.Scan(&m.ID, &m.ProjectID, &m.SenderID, &m.ThreadID, &m.Subject, &m.BodyMD, &m.Importance, &ackFlag, &m.CreatedTS, &attJSON); err != nil {
		return nil, err
	}
	m.AckRequired = ackFlag != 0
	return &m, nil
}

// ProjectSummary bundles a project with its roster, the shape the
// "project" view returns.
type ProjectSummary struct {
	Project *identity.Project
	Agents  []*identity.Agent
}

// ProjectView implements the project view: one project plus its agents.
func ProjectView(ctx context.Context, db *store.DB, slug string) (*ProjectSummary, error) {
	p, err := identity.GetProjectBySlug(ctx, db, slug)
	if err != nil {
		return nil, mcperr.FromStoreErr("view", err)
	}
	agents, err := identity.ListAgents(ctx, db, p.ID)
	if err != nil {
		return nil, mcperr.FromStoreErr("view", err)
	}
	return &ProjectSummary{Project: p, Agents: agents}, nil
}

// AgentsView implements the agents view.
func AgentsView(ctx context.Context, db *store.DB, projectID int64) ([]*identity.Agent, error) {
	out, err := identity.ListAgents(ctx, db, projectID)
	if err != nil {
		return nil, mcperr.FromStoreErr("view", err)
	}
	return out, nil
}

// ProjectsView implements the projects view.
func ProjectsView(ctx context.Context, db *store.DB) ([]*identity.Project, error) {
	out, err := identity.ListProjects(ctx, db)
	if err != nil {
		return nil, mcperr.FromStoreErr("view", err)
	}
	return out, nil
}

// FileReservationsView implements the file_reservations view.
func FileReservationsView(ctx context.Context, db *store.DB, projectID int64) ([]*reservations.FileReservation, error) {
	out, err := reservations.ListFileReservations(ctx, db, projectID)
	if err != nil {
		return nil, mcperr.FromStoreErr("view", err)
	}
	return out, nil
}
