package mcp

import (
	"context"

	"github.com/dicklesworthstone/agentmail/internal/audit"
	"github.com/dicklesworthstone/agentmail/internal/identity"
	"github.com/dicklesworthstone/agentmail/internal/mail"
	"github.com/dicklesworthstone/agentmail/internal/mcperr"
	"github.com/dicklesworthstone/agentmail/internal/store"
)

// recipientParam is the wire shape of one send_message/reply_message
// recipient entry.
type recipientParam struct {
	AgentName string `json:"agent_name"`
	Kind      string `json:"kind,omitempty" description:"to, cc, or bcc; defaults to to."`
}

func resolveRecipients(ctx context.Context, db *store.DB, projectID int64, specs []recipientParam) ([]mail.RecipientSpec, error) {
	out := make([]mail.RecipientSpec, 0, len(specs))
	for _, s := range specs {
		kind := s.Kind
		if kind == "" {
			kind = "to"
		}
		a, err := identity.GetAgentByName(ctx, db, projectID, s.AgentName)
		if err != nil {
			return nil, err
		}
		out = append(out, mail.RecipientSpec{AgentID: a.ID, Kind: kind})
	}
	return out, nil
}

// registerMailTools wires the messaging tools (spec §4.3) onto r, using
// the same parse-params-then-delegate-to-the-domain-package shape as the
// identity handlers.
func registerMailTools(r *Registry, db *store.DB) {
	Register(r, ToolDef{
		Name:        "send_message",
		Description: "Sends a message from one agent to one or more recipients in a project.",
	}, func(ctx context.Context, p struct {
		ProjectKey  string           `json:"project_key"`
		SenderName  string           `json:"sender_name"`
		Recipients  []recipientParam `json:"recipients"`
		ThreadID    string           `json:"thread_id,omitempty"`
		Subject     string           `json:"subject,omitempty"`
		BodyMD      string           `json:"body_md"`
		Importance  string           `json:"importance,omitempty" description:"low, normal, high, or urgent."`
		AckRequired bool             `json:"ack_required,omitempty"`
		Attachments []string         `json:"attachments,omitempty" description:"sha256 digests of previously stored content blobs."`
	}) (any, error) {
		proj, err := identity.EnsureProject(ctx, db, p.ProjectKey)
		if err != nil {
			return nil, err
		}
		sender, err := identity.GetAgentByName(ctx, db, proj.ID, p.SenderName)
		if err != nil {
			return nil, err
		}
		recipients, err := resolveRecipients(ctx, db, proj.ID, p.Recipients)
		if err != nil {
			return nil, err
		}
		msg, err := mail.SendMessage(ctx, db, proj.ID, sender.ID, recipients, p.ThreadID, p.Subject, p.BodyMD, p.Importance, p.AckRequired, p.Attachments)
		if err != nil {
			audit.LogFailure(audit.OpSendMessage, proj.Slug, sender.Name, err)
			return nil, err
		}
		audit.LogSuccess(audit.OpSendMessage, proj.Slug, sender.Name)
		return msg, nil
	})

	Register(r, ToolDef{
		Name:        "acknowledge_message",
		Description: "Marks a message as acknowledged by a recipient.",
	}, func(ctx context.Context, p struct {
		ProjectKey string `json:"project_key"`
		AgentName  string `json:"agent_name"`
		MessageID  int64  `json:"message_id"`
	}) (any, error) {
		proj, err := identity.EnsureProject(ctx, db, p.ProjectKey)
		if err != nil {
			return nil, err
		}
		a, err := identity.GetAgentByName(ctx, db, proj.ID, p.AgentName)
		if err != nil {
			return nil, err
		}
		if err := mail.AcknowledgeMessage(ctx, db, p.MessageID, a.ID); err != nil {
			audit.LogFailure(audit.OpAcknowledgeMessage, proj.Slug, a.Name, err)
			return nil, err
		}
		audit.LogSuccess(audit.OpAcknowledgeMessage, proj.Slug, a.Name)
		return map[string]any{"ok": true}, nil
	})

	Register(r, ToolDef{
		Name:        "fetch_inbox",
		Description: "Fetches the most recent messages addressed to an agent, newest first.",
	}, func(ctx context.Context, p struct {
		ProjectKey string `json:"project_key"`
		AgentName  string `json:"agent_name"`
		Limit      int    `json:"limit,omitempty"`
	}) (any, error) {
		proj, err := identity.EnsureProject(ctx, db, p.ProjectKey)
		if err != nil {
			return nil, err
		}
		a, err := identity.GetAgentByName(ctx, db, proj.ID, p.AgentName)
		if err != nil {
			return nil, err
		}
		limit := p.Limit
		if limit <= 0 {
			limit = 50
		}
		msgs, err := mail.FetchInbox(ctx, db, a.ID, limit)
		if err != nil {
			return nil, mcperr.FromStoreErr("fetch_inbox", err)
		}
		return msgs, nil
	})

	Register(r, ToolDef{
		Name:        "reply_message",
		Description: "Replies to a message, inheriting its thread id and, unless overridden, its subject with a \"Re: \" prefix.",
	}, func(ctx context.Context, p struct {
		ProjectKey  string           `json:"project_key"`
		SenderName  string           `json:"sender_name"`
		InReplyTo   int64            `json:"in_reply_to"`
		Recipients  []recipientParam `json:"recipients"`
		Subject     string           `json:"subject,omitempty"`
		BodyMD      string           `json:"body_md"`
		Importance  string           `json:"importance,omitempty"`
		AckRequired bool             `json:"ack_required,omitempty"`
		Attachments []string         `json:"attachments,omitempty"`
	}) (any, error) {
		proj, err := identity.EnsureProject(ctx, db, p.ProjectKey)
		if err != nil {
			return nil, err
		}
		sender, err := identity.GetAgentByName(ctx, db, proj.ID, p.SenderName)
		if err != nil {
			return nil, err
		}
		recipients, err := resolveRecipients(ctx, db, proj.ID, p.Recipients)
		if err != nil {
			return nil, err
		}
		msg, err := mail.ReplyMessage(ctx, db, proj.ID, sender.ID, p.InReplyTo, recipients, p.Subject, p.BodyMD, p.Importance, p.AckRequired, p.Attachments)
		if err != nil {
			audit.LogFailure(audit.OpReplyMessage, proj.Slug, sender.Name, err)
			return nil, err
		}
		audit.LogSuccess(audit.OpReplyMessage, proj.Slug, sender.Name)
		return msg, nil
	})

	Register(r, ToolDef{
		Name:        "search_messages",
		Description: "Searches a project's messages with a small query language (tokens, \"phrases\", prefix*).",
	}, func(ctx context.Context, p struct {
		ProjectKey string `json:"project_key"`
		Query      string `json:"query,omitempty"`
		Limit      int    `json:"limit,omitempty"`
	}) (any, error) {
		proj, err := identity.EnsureProject(ctx, db, p.ProjectKey)
		if err != nil {
			return nil, err
		}
		rows, err := mail.SearchMessages(ctx, db, proj.ID, p.Query, p.Limit)
		if err != nil {
			return nil, err
		}
		return rows, nil
	})

	Register(r, ToolDef{
		Name:        "summarize_thread",
		Description: "Summarizes a thread's participants, key points, and action items.",
	}, func(ctx context.Context, p struct {
		ProjectKey string `json:"project_key"`
		ThreadID   string `json:"thread_id"`
	}) (any, error) {
		proj, err := identity.EnsureProject(ctx, db, p.ProjectKey)
		if err != nil {
			return nil, err
		}
		summary, err := mail.SummarizeThread(ctx, db, proj.ID, p.ThreadID)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"thread_id": summary.ThreadID,
			"summary": map[string]any{
				"participants": summary.Participants,
				"key_points":   summary.KeyPoints,
				"action_items": summary.ActionItems,
			},
		}, nil
	})
}
