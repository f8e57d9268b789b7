package identity

import (
	"context"
	"database/sql"

	"github.com/dicklesworthstone/agentmail/internal/mcperr"
	"github.com/dicklesworthstone/agentmail/internal/store"
)

// Contact mirrors the Contact entity (spec §3): a directed edge in the
// contact graph, from -> to, with a status that converges toward approved
// or rejected.
type Contact struct {
	ID        int64
	ProjectID int64
	FromAgent int64
	ToAgent   int64
	Status    string
	Reason    string
	CreatedTS store.Epoch
	ExpiresTS store.Epoch
}

// RequestContact implements request_contact (spec §4.2). A fresh request
// from an agent that already has a live (non-expired) reverse request
// pending resolves both edges to approved immediately — two agents that
// each separately decided to reach out to the other have, by that very
// act, already consented (spec §9 Open Question, resolved: "mutual
// simultaneous request" converges to mutual approval rather than leaving
// either party waiting on a response nobody will send).
func RequestContact(ctx context.Context, db *store.DB, projectID, fromAgent, toAgent int64, reason string, expiresTS store.Epoch) (*Contact, error) {
	if fromAgent == toAgent {
		return nil, mcperr.Invalid("an agent cannot request contact with itself")
	}

	if existing, err := getContactEdge(ctx, db, projectID, fromAgent, toAgent); err == nil {
		expireIfStale(ctx, db, existing)
		if existing.Status == "pending" || existing.Status == "approved" {
			return existing, nil
		}
	}

	if reverse, err := getContactEdge(ctx, db, projectID, toAgent, fromAgent); err == nil {
		expireIfStale(ctx, db, reverse)
		if reverse.Status == "pending" {
			return mutualApprove(ctx, db, projectID, fromAgent, toAgent, reason, expiresTS, reverse)
		}
	}

	var id int64
	now := store.Now()
	err := db.Write(ctx, func(tx *sql.Tx) error {
		var expires any
		if expiresTS != 0 {
			expires = int64(expiresTS)
		}
		res, err := tx.Exec(`INSERT INTO contacts(project_id, from_agent, to_agent, status, reason, created_ts, expires_ts)
			VALUES (?, ?, ?, 'pending', ?, ?, ?)
			ON CONFLICT(project_id, from_agent, to_agent) DO UPDATE SET
				status = 'pending', reason = excluded.reason, created_ts = excluded.created_ts, expires_ts = excluded.expires_ts`,
			projectID, fromAgent, toAgent, reason, int64(now), expires)
		if err != nil {
			return err
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}
		if id == 0 {
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, mcperr.FromStoreErr("request_contact", err)
	}
	return getContactEdge(ctx, db, projectID, fromAgent, toAgent)
}

// mutualApprove flips both edges of a pair to approved inside a single
// write transaction.
func mutualApprove(ctx context.Context, db *store.DB, projectID, fromAgent, toAgent int64, reason string, expiresTS store.Epoch, reverse *Contact) (*Contact, error) {
	now := store.Now()
	err := db.Write(ctx, func(tx *sql.Tx) error {
		var expires any
		if expiresTS != 0 {
			expires = int64(expiresTS)
		}
		if _, err := tx.Exec(`INSERT INTO contacts(project_id, from_agent, to_agent, status, reason, created_ts, expires_ts)
			VALUES (?, ?, ?, 'approved', ?, ?, ?)
			ON CONFLICT(project_id, from_agent, to_agent) DO UPDATE SET status = 'approved', reason = excluded.reason`,
			projectID, fromAgent, toAgent, reason, int64(now), expires); err != nil {
			return err
		}
		_, err := tx.Exec(`UPDATE contacts SET status = 'approved' WHERE id = ?`, reverse.ID)
		return err
	})
	if err != nil {
		return nil, mcperr.FromStoreErr("request_contact", err)
	}
	return getContactEdge(ctx, db, projectID, fromAgent, toAgent)
}

// RespondContact implements respond_contact: the recipient of a pending
// request (toAgent, the edge's "to") approves or rejects it.
func RespondContact(ctx context.Context, db *store.DB, projectID, fromAgent, toAgent int64, approve bool) (*Contact, error) {
	edge, err := getContactEdge(ctx, db, projectID, fromAgent, toAgent)
	if err != nil {
		return nil, mcperr.NotFoundf("no pending contact request from the named agent")
	}
	expireIfStale(ctx, db, edge)
	if edge.Status != "pending" {
		return edge, nil
	}
	status := "rejected"
	if approve {
		status = "approved"
	}
	err = db.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE contacts SET status = ? WHERE id = ?`, status, edge.ID)
		return err
	})
	if err != nil {
		return nil, mcperr.FromStoreErr("respond_contact", err)
	}
	return getContactEdge(ctx, db, projectID, fromAgent, toAgent)
}

// ListContacts returns every edge touching agentID, lazily expiring any
// stale pending request encountered along the way.
func ListContacts(ctx context.Context, db *store.DB, agentID int64) ([]*Contact, error) {
	rows, err := db.ReadConn().QueryContext(ctx,
		`SELECT id, project_id, from_agent, to_agent, status, reason, created_ts, expires_ts
		 FROM contacts WHERE from_agent = ? OR to_agent = ? ORDER BY created_ts ASC`, agentID, agentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*Contact
	for rows.Next() {
		c, err := scanContactRow(rows)
		if err != nil {
			return nil, err
		}
		expireIfStale(ctx, db, c)
		out = append(out, c)
	}
	if out == nil {
		out = []*Contact{}
	}
	return out, rows.Err()
}

// CanContact reports whether fromAgent is permitted to address toAgent,
// gating send_message per toAgent's contact_policy (spec §4.3).
func CanContact(ctx context.Context, db *store.DB, projectID, fromAgent, toAgent int64) (bool, error) {
	if fromAgent == toAgent {
		return true, nil
	}
	target, err := GetAgentByID(ctx, db, toAgent)
	if err != nil {
		return false, err
	}
	switch target.ContactPolicy {
	case "block_all":
		return false, nil
	case "open", "":
		return true, nil
	case "contacts_only":
		edge, err := getContactEdge(ctx, db, projectID, fromAgent, toAgent)
		if err == nil {
			expireIfStale(ctx, db, edge)
			if edge.Status == "approved" {
				return true, nil
			}
		}
		reverse, err := getContactEdge(ctx, db, projectID, toAgent, fromAgent)
		if err == nil {
			expireIfStale(ctx, db, reverse)
			if reverse.Status == "approved" {
				return true, nil
			}
		}
		return false, nil
	default:
		return true, nil
	}
}

func getContactEdge(ctx context.Context, db *store.DB, projectID, fromAgent, toAgent int64) (*Contact, error) {
	row := db.ReadConn().QueryRowContext(ctx,
		`SELECT id, project_id, from_agent, to_agent, status, reason, created_ts, expires_ts
		 FROM contacts WHERE project_id = ? AND from_agent = ? AND to_agent = ?`, projectID, fromAgent, toAgent)
	var c Contact
	var expires sql.NullInt64
	if err := row.Scan(&c.ID, &c.ProjectID, &c.FromAgent, &c.ToAgent, &c.Status, &c.Reason, &c.CreatedTS, &expires); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if expires.Valid {
		c.ExpiresTS = store.Epoch(expires.Int64)
	}
	return &c, nil
}

func scanContactRow(rows *sql.Rows) (*Contact, error) {
	var c Contact
	var expires sql.NullInt64
	if err := rows.Scan(&c.ID, &c.ProjectID, &c.FromAgent, &c.ToAgent, &c.Status, &c.Reason, &c.CreatedTS, &expires); err != nil {
		return nil, err
	}
	if expires.Valid {
		c.ExpiresTS = store.Epoch(expires.Int64)
	}
	return &c, nil
}

// expireIfStale flips a pending edge past its expires_ts to "expired" on
// read, matching the sweep janitor's eventual pass but guaranteeing a
// caller never observes a logically-expired request as still pending
// (spec §9: "re-init must not crash" generalized — reads must not lie).
func expireIfStale(ctx context.Context, db *store.DB, c *Contact) {
	if c == nil || c.Status != "pending" || c.ExpiresTS == 0 {
		return
	}
	if store.Now().Before(c.ExpiresTS) {
		return
	}
	_ = db.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE contacts SET status = 'expired' WHERE id = ? AND status = 'pending'`, c.ID)
		return err
	})
	c.Status = "expired"
}
