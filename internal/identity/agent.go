package identity

import (
	"context"
	"database/sql"
	"strings"

	"github.com/dicklesworthstone/agentmail/internal/mcperr"
	"github.com/dicklesworthstone/agentmail/internal/store"
)

// Agent mirrors the Agent entity (spec §3).
type Agent struct {
	ID                int64
	ProjectID         int64
	Name              string
	Program           string
	Model             string
	TaskDescription   string
	InceptionTS       store.Epoch
	LastActiveTS      store.Epoch
	AttachmentsPolicy string
	ContactPolicy     string
}

// RegisterAgent implements register_agent (spec §4.2): an upsert keyed on
// (project, lower(name)). The project is auto-ensured from projectKey for
// tool-call paths. On conflict, program/model/task_description are
// refreshed and the existing id returned; name validity is only checked on
// first insert (an already-registered name is never re-validated, matching
// the upsert's "leave the record... id stable" invariant).
func RegisterAgent(ctx context.Context, db *store.DB, projectKey, name, program, model, taskDescription string) (*Agent, error) {
	if strings.TrimSpace(name) == "" {
		return nil, mcperr.Invalid("name must not be empty")
	}
	proj, err := EnsureProject(ctx, db, projectKey)
	if err != nil {
		return nil, err
	}

	if existing, err := GetAgentByName(ctx, db, proj.ID, name); err == nil {
		werr := db.Write(ctx, func(tx *sql.Tx) error {
			_, err := tx.Exec(`UPDATE agents SET program = ?, model = ?, task_description = ?, last_active_ts = ? WHERE id = ?`,
				program, model, taskDescription, int64(store.Now()), existing.ID)
			return err
		})
		if werr != nil {
			return nil, mcperr.FromStoreErr("register_agent", werr)
		}
		existing.Program, existing.Model, existing.TaskDescription = program, model, taskDescription
		return existing, nil
	}

	if err := ValidateAgentName(name); err != nil {
		return nil, mcperr.Wrap(mcperr.InvalidArgument, err.Error(), err)
	}

	var id int64
	now := store.Now()
	err = db.Write(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`INSERT INTO agents(project_id, name, name_lower, program, model, task_description, inception_ts, last_active_ts)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			proj.ID, name, strings.ToLower(name), program, model, taskDescription, int64(now), int64(now))
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		if existing, gerr := GetAgentByName(ctx, db, proj.ID, name); gerr == nil {
			return existing, nil
		}
		return nil, mcperr.FromStoreErr("register_agent", err)
	}

	return &Agent{ID: id, ProjectID: proj.ID, Name: name, Program: program, Model: model,
		TaskDescription: taskDescription, InceptionTS: now, LastActiveTS: now,
		AttachmentsPolicy: "inherit", ContactPolicy: "open"}, nil
}

// CreateAgentIdentity implements create_agent_identity: invents a fresh,
// currently-unused AdjectiveNoun name and registers it.
func CreateAgentIdentity(ctx context.Context, db *store.DB, projectKey, program, model, taskDescription string) (*Agent, error) {
	proj, err := EnsureProject(ctx, db, projectKey)
	if err != nil {
		return nil, err
	}
	for attempt := 0; attempt < 256; attempt++ {
		candidate := GenerateCandidateName(program, model, attempt)
		if _, err := GetAgentByName(ctx, db, proj.ID, candidate); err == store.ErrNotFound {
			return RegisterAgent(ctx, db, projectKey, candidate, program, model, taskDescription)
		}
	}
	return nil, mcperr.Newf(mcperr.Unavailable, "exhausted name candidates for project %q", proj.Slug)
}

func GetAgentByName(ctx context.Context, db *store.DB, projectID int64, name string) (*Agent, error) {
	var a Agent
	row := db.ReadConn().QueryRowContext(ctx,
		`SELECT id, project_id, name, program, model, task_description, inception_ts, last_active_ts, attachments_policy, contact_policy
		 FROM agents WHERE project_id = ? AND name_lower = ?`, projectID, strings.ToLower(name))
	if err := scanAgent(row, &a); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func GetAgentByID(ctx context.Context, db *store.DB, id int64) (*Agent, error) {
	var a Agent
	row := db.ReadConn().QueryRowContext(ctx,
		`SELECT id, project_id, name, program, model, task_description, inception_ts, last_active_ts, attachments_policy, contact_policy
		 FROM agents WHERE id = ?`, id)
	if err := scanAgent(row, &a); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func scanAgent(row *sql.Row, a *Agent) error {
	return row.Scan(&a.ID, &a.ProjectID, &a.Name, &a.Program, &a.Model, &a.TaskDescription,
		&a.InceptionTS, &a.LastActiveTS, &a.AttachmentsPolicy, &a.ContactPolicy)
}

// ListAgents returns every agent registered under a project, ordered by name.
func ListAgents(ctx context.Context, db *store.DB, projectID int64) ([]*Agent, error) {
	rows, err := db.ReadConn().QueryContext(ctx,
		`SELECT id, project_id, name, program, model, task_description, inception_ts, last_active_ts, attachments_policy, contact_policy
		 FROM agents WHERE project_id = ? ORDER BY name ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*Agent
	for rows.Next() {
		var a Agent
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.Name, &a.Program, &a.Model, &a.TaskDescription,
			&a.InceptionTS, &a.LastActiveTS, &a.AttachmentsPolicy, &a.ContactPolicy); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	if out == nil {
		out = []*Agent{}
	}
	return out, rows.Err()
}

// SetContactPolicy implements set_contact_policy: replaces the agent's
// policy wholesale.
func SetContactPolicy(ctx context.Context, db *store.DB, agentID int64, policy string) error {
	switch policy {
	case "open", "contacts_only", "block_all":
	default:
		return mcperr.Invalid("policy must be one of open, contacts_only, block_all")
	}
	err := db.Write(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE agents SET contact_policy = ? WHERE id = ?`, policy, agentID)
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
		return mcperr.FromStoreErr("set_contact_policy", err)
	}
	return nil
}
