package mcp

import (
	"context"
	"time"

	"github.com/dicklesworthstone/agentmail/internal/audit"
	"github.com/dicklesworthstone/agentmail/internal/identity"
	"github.com/dicklesworthstone/agentmail/internal/mcperr"
	"github.com/dicklesworthstone/agentmail/internal/store"
)

// registerIdentityTools wires the project/agent/contact tools (spec §4.2)
// onto r, following the same read-params -> call-domain-package ->
// return-JSON shape used throughout handlers_*.go.
func registerIdentityTools(r *Registry, db *store.DB) {
	Register(r, ToolDef{
		Name:        "ensure_project",
		Description: "Looks up a project by its human key, creating it if it does not exist yet.",
	}, func(ctx context.Context, p struct {
		HumanKey string `json:"human_key" description:"Human-readable project identifier, e.g. a repo path or name."`
	}) (any, error) {
		proj, err := identity.EnsureProject(ctx, db, p.HumanKey)
		if err != nil {
			audit.LogFailure(audit.OpEnsureProject, "", "", err)
			return nil, err
		}
		audit.LogSuccess(audit.OpEnsureProject, proj.Slug, "")
		return proj, nil
	})

	Register(r, ToolDef{
		Name:        "register_agent",
		Description: "Registers an agent under a project by name, or updates its program/model/task on a name collision.",
	}, func(ctx context.Context, p struct {
		ProjectKey      string `json:"project_key" description:"Human project key; the project is auto-ensured."`
		Name            string `json:"name" description:"Agent display name, e.g. an AdjectiveNoun identity."`
		Program         string `json:"program,omitempty" description:"Coding agent program name."`
		Model           string `json:"model,omitempty" description:"Model name backing the agent."`
		TaskDescription string `json:"task_description,omitempty" description:"Short free-text description of what the agent is doing."`
	}) (any, error) {
		a, err := identity.RegisterAgent(ctx, db, p.ProjectKey, p.Name, p.Program, p.Model, p.TaskDescription)
		if err != nil {
			audit.LogFailure(audit.OpRegisterAgent, p.ProjectKey, "", err)
			return nil, err
		}
		audit.LogSuccess(audit.OpRegisterAgent, p.ProjectKey, a.Name)
		return a, nil
	})

	Register(r, ToolDef{
		Name:        "create_agent_identity",
		Description: "Mints a fresh AdjectiveNoun agent identity under a project, retrying on name collisions.",
	}, func(ctx context.Context, p struct {
		ProjectKey      string `json:"project_key" description:"Human project key; the project is auto-ensured."`
		Program         string `json:"program,omitempty" description:"Coding agent program name."`
		Model           string `json:"model,omitempty" description:"Model name backing the agent."`
		TaskDescription string `json:"task_description,omitempty" description:"Short free-text description of what the agent is doing."`
	}) (any, error) {
		a, err := identity.CreateAgentIdentity(ctx, db, p.ProjectKey, p.Program, p.Model, p.TaskDescription)
		if err != nil {
			audit.LogFailure(audit.OpCreateAgentIdentity, p.ProjectKey, "", err)
			return nil, err
		}
		audit.LogSuccess(audit.OpCreateAgentIdentity, p.ProjectKey, a.Name)
		return a, nil
	})

	Register(r, ToolDef{
		Name:        "set_contact_policy",
		Description: "Sets an agent's contact policy (open, contacts_only, or block_all).",
	}, func(ctx context.Context, p struct {
		ProjectKey string `json:"project_key"`
		AgentName  string `json:"agent_name"`
		Policy     string `json:"policy" description:"One of: open, contacts_only, block_all."`
	}) (any, error) {
		proj, err := identity.EnsureProject(ctx, db, p.ProjectKey)
		if err != nil {
			return nil, err
		}
		a, err := identity.GetAgentByName(ctx, db, proj.ID, p.AgentName)
		if err != nil {
			audit.LogFailure(audit.OpSetContactPolicy, proj.Slug, p.AgentName, err)
			return nil, err
		}
		if err := identity.SetContactPolicy(ctx, db, a.ID, p.Policy); err != nil {
			audit.LogFailure(audit.OpSetContactPolicy, proj.Slug, p.AgentName, err)
			return nil, err
		}
		audit.LogSuccess(audit.OpSetContactPolicy, proj.Slug, p.AgentName)
		return map[string]any{"ok": true}, nil
	})

	Register(r, ToolDef{
		Name:        "request_contact",
		Description: "Requests a contact edge from one agent to another, auto-converging on a mutual simultaneous request.",
	}, func(ctx context.Context, p struct {
		ProjectKey  string `json:"project_key"`
		FromAgent   string `json:"from_agent"`
		ToAgent     string `json:"to_agent"`
		Reason      string `json:"reason,omitempty"`
		TTLSeconds  int64  `json:"ttl_seconds,omitempty" description:"Request lifetime; defaults to 24h if omitted."`
	}) (any, error) {
		proj, err := identity.EnsureProject(ctx, db, p.ProjectKey)
		if err != nil {
			return nil, err
		}
		from, err := identity.GetAgentByName(ctx, db, proj.ID, p.FromAgent)
		if err != nil {
			return nil, err
		}
		to, err := identity.GetAgentByName(ctx, db, proj.ID, p.ToAgent)
		if err != nil {
			return nil, err
		}
		ttl := 24 * time.Hour
		if p.TTLSeconds > 0 {
			ttl = time.Duration(p.TTLSeconds) * time.Second
		}
		c, err := identity.RequestContact(ctx, db, proj.ID, from.ID, to.ID, p.Reason, store.Now().Add(ttl))
		if err != nil {
			audit.LogFailure(audit.OpRequestContact, proj.Slug, from.Name, err)
			return nil, err
		}
		audit.LogSuccess(audit.OpRequestContact, proj.Slug, from.Name)
		return c, nil
	})

	Register(r, ToolDef{
		Name:        "respond_contact",
		Description: "Approves or rejects a pending contact request directed at the responding agent.",
	}, func(ctx context.Context, p struct {
		ProjectKey string `json:"project_key"`
		FromAgent  string `json:"from_agent"`
		ToAgent    string `json:"to_agent"`
		Approve    bool   `json:"approve"`
	}) (any, error) {
		proj, err := identity.EnsureProject(ctx, db, p.ProjectKey)
		if err != nil {
			return nil, err
		}
		from, err := identity.GetAgentByName(ctx, db, proj.ID, p.FromAgent)
		if err != nil {
			return nil, err
		}
		to, err := identity.GetAgentByName(ctx, db, proj.ID, p.ToAgent)
		if err != nil {
			return nil, err
		}
		c, err := identity.RespondContact(ctx, db, proj.ID, from.ID, to.ID, p.Approve)
		if err != nil {
			audit.LogFailure(audit.OpRespondContact, proj.Slug, to.Name, err)
			return nil, err
		}
		audit.LogSuccess(audit.OpRespondContact, proj.Slug, to.Name)
		return c, nil
	})

	Register(r, ToolDef{
		Name:        "list_contacts",
		Description: "Lists every contact edge touching an agent, in either direction.",
	}, func(ctx context.Context, p struct {
		ProjectKey string `json:"project_key"`
		AgentName  string `json:"agent_name"`
	}) (any, error) {
		proj, err := identity.EnsureProject(ctx, db, p.ProjectKey)
		if err != nil {
			return nil, err
		}
		a, err := identity.GetAgentByName(ctx, db, proj.ID, p.AgentName)
		if err != nil {
			return nil, err
		}
		contacts, err := identity.ListContacts(ctx, db, a.ID)
		if err != nil {
			return nil, mcperr.FromStoreErr("list_contacts", err)
		}
		return contacts, nil
	})
}
