package mcp

import (
	"context"
	"time"

	"github.com/dicklesworthstone/agentmail/internal/audit"
	"github.com/dicklesworthstone/agentmail/internal/identity"
	"github.com/dicklesworthstone/agentmail/internal/reservations"
	"github.com/dicklesworthstone/agentmail/internal/store"
)

// registerReservationTools wires the file-reservation and build-slot tools
// (spec §4.4) onto r.
func registerReservationTools(r *Registry, db *store.DB) {
	Register(r, ToolDef{
		Name:        "file_reservation_paths",
		Description: "Reserves one or more file path patterns for an agent in a project, granting each independently of the others.",
	}, func(ctx context.Context, p struct {
		ProjectKey string   `json:"project_key"`
		AgentName  string   `json:"agent_name"`
		Paths      []string `json:"paths" description:"Glob-style path patterns to reserve."`
		Exclusive  bool     `json:"exclusive,omitempty"`
		Reason     string   `json:"reason,omitempty"`
		TTLSeconds int64    `json:"ttl_seconds,omitempty"`
	}) (any, error) {
		proj, err := identity.EnsureProject(ctx, db, p.ProjectKey)
		if err != nil {
			return nil, err
		}
		a, err := identity.GetAgentByName(ctx, db, proj.ID, p.AgentName)
		if err != nil {
			return nil, err
		}

		var expiresTS store.Epoch
		if p.TTLSeconds > 0 {
			expiresTS = store.Now().Add(time.Duration(p.TTLSeconds) * time.Second)
		}
		res, err := reservations.ReserveFilePaths(ctx, db, proj.ID, a.ID, p.Paths, p.Exclusive, p.Reason, expiresTS)
		if err != nil {
			audit.LogFailure(audit.OpReserveFilePaths, proj.Slug, a.Name, err)
			return nil, err
		}
		audit.LogSuccess(audit.OpReserveFilePaths, proj.Slug, a.Name)
		granted := make([]map[string]any, 0, len(res.Granted))
		for _, g := range res.Granted {
			granted = append(granted, map[string]any{
				"id":           g.ID,
				"agent":        a.Name,
				"path_pattern": g.PathPattern,
				"exclusive":    g.Exclusive,
				"reason":       g.Reason,
				"expires_ts":   int64(g.ExpiresTS),
			})
		}
		return map[string]any{
			"granted":   granted,
			"conflicts": conflictMaps(res.Conflicts),
		}, nil
	})

	Register(r, ToolDef{
		Name:        "release_file_reservations",
		Description: "Releases an agent's file reservations in a project: a specific one by id, or every live one it holds.",
	}, func(ctx context.Context, p struct {
		ProjectKey    string `json:"project_key"`
		AgentName     string `json:"agent_name"`
		ReservationID int64  `json:"reservation_id,omitempty" description:"Release a specific reservation by id instead of all of agent_name's."`
	}) (any, error) {
		proj, err := identity.EnsureProject(ctx, db, p.ProjectKey)
		if err != nil {
			return nil, err
		}
		a, err := identity.GetAgentByName(ctx, db, proj.ID, p.AgentName)
		if err != nil {
			return nil, err
		}

		if p.ReservationID != 0 {
			if err := reservations.ReleaseReservation(ctx, db, p.ReservationID, a.ID); err != nil {
				audit.LogFailure(audit.OpReleaseReservation, proj.Slug, a.Name, err)
				return nil, err
			}
			audit.LogSuccess(audit.OpReleaseReservation, proj.Slug, a.Name)
			return map[string]any{"released": 1}, nil
		}
		count, err := reservations.ReleaseAllForAgent(ctx, db, proj.ID, a.ID)
		if err != nil {
			audit.LogFailure(audit.OpReleaseReservation, proj.Slug, a.Name, err)
			return nil, err
		}
		audit.LogSuccess(audit.OpReleaseReservation, proj.Slug, a.Name)
		return map[string]any{"released": count}, nil
	})

	Register(r, ToolDef{
		Name:        "acquire_build_slot",
		Description: "Acquires a named build slot for an agent in a project; if another agent already holds it, echoes the current holder instead.",
	}, func(ctx context.Context, p struct {
		ProjectKey string `json:"project_key"`
		AgentName  string `json:"agent_name"`
		Slot       string `json:"slot"`
		Exclusive  bool   `json:"exclusive,omitempty"`
		TTLSeconds int64  `json:"ttl_seconds,omitempty"`
	}) (any, error) {
		proj, err := identity.EnsureProject(ctx, db, p.ProjectKey)
		if err != nil {
			return nil, err
		}
		a, err := identity.GetAgentByName(ctx, db, proj.ID, p.AgentName)
		if err != nil {
			return nil, err
		}
		ttl := 10 * time.Minute
		if p.TTLSeconds > 0 {
			ttl = time.Duration(p.TTLSeconds) * time.Second
		}
		res, err := reservations.AcquireBuildSlot(ctx, db, proj.ID, a.ID, p.Slot, p.Exclusive, ttl)
		if err != nil {
			audit.LogFailure(audit.OpAcquireBuildSlot, proj.Slug, a.Name, err)
			return nil, err
		}
		audit.LogSuccess(audit.OpAcquireBuildSlot, proj.Slug, a.Name)
		holder := a.Name
		if len(res.Conflicts) > 0 {
			holder = res.Conflicts[0].Agent
		}
		granted := map[string]any{
			"slot":        res.Granted.Slot,
			"agent":       holder,
			"acquired_ts": int64(res.Granted.AcquiredTS),
			"expires_ts":  int64(res.Granted.ExpiresTS),
			"exclusive":   res.Granted.Exclusive,
		}
		return map[string]any{
			"granted":   granted,
			"conflicts": conflictMaps(res.Conflicts),
		}, nil
	})

	Register(r, ToolDef{
		Name:        "renew_build_slot",
		Description: "Extends a held build slot's expiry.",
	}, func(ctx context.Context, p struct {
		ProjectKey    string `json:"project_key"`
		AgentName     string `json:"agent_name"`
		Slot          string `json:"slot"`
		ExtendSeconds int64  `json:"extend_seconds,omitempty"`
	}) (any, error) {
		proj, err := identity.EnsureProject(ctx, db, p.ProjectKey)
		if err != nil {
			return nil, err
		}
		a, err := identity.GetAgentByName(ctx, db, proj.ID, p.AgentName)
		if err != nil {
			return nil, err
		}
		ttl := 10 * time.Minute
		if p.ExtendSeconds > 0 {
			ttl = time.Duration(p.ExtendSeconds) * time.Second
		}
		newExpiry, err := reservations.RenewBuildSlot(ctx, db, proj.ID, a.ID, p.Slot, ttl)
		if err != nil {
			audit.LogFailure(audit.OpRenewBuildSlot, proj.Slug, a.Name, err)
			return nil, err
		}
		audit.LogSuccess(audit.OpRenewBuildSlot, proj.Slug, a.Name)
		return map[string]any{"renewed": true, "expires_ts": int64(newExpiry)}, nil
	})

	Register(r, ToolDef{
		Name:        "release_build_slot",
		Description: "Releases a held build slot.",
	}, func(ctx context.Context, p struct {
		ProjectKey string `json:"project_key"`
		AgentName  string `json:"agent_name"`
		Slot       string `json:"slot"`
	}) (any, error) {
		proj, err := identity.EnsureProject(ctx, db, p.ProjectKey)
		if err != nil {
			return nil, err
		}
		a, err := identity.GetAgentByName(ctx, db, proj.ID, p.AgentName)
		if err != nil {
			return nil, err
		}
		if err := reservations.ReleaseBuildSlot(ctx, db, proj.ID, a.ID, p.Slot); err != nil {
			audit.LogFailure(audit.OpReleaseBuildSlot, proj.Slug, a.Name, err)
			return nil, err
		}
		audit.LogSuccess(audit.OpReleaseBuildSlot, proj.Slug, a.Name)
		return map[string]any{"released": true}, nil
	})
}

// conflictMaps renders Conflict entries with explicit snake_case keys so
// the JSON shape matches spec §4.4/§7 regardless of struct field casing.
func conflictMaps(conflicts []reservations.Conflict) []map[string]any {
	out := make([]map[string]any, 0, len(conflicts))
	for _, c := range conflicts {
		m := map[string]any{"agent": c.Agent}
		if c.PathPattern != "" {
			m["path_pattern"] = c.PathPattern
			m["exclusive"] = c.Exclusive
		}
		out = append(out, m)
	}
	return out
}
