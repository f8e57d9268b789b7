package reservations

import (
	"context"
	"database/sql"
	"time"

	"github.com/dicklesworthstone/agentmail/internal/mcperr"
	"github.com/dicklesworthstone/agentmail/internal/store"
)

const defaultBuildSlotTTL = 15 * time.Minute

// BuildSlot mirrors the BuildSlot entity (spec §3): a named, TTL-bound,
// optionally-exclusive lock over a project-scoped resource (a CI runner
// lane, a shared build directory) distinct from a file reservation.
type BuildSlot struct {
	ID         int64
	ProjectID  int64
	AgentID    int64
	Slot       string
	Exclusive  bool
	AcquiredTS store.Epoch
	ExpiresTS  store.Epoch
	ReleasedTS store.Epoch
}

// BuildSlotResult is the outcome of acquire_build_slot: granted is the slot
// the caller now holds, or (on conflict) the slot as already held by
// another agent, alongside the conflicting holder in Conflicts.
type BuildSlotResult struct {
	Granted   *BuildSlot
	Conflicts []Conflict
}

// AcquireBuildSlot implements acquire_build_slot (spec §4.4): a slot is
// unique per (project, slot) among live holders. If another agent already
// holds it (not released, not expired), the request is not granted to the
// caller; Granted instead echoes the existing holder and Conflicts names
// them.
func AcquireBuildSlot(ctx context.Context, db *store.DB, projectID, agentID int64, slot string, exclusive bool, ttl time.Duration) (*BuildSlotResult, error) {
	if slot == "" {
		return nil, mcperr.Invalid("slot must not be empty")
	}
	if ttl <= 0 {
		ttl = defaultBuildSlotTTL
	}

	projSlug, err := projectSlugFor(ctx, db, projectID)
	if err != nil {
		return nil, mcperr.FromStoreErr("acquire_build_slot", err)
	}
	global.Lock(projSlug)
	defer global.Unlock(projSlug)

	live, err := liveBuildSlots(ctx, db, projectID, slot)
	if err != nil {
		return nil, mcperr.FromStoreErr("acquire_build_slot", err)
	}
	for _, s := range live {
		if s.AgentID == agentID {
			continue
		}
		name, err := agentNameFor(ctx, db, s.AgentID)
		if err != nil {
			name = ""
		}
		return &BuildSlotResult{
			Granted:   s,
			Conflicts: []Conflict{{Agent: name}},
		}, nil
	}

	now := store.Now()
	expires := now.Add(ttl)
	var id int64
	err = db.Write(ctx, func(tx *sql.Tx) error {
		excl := 0
		if exclusive {
			excl = 1
		}
		res, err := tx.Exec(`INSERT INTO build_slots(project_id, agent_id, slot, exclusive, acquired_ts, expires_ts)
			VALUES (?, ?, ?, ?, ?, ?)`, projectID, agentID, slot, excl, int64(now), int64(expires))
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, mcperr.FromStoreErr("acquire_build_slot", err)
	}

	granted := &BuildSlot{ID: id, ProjectID: projectID, AgentID: agentID, Slot: slot, Exclusive: exclusive,
		AcquiredTS: now, ExpiresTS: expires}
	return &BuildSlotResult{Granted: granted, Conflicts: []Conflict{}}, nil
}

// RenewBuildSlot implements renew_build_slot(agent, slot, extend_seconds):
// extends expires_ts for a slot the agent still holds, provided it has not
// already lapsed.
func RenewBuildSlot(ctx context.Context, db *store.DB, projectID, agentID int64, slot string, ttl time.Duration) (store.Epoch, error) {
	if ttl <= 0 {
		ttl = defaultBuildSlotTTL
	}
	now := store.Now()
	expires := now.Add(ttl)
	err := db.Write(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE build_slots SET expires_ts = ? WHERE project_id = ? AND slot = ? AND agent_id = ? AND released_ts IS NULL AND expires_ts > ?`,
			int64(expires), projectID, slot, agentID, int64(now))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return mcperr.Newf(mcperr.Expired, "build slot %q is not a live holding of agent %d", slot, agentID)
		}
		return nil
	})
	if err != nil {
		if _, ok := mcperr.As(err); ok {
			return 0, err
		}
		return 0, mcperr.FromStoreErr("renew_build_slot", err)
	}
	return expires, nil
}

// ReleaseBuildSlot implements release_build_slot(agent, slot).
func ReleaseBuildSlot(ctx context.Context, db *store.DB, projectID, agentID int64, slot string) error {
	now := store.Now()
	err := db.Write(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE build_slots SET released_ts = ? WHERE project_id = ? AND slot = ? AND agent_id = ? AND released_ts IS NULL`,
			int64(now), projectID, slot, agentID)
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
		return mcperr.FromStoreErr("release_build_slot", err)
	}
	return nil
}

func liveBuildSlots(ctx context.Context, db *store.DB, projectID int64, slot string) ([]*BuildSlot, error) {
	now := store.Now()
	rows, err := db.ReadConn().QueryContext(ctx,
		`SELECT id, project_id, agent_id, slot, exclusive, acquired_ts, expires_ts, released_ts
		 FROM build_slots WHERE project_id = ? AND slot = ? AND released_ts IS NULL AND expires_ts > ?`,
		projectID, slot, int64(now))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*BuildSlot
	for rows.Next() {
		var s BuildSlot
		var excl int
		var released sql.NullInt64
		if err := rows.Scan(&s.ID, &s.ProjectID, &s.AgentID, &s.Slot, &excl, &s.AcquiredTS, &s.ExpiresTS, &released); err != nil {
			return nil, err
		}
		s.Exclusive = excl != 0
		if released.Valid {
			s.ReleasedTS = store.Epoch(released.Int64)
		}
		out = append(out, &s)
	}
	if out == nil {
		out = []*BuildSlot{}
	}
	return out, rows.Err()
}
