package reservations

import (
	"context"
	"database/sql"
	"time"

	"github.com/dicklesworthstone/agentmail/internal/mcperr"
	"github.com/dicklesworthstone/agentmail/internal/store"
)

// defaultReservationTTL is applied when a caller omits an explicit
// expires_ts, so a forgotten reservation cannot outlive the agent that
// opened it indefinitely.
const defaultReservationTTL = 2 * time.Hour

// FileReservation mirrors the FileReservation entity (spec §3).
type FileReservation struct {
	ID          int64
	ProjectID   int64
	AgentID     int64
	PathPattern string
	Exclusive   bool
	Reason      string
	CreatedTS   store.Epoch
	ExpiresTS   store.Epoch
	ReleasedTS  store.Epoch
}

// Conflict describes an existing reservation or build slot that blocked a
// grant, in the shape spec §4.4 returns alongside a partial or empty grant.
type Conflict struct {
	Agent       string
	PathPattern string
	Exclusive   bool
}

// ReservationResult is the outcome of file_reservation_paths: the
// reservations actually granted, plus one Conflict per blocked path.
type ReservationResult struct {
	Granted   []*FileReservation
	Conflicts []Conflict
}

// ReserveFilePaths implements file_reservation_paths (spec §4.4). Each path
// is granted or blocked independently: an exclusive incoming request
// conflicts with any active intersecting reservation (exclusive or shared)
// held by another agent, while a non-exclusive incoming request conflicts
// only with active exclusive intersecting reservations. Project isolation
// means a pattern never conflicts across projects. Conflicts are reported
// in-band rather than failing the whole call, so other paths in the same
// request are still granted.
func ReserveFilePaths(ctx context.Context, db *store.DB, projectID, agentID int64, paths []string, exclusive bool, reason string, expiresTS store.Epoch) (*ReservationResult, error) {
	if len(paths) == 0 {
		return nil, mcperr.Invalid("paths must not be empty")
	}
	if expiresTS == 0 {
		expiresTS = store.Now().Add(defaultReservationTTL)
	}

	slug, err := projectSlugFor(ctx, db, projectID)
	if err != nil {
		return nil, mcperr.FromStoreErr("file_reservation_paths", err)
	}
	global.Lock(slug)
	defer global.Unlock(slug)

	live, err := liveReservations(ctx, db, projectID)
	if err != nil {
		return nil, mcperr.FromStoreErr("file_reservation_paths", err)
	}

	result := &ReservationResult{Granted: []*FileReservation{}, Conflicts: []Conflict{}}
	now := store.Now()

	for _, path := range paths {
		if path == "" {
			continue
		}
		var blockers []*FileReservation
		for _, r := range live {
			if r.AgentID == agentID {
				continue
			}
			if !exclusive && !r.Exclusive {
				continue
			}
			if PatternsIntersect(r.PathPattern, path) {
				blockers = append(blockers, r)
			}
		}
		if len(blockers) > 0 {
			for _, b := range blockers {
				name, err := agentNameFor(ctx, db, b.AgentID)
				if err != nil {
					name = ""
				}
				result.Conflicts = append(result.Conflicts, Conflict{Agent: name, PathPattern: b.PathPattern, Exclusive: b.Exclusive})
			}
			continue
		}

		excl := 0
		if exclusive {
			excl = 1
		}
		var id int64
		err = db.Write(ctx, func(tx *sql.Tx) error {
			res, err := tx.Exec(`INSERT INTO file_reservations(project_id, agent_id, path_pattern, exclusive, reason, created_ts, expires_ts)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				projectID, agentID, path, excl, reason, int64(now), int64(expiresTS))
			if err != nil {
				return err
			}
			id, err = res.LastInsertId()
			return err
		})
		if err != nil {
			return nil, mcperr.FromStoreErr("file_reservation_paths", err)
		}
		granted := &FileReservation{ID: id, ProjectID: projectID, AgentID: agentID, PathPattern: path,
			Exclusive: exclusive, Reason: reason, CreatedTS: now, ExpiresTS: expiresTS}
		result.Granted = append(result.Granted, granted)
		live = append(live, granted)
	}

	return result, nil
}

// ReleaseReservation releases a single reservation by id, provided agentID
// owns it.
func ReleaseReservation(ctx context.Context, db *store.DB, id, agentID int64) error {
	now := store.Now()
	err := db.Write(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE file_reservations SET released_ts = ? WHERE id = ? AND agent_id = ? AND released_ts IS NULL`,
			int64(now), id, agentID)
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
		return mcperr.FromStoreErr("release_file_reservation", err)
	}
	return nil
}

// ReleaseAllForAgent releases every live reservation an agent holds in a
// project, returning the count released.
func ReleaseAllForAgent(ctx context.Context, db *store.DB, projectID, agentID int64) (int, error) {
	var n int64
	now := store.Now()
	err := db.Write(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE file_reservations SET released_ts = ? WHERE project_id = ? AND agent_id = ? AND released_ts IS NULL`,
			int64(now), projectID, agentID)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, mcperr.FromStoreErr("release_file_reservations", err)
	}
	return int(n), nil
}

// ListFileReservations implements the file_reservations view: every live
// (unreleased, unexpired) reservation in a project.
func ListFileReservations(ctx context.Context, db *store.DB, projectID int64) ([]*FileReservation, error) {
	return liveReservations(ctx, db, projectID)
}

func liveReservations(ctx context.Context, db *store.DB, projectID int64) ([]*FileReservation, error) {
	now := store.Now()
	rows, err := db.ReadConn().QueryContext(ctx,
		`SELECT id, project_id, agent_id, path_pattern, exclusive, reason, created_ts, expires_ts, released_ts
		 FROM file_reservations WHERE project_id = ? AND released_ts IS NULL AND expires_ts > ?
		 ORDER BY created_ts ASC`, projectID, int64(now))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*FileReservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if out == nil {
		out = []*FileReservation{}
	}
	return out, rows.Err()
}

func scanReservation(rows *sql.Rows) (*FileReservation, error) {
	var r FileReservation
	var excl int
	var released sql.NullInt64
	if err := rows.Scan(&r.ID, &r.ProjectID, &r.AgentID, &r.PathPattern, &excl, &r.Reason, &r.CreatedTS, &r.ExpiresTS, &released); err != nil {
		return nil, err
	}
	r.Exclusive = excl != 0
	if released.Valid {
		r.ReleasedTS = store.Epoch(released.Int64)
	}
	return &r, nil
}

// agentNameFor resolves an agent's display name given only its id, for
// populating Conflict.Agent without importing internal/identity.
func agentNameFor(ctx context.Context, db *store.DB, agentID int64) (string, error) {
	rows, err := db.ReadConn().QueryContext(ctx, `SELECT name FROM agents WHERE id = ?`, agentID)
	if err != nil {
		return "", err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return "", store.ErrNotFound
	}
	var name string
	if err := rows.Scan(&name); err != nil {
		return "", err
	}
	return name, rows.Err()
}

// projectSlugFor resolves a project's slug for lock-keying given only its
// id, for call sites that only have the numeric id on hand.
func projectSlugFor(ctx context.Context, db *store.DB, projectID int64) (string, error) {
	rows, err := db.ReadConn().QueryContext(ctx, `SELECT slug FROM projects WHERE id = ?`, projectID)
	if err != nil {
		return "", err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return "", store.ErrNotFound
	}
	var slug string
	if err := rows.Scan(&slug); err != nil {
		return "", err
	}
	return slug, rows.Err()
}
