// Package identity implements spec §4.2: project and agent lifecycle, the
// AdjectiveNoun naming policy, and the contact graph. Projects and agents
// are internal/store SQL rows with upsert-on-conflict semantics, not
// filesystem-JSON documents.
package identity

import (
	"context"
	"database/sql"
	"regexp"
	"strings"

	"github.com/dicklesworthstone/agentmail/internal/mcperr"
	"github.com/dicklesworthstone/agentmail/internal/store"
)

// Project mirrors the Project entity (spec §3).
type Project struct {
	ID        int64
	Slug      string
	HumanKey  string
	CreatedTS store.Epoch
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify implements spec §3's deterministic slug function: lowercase,
// non-alphanumeric runs collapse to a single '-', result is trimmed of
// leading/trailing '-', and an empty result becomes "project".
func Slugify(humanKey string) string {
	s := strings.ToLower(strings.TrimSpace(humanKey))
	s = slugInvalid.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "project"
	}
	return s
}

// EnsureProject implements ensure_project (spec §4.2): idempotent,
// returns {slug, human_key, id}; the same human_key always yields the same
// slug, and an existing row with that slug is returned unchanged rather
// than duplicated.
func EnsureProject(ctx context.Context, db *store.DB, humanKey string) (*Project, error) {
	if strings.TrimSpace(humanKey) == "" {
		return nil, mcperr.Invalid("human_key must not be empty")
	}
	slug := Slugify(humanKey)

	if p, err := GetProjectBySlug(ctx, db, slug); err == nil {
		return p, nil
	}

	var id int64
	err := db.Write(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`INSERT INTO projects(slug, human_key, created_ts) VALUES (?, ?, ?)`,
			slug, humanKey, int64(store.Now()))
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		// Lost a race with a concurrent ensure_project for the same slug;
		// the other writer's row is just as valid — return it.
		if p, gerr := GetProjectBySlug(ctx, db, slug); gerr == nil {
			return p, nil
		}
		return nil, mcperr.FromStoreErr("ensure_project", err)
	}

	return &Project{ID: id, Slug: slug, HumanKey: humanKey, CreatedTS: store.Now()}, nil
}

// GetProjectBySlug looks up a project by its slug.
func GetProjectBySlug(ctx context.Context, db *store.DB, slug string) (*Project, error) {
	var p Project
	row := db.ReadConn().QueryRowContext(ctx,
		`SELECT id, slug, human_key, created_ts FROM projects WHERE slug = ?`, slug)
	if err := row.Scan(&p.ID, &p.Slug, &p.HumanKey, &p.CreatedTS); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ListProjects returns every project, ordered by creation time.
func ListProjects(ctx context.Context, db *store.DB) ([]*Project, error) {
	rows, err := db.ReadConn().QueryContext(ctx, `SELECT id, slug, human_key, created_ts FROM projects ORDER BY created_ts ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Slug, &p.HumanKey, &p.CreatedTS); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	if out == nil {
		out = []*Project{}
	}
	return out, rows.Err()
}
