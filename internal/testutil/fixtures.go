// Package testutil provides shared fixtures for package-level tests across
// the coordination engine, using an option-func fixture builder over
// store-backed projects and agents.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/dicklesworthstone/agentmail/internal/identity"
	"github.com/dicklesworthstone/agentmail/internal/store"
)

// OpenTestDB opens a fresh on-disk SQLite database under the test's
// temporary directory and registers cleanup to close it. A real file is
// used rather than ":memory:" since store.Open hands out two independent
// connection pools (write + read-only) that must see the same database.
func OpenTestDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// NewTestProject ensures a project named after the running test and
// returns it.
func NewTestProject(t *testing.T, db *store.DB) *identity.Project {
	t.Helper()
	p, err := identity.EnsureProject(t.Context(), db, "test-project-"+t.Name())
	if err != nil {
		t.Fatalf("ensuring test project: %v", err)
	}
	return p
}

// NewTestAgent registers an agent with the given name in the given
// project, defaulting program/model/task fields to test-friendly values.
func NewTestAgent(t *testing.T, db *store.DB, projectSlug, name string) *identity.Agent {
	t.Helper()
	a, err := identity.RegisterAgent(t.Context(), db, projectSlug, name, "codex", "gpt-test", "running tests")
	if err != nil {
		t.Fatalf("registering test agent %q: %v", name, err)
	}
	return a
}
