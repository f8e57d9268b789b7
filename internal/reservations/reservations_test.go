package reservations

import (
	"testing"

	"github.com/dicklesworthstone/agentmail/internal/identity"
	"github.com/dicklesworthstone/agentmail/internal/testutil"
)

func TestReserveFilePaths_ExclusiveConflictsWithExistingShared(t *testing.T) {
	db := testutil.OpenTestDB(t)
	ctx := t.Context()
	proj := testutil.NewTestProject(t, db)
	a := testutil.NewTestAgent(t, db, proj.Slug, "RedFalcon")
	b := testutil.NewTestAgent(t, db, proj.Slug, "BlueOtter")

	if _, err := ReserveFilePaths(ctx, db, proj.ID, a.ID, []string{"src/*.rs"}, false, "", 0); err != nil {
		t.Fatalf("shared reserve by A: %v", err)
	}

	res, err := ReserveFilePaths(ctx, db, proj.ID, b.ID, []string{"src/*.rs"}, true, "", 0)
	if err != nil {
		t.Fatalf("exclusive reserve by B: %v", err)
	}
	if len(res.Granted) != 0 {
		t.Errorf("expected no grant, got %d", len(res.Granted))
	}
	if len(res.Conflicts) != 1 || res.Conflicts[0].Agent != a.Name {
		t.Errorf("conflicts = %+v, want one entry naming %s", res.Conflicts, a.Name)
	}
}

func TestReserveFilePaths_NonExclusiveConflictsOnlyWithExisting(t *testing.T) {
	db := testutil.OpenTestDB(t)
	ctx := t.Context()
	proj := testutil.NewTestProject(t, db)
	a := testutil.NewTestAgent(t, db, proj.Slug, "RedFalcon")
	b := testutil.NewTestAgent(t, db, proj.Slug, "BlueOtter")
	c := testutil.NewTestAgent(t, db, proj.Slug, "GreenLynx")

	if _, err := ReserveFilePaths(ctx, db, proj.ID, a.ID, []string{"src/*.rs"}, false, "", 0); err != nil {
		t.Fatalf("shared reserve by A: %v", err)
	}
	res, err := ReserveFilePaths(ctx, db, proj.ID, b.ID, []string{"src/*.rs"}, false, "", 0)
	if err != nil {
		t.Fatalf("shared reserve by B: %v", err)
	}
	if len(res.Granted) != 1 || len(res.Conflicts) != 0 {
		t.Fatalf("expected shared-vs-shared to be granted, got %+v", res)
	}

	// An exclusive request conflicts with any active holder, shared or not,
	// so A's and B's shared holds are released before C asks for one.
	for _, holder := range []int64{a.ID, b.ID} {
		if _, err := ReleaseAllForAgent(ctx, db, proj.ID, holder); err != nil {
			t.Fatalf("releasing shared holds: %v", err)
		}
	}
	if _, err := ReserveFilePaths(ctx, db, proj.ID, c.ID, []string{"src/*.rs"}, true, "", 0); err != nil {
		t.Fatalf("exclusive reserve by C: %v", err)
	}
	res, err = ReserveFilePaths(ctx, db, proj.ID, a.ID, []string{"src/*.rs"}, false, "", 0)
	if err != nil {
		t.Fatalf("shared reserve by A after exclusive: %v", err)
	}
	if len(res.Granted) != 0 || len(res.Conflicts) != 1 || res.Conflicts[0].Agent != c.Name {
		t.Errorf("expected shared request to conflict with C's exclusive hold, got %+v", res)
	}
}

func TestReserveFilePaths_PartialGrantAcrossPaths(t *testing.T) {
	db := testutil.OpenTestDB(t)
	ctx := t.Context()
	proj := testutil.NewTestProject(t, db)
	a := testutil.NewTestAgent(t, db, proj.Slug, "RedFalcon")
	b := testutil.NewTestAgent(t, db, proj.Slug, "BlueOtter")

	if _, err := ReserveFilePaths(ctx, db, proj.ID, a.ID, []string{"src/main.rs"}, true, "", 0); err != nil {
		t.Fatalf("exclusive reserve by A: %v", err)
	}

	res, err := ReserveFilePaths(ctx, db, proj.ID, b.ID, []string{"src/main.rs", "src/lib.rs"}, true, "", 0)
	if err != nil {
		t.Fatalf("mixed reserve by B: %v", err)
	}
	if len(res.Granted) != 1 || res.Granted[0].PathPattern != "src/lib.rs" {
		t.Errorf("expected src/lib.rs granted, got %+v", res.Granted)
	}
	if len(res.Conflicts) != 1 || res.Conflicts[0].PathPattern != "src/main.rs" {
		t.Errorf("expected src/main.rs conflicted, got %+v", res.Conflicts)
	}
}

func TestReserveFilePaths_ProjectIsolation(t *testing.T) {
	db := testutil.OpenTestDB(t)
	ctx := t.Context()
	p := testutil.NewTestProject(t, db)
	a := testutil.NewTestAgent(t, db, p.Slug, "RedFalcon")

	q, err := identity.EnsureProject(ctx, db, "other-project-"+t.Name())
	if err != nil {
		t.Fatalf("ensuring second project: %v", err)
	}
	b := testutil.NewTestAgent(t, db, q.Slug, "BlueOtter")

	if _, err := ReserveFilePaths(ctx, db, p.ID, a.ID, []string{"src/main.rs"}, true, "", 0); err != nil {
		t.Fatalf("exclusive reserve in project P: %v", err)
	}
	res, err := ReserveFilePaths(ctx, db, q.ID, b.ID, []string{"src/main.rs"}, true, "", 0)
	if err != nil {
		t.Fatalf("exclusive reserve in project Q: %v", err)
	}
	if len(res.Granted) != 1 || len(res.Conflicts) != 0 {
		t.Errorf("expected isolated project to grant freely, got %+v", res)
	}
}
