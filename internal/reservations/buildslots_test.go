package reservations

import (
	"testing"
	"time"

	"github.com/dicklesworthstone/agentmail/internal/testutil"
)

func TestAcquireBuildSlot_SecondAgentEchoesHolder(t *testing.T) {
	db := testutil.OpenTestDB(t)
	ctx := t.Context()
	proj := testutil.NewTestProject(t, db)
	a := testutil.NewTestAgent(t, db, proj.Slug, "RedFalcon")
	b := testutil.NewTestAgent(t, db, proj.Slug, "BlueOtter")

	res, err := AcquireBuildSlot(ctx, db, proj.ID, a.ID, "build-1", true, time.Minute)
	if err != nil {
		t.Fatalf("A acquires: %v", err)
	}
	if len(res.Conflicts) != 0 || res.Granted.AgentID != a.ID {
		t.Fatalf("expected clean grant to A, got %+v", res)
	}

	res, err = AcquireBuildSlot(ctx, db, proj.ID, b.ID, "build-1", true, time.Minute)
	if err != nil {
		t.Fatalf("B acquires: %v", err)
	}
	if res.Granted.AgentID != a.ID {
		t.Errorf("granted should still echo A's holding, got agent %d", res.Granted.AgentID)
	}
	if len(res.Conflicts) != 1 || res.Conflicts[0].Agent != a.Name {
		t.Errorf("conflicts = %+v, want one entry naming %s", res.Conflicts, a.Name)
	}
}

func TestRenewAndReleaseBuildSlot_KeyedByAgentAndSlotName(t *testing.T) {
	db := testutil.OpenTestDB(t)
	ctx := t.Context()
	proj := testutil.NewTestProject(t, db)
	a := testutil.NewTestAgent(t, db, proj.Slug, "RedFalcon")

	if _, err := AcquireBuildSlot(ctx, db, proj.ID, a.ID, "build-1", true, time.Minute); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if _, err := RenewBuildSlot(ctx, db, proj.ID, a.ID, "build-1", 2*time.Minute); err != nil {
		t.Fatalf("renew by holder: %v", err)
	}

	if err := ReleaseBuildSlot(ctx, db, proj.ID, a.ID, "build-1"); err != nil {
		t.Fatalf("release by holder: %v", err)
	}

	if err := ReleaseBuildSlot(ctx, db, proj.ID, a.ID, "build-1"); err == nil {
		t.Error("expected releasing an already-released slot to fail")
	}
}
