package sweep

import (
	"database/sql"
	"testing"

	"github.com/dicklesworthstone/agentmail/internal/identity"
	"github.com/dicklesworthstone/agentmail/internal/reservations"
	"github.com/dicklesworthstone/agentmail/internal/store"
	"github.com/dicklesworthstone/agentmail/internal/testutil"
)

func TestRunOnce_ExpiresLapsedContact(t *testing.T) {
	db := testutil.OpenTestDB(t)
	ctx := t.Context()
	proj := testutil.NewTestProject(t, db)
	a := testutil.NewTestAgent(t, db, proj.Slug, "RedFalcon")
	b := testutil.NewTestAgent(t, db, proj.Slug, "BlueOtter")

	if _, err := identity.RequestContact(ctx, db, proj.ID, a.ID, b.ID, "collab", store.Now()-1); err != nil {
		t.Fatalf("RequestContact: %v", err)
	}

	n, err := RunOnce(ctx, db)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row expired, got %d", n)
	}

	var status string
	row := db.ReadConn().QueryRowContext(ctx, `SELECT status FROM contacts WHERE from_agent = ? AND to_agent = ?`, a.ID, b.ID)
	if err := row.Scan(&status); err != nil {
		t.Fatalf("scanning contact status: %v", err)
	}
	if status != "expired" {
		t.Errorf("status = %q, want expired", status)
	}
}

func TestRunOnce_ReleasesLapsedReservationAndBuildSlot(t *testing.T) {
	db := testutil.OpenTestDB(t)
	ctx := t.Context()
	proj := testutil.NewTestProject(t, db)
	a := testutil.NewTestAgent(t, db, proj.Slug, "RedFalcon")

	var resID, slotID int64
	err := db.Write(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`INSERT INTO file_reservations(project_id, agent_id, path_pattern, exclusive, reason, created_ts, expires_ts) VALUES (?, ?, 'src/*.go', 1, '', ?, ?)`,
			proj.ID, a.ID, int64(store.Now()), int64(store.Now())-10)
		if err != nil {
			return err
		}
		resID, err = res.LastInsertId()
		if err != nil {
			return err
		}
		res, err = tx.Exec(`INSERT INTO build_slots(project_id, agent_id, slot, exclusive, acquired_ts, expires_ts) VALUES (?, ?, 'ci', 1, ?, ?)`,
			proj.ID, a.ID, int64(store.Now()), int64(store.Now())-10)
		if err != nil {
			return err
		}
		slotID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		t.Fatalf("seeding lapsed rows: %v", err)
	}

	n, err := RunOnce(ctx, db)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows released, got %d", n)
	}

	live, err := reservations.ListFileReservations(ctx, db, proj.ID)
	if err != nil {
		t.Fatalf("ListFileReservations: %v", err)
	}
	for _, r := range live {
		if r.ID == resID {
			t.Errorf("reservation %d still reported live after sweep", resID)
		}
	}
	_ = slotID
}

func TestRunOnce_NoopWhenNothingLapsed(t *testing.T) {
	db := testutil.OpenTestDB(t)
	ctx := t.Context()
	n, err := RunOnce(ctx, db)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 rows touched on empty database, got %d", n)
	}
}

func TestNew_RejectsInvalidSchedule(t *testing.T) {
	db := testutil.OpenTestDB(t)
	if _, err := New(db, "not-a-cron-expr"); err == nil {
		t.Fatal("expected error for invalid cron schedule")
	}
}

func TestNew_DefaultsEmptySchedule(t *testing.T) {
	db := testutil.OpenTestDB(t)
	j, err := New(db, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if j.sch != defaultSchedule {
		t.Errorf("sch = %q, want %q", j.sch, defaultSchedule)
	}
}
