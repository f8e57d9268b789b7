package identity

import (
	"testing"
	"time"

	"github.com/dicklesworthstone/agentmail/internal/store"
	"github.com/dicklesworthstone/agentmail/internal/testutil"
)

func TestRespondContact_AlreadyResolvedReturnsExistingStatus(t *testing.T) {
	db := testutil.OpenTestDB(t)
	ctx := t.Context()
	proj := testutil.NewTestProject(t, db)
	a := testutil.NewTestAgent(t, db, proj.Slug, "RedFalcon")
	b := testutil.NewTestAgent(t, db, proj.Slug, "BlueOtter")

	if _, err := RequestContact(ctx, db, proj.ID, a.ID, b.ID, "collab", store.Now().Add(time.Hour)); err != nil {
		t.Fatalf("RequestContact: %v", err)
	}
	c, err := RespondContact(ctx, db, proj.ID, a.ID, b.ID, true)
	if err != nil {
		t.Fatalf("first respond_contact: %v", err)
	}
	if c.Status != "approved" {
		t.Fatalf("status = %q, want approved", c.Status)
	}

	c, err = RespondContact(ctx, db, proj.ID, a.ID, b.ID, false)
	if err != nil {
		t.Fatalf("respond_contact on already-resolved edge should not error: %v", err)
	}
	if c.Status != "approved" {
		t.Errorf("status = %q, want existing approved status to be echoed back", c.Status)
	}
}
