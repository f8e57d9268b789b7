package views

import (
	"testing"
	"time"

	"github.com/dicklesworthstone/agentmail/internal/mail"
	"github.com/dicklesworthstone/agentmail/internal/testutil"
)

func TestAcksStale_MatchesUnreadUnackedMessage(t *testing.T) {
	db := testutil.OpenTestDB(t)
	ctx := t.Context()
	proj := testutil.NewTestProject(t, db)
	sender := testutil.NewTestAgent(t, db, proj.Slug, "RedFalcon")
	recipient := testutil.NewTestAgent(t, db, proj.Slug, "BlueOtter")

	recipients := []mail.RecipientSpec{{AgentID: recipient.ID, Kind: "to"}}
	if _, err := mail.SendMessage(ctx, db, proj.ID, sender.ID, recipients, "", "ship it", "body", "normal", true, nil); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	out, err := AcksStale(ctx, db, recipient.ID, 0)
	if err != nil {
		t.Fatalf("AcksStale: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected the unread, unacked message to match at ttl_seconds=0, got %d results", len(out))
	}

	out, err = AcksStale(ctx, db, recipient.ID, time.Hour)
	if err != nil {
		t.Fatalf("AcksStale: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected a freshly sent message not to be stale past a 1h threshold, got %d results", len(out))
	}
}
