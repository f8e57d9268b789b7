package mail

import (
	"testing"

	"github.com/dicklesworthstone/agentmail/internal/testutil"
)

func TestSummarizeThread_ParticipantsExcludeCCAndBCC(t *testing.T) {
	db := testutil.OpenTestDB(t)
	ctx := t.Context()
	proj := testutil.NewTestProject(t, db)
	sender := testutil.NewTestAgent(t, db, proj.Slug, "RedFalcon")
	to := testutil.NewTestAgent(t, db, proj.Slug, "BlueOtter")
	cc := testutil.NewTestAgent(t, db, proj.Slug, "GreenLynx")

	recipients := []RecipientSpec{
		{AgentID: to.ID, Kind: "to"},
		{AgentID: cc.ID, Kind: "cc"},
	}
	if _, err := SendMessage(ctx, db, proj.ID, sender.ID, recipients, "thread-1", "kickoff", "body", "normal", true, nil); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	summary, err := SummarizeThread(ctx, db, proj.ID, "thread-1")
	if err != nil {
		t.Fatalf("SummarizeThread: %v", err)
	}
	want := map[int64]bool{sender.ID: true, to.ID: true}
	if len(summary.Participants) != len(want) {
		t.Fatalf("participants = %v, want exactly sender and to-recipient", summary.Participants)
	}
	for _, id := range summary.Participants {
		if !want[id] {
			t.Errorf("unexpected participant %d (cc/bcc recipients should not count)", id)
		}
	}
	if len(summary.KeyPoints) != 1 || summary.KeyPoints[0] != "kickoff" {
		t.Errorf("key points = %v, want [kickoff]", summary.KeyPoints)
	}
	if len(summary.ActionItems) != 1 || summary.ActionItems[0] != "kickoff" {
		t.Errorf("action items = %v, want [kickoff] since ack_required=true", summary.ActionItems)
	}
}
