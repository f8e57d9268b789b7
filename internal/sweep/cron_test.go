package sweep

import (
	"testing"
	"time"
)

func TestParseCron_Valid(t *testing.T) {
	cases := []string{
		"* * * * *",
		"*/5 * * * *",
		"0 0 * * *",
		"30 9 * * 1-5",
	}
	for _, expr := range cases {
		if _, err := ParseCron(expr); err != nil {
			t.Errorf("ParseCron(%q) returned error: %v", expr, err)
		}
	}
}

func TestParseCron_Invalid(t *testing.T) {
	cases := []string{
		"",
		"not a cron expression",
		"60 * * * *",
		"* * * *",
	}
	for _, expr := range cases {
		if _, err := ParseCron(expr); err == nil {
			t.Errorf("ParseCron(%q) expected error, got nil", expr)
		}
	}
}

func TestNextRun_EveryMinute(t *testing.T) {
	after := time.Date(2026, 7, 31, 12, 0, 30, 0, time.UTC)
	next, err := NextRun("* * * * *", after)
	if err != nil {
		t.Fatalf("NextRun returned error: %v", err)
	}
	want := time.Date(2026, 7, 31, 12, 1, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("NextRun = %v, want %v", next, want)
	}
}

func TestNextRun_InvalidExpression(t *testing.T) {
	if _, err := NextRun("garbage", time.Now()); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}
