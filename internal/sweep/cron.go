// Package sweep runs the background janitor that expires stale pending
// contacts, lapsed file reservations, and lapsed build slots (spec §5:
// "shared resources... as self-locking primitives" still need an eventual
// reaper, since a crashed agent never calls release). Ground:
// internal/schedule/cron.go's cron.Parser wrapper (kept verbatim in
// spirit) plus internal/cleanup/cleanup.go's ticker+goroutine+WaitWaitGroup
// Start/Stop shape.
package sweep

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron validates and parses a standard 5-field cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched, nil
}

// NextRun returns the next firing time after `after`.
func NextRun(expr string, after time.Time) (time.Time, error) {
	sched, err := ParseCron(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}
