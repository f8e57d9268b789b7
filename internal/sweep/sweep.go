package sweep

import (
	"context"
	"database/sql"

	"github.com/dicklesworthstone/agentmail/internal/logger"
	"github.com/dicklesworthstone/agentmail/internal/metrics"
	"github.com/dicklesworthstone/agentmail/internal/store"
	"github.com/robfig/cron/v3"
)

// defaultSchedule runs the sweep every minute; lapsed reservations and
// build slots carry their own expires_ts, so a minute's staleness window
// is a UX concern, not a correctness one — any ReadConn query already
// filters on expires_ts and never observes a lapsed row as live regardless
// of whether the janitor has gotten to it yet.
const defaultSchedule = "* * * * *"

// Janitor periodically marks expired pending contacts, file reservations,
// and build slots as such, so a crashed agent's holdings don't linger as
// "live" beyond their own TTL indefinitely in anyone's mental model even
// though queries already filter them out.
type Janitor struct {
	db  *store.DB
	cr  *cron.Cron
	sch string
}

// New creates a Janitor that sweeps on the given cron expression; an empty
// expression falls back to defaultSchedule.
func New(db *store.DB, cronExpr string) (*Janitor, error) {
	if cronExpr == "" {
		cronExpr = defaultSchedule
	}
	if _, err := ParseCron(cronExpr); err != nil {
		return nil, err
	}
	return &Janitor{db: db, cr: cron.New(), sch: cronExpr}, nil
}

// Start registers the sweep and begins the cron scheduler's goroutine.
func (j *Janitor) Start() error {
	if _, err := j.cr.AddFunc(j.sch, j.runOnce); err != nil {
		return err
	}
	j.cr.Start()
	logger.Printf("sweep: janitor started (schedule=%q)", j.sch)
	return nil
}

// Stop halts the scheduler and waits for any in-flight sweep to finish.
func (j *Janitor) Stop() {
	ctx := j.cr.Stop()
	<-ctx.Done()
	logger.Println("sweep: janitor stopped")
}

func (j *Janitor) runOnce() {
	ctx := context.Background()
	n, err := RunOnce(ctx, j.db)
	if err != nil {
		logger.Printf("sweep: pass failed: %v", err)
		metrics.RecordSweepRun("error")
		return
	}
	if n > 0 {
		logger.Printf("sweep: expired %d stale rows", n)
	}
	metrics.RecordSweepRun("ok")
}

// RunOnce performs a single sweep pass, expiring stale rows across all
// three TTL-bound entities, and returns the total row count touched.
func RunOnce(ctx context.Context, db *store.DB) (int, error) {
	now := int64(store.Now())
	var total int64

	err := db.Write(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE contacts SET status = 'expired' WHERE status = 'pending' AND expires_ts IS NOT NULL AND expires_ts <= ?`, now)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}

		res, err = tx.Exec(`UPDATE file_reservations SET released_ts = ? WHERE released_ts IS NULL AND expires_ts <= ?`, now, now)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}

		res, err = tx.Exec(`UPDATE build_slots SET released_ts = ? WHERE released_ts IS NULL AND expires_ts <= ?`, now, now)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(total), nil
}
