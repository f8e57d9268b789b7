package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOpenMemoryMigratesSchema(t *testing.T) {
	db, err := OpenMemory()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	require.NoError(t, db.Health(context.Background()))

	infos, err := db.ListMigrations()
	require.NoError(t, err)
	require.Len(t, infos, len(migrationsList))
	for _, info := range infos {
		require.True(t, info.Applied, "migration %s should be applied", info.Name)
	}
}

func TestEpochRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Microsecond)
	e := FromTime(now)
	require.WithinDuration(t, now, e.Time(), time.Microsecond)
}

func TestWriteSerializesAndRollsBackOnError(t *testing.T) {
	db, err := OpenMemory()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	err = db.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO projects(slug, human_key, created_ts) VALUES (?, ?, ?)`, "demo", "demo", int64(Now()))
		return err
	})
	require.NoError(t, err)

	// Duplicate slug violates the UNIQUE constraint and must roll back cleanly,
	// surfacing as ErrConstraintViolation rather than a partial write.
	err = db.Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO projects(slug, human_key, created_ts) VALUES (?, ?, ?)`, "demo", "demo again", int64(Now()))
		return err
	})
	require.ErrorIs(t, err, ErrConstraintViolation)

	var count int
	require.NoError(t, db.read.QueryRow(`SELECT COUNT(*) FROM projects`).Scan(&count))
	require.Equal(t, 1, count)
}

func TestSearchMessagesEmptyQueryReturnsEmpty(t *testing.T) {
	db, err := OpenMemory()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	rows, err := db.SearchMessages(context.Background(), 1, SearchQuery{}, 10)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestSearchMessagesFindsPrefixAndPhrase(t *testing.T) {
	db, err := OpenMemory()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	ctx := context.Background()

	var projectID, agentID int64
	require.NoError(t, db.Write(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`INSERT INTO projects(slug, human_key, created_ts) VALUES ('p', 'p', ?)`, int64(Now()))
		if err != nil {
			return err
		}
		projectID, _ = res.LastInsertId()
		res, err = tx.Exec(`INSERT INTO agents(project_id, name, name_lower, inception_ts, last_active_ts) VALUES (?, 'GoldFox', 'goldfox', ?, ?)`,
			projectID, int64(Now()), int64(Now()))
		if err != nil {
			return err
		}
		agentID, _ = res.LastInsertId()
		_, err = tx.Exec(`INSERT INTO messages(project_id, sender_id, thread_id, subject, body_md, created_ts) VALUES (?, ?, 't1', 'migration underway', 'see plan', ?)`,
			projectID, agentID, int64(Now()))
		return err
	}))

	rows, err := db.SearchMessages(ctx, projectID, SearchQuery{PrefixTokens: []string{"migrat"}}, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	rows, err = db.SearchMessages(ctx, projectID, SearchQuery{Phrases: []string{"see plan"}}, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	rows, err = db.SearchMessages(ctx, projectID, SearchQuery{AndTokens: []string{"nonexistent"}}, 10)
	require.NoError(t, err)
	require.Empty(t, rows)
}
