package store

import (
	"database/sql"
	"fmt"

	"github.com/dicklesworthstone/agentmail/internal/backup"
	"github.com/dicklesworthstone/agentmail/internal/logger"
)

// migration is one named, idempotent schema step. Ground: the retrieval
// pack's ordered []Migration{Name, Func} convention for SQLite migration
// runners — every Func must be safe to re-run against an already-migrated
// database.
type migration struct {
	Name string
	Func func(*sql.DB) error
}

// migrationsList runs in order at every startup. Each entry is additive and
// guarded with IF NOT EXISTS / defensive ALTER TABLE so re-application is a
// no-op.
var migrationsList = []migration{
	{"001_base_schema", migrateBaseSchema},
	{"002_fts5_or_fallback", migrateFTS},
	{"003_legacy_timestamps", migrateLegacyTimestamps},
}

func migrateBaseSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// migrateFTS attempts FTS5; on failure (driver built without the fts5 tag)
// it records the fallback in schema_meta so SearchMessages knows which path
// to use without probing on every call.
func migrateFTS(db *sql.DB) error {
	_, err := db.Exec(ftsSchema)
	if err != nil {
		logger.Printf("fts5 unavailable, falling back to LIKE-based search: %v", err)
		_, mErr := db.Exec(`INSERT OR REPLACE INTO schema_meta(key, value) VALUES ('fts5_available', '0')`)
		return mErr
	}
	_, mErr := db.Exec(`INSERT OR REPLACE INTO schema_meta(key, value) VALUES ('fts5_available', '1')`)
	return mErr
}

// migrateLegacyTimestamps detects a pre-µepoch database (textual timestamp
// columns) by probing the declared column type of projects.created_ts, and
// if textual, snapshots the database via internal/backup before rewriting
// every *_ts column in place. On a database created fresh by migrateBaseSchema
// this is always a no-op (column is already INTEGER).
func migrateLegacyTimestamps(db *sql.DB) error {
	affinity, err := columnAffinity(db, "projects", "created_ts")
	if err != nil {
		// Table may not exist yet on a brand-new database handle raced with
		// migrateBaseSchema in a future reordering; nothing to migrate.
		return nil
	}
	if affinity != "text" {
		return nil
	}

	dbPath, err := dbFilePath(db)
	if err != nil {
		return fmt.Errorf("%w: locating db file for pre-migration backup: %v", ErrMigrationFailed, err)
	}
	if dbPath != "" {
		if _, err := backup.SnapshotFile(dbPath, Now()); err != nil {
			return fmt.Errorf("%w: pre-migration backup failed: %v", ErrMigrationFailed, err)
		}
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMigrationFailed, err)
	}
	defer func() { _ = tx.Rollback() }()

	tables := map[string][]string{
		"projects":           {"created_ts"},
		"agents":             {"inception_ts", "last_active_ts"},
		"messages":           {"created_ts"},
		"message_recipients": {"read_ts", "ack_ts"},
		"contacts":           {"created_ts", "expires_ts"},
		"file_reservations":  {"created_ts", "expires_ts", "released_ts"},
		"build_slots":        {"acquired_ts", "expires_ts", "released_ts"},
		"content_blobs":      {"created_ts"},
	}
	for table, cols := range tables {
		for _, col := range cols {
			if err := rewriteLegacyColumn(tx, table, col); err != nil {
				return fmt.Errorf("%w: rewriting %s.%s: %v", ErrMigrationFailed, table, col, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrMigrationFailed, err)
	}
	logger.Println("legacy textual timestamps migrated to µepoch integers")
	return nil
}

func columnAffinity(db *sql.DB, table, column string) (string, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return "", err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return "", err
		}
		if name == column {
			switch {
			case ctype == "" :
				return "blob", nil
			case ctype == "INTEGER":
				return "integer", nil
			default:
				return "text", nil
			}
		}
	}
	return "", fmt.Errorf("column %s not found on %s", column, table)
}

func rewriteLegacyColumn(tx *sql.Tx, table, column string) error {
	rows, err := tx.Query(fmt.Sprintf("SELECT rowid, %s FROM %s WHERE %s IS NOT NULL", column, table, column))
	if err != nil {
		return err
	}
	type pending struct {
		rowid int64
		value Epoch
	}
	var updates []pending
	for rows.Next() {
		var rowid int64
		var raw sql.NullString
		if err := rows.Scan(&rowid, &raw); err != nil {
			_ = rows.Close()
			return err
		}
		if !raw.Valid {
			continue
		}
		epoch, ok := parseLegacyTimestamp(raw.String)
		if !ok {
			continue
		}
		updates = append(updates, pending{rowid, epoch})
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	stmt, err := tx.Prepare(fmt.Sprintf("UPDATE %s SET %s = ? WHERE rowid = ?", table, column))
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()
	for _, u := range updates {
		if _, err := stmt.Exec(int64(u.value), u.rowid); err != nil {
			return err
		}
	}
	return nil
}

// dbFilePath asks the sqlite connection for the file backing the "main"
// database, returning "" for in-memory databases (nothing to snapshot).
func dbFilePath(db *sql.DB) (string, error) {
	row := db.QueryRow(`PRAGMA database_list`)
	var seq int
	var name, file string
	if err := row.Scan(&seq, &name, &file); err != nil {
		return "", err
	}
	return file, nil
}

// runMigrations applies every migration in order.
func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS applied_migrations (name TEXT PRIMARY KEY, applied_ts INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("%w: %v", ErrMigrationFailed, err)
	}
	for _, m := range migrationsList {
		var exists int
		err := db.QueryRow(`SELECT 1 FROM applied_migrations WHERE name = ?`, m.Name).Scan(&exists)
		if err == nil {
			continue // already applied
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("%w: checking migration state: %v", ErrMigrationFailed, err)
		}
		if err := m.Func(db); err != nil {
			return err
		}
		if _, err := db.Exec(`INSERT INTO applied_migrations(name, applied_ts) VALUES (?, ?)`, m.Name, int64(Now())); err != nil {
			return fmt.Errorf("%w: recording migration %s: %v", ErrMigrationFailed, m.Name, err)
		}
	}
	return nil
}

// ListMigrations reports every migration's name and whether it is applied;
// ground: the pack's MigrationInfo introspection helper, used by `am doctor check`.
type MigrationInfo struct {
	Name    string
	Applied bool
}

func (db *DB) ListMigrations() ([]MigrationInfo, error) {
	applied := map[string]bool{}
	rows, err := db.read.Query(`SELECT name FROM applied_migrations`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	infos := make([]MigrationInfo, 0, len(migrationsList))
	for _, m := range migrationsList {
		infos = append(infos, MigrationInfo{Name: m.Name, Applied: applied[m.Name]})
	}
	return infos, rows.Err()
}
