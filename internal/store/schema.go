package store

// schema is the full relational layout (spec §3 DATA MODEL). All timestamp
// columns are µepoch (signed 64-bit microseconds since Unix epoch) stored as
// INTEGER, never DATETIME/TEXT — the legacy-timestamp migration in migrate.go
// exists precisely to rewrite any table created under an older, textual
// convention into this one.
const schema = `
CREATE TABLE IF NOT EXISTS projects (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    slug       TEXT NOT NULL UNIQUE,
    human_key  TEXT NOT NULL,
    created_ts INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS agents (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id         INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    name               TEXT NOT NULL,
    name_lower         TEXT NOT NULL,
    program            TEXT NOT NULL DEFAULT '',
    model              TEXT NOT NULL DEFAULT '',
    task_description   TEXT NOT NULL DEFAULT '',
    inception_ts       INTEGER NOT NULL,
    last_active_ts      INTEGER NOT NULL,
    attachments_policy TEXT NOT NULL DEFAULT 'inherit',
    contact_policy     TEXT NOT NULL DEFAULT 'open',
    UNIQUE (project_id, name_lower)
);
CREATE INDEX IF NOT EXISTS idx_agents_project ON agents(project_id);

CREATE TABLE IF NOT EXISTS messages (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id    INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    sender_id     INTEGER NOT NULL REFERENCES agents(id),
    thread_id     TEXT NOT NULL DEFAULT '',
    subject       TEXT NOT NULL DEFAULT '',
    body_md       TEXT NOT NULL DEFAULT '',
    importance    TEXT NOT NULL DEFAULT 'normal',
    ack_required  INTEGER NOT NULL DEFAULT 0,
    created_ts    INTEGER NOT NULL,
    attachments   TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_messages_project ON messages(project_id);
CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(project_id, thread_id);
CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_ts);

CREATE TABLE IF NOT EXISTS message_recipients (
    message_id INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
    agent_id   INTEGER NOT NULL REFERENCES agents(id),
    kind       TEXT NOT NULL DEFAULT 'to',
    read_ts    INTEGER,
    ack_ts     INTEGER,
    PRIMARY KEY (message_id, agent_id, kind)
);
CREATE INDEX IF NOT EXISTS idx_recipients_agent ON message_recipients(agent_id);
CREATE INDEX IF NOT EXISTS idx_recipients_ack ON message_recipients(agent_id, ack_ts);

CREATE TABLE IF NOT EXISTS contacts (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    from_agent INTEGER NOT NULL REFERENCES agents(id),
    to_agent   INTEGER NOT NULL REFERENCES agents(id),
    status     TEXT NOT NULL DEFAULT 'pending',
    reason     TEXT NOT NULL DEFAULT '',
    created_ts INTEGER NOT NULL,
    expires_ts INTEGER
);
CREATE INDEX IF NOT EXISTS idx_contacts_from ON contacts(from_agent);
CREATE INDEX IF NOT EXISTS idx_contacts_to ON contacts(to_agent);
CREATE UNIQUE INDEX IF NOT EXISTS idx_contacts_pair ON contacts(project_id, from_agent, to_agent);

CREATE TABLE IF NOT EXISTS file_reservations (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id    INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    agent_id      INTEGER NOT NULL REFERENCES agents(id),
    path_pattern  TEXT NOT NULL,
    exclusive     INTEGER NOT NULL DEFAULT 1,
    reason        TEXT NOT NULL DEFAULT '',
    created_ts    INTEGER NOT NULL,
    expires_ts    INTEGER NOT NULL,
    released_ts   INTEGER
);
CREATE INDEX IF NOT EXISTS idx_reservations_project ON file_reservations(project_id);
CREATE INDEX IF NOT EXISTS idx_reservations_agent ON file_reservations(agent_id);

CREATE TABLE IF NOT EXISTS build_slots (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id  INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    agent_id    INTEGER NOT NULL REFERENCES agents(id),
    slot        TEXT NOT NULL,
    exclusive   INTEGER NOT NULL DEFAULT 1,
    acquired_ts INTEGER NOT NULL,
    expires_ts  INTEGER NOT NULL,
    released_ts INTEGER
);
CREATE INDEX IF NOT EXISTS idx_buildslots_project_slot ON build_slots(project_id, slot);

CREATE TABLE IF NOT EXISTS content_blobs (
    sha256     TEXT PRIMARY KEY,
    size_bytes INTEGER NOT NULL,
    created_ts INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// ftsSchema creates the FTS5 virtual table and its sync triggers. It is
// attempted separately from schema because not every modernc.org/sqlite
// build is compiled with the fts5 tag (spec §4.1's transparent fallback).
const ftsSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
    subject, body_md, content='messages', content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
    INSERT INTO messages_fts(rowid, subject, body_md) VALUES (new.id, new.subject, new.body_md);
END;

CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, subject, body_md) VALUES ('delete', old.id, old.subject, old.body_md);
END;

CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, subject, body_md) VALUES ('delete', old.id, old.subject, old.body_md);
    INSERT INTO messages_fts(rowid, subject, body_md) VALUES (new.id, new.subject, new.body_md);
END;
`
