package sqlite

// Schema is the embedded DDL for the SQLite backend. The memories_fts
// virtual table is an external-content FTS5 index kept in sync with the
// memories table via triggers, mirroring how the content column is the only
// indexed text field.
const Schema = `
CREATE TABLE IF NOT EXISTS workspaces (
	id          TEXT PRIMARY KEY,
	tenant_id   TEXT NOT NULL DEFAULT '_default',
	name        TEXT NOT NULL DEFAULT '',
	description TEXT,
	settings    TEXT,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS memories (
	id               TEXT PRIMARY KEY,
	workspace_id     TEXT NOT NULL REFERENCES workspaces(id),
	tenant_id        TEXT NOT NULL DEFAULT '_default',
	content          TEXT NOT NULL,
	content_hash     TEXT NOT NULL,
	embedding        BLOB,
	dimension        INTEGER NOT NULL DEFAULT 0,
	type             TEXT NOT NULL DEFAULT 'semantic',
	subtype          TEXT,
	status           TEXT NOT NULL DEFAULT 'active',
	pinned           INTEGER NOT NULL DEFAULT 0,
	importance       REAL NOT NULL DEFAULT 0.5,
	tags             TEXT,
	abstract         TEXT,
	overview         TEXT,
	created_at       TIMESTAMP NOT NULL,
	updated_at       TIMESTAMP NOT NULL,
	deleted_at       TIMESTAMP,
	access_count     INTEGER NOT NULL DEFAULT 0,
	last_accessed_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_memories_workspace ON memories(workspace_id);
CREATE INDEX IF NOT EXISTS idx_memories_hash ON memories(workspace_id, content_hash);
CREATE INDEX IF NOT EXISTS idx_memories_status ON memories(workspace_id, status);

CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
	content,
	content='memories',
	content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS memories_fts_ai AFTER INSERT ON memories BEGIN
	INSERT INTO memories_fts(rowid, content) VALUES (new.rowid, new.content);
END;

CREATE TRIGGER IF NOT EXISTS memories_fts_ad AFTER DELETE ON memories BEGIN
	INSERT INTO memories_fts(memories_fts, rowid, content)
	VALUES ('delete', old.rowid, old.content);
END;

CREATE TRIGGER IF NOT EXISTS memories_fts_au AFTER UPDATE OF content ON memories BEGIN
	INSERT INTO memories_fts(memories_fts, rowid, content)
	VALUES ('delete', old.rowid, old.content);
	INSERT INTO memories_fts(rowid, content) VALUES (new.rowid, new.content);
END;

CREATE TABLE IF NOT EXISTS associations (
	id           TEXT PRIMARY KEY,
	source_id    TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	target_id    TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	relationship TEXT NOT NULL,
	strength     REAL NOT NULL DEFAULT 0.5,
	created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_associations_source ON associations(source_id);
CREATE INDEX IF NOT EXISTS idx_associations_target ON associations(target_id);

CREATE TABLE IF NOT EXISTS contradictions (
	id                 TEXT PRIMARY KEY,
	workspace_id       TEXT NOT NULL,
	memory_a_id        TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	memory_b_id        TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	contradiction_type TEXT NOT NULL,
	confidence         REAL NOT NULL DEFAULT 0,
	detection_method   TEXT NOT NULL DEFAULT '',
	resolution         TEXT,
	merged_content     TEXT,
	detected_at        TIMESTAMP NOT NULL,
	resolved_at        TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_contradictions_workspace
	ON contradictions(workspace_id, resolution);

CREATE TABLE IF NOT EXISTS working_memory (
	workspace_id TEXT NOT NULL,
	session_id   TEXT NOT NULL,
	key          TEXT NOT NULL,
	value        TEXT NOT NULL,
	expires_at   TIMESTAMP NOT NULL,
	PRIMARY KEY (workspace_id, session_id, key)
);
`
