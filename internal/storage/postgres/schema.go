// Package postgres implements the storage.Backend contract on PostgreSQL.
// Vector search uses the pgvector extension when available; without it the
// backend degrades to loading embeddings and scoring in Go, same as the
// SQLite backend.
package postgres

// Schema contains the DDL for the PostgreSQL backend. All statements are
// idempotent so the schema can be applied on every startup.
const Schema = `
CREATE TABLE IF NOT EXISTS workspaces (
    id          TEXT PRIMARY KEY,
    tenant_id   TEXT NOT NULL,
    name        TEXT NOT NULL,
    description TEXT,
    settings    JSONB,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS memories (
    id           TEXT PRIMARY KEY,
    workspace_id TEXT NOT NULL REFERENCES workspaces(id),
    tenant_id    TEXT NOT NULL,
    content      TEXT NOT NULL,
    content_hash TEXT NOT NULL,

    -- Binary packed little-endian float32 vector; embedding_vec mirrors it
    -- when the pgvector extension is available.
    embedding  BYTEA,
    dimension  INTEGER NOT NULL DEFAULT 0,

    type    TEXT NOT NULL,
    subtype TEXT,
    status  TEXT NOT NULL DEFAULT 'active',

    pinned     BOOLEAN NOT NULL DEFAULT FALSE,
    importance DOUBLE PRECISION NOT NULL DEFAULT 0,
    tags       JSONB,

    abstract TEXT,
    overview TEXT,

    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    deleted_at TIMESTAMPTZ,

    access_count     INTEGER NOT NULL DEFAULT 0,
    last_accessed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_memories_workspace ON memories(workspace_id);
CREATE INDEX IF NOT EXISTS idx_memories_hash ON memories(workspace_id, content_hash);
CREATE INDEX IF NOT EXISTS idx_memories_status ON memories(status);
CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);
CREATE INDEX IF NOT EXISTS idx_memories_deleted_at ON memories(deleted_at);

CREATE TABLE IF NOT EXISTS associations (
    id           TEXT PRIMARY KEY,
    source_id    TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
    target_id    TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
    relationship TEXT NOT NULL,
    strength     DOUBLE PRECISION NOT NULL DEFAULT 1.0,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_associations_source ON associations(source_id);
CREATE INDEX IF NOT EXISTS idx_associations_target ON associations(target_id);

CREATE TABLE IF NOT EXISTS contradictions (
    id                 TEXT PRIMARY KEY,
    workspace_id       TEXT NOT NULL,
    memory_a_id        TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
    memory_b_id        TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
    contradiction_type TEXT NOT NULL,
    confidence         DOUBLE PRECISION NOT NULL DEFAULT 0,
    detection_method   TEXT NOT NULL,
    resolution         TEXT,
    merged_content     TEXT,
    detected_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    resolved_at        TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_contradictions_workspace ON contradictions(workspace_id);
CREATE INDEX IF NOT EXISTS idx_contradictions_unresolved
    ON contradictions(workspace_id, detected_at DESC) WHERE resolution IS NULL;

CREATE TABLE IF NOT EXISTS working_memory (
    workspace_id TEXT NOT NULL,
    session_id   TEXT NOT NULL,
    key          TEXT NOT NULL,
    value        TEXT NOT NULL,
    expires_at   TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (workspace_id, session_id, key)
);

CREATE INDEX IF NOT EXISTS idx_working_memory_expiry ON working_memory(expires_at);
`

// MigrationFTS adds tsvector full-text search to the memories table. Uses a
// plain tsvector column plus a trigger for compatibility across PostgreSQL
// versions. Safe to run multiple times.
const MigrationFTS = `
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM information_schema.columns
        WHERE table_name = 'memories' AND column_name = 'content_tsv'
    ) THEN
        ALTER TABLE memories ADD COLUMN content_tsv tsvector;
    END IF;
END
$$;

UPDATE memories SET content_tsv = to_tsvector('english', content) WHERE content_tsv IS NULL;

CREATE INDEX IF NOT EXISTS idx_memories_content_tsv ON memories USING GIN(content_tsv);

CREATE OR REPLACE FUNCTION memories_tsv_update()
RETURNS TRIGGER AS $$
BEGIN
    NEW.content_tsv := to_tsvector('english', COALESCE(NEW.content, ''));
    RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS memories_tsv_trigger ON memories;
CREATE TRIGGER memories_tsv_trigger
    BEFORE INSERT OR UPDATE OF content
    ON memories
    FOR EACH ROW
    EXECUTE FUNCTION memories_tsv_update();
`

// MigrationPgvector adds the pgvector mirror column and its ANN index. Only
// applied when the vector extension is available. Safe to run multiple
// times; ivfflat creation is deferred until at least one row exists.
const MigrationPgvector = `
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM information_schema.columns
        WHERE table_name = 'memories' AND column_name = 'embedding_vec'
    ) THEN
        ALTER TABLE memories ADD COLUMN embedding_vec vector;
    END IF;
END
$$;

DO $$
BEGIN
  IF NOT EXISTS (
    SELECT 1 FROM pg_indexes WHERE indexname = 'idx_memories_vec_cosine'
  ) THEN
    IF EXISTS (SELECT 1 FROM memories WHERE embedding_vec IS NOT NULL LIMIT 1) THEN
      EXECUTE 'CREATE INDEX idx_memories_vec_cosine ON memories USING ivfflat (embedding_vec vector_cosine_ops) WITH (lists = 100)';
    END IF;
  END IF;
END$$;
`
