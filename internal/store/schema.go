package store

const schema = `
CREATE TABLE IF NOT EXISTS memories (
    id TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    scope TEXT NOT NULL DEFAULT 'global',
    character_id TEXT,
    conversation_id TEXT,
    embedding BLOB,
    created_at DATETIME DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_memories_scope ON memories(scope);
CREATE INDEX IF NOT EXISTS idx_memories_character ON memories(character_id);
CREATE INDEX IF NOT EXISTS idx_memories_conversation ON memories(conversation_id);

CREATE TABLE IF NOT EXISTS lorebooks (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    enabled INTEGER DEFAULT 1,
    created_at DATETIME DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS lorebook_entries (
    id TEXT PRIMARY KEY,
    lorebook_id TEXT NOT NULL REFERENCES lorebooks(id),
    content TEXT NOT NULL,
    keywords TEXT NOT NULL DEFAULT '[]',
    enabled INTEGER DEFAULT 1,
    embedding BLOB,
    created_at DATETIME DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_entries_lorebook ON lorebook_entries(lorebook_id, enabled);

CREATE TABLE IF NOT EXISTS characters (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    core_identity TEXT NOT NULL DEFAULT '',
    appearance TEXT NOT NULL DEFAULT '',
    personality TEXT NOT NULL DEFAULT '',
    background TEXT NOT NULL DEFAULT '',
    scenario TEXT NOT NULL DEFAULT '',
    initial_relationship INTEGER DEFAULT 0,
    initial_dominance INTEGER DEFAULT 0,
    initial_lust INTEGER DEFAULT 0,
    embedding BLOB,
    created_at DATETIME DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS personas (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    embedding BLOB,
    created_at DATETIME DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS prompt_templates (
    id TEXT PRIMARY KEY,
    slot TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    content TEXT NOT NULL DEFAULT '',
    embedding BLOB,
    created_at DATETIME DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS style_preferences (
    id TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    created_at DATETIME DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS reflections (
    id TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL,
    conversation_preview TEXT NOT NULL DEFAULT '',
    character_id TEXT,
    character_name TEXT,
    thoughts TEXT NOT NULL DEFAULT '',
    proposals TEXT NOT NULL DEFAULT '[]',
    created_at DATETIME DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_reflections_conversation ON reflections(conversation_id, created_at DESC);

CREATE TABLE IF NOT EXISTS session_state (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at DATETIME DEFAULT (datetime('now'))
);
`
