package memory

// schemaVersion is recorded in the meta table on first open.
const schemaVersion = "1"

// schemaSQL creates every table except the vector index, which depends on
// the embedding dimensionality and is created separately. The FTS5 table is
// external-content over chunks and kept in sync by triggers, so lexical
// index maintenance is invisible to callers.
const schemaSQL = `
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS files (
		path TEXT PRIMARY KEY,
		source TEXT NOT NULL DEFAULT 'memory',
		hash TEXT NOT NULL,
		mtime REAL NOT NULL DEFAULT 0,
		size INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_files_source ON files(source);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT 'memory',
		start_line INTEGER NOT NULL,
		end_line INTEGER NOT NULL,
		hash TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL,
		embedding TEXT,
		updated_at REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_path ON chunks(path);
	CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source);

	CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		text,
		content='chunks',
		content_rowid='rowid',
		tokenize='porter unicode61'
	);

	CREATE TRIGGER IF NOT EXISTS chunks_fts_insert AFTER INSERT ON chunks BEGIN
		INSERT INTO chunks_fts(rowid, text) VALUES (new.rowid, new.text);
	END;

	CREATE TRIGGER IF NOT EXISTS chunks_fts_delete AFTER DELETE ON chunks BEGIN
		INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES ('delete', old.rowid, old.text);
	END;

	CREATE TRIGGER IF NOT EXISTS chunks_fts_update AFTER UPDATE ON chunks BEGIN
		INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES ('delete', old.rowid, old.text);
		INSERT INTO chunks_fts(rowid, text) VALUES (new.rowid, new.text);
	END;

	CREATE TABLE IF NOT EXISTS embedding_cache (
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		provider_key TEXT NOT NULL,
		hash TEXT NOT NULL,
		embedding BLOB NOT NULL,
		dims INTEGER NOT NULL,
		updated_at REAL NOT NULL,
		PRIMARY KEY (provider, model, provider_key, hash)
	);
	CREATE INDEX IF NOT EXISTS idx_cache_updated ON embedding_cache(updated_at);
`
