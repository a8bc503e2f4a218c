// Package memory is a dual-layer memory engine over Markdown files: daily
// short-term logs plus a curated long-term file, chunked and indexed into
// SQLite for hybrid vector and keyword search.
//
// The files are the source of truth; the database is a derived index.
// Content hashes keep reindexing idempotent, an embedding cache keyed by
// chunk text makes repeated indexing cheap, and a debounced file watcher
// (with a polling fallback) keeps the index converging with on-disk edits.
//
// Usage:
//
//	cfg := memory.DefaultConfig()
//	cfg.WorkspaceDir = "~/.bitwiseai"
//	cfg.Provider = provider
//	mgr, _ := memory.NewManager(cfg)
//	defer mgr.Close()
//	_ = mgr.Start(ctx)
//	resp, _ := mgr.Search(ctx, "deployment checklist", 10, -1)
//	_ = resp
package memory
