package state

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DB is a SQLite-backed Store. Seen-sets are loaded lazily per source;
// staged writes live in memory until Commit flushes them in one
// transaction.
type DB struct {
	conn    *sql.DB
	path    string
	loaded  map[string]map[string]Record
	pending []StagedWrite
}

// Open creates or opens the state database at the given path.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &DB{
		conn:   conn,
		path:   dbPath,
		loaded: make(map[string]map[string]Record),
	}, nil
}

// Close closes the database connection. Staged writes are lost.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Load returns the seen-set for a source, reading it from the database
// on first access. A read failure is logged and treated as an empty set
// so one bad source never contaminates the rest of the run.
func (db *DB) Load(sourceName string) map[string]Record {
	if records, ok := db.loaded[sourceName]; ok {
		return records
	}

	records := make(map[string]Record)
	rows, err := db.conn.Query(
		`SELECT identity, content_hash, first_seen_at
		FROM seen_items WHERE source_name = ?`, sourceName,
	)
	if err != nil {
		log.Printf("Warning: state unreadable for %q, treating as empty: %v", sourceName, err)
		db.loaded[sourceName] = records
		return records
	}
	defer rows.Close()

	for rows.Next() {
		var r Record
		var firstSeen string
		if err := rows.Scan(&r.Identity, &r.ContentHash, &firstSeen); err != nil {
			log.Printf("Warning: corrupt state record for %q skipped: %v", sourceName, err)
			continue
		}
		if ts, err := time.Parse(time.RFC3339, firstSeen); err == nil {
			r.FirstSeenAt = ts
		}
		records[r.Identity] = r
	}
	if err := rows.Err(); err != nil {
		log.Printf("Warning: state read for %q aborted, continuing with partial set: %v", sourceName, err)
	}

	db.loaded[sourceName] = records
	return records
}

// Contains reports whether an identity was committed by a prior run.
func (db *DB) Contains(sourceName, identity string) bool {
	_, ok := db.Load(sourceName)[identity]
	return ok
}

// ContentChanged reports whether a known identity carries a different
// content hash than the one on record.
func (db *DB) ContentChanged(sourceName, identity, newHash string) bool {
	record, ok := db.Load(sourceName)[identity]
	return ok && record.ContentHash != newHash
}

// Stage buffers a pending write for the current run.
func (db *DB) Stage(sourceName, identity, contentHash string) {
	db.pending = append(db.pending, StagedWrite{
		SourceName:  sourceName,
		Identity:    identity,
		ContentHash: contentHash,
	})
}

// StagedCount returns the number of writes awaiting commit.
func (db *DB) StagedCount() int {
	return len(db.pending)
}

// Commit flushes all staged writes in one transaction. On conflict the
// stored content hash is replaced, so an updated item is recorded under
// its new hash while its first-seen timestamp is preserved.
func (db *DB) Commit() error {
	if len(db.pending) == 0 {
		return nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, w := range db.pending {
		_, err := tx.Exec(
			`INSERT INTO seen_items (source_name, identity, content_hash, first_seen_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(source_name, identity)
			DO UPDATE SET content_hash = excluded.content_hash`,
			w.SourceName, w.Identity, w.ContentHash, now,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("committing %s/%s: %w", w.SourceName, w.Identity, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit state: %w", err)
	}

	db.pending = nil
	// Loaded sets are stale now; drop them so the next Load re-reads.
	db.loaded = make(map[string]map[string]Record)
	return nil
}

// Discard drops all staged writes, leaving the store untouched.
func (db *DB) Discard() {
	db.pending = nil
}

// RecordRun stores metadata about a completed run. This is reporting
// only and intentionally outside the staged-write path.
func (db *DB) RecordRun(slug string, itemsProcessed, sourcesFailed int, digestPath string) error {
	var path *string
	if digestPath != "" {
		path = &digestPath
	}
	_, err := db.conn.Exec(
		`INSERT INTO runs (slug, items_processed, sources_failed, digest_path)
		VALUES (?, ?, ?, ?)`,
		slug, itemsProcessed, sourcesFailed, path,
	)
	return err
}

// LastRun returns metadata for the most recent run, or nil if none.
func (db *DB) LastRun() (*RunInfo, error) {
	row := db.conn.QueryRow(
		`SELECT slug, generated_at, items_processed, sources_failed, digest_path
		FROM runs ORDER BY id DESC LIMIT 1`,
	)
	var r RunInfo
	var path *string
	err := row.Scan(&r.Slug, &r.GeneratedAt, &r.ItemsProcessed, &r.SourcesFailed, &path)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if path != nil {
		r.DigestPath = *path
	}
	return &r, nil
}

// SeenCounts returns the number of committed identities per source.
func (db *DB) SeenCounts() (map[string]int, error) {
	rows, err := db.conn.Query(
		`SELECT source_name, COUNT(*) FROM seen_items GROUP BY source_name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		counts[name] = n
	}
	return counts, rows.Err()
}

// Prune deletes committed records older than the given cutoff.
func (db *DB) Prune(before time.Time) (int64, error) {
	result, err := db.conn.Exec(
		`DELETE FROM seen_items WHERE first_seen_at < ?`,
		before.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	db.loaded = make(map[string]map[string]Record)
	return result.RowsAffected()
}

// RunInfo holds metadata about one recorded run.
type RunInfo struct {
	Slug           string
	GeneratedAt    string
	ItemsProcessed int
	SourcesFailed  int
	DigestPath     string
}
