// Package state tracks which items have been processed in previous runs.
//
// Writes are staged in memory during a run and flushed in a single
// transaction by Commit, so a run that fails before commit leaves the
// store exactly as it was. Failed items are therefore retried on the
// next run instead of being silently dropped.
package state

import "time"

// Record is one previously-seen item identity for a source.
type Record struct {
	Identity    string
	ContentHash string
	FirstSeenAt time.Time
}

// Store is the interface consumed by the deduplicator and the pipeline.
type Store interface {
	// Load returns the seen-set for a source. A missing or unreadable
	// record set yields an empty map, never an error that would fail
	// the run.
	Load(sourceName string) map[string]Record

	// Contains reports whether an identity was seen in a prior run.
	Contains(sourceName, identity string) bool

	// ContentChanged reports whether a known identity now carries a
	// different content hash, signalling an update rather than a
	// duplicate.
	ContentChanged(sourceName, identity, newHash string) bool

	// Stage records a pending write. Nothing is persisted until Commit.
	Stage(sourceName, identity, contentHash string)

	// Commit persists all staged writes atomically.
	Commit() error

	// Discard drops all staged writes without persisting them.
	Discard()
}

// StagedWrite is a pending store mutation buffered until Commit.
type StagedWrite struct {
	SourceName  string
	Identity    string
	ContentHash string
}
