// Package dedup suppresses duplicate items using two tiers: the
// persisted cross-run state and an in-run seen-set.
package dedup

import (
	"log"

	"github.com/digestbot/digestbot/internal/item"
)

// Store is the slice of the state store the deduplicator needs.
type Store interface {
	Contains(sourceName, identity string) bool
	ContentChanged(sourceName, identity, newHash string) bool
	Stage(sourceName, identity, contentHash string)
}

// Deduplicator filters already-seen items and stages survivors for
// commit. One Deduplicator covers one run: the in-batch seen-sets span
// all sources processed through it.
type Deduplicator struct {
	store      Store
	useState   bool
	seenIDs    map[string]struct{}
	seenHashes map[string]struct{}
}

// New creates a Deduplicator for one run. When useState is false the
// persisted state is not consulted, but in-batch duplicates are still
// dropped and survivors are still staged.
func New(store Store, useState bool) *Deduplicator {
	return &Deduplicator{
		store:      store,
		useState:   useState,
		seenIDs:    make(map[string]struct{}),
		seenHashes: make(map[string]struct{}),
	}
}

// Apply deduplicates one source's filtered items in fetch order and
// returns the survivors. Each survivor is staged on the state store;
// nothing becomes durable until the pipeline commits.
func (d *Deduplicator) Apply(sourceName string, batch item.Batch) item.Batch {
	kept := make(item.Batch, 0, len(batch))

	for _, it := range batch {
		if d.useState && d.store.Contains(sourceName, it.Identity) {
			if !d.store.ContentChanged(sourceName, it.Identity, it.ContentHash) {
				continue // processed in a prior run
			}
			// Known identity with new content: let it flow through so
			// the update is re-summarized.
			log.Printf("Content changed for %s (%s), re-processing", it.Identity, sourceName)
		}

		if _, dup := d.seenIDs[it.Identity]; dup {
			continue
		}
		if _, dup := d.seenHashes[it.ContentHash]; dup {
			continue
		}

		d.seenIDs[it.Identity] = struct{}{}
		d.seenHashes[it.ContentHash] = struct{}{}

		// Survivors are always staged, even with useState off, so the
		// store stays current for later state-aware runs.
		d.store.Stage(sourceName, it.Identity, it.ContentHash)
		kept = append(kept, it)
	}

	return kept
}
