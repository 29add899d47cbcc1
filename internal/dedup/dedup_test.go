package dedup

import (
	"path/filepath"
	"testing"

	"github.com/digestbot/digestbot/internal/item"
	"github.com/digestbot/digestbot/internal/state"
)

func openTestStore(t *testing.T) *state.DB {
	t.Helper()
	db, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newItem(source, identity, title, body string) item.Item {
	return item.New(source, identity, title, body, "https://example.com/"+identity, "", nil)
}

func TestSecondRunYieldsNothing(t *testing.T) {
	store := openTestStore(t)
	batch := item.Batch{
		newItem("Blog", "a", "First", "body one"),
		newItem("Blog", "b", "Second", "body two"),
	}

	first := New(store, true).Apply("Blog", batch)
	if len(first) != 2 {
		t.Fatalf("expected 2 survivors on first run, got %d", len(first))
	}
	if err := store.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	second := New(store, true).Apply("Blog", batch)
	if len(second) != 0 {
		t.Errorf("expected empty batch on identical second run, got %d items", len(second))
	}
}

func TestContentUpdateSurvivesDedup(t *testing.T) {
	store := openTestStore(t)

	original := newItem("Blog", "x", "Post", "original body")
	New(store, true).Apply("Blog", item.Batch{original})
	if err := store.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	updated := newItem("Blog", "x", "Post", "revised body")
	survivors := New(store, true).Apply("Blog", item.Batch{updated})
	if len(survivors) != 1 {
		t.Fatal("expected updated content to survive dedup")
	}
	if survivors[0].ContentHash == original.ContentHash {
		t.Error("expected a different content hash for the update")
	}
}

func TestInBatchIdentityDedupFirstWins(t *testing.T) {
	store := openTestStore(t)
	batch := item.Batch{
		newItem("Blog", "same", "First occurrence", "body one"),
		newItem("Blog", "same", "Second occurrence", "body two"),
	}

	survivors := New(store, true).Apply("Blog", batch)
	if len(survivors) != 1 {
		t.Fatalf("expected exactly 1 survivor, got %d", len(survivors))
	}
	if survivors[0].Title != "First occurrence" {
		t.Errorf("expected first occurrence to win, got %q", survivors[0].Title)
	}
}

func TestInBatchContentHashDedup(t *testing.T) {
	store := openTestStore(t)
	// Same content syndicated under two URLs.
	batch := item.Batch{
		newItem("Blog", "url-1", "Same Post", "identical body"),
		newItem("Blog", "url-2", "Same Post", "identical body"),
	}

	survivors := New(store, true).Apply("Blog", batch)
	if len(survivors) != 1 {
		t.Errorf("expected content-hash duplicate to be dropped, got %d survivors", len(survivors))
	}
}

func TestInBatchDedupSpansSources(t *testing.T) {
	store := openTestStore(t)
	d := New(store, true)

	first := d.Apply("Blog", item.Batch{newItem("Blog", "shared-url", "Post", "body")})
	second := d.Apply("Planet", item.Batch{newItem("Planet", "shared-url", "Post", "body")})

	if len(first) != 1 || len(second) != 0 {
		t.Errorf("expected cross-source duplicate to be dropped within the run, got %d/%d", len(first), len(second))
	}
}

func TestUseStateFalseIgnoresPriorRuns(t *testing.T) {
	store := openTestStore(t)
	batch := item.Batch{newItem("Blog", "a", "Post", "body")}

	New(store, true).Apply("Blog", batch)
	if err := store.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	survivors := New(store, false).Apply("Blog", batch)
	if len(survivors) != 1 {
		t.Error("expected prior-run state to be ignored with use_state off")
	}
}

func TestSurvivorsAreStagedNotCommitted(t *testing.T) {
	store := openTestStore(t)
	New(store, true).Apply("Blog", item.Batch{newItem("Blog", "a", "Post", "body")})

	if store.StagedCount() != 1 {
		t.Errorf("expected 1 staged write, got %d", store.StagedCount())
	}
	if store.Contains("Blog", "a") {
		t.Error("staged write must not be visible before commit")
	}
}
