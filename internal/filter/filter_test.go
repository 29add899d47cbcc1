package filter

import (
	"testing"
	"time"

	"github.com/digestbot/digestbot/internal/item"
)

func itemAt(title, body string, published *time.Time) item.Item {
	return item.New("Blog", "", title, body, "https://example.com/"+title, "", published)
}

func tp(t time.Time) *time.Time { return &t }

func TestTimeWindowKeepsRecentDropsStale(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-24 * time.Hour)

	batch := item.Batch{
		itemAt("recent", "body", tp(now.Add(-time.Hour))),
		itemAt("stale", "body", tp(now.Add(-48*time.Hour))),
	}

	result := TimeWindow(cutoff)(batch)
	if len(result) != 1 || result[0].Title != "recent" {
		t.Errorf("expected only recent item, got %v", result)
	}
}

func TestTimeWindowBoundaryIsExclusive(t *testing.T) {
	// An item published exactly at now-window is considered stale.
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-24 * time.Hour)

	batch := item.Batch{itemAt("boundary", "body", tp(cutoff))}
	result := TimeWindow(cutoff)(batch)
	if len(result) != 0 {
		t.Error("expected item published exactly at the cutoff to be dropped")
	}

	justAfter := item.Batch{itemAt("after", "body", tp(cutoff.Add(time.Second)))}
	if len(TimeWindow(cutoff)(justAfter)) != 1 {
		t.Error("expected item published just after the cutoff to pass")
	}
}

func TestTimeWindowPassesUndatedItems(t *testing.T) {
	cutoff := time.Now()
	batch := item.Batch{itemAt("undated", "body", nil)}
	if len(TimeWindow(cutoff)(batch)) != 1 {
		t.Error("expected item without a published date to pass through")
	}
}

func TestIncludeKeywordsEmptyIsNoop(t *testing.T) {
	batch := item.Batch{itemAt("anything", "body", nil)}
	if len(IncludeKeywords(nil)(batch)) != 1 {
		t.Error("expected empty include list to pass everything")
	}
}

func TestIncludeKeywordsMatchesTitleOrBody(t *testing.T) {
	batch := item.Batch{
		itemAt("Go release notes", "details", nil),
		itemAt("Other news", "all about go modules", nil),
		itemAt("Unrelated", "nothing here", nil),
	}
	result := IncludeKeywords([]string{"GO"})(batch)
	if len(result) != 2 {
		t.Errorf("expected 2 case-insensitive matches, got %d", len(result))
	}
}

func TestExcludeKeywords(t *testing.T) {
	batch := item.Batch{
		itemAt("Keep this", "useful content", nil),
		itemAt("Sponsored post", "buy now", nil),
	}
	result := ExcludeKeywords([]string{"sponsored"})(batch)
	if len(result) != 1 || result[0].Title != "Keep this" {
		t.Errorf("expected sponsored item to be dropped, got %v", result)
	}
}

func TestExcludeWinsOverInclude(t *testing.T) {
	chain, err := New(Options{
		Window:    0,
		Include:   []string{"release"},
		Exclude:   []string{"sponsored"},
		Reference: time.Now(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	batch := item.Batch{itemAt("Sponsored release announcement", "content", nil)}
	if len(chain(batch)) != 0 {
		t.Error("expected exclude to take precedence over include")
	}
}

func TestMinLength(t *testing.T) {
	batch := item.Batch{
		itemAt("long", "this body is definitely longer than twenty characters", nil),
		itemAt("short", "tiny", nil),
	}
	result := MinLength(20)(batch)
	if len(result) != 1 || result[0].Title != "long" {
		t.Errorf("expected only the long item, got %v", result)
	}
}

func TestMinLengthZeroIsNoop(t *testing.T) {
	batch := item.Batch{itemAt("short", "", nil)}
	if len(MinLength(0)(batch)) != 1 {
		t.Error("expected zero min length to pass everything")
	}
}

func TestStagesDoNotMutateInput(t *testing.T) {
	batch := item.Batch{
		itemAt("a", "body a", nil),
		itemAt("b", "body b", nil),
	}
	_ = ExcludeKeywords([]string{"body a"})(batch)
	if len(batch) != 2 || batch[0].Title != "a" {
		t.Error("expected input batch to be unchanged")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(Options{MinLength: -1, Reference: time.Now()}); err == nil {
		t.Error("expected error for negative min length")
	}
	if _, err := New(Options{Window: -time.Hour, Reference: time.Now()}); err == nil {
		t.Error("expected error for negative window")
	}
}

func TestParseWindow(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"24h", 24 * time.Hour},
		{"7d", 7 * 24 * time.Hour},
		{"2w", 14 * 24 * time.Hour},
		{"1m", 30 * 24 * time.Hour},
		{" 12H ", 12 * time.Hour},
	}
	for _, c := range cases {
		got, err := ParseWindow(c.in)
		if err != nil {
			t.Errorf("ParseWindow(%q): unexpected error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseWindow(%q) = %v, want %v", c.in, got, c.want)
		}
	}

	for _, bad := range []string{"", "24", "h", "24x", "-5d", "1.5d"} {
		if _, err := ParseWindow(bad); err == nil {
			t.Errorf("ParseWindow(%q): expected error", bad)
		}
	}
}
