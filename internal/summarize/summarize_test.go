package summarize

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/digestbot/digestbot/internal/config"
	"github.com/digestbot/digestbot/internal/item"
)

type fakeProvider struct {
	response string
	err      error
	prompt   string
	calls    int
}

func (f *fakeProvider) Generate(_ context.Context, prompt string, _ int) (string, error) {
	f.calls++
	f.prompt = prompt
	return f.response, f.err
}

func (f *fakeProvider) IsConfigured() bool { return true }

func testBatch() item.Batch {
	ts := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	return item.Batch{
		item.New("Blog", "a", "First Post", "The body of the first post", "https://example.com/a", "alice", &ts),
		item.New("Forum", "b", "A Topic", "Forum discussion text", "https://forum.example.com/b", "", nil),
		item.New("Blog", "c", "Second Post", "More blog text", "https://example.com/c", "", &ts),
	}
}

func TestSummarizeRendersTemplate(t *testing.T) {
	provider := &fakeProvider{response: "the digest"}
	s := NewWithProvider(provider, "Window: {time_window}\n{errors_section}\n{content}", 512)

	digest, err := s.Summarize(context.Background(), testBatch(), nil, "24h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if digest != "the digest" {
		t.Errorf("expected provider response, got %q", digest)
	}
	if !strings.Contains(provider.prompt, "Window: 24h") {
		t.Error("expected time window in prompt")
	}
	if !strings.Contains(provider.prompt, "### Source: Blog") {
		t.Error("expected source grouping in prompt")
	}
	if !strings.Contains(provider.prompt, "https://example.com/a") {
		t.Error("expected item URL in prompt")
	}
	if !strings.Contains(provider.prompt, "Author: alice") {
		t.Error("expected author in prompt")
	}
}

func TestSummarizeGroupsBySourcePreservingOrder(t *testing.T) {
	content := buildContent(testBatch())

	blogIdx := strings.Index(content, "### Source: Blog")
	forumIdx := strings.Index(content, "### Source: Forum")
	if blogIdx < 0 || forumIdx < 0 {
		t.Fatal("expected both source sections")
	}
	if blogIdx > forumIdx {
		t.Error("expected first-seen source to come first")
	}
	// Both Blog items end up under the one Blog section.
	if strings.Count(content, "### Source: Blog") != 1 {
		t.Error("expected a single Blog section")
	}
}

func TestSummarizeEmptyBatchSkipsProvider(t *testing.T) {
	provider := &fakeProvider{response: "unused"}
	s := NewWithProvider(provider, "{content}", 512)

	digest, err := s.Summarize(context.Background(), nil, nil, "24h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.calls != 0 {
		t.Error("expected no provider call for an empty batch")
	}
	if !strings.Contains(digest, "No New Content") {
		t.Errorf("expected empty digest text, got %q", digest)
	}
}

func TestSummarizeProviderErrorIsFatal(t *testing.T) {
	provider := &fakeProvider{err: errors.New("model offline")}
	s := NewWithProvider(provider, "{content}", 512)

	_, err := s.Summarize(context.Background(), testBatch(), nil, "24h")
	if err == nil {
		t.Fatal("expected error when the provider fails")
	}
	if !strings.Contains(err.Error(), "summarization failed") {
		t.Errorf("expected wrapped summarization error, got %v", err)
	}
}

func TestErrorsSectionInPromptAndEmptyDigest(t *testing.T) {
	errs := []item.SourceError{
		{SourceName: "Broken Feed", Message: "connection refused"},
	}

	prompt := BuildPrompt("{errors_section}", testBatch(), errs, "24h")
	if !strings.Contains(prompt, "Broken Feed") || !strings.Contains(prompt, "connection refused") {
		t.Error("expected source error details in prompt")
	}

	empty := EmptyDigest(errs)
	if !strings.Contains(empty, "Source Errors") || !strings.Contains(empty, "Broken Feed") {
		t.Error("expected source errors in empty digest")
	}
}

func TestTruncateTextWordBoundary(t *testing.T) {
	text := strings.Repeat("word ", 100) // 500 chars
	got := TruncateText(text, 103)
	if !strings.HasSuffix(got, "...") {
		t.Error("expected ellipsis suffix")
	}
	if len(got) > 106 {
		t.Errorf("expected truncation near the limit, got %d chars", len(got))
	}
	if strings.Contains(strings.TrimSuffix(got, "..."), "wor ") {
		t.Error("expected cut at a word boundary")
	}

	short := "short text"
	if TruncateText(short, 100) != short {
		t.Error("expected short text to pass through untouched")
	}
}

func TestNewProviderSelection(t *testing.T) {
	cases := []struct {
		provider string
		wantErr  bool
	}{
		{"ollama", false},
		{"openai", false},
		{"anthropic", false},
		{"gemini", true},
		{"", true},
	}
	for _, c := range cases {
		_, err := NewProvider(config.Summarizer{Provider: c.provider, Model: "m"})
		if c.wantErr && err == nil {
			t.Errorf("provider %q: expected error", c.provider)
		}
		if !c.wantErr && err != nil {
			t.Errorf("provider %q: unexpected error: %v", c.provider, err)
		}
	}
}
