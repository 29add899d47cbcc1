// Package summarize is the handoff boundary: it turns the surviving
// batch into a digest via the configured LLM provider. A provider
// failure here is fatal for the run so that staged state is discarded
// and the batch is retried next time.
package summarize

import (
	"context"
	"fmt"
	"strings"

	"github.com/digestbot/digestbot/internal/config"
	"github.com/digestbot/digestbot/internal/item"
)

// Body text longer than this is truncated in the prompt.
const maxBodyInPrompt = 2000

// Summarizer renders the prompt and calls the provider.
type Summarizer struct {
	provider  Provider
	prompt    string
	maxTokens int
}

// New creates a Summarizer for the configured provider.
func New(cfg config.Summarizer) (*Summarizer, error) {
	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	return &Summarizer{provider: provider, prompt: cfg.Prompt, maxTokens: cfg.MaxTokens}, nil
}

// NewWithProvider creates a Summarizer around an existing provider.
func NewWithProvider(provider Provider, prompt string, maxTokens int) *Summarizer {
	return &Summarizer{provider: provider, prompt: prompt, maxTokens: maxTokens}
}

// Summarize produces the digest text for a batch. An empty batch is
// answered locally without an LLM call. Any provider error is fatal.
func (s *Summarizer) Summarize(ctx context.Context, batch item.Batch, errs []item.SourceError, timeWindow string) (string, error) {
	if len(batch) == 0 {
		return EmptyDigest(errs), nil
	}

	prompt := BuildPrompt(s.prompt, batch, errs, timeWindow)

	maxTokens := s.maxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	digest, err := s.provider.Generate(ctx, prompt, maxTokens)
	if err != nil {
		return "", fmt.Errorf("summarization failed: %w", err)
	}
	return digest, nil
}

// BuildPrompt renders the prompt template. The template may reference
// {time_window}, {content} and {errors_section}.
func BuildPrompt(template string, batch item.Batch, errs []item.SourceError, timeWindow string) string {
	replacer := strings.NewReplacer(
		"{time_window}", timeWindow,
		"{content}", buildContent(batch),
		"{errors_section}", buildErrorsSection(errs),
	)
	return replacer.Replace(template)
}

// buildContent lays out the batch grouped by source, preserving batch
// order within each group.
func buildContent(batch item.Batch) string {
	var order []string
	bySource := make(map[string]item.Batch)
	for _, it := range batch {
		if _, seen := bySource[it.SourceName]; !seen {
			order = append(order, it.SourceName)
		}
		bySource[it.SourceName] = append(bySource[it.SourceName], it)
	}

	var parts []string
	for _, sourceName := range order {
		parts = append(parts, fmt.Sprintf("\n### Source: %s\n", sourceName))
		for _, it := range bySource[sourceName] {
			parts = append(parts, fmt.Sprintf("**%s**", it.Title))
			parts = append(parts, fmt.Sprintf("- URL: %s", it.URL))
			if it.PublishedAt != nil {
				parts = append(parts, fmt.Sprintf("- Date: %s", it.PublishedAt.UTC().Format("2006-01-02 15:04 UTC")))
			}
			if it.Author != "" {
				parts = append(parts, fmt.Sprintf("- Author: %s", it.Author))
			}
			parts = append(parts, fmt.Sprintf("- Content: %s", TruncateText(it.Body, maxBodyInPrompt)))
			parts = append(parts, "")
		}
	}
	return strings.Join(parts, "\n")
}

func buildErrorsSection(errs []item.SourceError) string {
	if len(errs) == 0 {
		return ""
	}

	lines := []string{
		"\nNote: the following sources could not be fetched. Mention them in a Source Errors section of the digest:\n",
	}
	for _, e := range errs {
		lines = append(lines, fmt.Sprintf("- %s: %s", e.SourceName, e.Message))
	}
	return strings.Join(lines, "\n")
}

// EmptyDigest is the digest used when no items survived the pipeline.
func EmptyDigest(errs []item.SourceError) string {
	parts := []string{
		"## No New Content\n",
		"No new content was found in the configured time window.\n",
	}
	if len(errs) > 0 {
		parts = append(parts, "\n## Source Errors\n", "The following sources could not be fetched:\n")
		for _, e := range errs {
			parts = append(parts, fmt.Sprintf("- **%s**: %s", e.SourceName, e.Message))
		}
	}
	return strings.Join(parts, "\n")
}

// TruncateText shortens text to at most max characters, preferring to
// cut at a word boundary.
func TruncateText(text string, max int) string {
	if len(text) <= max {
		return text
	}

	truncated := text[:max]
	lastSpace := strings.LastIndex(truncated, " ")
	if lastSpace > max*8/10 {
		truncated = truncated[:lastSpace]
	}
	return truncated + "..."
}
