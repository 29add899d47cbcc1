package output

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/digestbot/digestbot/internal/config"
	"github.com/digestbot/digestbot/internal/item"
)

// markdownOutput writes the digest to a markdown file with optional
// YAML frontmatter.
type markdownOutput struct {
	pathTemplate string
	frontmatter  bool
}

func newMarkdown(cfg config.Output) (Output, error) {
	pathTemplate := cfg.Path
	if pathTemplate == "" {
		pathTemplate = "digests/{slug}/{date}.md"
	}
	return &markdownOutput{
		pathTemplate: pathTemplate,
		frontmatter:  cfg.Frontmatter,
	}, nil
}

func (m *markdownOutput) Type() string { return "markdown" }

func (m *markdownOutput) Write(digest string, meta item.Metadata) (string, error) {
	path := expandTemplate(m.pathTemplate, meta)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	content, err := m.buildContent(digest, meta)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing digest: %w", err)
	}

	log.Printf("Markdown digest written to %s", path)
	return path, nil
}

func (m *markdownOutput) buildContent(digest string, meta item.Metadata) (string, error) {
	var parts []string

	if m.frontmatter {
		front, err := buildFrontmatter(meta)
		if err != nil {
			return "", err
		}
		parts = append(parts, "---", strings.TrimSpace(front), "---", "")
	}

	parts = append(parts, digest)

	if len(meta.Errors) > 0 {
		parts = append(parts, "", "## Source Errors", "", "The following sources could not be fetched:")
		for _, e := range meta.Errors {
			parts = append(parts, fmt.Sprintf("- **%s**: %s", e.SourceName, e.Message))
		}
	}

	return strings.Join(parts, "\n"), nil
}

func buildFrontmatter(meta item.Metadata) (string, error) {
	front := map[string]any{
		"title":           meta.Title,
		"date":            meta.Date,
		"generated_at":    meta.GeneratedAt,
		"config":          meta.Slug,
		"sources_fetched": meta.SourcesFetched,
		"sources_failed":  meta.SourcesFailed,
		"items_processed": meta.ItemsProcessed,
		"time_window":     meta.TimeWindow,
	}
	if len(meta.Errors) > 0 {
		var errs []map[string]string
		for _, e := range meta.Errors {
			errs = append(errs, map[string]string{"source": e.SourceName, "error": e.Message})
		}
		front["errors"] = errs
	}

	data, err := yaml.Marshal(front)
	if err != nil {
		return "", fmt.Errorf("marshaling frontmatter: %w", err)
	}
	return string(data), nil
}
