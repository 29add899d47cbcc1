// Package output contains the digest output adapters. Outputs run only
// after state has been committed; their failures are reported but never
// roll anything back, because state correctness is about item
// processing, not delivery.
package output

import (
	"fmt"
	"strings"

	"github.com/digestbot/digestbot/internal/config"
	"github.com/digestbot/digestbot/internal/item"
)

// Output writes a finished digest somewhere. Write returns a path or
// identifier for what it produced, or "" when it skipped (e.g. a
// disabled email output).
type Output interface {
	Type() string
	Write(digest string, meta item.Metadata) (string, error)
}

// Factory builds an Output from its configuration.
type Factory func(cfg config.Output) (Output, error)

var registry = map[string]Factory{
	"markdown": newMarkdown,
	"email":    newEmail,
}

// Register adds an output type. Registering an existing tag replaces it.
func Register(typeTag string, factory Factory) {
	registry[typeTag] = factory
}

// New builds the adapter for an output config.
func New(cfg config.Output) (Output, error) {
	factory, ok := registry[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("%w: unknown output type %q", config.ErrInvalid, cfg.Type)
	}
	return factory(cfg)
}

// expandTemplate substitutes the {name}, {slug}, {date}, {title} and
// {time_window} tokens used by path and subject templates.
func expandTemplate(template string, meta item.Metadata) string {
	return strings.NewReplacer(
		"{name}", meta.Title,
		"{title}", meta.Title,
		"{slug}", meta.Slug,
		"{date}", meta.Date,
		"{time_window}", meta.TimeWindow,
	).Replace(template)
}
