// Package filter implements the content filter chain. Each stage is a
// pure function from batch to batch and never mutates items in place, so
// stages can be tested and reordered independently.
package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/digestbot/digestbot/internal/item"
)

// Stage transforms a batch into its surviving subset.
type Stage func(item.Batch) item.Batch

// Options configures the standard filter chain for one run.
type Options struct {
	Window    time.Duration
	Include   []string
	Exclude   []string
	MinLength int
	Reference time.Time // cutoff anchor, normally now
}

// New validates the options and builds the standard chain:
// time window, keyword include, keyword exclude, minimum length.
func New(opts Options) (Stage, error) {
	if opts.Window < 0 {
		return nil, fmt.Errorf("invalid filter config: negative time window")
	}
	if opts.MinLength < 0 {
		return nil, fmt.Errorf("invalid filter config: negative min_content_length")
	}

	stages := []Stage{
		TimeWindow(opts.Reference.Add(-opts.Window)),
		IncludeKeywords(opts.Include),
		ExcludeKeywords(opts.Exclude),
		MinLength(opts.MinLength),
	}
	return Chain(stages...), nil
}

// Chain composes stages left to right.
func Chain(stages ...Stage) Stage {
	return func(batch item.Batch) item.Batch {
		for _, stage := range stages {
			batch = stage(batch)
		}
		return batch
	}
}

// TimeWindow drops items published at or before the cutoff. The cutoff
// is exclusive: an item published exactly at the cutoff is stale. Items
// without a published date pass through, since they cannot be judged.
func TimeWindow(cutoff time.Time) Stage {
	return func(batch item.Batch) item.Batch {
		kept := make(item.Batch, 0, len(batch))
		for _, it := range batch {
			if it.PublishedAt == nil || it.PublishedAt.After(cutoff) {
				kept = append(kept, it)
			}
		}
		return kept
	}
}

// IncludeKeywords keeps items whose title or body contains at least one
// term. An empty term list is a no-op.
func IncludeKeywords(terms []string) Stage {
	return func(batch item.Batch) item.Batch {
		if len(terms) == 0 {
			return batch
		}
		kept := make(item.Batch, 0, len(batch))
		for _, it := range batch {
			if matchesAny(it, terms) {
				kept = append(kept, it)
			}
		}
		return kept
	}
}

// ExcludeKeywords drops items whose title or body contains any term.
// Running after the include stage gives exclusion precedence when an
// item matches both.
func ExcludeKeywords(terms []string) Stage {
	return func(batch item.Batch) item.Batch {
		if len(terms) == 0 {
			return batch
		}
		kept := make(item.Batch, 0, len(batch))
		for _, it := range batch {
			if !matchesAny(it, terms) {
				kept = append(kept, it)
			}
		}
		return kept
	}
}

// MinLength drops items whose body is shorter than n characters.
func MinLength(n int) Stage {
	return func(batch item.Batch) item.Batch {
		if n <= 0 {
			return batch
		}
		kept := make(item.Batch, 0, len(batch))
		for _, it := range batch {
			if len(it.Body) >= n {
				kept = append(kept, it)
			}
		}
		return kept
	}
}

func matchesAny(it item.Item, terms []string) bool {
	text := strings.ToLower(it.Title + " " + it.Body)
	for _, term := range terms {
		if strings.Contains(text, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

var windowPattern = regexp.MustCompile(`^(\d+)([hdwm])$`)

// ParseWindow parses a time window string like "24h", "7d", "2w" or
// "1m" (months approximated as 30 days).
func ParseWindow(window string) (time.Duration, error) {
	m := windowPattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(window)))
	if m == nil {
		return 0, fmt.Errorf("invalid time window format: %q", window)
	}
	value, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("invalid time window value: %q", window)
	}

	switch m[2] {
	case "h":
		return time.Duration(value) * time.Hour, nil
	case "d":
		return time.Duration(value) * 24 * time.Hour, nil
	case "w":
		return time.Duration(value) * 7 * 24 * time.Hour, nil
	case "m":
		return time.Duration(value) * 30 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("unknown time unit in %q", window)
}
