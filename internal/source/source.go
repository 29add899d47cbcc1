// Package source contains the content source adapters. Each adapter
// turns one configured upstream (feed, forum, mailing list, API) into a
// batch of normalized items. Adapters are registered under a type tag
// so new source kinds plug in without touching the pipeline.
package source

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/digestbot/digestbot/internal/config"
	"github.com/digestbot/digestbot/internal/item"
)

const userAgent = "DigestBot/1.0 (content digest)"

// FetchResult is the tagged per-source outcome. A failed source carries
// Err and an empty item list; the pipeline reports it and moves on.
type FetchResult struct {
	SourceName string
	SourceType string
	Items      item.Batch
	Err        error
}

// Source fetches and normalizes items from one configured upstream.
type Source interface {
	Name() string
	Type() string
	Fetch(ctx context.Context) FetchResult
}

// Options carries shared collaborator settings into adapters.
type Options struct {
	Client       *http.Client
	RequestDelay time.Duration // pause between paginated/sibling requests
}

// Factory builds a Source from its configuration.
type Factory func(cfg config.Source, opts Options) (Source, error)

var registry = map[string]Factory{
	"rss":        newRSS,
	"discourse":  newDiscourse,
	"hyperkitty": newHyperKitty,
	"rest_api":   newRestAPI,
}

// Register adds a source type. Registering an existing tag replaces it.
func Register(typeTag string, factory Factory) {
	registry[typeTag] = factory
}

// Types returns the registered source type tags, sorted.
func Types() []string {
	types := make([]string, 0, len(registry))
	for tag := range registry {
		types = append(types, tag)
	}
	sort.Strings(types)
	return types
}

// New builds the adapter for a source config.
func New(cfg config.Source, opts Options) (Source, error) {
	factory, ok := registry[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("%w: unknown source type %q for %q", config.ErrInvalid, cfg.Type, cfg.Name)
	}
	if opts.Client == nil {
		opts.Client = NewHTTPClient(30 * time.Second)
	}
	return factory(cfg, opts)
}

// NewHTTPClient returns the pre-configured client adapters share.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// sleep waits for the configured inter-request delay, giving up early
// when the run is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
