package source

import (
	"context"
	"fmt"
	"log"

	"github.com/mmcdole/gofeed"

	"github.com/digestbot/digestbot/internal/config"
)

// rssSource fetches a single RSS or Atom feed.
type rssSource struct {
	name         string
	url          string
	fetchContent bool
	parser       *gofeed.Parser
	opts         Options
}

func newRSS(cfg config.Source, opts Options) (Source, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: rss source %q missing 'url'", config.ErrInvalid, cfg.Name)
	}
	return &rssSource{
		name:         cfg.Name,
		url:          cfg.URL,
		fetchContent: cfg.FetchContent,
		parser:       newFeedParser(opts),
		opts:         opts,
	}, nil
}

func (s *rssSource) Name() string { return s.name }
func (s *rssSource) Type() string { return "rss" }

func (s *rssSource) Fetch(ctx context.Context) FetchResult {
	result := FetchResult{SourceName: s.name, SourceType: "rss"}

	feed, err := fetchFeed(ctx, s.parser, s.url)
	if err != nil {
		result.Err = fmt.Errorf("fetching feed: %w", err)
		return result
	}

	result.Items = normalizeFeed(feed, s.name)
	if s.fetchContent {
		enrichBatch(ctx, s.opts, result.Items)
	}

	log.Printf("RSS %q: fetched %d items", s.name, len(result.Items))
	return result
}
