package source

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/digestbot/digestbot/internal/config"
	"github.com/digestbot/digestbot/internal/item"
)

// discourseSource fetches a Discourse forum through its per-category
// and per-tag RSS feeds.
type discourseSource struct {
	name       string
	baseURL    string
	categories []config.DiscourseCategory
	tags       []string
	parser     *gofeed.Parser
	opts       Options
}

func newDiscourse(cfg config.Source, opts Options) (Source, error) {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: discourse source %q missing 'base_url'", config.ErrInvalid, cfg.Name)
	}
	if len(cfg.Categories) == 0 && len(cfg.Tags) == 0 {
		return nil, fmt.Errorf("%w: discourse source %q needs at least one category or tag", config.ErrInvalid, cfg.Name)
	}
	return &discourseSource{
		name:       cfg.Name,
		baseURL:    baseURL,
		categories: cfg.Categories,
		tags:       cfg.Tags,
		parser:     newFeedParser(opts),
		opts:       opts,
	}, nil
}

func (s *discourseSource) Name() string { return s.name }
func (s *discourseSource) Type() string { return "discourse" }

// Fetch pulls every configured category and tag feed. Individual feed
// failures are tolerated; the source only errors when nothing at all
// could be fetched.
func (s *discourseSource) Fetch(ctx context.Context) FetchResult {
	result := FetchResult{SourceName: s.name, SourceType: "discourse"}

	var feedURLs []string
	for _, cat := range s.categories {
		if cat.ID > 0 {
			feedURLs = append(feedURLs, fmt.Sprintf("%s/c/%s/%d.rss", s.baseURL, cat.Path, cat.ID))
		} else {
			feedURLs = append(feedURLs, fmt.Sprintf("%s/c/%s.rss", s.baseURL, cat.Path))
		}
	}
	for _, tag := range s.tags {
		feedURLs = append(feedURLs, fmt.Sprintf("%s/tag/%s.rss", s.baseURL, tag))
	}

	var all item.Batch
	var failures []string
	for i, feedURL := range feedURLs {
		if i > 0 {
			if err := sleep(ctx, s.opts.RequestDelay); err != nil {
				result.Err = err
				return result
			}
		}

		feed, err := fetchFeed(ctx, s.parser, feedURL)
		if err != nil {
			log.Printf("Discourse %q: %s failed: %v", s.name, feedURL, err)
			failures = append(failures, fmt.Sprintf("%s: %v", feedURL, err))
			continue
		}
		all = append(all, normalizeFeed(feed, s.name)...)
	}

	if len(all) == 0 && len(failures) > 0 {
		result.Err = fmt.Errorf("all feeds failed: %s", strings.Join(failures, "; "))
		return result
	}

	result.Items = all
	log.Printf("Discourse %q: fetched %d items from %d feeds", s.name, len(all), len(feedURLs))
	return result
}
