package source

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/digestbot/digestbot/internal/config"
)

// hyperKittySource fetches a HyperKitty (Mailman 3) list archive.
// Deployments expose their feed under different paths, so candidate
// URL patterns are tried in order and the first that parses wins.
type hyperKittySource struct {
	name        string
	baseURL     string
	listAddress string
	parser      *gofeed.Parser
	opts        Options
}

func newHyperKitty(cfg config.Source, opts Options) (Source, error) {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: hyperkitty source %q missing 'base_url'", config.ErrInvalid, cfg.Name)
	}
	if cfg.ListAddress == "" {
		return nil, fmt.Errorf("%w: hyperkitty source %q missing 'list_address'", config.ErrInvalid, cfg.Name)
	}
	return &hyperKittySource{
		name:        cfg.Name,
		baseURL:     baseURL,
		listAddress: cfg.ListAddress,
		parser:      newFeedParser(opts),
		opts:        opts,
	}, nil
}

func (s *hyperKittySource) Name() string { return s.name }
func (s *hyperKittySource) Type() string { return "hyperkitty" }

func (s *hyperKittySource) Fetch(ctx context.Context) FetchResult {
	result := FetchResult{SourceName: s.name, SourceType: "hyperkitty"}

	candidates := []string{
		fmt.Sprintf("%s/%s/feed/", s.baseURL, s.listAddress),
		fmt.Sprintf("%s/%s/latest.rss", s.baseURL, s.listAddress),
		fmt.Sprintf("%s/%s/atom.xml", s.baseURL, s.listAddress),
	}

	var lastErr error
	for i, feedURL := range candidates {
		if i > 0 {
			if err := sleep(ctx, s.opts.RequestDelay); err != nil {
				result.Err = err
				return result
			}
		}

		feed, err := fetchFeed(ctx, s.parser, feedURL)
		if err != nil {
			lastErr = err
			continue
		}

		result.Items = normalizeFeed(feed, s.name)
		log.Printf("HyperKitty %q: fetched %d items from %s", s.name, len(result.Items), feedURL)
		return result
	}

	result.Err = fmt.Errorf("no feed URL worked for %s: %w", s.listAddress, lastErr)
	return result
}
