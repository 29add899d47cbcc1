package source

import (
	"context"
	"log"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/digestbot/digestbot/internal/item"
)

// newFeedParser returns a gofeed parser wired to the shared client.
func newFeedParser(opts Options) *gofeed.Parser {
	parser := gofeed.NewParser()
	parser.Client = opts.Client
	parser.UserAgent = userAgent
	return parser
}

// normalizeFeed converts parsed feed items into the common schema.
// Malformed entries are skipped with a warning; one bad entry never
// fails the feed.
func normalizeFeed(feed *gofeed.Feed, sourceName string) item.Batch {
	batch := make(item.Batch, 0, len(feed.Items))
	for _, fi := range feed.Items {
		it, ok := normalizeFeedItem(fi, sourceName)
		if !ok {
			log.Printf("Warning: skipping malformed entry in %q", sourceName)
			continue
		}
		batch = append(batch, it)
	}
	return batch
}

func normalizeFeedItem(fi *gofeed.Item, sourceName string) (item.Item, bool) {
	link := fi.Link
	if link == "" && len(fi.Links) > 0 {
		link = fi.Links[0]
	}

	// GUIDs are the stable identity when present; many feeds reuse or
	// rewrite links.
	identity := fi.GUID
	if identity == "" {
		identity = link
	}
	if identity == "" {
		return item.Item{}, false
	}

	title := strings.TrimSpace(fi.Title)
	if title == "" {
		title = "Untitled"
	}

	// Best-effort date: a feed entry without a parseable date is kept,
	// just unjudgeable by the time filter.
	published := fi.PublishedParsed
	if published == nil {
		published = fi.UpdatedParsed
	}

	body := fi.Content
	if body == "" {
		body = fi.Description
	}
	body = StripHTML(body)

	var author string
	if fi.Author != nil && fi.Author.Name != "" {
		author = fi.Author.Name
	} else if len(fi.Authors) > 0 && fi.Authors[0] != nil {
		author = fi.Authors[0].Name
	}

	return item.New(sourceName, identity, title, body, link, author, published), true
}

// fetchFeed retrieves and parses one feed URL.
func fetchFeed(ctx context.Context, parser *gofeed.Parser, url string) (*gofeed.Feed, error) {
	return parser.ParseURLWithContext(url, ctx)
}
