package item

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Item is a content unit normalized to a common schema, regardless of
// which source produced it.
type Item struct {
	SourceName  string
	Identity    string // stable dedup key; falls back to URL
	Title       string
	Body        string
	URL         string
	Author      string
	PublishedAt *time.Time // nil when the source date could not be parsed
	ContentHash string
}

// Batch is an ordered sequence of items for one run. Order follows source
// configuration order, then fetch order within a source.
type Batch []Item

// New builds a normalized Item. Title and body are whitespace-trimmed,
// the identity falls back to the URL, and the content hash is computed
// over the normalized title and body.
func New(sourceName, identity, title, body, rawURL, author string, publishedAt *time.Time) Item {
	title = strings.TrimSpace(title)
	body = strings.TrimSpace(body)
	if identity == "" {
		identity = rawURL
	}
	return Item{
		SourceName:  sourceName,
		Identity:    identity,
		Title:       title,
		Body:        body,
		URL:         rawURL,
		Author:      author,
		PublishedAt: publishedAt,
		ContentHash: Hash(title, body),
	}
}

// Hash returns a stable digest over the normalized title and body.
// Whitespace runs are collapsed so that formatting-only changes do not
// register as content updates.
func Hash(title, body string) string {
	normalized := strings.Join(strings.Fields(title), " ") + "\n" +
		strings.Join(strings.Fields(body), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
