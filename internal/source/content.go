package source

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"

	"github.com/digestbot/digestbot/internal/item"
)

// Bodies shorter than this are considered teasers worth enriching with
// the full page text.
const enrichBelow = 200

// Extracted text shorter than this is boilerplate, not an article.
const minExtracted = 100

// enrichBatch replaces teaser bodies with full page text extracted via
// readability. Failures leave the feed body in place; once a domain
// fails, its remaining items are skipped to avoid hammering a dead
// host.
func enrichBatch(ctx context.Context, opts Options, batch item.Batch) {
	failedDomains := make(map[string]struct{})

	for i := range batch {
		it := &batch[i]
		if len(it.Body) >= enrichBelow || it.URL == "" {
			continue
		}

		u, err := url.Parse(it.URL)
		if err != nil {
			continue
		}
		domain := strings.ToLower(u.Host)
		if _, failed := failedDomains[domain]; failed {
			continue
		}

		if err := sleep(ctx, opts.RequestDelay); err != nil {
			return
		}

		text, err := fetchPageText(ctx, opts.Client, it.URL)
		if err != nil {
			failedDomains[domain] = struct{}{}
			log.Printf("Content fetch failed for %s, skipping remaining from %s", it.URL, domain)
			continue
		}
		if text == "" {
			continue
		}

		it.Body = text
		// The body changed, so the content hash must follow it.
		it.ContentHash = item.Hash(it.Title, it.Body)
	}
}

// fetchPageText downloads a page and extracts the readable article
// text. An empty string with nil error means the page had no
// extractable content, which is not a transport failure.
func fetchPageText(ctx context.Context, client *http.Client, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &httpError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		// A truncated body is a transport failure, not an empty page;
		// surfacing it lets the caller skip the rest of the domain.
		return "", err
	}

	parsedURL, _ := url.Parse(pageURL)
	article, err := readability.FromReader(strings.NewReader(string(body)), parsedURL)
	if err != nil {
		return "", nil
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) > minExtracted {
		return text, nil
	}
	return "", nil
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return http.StatusText(e.code)
}
