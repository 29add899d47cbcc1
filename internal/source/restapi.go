package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/digestbot/digestbot/internal/config"
	"github.com/digestbot/digestbot/internal/item"
)

const defaultMaxPages = 5

// restAPISource fetches a JSON API with a configurable field mapping.
// The mapping names where to find the item list and, within each item,
// the title/url/body/date/id/author fields (dot paths allowed). A
// "next" mapping enables pagination.
type restAPISource struct {
	name     string
	url      string
	method   string
	headers  map[string]string
	mapping  map[string]string
	maxPages int
	opts     Options
}

func newRestAPI(cfg config.Source, opts Options) (Source, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: rest_api source %q missing 'url'", config.ErrInvalid, cfg.Name)
	}
	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodGet
	}
	if method != http.MethodGet && method != http.MethodPost {
		return nil, fmt.Errorf("%w: rest_api source %q: unsupported method %q", config.ErrInvalid, cfg.Name, cfg.Method)
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	return &restAPISource{
		name:     cfg.Name,
		url:      cfg.URL,
		method:   method,
		headers:  cfg.Headers,
		mapping:  cfg.Mapping,
		maxPages: maxPages,
		opts:     opts,
	}, nil
}

func (s *restAPISource) Name() string { return s.name }
func (s *restAPISource) Type() string { return "rest_api" }

func (s *restAPISource) Fetch(ctx context.Context) FetchResult {
	result := FetchResult{SourceName: s.name, SourceType: "rest_api"}

	pageURL := s.url
	for page := 0; pageURL != "" && page < s.maxPages; page++ {
		if page > 0 {
			if err := sleep(ctx, s.opts.RequestDelay); err != nil {
				result.Err = err
				return result
			}
		}

		data, err := s.fetchPage(ctx, pageURL)
		if err != nil {
			if len(result.Items) > 0 {
				// Keep what earlier pages yielded.
				log.Printf("REST API %q: page %d failed, keeping %d items: %v", s.name, page+1, len(result.Items), err)
				break
			}
			result.Err = err
			return result
		}

		records := extractRecords(data, s.mapping["items"])
		if len(records) == 0 {
			break
		}

		for _, record := range records {
			it, ok := s.normalizeRecord(record)
			if !ok {
				log.Printf("Warning: skipping malformed record from %q", s.name)
				continue
			}
			result.Items = append(result.Items, it)
		}

		pageURL = s.nextPageURL(data, pageURL)
	}

	log.Printf("REST API %q: fetched %d items", s.name, len(result.Items))
	return result
}

func (s *restAPISource) fetchPage(ctx context.Context, pageURL string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, s.method, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.opts.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, pageURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("decoding JSON: %w", err)
	}
	return data, nil
}

func (s *restAPISource) normalizeRecord(record map[string]any) (item.Item, bool) {
	field := func(key, fallback string) string {
		path := s.mapping[key]
		if path == "" {
			path = fallback
		}
		value, _ := lookupPath(record, path).(string)
		return value
	}

	rawURL := field("url", "url")
	identity := field("id", "id")
	if identity == "" && rawURL == "" {
		return item.Item{}, false
	}

	title := field("title", "title")
	if title == "" {
		title = "Untitled"
	}

	var published *time.Time
	if dateStr := field("date", "date"); dateStr != "" {
		if ts, err := dateparse.ParseAny(dateStr); err == nil {
			utc := ts.UTC()
			published = &utc
		}
	}

	body := StripHTML(field("body", "body"))
	author := field("author", "author")

	return item.New(s.name, identity, title, body, rawURL, author, published), true
}

func (s *restAPISource) nextPageURL(data any, current string) string {
	path := s.mapping["next"]
	if path == "" {
		return ""
	}
	next, _ := lookupPath(data, path).(string)
	if next == "" {
		return ""
	}

	base, err := url.Parse(current)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(next)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// extractRecords pulls the item list out of a decoded response. An
// empty path means the response itself is the list.
func extractRecords(data any, path string) []map[string]any {
	value := data
	if path != "" {
		value = lookupPath(data, path)
	}

	list, ok := value.([]any)
	if !ok {
		return nil
	}

	records := make([]map[string]any, 0, len(list))
	for _, entry := range list {
		if record, ok := entry.(map[string]any); ok {
			records = append(records, record)
		}
	}
	return records
}

// lookupPath resolves a dot-separated path in decoded JSON.
func lookupPath(data any, path string) any {
	current := data
	for _, part := range strings.Split(path, ".") {
		record, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = record[part]
		if !ok {
			return nil
		}
	}
	return current
}
