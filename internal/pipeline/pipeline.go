// Package pipeline orchestrates a digest run: fetch each configured
// source, filter and deduplicate its items, summarize the surviving
// batch, then commit state and write outputs. Source failures are
// isolated; a summarization failure aborts the run with all staged
// state discarded, so the same items are retried next run.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/digestbot/digestbot/internal/config"
	"github.com/digestbot/digestbot/internal/dedup"
	"github.com/digestbot/digestbot/internal/filter"
	"github.com/digestbot/digestbot/internal/item"
	"github.com/digestbot/digestbot/internal/output"
	"github.com/digestbot/digestbot/internal/source"
	"github.com/digestbot/digestbot/internal/summarize"
)

// Store is the persistence surface the pipeline needs. *state.DB
// implements it.
type Store interface {
	Contains(sourceName, identity string) bool
	ContentChanged(sourceName, identity, newHash string) bool
	Stage(sourceName, identity, contentHash string)
	StagedCount() int
	Commit() error
	Discard()
	RecordRun(slug string, itemsProcessed, sourcesFailed int, digestPath string) error
}

// Summarizer turns a batch into digest text.
type Summarizer interface {
	Summarize(ctx context.Context, batch item.Batch, errs []item.SourceError, timeWindow string) (string, error)
}

// Options wires a run together. Sources and Outputs may be supplied
// directly; when nil they are built from the config.
type Options struct {
	Config     *config.Config
	Store      Store
	Summarizer Summarizer
	Sources    []source.Source
	Outputs    []output.Output
	Reference  time.Time // run anchor for the time window, zero means now
	DryRun     bool      // summarize but do not commit state or write outputs
}

// Result describes a completed run.
type Result struct {
	Digest         string
	OutputPaths    []string
	ItemsProcessed int
	SourcesFetched int
	SourcesFailed  int
	Errors         []item.SourceError
}

// Run executes one digest run end to end.
func Run(ctx context.Context, opts Options) (*Result, error) {
	cfg := opts.Config

	reference := opts.Reference
	if reference.IsZero() {
		reference = time.Now().UTC()
	}

	window, err := filter.ParseWindow(cfg.Filters.TimeWindow)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	stage, err := filter.New(filter.Options{
		Window:    window,
		Include:   cfg.Filters.Keywords.Include,
		Exclude:   cfg.Filters.Keywords.Exclude,
		MinLength: cfg.Filters.MinContentLength,
		Reference: reference,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}

	sources := opts.Sources
	if sources == nil {
		sources, err = buildSources(cfg)
		if err != nil {
			return nil, err
		}
	}
	outputs := opts.Outputs
	if outputs == nil {
		outputs, err = buildOutputs(cfg)
		if err != nil {
			return nil, err
		}
	}

	ded := dedup.New(opts.Store, cfg.Filters.UseState)
	sourceDelay := time.Duration(cfg.RateLimit.DelayBetweenSources * float64(time.Second))

	result := &Result{}
	var batch item.Batch

	for i, src := range sources {
		if i > 0 {
			if err := sleep(ctx, sourceDelay); err != nil {
				opts.Store.Discard()
				return nil, err
			}
		}

		log.Printf("Fetching source %q (%s)", src.Name(), src.Type())
		res := src.Fetch(ctx)
		if ctx.Err() != nil {
			opts.Store.Discard()
			return nil, ctx.Err()
		}
		if res.Err != nil {
			log.Printf("Source %q failed: %v", src.Name(), res.Err)
			result.SourcesFailed++
			result.Errors = append(result.Errors, item.SourceError{
				SourceName: src.Name(),
				SourceType: src.Type(),
				Message:    res.Err.Error(),
				OccurredAt: time.Now().UTC(),
			})
			continue
		}
		result.SourcesFetched++

		filtered := stage(res.Items)
		survivors := ded.Apply(src.Name(), filtered)
		log.Printf("Source %q: %d fetched, %d after filters, %d new", src.Name(), len(res.Items), len(filtered), len(survivors))
		batch = append(batch, survivors...)
	}
	result.ItemsProcessed = len(batch)

	digest, err := opts.Summarizer.Summarize(ctx, batch, result.Errors, cfg.Filters.TimeWindow)
	if err != nil {
		opts.Store.Discard()
		return nil, err
	}
	result.Digest = digest

	if opts.DryRun {
		log.Printf("Dry run: discarding %d staged item(s), skipping outputs", opts.Store.StagedCount())
		opts.Store.Discard()
		return result, nil
	}

	if err := opts.Store.Commit(); err != nil {
		return nil, fmt.Errorf("committing state: %w", err)
	}

	meta := buildMetadata(cfg, reference, result)
	for _, out := range outputs {
		path, err := out.Write(digest, meta)
		if err != nil {
			// Delivery failures do not undo the run; state is already
			// committed and the digest text is in the result.
			log.Printf("Output %q failed: %v", out.Type(), err)
			continue
		}
		if path != "" {
			result.OutputPaths = append(result.OutputPaths, path)
		}
	}

	digestPath := ""
	if len(result.OutputPaths) > 0 {
		digestPath = result.OutputPaths[0]
	}
	if err := opts.Store.RecordRun(cfg.Meta.Slug, result.ItemsProcessed, result.SourcesFailed, digestPath); err != nil {
		log.Printf("Recording run failed: %v", err)
	}

	return result, nil
}

func buildSources(cfg *config.Config) ([]source.Source, error) {
	client := source.NewHTTPClient(30 * time.Second)
	opts := source.Options{
		Client:       client,
		RequestDelay: time.Duration(cfg.RateLimit.DelayBetweenRequests * float64(time.Second)),
	}

	sources := make([]source.Source, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		src, err := source.New(sc, opts)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func buildOutputs(cfg *config.Config) ([]output.Output, error) {
	outputs := make([]output.Output, 0, len(cfg.Outputs))
	for _, oc := range cfg.Outputs {
		out, err := output.New(oc)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

func buildMetadata(cfg *config.Config, reference time.Time, result *Result) item.Metadata {
	return item.Metadata{
		Title:          cfg.Meta.Name,
		Slug:           cfg.Meta.Slug,
		Date:           reference.Format("2006-01-02"),
		GeneratedAt:    time.Now().UTC().Format(time.RFC3339),
		SourcesFetched: result.SourcesFetched,
		SourcesFailed:  result.SourcesFailed,
		ItemsProcessed: result.ItemsProcessed,
		TimeWindow:     cfg.Filters.TimeWindow,
		Errors:         result.Errors,
	}
}

// NewSummarizer builds the configured summarizer. Split out so the CLI
// can report provider config errors before any fetching starts.
func NewSummarizer(cfg *config.Config) (Summarizer, error) {
	return summarize.New(cfg.Summarizer)
}

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
