// Package pipeline runs the bounded-concurrency fetch-parse-extract loop
// over a candidate URL set. Failures are isolated per item: one malformed
// page or dead URL never aborts the batch.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/jswain/newsharvest/internal/harvest"
	"github.com/jswain/newsharvest/internal/metrics"
	"github.com/jswain/newsharvest/internal/transport"
)

// Fetcher is the slice of the transport client the pipeline needs.
type Fetcher interface {
	Get(ctx context.Context, url string) (*transport.Page, error)
}

// Extractor maps a parsed page to a Record. An error is a soft failure: the
// dispatcher degrades it to an empty record, logs it, and moves on.
type Extractor interface {
	Extract(doc *goquery.Document, url string) (harvest.Record, error)
}

// Config controls Pipeline behavior.
type Config struct {
	// Source labels logs and metrics.
	Source string
	// Workers fixes the pool width. Defaults to 16.
	Workers int
	// ProgressLogEvery sets how often progress lines are emitted.
	ProgressLogEvery int
}

const defaultWorkers = 16

// Pipeline fans a candidate set out over a fixed worker pool.
type Pipeline struct {
	fetcher   Fetcher
	extractor Extractor
	cfg       Config
	logger    *zap.Logger
}

// New builds a Pipeline.
func New(fetcher Fetcher, extractor Extractor, cfg Config, logger *zap.Logger) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{fetcher: fetcher, extractor: extractor, cfg: cfg, logger: logger}
}

type itemResult struct {
	record  harvest.Record
	ok      bool
	fetch   time.Duration
	parse   time.Duration
	extract time.Duration
}

// Harvest processes every candidate URL and returns the extracted records in
// arbitrary order plus the per-phase timing profile. It blocks until all
// workers finish. Per-item failures are logged and dropped; Harvest itself
// never fails.
func (p *Pipeline) Harvest(ctx context.Context, urls []string) ([]harvest.Record, Timings) {
	jobs := make(chan string)
	results := make(chan itemResult)

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for url := range jobs {
				results <- p.processURL(ctx, url)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, url := range urls {
			select {
			case jobs <- url:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var (
		records []harvest.Record
		timings Timings
	)
	prog := newTracker(p.cfg.Source, len(urls), p.cfg.ProgressLogEvery, p.logger)
	for res := range results {
		prog.advance()
		if !res.ok {
			continue
		}
		records = append(records, res.record)
		timings.Fetch.observe(res.fetch)
		timings.Parse.observe(res.parse)
		timings.Extract.observe(res.extract)
	}
	return records, timings
}

// processURL runs the three timed phases for one candidate. Each phase that
// fails converts to a dropped item; extraction failures additionally degrade
// through the empty-record path so the phase timing is still captured.
func (p *Pipeline) processURL(ctx context.Context, url string) itemResult {
	var res itemResult

	fetchStart := time.Now()
	page, err := p.fetcher.Get(ctx, url)
	res.fetch = time.Since(fetchStart)
	if err != nil {
		// Transport already classified and logged 404s and off-domain
		// redirects; anything else exhausted its retries.
		if !errors.Is(err, transport.ErrNotFound) && !errors.Is(err, transport.ErrOffDomain) {
			p.logger.Error("fetch failed",
				zap.String("source", p.cfg.Source),
				zap.String("url", url),
				zap.Error(err),
			)
		}
		return res
	}
	metrics.PhaseDurationSeconds.WithLabelValues(p.cfg.Source, "fetch").Observe(res.fetch.Seconds())

	parseStart := time.Now()
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	res.parse = time.Since(parseStart)
	if err != nil {
		p.logger.Error("parse document failed",
			zap.String("source", p.cfg.Source),
			zap.String("url", url),
			zap.Error(err),
		)
		return res
	}
	metrics.PhaseDurationSeconds.WithLabelValues(p.cfg.Source, "parse").Observe(res.parse.Seconds())

	extractStart := time.Now()
	record, err := p.extractor.Extract(doc, url)
	res.extract = time.Since(extractStart)
	metrics.PhaseDurationSeconds.WithLabelValues(p.cfg.Source, "extract").Observe(res.extract.Seconds())
	if err != nil {
		p.logger.Error("extract article failed",
			zap.String("source", p.cfg.Source),
			zap.String("url", url),
			zap.Error(err),
		)
		metrics.ExtractionFailuresTotal.WithLabelValues(p.cfg.Source).Inc()
		record = harvest.Record{}
	}
	if record.Text == "" {
		p.logger.Warn("url produced empty article",
			zap.String("source", p.cfg.Source),
			zap.String("url", url),
		)
		metrics.EmptyArticlesTotal.WithLabelValues(p.cfg.Source).Inc()
		return res
	}

	metrics.ArticlesTotal.WithLabelValues(p.cfg.Source).Inc()
	res.record = record
	res.ok = true
	return res
}
