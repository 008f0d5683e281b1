// Package app initializes and holds the long-lived services behind each CLI
// operation, acting as the dependency injection point between configuration
// and the harvest machinery.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jswain/newsharvest/internal/batch"
	"github.com/jswain/newsharvest/internal/boundary"
	"github.com/jswain/newsharvest/internal/checkpoint"
	"github.com/jswain/newsharvest/internal/clock/system"
	"github.com/jswain/newsharvest/internal/config"
	"github.com/jswain/newsharvest/internal/harvest"
	"github.com/jswain/newsharvest/internal/merge"
	"github.com/jswain/newsharvest/internal/metrics"
	"github.com/jswain/newsharvest/internal/pipeline"
	"github.com/jswain/newsharvest/internal/sitemap"
	"github.com/jswain/newsharvest/internal/source/lorient"
	"github.com/jswain/newsharvest/internal/source/the961"
	"github.com/jswain/newsharvest/internal/transport"
)

// App wires config, logger, clock and stores together for one process run.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	clock   harvest.Clock
	batches *batch.Store
	runID   string
}

// New initializes the application services. Every run gets a UUID attached
// to all its log lines. When a metrics address is configured the Prometheus
// endpoint starts immediately and lives until ctx ends.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	batches, err := batch.NewStore(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("init batch store: %w", err)
	}
	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID))
	if cfg.Metrics.Addr != "" {
		metrics.Serve(ctx, cfg.Metrics.Addr, logger)
	}
	return &App{
		cfg:     cfg,
		logger:  logger,
		clock:   system.New(),
		batches: batches,
		runID:   runID,
	}, nil
}

// HarvestLorient discovers and harvests everything published since the
// checkpoint's forward frontier.
func (a *App) HarvestLorient(ctx context.Context) error {
	store := a.checkpointStore(a.cfg.Lorient.CheckpointFile)
	toc, err := store.Load()
	if errors.Is(err, checkpoint.ErrNotExist) {
		a.logger.Warn("no checkpoint found; starting from the configured floor",
			zap.Int64("min_article_id", a.cfg.Lorient.MinArticleID),
		)
		toc = checkpoint.TOC{MaxID: a.cfg.Lorient.MinArticleID}
	} else if err != nil {
		return err
	}

	client, err := a.newClient(lorient.Source, a.cfg.Lorient.ArticlePattern, a.cfg.HTTP.MaxRetries)
	if err != nil {
		return err
	}
	urls := lorient.NewURLBuilder(a.cfg.Lorient.ArticleBaseURL)
	finder := a.newFinder()

	a.logger.Info("seeking farthest forward article", zap.Int64("start_id", toc.MaxID))
	latest, err := finder.FindLatest(ctx, lorient.NewProber(client, urls), toc.MaxID)
	if err != nil {
		return fmt.Errorf("forward discovery: %w", err)
	}
	a.logger.Info("forward boundary found", zap.Int64("latest_id", latest))

	if latest <= toc.MaxID {
		a.logger.Info("no new articles since last run", zap.Int64("max_id", toc.MaxID))
		return nil
	}

	// The frontier ID itself is re-fetched on purpose: a crash after the
	// previous batch write leaves it unconfirmed, and the merger dedups it.
	records, timings := a.newPipeline(lorient.Source, client, lorient.NewExtractor(a.logger)).
		Harvest(ctx, urls.URLsForRange(toc.MaxID, latest))
	a.report(timings)

	name := batch.RangeFilename(lorient.Source, toc.MaxID+1, latest)
	path, err := a.batches.Write(name, records)
	if err != nil {
		return err
	}
	a.logger.Info("batch written", zap.String("path", path), zap.Int("records", len(records)))

	now := a.clock.Now()
	a.reportNewArticles(len(records), timeOrNow(toc.MaxDatetime, now), now)

	nowStamp := harvest.NewTime(now)
	toc.MaxID = latest
	toc.MaxDatetime = &nowStamp
	return store.Save(toc)
}

// BackfillLorient harvests backward from the checkpoint's minimum frontier
// until the first article published on or before the cutoff.
func (a *App) BackfillLorient(ctx context.Context, cutoff time.Time) error {
	store := a.checkpointStore(a.cfg.Lorient.CheckpointFile)
	toc, err := store.Load()
	if err != nil {
		return err
	}
	if toc.MinID <= 0 {
		return fmt.Errorf("checkpoint has no backward frontier (min_id unset)")
	}
	if toc.MinDatetime != nil {
		a.logger.Info("earliest parsed article",
			zap.String("published", toc.MinDatetime.Format(harvest.TimeLayout)),
		)
		fmt.Printf("Earliest parsed article is from %s.\n", toc.MinDatetime.Format(harvest.TimeLayout))
	}

	// Date probes get a harder retry budget than article fetches: a single
	// transient failure here aborts the whole backfill.
	dateClient, err := a.newClient(lorient.Source, a.cfg.Lorient.ArticlePattern, a.cfg.HTTP.BackfillMaxRetries)
	if err != nil {
		return err
	}
	urls := lorient.NewURLBuilder(a.cfg.Lorient.ArticleBaseURL)
	finder := a.newFinder()

	a.logger.Info("seeking backwards",
		zap.Int64("from_id", toc.MinID),
		zap.String("cutoff", cutoff.Format(harvest.TimeLayout)),
	)
	first, err := finder.FindBackward(ctx, lorient.NewDateProber(dateClient, urls), toc.MinID, cutoff)
	if err != nil {
		return fmt.Errorf("backward discovery: %w", err)
	}
	a.logger.Info("backward boundary found", zap.Int64("first_id", first))

	if first >= toc.MinID {
		a.logger.Info("nothing to backfill", zap.Int64("min_id", toc.MinID))
		return nil
	}

	client, err := a.newClient(lorient.Source, a.cfg.Lorient.ArticlePattern, a.cfg.HTTP.MaxRetries)
	if err != nil {
		return err
	}
	records, timings := a.newPipeline(lorient.Source, client, lorient.NewExtractor(a.logger)).
		Harvest(ctx, urls.URLsForRange(first, toc.MinID-1))
	a.report(timings)

	name := batch.RangeFilename(lorient.Source, first, toc.MinID-1)
	path, err := a.batches.Write(name, records)
	if err != nil {
		return err
	}
	a.logger.Info("batch written", zap.String("path", path), zap.Int("records", len(records)))

	a.reportNewArticles(len(records), cutoff, timeOrNow(toc.MinDatetime, a.clock.Now()))

	cutoffStamp := harvest.NewTime(cutoff)
	toc.MinID = first
	toc.MinDatetime = &cutoffStamp
	return store.Save(toc)
}

// HarvestThe961 walks the sitemap index against the persisted cursor and
// harvests every URL not yet seen.
func (a *App) HarvestThe961(ctx context.Context) error {
	store := a.checkpointStore(a.cfg.The961.CheckpointFile)
	toc, err := store.Load()
	if errors.Is(err, checkpoint.ErrNotExist) {
		a.logger.Warn("no checkpoint found; scanning every sitemap")
		toc = checkpoint.TOC{}
	} else if err != nil {
		return err
	}

	client, err := a.newClient(the961.Source, a.cfg.The961.ArticlePattern, a.cfg.HTTP.MaxRetries)
	if err != nil {
		return err
	}
	walker := sitemap.NewWalker(client, a.cfg.The961.SitemapIndexURL, a.logger)

	state := sitemap.NewState()
	state.Current = toc.CurrentSitemap
	for _, m := range toc.CompletedSitemaps {
		state.Completed[m] = true
	}
	for _, u := range toc.ParsedArticles {
		state.Seen[u] = true
	}

	candidates, next, err := walker.Walk(ctx, state)
	if err != nil {
		return fmt.Errorf("sitemap walk: %w", err)
	}
	a.logger.Info("sitemap walk complete",
		zap.Int("candidates", len(candidates)),
		zap.String("cursor", next.Current),
	)
	if len(candidates) == 0 {
		a.logger.Info("no new articles since last run")
		return nil
	}

	records, timings := a.newPipeline(the961.Source, client, the961.NewExtractor()).
		Harvest(ctx, candidates)
	a.report(timings)

	name := batch.TimestampFilename(the961.Source, a.clock.Now())
	path, err := a.batches.Write(name, records)
	if err != nil {
		return err
	}
	a.logger.Info("batch written", zap.String("path", path), zap.Int("records", len(records)))
	fmt.Printf("Parsed %d new articles.\n", len(records))

	toc.CurrentSitemap = next.Current
	toc.CompletedSitemaps = sortedKeys(next.Completed)
	toc.ParsedArticles = sortedKeys(next.Seen)
	return store.Save(toc)
}

// Merge rebuilds the deduplicated corpus for a source from its batches.
func (a *App) Merge(source string) error {
	var pattern *regexp.Regexp
	switch source {
	case lorient.Source:
		pattern = batch.RangePattern(source)
	case the961.Source:
		pattern = batch.TimestampPattern(source)
	default:
		return fmt.Errorf("unknown source %q", source)
	}

	records, err := merge.New(a.batches, a.logger).Merge(pattern)
	if err != nil {
		return err
	}
	path, err := a.batches.Write(source+"_all.json", records)
	if err != nil {
		return err
	}
	a.logger.Info("corpus written", zap.String("path", path), zap.Int("records", len(records)))
	fmt.Printf("Merged %d articles into %s.\n", len(records), path)
	return nil
}

func (a *App) checkpointStore(file string) *checkpoint.Store {
	return checkpoint.NewStore(filepath.Join(a.cfg.Storage.DataDir, file), a.logger)
}

func (a *App) newClient(source, pattern string, retries int) (*transport.Client, error) {
	pat, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile article pattern for %s: %w", source, err)
	}
	retry := transport.NewRetryPolicy(
		retries,
		time.Duration(a.cfg.HTTP.BackoffInitialMs)*time.Millisecond,
		time.Duration(a.cfg.HTTP.BackoffMaxMs)*time.Millisecond,
		a.cfg.HTTP.RetryStatuses,
	)
	return transport.New(transport.Config{
		Source:         source,
		UserAgent:      a.cfg.HTTP.UserAgent,
		ArticlePattern: pat,
		GetTimeout:     time.Duration(a.cfg.HTTP.TimeoutSeconds) * time.Second,
		HeadTimeout:    time.Duration(a.cfg.HTTP.HeadTimeoutSeconds) * time.Second,
		Retry:          retry,
	}, a.logger), nil
}

func (a *App) newFinder() *boundary.Finder {
	return boundary.NewFinder(boundary.Config{
		LookAhead:      a.cfg.Boundary.LookAhead,
		OffsetCap:      a.cfg.Boundary.OffsetCap,
		FallbackOffset: a.cfg.Boundary.FallbackOffset,
	}, a.logger)
}

func (a *App) newPipeline(source string, fetcher pipeline.Fetcher, extractor pipeline.Extractor) *pipeline.Pipeline {
	return pipeline.New(fetcher, extractor, pipeline.Config{
		Source:           source,
		Workers:          a.cfg.Harvest.Concurrency,
		ProgressLogEvery: a.cfg.Harvest.ProgressLogEvery,
	}, a.logger)
}

// report prints and logs the per-phase performance block.
func (a *App) report(timings pipeline.Timings) {
	summary := timings.Summary()
	fmt.Println("\n" + summary)
	a.logger.Info("performance summary", zap.String("timings", summary))
}

func (a *App) reportNewArticles(count int, from, to time.Time) {
	days := int(to.Sub(from).Hours()/24) + 1
	if days < 1 {
		days = 1
	}
	a.logger.Info("harvest complete", zap.Int("new_articles", count), zap.Int("days", days))
	fmt.Printf("Found %d new articles over %d days.\n", count, days)
}

func timeOrNow(t *harvest.Time, now time.Time) time.Time {
	if t == nil {
		return now
	}
	return t.Time
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
