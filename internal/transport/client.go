// Package transport implements the retrying HTTP layer shared by the
// boundary finders and the harvest pipeline. One long-lived Client is built
// per source and injected into every component that fetches.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/jswain/newsharvest/internal/harvest"
	"github.com/jswain/newsharvest/internal/metrics"
)

// Sentinel results a caller is expected to branch on. Neither aborts a
// harvest batch: both mean "no article at this URL".
var (
	// ErrNotFound reports a definitive 404 for the requested URL.
	ErrNotFound = errors.New("article not found")
	// ErrOffDomain reports a redirect that landed outside the source's
	// article URL pattern, e.g. an ID that points at a category page.
	ErrOffDomain = errors.New("non-article redirect")
)

// Page is a successfully fetched page.
type Page struct {
	StatusCode int
	FinalURL   string
	Body       []byte
}

// Config controls Client behavior.
type Config struct {
	// Source labels log lines and metrics.
	Source    string
	UserAgent string
	// ArticlePattern validates the final URL after redirects for GETs.
	// Nil disables the check.
	ArticlePattern *regexp.Regexp
	GetTimeout     time.Duration
	HeadTimeout    time.Duration
	Retry          *RetryPolicy
}

// Client is a shared, retrying HTTP client built on a colly collector. It is
// safe for concurrent use; every request runs on a clone of the base
// collector.
type Client struct {
	cfg    Config
	base   *colly.Collector
	logger *zap.Logger
}

// New builds a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.GetTimeout == 0 {
		cfg.GetTimeout = 4 * time.Second
	}
	if cfg.HeadTimeout == 0 {
		cfg.HeadTimeout = 3 * time.Second
	}
	if cfg.Retry == nil {
		cfg.Retry = NewRetryPolicy(3, 300*time.Millisecond, 5*time.Second, []int{
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusGatewayTimeout,
		})
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	base := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	if cfg.UserAgent != "" {
		base.UserAgent = cfg.UserAgent
	}
	return &Client{cfg: cfg, base: base, logger: logger}
}

// Get fetches a page body, retrying transient failures with backoff.
// A 404 yields ErrNotFound; a redirect landing outside the article pattern
// yields ErrOffDomain.
func (c *Client) Get(ctx context.Context, url string) (*Page, error) {
	res, err := c.do(ctx, http.MethodGet, url, c.cfg.GetTimeout)
	if err != nil {
		return nil, err
	}
	if c.cfg.ArticlePattern != nil && !c.cfg.ArticlePattern.MatchString(res.FinalURL) {
		c.logger.Warn("non-article redirect",
			zap.String("source", c.cfg.Source),
			zap.String("url", url),
			zap.String("final_url", res.FinalURL),
		)
		metrics.FetchesTotal.WithLabelValues(c.cfg.Source, "off_domain").Inc()
		return nil, fmt.Errorf("%s redirected to %s: %w", url, res.FinalURL, ErrOffDomain)
	}
	metrics.FetchesTotal.WithLabelValues(c.cfg.Source, "ok").Inc()
	metrics.BytesFetchedTotal.WithLabelValues(c.cfg.Source).Add(float64(len(res.Body)))
	return res, nil
}

// Probe issues a HEAD request and reports whether content exists at the URL.
// Any outcome other than success or 404 is a transient error.
func (c *Client) Probe(ctx context.Context, url string) (harvest.ProbeResult, error) {
	_, err := c.do(ctx, http.MethodHead, url, c.cfg.HeadTimeout)
	switch {
	case err == nil:
		metrics.ProbesTotal.WithLabelValues(c.cfg.Source, "found").Inc()
		return harvest.ProbeFound, nil
	case errors.Is(err, ErrNotFound):
		metrics.ProbesTotal.WithLabelValues(c.cfg.Source, "gone").Inc()
		return harvest.ProbeGone, nil
	default:
		metrics.ProbesTotal.WithLabelValues(c.cfg.Source, "error").Inc()
		return harvest.ProbeGone, err
	}
}

type attemptResult struct {
	status   int
	finalURL string
	body     []byte
	err      error
}

func (c *Client) do(ctx context.Context, method, url string, timeout time.Duration) (*Page, error) {
	var last attemptResult
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, err)
		}
		last = c.attempt(method, url, timeout)
		if last.err == nil && last.status == http.StatusNotFound {
			// colly reports 404 through the error callback, but keep the
			// belt and suspenders.
			last.err = ErrNotFound
		}
		if last.err == nil {
			return &Page{StatusCode: last.status, FinalURL: last.finalURL, Body: last.body}, nil
		}
		if last.status == http.StatusNotFound {
			c.logger.Warn("404",
				zap.String("source", c.cfg.Source),
				zap.String("url", url),
			)
			metrics.FetchesTotal.WithLabelValues(c.cfg.Source, "not_found").Inc()
			return nil, fmt.Errorf("%s: %w", url, ErrNotFound)
		}
		if !c.cfg.Retry.ShouldRetry(last.status, last.err, attempt) {
			break
		}
		metrics.RetriesTotal.WithLabelValues(c.cfg.Source).Inc()
		wait := c.cfg.Retry.Backoff(attempt)
		c.logger.Debug("retrying fetch",
			zap.String("url", url),
			zap.Int("status", last.status),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(last.err),
		)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("fetch %s: %w", url, ctx.Err())
		case <-time.After(wait):
		}
	}
	metrics.FetchesTotal.WithLabelValues(c.cfg.Source, "error").Inc()
	return nil, fmt.Errorf("fetch %s (status %d): %w", url, last.status, last.err)
}

// attempt runs one request on a collector clone and captures the outcome
// through response hooks, the way the base crawler engine does.
func (c *Client) attempt(method, url string, timeout time.Duration) attemptResult {
	col := c.base.Clone()
	col.SetRequestTimeout(timeout)

	var res attemptResult
	col.OnResponse(func(r *colly.Response) {
		res.status = r.StatusCode
		res.body = r.Body
		if r.Request != nil && r.Request.URL != nil {
			res.finalURL = r.Request.URL.String()
		}
	})
	col.OnError(func(r *colly.Response, err error) {
		if r != nil {
			res.status = r.StatusCode
			if r.Request != nil && r.Request.URL != nil {
				res.finalURL = r.Request.URL.String()
			}
		}
		res.err = err
	})

	var err error
	if method == http.MethodHead {
		err = col.Head(url)
	} else {
		err = col.Visit(url)
	}
	if res.err == nil && err != nil {
		res.err = err
	}
	return res
}
