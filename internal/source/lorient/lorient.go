// Package lorient implements the L'Orient-Le Jour source: an ID-addressed
// article space reached at article_base_url/<id>, published in French on the
// www subdomain and English on the today subdomain.
package lorient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/jswain/newsharvest/internal/harvest"
	"github.com/jswain/newsharvest/internal/transport"
)

// Source is the canonical name used in batch filenames, logs and metrics.
const Source = "lorient"

// Client is the slice of the transport layer this source needs.
type Client interface {
	Get(ctx context.Context, url string) (*transport.Page, error)
	Probe(ctx context.Context, url string) (harvest.ProbeResult, error)
}

// URLBuilder maps article IDs onto URLs.
type URLBuilder struct {
	baseURL string
}

// NewURLBuilder builds a URLBuilder; baseURL must end at the article path
// prefix, e.g. https://www.lorientlejour.com/article/.
func NewURLBuilder(baseURL string) URLBuilder {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return URLBuilder{baseURL: baseURL}
}

// URLForID returns the article URL for an ID.
func (b URLBuilder) URLForID(id int64) string {
	return fmt.Sprintf("%s%d", b.baseURL, id)
}

// URLsForRange returns the article URLs for the inclusive ID range.
func (b URLBuilder) URLsForRange(from, to int64) []string {
	if to < from {
		return nil
	}
	urls := make([]string, 0, to-from+1)
	for id := from; id <= to; id++ {
		urls = append(urls, b.URLForID(id))
	}
	return urls
}

// Prober tests article IDs for existence with HEAD requests.
type Prober struct {
	client Client
	urls   URLBuilder
}

// NewProber builds a Prober.
func NewProber(client Client, urls URLBuilder) *Prober {
	return &Prober{client: client, urls: urls}
}

// ProbeID implements boundary.Prober.
func (p *Prober) ProbeID(ctx context.Context, id int64) (harvest.ProbeResult, error) {
	return p.client.Probe(ctx, p.urls.URLForID(id))
}

// DateProber reads the published timestamp of an article ID. A Gone ID is
// recovered by stepping to id+1 once; two consecutive missing IDs fail the
// probe, a known limitation of the backward search.
type DateProber struct {
	client Client
	urls   URLBuilder
}

// NewDateProber builds a DateProber. The client should carry a harder retry
// budget than article fetches: a single failed date probe aborts a backfill.
func NewDateProber(client Client, urls URLBuilder) *DateProber {
	return &DateProber{client: client, urls: urls}
}

// PublishedAt implements boundary.DateProber.
func (p *DateProber) PublishedAt(ctx context.Context, id int64) (time.Time, error) {
	page, err := p.client.Get(ctx, p.urls.URLForID(id))
	if errors.Is(err, transport.ErrNotFound) {
		page, err = p.client.Get(ctx, p.urls.URLForID(id+1))
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("date probe id %d: %w", id, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(page.Body)))
	if err != nil {
		return time.Time{}, fmt.Errorf("date probe id %d: parse page: %w", id, err)
	}
	published, ok := metaContent(doc, "article:published_time")
	if !ok {
		return time.Time{}, fmt.Errorf("date probe id %d: no published_time meta", id)
	}
	ts, err := parseArticleTime(published)
	if err != nil {
		return time.Time{}, fmt.Errorf("date probe id %d: %w", id, err)
	}
	return ts, nil
}

// Extractor maps L'Orient-Le Jour pages onto Records.
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor builds an Extractor.
func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract implements pipeline.Extractor. The published timestamp is
// mandatory; a page without one is an extraction failure. Articles on this
// source carry no modified timestamp.
func (e *Extractor) Extract(doc *goquery.Document, url string) (harvest.Record, error) {
	record := harvest.Record{
		Language: e.language(doc, url),
	}

	if title, ok := metaContent(doc, "og:title"); ok {
		record.Title = title
	}

	published, ok := metaContent(doc, "article:published_time")
	if !ok {
		return harvest.Record{}, fmt.Errorf("article %s: no published_time meta", url)
	}
	ts, err := parseArticleTime(published)
	if err != nil {
		return harvest.Record{}, fmt.Errorf("article %s: %w", url, err)
	}
	record.Published = harvest.NewTime(ts)

	var paragraphs []string
	doc.Find("div.article_full_text p").Each(func(_ int, s *goquery.Selection) {
		paragraphs = append(paragraphs, s.Text())
	})
	record.Text = strings.Join(paragraphs, " ")

	return record, nil
}

// language keys off the canonical link: www hosts French articles, today
// hosts English ones. Those are the only two languages the site publishes.
func (e *Extractor) language(doc *goquery.Document, url string) harvest.Language {
	canonical, _ := doc.Find(`link[rel="canonical"]`).Attr("href")
	switch {
	case strings.Contains(canonical, "www.lorientlejour.com"):
		return harvest.LanguageFrench
	case strings.Contains(canonical, "today.lorientlejour.com"):
		return harvest.LanguageEnglish
	default:
		e.logger.Warn("could not detect article language",
			zap.String("url", url),
			zap.String("canonical", canonical),
		)
		return harvest.LanguageUnknown
	}
}

// metaContent returns the content attribute of a meta tag by property name.
func metaContent(doc *goquery.Document, property string) (string, bool) {
	return doc.Find(fmt.Sprintf(`meta[property=%q]`, property)).Attr("content")
}

// parseArticleTime parses the site's published_time values, which come with
// and without a colon in the zone offset.
func parseArticleTime(s string) (time.Time, error) {
	for _, layout := range []string{harvest.TimeLayout, "2006-01-02T15:04:05-07:00", "2006-01-02T15:04:05-0700"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable published time %q", s)
}
