// Package sitemap walks a paginated sitemap index and diffs it against a
// persisted cursor. The model is an append-only source: the active post
// sitemap grows until it fills, then a new one with a higher index begins.
package sitemap

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/jswain/newsharvest/internal/transport"
)

var sitemapIndexPat = regexp.MustCompile(`(\d+)\.xml`)

// Fetcher is the slice of the transport client the walker needs.
type Fetcher interface {
	Get(ctx context.Context, url string) (*transport.Page, error)
}

// State is the walker's persisted cursor position.
type State struct {
	// Current is the active sitemap: the newest one seen so far, still
	// accumulating URLs.
	Current string
	// Completed sitemaps are full and never rescanned.
	Completed map[string]bool
	// Seen holds every URL of the active sitemap already handed out as a
	// candidate on a previous walk.
	Seen map[string]bool
}

// NewState returns an empty cursor for a first walk.
func NewState() State {
	return State{Completed: map[string]bool{}, Seen: map[string]bool{}}
}

// Walker discovers new article URLs from a sitemap index.
type Walker struct {
	fetcher  Fetcher
	indexURL string
	logger   *zap.Logger
}

// NewWalker builds a Walker rooted at the given sitemap index URL.
func NewWalker(fetcher Fetcher, indexURL string, logger *zap.Logger) *Walker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Walker{fetcher: fetcher, indexURL: indexURL, logger: logger}
}

// Walk fetches the sitemap index and classifies every post-sitemap entry
// against the previous cursor: the active entry is diffed against the seen
// set, entries not yet completed are scanned in full, completed entries are
// skipped. The entry with the highest numeric index becomes the new cursor;
// its predecessor folds into the completed set and the seen set resets to
// the new frontier's URLs. Returns the candidate URLs and the advanced
// state; the input state is not mutated.
func (w *Walker) Walk(ctx context.Context, prev State) ([]string, State, error) {
	entries, err := w.fetchLocs(ctx, w.indexURL)
	if err != nil {
		return nil, State{}, fmt.Errorf("fetch sitemap index: %w", err)
	}

	next := State{
		Current:   prev.Current,
		Completed: make(map[string]bool, len(prev.Completed)),
		Seen:      make(map[string]bool, len(prev.Seen)),
	}
	for m := range prev.Completed {
		next.Completed[m] = true
	}
	for u := range prev.Seen {
		next.Seen[u] = true
	}

	hiIndex := entryIndex(prev.Current)
	candidates := map[string]bool{}
	advanced := false
	var frontierURLs []string

	for _, entry := range entries {
		if !strings.Contains(entry, "post-sitemap") {
			continue
		}
		switch {
		case entry == prev.Current:
			urls, err := w.fetchLocs(ctx, entry)
			if err != nil {
				return nil, State{}, fmt.Errorf("scan active sitemap %s: %w", entry, err)
			}
			w.logger.Info("scanned active sitemap",
				zap.String("sitemap", entry),
				zap.Int("urls", len(urls)),
			)
			for _, u := range urls {
				if !prev.Seen[u] {
					candidates[u] = true
				}
				next.Seen[u] = true
			}
		case !next.Completed[entry]:
			idx := entryIndex(entry)
			if idx < 0 {
				w.logger.Warn("sitemap entry without numeric index, skipping",
					zap.String("sitemap", entry),
				)
				continue
			}
			urls, err := w.fetchLocs(ctx, entry)
			if err != nil {
				return nil, State{}, fmt.Errorf("scan sitemap %s: %w", entry, err)
			}
			w.logger.Info("scanned new sitemap",
				zap.String("sitemap", entry),
				zap.Int("urls", len(urls)),
			)
			for _, u := range urls {
				candidates[u] = true
			}
			if idx > hiIndex {
				if next.Current != "" {
					next.Completed[next.Current] = true
				}
				hiIndex = idx
				next.Current = entry
				advanced = true
				frontierURLs = urls
			} else {
				next.Completed[entry] = true
			}
		}
	}

	if advanced {
		// The cursor advanced: the old active page is full and the seen set
		// tracks the new frontier only, even when the frontier is still empty.
		next.Seen = make(map[string]bool, len(frontierURLs))
		for _, u := range frontierURLs {
			next.Seen[u] = true
		}
	}

	out := make([]string, 0, len(candidates))
	for u := range candidates {
		out = append(out, u)
	}
	sort.Strings(out)
	return out, next, nil
}

// fetchLocs pulls every <loc> value out of a sitemap document. The documents
// are XML but a lenient HTML parse finds the loc elements just as well and
// shrugs off the occasional malformed entry.
func (w *Walker) fetchLocs(ctx context.Context, url string) ([]string, error) {
	page, err := w.fetcher.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse sitemap %s: %w", url, err)
	}
	var locs []string
	doc.Find("loc").Each(func(_ int, s *goquery.Selection) {
		if loc := strings.TrimSpace(s.Text()); loc != "" {
			locs = append(locs, loc)
		}
	})
	return locs, nil
}

// entryIndex extracts the numeric page index from a sitemap URL such as
// post-sitemap3.xml. Returns -1 when the URL carries no index.
func entryIndex(entry string) int {
	m := sitemapIndexPat.FindStringSubmatch(entry)
	if m == nil {
		return -1
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return -1
	}
	return n
}
