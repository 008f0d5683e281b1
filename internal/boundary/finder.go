// Package boundary locates the edges of unseen content in the article ID
// space. IDs are dense but gap-containing: a 404 can sit in the middle of a
// valid run, so every comparison has to tolerate isolated holes.
package boundary

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jswain/newsharvest/internal/harvest"
)

// Prober tests a single article ID for existence. A transient failure is
// reported as an error, never as a ProbeResult.
type Prober interface {
	ProbeID(ctx context.Context, id int64) (harvest.ProbeResult, error)
}

// DateProber reports the published timestamp of an article ID. When the ID
// itself is gone, implementations recover by probing id+1 once; runs of two
// or more missing IDs are a known limitation and surface as an error.
type DateProber interface {
	PublishedAt(ctx context.Context, id int64) (time.Time, error)
}

// Config tunes the search. Zero values pick the defaults below.
type Config struct {
	// LookAhead is how many IDs past a Gone probe are checked before the
	// probe is believed to be the end of content rather than an isolated
	// gap. Gaps wider than this will truncate a forward search early.
	LookAhead int
	// OffsetCap stops the forward doubling phase. When reached, FindLatest
	// degrades to startID+FallbackOffset instead of failing the run.
	OffsetCap      int64
	FallbackOffset int64
}

const (
	defaultLookAhead      = 10
	defaultOffsetCap      = int64(1) << 21
	defaultFallbackOffset = int64(1) << 20
)

// Finder runs sequential boundary searches over a prober. Probes are
// strictly ordered; there is no parallelism to exploit because every probe
// depends on the previous outcome.
type Finder struct {
	cfg    Config
	logger *zap.Logger
}

// NewFinder builds a Finder.
func NewFinder(cfg Config, logger *zap.Logger) *Finder {
	if cfg.LookAhead <= 0 {
		cfg.LookAhead = defaultLookAhead
	}
	if cfg.OffsetCap <= 0 {
		cfg.OffsetCap = defaultOffsetCap
	}
	if cfg.FallbackOffset <= 0 {
		cfg.FallbackOffset = defaultFallbackOffset
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Finder{cfg: cfg, logger: logger}
}

// FindLatest returns the highest ID at or beyond startID that still resolves
// to content. It doubles an offset from startID until a genuine Gone run is
// found, then binary-searches the bracket. A transient probe error aborts
// the search; hitting the offset cap degrades to a conservative fallback
// boundary with a warning instead of failing the run.
func (f *Finder) FindLatest(ctx context.Context, p Prober, startID int64) (int64, error) {
	offset := int64(1)
	var bottom, top int64
	for {
		res, err := f.probeWithLookAhead(ctx, p, startID+offset)
		if err != nil {
			return 0, fmt.Errorf("find latest from %d: %w", startID, err)
		}
		if res == harvest.ProbeGone {
			bottom = startID + offset/2
			top = startID + offset
			break
		}
		offset *= 2
		// >= so a cap that is not a power of two still terminates the loop.
		if offset >= f.cfg.OffsetCap {
			f.logger.Warn("end of articles not found within probe cap; falling back",
				zap.Int64("start_id", startID),
				zap.Int64("offset_cap", f.cfg.OffsetCap),
				zap.Int64("fallback_boundary", startID+f.cfg.FallbackOffset),
			)
			return startID + f.cfg.FallbackOffset, nil
		}
	}

	for top-bottom > 1 {
		mid := bottom + (top-bottom)/2
		res, err := p.ProbeID(ctx, mid)
		if err != nil {
			return 0, fmt.Errorf("find latest from %d: %w", startID, err)
		}
		if res == harvest.ProbeGone {
			top = mid
		} else {
			bottom = mid
		}
	}
	return bottom, nil
}

// probeWithLookAhead treats a Gone probe as Found if any of the next
// LookAhead IDs exist, ruling out isolated holes in the ID space.
func (f *Finder) probeWithLookAhead(ctx context.Context, p Prober, id int64) (harvest.ProbeResult, error) {
	res, err := p.ProbeID(ctx, id)
	if err != nil || res == harvest.ProbeFound {
		return res, err
	}
	for i := int64(1); i <= int64(f.cfg.LookAhead); i++ {
		res, err = p.ProbeID(ctx, id+i)
		if err != nil {
			return harvest.ProbeGone, err
		}
		if res == harvest.ProbeFound {
			return harvest.ProbeFound, nil
		}
	}
	return harvest.ProbeGone, nil
}

// FindBackward returns the highest ID below top whose published date does
// not exceed cutoff, i.e. the unique b with date(b) <= cutoff < date(b+1)
// for a date sequence that decreases as IDs shrink. Any probe failure is a
// hard failure: a backfill must not update its checkpoint off a guess.
func (f *Finder) FindBackward(ctx context.Context, p DateProber, top int64, cutoff time.Time) (int64, error) {
	width := int64(1)
	for {
		id := top - width
		if id < 0 {
			id = 0
		}
		ts, err := p.PublishedAt(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("find backward from %d: %w", top, err)
		}
		if !ts.After(cutoff) {
			break
		}
		if id == 0 {
			// Everything back to the first ID is newer than the cutoff.
			return 0, nil
		}
		width *= 2
	}

	bottom := top - width
	if bottom < 0 {
		bottom = 0
	}
	top = top - width/2
	for top-bottom > 1 {
		mid := bottom + (top-bottom)/2
		ts, err := p.PublishedAt(ctx, mid)
		if err != nil {
			return 0, fmt.Errorf("find backward: %w", err)
		}
		if ts.After(cutoff) {
			top = mid
		} else {
			bottom = mid
		}
	}
	return bottom, nil
}
