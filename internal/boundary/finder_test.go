package boundary

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jswain/newsharvest/internal/harvest"
)

// fakeProber answers existence probes from a synthetic ID space: every ID up
// to maxID exists except the ones listed in gone; errAt injects transient
// failures.
type fakeProber struct {
	maxID  int64
	gone   map[int64]bool
	errAt  map[int64]error
	probes int
}

func (f *fakeProber) ProbeID(_ context.Context, id int64) (harvest.ProbeResult, error) {
	f.probes++
	if err := f.errAt[id]; err != nil {
		return harvest.ProbeGone, err
	}
	if id <= f.maxID && !f.gone[id] {
		return harvest.ProbeFound, nil
	}
	return harvest.ProbeGone, nil
}

func TestFindLatest_ReturnsLastExistingID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		startID int64
		gap     int64 // the Gone run starts at startID+gap
	}{
		{name: "immediately gone", startID: 100, gap: 1},
		{name: "small run", startID: 100, gap: 5},
		{name: "crosses one doubling", startID: 218146, gap: 100},
		{name: "deep run", startID: 218146, gap: 54321},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			prober := &fakeProber{maxID: tc.startID + tc.gap - 1}
			finder := NewFinder(Config{}, zap.NewNop())

			got, err := finder.FindLatest(context.Background(), prober, tc.startID)
			require.NoError(t, err)
			require.Equal(t, tc.startID+tc.gap-1, got)
		})
	}
}

func TestFindLatest_ToleratesIsolatedGap(t *testing.T) {
	t.Parallel()

	// One hole inside a valid run must not be mistaken for the boundary.
	start := int64(1000)
	boundary := int64(1777)
	prober := &fakeProber{
		maxID: boundary,
		gone:  map[int64]bool{start + 16: true},
	}
	finder := NewFinder(Config{}, zap.NewNop())

	got, err := finder.FindLatest(context.Background(), prober, start)
	require.NoError(t, err)
	require.Equal(t, boundary, got)
}

func TestFindLatest_GapWiderThanLookAheadEndsSearch(t *testing.T) {
	t.Parallel()

	// A run of Gone IDs wider than the look-ahead reads as the end of
	// content even if articles resume beyond it. Known behavior, not a bug.
	start := int64(1000)
	prober := &fakeProber{maxID: start + 3}
	finder := NewFinder(Config{LookAhead: 10}, zap.NewNop())

	got, err := finder.FindLatest(context.Background(), prober, start)
	require.NoError(t, err)
	require.Equal(t, start+3, got)
}

func TestFindLatest_FallsBackAtOffsetCap(t *testing.T) {
	t.Parallel()

	// Every probe succeeds: the doubling phase hits the cap and the search
	// degrades to a conservative fallback instead of failing the run.
	prober := &fakeProber{maxID: 1 << 62}
	finder := NewFinder(Config{OffsetCap: 1 << 21, FallbackOffset: 1 << 20}, zap.NewNop())

	got, err := finder.FindLatest(context.Background(), prober, 5000)
	require.NoError(t, err)
	require.Equal(t, int64(5000)+(1<<20), got)
}

func TestFindLatest_FallsBackAtNonPowerOfTwoCap(t *testing.T) {
	t.Parallel()

	// The doubled offset never lands exactly on a cap that is not a power
	// of two; the search must still stop the first time it reaches it.
	prober := &fakeProber{maxID: 1 << 62}
	finder := NewFinder(Config{OffsetCap: 3_000_000, FallbackOffset: 1 << 20}, zap.NewNop())

	got, err := finder.FindLatest(context.Background(), prober, 100)
	require.NoError(t, err)
	require.Equal(t, int64(100)+(1<<20), got)
	require.Less(t, prober.probes, 30)
}

func TestFindLatest_TransientErrorAbortsSearch(t *testing.T) {
	t.Parallel()

	transient := errors.New("connection reset")
	prober := &fakeProber{
		maxID: 10000,
		errAt: map[int64]error{1008: transient},
	}
	finder := NewFinder(Config{}, zap.NewNop())

	_, err := finder.FindLatest(context.Background(), prober, 1000)
	require.ErrorIs(t, err, transient)
}

// fakeDateProber maps IDs onto a date sequence that strictly increases with
// the ID, one hour apart.
type fakeDateProber struct {
	epoch time.Time
	errAt map[int64]error
}

func (f *fakeDateProber) PublishedAt(_ context.Context, id int64) (time.Time, error) {
	if err := f.errAt[id]; err != nil {
		return time.Time{}, err
	}
	return f.epoch.Add(time.Duration(id) * time.Hour), nil
}

func TestFindBackward_FindsUniqueBoundary(t *testing.T) {
	t.Parallel()

	epoch := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	prober := &fakeDateProber{epoch: epoch}
	finder := NewFinder(Config{}, zap.NewNop())

	cases := []struct {
		name string
		top  int64
		want int64
	}{
		{name: "one back", top: 1000, want: 999},
		{name: "mid range", top: 1000, want: 937},
		{name: "deep backfill", top: 50000, want: 12345},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// Cutoff strictly between date(want) and date(want+1).
			cutoff := epoch.Add(time.Duration(tc.want)*time.Hour + 30*time.Minute)
			got, err := finder.FindBackward(context.Background(), prober, tc.top, cutoff)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)

			// The boundary contract: date(b) <= cutoff < date(b+1).
			dateB, _ := prober.PublishedAt(context.Background(), got)
			dateNext, _ := prober.PublishedAt(context.Background(), got+1)
			require.False(t, dateB.After(cutoff))
			require.True(t, dateNext.After(cutoff))
		})
	}
}

func TestFindBackward_CutoffExactlyOnArticle(t *testing.T) {
	t.Parallel()

	epoch := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	prober := &fakeDateProber{epoch: epoch}
	finder := NewFinder(Config{}, zap.NewNop())

	// An article published exactly at the cutoff does not exceed it and
	// must be the returned boundary.
	cutoff := epoch.Add(700 * time.Hour)
	got, err := finder.FindBackward(context.Background(), prober, 1000, cutoff)
	require.NoError(t, err)
	require.Equal(t, int64(700), got)
}

func TestFindBackward_CutoffBeforeAllContent(t *testing.T) {
	t.Parallel()

	epoch := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	prober := &fakeDateProber{epoch: epoch}
	finder := NewFinder(Config{}, zap.NewNop())

	got, err := finder.FindBackward(context.Background(), prober, 500, epoch.Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(0), got)
}

func TestFindBackward_TransientErrorIsHardFailure(t *testing.T) {
	t.Parallel()

	transient := errors.New("gateway timeout")
	epoch := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	prober := &fakeDateProber{
		epoch: epoch,
		errAt: map[int64]error{996: transient},
	}
	finder := NewFinder(Config{}, zap.NewNop())

	_, err := finder.FindBackward(context.Background(), prober, 1000, epoch.Add(900*time.Hour))
	require.ErrorIs(t, err, transient)
}
