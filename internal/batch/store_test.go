package batch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jswain/newsharvest/internal/harvest"
)

func record(title string, published time.Time) harvest.Record {
	return harvest.Record{
		Language:  harvest.LanguageEnglish,
		Title:     title,
		Published: harvest.NewTime(published),
		Text:      "body of " + title,
	}
}

func TestStore_RoundTripPreservesOffsets(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	beirut := time.FixedZone("", 3*60*60)
	in := []harvest.Record{
		record("first", time.Date(2023, 4, 1, 9, 15, 0, 0, beirut)),
		record("second", time.Date(2023, 4, 2, 18, 40, 0, 0, beirut)),
	}
	name := RangeFilename("lorient", 100, 101)
	path, err := store.Write(name, in)
	require.NoError(t, err)
	require.Equal(t, name, filepath.Base(path))

	out, err := store.Read(name)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "first", out[0].Title)
	_, offset := out[0].Published.Zone()
	require.Equal(t, 3*60*60, offset)
	require.True(t, out[1].Published.Equal(in[1].Published.Time))
}

func TestStore_WriteOverwritesSameName(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	name := RangeFilename("lorient", 5, 9)
	_, err = store.Write(name, []harvest.Record{record("old", time.Now())})
	require.NoError(t, err)
	_, err = store.Write(name, []harvest.Record{record("new", time.Now())})
	require.NoError(t, err)

	out, err := store.Read(name)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "new", out[0].Title)
}

func TestStore_ListFiltersAndSorts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	now := time.Now()
	for _, name := range []string{
		RangeFilename("lorient", 30, 40),
		RangeFilename("lorient", 10, 20),
		RangeFilename("other", 1, 2),
		TimestampFilename("the961", now),
	} {
		_, err := store.Write(name, nil)
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lorient_all.json"), []byte("[]"), 0o600))

	names, err := store.List(RangePattern("lorient"))
	require.NoError(t, err)
	require.Equal(t, []string{"lorient-10-20.json", "lorient-30-40.json"}, names)

	names, err = store.List(TimestampPattern("the961"))
	require.NoError(t, err)
	require.Equal(t, []string{TimestampFilename("the961", now)}, names)
}

func TestStore_RejectsTraversal(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Write("../escape.json", nil)
	require.Error(t, err)
	_, err = store.Read("../../etc/passwd")
	require.Error(t, err)
	_, err = store.Write("", nil)
	require.Error(t, err)
}

func TestNewStore_RejectsFilePath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	_, err := NewStore(file)
	require.Error(t, err)
}

func TestFilenames(t *testing.T) {
	t.Parallel()

	require.Equal(t, "lorient-218146-250000.json", RangeFilename("lorient", 218146, 250000))

	ts := time.Date(2023, 4, 1, 12, 30, 45, 0, time.UTC)
	require.Equal(t, "the961-2023-04-01-12-30-45.json", TimestampFilename("the961", ts))
	require.True(t, TimestampPattern("the961").MatchString(TimestampFilename("the961", ts)))
	require.False(t, RangePattern("lorient").MatchString("lorient_all.json"))
}
