// Package batch persists one harvest run's records as an immutable JSON
// file whose name encodes the ID or date range it covers.
package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jswain/newsharvest/internal/harvest"
)

// RangeFilename names a batch covering an inclusive ID range.
func RangeFilename(source string, from, to int64) string {
	return fmt.Sprintf("%s-%d-%d.json", source, from, to)
}

// TimestampFilename names a batch by the time its run finished, for sources
// without a meaningful ID range.
func TimestampFilename(source string, t time.Time) string {
	return fmt.Sprintf("%s-%s.json", source, t.Format("2006-01-02-15-04-05"))
}

// RangePattern matches every range-named batch file for a source.
func RangePattern(source string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(source) + `-\d+-\d+\.json$`)
}

// TimestampPattern matches every timestamp-named batch file for a source.
func TimestampPattern(source string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(source) + `-\d{4}(-\d{2}){5}\.json$`)
}

// Store writes and reads batch files under one directory.
type Store struct {
	dir string
}

// NewStore verifies the directory exists (creating it if needed) and is
// writable before anything is harvested against it.
func NewStore(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("batch directory is required")
	}
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create batch directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat batch directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("batch path %s is not a directory", dir)
	}

	probe := filepath.Join(dir, ".writable_test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("batch directory is not writable: %w", err)
	}
	if err := os.Remove(probe); err != nil {
		return nil, fmt.Errorf("clean up write probe: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Write persists records to name and returns the full path. A name is a
// pure function of the range it covers, so rewriting one (a crashed run
// re-covering its frontier) reproduces identical content.
func (s *Store) Write(name string, records []harvest.Record) (string, error) {
	path, err := s.resolve(name)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return "", fmt.Errorf("encode batch: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write batch: %w", err)
	}
	return path, nil
}

// Read loads one batch file by name.
func (s *Store) Read(name string) ([]harvest.Record, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch %s: %w", name, err)
	}
	var records []harvest.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode batch %s: %w", name, err)
	}
	return records, nil
}

// List returns the names of all batch files matching pattern, sorted
// lexicographically so merge enumeration order is deterministic.
func (s *Store) List(pattern *regexp.Regexp) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if pattern.MatchString(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// resolve joins name under the store directory and rejects traversal.
func (s *Store) resolve(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("batch name is required")
	}
	full := filepath.Join(s.dir, name)
	cleanDir := filepath.Clean(s.dir)
	if !strings.HasPrefix(filepath.Clean(full), cleanDir+string(filepath.Separator)) {
		return "", fmt.Errorf("batch name %q escapes the batch directory", name)
	}
	return full, nil
}
