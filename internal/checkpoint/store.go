// Package checkpoint persists the table of contents (TOC) that makes
// harvest runs resumable. The TOC is the single source of truth for what has
// already been attempted; it is read once before a run and rewritten
// wholesale only after a run fully succeeds, so a crash mid-harvest leaves
// the previous state intact.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/jswain/newsharvest/internal/harvest"
)

// ErrNotExist reports that no checkpoint has been written yet.
var ErrNotExist = errors.New("checkpoint does not exist")

// TOC is the persisted harvest frontier. ID-addressed sources use the
// min/max pairs; sitemap-addressed sources use the cursor fields. Unknown
// fields in the file are ignored, so older binaries keep working against
// newer files.
//
// Invariant: across successful runs MaxID only grows and MinID only
// shrinks. The store does not enforce it; callers only ever push the
// frontier outward.
type TOC struct {
	MaxID       int64         `json:"max_id,omitempty"`
	MaxDatetime *harvest.Time `json:"max_datetime,omitempty"`
	MinID       int64         `json:"min_id,omitempty"`
	MinDatetime *harvest.Time `json:"min_datetime,omitempty"`

	CurrentSitemap    string   `json:"current_sitemap,omitempty"`
	CompletedSitemaps []string `json:"completed_sitemaps,omitempty"`
	ParsedArticles    []string `json:"parsed_articles,omitempty"`
}

// Store reads and writes one TOC file. Single-process usage only; there is
// no cross-instance locking because the tool never runs twice concurrently.
type Store struct {
	path   string
	logger *zap.Logger
}

// NewStore builds a Store for the given file path.
func NewStore(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, logger: logger}
}

// Load reads the TOC. A missing file returns ErrNotExist so callers can
// decide whether a fresh start is acceptable.
func (s *Store) Load() (TOC, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return TOC{}, fmt.Errorf("load checkpoint %s: %w", s.path, ErrNotExist)
		}
		return TOC{}, fmt.Errorf("load checkpoint %s: %w", s.path, err)
	}
	var toc TOC
	if err := json.Unmarshal(data, &toc); err != nil {
		return TOC{}, fmt.Errorf("decode checkpoint %s: %w", s.path, err)
	}
	return toc, nil
}

// Save rewrites the TOC through a temp file and rename, so a crash mid-write
// cannot corrupt the previous checkpoint.
func (s *Store) Save(toc TOC) error {
	data, err := json.MarshalIndent(toc, "", "    ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create checkpoint temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	s.logger.Debug("checkpoint saved", zap.String("path", s.path))
	return nil
}
