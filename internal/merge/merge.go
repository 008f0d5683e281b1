// Package merge rebuilds the deduplicated corpus from all persisted
// batches. Batches may overlap: a crashed run re-scans its frontier, so the
// same article can appear in two files. Title-based first-seen-wins dedup
// here is the system's defense against that redundancy.
package merge

import (
	"fmt"
	"regexp"
	"sort"

	"go.uber.org/zap"

	"github.com/jswain/newsharvest/internal/batch"
	"github.com/jswain/newsharvest/internal/harvest"
)

// Merger combines batches into a corpus. Pure function of the batch files;
// safe to re-run at any time.
type Merger struct {
	store  *batch.Store
	logger *zap.Logger
}

// New builds a Merger over a batch store.
func New(store *batch.Store, logger *zap.Logger) *Merger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Merger{store: store, logger: logger}
}

// Merge reads every batch matching pattern in lexicographic filename order,
// keeps the first record seen for each title, and returns the survivors
// sorted by published timestamp ascending.
func (m *Merger) Merge(pattern *regexp.Regexp) ([]harvest.Record, error) {
	names, err := m.store.List(pattern)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	seenTitles := map[string]bool{}
	var corpus []harvest.Record
	for _, name := range names {
		records, err := m.store.Read(name)
		if err != nil {
			return nil, fmt.Errorf("merge: %w", err)
		}
		kept := 0
		for _, rec := range records {
			if seenTitles[rec.Title] {
				continue
			}
			seenTitles[rec.Title] = true
			corpus = append(corpus, rec)
			kept++
		}
		m.logger.Info("merged batch",
			zap.String("batch", name),
			zap.Int("records", len(records)),
			zap.Int("kept", kept),
		)
	}

	sort.SliceStable(corpus, func(i, j int) bool {
		return corpus[i].Published.Before(corpus[j].Published.Time)
	})
	return corpus, nil
}
