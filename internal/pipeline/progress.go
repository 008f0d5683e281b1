package pipeline

import (
	"go.uber.org/zap"

	"github.com/jswain/newsharvest/internal/metrics"
)

// tracker reports harvest progress for operator feedback. Advisory only:
// nothing downstream depends on it.
type tracker struct {
	source   string
	total    int
	done     int
	logEvery int
	logger   *zap.Logger
}

func newTracker(source string, total, logEvery int, logger *zap.Logger) *tracker {
	if logEvery <= 0 {
		logEvery = 50
	}
	metrics.PipelineProgress.WithLabelValues(source).Set(0)
	return &tracker{source: source, total: total, logEvery: logEvery, logger: logger}
}

// advance records one completed item. Called from the collection loop only,
// so no synchronization is needed.
func (t *tracker) advance() {
	t.done++
	metrics.PipelineProgress.WithLabelValues(t.source).Set(float64(t.done))
	if t.done%t.logEvery == 0 || t.done == t.total {
		t.logger.Info("harvest progress",
			zap.String("source", t.source),
			zap.Int("done", t.done),
			zap.Int("total", t.total),
		)
	}
}
