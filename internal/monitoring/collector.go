package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/studio-suggest/internal/model"
)

// MetricsSnapshot holds a point-in-time view of the suggestion queue.
type MetricsSnapshot struct {
	Total          int `json:"total"`
	Pending        int `json:"pending"`
	Approved       int `json:"approved"`
	Rejected       int `json:"rejected"`
	Applied        int `json:"applied"`
	ApplyFailed    int `json:"apply_failed"`
	RolledBack     int `json:"rolled_back"`
	RollbackFailed int `json:"rollback_failed"`

	// ApplyFailRate is apply_failed over every suggestion that reached an
	// apply attempt.
	ApplyFailRate float64 `json:"apply_fail_rate"`

	Patterns       int `json:"patterns"`
	ActivePatterns int `json:"active_patterns"`

	ByStatus    map[model.SuggestionStatus]int `json:"by_status"`
	CollectedAt time.Time                      `json:"collected_at"`
}

// StatsSource abstracts the queue statistics needed by the collector.
type StatsSource interface {
	Stats(ctx context.Context) (*model.Stats, error)
}

// Collector gathers metrics from the suggestion queue.
type Collector struct {
	source StatsSource
}

// NewCollector creates a new metrics collector.
func NewCollector(source StatsSource) *Collector {
	return &Collector{source: source}
}

// Collect gathers a snapshot of queue metrics.
func (c *Collector) Collect(ctx context.Context) (*MetricsSnapshot, error) {
	stats, err := c.source.Stats(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: stats")
	}

	snap := &MetricsSnapshot{
		Total:          stats.Total,
		Pending:        stats.ByStatus[model.StatusPending],
		Approved:       stats.ByStatus[model.StatusApproved],
		Rejected:       stats.ByStatus[model.StatusRejected],
		Applied:        stats.ByStatus[model.StatusApplied],
		ApplyFailed:    stats.ByStatus[model.StatusApplyFailed],
		RolledBack:     stats.ByStatus[model.StatusRolledBack],
		RollbackFailed: stats.ByStatus[model.StatusRollbackFailed],
		Patterns:       stats.Patterns,
		ActivePatterns: stats.ActivePatterns,
		ByStatus:       make(map[model.SuggestionStatus]int, len(stats.ByStatus)),
		CollectedAt:    time.Now().UTC(),
	}
	for k, v := range stats.ByStatus {
		snap.ByStatus[k] = v
	}

	// Rolled back and rollback-failed suggestions were applied first.
	attempted := snap.Applied + snap.RolledBack + snap.RollbackFailed + snap.ApplyFailed
	if attempted > 0 {
		snap.ApplyFailRate = float64(snap.ApplyFailed) / float64(attempted)
	}
	return snap, nil
}
