package monitoring

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/studio-suggest/internal/config"
	"github.com/sells-group/studio-suggest/internal/model"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{CheckIntervalSecs: 1}
	checker := NewChecker(NewCollector(&mockSource{}), NewAlerter(cfg), nil, cfg)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_RunChecksBeforeFirstTick(t *testing.T) {
	src := &mockSource{}
	checker := NewChecker(NewCollector(src), NewAlerter(config.MonitoringConfig{}), nil, config.MonitoringConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
	assert.Equal(t, 1, src.calls)
}

func TestChecker_CheckUpdatesMetricsAndAlerts(t *testing.T) {
	src := &mockSource{stats: &model.Stats{
		Total: 4,
		ByStatus: map[model.SuggestionStatus]int{
			model.StatusPending:        3,
			model.StatusRollbackFailed: 1,
		},
		Patterns:       2,
		ActivePatterns: 1,
	}}
	metrics := NewMetrics()
	cfg := config.MonitoringConfig{PendingBacklogThreshold: 100}
	checker := NewChecker(NewCollector(src), NewAlerter(cfg), metrics, cfg)

	alerts := checker.check(context.Background(), zap.NewNop())
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertRollbackFailure, alerts[0].Type)
	assert.Equal(t, 1, src.calls)

	assert.InDelta(t, 3, testutil.ToFloat64(metrics.queue.WithLabelValues("pending")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.patterns.WithLabelValues("inactive")), 0.001)
}

func TestChecker_CheckCollectError(t *testing.T) {
	cfg := config.MonitoringConfig{}
	checker := NewChecker(NewCollector(&mockSource{err: assert.AnError}), NewAlerter(cfg), nil, cfg)
	assert.Nil(t, checker.check(context.Background(), zap.NewNop()))
}

func TestMetrics_Observe(t *testing.T) {
	m := NewMetrics()
	m.Observe("apply", "ok", 20*time.Millisecond)
	m.Observe("apply", "ok", 30*time.Millisecond)
	m.Observe("apply", "not_found", time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(m.operations.WithLabelValues("apply", "ok")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.operations.WithLabelValues("apply", "not_found")), 0.001)

	expected := `
# HELP studio_suggest_apply_failure_ratio Share of apply attempts that failed.
# TYPE studio_suggest_apply_failure_ratio gauge
studio_suggest_apply_failure_ratio 0.25
`
	m.SetSnapshot(&MetricsSnapshot{ApplyFailRate: 0.25, ByStatus: map[model.SuggestionStatus]int{}})
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "studio_suggest_apply_failure_ratio"))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.Observe("apply", "ok", time.Second)
	m.SetSnapshot(&MetricsSnapshot{})
}
