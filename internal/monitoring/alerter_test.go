package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/studio-suggest/internal/config"
)

func thresholds() config.MonitoringConfig {
	return config.MonitoringConfig{
		ApplyFailureRateThreshold: 0.10,
		PendingBacklogThreshold:   100,
	}
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(thresholds())

	snap := &MetricsSnapshot{
		Pending:       20,
		Applied:       19,
		ApplyFailed:   1,
		ApplyFailRate: 0.05,
	}

	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_ApplyFailureRate(t *testing.T) {
	a := NewAlerter(thresholds())

	snap := &MetricsSnapshot{
		Applied:       6,
		ApplyFailed:   4,
		ApplyFailRate: 0.4,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertApplyFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "40.0%")
	assert.Equal(t, 10, alerts[0].Details["attempted"])
}

func TestAlerter_Evaluate_ApplyFailureRate_SmallSample(t *testing.T) {
	a := NewAlerter(thresholds())

	// 1 of 2 failed is over threshold but too few attempts to alert.
	snap := &MetricsSnapshot{Applied: 1, ApplyFailed: 1, ApplyFailRate: 0.5}
	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_RollbackFailure(t *testing.T) {
	a := NewAlerter(thresholds())

	alerts := a.Evaluate(&MetricsSnapshot{RollbackFailed: 2, RolledBack: 3})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertRollbackFailure, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "2 suggestion(s)")
}

func TestAlerter_Evaluate_PendingBacklog(t *testing.T) {
	a := NewAlerter(thresholds())

	alerts := a.Evaluate(&MetricsSnapshot{Pending: 101})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertPendingBacklog, alerts[0].Type)
	assert.Equal(t, "medium", alerts[0].Severity)

	// Zero threshold disables the check.
	assert.Empty(t, NewAlerter(config.MonitoringConfig{}).Evaluate(&MetricsSnapshot{Pending: 10000}))
}

func TestAlerter_Evaluate_Multiple(t *testing.T) {
	a := NewAlerter(thresholds())

	snap := &MetricsSnapshot{
		Pending:        500,
		Applied:        5,
		ApplyFailed:    5,
		ApplyFailRate:  0.5,
		RollbackFailed: 1,
	}
	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 3)

	types := make(map[AlertType]bool)
	for _, al := range alerts {
		types[al.Type] = true
	}
	assert.True(t, types[AlertApplyFailureRate])
	assert.True(t, types[AlertRollbackFailure])
	assert.True(t, types[AlertPendingBacklog])
}

func TestAlerter_SendAlerts(t *testing.T) {
	var received atomic.Int32
	var lastAlert Alert

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&lastAlert))
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := thresholds()
	cfg.WebhookURL = srv.URL
	a := NewAlerter(cfg)

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertRollbackFailure, Severity: "high", Message: "1 suggestion(s) failed to roll back"},
	})
	assert.Equal(t, 1, sent)
	assert.Equal(t, int32(1), received.Load())
	assert.Equal(t, AlertRollbackFailure, lastAlert.Type)
}

func TestAlerter_SendAlerts_NoWebhook(t *testing.T) {
	a := NewAlerter(thresholds())
	assert.Equal(t, 0, a.SendAlerts(context.Background(), []Alert{{Type: AlertPendingBacklog}}))
}

func TestAlerter_SendAlerts_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := thresholds()
	cfg.WebhookURL = srv.URL
	a := NewAlerter(cfg)

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertPendingBacklog}, {Type: AlertRollbackFailure}})
	assert.Equal(t, 0, sent)
}
