package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/studio-suggest/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertApplyFailureRate AlertType = "apply_failure_rate"
	AlertRollbackFailure  AlertType = "rollback_failure"
	AlertPendingBacklog   AlertType = "pending_backlog"
)

// minApplyAttempts is the sample below which the failure rate is noise.
const minApplyAttempts = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	attempted := snap.Applied + snap.RolledBack + snap.RollbackFailed + snap.ApplyFailed
	if attempted >= minApplyAttempts && a.cfg.ApplyFailureRateThreshold > 0 &&
		snap.ApplyFailRate > a.cfg.ApplyFailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertApplyFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Apply failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d attempted)",
				snap.ApplyFailRate*100, a.cfg.ApplyFailureRateThreshold*100,
				snap.ApplyFailed, attempted,
			),
			Details: map[string]any{
				"failure_rate": snap.ApplyFailRate,
				"threshold":    a.cfg.ApplyFailureRateThreshold,
				"failed":       snap.ApplyFailed,
				"attempted":    attempted,
			},
			Timestamp: now,
		})
	}

	// A failed rollback leaves business data half-restored.
	if snap.RollbackFailed > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertRollbackFailure,
			Severity: "high",
			Message:  fmt.Sprintf("%d suggestion(s) failed to roll back", snap.RollbackFailed),
			Details: map[string]any{
				"rollback_failed": snap.RollbackFailed,
				"rolled_back":     snap.RolledBack,
			},
			Timestamp: now,
		})
	}

	if a.cfg.PendingBacklogThreshold > 0 && snap.Pending > a.cfg.PendingBacklogThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertPendingBacklog,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d suggestions awaiting review exceeds backlog threshold %d",
				snap.Pending, a.cfg.PendingBacklogThreshold,
			),
			Details: map[string]any{
				"pending":   snap.Pending,
				"threshold": a.cfg.PendingBacklogThreshold,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
