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

	"github.com/sells-group/tramites-sync/internal/config"
	"github.com/sells-group/tramites-sync/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailure          AlertType = "run_failure"
	AlertMassRemoval         AlertType = "mass_removal"
	AlertFetchErrors         AlertType = "fetch_errors"
	AlertStaleSync           AlertType = "stale_sync"
	AlertConsecutiveFailures AlertType = "consecutive_failures"
)

// consecutiveFailureLimit is how many failed runs in a row raise an alert.
const consecutiveFailureLimit = 2

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	RunID     string         `json:"run_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// RunReport is the outcome of one sync run as seen by the alerter.
type RunReport struct {
	RunID   string
	Status  model.RunStatus
	Summary model.RunSummary
	Error   string
}

// Alerter evaluates run outcomes against configured thresholds and sends
// alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	now    func() time.Time
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate checks a finished run and returns any alerts.
func (a *Alerter) Evaluate(r RunReport) []Alert {
	var alerts []Alert
	now := a.now()
	s := r.Summary

	if r.Status == model.RunStatusFailed {
		alerts = append(alerts, Alert{
			Type:      AlertRunFailure,
			Severity:  "high",
			Message:   fmt.Sprintf("Sync run %s failed: %s", r.RunID, r.Error),
			RunID:     r.RunID,
			Timestamp: now,
		})
		// Counts from a failed run were never published.
		return alerts
	}

	// A large share of the catalog disappearing usually means the portal
	// served a partial listing.
	if a.cfg.RemovalAlertRatio > 0 && s.Previous > 0 {
		ratio := float64(s.Removed) / float64(s.Previous)
		if ratio > a.cfg.RemovalAlertRatio {
			alerts = append(alerts, Alert{
				Type:     AlertMassRemoval,
				Severity: "high",
				Message: fmt.Sprintf(
					"%d of %d procedures removed (%.1f%%), above threshold %.1f%%",
					s.Removed, s.Previous, ratio*100, a.cfg.RemovalAlertRatio*100,
				),
				RunID: r.RunID,
				Details: map[string]any{
					"removed":   s.Removed,
					"previous":  s.Previous,
					"ratio":     ratio,
					"threshold": a.cfg.RemovalAlertRatio,
				},
				Timestamp: now,
			})
		}
	}

	attempted := s.Fetched + s.FetchErrors
	if a.cfg.FetchErrorRatio > 0 && attempted > 0 {
		ratio := float64(s.FetchErrors) / float64(attempted)
		if ratio > a.cfg.FetchErrorRatio {
			alerts = append(alerts, Alert{
				Type:     AlertFetchErrors,
				Severity: "medium",
				Message: fmt.Sprintf(
					"%d of %d detail fetches failed (%.1f%%)",
					s.FetchErrors, attempted, ratio*100,
				),
				RunID: r.RunID,
				Details: map[string]any{
					"fetch_errors": s.FetchErrors,
					"attempted":    attempted,
					"threshold":    a.cfg.FetchErrorRatio,
				},
				Timestamp: now,
			})
		}
	}

	return alerts
}

// EvaluateHealth checks the run history snapshot for a stalled schedule.
func (a *Alerter) EvaluateHealth(snap *HealthSnapshot) []Alert {
	var alerts []Alert
	now := a.now()

	if a.cfg.StaleAfterHours > 0 {
		limit := time.Duration(a.cfg.StaleAfterHours) * time.Hour
		if snap.LastSuccess == nil || now.Sub(*snap.LastSuccess) > limit {
			msg := fmt.Sprintf("No successful sync in the last %dh", a.cfg.StaleAfterHours)
			details := map[string]any{"stale_after_hours": a.cfg.StaleAfterHours}
			if snap.LastSuccess != nil {
				details["last_success"] = snap.LastSuccess.Format(time.RFC3339)
			}
			alerts = append(alerts, Alert{
				Type:      AlertStaleSync,
				Severity:  "high",
				Message:   msg,
				Details:   details,
				Timestamp: now,
			})
		}
	}

	if snap.ConsecutiveFailures >= consecutiveFailureLimit {
		alerts = append(alerts, Alert{
			Type:     AlertConsecutiveFailures,
			Severity: "high",
			Message:  fmt.Sprintf("Last %d sync runs failed", snap.ConsecutiveFailures),
			RunID:    snap.LastRunID,
			Details: map[string]any{
				"consecutive_failures": snap.ConsecutiveFailures,
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
