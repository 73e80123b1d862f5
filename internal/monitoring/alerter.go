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

	"github.com/sells-group/research-brief/internal/config"
	"github.com/sells-group/research-brief/internal/model"
)

// minRuns is the sample size below which rate-based alerts stay quiet.
const minRuns = 5

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertDegradedRate    AlertType = "degraded_rate"
	AlertComponentOutage AlertType = "component_outage"
	AlertCostOverrun     AlertType = "cost_overrun"
)

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
	now := snap.CollectedAt

	if snap.RunsTotal >= minRuns && a.cfg.DegradedRateThreshold > 0 && snap.DegradedRate > a.cfg.DegradedRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertDegradedRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%.1f%% of briefs degraded, threshold %.1f%% (%d of %d runs in last %dh)",
				snap.DegradedRate*100, a.cfg.DegradedRateThreshold*100,
				snap.RunsDegraded, snap.RunsTotal, snap.LookbackHours,
			),
			Details: map[string]any{
				"degraded_rate":     snap.DegradedRate,
				"threshold":         a.cfg.DegradedRateThreshold,
				"rate_limit_errors": snap.RateLimitErrors,
			},
			Timestamp: now,
		})
	}

	// A component that failed in every run points at a dead provider or key.
	if snap.RunsTotal >= minRuns {
		for _, c := range model.AllComponents() {
			if snap.ComponentFailures[c] < snap.RunsTotal {
				continue
			}
			alerts = append(alerts, Alert{
				Type:     AlertComponentOutage,
				Severity: "high",
				Message: fmt.Sprintf("%s degraded in all %d runs in last %dh",
					c, snap.RunsTotal, snap.LookbackHours),
				Details: map[string]any{
					"component": string(c),
					"runs":      snap.RunsTotal,
				},
				Timestamp: now,
			})
		}
	}

	if a.cfg.CostThresholdUSD > 0 && snap.CostUSD > a.cfg.CostThresholdUSD {
		alerts = append(alerts, Alert{
			Type:     AlertCostOverrun,
			Severity: "high",
			Message: fmt.Sprintf(
				"API cost $%.2f exceeds threshold $%.2f in last %dh",
				snap.CostUSD, a.cfg.CostThresholdUSD, snap.LookbackHours,
			),
			Details: map[string]any{
				"cost_usd":      snap.CostUSD,
				"threshold_usd": a.cfg.CostThresholdUSD,
				"runs":          snap.RunsTotal,
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
