package signals

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/carrier-sync/internal/config"
	"github.com/sells-group/carrier-sync/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertJobFailureRate  AlertType = "job_failure_rate"
	AlertJobFailed       AlertType = "job_failed"
	AlertInsuranceExpiry AlertType = "insurance_expiry"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Key       string         `json:"key,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter turns finished jobs and insurance windows into alerts and posts
// them to a webhook. Deduplication of insurance alerts belongs to the
// receiver, keyed by Alert.Key.
type Alerter struct {
	cfg    config.AlertsConfig
	client *http.Client
	now    func() time.Time
}

// NewAlerter creates a new Alerter.
func NewAlerter(cfg config.AlertsConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// EvaluateJob checks a finished job against the failure-rate threshold.
func (a *Alerter) EvaluateJob(job *model.SyncJob) []Alert {
	var alerts []Alert
	now := a.now().UTC()

	if job.Status == model.JobStatusFailed {
		alerts = append(alerts, Alert{
			Type:      AlertJobFailed,
			Severity:  "high",
			Message:   fmt.Sprintf("Sync job %s (%s) failed: %s", job.ID, job.JobType, job.Error),
			Details:   map[string]any{"job_id": job.ID, "job_type": job.JobType},
			Timestamp: now,
		})
		return alerts
	}

	if job.Processed == 0 || job.Processed < a.cfg.MinProcessed || a.cfg.FailureRateThreshold <= 0 {
		return alerts
	}
	rate := float64(job.Failed) / float64(job.Processed)
	if rate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertJobFailureRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Sync job %s failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d processed)",
				job.ID, rate*100, a.cfg.FailureRateThreshold*100, job.Failed, job.Processed,
			),
			Details: map[string]any{
				"job_id":       job.ID,
				"failure_rate": rate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       job.Failed,
				"processed":    job.Processed,
			},
			Timestamp: now,
		})
	}
	return alerts
}

// EvaluateInsurance returns the alert due for w, or nil when the policy is
// outside every alert tier.
func (a *Alerter) EvaluateInsurance(w *model.InsuranceWindow) *Alert {
	if w == nil || w.AlertTier == model.TierNone {
		return nil
	}
	severity := "low"
	switch {
	case w.AlertTier == model.TierExpired:
		severity = "high"
	case w.Critical:
		severity = "medium"
	}

	key := w.Key()
	msg := fmt.Sprintf("Insurance for %s expires in %d day(s) on %s", w.EntityID, w.DaysUntilExpiry, w.ExpiryDate.Format(time.DateOnly))
	if w.AlertTier == model.TierExpired {
		msg = fmt.Sprintf("Insurance for %s expired on %s", w.EntityID, w.ExpiryDate.Format(time.DateOnly))
	}
	return &Alert{
		Type:     AlertInsuranceExpiry,
		Severity: severity,
		Message:  msg,
		Key:      fmt.Sprintf("%s|%s|%s", key.EntityID, key.Tier, key.ExpiryDate),
		Details: map[string]any{
			"entity_id":         w.EntityID,
			"tier":              w.AlertTier,
			"days_until_expiry": w.DaysUntilExpiry,
		},
		Timestamp: a.now().UTC(),
	}
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
			zap.L().Error("signals: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("signals: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// NotifyJob evaluates and sends the alerts for a finished job.
func (a *Alerter) NotifyJob(ctx context.Context, job *model.SyncJob) int {
	return a.SendAlerts(ctx, a.EvaluateJob(job))
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "signals: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "signals: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "signals: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("signals: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
