// Package monitoring raises webhook alerts when a print run degrades.
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

	"github.com/avery-whitehead/StreetMapsDownload/internal/config"
	"github.com/avery-whitehead/StreetMapsDownload/internal/pipeline"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFailureRate    AlertType = "print_failure_rate"
	AlertIncompleteRate AlertType = "print_incomplete_rate"
	AlertRoundMerge     AlertType = "round_merge_failure"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	RunID     string         `json:"run_id"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Snapshot counts the outcomes of one run.
type Snapshot struct {
	RunID        string
	Complete     int
	Incomplete   int
	Failed       int
	MergeFailed  int
	FailedRounds []string
}

// Finished is the number of pages and groups that reached an outcome.
func (s Snapshot) Finished() int { return s.Complete + s.Incomplete + s.Failed }

// Rate returns n as a fraction of finished work.
func (s Snapshot) Rate(n int) float64 {
	if s.Finished() == 0 {
		return 0
	}
	return float64(n) / float64(s.Finished())
}

// SnapshotOf summarizes a run report. Merge and publish failures are counted
// separately since they lose a whole round rather than a page.
func SnapshotOf(rep *pipeline.Report) Snapshot {
	s := Snapshot{
		RunID:      rep.RunID,
		Complete:   len(rep.Pages),
		Incomplete: len(rep.Incomplete),
	}
	for _, f := range rep.Failures {
		switch f.Step {
		case pipeline.StepMerge, pipeline.StepPublish:
			s.MergeFailed++
			s.FailedRounds = append(s.FailedRounds, f.Round)
		default:
			s.Failed++
		}
	}
	return s
}

// Alerter evaluates a Snapshot against configured thresholds and sends
// alerts via webhook when thresholds are breached.
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
func (a *Alerter) Evaluate(snap Snapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()
	finished := snap.Finished()

	if finished >= a.cfg.MinPages && finished > 0 && snap.Rate(snap.Failed) > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertFailureRate,
			RunID:    snap.RunID,
			Severity: "high",
			Message: fmt.Sprintf(
				"Print failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished)",
				snap.Rate(snap.Failed)*100, a.cfg.FailureRateThreshold*100, snap.Failed, finished,
			),
			Details: map[string]any{
				"failure_rate": snap.Rate(snap.Failed),
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.Failed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	if a.cfg.IncompleteRateThreshold > 0 && finished >= a.cfg.MinPages && snap.Rate(snap.Incomplete) > a.cfg.IncompleteRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertIncompleteRate,
			RunID:    snap.RunID,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d of %d pages are missing map slots",
				snap.Incomplete, finished,
			),
			Details: map[string]any{
				"incomplete_rate": snap.Rate(snap.Incomplete),
				"threshold":       a.cfg.IncompleteRateThreshold,
			},
			Timestamp: now,
		})
	}

	if snap.MergeFailed > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertRoundMerge,
			RunID:    snap.RunID,
			Severity: "high",
			Message:  fmt.Sprintf("%d round document(s) were not produced", snap.MergeFailed),
			Details: map[string]any{
				"rounds": snap.FailedRounds,
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
			zap.String("run_id", alert.RunID),
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
