// Package worker delivers queued budget alerts to the household.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"conti/internal/amqp"
	"conti/internal/storage"
)

// Notifier delivers an alert to its household. Implementations decide the
// channel; the worker only cares whether delivery succeeded.
type Notifier interface {
	Notify(ctx context.Context, msg *amqp.AlertMessage, summary string) error
}

// LogNotifier writes alerts to the structured log. It stands in until a real
// delivery channel (mail, push) is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, msg *amqp.AlertMessage, summary string) error {
	slog.InfoContext(ctx, "Alert delivered",
		"alert_id", msg.ID,
		"household_id", msg.HouseholdID,
		"kind", msg.Kind,
		"subject_id", msg.SubjectID,
		"summary", summary)
	return nil
}

// AlertWorker consumes alert messages from AMQP and sweeps the pending table
// as a backup for messages the broker lost.
type AlertWorker struct {
	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client
	notifier   Notifier
	batchSize  int
	interval   time.Duration
}

func NewAlertWorker(storage *storage.SQLiteRepository, amqpClient *amqp.Client, notifier Notifier, batchSize int, interval time.Duration) *AlertWorker {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &AlertWorker{
		storage:    storage,
		amqpClient: amqpClient,
		notifier:   notifier,
		batchSize:  batchSize,
		interval:   interval,
	}
}

// Run starts the AMQP consumer and the pending sweep and blocks until the
// context is cancelled or one of them fails.
func (w *AlertWorker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if w.amqpClient != nil {
		g.Go(func() error {
			err := w.amqpClient.ConsumeAlerts(ctx, func(msg *amqp.AlertMessage) error {
				return w.HandleAlertMessage(ctx, msg)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		if err := w.ProcessPendingAlerts(ctx); err != nil {
			slog.ErrorContext(ctx, "Startup alert sweep failed", "error", err)
		}

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := w.ProcessPendingAlerts(ctx); err != nil {
					slog.ErrorContext(ctx, "Alert sweep failed", "error", err)
				}
			}
		}
	})

	return g.Wait()
}

// HandleAlertMessage delivers a single alert from the queue.
func (w *AlertWorker) HandleAlertMessage(ctx context.Context, msg *amqp.AlertMessage) error {
	summary := w.describe(ctx, msg.Kind, msg.SubjectID)

	if err := w.notifier.Notify(ctx, msg, summary); err != nil {
		if markErr := w.storage.MarkAlertError(ctx, msg.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark alert error",
				"alert_id", msg.ID, "error", markErr)
		}
		return fmt.Errorf("notify alert %s: %w", msg.ID, err)
	}

	if err := w.storage.MarkAlertDelivered(ctx, msg.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark alert delivered",
			"alert_id", msg.ID, "error", err)
	}
	return nil
}

// ProcessPendingAlerts delivers alerts still sitting in the table. This is
// the backup path for broker outages and lost messages.
func (w *AlertWorker) ProcessPendingAlerts(ctx context.Context) error {
	pending, err := w.storage.GetPendingAlerts(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending alerts: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending alerts", "count", len(pending))

	for _, alert := range pending {
		msg := &amqp.AlertMessage{
			ID:          alert.ID,
			HouseholdID: alert.HouseholdID,
			Kind:        alert.Kind,
			SubjectID:   alert.SubjectID,
			Timestamp:   alert.CreatedAt,
		}
		if err := w.HandleAlertMessage(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "Failed to deliver pending alert",
				"alert_id", alert.ID, "error", err)
		}
	}
	return nil
}

// describe builds a short human summary for the alert from the current state
// of its subject. Lookups are best-effort; a missing subject still alerts.
func (w *AlertWorker) describe(ctx context.Context, kind, subjectID string) string {
	switch kind {
	case amqp.AlertEnvelopeWarn, amqp.AlertEnvelopeCritical:
		e, err := w.storage.GetEnvelope(ctx, subjectID)
		if err != nil {
			return fmt.Sprintf("envelope %s", subjectID)
		}
		return fmt.Sprintf("envelope %q at %.1f%% of %s", e.Name(), e.UtilizationPercent(), e.Limit().Format())
	case amqp.AlertGoalCompleted:
		g, err := w.storage.GetGoal(ctx, subjectID)
		if err != nil {
			return fmt.Sprintf("goal %s", subjectID)
		}
		return fmt.Sprintf("goal %q reached its target of %s", g.Name(), g.Target().Format())
	case amqp.AlertAgreementDeviation:
		a, err := w.storage.GetAgreement(ctx, subjectID)
		if err != nil {
			return fmt.Sprintf("agreement %s", subjectID)
		}
		return fmt.Sprintf("spending drifted from agreement %q beyond %.0f%%", a.Name(), a.Alerts().ThresholdPercent)
	default:
		return fmt.Sprintf("%s for %s", kind, subjectID)
	}
}
