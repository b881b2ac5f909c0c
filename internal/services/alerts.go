package services

import (
	"context"
	"log/slog"

	"conti/internal/amqp"
	"conti/internal/core"
	"conti/internal/storage"
)

// raiseAlert records an alert durably and then tries to push it to the broker
// right away. A failed publish is not an error for the caller: the alert stays
// pending and the worker will pick it up on its next pass.
func raiseAlert(ctx context.Context, repo *storage.SQLiteRepository, client *amqp.Client, householdID, kind, subjectID string) {
	id := core.NewID()

	if err := repo.EnqueueAlert(ctx, id, householdID, kind, subjectID); err != nil {
		slog.ErrorContext(ctx, "Failed to enqueue alert",
			"household_id", householdID,
			"kind", kind,
			"subject_id", subjectID,
			"error", err)
		return
	}

	if client == nil {
		slog.WarnContext(ctx, "AMQP client not available, alert left for worker",
			"alert_id", id, "kind", kind)
		return
	}

	msg := amqp.NewAlertMessage(id, householdID, kind, subjectID)
	if err := client.PublishAlert(ctx, msg); err != nil {
		slog.WarnContext(ctx, "Failed to publish alert, worker will retry",
			"alert_id", id, "kind", kind, "error", err)
	}
}
