package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"conti/internal/amqp"
	"conti/internal/core"
	"conti/internal/storage"
)

// BudgetService owns envelope lifecycle work that is not tied to a single
// transaction, chiefly period close-out with rollover.
type BudgetService struct {
	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client
}

func NewBudgetService(storage *storage.SQLiteRepository, amqpClient *amqp.Client) *BudgetService {
	return &BudgetService{
		storage:    storage,
		amqpClient: amqpClient,
	}
}

// RolloverResult reports one envelope's close-out.
type RolloverResult struct {
	EnvelopeID string     `json:"envelopeId"`
	Name       string     `json:"name"`
	Rollover   core.Money `json:"rollover"`
}

// CloseOutPeriods resets every envelope whose period has elapsed and credits
// the rollover into the new period. The credit is booked as negative spending
// so the new period starts with limit plus rollover available.
func (s *BudgetService) CloseOutPeriods(ctx context.Context, householdID string, now time.Time) ([]RolloverResult, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	envelopes, err := s.storage.ListEnvelopes(ctx, householdID)
	if err != nil {
		return nil, fmt.Errorf("list envelopes: %w", err)
	}

	var results []RolloverResult
	for _, e := range envelopes {
		if !now.After(e.PeriodEnd()) {
			continue
		}

		rollover, err := e.ResetForNewPeriod(now)
		if err != nil {
			return results, fmt.Errorf("reset envelope %s: %w", e.ID(), err)
		}
		if rollover.IsPositive() {
			if err := e.RemoveSpending(rollover); err != nil {
				return results, fmt.Errorf("credit rollover on %s: %w", e.ID(), err)
			}
		}
		if err := s.storage.SaveEnvelope(ctx, e); err != nil {
			return results, fmt.Errorf("save envelope %s: %w", e.ID(), err)
		}

		results = append(results, RolloverResult{
			EnvelopeID: e.ID(),
			Name:       e.Name(),
			Rollover:   rollover,
		})

		slog.InfoContext(ctx, "Envelope period closed",
			"envelope_id", e.ID(),
			"household_id", householdID,
			"rollover_cents", rollover.Cents())
	}

	return results, nil
}

// CheckThresholds re-evaluates every envelope and raises alerts for those in
// the warn or critical band. Used by the worker for periodic sweeps.
func (s *BudgetService) CheckThresholds(ctx context.Context, householdID string) error {
	envelopes, err := s.storage.ListEnvelopes(ctx, householdID)
	if err != nil {
		return fmt.Errorf("list envelopes: %w", err)
	}

	for _, e := range envelopes {
		switch {
		case e.ShouldAlertCritical():
			raiseAlert(ctx, s.storage, s.amqpClient, e.HouseholdID(), amqp.AlertEnvelopeCritical, e.ID())
		case e.ShouldWarn():
			raiseAlert(ctx, s.storage, s.amqpClient, e.HouseholdID(), amqp.AlertEnvelopeWarn, e.ID())
		}
	}
	return nil
}
