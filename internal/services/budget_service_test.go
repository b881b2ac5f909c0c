package services

import (
	"context"
	"testing"
	"time"

	"conti/internal/core"
	"conti/internal/storage"
)

func monthlyEnvelope(t *testing.T, repo *storage.SQLiteRepository, name string, limitCents int64, rollover core.RolloverPolicy, now time.Time) *core.BudgetEnvelope {
	t.Helper()
	e, err := core.NewBudgetEnvelope(core.EnvelopeParams{
		HouseholdID: "hh-1",
		Name:        name,
		Type:        core.EnvelopeShared,
		Period:      core.PeriodMonthly,
		Limit:       money(t, limitCents),
		Rollover:    rollover,
		Thresholds:  core.AlertThresholds{WarnPercent: 75, CriticalPercent: 90},
		Now:         now,
	})
	if err != nil {
		t.Fatalf("NewBudgetEnvelope: %v", err)
	}
	if err := repo.SaveEnvelope(context.Background(), e); err != nil {
		t.Fatalf("SaveEnvelope: %v", err)
	}
	return e
}

func TestCloseOutPeriodsCreditsRollover(t *testing.T) {
	repo := testStorage(t)
	ctx := context.Background()
	march := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	e := monthlyEnvelope(t, repo, "groceries", 10000, core.RolloverPolicy{Enabled: true}, march)
	if err := e.AddSpending(money(t, 4000)); err != nil {
		t.Fatalf("AddSpending: %v", err)
	}
	if err := repo.SaveEnvelope(ctx, e); err != nil {
		t.Fatalf("SaveEnvelope: %v", err)
	}

	svc := NewBudgetService(repo, nil)
	results, err := svc.CloseOutPeriods(ctx, "hh-1", time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("CloseOutPeriods: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if results[0].Rollover.Cents() != 6000 {
		t.Errorf("rollover = %d, want 6000", results[0].Rollover.Cents())
	}

	loaded, err := repo.GetEnvelope(ctx, e.ID())
	if err != nil {
		t.Fatalf("GetEnvelope: %v", err)
	}
	if loaded.Available().Cents() != 16000 {
		t.Errorf("available = %d, want 16000 (limit plus rollover)", loaded.Available().Cents())
	}
	if !loaded.PeriodStart().Equal(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("period start = %v, want 2025-04-01", loaded.PeriodStart())
	}
}

func TestCloseOutPeriodsSkipsCurrentPeriod(t *testing.T) {
	repo := testStorage(t)
	march := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	monthlyEnvelope(t, repo, "groceries", 10000, core.RolloverPolicy{}, march)

	svc := NewBudgetService(repo, nil)
	results, err := svc.CloseOutPeriods(context.Background(), "hh-1", march.AddDate(0, 0, 5))
	if err != nil {
		t.Fatalf("CloseOutPeriods: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %d, want 0 for an open period", len(results))
	}
}

func TestCheckThresholds(t *testing.T) {
	repo := testStorage(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	quiet := monthlyEnvelope(t, repo, "quiet", 10000, core.RolloverPolicy{}, now)
	hot := monthlyEnvelope(t, repo, "hot", 10000, core.RolloverPolicy{}, now)
	if err := hot.AddSpending(money(t, 9500)); err != nil {
		t.Fatalf("AddSpending: %v", err)
	}
	if err := repo.SaveEnvelope(ctx, hot); err != nil {
		t.Fatalf("SaveEnvelope: %v", err)
	}

	svc := NewBudgetService(repo, nil)
	if err := svc.CheckThresholds(ctx, "hh-1"); err != nil {
		t.Fatalf("CheckThresholds: %v", err)
	}

	pending, err := repo.GetPendingAlerts(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingAlerts: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %+v, want one alert", pending)
	}
	if pending[0].Kind != "envelope_critical" || pending[0].SubjectID != hot.ID() {
		t.Errorf("alert = %+v, want envelope_critical for the hot envelope", pending[0])
	}
	if pending[0].SubjectID == quiet.ID() {
		t.Error("quiet envelope must not alert")
	}
}
