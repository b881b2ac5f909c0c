package worker

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"conti/internal/amqp"
	"conti/internal/core"
	"conti/internal/storage"
)

type recordingNotifier struct {
	delivered []string
	summaries []string
	fail      bool
}

func (n *recordingNotifier) Notify(_ context.Context, msg *amqp.AlertMessage, summary string) error {
	if n.fail {
		return errors.New("channel down")
	}
	n.delivered = append(n.delivered, msg.ID)
	n.summaries = append(n.summaries, summary)
	return nil
}

func testRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "conti.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestProcessPendingAlertsDelivers(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	for _, id := range []string{"al-1", "al-2"} {
		if err := repo.EnqueueAlert(ctx, id, "hh-1", amqp.AlertEnvelopeWarn, "env-1"); err != nil {
			t.Fatalf("EnqueueAlert: %v", err)
		}
	}

	notifier := &recordingNotifier{}
	w := NewAlertWorker(repo, nil, notifier, 10, time.Second)

	if err := w.ProcessPendingAlerts(ctx); err != nil {
		t.Fatalf("ProcessPendingAlerts: %v", err)
	}

	if len(notifier.delivered) != 2 {
		t.Fatalf("delivered = %d, want 2", len(notifier.delivered))
	}

	pending, err := repo.GetPendingAlerts(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingAlerts: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after delivery = %d, want 0", len(pending))
	}
}

func TestFailedDeliveryKeepsAlertPending(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	if err := repo.EnqueueAlert(ctx, "al-1", "hh-1", amqp.AlertGoalCompleted, "goal-1"); err != nil {
		t.Fatalf("EnqueueAlert: %v", err)
	}

	notifier := &recordingNotifier{fail: true}
	w := NewAlertWorker(repo, nil, notifier, 10, time.Second)

	if err := w.ProcessPendingAlerts(ctx); err != nil {
		t.Fatalf("ProcessPendingAlerts: %v", err)
	}

	pending, err := repo.GetPendingAlerts(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingAlerts: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1 after failed delivery", len(pending))
	}
	if pending[0].Attempts != 1 {
		t.Errorf("attempts = %d, want 1", pending[0].Attempts)
	}

	// Two more failures park the alert.
	for i := 0; i < 2; i++ {
		if err := w.ProcessPendingAlerts(ctx); err != nil {
			t.Fatalf("ProcessPendingAlerts: %v", err)
		}
	}
	pending, err = repo.GetPendingAlerts(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingAlerts: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0 once the alert is parked", len(pending))
	}
}

func TestDescribeEnvelopeSummary(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	limit, err := core.FromCents(10000, "BRL")
	if err != nil {
		t.Fatalf("FromCents: %v", err)
	}
	spent, err := core.FromCents(8000, "BRL")
	if err != nil {
		t.Fatalf("FromCents: %v", err)
	}
	e, err := core.NewBudgetEnvelope(core.EnvelopeParams{
		HouseholdID: "hh-1",
		Name:        "groceries",
		Type:        core.EnvelopeShared,
		Period:      core.PeriodMonthly,
		Limit:       limit,
		Thresholds:  core.AlertThresholds{WarnPercent: 75, CriticalPercent: 90},
	})
	if err != nil {
		t.Fatalf("NewBudgetEnvelope: %v", err)
	}
	if err := e.AddSpending(spent); err != nil {
		t.Fatalf("AddSpending: %v", err)
	}
	if err := repo.SaveEnvelope(ctx, e); err != nil {
		t.Fatalf("SaveEnvelope: %v", err)
	}
	if err := repo.EnqueueAlert(ctx, "al-1", "hh-1", amqp.AlertEnvelopeWarn, e.ID()); err != nil {
		t.Fatalf("EnqueueAlert: %v", err)
	}

	notifier := &recordingNotifier{}
	w := NewAlertWorker(repo, nil, notifier, 10, time.Second)
	if err := w.ProcessPendingAlerts(ctx); err != nil {
		t.Fatalf("ProcessPendingAlerts: %v", err)
	}

	if len(notifier.summaries) != 1 {
		t.Fatalf("summaries = %d, want 1", len(notifier.summaries))
	}
	if !strings.Contains(notifier.summaries[0], "groceries") || !strings.Contains(notifier.summaries[0], "80.0%") {
		t.Errorf("summary = %q, want envelope name and utilization", notifier.summaries[0])
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	repo := testRepo(t)
	w := NewAlertWorker(repo, nil, &recordingNotifier{}, 10, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil on cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancel")
	}
}
