package core

import (
	"errors"
	"testing"
	"time"
)

func testGoal(t *testing.T, targetCents int64) *Goal {
	t.Helper()
	g, err := NewGoal(GoalParams{
		HouseholdID: "hh-1",
		Name:        "vacation",
		Type:        "travel",
		Target:      brl(t, targetCents),
		TargetDate:  time.Now().AddDate(1, 0, 0),
		OwnerIDs:    []string{"partner-a", "partner-b"},
	})
	if err != nil {
		t.Fatalf("NewGoal: %v", err)
	}
	return g
}

func TestNewGoalValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*GoalParams)
		wantErr error
	}{
		{"missing name", func(p *GoalParams) { p.Name = "" }, ErrEmptyName},
		{"zero target", func(p *GoalParams) { p.Target = brl(t, 0) }, ErrInvalidTarget},
		{"negative target", func(p *GoalParams) { p.Target = brl(t, -100) }, ErrInvalidTarget},
		{"no owners", func(p *GoalParams) { p.OwnerIDs = nil }, ErrNoOwners},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := GoalParams{
				HouseholdID: "hh-1",
				Name:        "car",
				Target:      brl(t, 100000),
				OwnerIDs:    []string{"partner-a"},
			}
			tt.mutate(&p)
			if _, err := NewGoal(p); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestGoalContributions(t *testing.T) {
	g := testGoal(t, 10000)

	c, err := g.AddContribution(brl(t, 4000), "partner-a", "first deposit", time.Time{})
	if err != nil {
		t.Fatalf("add contribution: %v", err)
	}
	if c.ID == "" {
		t.Error("contribution must get an id")
	}
	if g.Current().Cents() != 4000 {
		t.Errorf("current = %d, want 4000", g.Current().Cents())
	}
	if g.Remaining().Cents() != 6000 {
		t.Errorf("remaining = %d, want 6000", g.Remaining().Cents())
	}
	if g.ProgressPercent() != 40 {
		t.Errorf("progress = %v, want 40", g.ProgressPercent())
	}

	eur, _ := FromCents(100, "EUR")
	if _, err := g.AddContribution(eur, "partner-a", "", time.Time{}); err != ErrCurrencyMismatch {
		t.Errorf("cross-currency error = %v, want ErrCurrencyMismatch", err)
	}
	if _, err := g.AddContribution(brl(t, 0), "partner-a", "", time.Time{}); err != ErrInvalidAmount {
		t.Errorf("zero amount error = %v, want ErrInvalidAmount", err)
	}
	if _, err := g.AddContribution(brl(t, 6001), "partner-b", "", time.Time{}); err != ErrContributionExceedsGoal {
		t.Errorf("overshoot error = %v, want ErrContributionExceedsGoal", err)
	}
}

func TestGoalAutoCompletion(t *testing.T) {
	g := testGoal(t, 10000)

	if _, err := g.AddContribution(brl(t, 10000), "partner-a", "", time.Time{}); err != nil {
		t.Fatalf("add contribution: %v", err)
	}
	if g.Status() != GoalCompleted {
		t.Errorf("status = %s, want completed", g.Status())
	}
	if g.Current().Cents() != 10000 {
		t.Errorf("current = %d, must equal target exactly", g.Current().Cents())
	}
	if g.ProgressPercent() != 100 {
		t.Errorf("progress = %v, want 100", g.ProgressPercent())
	}

	if _, err := g.AddContribution(brl(t, 1), "partner-a", "", time.Time{}); err != ErrGoalClosed {
		t.Errorf("contribution to completed goal error = %v, want ErrGoalClosed", err)
	}
}

func TestGoalRemoveContribution(t *testing.T) {
	g := testGoal(t, 10000)
	if _, err := g.AddContribution(brl(t, 6000), "partner-a", "", time.Time{}); err != nil {
		t.Fatalf("add contribution: %v", err)
	}
	c2, err := g.AddContribution(brl(t, 4000), "partner-b", "", time.Time{})
	if err != nil {
		t.Fatalf("add contribution: %v", err)
	}

	if g.Status() != GoalCompleted {
		t.Fatalf("status = %s, want completed", g.Status())
	}

	if err := g.RemoveContribution(c2.ID); err != nil {
		t.Fatalf("remove contribution: %v", err)
	}
	if g.Status() != GoalActive {
		t.Errorf("status after removal = %s, want active", g.Status())
	}
	if g.Current().Cents() != 6000 {
		t.Errorf("current = %d, want 6000", g.Current().Cents())
	}
	if len(g.Contributions()) != 1 {
		t.Errorf("contributions = %d, want 1", len(g.Contributions()))
	}

	if err := g.RemoveContribution("nope"); err != ErrContributionNotFound {
		t.Errorf("unknown id error = %v, want ErrContributionNotFound", err)
	}
}

func TestGoalStateMachine(t *testing.T) {
	g := testGoal(t, 10000)

	if err := g.Resume(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("resume active error = %v, want ErrInvalidTransition", err)
	}
	if err := g.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := g.Pause(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("pause paused error = %v, want ErrInvalidTransition", err)
	}
	if err := g.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}

	if err := g.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := g.Cancel(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("cancel cancelled error = %v, want ErrInvalidTransition", err)
	}
	if _, err := g.AddContribution(brl(t, 100), "partner-a", "", time.Time{}); err != ErrGoalClosed {
		t.Errorf("contribution to cancelled goal error = %v, want ErrGoalClosed", err)
	}
}

func TestGoalProjections(t *testing.T) {
	g := testGoal(t, 10000)

	if g.ProjectedCompletion(time.Now()) != nil {
		t.Error("projection with zero progress must be nil")
	}

	if _, err := g.AddContribution(brl(t, 5000), "partner-a", "", time.Time{}); err != nil {
		t.Fatalf("add contribution: %v", err)
	}

	// Halfway through the amount after ~30 of 365 days: comfortably on track
	// and projected to finish around day 60.
	now := g.CreatedAt().AddDate(0, 0, 30)
	if !g.IsOnTrack(now) {
		t.Error("50% progress after 30/365 days must be on track")
	}
	projected := g.ProjectedCompletion(now)
	if projected == nil {
		t.Fatal("projection must exist once progress is positive")
	}
	want := g.CreatedAt().AddDate(0, 0, 60)
	if diff := projected.Sub(want); diff < -24*time.Hour || diff > 24*time.Hour {
		t.Errorf("projected = %v, want about %v", projected, want)
	}

	// 5% progress after 300 of 365 days: far behind.
	slow := testGoal(t, 100000)
	if _, err := slow.AddContribution(brl(t, 5000), "partner-a", "", time.Time{}); err != nil {
		t.Fatalf("add contribution: %v", err)
	}
	if slow.IsOnTrack(slow.CreatedAt().AddDate(0, 0, 300)) {
		t.Error("5% progress after 300/365 days must be behind")
	}
}

func TestGoalOwnersDefensiveCopy(t *testing.T) {
	g := testGoal(t, 10000)
	owners := g.Owners()
	owners[0] = "intruder"
	if g.Owners()[0] != "partner-a" {
		t.Error("mutating returned owners must not affect the goal")
	}
	if !g.IsShared() {
		t.Error("two owners means shared")
	}
}
