package core

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// GoalStatus is the lifecycle state of a savings goal.
type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalPaused    GoalStatus = "paused"
	GoalCompleted GoalStatus = "completed"
	GoalCancelled GoalStatus = "cancelled"
)

// Contribution is one payment toward a goal.
type Contribution struct {
	ID            string    `json:"id"`
	Amount        Money     `json:"amount"`
	ContributorID string    `json:"contributorId"`
	Note          string    `json:"note,omitempty"`
	At            time.Time `json:"at"`
}

// AutoContribution is a standing contribution rule. The core only stores and
// serializes it; the worker decides when to act on it.
type AutoContribution struct {
	Enabled   bool   `json:"enabled"`
	Amount    *Money `json:"amount,omitempty"`
	Frequency string `json:"frequency,omitempty"`
}

// Goal tracks progress toward a target amount through contributions.
// Invariant: the current amount never exceeds the target; reaching it
// completes the goal automatically.
type Goal struct {
	id            string
	householdID   string
	name          string
	goalType      string
	target        Money
	current       Money
	targetDate    time.Time
	status        GoalStatus
	ownerIDs      []string
	auto          AutoContribution
	contributions []Contribution
	createdAt     time.Time
	updatedAt     time.Time
}

// GoalParams carries the constructor input for NewGoal.
type GoalParams struct {
	ID          string
	HouseholdID string
	Name        string
	Type        string
	Target      Money
	TargetDate  time.Time
	OwnerIDs    []string
	Auto        AutoContribution
}

// NewGoal validates params and creates an active goal with zero progress.
func NewGoal(p GoalParams) (*Goal, error) {
	if p.HouseholdID == "" {
		return nil, fmt.Errorf("household id is required")
	}
	if p.Name == "" {
		return nil, ErrEmptyName
	}
	if !p.Target.IsPositive() {
		return nil, ErrInvalidTarget
	}
	if len(p.OwnerIDs) == 0 {
		return nil, ErrNoOwners
	}
	if p.Auto.Amount != nil && p.Auto.Amount.Currency() != p.Target.Currency() {
		return nil, ErrCurrencyMismatch
	}

	id := p.ID
	if id == "" {
		id = NewID()
	}
	now := time.Now().UTC()
	zero, _ := Zero(p.Target.Currency())
	return &Goal{
		id:          id,
		householdID: p.HouseholdID,
		name:        p.Name,
		goalType:    p.Type,
		target:      p.Target,
		current:     zero,
		targetDate:  p.TargetDate,
		status:      GoalActive,
		ownerIDs:    append([]string(nil), p.OwnerIDs...),
		auto:        p.Auto,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

func (g *Goal) ID() string            { return g.id }
func (g *Goal) HouseholdID() string   { return g.householdID }
func (g *Goal) Name() string          { return g.name }
func (g *Goal) Type() string          { return g.goalType }
func (g *Goal) Target() Money         { return g.target }
func (g *Goal) Current() Money        { return g.current }
func (g *Goal) TargetDate() time.Time { return g.targetDate }
func (g *Goal) Status() GoalStatus    { return g.status }
func (g *Goal) CreatedAt() time.Time  { return g.createdAt }
func (g *Goal) UpdatedAt() time.Time  { return g.updatedAt }

// Owners returns a copy of the owner id list. A goal with more than one
// owner is shared.
func (g *Goal) Owners() []string { return append([]string(nil), g.ownerIDs...) }

// IsShared reports whether more than one partner owns the goal.
func (g *Goal) IsShared() bool { return len(g.ownerIDs) > 1 }

// Auto returns the standing contribution rule.
func (g *Goal) Auto() AutoContribution {
	out := g.auto
	if g.auto.Amount != nil {
		v := *g.auto.Amount
		out.Amount = &v
	}
	return out
}

// Contributions returns a copy of the contribution history in append order.
func (g *Goal) Contributions() []Contribution {
	return append([]Contribution(nil), g.contributions...)
}

// Remaining returns target minus current.
func (g *Goal) Remaining() Money {
	remaining, _ := g.target.Subtract(g.current)
	return remaining
}

// AddContribution applies a payment toward the goal. The amount must be
// positive, in the goal currency, and must not exceed the remaining amount;
// callers clamp overshooting contributions before calling. Reaching the
// target completes the goal and clamps current to the target exactly.
func (g *Goal) AddContribution(amount Money, contributorID, note string, at time.Time) (Contribution, error) {
	if g.status == GoalCompleted || g.status == GoalCancelled {
		return Contribution{}, ErrGoalClosed
	}
	if amount.Currency() != g.target.Currency() {
		return Contribution{}, ErrCurrencyMismatch
	}
	if !amount.IsPositive() {
		return Contribution{}, ErrInvalidAmount
	}
	if amount.Cents() > g.Remaining().Cents() {
		return Contribution{}, ErrContributionExceedsGoal
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	c := Contribution{
		ID:            NewID(),
		Amount:        amount,
		ContributorID: contributorID,
		Note:          note,
		At:            at,
	}
	g.contributions = append(g.contributions, c)
	g.current, _ = g.current.Add(amount)
	if g.current.Cents() >= g.target.Cents() {
		g.current = g.target
		g.status = GoalCompleted
	}
	g.updatedAt = time.Now().UTC()
	return c, nil
}

// RemoveContribution reverses a historical contribution. A completed goal
// reverts to active when the remaining total drops below the target, which
// after clamping is every removal.
func (g *Goal) RemoveContribution(id string) error {
	idx := -1
	for i, c := range g.contributions {
		if c.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrContributionNotFound
	}
	removed := g.contributions[idx]
	g.contributions = append(g.contributions[:idx], g.contributions[idx+1:]...)
	g.current, _ = g.current.Subtract(removed.Amount)
	if g.status == GoalCompleted && g.current.Cents() < g.target.Cents() {
		g.status = GoalActive
	}
	g.updatedAt = time.Now().UTC()
	return nil
}

// Pause puts an active goal on hold.
func (g *Goal) Pause() error {
	if g.status != GoalActive {
		return fmt.Errorf("%w: cannot pause from %s", ErrInvalidTransition, g.status)
	}
	g.status = GoalPaused
	g.updatedAt = time.Now().UTC()
	return nil
}

// Resume reactivates a paused goal.
func (g *Goal) Resume() error {
	if g.status != GoalPaused {
		return fmt.Errorf("%w: cannot resume from %s", ErrInvalidTransition, g.status)
	}
	g.status = GoalActive
	g.updatedAt = time.Now().UTC()
	return nil
}

// Cancel closes the goal from any non-terminal state.
func (g *Goal) Cancel() error {
	if g.status == GoalCompleted || g.status == GoalCancelled {
		return fmt.Errorf("%w: cannot cancel from %s", ErrInvalidTransition, g.status)
	}
	g.status = GoalCancelled
	g.updatedAt = time.Now().UTC()
	return nil
}

// Complete marks the goal completed explicitly, without touching the
// current amount.
func (g *Goal) Complete() error {
	if g.status != GoalActive {
		return fmt.Errorf("%w: cannot complete from %s", ErrInvalidTransition, g.status)
	}
	g.status = GoalCompleted
	g.updatedAt = time.Now().UTC()
	return nil
}

// ProgressPercent returns current/target as a percentage clamped to
// [0, 100], 0 when the target is zero.
func (g *Goal) ProgressPercent() float64 {
	if g.target.IsZero() {
		return 0
	}
	pct := float64(g.current.Cents()) / float64(g.target.Cents()) * 100
	return math.Min(math.Max(pct, 0), 100)
}

// IsOnTrack compares progress against elapsed time with a 10% tolerance:
// the goal is on track while progress is at least 90% of the elapsed-time
// fraction.
func (g *Goal) IsOnTrack(now time.Time) bool {
	if g.status == GoalCompleted {
		return true
	}
	if g.targetDate.IsZero() || !g.targetDate.After(g.createdAt) {
		return false
	}
	elapsed := now.Sub(g.createdAt).Seconds()
	window := g.targetDate.Sub(g.createdAt).Seconds()
	expected := math.Min(math.Max(elapsed/window, 0), 1) * 100
	return g.ProgressPercent() >= expected*0.9
}

// ProjectedCompletion linearly extrapolates the completion date from elapsed
// time and current progress. Nil when progress is zero.
func (g *Goal) ProjectedCompletion(now time.Time) *time.Time {
	progress := g.ProgressPercent()
	if progress <= 0 {
		return nil
	}
	elapsed := now.Sub(g.createdAt)
	total := time.Duration(float64(elapsed) / (progress / 100))
	projected := g.createdAt.Add(total)
	return &projected
}

type goalJSON struct {
	ID            string           `json:"id"`
	HouseholdID   string           `json:"householdId"`
	Name          string           `json:"name"`
	Type          string           `json:"type,omitempty"`
	Target        Money            `json:"targetAmount"`
	Current       Money            `json:"currentAmount"`
	Remaining     Money            `json:"remainingAmount"`
	Progress      float64          `json:"progressPercent"`
	TargetDate    time.Time        `json:"targetDate"`
	Status        GoalStatus       `json:"status"`
	OwnerIDs      []string         `json:"ownerIds"`
	Shared        bool             `json:"shared"`
	Auto          AutoContribution `json:"autoContribution"`
	Contributions []Contribution   `json:"contributions"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// MarshalJSON emits the canonical snapshot, derived fields included.
func (g *Goal) MarshalJSON() ([]byte, error) {
	return json.Marshal(goalJSON{
		ID:            g.id,
		HouseholdID:   g.householdID,
		Name:          g.name,
		Type:          g.goalType,
		Target:        g.target,
		Current:       g.current,
		Remaining:     g.Remaining(),
		Progress:      math.Round(g.ProgressPercent()*100) / 100,
		TargetDate:    g.targetDate,
		Status:        g.status,
		OwnerIDs:      g.Owners(),
		Shared:        g.IsShared(),
		Auto:          g.Auto(),
		Contributions: g.Contributions(),
		CreatedAt:     g.createdAt,
		UpdatedAt:     g.updatedAt,
	})
}

// UnmarshalJSON rehydrates a goal from its canonical snapshot.
func (g *Goal) UnmarshalJSON(data []byte) error {
	var raw goalJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*g = Goal{
		id:            raw.ID,
		householdID:   raw.HouseholdID,
		name:          raw.Name,
		goalType:      raw.Type,
		target:        raw.Target,
		current:       raw.Current,
		targetDate:    raw.TargetDate,
		status:        raw.Status,
		ownerIDs:      raw.OwnerIDs,
		auto:          raw.Auto,
		contributions: raw.Contributions,
		createdAt:     raw.CreatedAt,
		updatedAt:     raw.UpdatedAt,
	}
	return nil
}
