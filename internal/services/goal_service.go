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

// GoalService applies contributions to savings goals and announces
// completions.
type GoalService struct {
	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client
}

func NewGoalService(storage *storage.SQLiteRepository, amqpClient *amqp.Client) *GoalService {
	return &GoalService{
		storage:    storage,
		amqpClient: amqpClient,
	}
}

// Contribute adds a contribution and persists the goal. Completing the goal
// raises a goal_completed alert.
func (s *GoalService) Contribute(ctx context.Context, goalID string, amount core.Money, contributorID, note string, at time.Time) (*core.Goal, core.Contribution, error) {
	goal, err := s.storage.GetGoal(ctx, goalID)
	if err != nil {
		return nil, core.Contribution{}, fmt.Errorf("get goal: %w", err)
	}

	wasCompleted := goal.Status() == core.GoalCompleted
	contribution, err := goal.AddContribution(amount, contributorID, note, at)
	if err != nil {
		return nil, core.Contribution{}, err
	}

	if err := s.storage.SaveGoal(ctx, goal); err != nil {
		return nil, core.Contribution{}, fmt.Errorf("save goal: %w", err)
	}

	slog.InfoContext(ctx, "Goal contribution recorded",
		"goal_id", goal.ID(),
		"contributor_id", contributorID,
		"amount_cents", amount.Cents(),
		"progress_percent", goal.ProgressPercent())

	if !wasCompleted && goal.Status() == core.GoalCompleted {
		raiseAlert(ctx, s.storage, s.amqpClient, goal.HouseholdID(), amqp.AlertGoalCompleted, goal.ID())
	}

	return goal, contribution, nil
}

// Withdraw removes a contribution by id and persists the goal.
func (s *GoalService) Withdraw(ctx context.Context, goalID, contributionID string) (*core.Goal, error) {
	goal, err := s.storage.GetGoal(ctx, goalID)
	if err != nil {
		return nil, fmt.Errorf("get goal: %w", err)
	}

	if err := goal.RemoveContribution(contributionID); err != nil {
		return nil, err
	}

	if err := s.storage.SaveGoal(ctx, goal); err != nil {
		return nil, fmt.Errorf("save goal: %w", err)
	}

	slog.InfoContext(ctx, "Goal contribution removed",
		"goal_id", goal.ID(),
		"contribution_id", contributionID)

	return goal, nil
}
