package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/fiufit-grupo-4/goals-microservice/internal/domain"
	"github.com/fiufit-grupo-4/goals-microservice/internal/repository"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ProgressOutcome is what a progress report did to a single goal.
type ProgressOutcome string

const (
	OutcomeUpdated   ProgressOutcome = "updated"
	OutcomeCompleted ProgressOutcome = "completed"
	OutcomeExpired   ProgressOutcome = "expired"
	OutcomeSkipped   ProgressOutcome = "skipped"
	OutcomeFailed    ProgressOutcome = "failed"
)

// ProgressResult describes one goal after a batch progress report.
type ProgressResult struct {
	GoalID   string          `json:"goal_id"`
	Outcome  ProgressOutcome `json:"outcome"`
	State    domain.State    `json:"state"`
	Progress float64         `json:"progress"`
	Error    string          `json:"error,omitempty"`
}

// ProgressSummary is the result of a batch progress report.
type ProgressSummary struct {
	Results   []ProgressResult `json:"results"`
	Updated   int              `json:"updated"`
	Completed int              `json:"completed"`
	Expired   int              `json:"expired"`
	Skipped   int              `json:"skipped"`
	Failed    int              `json:"failed"`
}

func (p *ProgressSummary) add(r ProgressResult) {
	p.Results = append(p.Results, r)
	switch r.Outcome {
	case OutcomeUpdated:
		p.Updated++
	case OutcomeCompleted:
		p.Completed++
	case OutcomeExpired:
		p.Expired++
	case OutcomeSkipped:
		p.Skipped++
	case OutcomeFailed:
		p.Failed++
	}
}

// progressStep is the outcome of applying progress to one goal.
type progressStep struct {
	goal    *domain.Goal
	outcome ProgressOutcome
	// notifyErr is set when the goal completed but a side effect failed.
	notifyErr error
}

// ApplyProgress adds raw steps to a single goal. The returned goal is committed even when
// the error is ErrDownstreamUnavailable.
func (s *goalService) ApplyProgress(ctx context.Context, caller domain.Caller, goalID primitive.ObjectID, steps float64) (*domain.Goal, error) {
	if err := validateSteps(steps); err != nil {
		return nil, err
	}
	goal, err := s.loadOwned(ctx, caller, goalID)
	if err != nil {
		return nil, err
	}

	step, err := s.applyProgress(ctx, caller, goal, steps)
	if err != nil {
		s.metrics.ObserveProgress(string(OutcomeFailed))
		return nil, err
	}
	s.metrics.ObserveProgress(string(step.outcome))
	return step.goal, step.notifyErr
}

// ApplyProgressForUser adds raw steps to every goal of the caller. Goals are processed one
// at a time and a failure on one goal never stops the others.
func (s *goalService) ApplyProgressForUser(ctx context.Context, caller domain.Caller, steps float64) (*ProgressSummary, error) {
	if err := validateSteps(steps); err != nil {
		return nil, err
	}
	goals, err := s.repo.ListByUser(ctx, caller.UserID, 0)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}

	summary := &ProgressSummary{Results: make([]ProgressResult, 0, len(goals))}
	for i := range goals {
		goal := &goals[i]
		log := s.log.WithFields(logrus.Fields{"goal_id": goal.ID.Hex(), "user_id": caller.UserID.Hex()})

		step, err := s.applyProgress(ctx, caller, goal, steps)
		if err != nil {
			log.WithError(err).Error("Failed to apply progress")
			s.metrics.ObserveProgress(string(OutcomeFailed))
			summary.add(ProgressResult{
				GoalID:   goal.ID.Hex(),
				Outcome:  OutcomeFailed,
				State:    goal.State,
				Progress: goal.Progress,
				Error:    err.Error(),
			})
			continue
		}

		result := ProgressResult{
			GoalID:   step.goal.ID.Hex(),
			Outcome:  step.outcome,
			State:    step.goal.State,
			Progress: step.goal.Progress,
		}
		if step.notifyErr != nil {
			// Completion is committed; the failed side effect is only reported.
			log.WithError(step.notifyErr).Error("Completion side effects failed during batch progress")
			result.Error = step.notifyErr.Error()
		}
		s.metrics.ObserveProgress(string(step.outcome))
		summary.add(result)
	}

	s.log.WithFields(logrus.Fields{
		"user_id":   caller.UserID.Hex(),
		"updated":   summary.Updated,
		"completed": summary.Completed,
		"expired":   summary.Expired,
		"failed":    summary.Failed,
	}).Info("Progress applied")
	return summary, nil
}

// applyProgress runs the per-goal rules: expiry first, then only INITIATED goals take
// progress, and reaching the target completes the goal.
func (s *goalService) applyProgress(ctx context.Context, caller domain.Caller, goal *domain.Goal, steps float64) (progressStep, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		if attempt > 0 {
			fresh, err := s.repo.GetByID(ctx, goal.ID)
			if err != nil {
				return progressStep{}, s.mapRepoErr(err, "get goal")
			}
			goal = fresh
		}
		now := s.now()

		// 1. Expiry check
		if goal.IsExpiredAt(now) {
			change := domain.ExpireChange(goal)
			updated, err := s.repo.CompareAndSetState(ctx, goal.ID, change)
			if errors.Is(err, repository.ErrStateChanged) {
				continue
			}
			if err != nil {
				return progressStep{}, s.mapRepoErr(err, "expire goal")
			}
			s.observeTransition(updated, change)
			return progressStep{goal: updated, outcome: OutcomeExpired}, nil
		}

		// 2. Only active goals accumulate progress
		if goal.State != domain.StateInitiated {
			return progressStep{goal: goal, outcome: OutcomeSkipped}, nil
		}

		// 3. Atomic increment
		amount, err := domain.ConvertSteps(goal.Metric, steps)
		if err != nil {
			return progressStep{}, err
		}
		updated, err := s.repo.IncrementProgress(ctx, goal.ID, amount, now)
		if errors.Is(err, repository.ErrStateChanged) {
			continue
		}
		if err != nil {
			return progressStep{}, s.mapRepoErr(err, "increment progress")
		}
		if updated.Progress < updated.QuantityTarget {
			return progressStep{goal: updated, outcome: OutcomeUpdated}, nil
		}

		// 4. Target reached; only the caller that wins the state change notifies
		change := domain.CompleteChange(updated, now)
		completed, err := s.repo.CompareAndSetState(ctx, goal.ID, change)
		if errors.Is(err, repository.ErrStateChanged) {
			current, getErr := s.repo.GetByID(ctx, goal.ID)
			if getErr != nil {
				return progressStep{}, s.mapRepoErr(getErr, "get goal")
			}
			return progressStep{goal: current, outcome: OutcomeUpdated}, nil
		}
		if err != nil {
			return progressStep{}, s.mapRepoErr(err, "complete goal")
		}
		s.observeTransition(completed, change)

		return progressStep{
			goal:      completed,
			outcome:   OutcomeCompleted,
			notifyErr: s.notifyCompletion(ctx, caller, completed),
		}, nil
	}
	return progressStep{}, ErrConcurrentUpdate
}

func validateSteps(steps float64) error {
	if math.IsNaN(steps) || math.IsInf(steps, 0) || steps < 0 {
		return fmt.Errorf("%w: progress must be a non-negative number", ErrValidation)
	}
	return nil
}
