package service

import (
	"context"
	"errors"

	"github.com/fiufit-grupo-4/goals-microservice/internal/domain"
	"github.com/fiufit-grupo-4/goals-microservice/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// StartGoal moves a goal to INITIATED.
func (s *goalService) StartGoal(ctx context.Context, caller domain.Caller, goalID primitive.ObjectID) (*domain.Goal, error) {
	return s.transition(ctx, caller, goalID, domain.StateInitiated)
}

// CompleteGoal moves a goal to COMPLETE and runs the completion side effects.
// The returned goal is committed even when the error is ErrDownstreamUnavailable.
func (s *goalService) CompleteGoal(ctx context.Context, caller domain.Caller, goalID primitive.ObjectID) (*domain.Goal, error) {
	return s.transition(ctx, caller, goalID, domain.StateComplete)
}

// StopGoal moves a started goal to STOPPED.
func (s *goalService) StopGoal(ctx context.Context, caller domain.Caller, goalID primitive.ObjectID) (*domain.Goal, error) {
	return s.transition(ctx, caller, goalID, domain.StateStopped)
}

// transition plans the requested change against the stored goal and commits it with a
// compare-and-set on the state it was planned from. A lost race re-plans from a fresh read.
func (s *goalService) transition(ctx context.Context, caller domain.Caller, goalID primitive.ObjectID, requested domain.State) (*domain.Goal, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		goal, err := s.loadOwned(ctx, caller, goalID)
		if err != nil {
			return nil, err
		}

		change, err := domain.PlanTransition(goal, requested, s.now())
		if err != nil {
			return nil, err
		}

		updated, err := s.repo.CompareAndSetState(ctx, goalID, change)
		if errors.Is(err, repository.ErrStateChanged) {
			continue
		}
		if err != nil {
			return nil, s.mapRepoErr(err, "update goal state")
		}
		s.observeTransition(updated, change)

		if change.To == domain.StateComplete {
			return updated, s.notifyCompletion(ctx, caller, updated)
		}
		return updated, nil
	}
	return nil, ErrConcurrentUpdate
}
