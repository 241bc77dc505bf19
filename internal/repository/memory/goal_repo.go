// Package memory provides an in-process goal store with the same conditional
// update semantics as the Mongo repository.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fiufit-grupo-4/goals-microservice/internal/domain"
	"github.com/fiufit-grupo-4/goals-microservice/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type goalRepository struct {
	mu    sync.Mutex
	goals map[primitive.ObjectID]domain.Goal
	now   func() time.Time
}

// NewGoalRepository creates an empty in-memory goal repository.
func NewGoalRepository() repository.GoalRepository {
	return &goalRepository{
		goals: make(map[primitive.ObjectID]domain.Goal),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *goalRepository) Create(_ context.Context, goal *domain.Goal) (primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	goal.ID = primitive.NewObjectID()
	if goal.CreatedAt.IsZero() {
		goal.CreatedAt = r.now()
	}
	goal.UpdatedAt = goal.CreatedAt
	r.goals[goal.ID] = cloneGoal(*goal)
	return goal.ID, nil
}

func (r *goalRepository) GetByID(_ context.Context, id primitive.ObjectID) (*domain.Goal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.goals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneGoal(g)
	return &out, nil
}

func (r *goalRepository) ListByUser(_ context.Context, userID primitive.ObjectID, limit int) ([]domain.Goal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	goals := []domain.Goal{}
	for _, g := range r.goals {
		if g.UserID == userID {
			goals = append(goals, cloneGoal(g))
		}
	}
	// ObjectIDs start with their creation second; the hex form sorts the same way.
	sort.Slice(goals, func(i, j int) bool {
		return goals[i].ID.Hex() < goals[j].ID.Hex()
	})
	if limit > 0 && len(goals) > limit {
		goals = goals[:limit]
	}
	return goals, nil
}

func (r *goalRepository) UpdateFields(_ context.Context, id primitive.ObjectID, update repository.GoalUpdate, expectState domain.State) (*domain.Goal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.goals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if g.State != expectState {
		return nil, repository.ErrStateChanged
	}

	if update.Title != nil {
		g.Title = *update.Title
	}
	if update.Description != nil {
		g.Description = *update.Description
	}
	if update.LimitTime != nil {
		t := *update.LimitTime
		g.LimitTime = &t
	}
	if update.Reset {
		g.State = domain.StateNotInitiated
		g.Progress = 0
		g.DateInit = nil
		g.DateComplete = nil
	}
	return r.store(g), nil
}

func (r *goalRepository) CompareAndSetState(_ context.Context, id primitive.ObjectID, change domain.StateChange) (*domain.Goal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.goals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if g.State != change.From {
		return nil, repository.ErrStateChanged
	}
	change.Apply(&g)
	return r.store(g), nil
}

func (r *goalRepository) IncrementProgress(_ context.Context, id primitive.ObjectID, amount float64, now time.Time) (*domain.Goal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.goals[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if g.State != domain.StateInitiated || (g.LimitTime != nil && g.LimitTime.Before(now)) {
		return nil, repository.ErrStateChanged
	}
	g.Progress += amount
	return r.store(g), nil
}

func (r *goalRepository) Delete(_ context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.goals[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.goals, id)
	return nil
}

func (r *goalRepository) Ping(context.Context) error { return nil }

// store saves g and returns a copy; callers hold mu.
func (r *goalRepository) store(g domain.Goal) *domain.Goal {
	g.UpdatedAt = r.now()
	r.goals[g.ID] = cloneGoal(g)
	out := cloneGoal(g)
	return &out
}

// cloneGoal copies the pointer fields so callers cannot mutate stored goals.
func cloneGoal(g domain.Goal) domain.Goal {
	if g.TrainingID != nil {
		v := *g.TrainingID
		g.TrainingID = &v
	}
	g.LimitTime = cloneTime(g.LimitTime)
	g.DateInit = cloneTime(g.DateInit)
	g.DateComplete = cloneTime(g.DateComplete)
	return g
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
