package repository

import (
	"context"
	"time"

	"github.com/fiufit-grupo-4/goals-microservice/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Error constants for repository layer
var (
	ErrNotFound = RepositoryError("not found")
	// ErrStateChanged means the goal exists but no longer matches the guard of a conditional update.
	ErrStateChanged = RepositoryError("state changed concurrently")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// GoalUpdate is a field-level update of a goal's editable fields.
// Nil fields are left untouched.
type GoalUpdate struct {
	Title       *string
	Description *string
	LimitTime   *time.Time
	// Reset moves the goal back to NOT_INITIATED with no progress and no lifecycle dates.
	Reset bool
}

// GoalRepository defines the interface for interacting with goal data.
// Every mutation is a single-document conditional update; callers never write back a whole goal.
type GoalRepository interface {
	Create(ctx context.Context, goal *domain.Goal) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Goal, error)
	// ListByUser returns the user's goals, oldest first. A limit <= 0 returns all of them.
	ListByUser(ctx context.Context, userID primitive.ObjectID, limit int) ([]domain.Goal, error)
	// UpdateFields applies update only if the goal is still in expectState.
	UpdateFields(ctx context.Context, id primitive.ObjectID, update GoalUpdate, expectState domain.State) (*domain.Goal, error)
	// CompareAndSetState applies change only if the goal is still in change.From.
	CompareAndSetState(ctx context.Context, id primitive.ObjectID, change domain.StateChange) (*domain.Goal, error)
	// IncrementProgress atomically adds amount to an INITIATED goal whose deadline has not passed at now.
	IncrementProgress(ctx context.Context, id primitive.ObjectID, amount float64, now time.Time) (*domain.Goal, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
	Ping(ctx context.Context) error
}
