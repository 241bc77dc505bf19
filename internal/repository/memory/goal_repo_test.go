package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fiufit-grupo-4/goals-microservice/internal/domain"
	"github.com/fiufit-grupo-4/goals-microservice/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func setupTestRepo(t *testing.T) (repository.GoalRepository, primitive.ObjectID) {
	t.Helper()
	return NewGoalRepository(), primitive.NewObjectID()
}

func createGoal(t *testing.T, repo repository.GoalRepository, userID primitive.ObjectID, state domain.State) primitive.ObjectID {
	t.Helper()
	id, err := repo.Create(context.Background(), &domain.Goal{
		UserID:         userID,
		Title:          "walk",
		Metric:         domain.MetricSteps,
		QuantityTarget: 100,
		State:          state,
	})
	require.NoError(t, err)
	return id
}

func TestCreateAndGet(t *testing.T) {
	repo, userID := setupTestRepo(t)
	ctx := context.Background()

	id := createGoal(t, repo, userID, domain.StateNotInitiated)
	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, userID, got.UserID)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = repo.GetByID(ctx, primitive.NewObjectID())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestListByUser(t *testing.T) {
	repo, userID := setupTestRepo(t)
	ctx := context.Background()

	first := createGoal(t, repo, userID, domain.StateNotInitiated)
	createGoal(t, repo, userID, domain.StateInitiated)
	createGoal(t, repo, primitive.NewObjectID(), domain.StateInitiated)

	all, err := repo.ListByUser(ctx, userID, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, first, all[0].ID)

	limited, err := repo.ListByUser(ctx, userID, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := repo.ListByUser(ctx, primitive.NewObjectID(), 10)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestCompareAndSetState(t *testing.T) {
	repo, userID := setupTestRepo(t)
	ctx := context.Background()
	id := createGoal(t, repo, userID, domain.StateNotInitiated)
	now := time.Now().UTC()

	got, err := repo.CompareAndSetState(ctx, id, domain.StateChange{From: domain.StateNotInitiated, To: domain.StateInitiated, DateInit: &now})
	require.NoError(t, err)
	assert.Equal(t, domain.StateInitiated, got.State)
	require.NotNil(t, got.DateInit)

	_, err = repo.CompareAndSetState(ctx, id, domain.StateChange{From: domain.StateNotInitiated, To: domain.StateInitiated})
	assert.ErrorIs(t, err, repository.ErrStateChanged)

	_, err = repo.CompareAndSetState(ctx, primitive.NewObjectID(), domain.StateChange{From: domain.StateNotInitiated, To: domain.StateInitiated})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestIncrementProgressGuards(t *testing.T) {
	repo, userID := setupTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	active := createGoal(t, repo, userID, domain.StateInitiated)
	got, err := repo.IncrementProgress(ctx, active, 12.5, now)
	require.NoError(t, err)
	assert.Equal(t, 12.5, got.Progress)

	stopped := createGoal(t, repo, userID, domain.StateStopped)
	_, err = repo.IncrementProgress(ctx, stopped, 5, now)
	assert.ErrorIs(t, err, repository.ErrStateChanged)

	past := now.Add(-time.Minute)
	_, err = repo.UpdateFields(ctx, active, repository.GoalUpdate{LimitTime: &past}, domain.StateInitiated)
	require.NoError(t, err)
	_, err = repo.IncrementProgress(ctx, active, 5, now)
	assert.ErrorIs(t, err, repository.ErrStateChanged, "overdue goals take no progress")
}

func TestIncrementProgressConcurrent(t *testing.T) {
	repo, userID := setupTestRepo(t)
	ctx := context.Background()
	id := createGoal(t, repo, userID, domain.StateInitiated)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.IncrementProgress(ctx, id, 1, time.Now())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 50.0, got.Progress)
}

func TestUpdateFieldsReset(t *testing.T) {
	repo, userID := setupTestRepo(t)
	ctx := context.Background()
	id := createGoal(t, repo, userID, domain.StateInitiated)
	now := time.Now().UTC()

	_, err := repo.IncrementProgress(ctx, id, 40, now)
	require.NoError(t, err)
	_, err = repo.CompareAndSetState(ctx, id, domain.StateChange{From: domain.StateInitiated, To: domain.StateExpired})
	require.NoError(t, err)

	future := now.Add(24 * time.Hour)
	title := "new title"
	got, err := repo.UpdateFields(ctx, id, repository.GoalUpdate{Title: &title, LimitTime: &future, Reset: true}, domain.StateExpired)
	require.NoError(t, err)
	assert.Equal(t, domain.StateNotInitiated, got.State)
	assert.Zero(t, got.Progress)
	assert.Nil(t, got.DateInit)
	assert.Nil(t, got.DateComplete)
	assert.Equal(t, "new title", got.Title)

	_, err = repo.UpdateFields(ctx, id, repository.GoalUpdate{Title: &title}, domain.StateExpired)
	assert.ErrorIs(t, err, repository.ErrStateChanged)
}

func TestDelete(t *testing.T) {
	repo, userID := setupTestRepo(t)
	ctx := context.Background()
	id := createGoal(t, repo, userID, domain.StateNotInitiated)

	require.NoError(t, repo.Delete(ctx, id))
	assert.ErrorIs(t, repo.Delete(ctx, id), repository.ErrNotFound)
}

func TestReturnedGoalsAreCopies(t *testing.T) {
	repo, userID := setupTestRepo(t)
	ctx := context.Background()
	id := createGoal(t, repo, userID, domain.StateNotInitiated)

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	got.Title = "mutated"

	again, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "walk", again.Title)
}
