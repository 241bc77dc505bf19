package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fiufit-grupo-4/goals-microservice/internal/domain"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestApplyProgressForUser(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()

	active := env.createGoal(t, CreateGoalInput{Title: "active", TrainingID: ptr("t1"), QuantityTarget: 10000})
	finishing := env.createGoal(t, CreateGoalInput{Title: "finishing", TrainingID: ptr("t2"), QuantityTarget: 500})
	idle := env.createGoal(t, CreateGoalInput{Title: "idle"})
	limit := env.clock.Now().Add(time.Minute)
	overdue := env.createGoal(t, CreateGoalInput{Title: "overdue", TrainingID: ptr("t3"), LimitTime: &limit})
	other := domain.Caller{UserID: primitive.NewObjectID(), Role: domain.RoleAthlete}
	foreign, err := env.svc.CreateGoal(ctx, other, CreateGoalInput{Title: "foreign", Metric: domain.MetricSteps, QuantityTarget: 10, TrainingID: ptr("t4")})
	require.NoError(t, err)

	env.clock.Advance(time.Hour)
	summary, err := env.svc.ApplyProgressForUser(ctx, env.caller, 1000)
	require.NoError(t, err)

	assert.Len(t, summary.Results, 4)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Expired)
	assert.Zero(t, summary.Failed)

	byID := map[string]ProgressResult{}
	for _, r := range summary.Results {
		byID[r.GoalID] = r
	}
	assert.Equal(t, OutcomeUpdated, byID[active.ID.Hex()].Outcome)
	assert.Equal(t, 1000.0, byID[active.ID.Hex()].Progress)
	assert.Equal(t, OutcomeCompleted, byID[finishing.ID.Hex()].Outcome)
	assert.Equal(t, domain.StateComplete, byID[finishing.ID.Hex()].State)
	assert.Equal(t, OutcomeSkipped, byID[idle.ID.Hex()].Outcome)
	assert.Equal(t, OutcomeExpired, byID[overdue.ID.Hex()].Outcome)

	untouched, err := env.repo.GetByID(ctx, foreign.ID)
	require.NoError(t, err)
	assert.Zero(t, untouched.Progress, "other users' goals are not touched")

	assert.Equal(t, 1, env.notifier.count())
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.ProgressUpdates.WithLabelValues("completed")))
}

func TestBatchProgressContinuesAfterNotifierFailure(t *testing.T) {
	env := setupTestService(t)
	env.notifier.err = errBoom
	ctx := context.Background()

	first := env.createGoal(t, CreateGoalInput{TrainingID: ptr("t1"), QuantityTarget: 100})
	second := env.createGoal(t, CreateGoalInput{TrainingID: ptr("t2"), QuantityTarget: 100})

	summary, err := env.svc.ApplyProgressForUser(ctx, env.caller, 150)
	require.NoError(t, err, "batch flows never surface side effect failures")
	assert.Equal(t, 2, summary.Completed)
	assert.Equal(t, 2, env.notifier.count(), "the first failure does not stop the second goal")

	for _, id := range []primitive.ObjectID{first.ID, second.ID} {
		stored, err := env.repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.StateComplete, stored.State)
	}
	for _, r := range summary.Results {
		assert.Contains(t, r.Error, ErrDownstreamUnavailable.Error())
	}
}

func TestSingleProgressSurfacesNotifierFailure(t *testing.T) {
	env := setupTestService(t)
	env.notifier.err = errBoom
	goal := env.createGoal(t, CreateGoalInput{TrainingID: ptr("t1"), QuantityTarget: 100})

	got, err := env.svc.ApplyProgress(context.Background(), env.caller, goal.ID, 150)
	assert.ErrorIs(t, err, ErrDownstreamUnavailable)
	require.NotNil(t, got)
	assert.Equal(t, domain.StateComplete, got.State)
	assert.Equal(t, 150.0, got.Progress)
}

func TestConcurrentProgressCompletesOnce(t *testing.T) {
	env := setupTestService(t)
	ctx := context.Background()
	goal := env.createGoal(t, CreateGoalInput{TrainingID: ptr("t1"), QuantityTarget: 100})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.ApplyProgress(ctx, env.caller, goal.ID, 10)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := env.repo.GetByID(ctx, goal.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateComplete, stored.State)
	assert.GreaterOrEqual(t, stored.Progress, 100.0)
	assert.LessOrEqual(t, stored.Progress, 200.0)
	assert.Equal(t, 1, env.notifier.count())
}
