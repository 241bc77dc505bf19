package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func goalInState(state State) *Goal {
	return &Goal{
		Title:          "10k steps",
		Metric:         MetricSteps,
		QuantityTarget: 1500,
		State:          state,
	}
}

func TestPlanTransition(t *testing.T) {
	past := testNow.Add(-time.Hour)
	future := testNow.Add(time.Hour)

	tests := []struct {
		name      string
		goal      func() *Goal
		requested State
		wantErr   string
		check     func(t *testing.T, c StateChange)
	}{
		{
			name:      "start from not initiated sets date_init",
			goal:      func() *Goal { return goalInState(StateNotInitiated) },
			requested: StateInitiated,
			check: func(t *testing.T, c StateChange) {
				assert.Equal(t, StateNotInitiated, c.From)
				assert.Equal(t, StateInitiated, c.To)
				require.NotNil(t, c.DateInit)
				assert.Equal(t, testNow, *c.DateInit)
			},
		},
		{
			name:      "start twice fails",
			goal:      func() *Goal { return goalInState(StateInitiated) },
			requested: StateInitiated,
			wantErr:   "already started",
		},
		{
			name:      "start resumes a stopped goal",
			goal:      func() *Goal { return goalInState(StateStopped) },
			requested: StateInitiated,
			check: func(t *testing.T, c StateChange) {
				assert.Equal(t, StateInitiated, c.To)
				assert.NotNil(t, c.DateInit)
			},
		},
		{
			name:      "stop on not initiated fails",
			goal:      func() *Goal { return goalInState(StateNotInitiated) },
			requested: StateStopped,
			wantErr:   "not started",
		},
		{
			name:      "stop on complete fails",
			goal:      func() *Goal { return goalInState(StateComplete) },
			requested: StateStopped,
			wantErr:   "already completed",
		},
		{
			name:      "stop on stopped fails",
			goal:      func() *Goal { return goalInState(StateStopped) },
			requested: StateStopped,
			wantErr:   "already stopped",
		},
		{
			name:      "stop on initiated succeeds",
			goal:      func() *Goal { return goalInState(StateInitiated) },
			requested: StateStopped,
			check: func(t *testing.T, c StateChange) {
				assert.Equal(t, StateStopped, c.To)
				assert.False(t, c.Expired)
			},
		},
		{
			name: "complete raises progress to target",
			goal: func() *Goal {
				g := goalInState(StateInitiated)
				g.Progress = 200
				return g
			},
			requested: StateComplete,
			check: func(t *testing.T, c StateChange) {
				assert.Equal(t, StateComplete, c.To)
				require.NotNil(t, c.DateComplete)
				require.NotNil(t, c.Progress)
				assert.Equal(t, 1500.0, *c.Progress)
			},
		},
		{
			name: "complete keeps progress above target",
			goal: func() *Goal {
				g := goalInState(StateInitiated)
				g.Progress = 1600
				return g
			},
			requested: StateComplete,
			check: func(t *testing.T, c StateChange) {
				assert.Nil(t, c.Progress)
			},
		},
		{
			name: "expired deadline overrides start",
			goal: func() *Goal {
				g := goalInState(StateNotInitiated)
				g.LimitTime = &past
				return g
			},
			requested: StateInitiated,
			check: func(t *testing.T, c StateChange) {
				assert.True(t, c.Expired)
				assert.Equal(t, StateExpired, c.To)
				assert.Nil(t, c.DateInit)
			},
		},
		{
			name: "expired deadline overrides stop on not initiated",
			goal: func() *Goal {
				g := goalInState(StateNotInitiated)
				g.LimitTime = &past
				return g
			},
			requested: StateStopped,
			check: func(t *testing.T, c StateChange) {
				assert.Equal(t, StateExpired, c.To)
			},
		},
		{
			name: "future deadline does not expire",
			goal: func() *Goal {
				g := goalInState(StateNotInitiated)
				g.LimitTime = &future
				return g
			},
			requested: StateInitiated,
			check: func(t *testing.T, c StateChange) {
				assert.Equal(t, StateInitiated, c.To)
			},
		},
		{
			name:      "expired goals reject transitions",
			goal:      func() *Goal { return goalInState(StateExpired) },
			requested: StateInitiated,
			wantErr:   "expired",
		},
		{
			name: "completed goals past their deadline stay complete",
			goal: func() *Goal {
				g := goalInState(StateComplete)
				g.LimitTime = &past
				return g
			},
			requested: StateInitiated,
			wantErr:   "already completed",
		},
		{
			name:      "unsupported target state",
			goal:      func() *Goal { return goalInState(StateInitiated) },
			requested: StateNotInitiated,
			wantErr:   "cannot move goal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			change, err := PlanTransition(tt.goal(), tt.requested, testNow)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidTransition)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, change)
		})
	}
}

func TestStateChangeApply(t *testing.T) {
	g := goalInState(StateInitiated)
	g.Progress = 10

	CompleteChange(g, testNow).Apply(g)

	assert.Equal(t, StateComplete, g.State)
	assert.Equal(t, 1500.0, g.Progress)
	require.NotNil(t, g.DateComplete)
	assert.Equal(t, testNow, *g.DateComplete)
}

func TestIsExpiredAt(t *testing.T) {
	past := testNow.Add(-time.Minute)

	g := goalInState(StateInitiated)
	assert.False(t, g.IsExpiredAt(testNow), "no deadline never expires")

	g.LimitTime = &past
	assert.True(t, g.IsExpiredAt(testNow))

	g.State = StateExpired
	assert.False(t, g.IsExpiredAt(testNow), "already expired")

	g.State = StateComplete
	assert.False(t, g.IsExpiredAt(testNow), "complete is kept")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "NOT_INITIATED", StateNotInitiated.String())
	assert.Equal(t, "EXPIRED", StateExpired.String())
	assert.Equal(t, "State(9)", State(9).String())
	assert.False(t, State(0).Valid())
	assert.True(t, StateStopped.Valid())
}
