package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/fiufit-grupo-4/goals-microservice/internal/clients"
	"github.com/fiufit-grupo-4/goals-microservice/internal/domain"
	"github.com/fiufit-grupo-4/goals-microservice/internal/metrics"
	"github.com/fiufit-grupo-4/goals-microservice/internal/repository"
	"github.com/fiufit-grupo-4/goals-microservice/internal/repository/memory"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var errBoom = errors.New("boom")

// testClock is a settable clock shared by the service and the test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeNotifier records completed goals.
type fakeNotifier struct {
	mu    sync.Mutex
	calls []primitive.ObjectID
	auth  []string
	err   error
}

func (n *fakeNotifier) NotifyCompletion(_ context.Context, caller domain.Caller, goal *domain.Goal) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, goal.ID)
	n.auth = append(n.auth, caller.Authorization)
	return n.err
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

// fakeStorage keeps objects in memory.
type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}}
}

func (s *fakeStorage) PutObject(_ context.Context, key, _ string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.objects[key] = body
	return nil
}

func (s *fakeStorage) ObjectExists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *fakeStorage) GeneratePresignedDownloadURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://receipts.example/" + key + "?sig=1", nil
}

func (s *fakeStorage) DeleteObject(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *fakeStorage) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

// fakeUsers is a scripted user service.
type fakeUsers struct {
	token   string
	getErr  error
	sendErr error
	sent    []clients.Notification
}

func (u *fakeUsers) GetDeviceToken(context.Context, string, string) (string, error) {
	return u.token, u.getErr
}

func (u *fakeUsers) SendNotification(_ context.Context, _, _ string, n clients.Notification) error {
	u.sent = append(u.sent, n)
	return u.sendErr
}

// fakeTrainings is a scripted training service.
type fakeTrainings struct {
	err       error
	completed []string
	auth      []string
}

func (f *fakeTrainings) CompleteTraining(_ context.Context, trainingID, authorization string) error {
	f.completed = append(f.completed, trainingID)
	f.auth = append(f.auth, authorization)
	return f.err
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type testEnv struct {
	svc      GoalService
	repo     repository.GoalRepository
	clock    *testClock
	notifier *fakeNotifier
	receipts *fakeStorage
	metrics  *metrics.Metrics
	caller   domain.Caller
}

func setupTestService(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:     memory.NewGoalRepository(),
		clock:    &testClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)},
		notifier: &fakeNotifier{},
		receipts: newFakeStorage(),
		metrics:  metrics.New(prometheus.NewRegistry()),
		caller: domain.Caller{
			UserID:        primitive.NewObjectID(),
			Role:          domain.RoleAthlete,
			Authorization: "Bearer test-token",
		},
	}
	env.svc = NewGoalService(env.repo, env.notifier, env.receipts, env.metrics, testLogger(), env.clock.Now, Options{
		DefaultPageSize:  128,
		MaxPageSize:      1024,
		ReceiptURLExpiry: time.Minute,
	})
	return env
}

func (e *testEnv) createGoal(t *testing.T, input CreateGoalInput) *domain.Goal {
	t.Helper()
	if input.Title == "" {
		input.Title = "walk"
	}
	if input.Metric == "" {
		input.Metric = domain.MetricSteps
	}
	if input.QuantityTarget == 0 {
		input.QuantityTarget = 1500
	}
	goal, err := e.svc.CreateGoal(context.Background(), e.caller, input)
	if err != nil {
		t.Fatalf("create goal: %v", err)
	}
	return goal
}

func ptr[T any](v T) *T { return &v }
