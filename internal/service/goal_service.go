package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/fiufit-grupo-4/goals-microservice/internal/domain"
	"github.com/fiufit-grupo-4/goals-microservice/internal/metrics"
	"github.com/fiufit-grupo-4/goals-microservice/internal/repository"
	"github.com/fiufit-grupo-4/goals-microservice/internal/storage"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- Error Definitions ---
var (
	ErrGoalNotFound          = errors.New("goal not found")
	ErrInvalidTransition     = domain.ErrInvalidTransition
	ErrValidation            = errors.New("validation failed")
	ErrNoOpUpdate            = errors.New("no values specified to update")
	ErrDownstreamUnavailable = errors.New("downstream service unavailable")
	ErrConcurrentUpdate      = errors.New("goal was modified concurrently")
	ErrReceiptUnavailable    = errors.New("completion receipt not available")
)

// maxUpdateAttempts bounds how often a conditional update is retried after losing a race.
const maxUpdateAttempts = 3

// --- Service Interface ---
type GoalService interface {
	CreateGoal(ctx context.Context, caller domain.Caller, input CreateGoalInput) (*domain.Goal, error)
	GetGoal(ctx context.Context, caller domain.Caller, goalID primitive.ObjectID) (*domain.Goal, error)
	ListGoals(ctx context.Context, caller domain.Caller, limit int) ([]domain.Goal, error)
	UpdateGoal(ctx context.Context, caller domain.Caller, goalID primitive.ObjectID, patch domain.GoalPatch) (*domain.Goal, error)
	DeleteGoal(ctx context.Context, caller domain.Caller, goalID primitive.ObjectID) error

	StartGoal(ctx context.Context, caller domain.Caller, goalID primitive.ObjectID) (*domain.Goal, error)
	CompleteGoal(ctx context.Context, caller domain.Caller, goalID primitive.ObjectID) (*domain.Goal, error)
	StopGoal(ctx context.Context, caller domain.Caller, goalID primitive.ObjectID) (*domain.Goal, error)

	ApplyProgress(ctx context.Context, caller domain.Caller, goalID primitive.ObjectID, steps float64) (*domain.Goal, error)
	ApplyProgressForUser(ctx context.Context, caller domain.Caller, steps float64) (*ProgressSummary, error)

	GetReceiptURL(ctx context.Context, caller domain.Caller, goalID primitive.ObjectID) (string, error)
	Ping(ctx context.Context) error
}

// CreateGoalInput is the validated content of a create request.
type CreateGoalInput struct {
	Title          string
	Description    string
	Metric         domain.Metric
	QuantityTarget float64
	LimitTime      *time.Time
	DateInit       *time.Time
	TrainingID     *string
}

// Options tunes paging and receipt links.
type Options struct {
	DefaultPageSize  int
	MaxPageSize      int
	ReceiptURLExpiry time.Duration
}

// --- Service Implementation ---

type goalService struct {
	repo     repository.GoalRepository
	notifier CompletionNotifier
	receipts storage.FileStorage // nil when receipts are disabled
	metrics  *metrics.Metrics
	log      logrus.FieldLogger
	clock    func() time.Time
	opts     Options
}

// NewGoalService creates a new instance of goalService.
// A nil clock uses the wall clock; a nil notifier or receipt store disables those side effects.
func NewGoalService(
	repo repository.GoalRepository,
	notifier CompletionNotifier,
	receipts storage.FileStorage,
	m *metrics.Metrics,
	log logrus.FieldLogger,
	clock func() time.Time,
	opts Options,
) GoalService {
	if clock == nil {
		clock = time.Now
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = 128
	}
	if opts.MaxPageSize < opts.DefaultPageSize {
		opts.MaxPageSize = 1024
	}
	return &goalService{
		repo:     repo,
		notifier: notifier,
		receipts: receipts,
		metrics:  m,
		log:      log,
		clock:    clock,
		opts:     opts,
	}
}

func (s *goalService) now() time.Time {
	return s.clock().UTC()
}

// CreateGoal validates and stores a new goal. Training-linked goals start right away.
func (s *goalService) CreateGoal(ctx context.Context, caller domain.Caller, input CreateGoalInput) (*domain.Goal, error) {
	now := s.now()

	// 1. Validate Inputs
	if strings.TrimSpace(input.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if !input.Metric.Valid() {
		return nil, fmt.Errorf("%w: metric must be one of Steps, Kilometers, Calories", ErrValidation)
	}
	if !(input.QuantityTarget > 0) || math.IsInf(input.QuantityTarget, 0) {
		return nil, fmt.Errorf("%w: quantity_target must be positive", ErrValidation)
	}
	if input.LimitTime != nil && input.LimitTime.Before(now) {
		return nil, fmt.Errorf("%w: limit date is before current date", ErrValidation)
	}
	if input.DateInit != nil && input.DateInit.Before(now) {
		return nil, fmt.Errorf("%w: init date is before current date", ErrValidation)
	}
	if input.TrainingID != nil && strings.TrimSpace(*input.TrainingID) == "" {
		input.TrainingID = nil
	}

	// 2. Build the goal
	goal := &domain.Goal{
		UserID:         caller.UserID,
		TrainingID:     input.TrainingID,
		Title:          input.Title,
		Description:    input.Description,
		Metric:         input.Metric,
		QuantityTarget: input.QuantityTarget,
		State:          domain.StateNotInitiated,
		LimitTime:      utcPtr(input.LimitTime),
		CreatedAt:      now,
	}
	if goal.IsTrainingLinked() {
		goal.State = domain.StateInitiated
		goal.DateInit = &now
	}

	// 3. Store
	id, err := s.repo.Create(ctx, goal)
	if err != nil {
		return nil, fmt.Errorf("create goal: %w", err)
	}
	goal.ID = id

	s.log.WithFields(logrus.Fields{
		"goal_id": id.Hex(),
		"user_id": caller.UserID.Hex(),
		"state":   goal.State.String(),
	}).Info("Goal created")
	return goal, nil
}

// GetGoal returns one of the caller's goals, expiring it first if its deadline passed.
func (s *goalService) GetGoal(ctx context.Context, caller domain.Caller, goalID primitive.ObjectID) (*domain.Goal, error) {
	goal, err := s.loadOwned(ctx, caller, goalID)
	if err != nil {
		return nil, err
	}
	return s.expireIfDue(ctx, goal)
}

// ListGoals returns up to limit of the caller's goals. A limit of 0 means the default page size.
func (s *goalService) ListGoals(ctx context.Context, caller domain.Caller, limit int) ([]domain.Goal, error) {
	if limit == 0 {
		limit = s.opts.DefaultPageSize
	}
	if limit < 1 || limit > s.opts.MaxPageSize {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrValidation, s.opts.MaxPageSize)
	}

	goals, err := s.repo.ListByUser(ctx, caller.UserID, limit)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	for i := range goals {
		refreshed, err := s.expireIfDue(ctx, &goals[i])
		if err != nil {
			return nil, err
		}
		goals[i] = *refreshed
	}
	return goals, nil
}

// UpdateGoal applies a partial update. Supplying a future limit_time to an expired goal
// restarts it from NOT_INITIATED with no progress.
func (s *goalService) UpdateGoal(ctx context.Context, caller domain.Caller, goalID primitive.ObjectID, patch domain.GoalPatch) (*domain.Goal, error) {
	now := s.now()

	// 1. Validate the patch before touching the store
	if patch.IsEmpty() {
		return nil, ErrNoOpUpdate
	}
	if patch.TouchesImmutable() {
		return nil, fmt.Errorf("%w: metric and quantity_target cannot be changed", ErrValidation)
	}
	if patch.Title.Set && strings.TrimSpace(patch.Title.Value) == "" {
		return nil, fmt.Errorf("%w: title cannot be empty", ErrValidation)
	}
	if patch.LimitTime.Set && patch.LimitTime.Value.Before(now) {
		return nil, fmt.Errorf("%w: limit date is before current date", ErrValidation)
	}

	update := repository.GoalUpdate{
		Title:       patch.Title.Ptr(),
		Description: patch.Description.Ptr(),
		LimitTime:   utcPtr(patch.LimitTime.Ptr()),
	}

	// 2. Conditional update on the state we read
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		goal, err := s.loadOwned(ctx, caller, goalID)
		if err != nil {
			return nil, err
		}
		if goal, err = s.expireIfDue(ctx, goal); err != nil {
			return nil, err
		}

		update.Reset = goal.State == domain.StateExpired && update.LimitTime != nil

		updated, err := s.repo.UpdateFields(ctx, goalID, update, goal.State)
		if errors.Is(err, repository.ErrStateChanged) {
			continue
		}
		if err != nil {
			return nil, s.mapRepoErr(err, "update goal")
		}

		if update.Reset {
			s.metrics.ObserveTransition(domain.StateExpired.String(), domain.StateNotInitiated.String())
			s.log.WithField("goal_id", goalID.Hex()).Info("Expired goal reset with a new limit date")
		}
		return updated, nil
	}
	return nil, ErrConcurrentUpdate
}

// DeleteGoal removes one of the caller's goals and its completion receipt.
func (s *goalService) DeleteGoal(ctx context.Context, caller domain.Caller, goalID primitive.ObjectID) error {
	goal, err := s.loadOwned(ctx, caller, goalID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, goalID); err != nil {
		return s.mapRepoErr(err, "delete goal")
	}

	if s.receipts != nil && goal.State == domain.StateComplete {
		if err := s.receipts.DeleteObject(ctx, ReceiptKey(goal)); err != nil {
			s.log.WithError(err).WithField("goal_id", goalID.Hex()).Warn("Failed to delete completion receipt")
		}
	}
	s.log.WithField("goal_id", goalID.Hex()).Info("Goal deleted")
	return nil
}

func (s *goalService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// --- Helpers ---

// loadOwned fetches a goal the caller may access. Foreign goals look missing.
func (s *goalService) loadOwned(ctx context.Context, caller domain.Caller, goalID primitive.ObjectID) (*domain.Goal, error) {
	goal, err := s.repo.GetByID(ctx, goalID)
	if err != nil {
		return nil, s.mapRepoErr(err, "get goal")
	}
	if !caller.Owns(goal) {
		return nil, ErrGoalNotFound
	}
	return goal, nil
}

// expireIfDue moves an overdue goal to EXPIRED and returns the stored result.
func (s *goalService) expireIfDue(ctx context.Context, goal *domain.Goal) (*domain.Goal, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		if !goal.IsExpiredAt(s.now()) {
			return goal, nil
		}
		change := domain.ExpireChange(goal)
		updated, err := s.repo.CompareAndSetState(ctx, goal.ID, change)
		if errors.Is(err, repository.ErrStateChanged) {
			if goal, err = s.repo.GetByID(ctx, goal.ID); err != nil {
				return nil, s.mapRepoErr(err, "get goal")
			}
			continue
		}
		if err != nil {
			return nil, s.mapRepoErr(err, "expire goal")
		}
		s.observeTransition(updated, change)
		return updated, nil
	}
	return nil, ErrConcurrentUpdate
}

func (s *goalService) observeTransition(goal *domain.Goal, change domain.StateChange) {
	s.metrics.ObserveTransition(change.From.String(), change.To.String())
	s.log.WithFields(logrus.Fields{
		"goal_id": goal.ID.Hex(),
		"user_id": goal.UserID.Hex(),
		"from":    change.From.String(),
		"state":   change.To.String(),
	}).Info("Goal state changed")
}

func (s *goalService) mapRepoErr(err error, op string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrGoalNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
