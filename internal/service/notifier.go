package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fiufit-grupo-4/goals-microservice/internal/clients"
	"github.com/fiufit-grupo-4/goals-microservice/internal/domain"
	"github.com/fiufit-grupo-4/goals-microservice/internal/metrics"
	"github.com/fiufit-grupo-4/goals-microservice/internal/storage"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/multierr"
)

// CompletionNotifier runs the side effects of a goal entering COMPLETE.
// It is only called after the state change is committed.
type CompletionNotifier interface {
	NotifyCompletion(ctx context.Context, caller domain.Caller, goal *domain.Goal) error
}

type completionNotifier struct {
	trainings clients.TrainingClient
	users     clients.UserClient
	receipts  storage.FileStorage // nil when receipts are disabled
	metrics   *metrics.Metrics
	log       logrus.FieldLogger
	clock     func() time.Time
}

// NewCompletionNotifier creates the notifier used by the goal service.
func NewCompletionNotifier(
	trainings clients.TrainingClient,
	users clients.UserClient,
	receipts storage.FileStorage,
	m *metrics.Metrics,
	log logrus.FieldLogger,
	clock func() time.Time,
) CompletionNotifier {
	if clock == nil {
		clock = time.Now
	}
	return &completionNotifier{
		trainings: trainings,
		users:     users,
		receipts:  receipts,
		metrics:   m,
		log:       log,
		clock:     clock,
	}
}

// NotifyCompletion calls the training service for training-linked goals and notifies the
// owner through the user service. Both are attempted; their failures are combined.
func (n *completionNotifier) NotifyCompletion(ctx context.Context, caller domain.Caller, goal *domain.Goal) error {
	log := n.log.WithFields(logrus.Fields{"goal_id": goal.ID.Hex(), "user_id": goal.UserID.Hex()})
	var errs error

	// 1. Training callback
	if goal.IsTrainingLinked() {
		if err := n.trainings.CompleteTraining(ctx, *goal.TrainingID, caller.Authorization); err != nil {
			n.metrics.ObserveDownstreamFailure("trainings")
			log.WithError(err).WithField("training_id", *goal.TrainingID).Error("Training completion callback failed")
			errs = multierr.Append(errs, fmt.Errorf("complete training %s: %w", *goal.TrainingID, err))
		}
	}

	// 2. Owner notification
	if err := n.notifyOwner(ctx, caller, goal, log); err != nil {
		n.metrics.ObserveDownstreamFailure("users")
		log.WithError(err).Error("Goal completion notification failed")
		errs = multierr.Append(errs, fmt.Errorf("notify user %s: %w", goal.UserID.Hex(), err))
	}

	// 3. Receipt archive, never reported to the caller
	if n.receipts != nil {
		if err := n.writeReceipt(ctx, goal); err != nil {
			log.WithError(err).Warn("Failed to archive completion receipt")
		}
	}

	return errs
}

func (n *completionNotifier) notifyOwner(ctx context.Context, caller domain.Caller, goal *domain.Goal, log logrus.FieldLogger) error {
	userID := goal.UserID.Hex()
	token, err := n.users.GetDeviceToken(ctx, userID, caller.Authorization)
	if err != nil {
		return err
	}
	if token == "" {
		log.Info("User has no device token, skipping completion notification")
		return nil
	}

	return n.users.SendNotification(ctx, userID, caller.Authorization, clients.Notification{
		DeviceToken: token,
		Notification: clients.NotificationBody{
			Type:   "goal_completed",
			Title:  "Goal completed!",
			Body:   fmt.Sprintf("You completed your goal: %s", goal.Title),
			GoalID: goal.ID.Hex(),
		},
	})
}

// --- Completion receipts ---

// CompletionReceipt is the archived record of a completed goal.
type CompletionReceipt struct {
	ReceiptID      string        `json:"receipt_id"`
	GoalID         string        `json:"goal_id"`
	UserID         string        `json:"user_id"`
	TrainingID     *string       `json:"training_id,omitempty"`
	Title          string        `json:"title"`
	Metric         domain.Metric `json:"metric"`
	QuantityTarget float64       `json:"quantity_target"`
	Progress       float64       `json:"progress"`
	DateInit       *time.Time    `json:"date_init,omitempty"`
	DateComplete   *time.Time    `json:"date_complete,omitempty"`
	IssuedAt       time.Time     `json:"issued_at"`
}

// ReceiptKey is the object key of a goal's completion receipt.
func ReceiptKey(goal *domain.Goal) string {
	return fmt.Sprintf("receipts/%s/%s.json", goal.UserID.Hex(), goal.ID.Hex())
}

func (n *completionNotifier) writeReceipt(ctx context.Context, goal *domain.Goal) error {
	receipt := CompletionReceipt{
		ReceiptID:      uuid.NewString(),
		GoalID:         goal.ID.Hex(),
		UserID:         goal.UserID.Hex(),
		TrainingID:     goal.TrainingID,
		Title:          goal.Title,
		Metric:         goal.Metric,
		QuantityTarget: goal.QuantityTarget,
		Progress:       goal.Progress,
		DateInit:       goal.DateInit,
		DateComplete:   goal.DateComplete,
		IssuedAt:       n.clock().UTC(),
	}
	body, err := json.Marshal(receipt)
	if err != nil {
		return err
	}
	return n.receipts.PutObject(ctx, ReceiptKey(goal), "application/json", body)
}

// notifyCompletion runs the notifier and maps any failure to ErrDownstreamUnavailable.
func (s *goalService) notifyCompletion(ctx context.Context, caller domain.Caller, goal *domain.Goal) error {
	if s.notifier == nil {
		return nil
	}
	if err := s.notifier.NotifyCompletion(ctx, caller, goal); err != nil {
		return fmt.Errorf("%w: %v", ErrDownstreamUnavailable, err)
	}
	return nil
}

// GetReceiptURL returns a short-lived download link for a completed goal's receipt.
func (s *goalService) GetReceiptURL(ctx context.Context, caller domain.Caller, goalID primitive.ObjectID) (string, error) {
	if s.receipts == nil {
		return "", ErrReceiptUnavailable
	}
	goal, err := s.loadOwned(ctx, caller, goalID)
	if err != nil {
		return "", err
	}
	if goal.State != domain.StateComplete {
		return "", fmt.Errorf("%w: goal is not complete", ErrReceiptUnavailable)
	}

	key := ReceiptKey(goal)
	exists, err := s.receipts.ObjectExists(ctx, key)
	if err != nil {
		return "", fmt.Errorf("check receipt: %w", err)
	}
	if !exists {
		return "", ErrReceiptUnavailable
	}
	return s.receipts.GeneratePresignedDownloadURL(ctx, key, s.opts.ReceiptURLExpiry)
}
