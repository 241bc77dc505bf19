package domain

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// State is the lifecycle state of a goal. The numeric codes are persisted as-is
// and must stay stable across releases.
type State int

const (
	StateNotInitiated State = 1
	StateInitiated    State = 2
	StateComplete     State = 3
	StateStopped      State = 4
	StateExpired      State = 5
)

func (s State) String() string {
	switch s {
	case StateNotInitiated:
		return "NOT_INITIATED"
	case StateInitiated:
		return "INITIATED"
	case StateComplete:
		return "COMPLETE"
	case StateStopped:
		return "STOPPED"
	case StateExpired:
		return "EXPIRED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Valid reports whether s is one of the known lifecycle states.
func (s State) Valid() bool {
	return s >= StateNotInitiated && s <= StateExpired
}

// Metric is the unit a goal target and its progress are measured in.
type Metric string

const (
	MetricSteps      Metric = "Steps"
	MetricKilometers Metric = "Kilometers"
	MetricCalories   Metric = "Calories"
)

func (m Metric) Valid() bool {
	switch m {
	case MetricSteps, MetricKilometers, MetricCalories:
		return true
	}
	return false
}

// Goal is a trackable fitness target owned by one athlete.
type Goal struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID         primitive.ObjectID `bson:"user_id" json:"user_id"`
	TrainingID     *string            `bson:"training_id,omitempty" json:"training_id,omitempty"` // Set for training-linked goals
	Title          string             `bson:"title" json:"title"`
	Description    string             `bson:"description" json:"description"`
	Metric         Metric             `bson:"metric" json:"metric"`
	QuantityTarget float64            `bson:"quantity_target" json:"quantity_target"`
	Progress       float64            `bson:"progress" json:"progress"`
	State          State              `bson:"state" json:"state"`
	LimitTime      *time.Time         `bson:"limit_time,omitempty" json:"limit_time,omitempty"`
	DateInit       *time.Time         `bson:"date_init,omitempty" json:"date_init,omitempty"`
	DateComplete   *time.Time         `bson:"date_complete,omitempty" json:"date_complete,omitempty"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updated_at"`
}

// IsTrainingLinked reports whether completing this goal must be reported to the training service.
func (g *Goal) IsTrainingLinked() bool {
	return g.TrainingID != nil && *g.TrainingID != ""
}

// IsExpiredAt reports whether the goal's deadline has passed at now and the goal
// still has to be moved to EXPIRED. Completed goals keep their state.
func (g *Goal) IsExpiredAt(now time.Time) bool {
	if g.LimitTime == nil {
		return false
	}
	if g.State == StateExpired || g.State == StateComplete {
		return false
	}
	return g.LimitTime.Before(now)
}

// GoalPatch carries a partial update. Only fields with Set == true are applied.
// Metric and QuantityTarget are accepted so that attempts to change them can be rejected.
type GoalPatch struct {
	Title          Optional[string]    `json:"title"`
	Description    Optional[string]    `json:"description"`
	LimitTime      Optional[time.Time] `json:"limit_time"`
	Metric         Optional[Metric]    `json:"metric"`
	QuantityTarget Optional[float64]   `json:"quantity_target"`
}

// IsEmpty reports whether the patch carries no field at all.
func (p GoalPatch) IsEmpty() bool {
	return !p.Title.Set && !p.Description.Set && !p.LimitTime.Set && !p.Metric.Set && !p.QuantityTarget.Set
}

// TouchesImmutable reports whether the patch tries to change a field fixed at creation.
func (p GoalPatch) TouchesImmutable() bool {
	return p.Metric.Set || p.QuantityTarget.Set
}
