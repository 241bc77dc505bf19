package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/fiufit-grupo-4/goals-microservice/internal/domain"
	"github.com/fiufit-grupo-4/goals-microservice/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const GoalCollectionName = "goals"

// mongoGoalRepository implements repository.GoalRepository
type mongoGoalRepository struct {
	collection *mongo.Collection
}

// NewMongoGoalRepository creates a new Goal repository.
func NewMongoGoalRepository(db *mongo.Database) repository.GoalRepository {
	return &mongoGoalRepository{
		collection: db.Collection(GoalCollectionName),
	}
}

// Create inserts a new goal.
func (r *mongoGoalRepository) Create(ctx context.Context, goal *domain.Goal) (primitive.ObjectID, error) {
	if goal.UserID == primitive.NilObjectID {
		return primitive.NilObjectID, errors.New("goal requires a user id")
	}
	goal.ID = primitive.NewObjectID()
	if goal.CreatedAt.IsZero() {
		goal.CreatedAt = time.Now().UTC()
	}
	goal.UpdatedAt = goal.CreatedAt

	result, err := r.collection.InsertOne(ctx, goal)
	if err != nil {
		return primitive.NilObjectID, err
	}
	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted goal ID")
	}
	return insertedID, nil
}

// GetByID retrieves a single goal by its ID.
func (r *mongoGoalRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Goal, error) {
	var goal domain.Goal
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&goal)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &goal, nil
}

// ListByUser retrieves the goals owned by a user in creation order.
func (r *mongoGoalRepository) ListByUser(ctx context.Context, userID primitive.ObjectID, limit int) ([]domain.Goal, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if limit > 0 {
		findOptions.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	goals := []domain.Goal{}
	if err = cursor.All(ctx, &goals); err != nil {
		return nil, err
	}
	return goals, nil
}

// UpdateFields sets the editable fields of a goal, guarded on its current state.
func (r *mongoGoalRepository) UpdateFields(ctx context.Context, id primitive.ObjectID, update repository.GoalUpdate, expectState domain.State) (*domain.Goal, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if update.Title != nil {
		set["title"] = *update.Title
	}
	if update.Description != nil {
		set["description"] = *update.Description
	}
	if update.LimitTime != nil {
		set["limit_time"] = *update.LimitTime
	}

	updateDoc := bson.M{}
	if update.Reset {
		set["state"] = domain.StateNotInitiated
		set["progress"] = 0.0
		updateDoc["$unset"] = bson.M{"date_init": "", "date_complete": ""}
	}
	updateDoc["$set"] = set

	filter := bson.M{"_id": id, "state": expectState}
	return r.findOneAndUpdate(ctx, id, filter, updateDoc)
}

// CompareAndSetState moves a goal from change.From to change.To in a single conditional update.
func (r *mongoGoalRepository) CompareAndSetState(ctx context.Context, id primitive.ObjectID, change domain.StateChange) (*domain.Goal, error) {
	set := bson.M{
		"state":      change.To,
		"updated_at": time.Now().UTC(),
	}
	if change.DateInit != nil {
		set["date_init"] = *change.DateInit
	}
	if change.DateComplete != nil {
		set["date_complete"] = *change.DateComplete
	}
	if change.Progress != nil {
		set["progress"] = *change.Progress
	}

	filter := bson.M{"_id": id, "state": change.From}
	return r.findOneAndUpdate(ctx, id, filter, bson.M{"$set": set})
}

// IncrementProgress adds amount with $inc so concurrent progress reports never overwrite each other.
func (r *mongoGoalRepository) IncrementProgress(ctx context.Context, id primitive.ObjectID, amount float64, now time.Time) (*domain.Goal, error) {
	filter := bson.M{
		"_id":   id,
		"state": domain.StateInitiated,
		"$or": bson.A{
			bson.M{"limit_time": nil},
			bson.M{"limit_time": bson.M{"$gte": now}},
		},
	}
	updateDoc := bson.M{
		"$inc": bson.M{"progress": amount},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	return r.findOneAndUpdate(ctx, id, filter, updateDoc)
}

// Delete removes a goal by its ID.
func (r *mongoGoalRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Ping checks that the primary is reachable.
func (r *mongoGoalRepository) Ping(ctx context.Context) error {
	return r.collection.Database().Client().Ping(ctx, readpref.Primary())
}

// findOneAndUpdate runs a guarded update and tells a missing goal apart from a failed guard.
func (r *mongoGoalRepository) findOneAndUpdate(ctx context.Context, id primitive.ObjectID, filter, updateDoc bson.M) (*domain.Goal, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var goal domain.Goal
	err := r.collection.FindOneAndUpdate(ctx, filter, updateDoc, opts).Decode(&goal)
	if err == nil {
		return &goal, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}

	count, err := r.collection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, repository.ErrNotFound
	}
	return nil, repository.ErrStateChanged
}

// EnsureGoalIndexes creates necessary indexes. Call during startup.
func EnsureGoalIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			// Listing and batch progress both scan a single user's goals
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "state", Value: 1}},
			Options: options.Index(),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
