package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dandantas/renewer/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrDuplicateTask is returned when an active task already exists for the account
var ErrDuplicateTask = errors.New("active renewal task already exists")

// TaskRepository handles the durable renewal task handoff
type TaskRepository struct {
	collection *mongo.Collection
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *MongoDB) *TaskRepository {
	return &TaskRepository{
		collection: db.GetCollection(CollectionRenewalTasks),
	}
}

// Create inserts a new pending task. The unique partial index on active
// tasks turns a concurrent second insert for the same account into
// ErrDuplicateTask.
func (r *TaskRepository) Create(ctx context.Context, task *model.RenewalTask) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if task.ID.IsZero() {
		task.ID = primitive.NewObjectID()
	}
	if task.Status == "" {
		task.Status = model.TaskStatusPending
	}
	task.Active = true

	_, err := r.collection.InsertOne(ctxTimeout, task)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateTask
		}
		return fmt.Errorf("failed to create renewal task: %w", err)
	}

	return nil
}

// GetByID retrieves a task by ID
func (r *TaskRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*model.RenewalTask, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var task model.RenewalTask
	err := r.collection.FindOne(ctxTimeout, bson.M{"_id": id}).Decode(&task)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get renewal task: %w", err)
	}

	return &task, nil
}

// FindActiveBySystemID returns the pending or claimed task for an account,
// or nil when none exists
func (r *TaskRepository) FindActiveBySystemID(ctx context.Context, systemID string) (*model.RenewalTask, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{
		"system_id": systemID,
		"status":    bson.M{"$in": model.ActiveTaskStatuses},
	}

	var task model.RenewalTask
	err := r.collection.FindOne(ctxTimeout, filter).Decode(&task)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find active renewal task: %w", err)
	}

	return &task, nil
}

// ClaimNext atomically moves the oldest pending task to claimed for the given
// worker. Returns nil when nothing is pending.
func (r *TaskRepository) ClaimNext(ctx context.Context, workerID string, now time.Time) (*model.RenewalTask, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := claimFilter(now)
	update := bson.M{
		"$set": bson.M{
			"status":     model.TaskStatusClaimed,
			"claimed_by": workerID,
			"claimed_at": now,
		},
		"$inc": bson.M{"attempts": 1},
	}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetReturnDocument(options.After)

	var task model.RenewalTask
	err := r.collection.FindOneAndUpdate(ctxTimeout, filter, update, opts).Decode(&task)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim renewal task: %w", err)
	}

	slog.Debug("Claimed renewal task",
		"task_id", task.ID.Hex(),
		"system_id", task.SystemID,
		"worker_id", workerID,
		"attempt", task.Attempts,
	)

	return &task, nil
}

// claimFilter matches pending tasks whose retry backoff has elapsed
func claimFilter(now time.Time) bson.M {
	return bson.M{
		"status": model.TaskStatusPending,
		"$or": bson.A{
			bson.M{"not_before": bson.M{"$exists": false}},
			bson.M{"not_before": bson.M{"$lte": now}},
		},
	}
}

// Requeue returns a claimed task to pending after a transient failure. The
// task cannot be claimed again before notBefore.
func (r *TaskRepository) Requeue(ctx context.Context, id primitive.ObjectID, reason, screenshot string, notBefore time.Time) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"status":     model.TaskStatusPending,
			"last_error": reason,
			"screenshot": screenshot,
			"not_before": notBefore,
		},
		"$unset": bson.M{"claimed_by": "", "claimed_at": ""},
	}

	result, err := r.collection.UpdateOne(ctxTimeout, bson.M{"_id": id, "status": model.TaskStatusClaimed}, update)
	if err != nil {
		return fmt.Errorf("failed to requeue renewal task: %w", err)
	}

	if result.MatchedCount == 0 {
		return ErrNotFound
	}

	return nil
}

// Finish moves a claimed task to a terminal status and returns the updated task
func (r *TaskRepository) Finish(ctx context.Context, id primitive.ObjectID, status model.TaskStatus, reason, screenshot string, now time.Time) (*model.RenewalTask, error) {
	if status != model.TaskStatusDone && status != model.TaskStatusFailed {
		return nil, fmt.Errorf("invalid terminal status: %s", status)
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	set := bson.M{
		"status":       status,
		"active":       false,
		"completed_at": now,
	}
	if reason != "" {
		set["last_error"] = reason
	}
	if screenshot != "" {
		set["screenshot"] = screenshot
	}

	filter := bson.M{
		"_id":    id,
		"status": bson.M{"$in": model.ActiveTaskStatuses},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var task model.RenewalTask
	err := r.collection.FindOneAndUpdate(ctxTimeout, filter, bson.M{"$set": set}, opts).Decode(&task)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to finish renewal task: %w", err)
	}

	return &task, nil
}

// FindStuck retrieves tasks claimed before the given time that never finished
func (r *TaskRepository) FindStuck(ctx context.Context, claimedBefore time.Time) ([]model.RenewalTask, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	filter := bson.M{
		"status":     model.TaskStatusClaimed,
		"claimed_at": bson.M{"$lt": claimedBefore},
	}

	cursor, err := r.collection.Find(ctxTimeout, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find stuck tasks: %w", err)
	}
	defer cursor.Close(ctxTimeout)

	var tasks []model.RenewalTask
	if err := cursor.All(ctxTimeout, &tasks); err != nil {
		return nil, fmt.Errorf("failed to decode stuck tasks: %w", err)
	}

	return tasks, nil
}

// List retrieves tasks with filtering and pagination
func (r *TaskRepository) List(ctx context.Context, filter bson.M, page, limit int) ([]model.RenewalTask, int64, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	total, err := r.collection.CountDocuments(ctxTimeout, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count renewal tasks: %w", err)
	}

	skip := (page - 1) * limit
	opts := options.Find().
		SetSkip(int64(skip)).
		SetLimit(int64(limit)).
		SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := r.collection.Find(ctxTimeout, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list renewal tasks: %w", err)
	}
	defer cursor.Close(ctxTimeout)

	var tasks []model.RenewalTask
	if err := cursor.All(ctxTimeout, &tasks); err != nil {
		return nil, 0, fmt.Errorf("failed to decode renewal tasks: %w", err)
	}

	return tasks, total, nil
}
