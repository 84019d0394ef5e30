package jobs

import (
	"context"
	"time"

	"coachkit/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type JobRunRepository interface {
	Create(ctx context.Context, run *JobRun) error
	Finish(ctx context.Context, id primitive.ObjectID, status JobRunStatus, detail, errMsg string, endTime time.Time) error
	ListRecent(ctx context.Context, jobName string, limit int64) ([]JobRun, error)
}

type JobRunRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewJobRunRepository(mongodb *database.MongodbDB) JobRunRepository {
	return &JobRunRepositoryImpl{
		Collection: mongodb.DB.Collection("job_runs"),
	}
}

func (r *JobRunRepositoryImpl) Create(ctx context.Context, run *JobRun) error {
	run.ID = primitive.NewObjectID()
	_, err := r.Collection.InsertOne(ctx, run)
	return err
}

func (r *JobRunRepositoryImpl) Finish(ctx context.Context, id primitive.ObjectID, status JobRunStatus, detail, errMsg string, endTime time.Time) error {
	var start JobRun
	if err := r.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&start); err != nil {
		return err
	}
	_, err := r.Collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"status":      status,
			"detail":      detail,
			"error":       errMsg,
			"end_time":    endTime,
			"duration_ms": endTime.Sub(start.StartTime).Milliseconds(),
		},
	})
	return err
}

func (r *JobRunRepositoryImpl) ListRecent(ctx context.Context, jobName string, limit int64) ([]JobRun, error) {
	query := bson.M{}
	if jobName != "" {
		query["job_name"] = jobName
	}
	if limit <= 0 {
		limit = 50
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "start_time", Value: -1}}).
		SetLimit(limit)
	cursor, err := r.Collection.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var runs []JobRun
	if err = cursor.All(ctx, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}
