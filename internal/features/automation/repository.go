package automation

import (
	"context"
	"time"

	"coachkit/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type RuleRepository interface {
	ListEnabled(ctx context.Context) ([]AutomationRule, error)
	GetByID(ctx context.Context, id string) (*AutomationRule, error)
}

type RuleRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewRuleRepository(mongodb *database.MongodbDB) RuleRepository {
	return &RuleRepositoryImpl{
		Collection: mongodb.DB.Collection("automations"),
	}
}

func (r *RuleRepositoryImpl) ListEnabled(ctx context.Context) ([]AutomationRule, error) {
	cursor, err := r.Collection.Find(ctx, bson.M{"enabled": true})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var rules []AutomationRule
	if err = cursor.All(ctx, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *RuleRepositoryImpl) GetByID(ctx context.Context, id string) (*AutomationRule, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}
	var rule AutomationRule
	err = r.Collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&rule)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

// RunFilter narrows the reporting queries; zero values mean "no filter".
type RunFilter struct {
	AutomationID *primitive.ObjectID
	Status       RunStatus
	Since        *time.Time
	Until        *time.Time
	Limit        int64
}

type RunRepository interface {
	// Insert appends one run row. Runs are never updated or deleted.
	Insert(ctx context.Context, run *AutomationRun) error
	// LastOKFiredAt returns the fired_at of the most recent ok run for the
	// automation, or nil when it has never fired successfully.
	LastOKFiredAt(ctx context.Context, automationID primitive.ObjectID) (*time.Time, error)
	// CountOKSince counts ok runs for the (automation, client) pair with
	// fired_at >= since. Skipped and failed runs never count.
	CountOKSince(ctx context.Context, automationID, clientID primitive.ObjectID, since time.Time) (int64, error)
	ListByOrg(ctx context.Context, orgID primitive.ObjectID, filter RunFilter) ([]AutomationRun, error)
	EnsureIndexes(ctx context.Context) error
}

type RunRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewRunRepository(mongodb *database.MongodbDB) RunRepository {
	return &RunRepositoryImpl{
		Collection: mongodb.DB.Collection("automation_runs"),
	}
}

func (r *RunRepositoryImpl) Insert(ctx context.Context, run *AutomationRun) error {
	run.ID = primitive.NewObjectID()
	if run.ActionsFired == nil {
		run.ActionsFired = []Action{}
	}
	_, err := r.Collection.InsertOne(ctx, run)
	return err
}

func (r *RunRepositoryImpl) LastOKFiredAt(ctx context.Context, automationID primitive.ObjectID) (*time.Time, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "fired_at", Value: -1}})
	var run AutomationRun
	err := r.Collection.FindOne(ctx, bson.M{
		"automation_id": automationID,
		"status":        RunOK,
	}, opts).Decode(&run)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &run.FiredAt, nil
}

func (r *RunRepositoryImpl) CountOKSince(ctx context.Context, automationID, clientID primitive.ObjectID, since time.Time) (int64, error) {
	return r.Collection.CountDocuments(ctx, bson.M{
		"automation_id": automationID,
		"client_id":     clientID,
		"status":        RunOK,
		"fired_at":      bson.M{"$gte": since},
	})
}

func (r *RunRepositoryImpl) ListByOrg(ctx context.Context, orgID primitive.ObjectID, filter RunFilter) ([]AutomationRun, error) {
	query := bson.M{"org_id": orgID}
	if filter.AutomationID != nil {
		query["automation_id"] = *filter.AutomationID
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	firedAt := bson.M{}
	if filter.Since != nil {
		firedAt["$gte"] = *filter.Since
	}
	if filter.Until != nil {
		firedAt["$lte"] = *filter.Until
	}
	if len(firedAt) > 0 {
		query["fired_at"] = firedAt
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "fired_at", Value: -1}}).
		SetLimit(limit)

	cursor, err := r.Collection.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var runs []AutomationRun
	if err = cursor.All(ctx, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *RunRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.Collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "automation_id", Value: 1}, {Key: "client_id", Value: 1}, {Key: "status", Value: 1}, {Key: "fired_at", Value: -1}}},
		{Keys: bson.D{{Key: "org_id", Value: 1}, {Key: "fired_at", Value: -1}}},
	})
	return err
}
