package client

import (
	"context"

	"coachkit/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ClientRepository interface {
	GetByID(ctx context.Context, id string) (*Client, error)
	ListActiveByOrg(ctx context.Context, orgID primitive.ObjectID) ([]Client, error)
	RiskForDay(ctx context.Context, clientID primitive.ObjectID, day string) (*ClientRisk, error)
	SubscriptionFor(ctx context.Context, clientID primitive.ObjectID) (*Subscription, error)
	LastActivity(ctx context.Context, clientID primitive.ObjectID) (*ActivityEvent, error)
	// LatestPaidPurchase returns the client's most recent succeeded package
	// purchase, or nil when they never bought one.
	LatestPaidPurchase(ctx context.Context, clientID primitive.ObjectID) (*Purchase, error)
}

type ClientRepositoryImpl struct {
	Clients       *mongo.Collection
	Risk          *mongo.Collection
	Subscriptions *mongo.Collection
	Activity      *mongo.Collection
	Purchases     *mongo.Collection
}

func NewClientRepository(mongodb *database.MongodbDB) ClientRepository {
	return &ClientRepositoryImpl{
		Clients:       mongodb.DB.Collection("clients"),
		Risk:          mongodb.DB.Collection("client_risk"),
		Subscriptions: mongodb.DB.Collection("subscriptions"),
		Activity:      mongodb.DB.Collection("activity_events"),
		Purchases:     mongodb.DB.Collection("client_purchases"),
	}
}

func (r *ClientRepositoryImpl) GetByID(ctx context.Context, id string) (*Client, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}
	var c Client
	err = r.Clients.FindOne(ctx, bson.M{"_id": oid}).Decode(&c)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *ClientRepositoryImpl) ListActiveByOrg(ctx context.Context, orgID primitive.ObjectID) ([]Client, error) {
	cursor, err := r.Clients.Find(ctx, bson.M{"org_id": orgID, "status": StatusActive})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var clients []Client
	if err = cursor.All(ctx, &clients); err != nil {
		return nil, err
	}
	return clients, nil
}

func (r *ClientRepositoryImpl) RiskForDay(ctx context.Context, clientID primitive.ObjectID, day string) (*ClientRisk, error) {
	var risk ClientRisk
	err := r.Risk.FindOne(ctx, bson.M{"client_id": clientID, "as_of_date": day}).Decode(&risk)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &risk, nil
}

func (r *ClientRepositoryImpl) SubscriptionFor(ctx context.Context, clientID primitive.ObjectID) (*Subscription, error) {
	var sub Subscription
	err := r.Subscriptions.FindOne(ctx, bson.M{"client_id": clientID}).Decode(&sub)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *ClientRepositoryImpl) LatestPaidPurchase(ctx context.Context, clientID primitive.ObjectID) (*Purchase, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "purchased_at", Value: -1}})
	var p Purchase
	err := r.Purchases.FindOne(ctx, bson.M{"client_id": clientID, "payment_status": "succeeded"}, opts).Decode(&p)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *ClientRepositoryImpl) LastActivity(ctx context.Context, clientID primitive.ObjectID) (*ActivityEvent, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	var event ActivityEvent
	err := r.Activity.FindOne(ctx, bson.M{"client_id": clientID}, opts).Decode(&event)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}
