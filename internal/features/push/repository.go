package push

import (
	"context"
	"time"

	"coachkit/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// PushToken is registered by the client mobile app (a collaborator); read-only here.
type PushToken struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ClientID  primitive.ObjectID `json:"client_id" bson:"client_id"`
	Token     string             `json:"token" bson:"token"`
	Platform  string             `json:"platform" bson:"platform"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}

type PushTokenRepository interface {
	ListByClient(ctx context.Context, clientID primitive.ObjectID) ([]PushToken, error)
}

type PushTokenRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewPushTokenRepository(mongodb *database.MongodbDB) PushTokenRepository {
	return &PushTokenRepositoryImpl{
		Collection: mongodb.DB.Collection("push_tokens"),
	}
}

func (r *PushTokenRepositoryImpl) ListByClient(ctx context.Context, clientID primitive.ObjectID) ([]PushToken, error) {
	cursor, err := r.Collection.Find(ctx, bson.M{"client_id": clientID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var tokens []PushToken
	if err = cursor.All(ctx, &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}
