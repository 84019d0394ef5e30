package messaging

import (
	"context"
	"time"

	"coachkit/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type MessagingRepository interface {
	GetThreadByClient(ctx context.Context, orgID, clientID primitive.ObjectID) (*MessageThread, error)
	CreateThread(ctx context.Context, thread *MessageThread) error
	InsertMessage(ctx context.Context, message *Message) error
}

type MessagingRepositoryImpl struct {
	Threads  *mongo.Collection
	Messages *mongo.Collection
}

func NewMessagingRepository(mongodb *database.MongodbDB) MessagingRepository {
	return &MessagingRepositoryImpl{
		Threads:  mongodb.DB.Collection("message_threads"),
		Messages: mongodb.DB.Collection("messages"),
	}
}

func (r *MessagingRepositoryImpl) GetThreadByClient(ctx context.Context, orgID, clientID primitive.ObjectID) (*MessageThread, error) {
	var thread MessageThread
	err := r.Threads.FindOne(ctx, bson.M{"org_id": orgID, "client_id": clientID}).Decode(&thread)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &thread, nil
}

func (r *MessagingRepositoryImpl) CreateThread(ctx context.Context, thread *MessageThread) error {
	thread.ID = primitive.NewObjectID()
	thread.CreatedAt = time.Now()
	_, err := r.Threads.InsertOne(ctx, thread)
	return err
}

func (r *MessagingRepositoryImpl) InsertMessage(ctx context.Context, message *Message) error {
	message.ID = primitive.NewObjectID()
	message.CreatedAt = time.Now()
	_, err := r.Messages.InsertOne(ctx, message)
	return err
}
