package messaging

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SenderType string

const (
	SenderClient  SenderType = "client"
	SenderTrainer SenderType = "trainer"
	SenderSystem  SenderType = "system"
)

type MessageThread struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	OrgID     primitive.ObjectID `json:"org_id" bson:"org_id"`
	ClientID  primitive.ObjectID `json:"client_id" bson:"client_id"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}

type Message struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	OrgID      primitive.ObjectID `json:"org_id" bson:"org_id"`
	ThreadID   primitive.ObjectID `json:"thread_id" bson:"thread_id"`
	SenderType SenderType         `json:"sender_type" bson:"sender_type"`
	Body       string             `json:"body" bson:"body"`
	CreatedAt  time.Time          `json:"created_at" bson:"created_at"`
}
