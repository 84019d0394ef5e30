package booking

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCompleted BookingStatus = "completed"
	StatusCancelled BookingStatus = "cancelled"
)

type Booking struct {
	ID           primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	OrgID        primitive.ObjectID `json:"org_id" bson:"org_id"`
	ClientID     primitive.ObjectID `json:"client_id" bson:"client_id"`
	StartTime    time.Time          `json:"start_time" bson:"start_time"`
	EndTime      time.Time          `json:"end_time" bson:"end_time"`
	Status       BookingStatus      `json:"status" bson:"status"`
	LocationType string             `json:"location_type,omitempty" bson:"location_type,omitempty"`
	// ClientConfirmed is the client's own attendance confirmation, distinct
	// from the trainer confirming the slot (Status).
	ClientConfirmed    bool       `json:"client_confirmed" bson:"client_confirmed"`
	ConfirmationSentAt *time.Time `json:"confirmation_sent_at,omitempty" bson:"confirmation_sent_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at" bson:"created_at"`
}
