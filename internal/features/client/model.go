package client

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ClientStatus string

const (
	StatusActive   ClientStatus = "active"
	StatusInactive ClientStatus = "inactive"
	StatusArchived ClientStatus = "archived"
)

type Client struct {
	ID                 primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	OrgID              primitive.ObjectID `json:"org_id" bson:"org_id"`
	FullName           string             `json:"full_name" bson:"full_name"`
	Email              *string            `json:"email,omitempty" bson:"email,omitempty"`
	Phone              string             `json:"phone,omitempty" bson:"phone,omitempty"`
	Status             ClientStatus       `json:"status" bson:"status"`
	SmsReminderEnabled *bool              `json:"sms_reminder_enabled,omitempty" bson:"sms_reminder_enabled,omitempty"`
	SmsFollowupEnabled *bool              `json:"sms_followup_enabled,omitempty" bson:"sms_followup_enabled,omitempty"`
	CreatedAt          time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at" bson:"updated_at"`
}

// ClientRisk is written daily by the risk scoring job (a collaborator).
type ClientRisk struct {
	ID       primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ClientID primitive.ObjectID `json:"client_id" bson:"client_id"`
	Tier     string             `json:"tier" bson:"tier"` // "green", "amber", "red"
	Score    float64            `json:"score" bson:"score"`
	AsOfDate string             `json:"as_of_date" bson:"as_of_date"` // YYYY-MM-DD
}

// Subscription mirrors the payment provider's state (written by webhooks, read-only here).
type Subscription struct {
	ID       primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ClientID primitive.ObjectID `json:"client_id" bson:"client_id"`
	Status   string             `json:"status" bson:"status"` // "active", "past_due", "canceled"
}

// Purchase is a paid session package (written by the billing webhook,
// read-only here).
type Purchase struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ClientID      primitive.ObjectID `json:"client_id" bson:"client_id"`
	SessionsTotal int                `json:"sessions_total" bson:"sessions_total"`
	SessionsUsed  int                `json:"sessions_used" bson:"sessions_used"`
	PaymentStatus string             `json:"payment_status" bson:"payment_status"`
	PurchasedAt   time.Time          `json:"purchased_at" bson:"purchased_at"`
}

type ActivityEvent struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ClientID  primitive.ObjectID `json:"client_id" bson:"client_id"`
	Kind      string             `json:"kind" bson:"kind"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}

// ClientContext is the per-client view the automation engine evaluates
// conditions against. It is recomputed on every pass, never persisted.
// Every enrichment field is independently nullable: a client without a risk
// row, subscription, or any recorded activity still gets a context.
type ClientContext struct {
	ID                 primitive.ObjectID
	OrgID              primitive.ObjectID
	FullName           string
	Email              *string
	Status             ClientStatus
	RiskTier           *string
	RiskScore          *float64
	SubscriptionStatus *string
	LastActivityAt     *time.Time
	DaysSinceActivity  *int
}
