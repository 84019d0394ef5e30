package sms

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MessageStatus string

const (
	// StatusPending rows were enqueued but not yet released to the worker.
	StatusPending MessageStatus = "pending"
	// StatusQueued rows are eligible for delivery once next_attempt_at passes.
	StatusQueued MessageStatus = "queued"
	// StatusSending rows are leased by a worker pass until locked_until.
	StatusSending MessageStatus = "sending"
	StatusSent    MessageStatus = "sent"
	// StatusDelivered is set by the provider status callback, never by the worker.
	StatusDelivered MessageStatus = "delivered"
	StatusFailed    MessageStatus = "failed"
)

// SmsMessage is one queued outbound text. The worker owns every status
// transition except delivered, which the provider callback reports.
type SmsMessage struct {
	ID       primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	OrgID    primitive.ObjectID `json:"org_id" bson:"org_id"`
	ClientID primitive.ObjectID `json:"client_id" bson:"client_id"`

	Phone string `json:"phone" bson:"phone"`
	Body  string `json:"body" bson:"body"`

	Status        MessageStatus `json:"status" bson:"status"`
	AttemptCount  int           `json:"attempt_count" bson:"attempt_count"`
	NextAttemptAt time.Time     `json:"next_attempt_at" bson:"next_attempt_at"`
	// LockedUntil is the lease expiry while status is sending. A crashed pass
	// leaves the row claimable again once it passes.
	LockedUntil *time.Time `json:"locked_until,omitempty" bson:"locked_until,omitempty"`

	// IdempotencyKey deduplicates enqueue calls; unique-indexed when set.
	IdempotencyKey    string `json:"idempotency_key,omitempty" bson:"idempotency_key,omitempty"`
	ProviderMessageID string `json:"provider_message_id,omitempty" bson:"provider_message_id,omitempty"`
	LastError         string `json:"last_error,omitempty" bson:"last_error,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty" bson:"metadata,omitempty"`

	SentAt    *time.Time `json:"sent_at,omitempty" bson:"sent_at,omitempty"`
	CreatedAt time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" bson:"updated_at"`
}

// QuietHoursOverride reports whether the message was enqueued with the flag
// that lets it send inside the org's quiet window.
func (m *SmsMessage) QuietHoursOverride() bool {
	if m.Metadata == nil {
		return false
	}
	v, _ := m.Metadata["quiet_hours_override"].(bool)
	return v
}

// SmsAttempt is one provider call for a message, recorded win or lose.
type SmsAttempt struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	MessageID     primitive.ObjectID `json:"message_id" bson:"message_id"`
	AttemptNumber int                `json:"attempt_number" bson:"attempt_number"`
	HTTPStatus    int                `json:"http_status" bson:"http_status"`
	ProviderCode  *int               `json:"provider_code,omitempty" bson:"provider_code,omitempty"`
	ErrorMessage  string             `json:"error_message,omitempty" bson:"error_message,omitempty"`
	CreatedAt     time.Time          `json:"created_at" bson:"created_at"`
}

type SuppressionReason string

const (
	SuppressionInvalidNumber SuppressionReason = "invalid_number"
	SuppressionOptOut        SuppressionReason = "opt_out"
)

// SmsSuppression blocks all future sends to a phone number within an org.
type SmsSuppression struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	OrgID     primitive.ObjectID `json:"org_id" bson:"org_id"`
	Phone     string             `json:"phone" bson:"phone"`
	Reason    SuppressionReason  `json:"reason" bson:"reason"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}

type ScheduleKind string

const (
	// SchedulePreSession texts go out mins_offset minutes before a session starts.
	SchedulePreSession ScheduleKind = "pre_session"
	// SchedulePostSession texts go out mins_offset minutes after a session ends.
	SchedulePostSession ScheduleKind = "post_session"
)

// SmsSchedule is an org's reminder template: when to send relative to a
// booking, and what.
type SmsSchedule struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	OrgID      primitive.ObjectID `json:"org_id" bson:"org_id"`
	Kind       ScheduleKind       `json:"kind" bson:"kind"`
	MinsOffset int                `json:"mins_offset" bson:"mins_offset"`
	Body       string             `json:"body" bson:"body"`
	Enabled    bool               `json:"enabled" bson:"enabled"`
	CreatedAt  time.Time          `json:"created_at" bson:"created_at"`
}
