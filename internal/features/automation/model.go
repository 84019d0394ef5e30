package automation

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type TriggerType string

const (
	TriggerSchedule TriggerType = "schedule"
	TriggerEvent    TriggerType = "event"
)

type ScheduleCadence string

const (
	CadenceDaily  ScheduleCadence = "daily"
	CadenceWeekly ScheduleCadence = "weekly"
)

// Trigger decides when a rule becomes eligible for evaluation. Event triggers
// are always eligible; eligibility is then entirely down to the conditions.
type Trigger struct {
	Type     TriggerType     `json:"type" bson:"type"`
	Schedule ScheduleCadence `json:"schedule,omitempty" bson:"schedule,omitempty"`
	Event    string          `json:"event,omitempty" bson:"event,omitempty"` // "risk_red", "payment_failed", "inactivity", "milestone"
}

type ConditionField string

const (
	FieldRiskTier           ConditionField = "risk_tier"
	FieldRiskScore          ConditionField = "risk_score"
	FieldSubscriptionStatus ConditionField = "subscription_status"
	FieldDaysSinceActivity  ConditionField = "days_since_activity"
	FieldStatus             ConditionField = "status"
)

type ConditionOperator string

const (
	OperatorEq       ConditionOperator = "eq"
	OperatorNeq      ConditionOperator = "neq"
	OperatorGt       ConditionOperator = "gt"
	OperatorLt       ConditionOperator = "lt"
	OperatorGte      ConditionOperator = "gte"
	OperatorLte      ConditionOperator = "lte"
	OperatorIn       ConditionOperator = "in"
	OperatorContains ConditionOperator = "contains"
)

type Condition struct {
	Field    ConditionField    `json:"field" bson:"field"`
	Operator ConditionOperator `json:"operator" bson:"operator"`
	Value    interface{}       `json:"value" bson:"value"`
}

type ActionType string

const (
	ActionSendMessage   ActionType = "send_message"
	ActionSendPush      ActionType = "send_push"
	ActionNotifyTrainer ActionType = "notify_trainer"

	// Declared in the rule builder but not implemented yet. They must no-op
	// safely, never error.
	ActionCreateOffer ActionType = "create_offer"
	ActionTagClient   ActionType = "tag_client"
)

type ActionParams struct {
	Title string `json:"title,omitempty" bson:"title,omitempty"`
	Body  string `json:"body,omitempty" bson:"body,omitempty"`
	Tag   string `json:"tag,omitempty" bson:"tag,omitempty"`
}

type Action struct {
	Type   ActionType   `json:"type" bson:"type"`
	Params ActionParams `json:"params" bson:"params"`
}

// GuardrailPolicy throttles how often a rule may fire toward one client.
// A nil field means that check is skipped entirely, not "limit zero".
type GuardrailPolicy struct {
	MaxPerClientPerDay  *int `json:"max_per_client_per_day,omitempty" bson:"max_per_client_per_day,omitempty"`
	MaxPerClientPerWeek *int `json:"max_per_client_per_week,omitempty" bson:"max_per_client_per_week,omitempty"`
	QuietHoursStart     *int `json:"quiet_hours_start,omitempty" bson:"quiet_hours_start,omitempty"` // 0-23
	QuietHoursEnd       *int `json:"quiet_hours_end,omitempty" bson:"quiet_hours_end,omitempty"`
	DedupeHours         *int `json:"dedupe_hours,omitempty" bson:"dedupe_hours,omitempty"`
}

// AutomationRule is owned by the tenant org and mutated only through the
// tenant-facing configuration pages; the engine treats it as read-only.
type AutomationRule struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	OrgID      primitive.ObjectID `json:"org_id" bson:"org_id"`
	Name       string             `json:"name" bson:"name"`
	Enabled    bool               `json:"enabled" bson:"enabled"`
	Trigger    Trigger            `json:"trigger" bson:"trigger"`
	Conditions []Condition        `json:"conditions" bson:"conditions"`
	Actions    []Action           `json:"actions" bson:"actions"`
	Guardrails GuardrailPolicy    `json:"guardrails" bson:"guardrails"`
	CreatedAt  time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at" bson:"updated_at"`
}

type RunStatus string

const (
	RunOK      RunStatus = "ok"
	RunSkipped RunStatus = "skipped"
	RunFailed  RunStatus = "failed"
)

// AutomationRun is the append-only audit record: exactly one per
// (automation, client) evaluation per pass, never mutated after insert.
type AutomationRun struct {
	ID           primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	OrgID        primitive.ObjectID `json:"org_id" bson:"org_id"`
	AutomationID primitive.ObjectID `json:"automation_id" bson:"automation_id"`
	ClientID     primitive.ObjectID `json:"client_id" bson:"client_id"`
	Status       RunStatus          `json:"status" bson:"status"`
	Reason       string             `json:"reason,omitempty" bson:"reason,omitempty"`
	ActionsFired []Action           `json:"actions_fired" bson:"actions_fired"`
	FiredAt      time.Time          `json:"fired_at" bson:"fired_at"`
}
