package models

import (
	"time"
)

type ContextKey string

const (
	OrgIDKey ContextKey = "org_id"
)

// Log is the shape of the rows written by the async zap tee.
type Log struct {
	Message      string    `bson:"message" json:"message"`
	Caller       string    `bson:"caller,omitempty" json:"caller,omitempty"`
	OrgID        string    `bson:"org_id,omitempty" json:"org_id,omitempty"`
	LogLevelId   int       `bson:"log_level_id" json:"log_level_id"`
	CreatedOnUtc time.Time `bson:"created_on_utc" json:"created_on_utc"`
}
