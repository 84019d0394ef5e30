package jobs

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	JobAutomations  = "automations"
	JobSmsWorker    = "sms-worker"
	JobSmsReminders = "sms-reminders"
)

type JobRunStatus string

const (
	JobRunRunning JobRunStatus = "running"
	JobRunSuccess JobRunStatus = "success"
	JobRunFailed  JobRunStatus = "failed"
)

// JobRun is one execution of a background pass, written at start and settled
// at the end.
type JobRun struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	JobName    string             `json:"job_name" bson:"job_name"`
	Status     JobRunStatus       `json:"status" bson:"status"`
	StartTime  time.Time          `json:"start_time" bson:"start_time"`
	EndTime    *time.Time         `json:"end_time,omitempty" bson:"end_time,omitempty"`
	DurationMs int64              `json:"duration_ms" bson:"duration_ms"`
	// Detail carries the pass summary as JSON.
	Detail string `json:"detail,omitempty" bson:"detail,omitempty"`
	Error  string `json:"error,omitempty" bson:"error,omitempty"`
}
