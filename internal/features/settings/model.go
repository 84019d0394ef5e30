package settings

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SmsSettings holds an org's messaging configuration. Mutated only through
// the tenant-facing settings pages; the job code reads it.
type SmsSettings struct {
	ID       primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	OrgID    primitive.ObjectID `json:"org_id" bson:"org_id"`
	Enabled  bool               `json:"enabled" bson:"enabled"`
	Timezone string             `json:"timezone" bson:"timezone"`

	QuietHoursStart int `json:"quiet_hours_start" bson:"quiet_hours_start"` // 0-23
	QuietHoursEnd   int `json:"quiet_hours_end" bson:"quiet_hours_end"`

	MaxSmsPerClientPerDay int `json:"max_sms_per_client_per_day" bson:"max_sms_per_client_per_day"`

	TwilioAccountSID          string `json:"twilio_account_sid,omitempty" bson:"twilio_account_sid,omitempty"`
	TwilioAuthTokenEncrypted  string `json:"-" bson:"twilio_auth_token_encrypted,omitempty"`
	TwilioPhoneNumber         string `json:"twilio_phone_number,omitempty" bson:"twilio_phone_number,omitempty"`
	TwilioMessagingServiceSID string `json:"twilio_messaging_service_sid,omitempty" bson:"twilio_messaging_service_sid,omitempty"`

	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// SenderPhone resolves the from address: a messaging service SID wins over a
// bare phone number.
func (s *SmsSettings) SenderPhone() string {
	if s.TwilioMessagingServiceSID != "" {
		return s.TwilioMessagingServiceSID
	}
	return s.TwilioPhoneNumber
}
