package sms

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"coachkit/internal/features/client"
	"coachkit/internal/features/settings"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// DefaultDailyLimit applies when an org has not configured its own cap.
const DefaultDailyLimit = 5

var phonePattern = regexp.MustCompile(`^\+\d{10,15}$`)

var (
	ErrSmsDisabled  = errors.New("sms is disabled for this organization")
	ErrInvalidPhone = errors.New("phone number must be E.164, e.g. +15551234567")
	ErrSuppressed   = errors.New("phone number is suppressed")
	ErrRateLimited  = errors.New("daily sms limit reached for this client")
	ErrEmptyBody    = errors.New("message body is required")
)

// EnqueueRequest describes one outbound text. Phone falls back to the
// client's number when empty. SendAt in the future parks the message as
// pending until then.
type EnqueueRequest struct {
	OrgID              primitive.ObjectID     `json:"org_id"`
	ClientID           primitive.ObjectID     `json:"client_id"`
	Phone              string                 `json:"phone,omitempty"`
	Body               string                 `json:"body"`
	IdempotencyKey     string                 `json:"idempotency_key,omitempty"`
	QuietHoursOverride bool                   `json:"quiet_hours_override,omitempty"`
	SendAt             *time.Time             `json:"send_at,omitempty"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
}

// SmsService is the enqueue front door: it validates, applies the org policy
// checks that make sense at submission time, and writes the queue row. The
// worker owns everything after that.
type SmsService interface {
	Enqueue(ctx context.Context, req EnqueueRequest) (*SmsMessage, error)
}

type SmsServiceImpl struct {
	messages     MessageRepository
	suppressions SuppressionRepository
	settingsRepo settings.SettingsRepository
	clientRepo   client.ClientRepository
	logger       *zap.Logger
}

func NewSmsService(
	messages MessageRepository,
	suppressions SuppressionRepository,
	settingsRepo settings.SettingsRepository,
	clientRepo client.ClientRepository,
	logger *zap.Logger,
) SmsService {
	return &SmsServiceImpl{
		messages:     messages,
		suppressions: suppressions,
		settingsRepo: settingsRepo,
		clientRepo:   clientRepo,
		logger:       logger,
	}
}

func (s *SmsServiceImpl) Enqueue(ctx context.Context, req EnqueueRequest) (*SmsMessage, error) {
	if req.Body == "" {
		return nil, ErrEmptyBody
	}

	if req.IdempotencyKey != "" {
		existing, err := s.messages.FindByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("idempotency lookup failed: %w", err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	orgSettings, err := s.settingsRepo.GetByOrg(ctx, req.OrgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load org settings: %w", err)
	}
	if orgSettings == nil || !orgSettings.Enabled {
		return nil, ErrSmsDisabled
	}

	phone := req.Phone
	if phone == "" {
		c, err := s.clientRepo.GetByID(ctx, req.ClientID.Hex())
		if err != nil {
			return nil, fmt.Errorf("failed to load client: %w", err)
		}
		if c == nil {
			return nil, fmt.Errorf("client %s not found", req.ClientID.Hex())
		}
		phone = c.Phone
	}
	if !phonePattern.MatchString(phone) {
		return nil, ErrInvalidPhone
	}

	suppressed, err := s.suppressions.IsSuppressed(ctx, req.OrgID, phone)
	if err != nil {
		return nil, fmt.Errorf("suppression lookup failed: %w", err)
	}
	if suppressed {
		return nil, ErrSuppressed
	}

	now := time.Now().UTC()
	if err := s.checkDailyLimit(ctx, req.ClientID, orgSettings, now); err != nil {
		return nil, err
	}

	key := req.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	msg := &SmsMessage{
		OrgID:          req.OrgID,
		ClientID:       req.ClientID,
		Phone:          phone,
		Body:           req.Body,
		Status:         StatusQueued,
		NextAttemptAt:  now,
		IdempotencyKey: key,
		Metadata:       req.Metadata,
	}
	if req.SendAt != nil && req.SendAt.After(now) {
		msg.Status = StatusPending
		msg.NextAttemptAt = req.SendAt.UTC()
	}
	if req.QuietHoursOverride {
		if msg.Metadata == nil {
			msg.Metadata = map[string]interface{}{}
		}
		msg.Metadata["quiet_hours_override"] = true
	}

	if err := s.messages.Insert(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to enqueue message: %w", err)
	}
	s.logger.Info("SMS enqueued",
		zap.String("message_id", msg.ID.Hex()),
		zap.String("org_id", req.OrgID.Hex()),
		zap.String("status", string(msg.Status)))
	return msg, nil
}

// checkDailyLimit counts the client's messages since local midnight against
// the org cap.
func (s *SmsServiceImpl) checkDailyLimit(ctx context.Context, clientID primitive.ObjectID, orgSettings *settings.SmsSettings, now time.Time) error {
	limit := orgSettings.MaxSmsPerClientPerDay
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	localNow := now.In(orgLocation(orgSettings.Timezone))
	midnight := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), 0, 0, 0, 0, localNow.Location())
	count, err := s.messages.CountForClientSince(ctx, clientID, midnight.UTC())
	if err != nil {
		return fmt.Errorf("rate limit lookup failed: %w", err)
	}
	if count >= int64(limit) {
		return ErrRateLimited
	}
	return nil
}
