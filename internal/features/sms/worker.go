package sms

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"coachkit/internal/config"
	"coachkit/internal/features/settings"
	"coachkit/pkg/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	// BatchSize caps how many messages one pass claims.
	BatchSize = 10
	// VisibilityTimeout is the lease a claimed message holds. A pass that dies
	// mid-flight releases its messages when the lease expires.
	VisibilityTimeout = 5 * time.Minute
	// MaxRetries is the total delivery attempts before a message fails for good.
	MaxRetries = 4
	// BaseRetryDelay seeds the exponential backoff between attempts.
	BaseRetryDelay = 60 * time.Second
	// MaxRetryDelay caps the backoff.
	MaxRetryDelay = time.Hour
	// MaxRetryJitter spreads retries so a burst does not come back as a burst.
	MaxRetryJitter = 30 * time.Second
	// errorRequeueDelay is the flat delay after an unexpected processing error.
	errorRequeueDelay = 5 * time.Minute
)

// suppressionCodes maps the provider error codes that should block the number
// from all future sends.
var suppressionCodes = map[int]SuppressionReason{
	21211: SuppressionInvalidNumber, // invalid 'To' number
	21614: SuppressionInvalidNumber, // not a mobile number
	21610: SuppressionOptOut,        // recipient replied STOP
}

// NextRetryDelay computes the backoff before the given attempt is retried:
// base doubles per attempt, capped, plus jitter.
func NextRetryDelay(attempt int, jitter time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := BaseRetryDelay << (attempt - 1)
	if delay > MaxRetryDelay || delay <= 0 {
		delay = MaxRetryDelay
	}
	return delay + jitter
}

// WorkerSummary is the outcome of one delivery pass.
type WorkerSummary struct {
	Promoted    int64 `json:"promoted"`
	Claimed     int   `json:"claimed"`
	Sent        int   `json:"sent"`
	Requeued    int   `json:"requeued"`
	Failed      int   `json:"failed"`
	Rescheduled int   `json:"rescheduled"`
}

// SmsWorker drains the outbound queue: claim a batch under lease, send each
// message, and settle it as sent, requeued with backoff, or failed. A
// processing error never loses the message; it goes back to the queue with
// its lease released.
type SmsWorker interface {
	RunPass(ctx context.Context, now time.Time) WorkerSummary
}

type SmsWorkerImpl struct {
	messages     MessageRepository
	suppressions SuppressionRepository
	settingsRepo settings.SettingsRepository
	provider     SmsProvider
	config       *config.Config
	logger       *zap.Logger
	// jitter is injectable so retry timing is deterministic under test.
	jitter func() time.Duration
}

func NewSmsWorker(
	messages MessageRepository,
	suppressions SuppressionRepository,
	settingsRepo settings.SettingsRepository,
	provider SmsProvider,
	config *config.Config,
	logger *zap.Logger,
) SmsWorker {
	return &SmsWorkerImpl{
		messages:     messages,
		suppressions: suppressions,
		settingsRepo: settingsRepo,
		provider:     provider,
		config:       config,
		logger:       logger,
		jitter: func() time.Duration {
			return time.Duration(rand.Int63n(int64(MaxRetryJitter)))
		},
	}
}

func (w *SmsWorkerImpl) RunPass(ctx context.Context, now time.Time) WorkerSummary {
	summary := WorkerSummary{}

	promoted, err := w.messages.PromotePending(ctx, now)
	if err != nil {
		w.logger.Error("Failed to promote pending messages", zap.Error(err))
	}
	summary.Promoted = promoted

	claimed, err := w.messages.ClaimDue(ctx, now, BatchSize, now.Add(VisibilityTimeout))
	if err != nil {
		w.logger.Error("Failed to claim due messages", zap.Error(err))
	}
	summary.Claimed = len(claimed)
	if len(claimed) == 0 {
		return summary
	}

	// One settings fetch for the whole batch; messages from the same org are
	// common and a claim holds its lease while we read.
	settingsByOrg, err := w.settingsRepo.ListByOrgs(ctx, claimedOrgIDs(claimed))
	if err != nil {
		for i := range claimed {
			w.requeueAfterError(ctx, &claimed[i], now, fmt.Errorf("failed to load org settings: %w", err))
			summary.Requeued++
		}
		return summary
	}

	for i := range claimed {
		switch w.processMessage(ctx, &claimed[i], settingsByOrg[claimed[i].OrgID], now) {
		case dispositionSent:
			summary.Sent++
		case dispositionRequeued:
			summary.Requeued++
		case dispositionFailed:
			summary.Failed++
		case dispositionRescheduled:
			summary.Rescheduled++
		}
	}
	return summary
}

func claimedOrgIDs(claimed []SmsMessage) []primitive.ObjectID {
	seen := make(map[primitive.ObjectID]bool, len(claimed))
	ids := make([]primitive.ObjectID, 0, len(claimed))
	for _, msg := range claimed {
		if !seen[msg.OrgID] {
			seen[msg.OrgID] = true
			ids = append(ids, msg.OrgID)
		}
	}
	return ids
}

type disposition int

const (
	dispositionSent disposition = iota
	dispositionRequeued
	dispositionFailed
	dispositionRescheduled
)

func (w *SmsWorkerImpl) processMessage(ctx context.Context, msg *SmsMessage, orgSettings *settings.SmsSettings, now time.Time) disposition {
	if orgSettings == nil || !orgSettings.Enabled {
		w.markFailed(ctx, msg, now, "SMS disabled for organization")
		return dispositionFailed
	}

	suppressed, err := w.suppressions.IsSuppressed(ctx, msg.OrgID, msg.Phone)
	if err != nil {
		return w.requeueAfterError(ctx, msg, now, fmt.Errorf("suppression lookup failed: %w", err))
	}
	if suppressed {
		w.markFailed(ctx, msg, now, "Phone number suppressed")
		return dispositionFailed
	}

	// Quiet hours are re-checked at delivery time: a message enqueued in the
	// afternoon may come up for its retry at midnight.
	if !msg.QuietHoursOverride() {
		loc := orgLocation(orgSettings.Timezone)
		localNow := now.In(loc)
		if utils.InQuietHours(localNow.Hour(), orgSettings.QuietHoursStart, orgSettings.QuietHoursEnd) {
			resumeAt := quietHoursEnd(localNow, orgSettings.QuietHoursEnd)
			// No attempt is consumed; the message just waits out the window.
			if err := w.messages.Requeue(ctx, msg.ID, resumeAt.UTC(), msg.AttemptCount, ""); err != nil {
				w.logger.Error("Failed to reschedule for quiet hours",
					zap.String("message_id", msg.ID.Hex()), zap.Error(err))
			}
			return dispositionRescheduled
		}
	}

	if msg.AttemptCount >= MaxRetries {
		w.markFailed(ctx, msg, now, fmt.Sprintf("Max retries (%d) exceeded", MaxRetries))
		return dispositionFailed
	}
	attempt := msg.AttemptCount + 1

	from := orgSettings.SenderPhone()
	if from == "" {
		w.markFailed(ctx, msg, now, "No sender phone configured")
		return dispositionFailed
	}
	accountSID, authToken := ResolveCredentials(
		orgSettings.TwilioAccountSID, w.orgAuthToken(orgSettings), w.config)
	if accountSID == "" || authToken == "" {
		w.markFailed(ctx, msg, now, "No provider credentials configured")
		return dispositionFailed
	}

	resp, err := w.provider.Send(ctx, SendRequest{
		To:             msg.Phone,
		Body:           msg.Body,
		From:           from,
		AccountSID:     accountSID,
		AuthToken:      authToken,
		StatusCallback: w.config.PublicBaseURL + "/api/sms/status-callback",
	})
	if err != nil {
		w.recordAttempt(ctx, msg, attempt, ProviderResponse{ErrorMessage: err.Error()})
		return w.requeueAfterErrorWithAttempt(ctx, msg, now, attempt, err)
	}
	w.recordAttempt(ctx, msg, attempt, resp)

	switch Classify(resp) {
	case OutcomeSuccess:
		if err := w.messages.MarkSent(ctx, msg.ID, resp.ProviderMessageID, attempt, now); err != nil {
			w.logger.Error("Failed to mark message sent",
				zap.String("message_id", msg.ID.Hex()), zap.Error(err))
		}
		return dispositionSent

	case OutcomeTransient:
		reason := providerErrorString(resp)
		if attempt >= MaxRetries {
			w.markFailedWithAttempt(ctx, msg, now, attempt, fmt.Sprintf("Max retries (%d) exceeded: %s", MaxRetries, reason))
			return dispositionFailed
		}
		retryAt := now.Add(NextRetryDelay(attempt, w.jitter()))
		if err := w.messages.Requeue(ctx, msg.ID, retryAt, attempt, reason); err != nil {
			w.logger.Error("Failed to requeue message",
				zap.String("message_id", msg.ID.Hex()), zap.Error(err))
		}
		return dispositionRequeued

	default:
		reason := providerErrorString(resp)
		w.markFailedWithAttempt(ctx, msg, now, attempt, reason)
		if resp.ErrorCode != nil {
			if sr, ok := suppressionCodes[*resp.ErrorCode]; ok {
				if err := w.suppressions.Upsert(ctx, &SmsSuppression{
					OrgID:  msg.OrgID,
					Phone:  msg.Phone,
					Reason: sr,
				}); err != nil {
					w.logger.Error("Failed to record suppression",
						zap.String("phone", msg.Phone), zap.Error(err))
				}
			}
		}
		return dispositionFailed
	}
}

func (w *SmsWorkerImpl) orgAuthToken(s *settings.SmsSettings) string {
	if s.TwilioAuthTokenEncrypted == "" {
		return ""
	}
	token, err := utils.DecryptString(s.TwilioAuthTokenEncrypted, w.config.EncryptionKey)
	if err != nil {
		w.logger.Warn("Failed to decrypt org auth token, falling back to platform credentials",
			zap.String("org_id", s.OrgID.Hex()), zap.Error(err))
		return ""
	}
	return token
}

func (w *SmsWorkerImpl) recordAttempt(ctx context.Context, msg *SmsMessage, attempt int, resp ProviderResponse) {
	err := w.messages.InsertAttempt(ctx, &SmsAttempt{
		MessageID:     msg.ID,
		AttemptNumber: attempt,
		HTTPStatus:    resp.HTTPStatus,
		ProviderCode:  resp.ErrorCode,
		ErrorMessage:  resp.ErrorMessage,
	})
	if err != nil {
		w.logger.Error("Failed to record delivery attempt",
			zap.String("message_id", msg.ID.Hex()), zap.Error(err))
	}
}

func (w *SmsWorkerImpl) requeueAfterError(ctx context.Context, msg *SmsMessage, now time.Time, cause error) disposition {
	return w.requeueAfterErrorWithAttempt(ctx, msg, now, msg.AttemptCount, cause)
}

// requeueAfterErrorWithAttempt is the catch-all: the message goes back to the
// queue with a flat delay and its lease released, never lost.
func (w *SmsWorkerImpl) requeueAfterErrorWithAttempt(ctx context.Context, msg *SmsMessage, now time.Time, attempt int, cause error) disposition {
	w.logger.Error("Message processing error, requeueing",
		zap.String("message_id", msg.ID.Hex()), zap.Error(cause))
	if err := w.messages.Requeue(ctx, msg.ID, now.Add(errorRequeueDelay), attempt, cause.Error()); err != nil {
		w.logger.Error("Failed to requeue message after error",
			zap.String("message_id", msg.ID.Hex()), zap.Error(err))
	}
	return dispositionRequeued
}

func (w *SmsWorkerImpl) markFailed(ctx context.Context, msg *SmsMessage, now time.Time, reason string) {
	w.markFailedWithAttempt(ctx, msg, now, msg.AttemptCount, reason)
}

func (w *SmsWorkerImpl) markFailedWithAttempt(ctx context.Context, msg *SmsMessage, now time.Time, attempt int, reason string) {
	if err := w.messages.MarkFailed(ctx, msg.ID, reason, attempt, now); err != nil {
		w.logger.Error("Failed to mark message failed",
			zap.String("message_id", msg.ID.Hex()), zap.Error(err))
	}
}

func providerErrorString(resp ProviderResponse) string {
	if resp.ErrorMessage != "" {
		if resp.ErrorCode != nil {
			return fmt.Sprintf("%s (code %d)", resp.ErrorMessage, *resp.ErrorCode)
		}
		return resp.ErrorMessage
	}
	return fmt.Sprintf("Provider rejected with HTTP %d", resp.HTTPStatus)
}

func orgLocation(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// quietHoursEnd returns the next local time the quiet window closes.
func quietHoursEnd(localNow time.Time, endHour int) time.Time {
	resume := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), endHour, 0, 0, 0, localNow.Location())
	if !resume.After(localNow) {
		resume = resume.Add(24 * time.Hour)
	}
	return resume
}
