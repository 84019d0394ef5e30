package sms

import (
	"context"
	"time"

	"coachkit/internal/features/settings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type requeueCall struct {
	id            primitive.ObjectID
	nextAttemptAt time.Time
	attemptCount  int
	lastError     string
}

type sentCall struct {
	id                primitive.ObjectID
	providerMessageID string
	attemptCount      int
}

type failCall struct {
	id           primitive.ObjectID
	reason       string
	attemptCount int
}

type mockMessageRepository struct {
	byKey     map[string]*SmsMessage
	claimable []SmsMessage
	inserted  []*SmsMessage
	insertErr error
	countFn   func(clientID primitive.ObjectID, since time.Time) (int64, error)

	promoted int64
	requeues []requeueCall
	sent     []sentCall
	failed   []failCall
	attempts []SmsAttempt
	receipts []string
}

func (m *mockMessageRepository) Insert(ctx context.Context, msg *SmsMessage) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	msg.ID = primitive.NewObjectID()
	m.inserted = append(m.inserted, msg)
	return nil
}

func (m *mockMessageRepository) FindByIdempotencyKey(ctx context.Context, key string) (*SmsMessage, error) {
	if msg, ok := m.byKey[key]; ok {
		return msg, nil
	}
	return nil, nil
}

func (m *mockMessageRepository) CountForClientSince(ctx context.Context, clientID primitive.ObjectID, since time.Time) (int64, error) {
	if m.countFn != nil {
		return m.countFn(clientID, since)
	}
	return 0, nil
}

func (m *mockMessageRepository) PromotePending(ctx context.Context, now time.Time) (int64, error) {
	return m.promoted, nil
}

func (m *mockMessageRepository) ClaimDue(ctx context.Context, now time.Time, limit int, lockUntil time.Time) ([]SmsMessage, error) {
	if len(m.claimable) > limit {
		return m.claimable[:limit], nil
	}
	return m.claimable, nil
}

func (m *mockMessageRepository) Requeue(ctx context.Context, id primitive.ObjectID, nextAttemptAt time.Time, attemptCount int, lastError string) error {
	m.requeues = append(m.requeues, requeueCall{id: id, nextAttemptAt: nextAttemptAt, attemptCount: attemptCount, lastError: lastError})
	return nil
}

func (m *mockMessageRepository) MarkSent(ctx context.Context, id primitive.ObjectID, providerMessageID string, attemptCount int, now time.Time) error {
	m.sent = append(m.sent, sentCall{id: id, providerMessageID: providerMessageID, attemptCount: attemptCount})
	return nil
}

func (m *mockMessageRepository) MarkFailed(ctx context.Context, id primitive.ObjectID, reason string, attemptCount int, now time.Time) error {
	m.failed = append(m.failed, failCall{id: id, reason: reason, attemptCount: attemptCount})
	return nil
}

func (m *mockMessageRepository) InsertAttempt(ctx context.Context, attempt *SmsAttempt) error {
	m.attempts = append(m.attempts, *attempt)
	return nil
}

func (m *mockMessageRepository) UpdateDeliveryStatus(ctx context.Context, providerMessageID string, status MessageStatus, deliveryError string) error {
	m.receipts = append(m.receipts, providerMessageID+":"+string(status))
	return nil
}

func (m *mockMessageRepository) EnsureIndexes(ctx context.Context) error { return nil }

type suppressionCall struct {
	phone  string
	reason SuppressionReason
}

type mockSuppressionRepository struct {
	suppressed map[string]bool // keyed by phone
	upserts    []suppressionCall
	err        error
}

func (m *mockSuppressionRepository) Upsert(ctx context.Context, s *SmsSuppression) error {
	m.upserts = append(m.upserts, suppressionCall{phone: s.Phone, reason: s.Reason})
	return nil
}

func (m *mockSuppressionRepository) IsSuppressed(ctx context.Context, orgID primitive.ObjectID, phone string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return m.suppressed[phone], nil
}

func (m *mockSuppressionRepository) EnsureIndexes(ctx context.Context) error { return nil }

type mockSettingsRepository struct {
	settings  map[primitive.ObjectID]*settings.SmsSettings
	err       error
	listCalls int
}

func (m *mockSettingsRepository) GetByOrg(ctx context.Context, orgID primitive.ObjectID) (*settings.SmsSettings, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.settings[orgID], nil
}

func (m *mockSettingsRepository) ListByOrgs(ctx context.Context, orgIDs []primitive.ObjectID) (map[primitive.ObjectID]*settings.SmsSettings, error) {
	m.listCalls++
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[primitive.ObjectID]*settings.SmsSettings, len(orgIDs))
	for _, id := range orgIDs {
		if s, ok := m.settings[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

type mockProvider struct {
	responses []ProviderResponse
	errs      []error
	calls     []SendRequest
}

func (m *mockProvider) Send(ctx context.Context, req SendRequest) (ProviderResponse, error) {
	i := len(m.calls)
	m.calls = append(m.calls, req)
	var resp ProviderResponse
	var err error
	if i < len(m.responses) {
		resp = m.responses[i]
	}
	if i < len(m.errs) {
		err = m.errs[i]
	}
	return resp, err
}
