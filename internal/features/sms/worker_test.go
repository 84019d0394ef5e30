package sms

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"coachkit/internal/config"
	"coachkit/internal/features/settings"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func testConfig() *config.Config {
	return &config.Config{
		TwilioAccountSID: "ACplatform",
		TwilioAuthToken:  "platform-token",
		PublicBaseURL:    "https://app.example.com",
	}
}

func enabledSettings(orgID primitive.ObjectID) *settings.SmsSettings {
	return &settings.SmsSettings{
		OrgID:             orgID,
		Enabled:           true,
		Timezone:          "UTC",
		QuietHoursStart:   22,
		QuietHoursEnd:     7,
		TwilioPhoneNumber: "+15550001111",
	}
}

func newTestWorker(msgs *mockMessageRepository, supp *mockSuppressionRepository, sets *mockSettingsRepository, provider *mockProvider) *SmsWorkerImpl {
	w := NewSmsWorker(msgs, supp, sets, provider, testConfig(), zap.NewNop()).(*SmsWorkerImpl)
	w.jitter = func() time.Duration { return 0 }
	return w
}

func queuedMessage(orgID primitive.ObjectID, attempts int) SmsMessage {
	return SmsMessage{
		ID:           primitive.NewObjectID(),
		OrgID:        orgID,
		ClientID:     primitive.NewObjectID(),
		Phone:        "+15557654321",
		Body:         "Hello",
		Status:       StatusQueued,
		AttemptCount: attempts,
	}
}

// Noon UTC, well outside the 22-7 quiet window.
var noon = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestWorkerSendsSuccessfully(t *testing.T) {
	orgID := primitive.NewObjectID()
	msg := queuedMessage(orgID, 0)
	msgs := &mockMessageRepository{claimable: []SmsMessage{msg}}
	provider := &mockProvider{responses: []ProviderResponse{{ProviderMessageID: "SM123", HTTPStatus: 201}}}
	sets := &mockSettingsRepository{settings: map[primitive.ObjectID]*settings.SmsSettings{orgID: enabledSettings(orgID)}}

	worker := newTestWorker(msgs, &mockSuppressionRepository{}, sets, provider)
	summary := worker.RunPass(context.Background(), noon)

	if summary.Sent != 1 || summary.Claimed != 1 {
		t.Errorf("summary = %+v, want one claimed and sent", summary)
	}
	if len(msgs.sent) != 1 {
		t.Fatalf("MarkSent calls = %d, want 1", len(msgs.sent))
	}
	if msgs.sent[0].providerMessageID != "SM123" || msgs.sent[0].attemptCount != 1 {
		t.Errorf("sent call = %+v", msgs.sent[0])
	}
	if len(msgs.attempts) != 1 || msgs.attempts[0].AttemptNumber != 1 || msgs.attempts[0].HTTPStatus != 201 {
		t.Errorf("attempt rows = %+v", msgs.attempts)
	}
	if len(provider.calls) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(provider.calls))
	}
	call := provider.calls[0]
	if call.From != "+15550001111" || call.AccountSID != "ACplatform" {
		t.Errorf("send request = %+v, want org sender with platform credentials", call)
	}
}

func TestWorkerSenderPrefersMessagingService(t *testing.T) {
	orgID := primitive.NewObjectID()
	s := enabledSettings(orgID)
	s.TwilioMessagingServiceSID = "MGabc123"
	msgs := &mockMessageRepository{claimable: []SmsMessage{queuedMessage(orgID, 0)}}
	provider := &mockProvider{responses: []ProviderResponse{{HTTPStatus: 201}}}
	sets := &mockSettingsRepository{settings: map[primitive.ObjectID]*settings.SmsSettings{orgID: s}}

	newTestWorker(msgs, &mockSuppressionRepository{}, sets, provider).RunPass(context.Background(), noon)

	if len(provider.calls) != 1 || provider.calls[0].From != "MGabc123" {
		t.Errorf("expected messaging service SID as sender, got %+v", provider.calls)
	}
}

func TestWorkerTransientBackoff(t *testing.T) {
	tests := []struct {
		name       string
		httpStatus int
	}{
		{name: "rate limited", httpStatus: 429},
		{name: "provider error", httpStatus: 503},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orgID := primitive.NewObjectID()
			msgs := &mockMessageRepository{claimable: []SmsMessage{queuedMessage(orgID, 0)}}
			provider := &mockProvider{responses: []ProviderResponse{{HTTPStatus: tt.httpStatus}}}
			sets := &mockSettingsRepository{settings: map[primitive.ObjectID]*settings.SmsSettings{orgID: enabledSettings(orgID)}}

			summary := newTestWorker(msgs, &mockSuppressionRepository{}, sets, provider).RunPass(context.Background(), noon)

			if summary.Requeued != 1 {
				t.Fatalf("summary = %+v, want one requeue", summary)
			}
			rq := msgs.requeues[0]
			if rq.attemptCount != 1 {
				t.Errorf("attemptCount = %d, want 1", rq.attemptCount)
			}
			// First retry: base delay, zero jitter under test.
			want := noon.Add(BaseRetryDelay)
			if !rq.nextAttemptAt.Equal(want) {
				t.Errorf("nextAttemptAt = %v, want %v", rq.nextAttemptAt, want)
			}
		})
	}
}

func TestWorkerRetryCeilingWithoutSend(t *testing.T) {
	orgID := primitive.NewObjectID()
	msgs := &mockMessageRepository{claimable: []SmsMessage{queuedMessage(orgID, MaxRetries)}}
	provider := &mockProvider{}
	sets := &mockSettingsRepository{settings: map[primitive.ObjectID]*settings.SmsSettings{orgID: enabledSettings(orgID)}}

	summary := newTestWorker(msgs, &mockSuppressionRepository{}, sets, provider).RunPass(context.Background(), noon)

	if summary.Failed != 1 {
		t.Fatalf("summary = %+v, want one failure", summary)
	}
	if len(provider.calls) != 0 {
		t.Errorf("exhausted message must not reach the provider")
	}
	if msgs.failed[0].reason != "Max retries (4) exceeded" {
		t.Errorf("reason = %q", msgs.failed[0].reason)
	}
}

func TestWorkerTransientAtCeilingFails(t *testing.T) {
	orgID := primitive.NewObjectID()
	msgs := &mockMessageRepository{claimable: []SmsMessage{queuedMessage(orgID, MaxRetries-1)}}
	provider := &mockProvider{responses: []ProviderResponse{{HTTPStatus: 500}}}
	sets := &mockSettingsRepository{settings: map[primitive.ObjectID]*settings.SmsSettings{orgID: enabledSettings(orgID)}}

	summary := newTestWorker(msgs, &mockSuppressionRepository{}, sets, provider).RunPass(context.Background(), noon)

	if summary.Failed != 1 || summary.Requeued != 0 {
		t.Fatalf("summary = %+v, want final failure not requeue", summary)
	}
	if !strings.HasPrefix(msgs.failed[0].reason, "Max retries (4) exceeded") {
		t.Errorf("reason = %q", msgs.failed[0].reason)
	}
	if msgs.failed[0].attemptCount != MaxRetries {
		t.Errorf("attemptCount = %d, want %d", msgs.failed[0].attemptCount, MaxRetries)
	}
}

func TestWorkerPermanentErrorSuppression(t *testing.T) {
	code := func(c int) *int { return &c }
	tests := []struct {
		name         string
		resp         ProviderResponse
		wantReason   SuppressionReason
		wantSuppress bool
	}{
		{
			name:         "invalid number",
			resp:         ProviderResponse{HTTPStatus: 400, ErrorCode: code(21211), ErrorMessage: "Invalid 'To' Phone Number"},
			wantReason:   SuppressionInvalidNumber,
			wantSuppress: true,
		},
		{
			name:         "not a mobile",
			resp:         ProviderResponse{HTTPStatus: 400, ErrorCode: code(21614)},
			wantReason:   SuppressionInvalidNumber,
			wantSuppress: true,
		},
		{
			name:         "opted out",
			resp:         ProviderResponse{HTTPStatus: 400, ErrorCode: code(21610), ErrorMessage: "Unsubscribed recipient"},
			wantReason:   SuppressionOptOut,
			wantSuppress: true,
		},
		{
			name:         "other permanent error",
			resp:         ProviderResponse{HTTPStatus: 400, ErrorCode: code(21602)},
			wantSuppress: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orgID := primitive.NewObjectID()
			msgs := &mockMessageRepository{claimable: []SmsMessage{queuedMessage(orgID, 0)}}
			supp := &mockSuppressionRepository{}
			provider := &mockProvider{responses: []ProviderResponse{tt.resp}}
			sets := &mockSettingsRepository{settings: map[primitive.ObjectID]*settings.SmsSettings{orgID: enabledSettings(orgID)}}

			summary := newTestWorker(msgs, supp, sets, provider).RunPass(context.Background(), noon)

			if summary.Failed != 1 {
				t.Fatalf("summary = %+v, want one failure", summary)
			}
			if tt.wantSuppress {
				if len(supp.upserts) != 1 || supp.upserts[0].reason != tt.wantReason {
					t.Errorf("suppressions = %+v, want one %q", supp.upserts, tt.wantReason)
				}
			} else if len(supp.upserts) != 0 {
				t.Errorf("unexpected suppression %+v", supp.upserts)
			}
		})
	}
}

func TestWorkerQuietHoursReschedule(t *testing.T) {
	orgID := primitive.NewObjectID()

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "late evening waits for tomorrow morning",
			now:  time.Date(2026, 3, 10, 22, 30, 0, 0, time.UTC),
			want: time.Date(2026, 3, 11, 7, 0, 0, 0, time.UTC),
		},
		{
			name: "early morning waits for same morning",
			now:  time.Date(2026, 3, 10, 5, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := queuedMessage(orgID, 2)
			msgs := &mockMessageRepository{claimable: []SmsMessage{msg}}
			provider := &mockProvider{}
			sets := &mockSettingsRepository{settings: map[primitive.ObjectID]*settings.SmsSettings{orgID: enabledSettings(orgID)}}

			summary := newTestWorker(msgs, &mockSuppressionRepository{}, sets, provider).RunPass(context.Background(), tt.now)

			if summary.Rescheduled != 1 {
				t.Fatalf("summary = %+v, want one reschedule", summary)
			}
			if len(provider.calls) != 0 {
				t.Error("quiet-hours message must not reach the provider")
			}
			rq := msgs.requeues[0]
			if !rq.nextAttemptAt.Equal(tt.want) {
				t.Errorf("nextAttemptAt = %v, want %v", rq.nextAttemptAt, tt.want)
			}
			if rq.attemptCount != 2 {
				t.Errorf("attemptCount = %d, reschedule must not consume an attempt", rq.attemptCount)
			}
		})
	}
}

func TestWorkerQuietHoursOverrideSends(t *testing.T) {
	orgID := primitive.NewObjectID()
	msg := queuedMessage(orgID, 0)
	msg.Metadata = map[string]interface{}{"quiet_hours_override": true}
	msgs := &mockMessageRepository{claimable: []SmsMessage{msg}}
	provider := &mockProvider{responses: []ProviderResponse{{HTTPStatus: 201}}}
	sets := &mockSettingsRepository{settings: map[primitive.ObjectID]*settings.SmsSettings{orgID: enabledSettings(orgID)}}

	night := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	summary := newTestWorker(msgs, &mockSuppressionRepository{}, sets, provider).RunPass(context.Background(), night)

	if summary.Sent != 1 {
		t.Errorf("summary = %+v, override should send during quiet hours", summary)
	}
}

func TestWorkerSuppressedNumberFails(t *testing.T) {
	orgID := primitive.NewObjectID()
	msg := queuedMessage(orgID, 0)
	msgs := &mockMessageRepository{claimable: []SmsMessage{msg}}
	supp := &mockSuppressionRepository{suppressed: map[string]bool{msg.Phone: true}}
	provider := &mockProvider{}
	sets := &mockSettingsRepository{settings: map[primitive.ObjectID]*settings.SmsSettings{orgID: enabledSettings(orgID)}}

	summary := newTestWorker(msgs, supp, sets, provider).RunPass(context.Background(), noon)

	if summary.Failed != 1 || len(provider.calls) != 0 {
		t.Errorf("suppressed number must fail without a provider call, summary = %+v", summary)
	}
	if msgs.failed[0].reason != "Phone number suppressed" {
		t.Errorf("reason = %q", msgs.failed[0].reason)
	}
}

func TestWorkerDisabledOrgFails(t *testing.T) {
	orgID := primitive.NewObjectID()
	msgs := &mockMessageRepository{claimable: []SmsMessage{queuedMessage(orgID, 0)}}
	sets := &mockSettingsRepository{} // no settings row at all

	summary := newTestWorker(msgs, &mockSuppressionRepository{}, sets, &mockProvider{}).RunPass(context.Background(), noon)

	if summary.Failed != 1 || msgs.failed[0].reason != "SMS disabled for organization" {
		t.Errorf("summary = %+v, failed = %+v", summary, msgs.failed)
	}
}

func TestWorkerTransportErrorRequeuesFlat(t *testing.T) {
	orgID := primitive.NewObjectID()
	msgs := &mockMessageRepository{claimable: []SmsMessage{queuedMessage(orgID, 1)}}
	provider := &mockProvider{errs: []error{errors.New("dial tcp: i/o timeout")}}
	sets := &mockSettingsRepository{settings: map[primitive.ObjectID]*settings.SmsSettings{orgID: enabledSettings(orgID)}}

	summary := newTestWorker(msgs, &mockSuppressionRepository{}, sets, provider).RunPass(context.Background(), noon)

	if summary.Requeued != 1 {
		t.Fatalf("summary = %+v, want requeue after transport error", summary)
	}
	rq := msgs.requeues[0]
	if !rq.nextAttemptAt.Equal(noon.Add(errorRequeueDelay)) {
		t.Errorf("nextAttemptAt = %v, want flat 5m delay", rq.nextAttemptAt)
	}
	if !strings.Contains(rq.lastError, "i/o timeout") {
		t.Errorf("lastError = %q, want cause recorded", rq.lastError)
	}
}

func TestWorkerBatchSettingsFetch(t *testing.T) {
	orgA := primitive.NewObjectID()
	orgB := primitive.NewObjectID()
	msgs := &mockMessageRepository{claimable: []SmsMessage{
		queuedMessage(orgA, 0), queuedMessage(orgB, 0), queuedMessage(orgA, 0),
	}}
	provider := &mockProvider{responses: []ProviderResponse{
		{HTTPStatus: 201}, {HTTPStatus: 201}, {HTTPStatus: 201},
	}}
	sets := &mockSettingsRepository{settings: map[primitive.ObjectID]*settings.SmsSettings{
		orgA: enabledSettings(orgA),
		orgB: enabledSettings(orgB),
	}}

	summary := newTestWorker(msgs, &mockSuppressionRepository{}, sets, provider).RunPass(context.Background(), noon)

	if summary.Sent != 3 {
		t.Fatalf("summary = %+v, want all three sent", summary)
	}
	// One settings read serves the whole batch.
	if sets.listCalls != 1 {
		t.Errorf("settings fetches = %d, want 1", sets.listCalls)
	}
}

func TestWorkerSettingsErrorRequeuesMessage(t *testing.T) {
	orgID := primitive.NewObjectID()
	msgs := &mockMessageRepository{claimable: []SmsMessage{queuedMessage(orgID, 0)}}
	sets := &mockSettingsRepository{err: errors.New("connection reset")}

	summary := newTestWorker(msgs, &mockSuppressionRepository{}, sets, &mockProvider{}).RunPass(context.Background(), noon)

	if summary.Requeued != 1 || summary.Failed != 0 {
		t.Errorf("summary = %+v, transient settings failure must requeue not fail", summary)
	}
}

func TestNextRetryDelay(t *testing.T) {
	tests := []struct {
		attempt int
		jitter  time.Duration
		want    time.Duration
	}{
		{attempt: 1, jitter: 0, want: 60 * time.Second},
		{attempt: 2, jitter: 0, want: 120 * time.Second},
		{attempt: 3, jitter: 0, want: 240 * time.Second},
		{attempt: 4, jitter: 0, want: 480 * time.Second},
		{attempt: 7, jitter: 0, want: time.Hour},
		{attempt: 20, jitter: 0, want: time.Hour},
		{attempt: 1, jitter: 17 * time.Second, want: 77 * time.Second},
	}
	for _, tt := range tests {
		if got := NextRetryDelay(tt.attempt, tt.jitter); got != tt.want {
			t.Errorf("NextRetryDelay(%d, %v) = %v, want %v", tt.attempt, tt.jitter, got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		status int
		want   Outcome
	}{
		{status: 200, want: OutcomeSuccess},
		{status: 201, want: OutcomeSuccess},
		{status: 429, want: OutcomeTransient},
		{status: 500, want: OutcomeTransient},
		{status: 503, want: OutcomeTransient},
		{status: 400, want: OutcomePermanent},
		{status: 401, want: OutcomePermanent},
		{status: 404, want: OutcomePermanent},
	}
	for _, tt := range tests {
		if got := Classify(ProviderResponse{HTTPStatus: tt.status}); got != tt.want {
			t.Errorf("Classify(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
