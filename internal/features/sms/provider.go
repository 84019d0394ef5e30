package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"coachkit/internal/config"

	"go.uber.org/zap"
)

// SendRequest carries everything the provider needs for one delivery attempt.
type SendRequest struct {
	To   string
	Body string
	// From is a phone number or a messaging service SID; the provider decides
	// which form field it belongs in.
	From string
	// AccountSID and AuthToken are the org's own credentials when configured,
	// otherwise the platform-level pair.
	AccountSID string
	AuthToken  string
	// StatusCallback receives delivery receipts; optional.
	StatusCallback string
}

// ProviderResponse is the normalized outcome of one provider call.
type ProviderResponse struct {
	ProviderMessageID string
	HTTPStatus        int
	ErrorCode         *int
	ErrorMessage      string
}

type Outcome int

const (
	OutcomeSuccess Outcome = iota
	// OutcomeTransient covers rate limiting and provider-side failures that a
	// later retry may clear.
	OutcomeTransient
	// OutcomePermanent covers request-level rejections that retrying cannot fix.
	OutcomePermanent
)

// Classify maps a provider response to a retry decision: 2xx succeeds, 429
// and 5xx are worth retrying, everything else is final.
func Classify(resp ProviderResponse) Outcome {
	switch {
	case resp.HTTPStatus >= 200 && resp.HTTPStatus < 300:
		return OutcomeSuccess
	case resp.HTTPStatus == http.StatusTooManyRequests || resp.HTTPStatus >= 500:
		return OutcomeTransient
	default:
		return OutcomePermanent
	}
}

// SmsProvider abstracts the SMS gateway. Send returns an error only for
// transport failures; a provider rejection comes back as a ProviderResponse.
type SmsProvider interface {
	Send(ctx context.Context, req SendRequest) (ProviderResponse, error)
}

type TwilioProvider struct {
	client  *http.Client
	baseURL string
	logger  *zap.Logger
}

func NewTwilioProvider(logger *zap.Logger) SmsProvider {
	return &TwilioProvider{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: "https://api.twilio.com",
		logger:  logger,
	}
}

type twilioMessageResponse struct {
	Sid       string `json:"sid"`
	Status    string `json:"status"`
	ErrorCode *int   `json:"error_code"`
	Code      *int   `json:"code"`
	Message   string `json:"message"`
}

func (p *TwilioProvider) Send(ctx context.Context, req SendRequest) (ProviderResponse, error) {
	form := url.Values{}
	form.Set("To", req.To)
	form.Set("Body", req.Body)
	if strings.HasPrefix(req.From, "MG") {
		form.Set("MessagingServiceSid", req.From)
	} else {
		form.Set("From", req.From)
	}
	if req.StatusCallback != "" {
		form.Set("StatusCallback", req.StatusCallback)
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", p.baseURL, req.AccountSID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return ProviderResponse{}, fmt.Errorf("failed to build provider request: %w", err)
	}
	httpReq.SetBasicAuth(req.AccountSID, req.AuthToken)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return ProviderResponse{}, fmt.Errorf("provider request failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return ProviderResponse{}, fmt.Errorf("failed to read provider response: %w", err)
	}

	var parsed twilioMessageResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		p.logger.Warn("Unparseable provider response",
			zap.Int("http_status", httpResp.StatusCode))
	}

	resp := ProviderResponse{
		ProviderMessageID: parsed.Sid,
		HTTPStatus:        httpResp.StatusCode,
		ErrorMessage:      parsed.Message,
	}
	// Error payloads use "code"; message resources use "error_code".
	if parsed.Code != nil {
		resp.ErrorCode = parsed.Code
	} else if parsed.ErrorCode != nil {
		resp.ErrorCode = parsed.ErrorCode
	}
	return resp, nil
}

// ResolveCredentials picks the org's Twilio account when it has one, falling
// back to the platform account.
func ResolveCredentials(accountSID, authToken string, cfg *config.Config) (string, string) {
	if accountSID != "" && authToken != "" {
		return accountSID, authToken
	}
	return cfg.TwilioAccountSID, cfg.TwilioAuthToken
}
