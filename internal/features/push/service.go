package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const expoPushURL = "https://exp.host/--/api/v2/push/send"

// PushService dispatches mobile push notifications. Callers treat it as
// fire-and-forget: a delivery failure is logged, never propagated.
type PushService interface {
	Dispatch(ctx context.Context, clientID primitive.ObjectID, title, body string) error
}

type expoPushMessage struct {
	To    string `json:"to"`
	Title string `json:"title"`
	Body  string `json:"body"`
	Sound string `json:"sound,omitempty"`
}

type PushServiceImpl struct {
	tokenRepo  PushTokenRepository
	httpClient *http.Client
	logger     *zap.Logger
}

func NewPushService(tokenRepo PushTokenRepository, logger *zap.Logger) PushService {
	return &PushServiceImpl{
		tokenRepo:  tokenRepo,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

func (s *PushServiceImpl) Dispatch(ctx context.Context, clientID primitive.ObjectID, title, body string) error {
	tokens, err := s.tokenRepo.ListByClient(ctx, clientID)
	if err != nil {
		return fmt.Errorf("failed to load push tokens: %w", err)
	}
	if len(tokens) == 0 {
		s.logger.Debug("No push tokens for client", zap.String("client_id", clientID.Hex()))
		return nil
	}

	messages := make([]expoPushMessage, 0, len(tokens))
	for _, t := range tokens {
		messages = append(messages, expoPushMessage{
			To:    t.Token,
			Title: title,
			Body:  body,
			Sound: "default",
		})
	}

	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, expoPushURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("push gateway returned status: %d", resp.StatusCode)
	}

	return nil
}
