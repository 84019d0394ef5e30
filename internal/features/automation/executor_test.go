package automation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"coachkit/internal/features/client"
	"coachkit/internal/features/messaging"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type appendedMessage struct {
	senderType messaging.SenderType
	body       string
}

type mockMessagingService struct {
	appended  []appendedMessage
	appendErr error
}

func (m *mockMessagingService) GetOrCreateThread(ctx context.Context, orgID, clientID primitive.ObjectID) (*messaging.MessageThread, error) {
	return &messaging.MessageThread{ID: primitive.NewObjectID(), OrgID: orgID, ClientID: clientID}, nil
}

func (m *mockMessagingService) AppendMessage(ctx context.Context, orgID, threadID primitive.ObjectID, senderType messaging.SenderType, body string) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.appended = append(m.appended, appendedMessage{senderType: senderType, body: body})
	return nil
}

type mockPushService struct {
	dispatched []string
	err        error
}

func (m *mockPushService) Dispatch(ctx context.Context, clientID primitive.ObjectID, title, body string) error {
	if m.err != nil {
		return m.err
	}
	m.dispatched = append(m.dispatched, title+": "+body)
	return nil
}

func TestExecuteActionsSendMessage(t *testing.T) {
	msgSvc := &mockMessagingService{}
	executor := NewActionExecutor(msgSvc, &mockPushService{}, zap.NewNop())

	cc := client.ClientContext{ID: primitive.NewObjectID(), FullName: "Jane Smith", DaysSinceActivity: intPtr(10)}
	actions := []Action{
		{Type: ActionSendMessage, Params: ActionParams{Body: "Hey {{first_name}}, it's been {{days_inactive}} days"}},
	}

	fired := executor.ExecuteActions(context.Background(), actions, cc, primitive.NewObjectID())
	if len(fired) != 1 {
		t.Fatalf("fired %d actions, want 1", len(fired))
	}
	if len(msgSvc.appended) != 1 {
		t.Fatalf("appended %d messages, want 1", len(msgSvc.appended))
	}
	got := msgSvc.appended[0]
	if got.body != "Hey Jane, it's been 10 days" {
		t.Errorf("body = %q", got.body)
	}
	if got.senderType != messaging.SenderSystem {
		t.Errorf("sender = %q, want system", got.senderType)
	}
}

func TestExecuteActionsNotifyTrainerPrefix(t *testing.T) {
	msgSvc := &mockMessagingService{}
	executor := NewActionExecutor(msgSvc, &mockPushService{}, zap.NewNop())

	cc := client.ClientContext{ID: primitive.NewObjectID(), FullName: "Jane Smith"}
	executor.ExecuteActions(context.Background(), []Action{
		{Type: ActionNotifyTrainer, Params: ActionParams{Body: "{{name}} is at risk"}},
	}, cc, primitive.NewObjectID())

	if len(msgSvc.appended) != 1 {
		t.Fatalf("appended %d messages, want 1", len(msgSvc.appended))
	}
	if !strings.HasPrefix(msgSvc.appended[0].body, "[TRAINER ALERT] ") {
		t.Errorf("body = %q, want trainer alert prefix", msgSvc.appended[0].body)
	}
}

func TestExecuteActionsFailureIsolation(t *testing.T) {
	// Push fails, message send succeeds: only the successful action is
	// reported as fired.
	msgSvc := &mockMessagingService{}
	pushSvc := &mockPushService{err: errors.New("expo unreachable")}
	executor := NewActionExecutor(msgSvc, pushSvc, zap.NewNop())

	cc := client.ClientContext{ID: primitive.NewObjectID(), FullName: "Jane"}
	actions := []Action{
		{Type: ActionSendPush, Params: ActionParams{Title: "Hi", Body: "There"}},
		{Type: ActionSendMessage, Params: ActionParams{Body: "Still got this one"}},
	}

	fired := executor.ExecuteActions(context.Background(), actions, cc, primitive.NewObjectID())
	if len(fired) != 1 {
		t.Fatalf("fired %d actions, want 1", len(fired))
	}
	if fired[0].Type != ActionSendMessage {
		t.Errorf("fired action = %q, want send_message", fired[0].Type)
	}
	if len(msgSvc.appended) != 1 {
		t.Errorf("message action should still run after push failure")
	}
}

func TestExecuteActionsNoOpTypes(t *testing.T) {
	msgSvc := &mockMessagingService{}
	executor := NewActionExecutor(msgSvc, &mockPushService{}, zap.NewNop())
	cc := client.ClientContext{ID: primitive.NewObjectID()}

	tests := []ActionType{ActionCreateOffer, ActionTagClient, "escalate"}
	for _, typ := range tests {
		t.Run(string(typ), func(t *testing.T) {
			fired := executor.ExecuteActions(context.Background(), []Action{{Type: typ}}, cc, primitive.NewObjectID())
			if len(fired) != 1 {
				t.Errorf("no-op %q should report as executed without erroring", typ)
			}
		})
	}
	if len(msgSvc.appended) != 0 {
		t.Errorf("no-op actions must not write messages, wrote %d", len(msgSvc.appended))
	}
}
