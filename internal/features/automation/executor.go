package automation

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"coachkit/internal/features/client"
	"coachkit/internal/features/messaging"
	"coachkit/internal/features/push"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ActionExecutor dispatches a rule's actions for one matched client. Actions
// run independently: one failure is logged and dropped from the returned
// list, the rest still run.
type ActionExecutor interface {
	ExecuteActions(ctx context.Context, actions []Action, cc client.ClientContext, orgID primitive.ObjectID) []Action
	ExecuteAction(ctx context.Context, action Action, cc client.ClientContext, orgID primitive.ObjectID) error
}

type ActionExecutorImpl struct {
	messagingService messaging.MessagingService
	pushService      push.PushService
	logger           *zap.Logger
}

func NewActionExecutor(messagingService messaging.MessagingService, pushService push.PushService, logger *zap.Logger) ActionExecutor {
	return &ActionExecutorImpl{
		messagingService: messagingService,
		pushService:      pushService,
		logger:           logger,
	}
}

func (e *ActionExecutorImpl) ExecuteActions(ctx context.Context, actions []Action, cc client.ClientContext, orgID primitive.ObjectID) []Action {
	executed := make([]Action, 0, len(actions))
	for _, action := range actions {
		if err := e.ExecuteAction(ctx, action, cc, orgID); err != nil {
			e.logger.Error("Automation action failed",
				zap.String("action_type", string(action.Type)),
				zap.String("org_id", orgID.Hex()),
				zap.String("client_id", cc.ID.Hex()),
				zap.Error(err))
			continue
		}
		executed = append(executed, action)
	}
	return executed
}

func (e *ActionExecutorImpl) ExecuteAction(ctx context.Context, action Action, cc client.ClientContext, orgID primitive.ObjectID) error {
	switch action.Type {
	case ActionSendMessage:
		body := Interpolate(action.Params.Body, cc)
		return e.appendToThread(ctx, orgID, cc.ID, body)

	case ActionSendPush:
		title := Interpolate(action.Params.Title, cc)
		body := Interpolate(action.Params.Body, cc)
		// Fire-and-forget contract: dispatch failures are reported as errors
		// here so the action is excluded from actions_fired, but nothing
		// downstream consumes the push result.
		return e.pushService.Dispatch(ctx, cc.ID, title, body)

	case ActionNotifyTrainer:
		body := Interpolate(action.Params.Body, cc)
		return e.appendToThread(ctx, orgID, cc.ID, "[TRAINER ALERT] "+body)

	case ActionCreateOffer, ActionTagClient:
		e.logger.Info("Action type not yet implemented",
			zap.String("action_type", string(action.Type)))
		return nil

	default:
		// Unknown tag from stale rule config: documented no-op, not an error.
		e.logger.Warn("Unsupported action type",
			zap.String("action_type", string(action.Type)))
		return nil
	}
}

func (e *ActionExecutorImpl) appendToThread(ctx context.Context, orgID, clientID primitive.ObjectID, body string) error {
	thread, err := e.messagingService.GetOrCreateThread(ctx, orgID, clientID)
	if err != nil {
		return fmt.Errorf("failed to resolve thread: %w", err)
	}
	if err := e.messagingService.AppendMessage(ctx, orgID, thread.ID, messaging.SenderSystem, body); err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// Interpolate fills the template placeholders the rule builder supports:
// {{name}}, {{first_name}} and {{days_inactive}}.
func Interpolate(template string, cc client.ClientContext) string {
	firstName := cc.FullName
	if parts := strings.Fields(cc.FullName); len(parts) > 0 {
		firstName = parts[0]
	}
	daysInactive := "0"
	if cc.DaysSinceActivity != nil {
		daysInactive = strconv.Itoa(*cc.DaysSinceActivity)
	}

	replacer := strings.NewReplacer(
		"{{name}}", cc.FullName,
		"{{first_name}}", firstName,
		"{{days_inactive}}", daysInactive,
	)
	return replacer.Replace(template)
}
