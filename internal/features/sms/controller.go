package sms

import (
	"errors"
	"time"

	"coachkit/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type SmsController struct {
	SmsService      SmsService
	Worker          SmsWorker
	ReminderService ReminderService
	Messages        MessageRepository
	Logger          *zap.Logger
}

func NewSmsController(
	smsService SmsService,
	worker SmsWorker,
	reminderService ReminderService,
	messages MessageRepository,
	logger *zap.Logger,
) *SmsController {
	return &SmsController{
		SmsService:      smsService,
		Worker:          worker,
		ReminderService: reminderService,
		Messages:        messages,
		Logger:          logger,
	}
}

// RunWorker triggers one delivery pass over the message queue.
func (c *SmsController) RunWorker(ctx *fiber.Ctx) error {
	summary := c.Worker.RunPass(ctx.Context(), time.Now().UTC())
	return ctx.JSON(fiber.Map{"success": true, "summary": summary})
}

// RunReminders triggers one session reminder scheduling pass.
func (c *SmsController) RunReminders(ctx *fiber.Ctx) error {
	summary := c.ReminderService.RunReminderPass(ctx.Context(), time.Now().UTC())
	return ctx.JSON(fiber.Map{"success": true, "summary": summary})
}

// Send queues an outbound message for the caller's organization.
func (c *SmsController) Send(ctx *fiber.Ctx) error {
	var req EnqueueRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	claims := middleware.UserClaims(ctx)
	if claims == nil || claims.OrgID == "" {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Organization not resolved from token"})
	}
	orgID, err := primitive.ObjectIDFromHex(claims.OrgID)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid organization id"})
	}
	req.OrgID = orgID

	msg, err := c.SmsService.Enqueue(ctx.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidPhone), errors.Is(err, ErrEmptyBody):
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, ErrSuppressed), errors.Is(err, ErrSmsDisabled):
			return ctx.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
		case errors.Is(err, ErrRateLimited):
			return ctx.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": err.Error()})
		default:
			return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
	}
	return ctx.Status(fiber.StatusCreated).JSON(msg)
}

// StatusCallback ingests delivery receipts posted by the provider.
func (c *SmsController) StatusCallback(ctx *fiber.Ctx) error {
	sid := ctx.FormValue("MessageSid")
	status := ctx.FormValue("MessageStatus")
	if sid == "" || status == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "MessageSid and MessageStatus are required"})
	}

	switch status {
	case "delivered":
		if err := c.Messages.UpdateDeliveryStatus(ctx.Context(), sid, StatusDelivered, ""); err != nil {
			c.Logger.Error("Failed to apply delivery receipt", zap.String("provider_message_id", sid), zap.Error(err))
		}
	case "undelivered", "failed":
		reason := ctx.FormValue("ErrorCode")
		if reason == "" {
			reason = "Provider reported " + status
		}
		if err := c.Messages.UpdateDeliveryStatus(ctx.Context(), sid, StatusFailed, reason); err != nil {
			c.Logger.Error("Failed to apply delivery receipt", zap.String("provider_message_id", sid), zap.Error(err))
		}
	default:
		// Intermediate statuses (queued, sending, sent) carry no new information.
	}
	return ctx.SendStatus(fiber.StatusNoContent)
}
