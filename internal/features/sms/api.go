package sms

import (
	"coachkit/internal/config"
	"coachkit/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type SmsApi struct {
	SmsController *SmsController
	Config        *config.Config
}

func NewSmsApi(smsController *SmsController, config *config.Config) *SmsApi {
	return &SmsApi{
		SmsController: smsController,
		Config:        config,
	}
}

func (api *SmsApi) Setup(app *fiber.App) {
	cron := app.Group("/api/cron", middleware.CronAuthMiddleware(api.Config.CronSecret))
	cron.Post("/sms-worker", api.SmsController.RunWorker)
	cron.Post("/sms-reminders", api.SmsController.RunReminders)

	group := app.Group("/api/sms")
	group.Post("/send", middleware.AuthMiddleware(api.Config.SkipAuth), api.SmsController.Send)
	// Provider receipts arrive unauthenticated.
	group.Post("/status-callback", api.SmsController.StatusCallback)
}
