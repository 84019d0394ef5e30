package automation

import (
	"coachkit/internal/config"
	"coachkit/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type AutomationApi struct {
	AutomationController *AutomationController
	Config               *config.Config
}

func NewAutomationApi(automationController *AutomationController, config *config.Config) *AutomationApi {
	return &AutomationApi{
		AutomationController: automationController,
		Config:               config,
	}
}

func (api *AutomationApi) Setup(app *fiber.App) {
	cron := app.Group("/api/cron", middleware.CronAuthMiddleware(api.Config.CronSecret))
	cron.Post("/automations", api.AutomationController.RunDue)

	group := app.Group("/api/automation", middleware.AuthMiddleware(api.Config.SkipAuth))
	group.Get("/runs", api.AutomationController.ListRuns)
	group.Get("/runs/export", api.AutomationController.ExportRuns)
}
