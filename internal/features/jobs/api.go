package jobs

import (
	"coachkit/internal/config"
	"coachkit/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type JobsApi struct {
	JobsController *JobsController
	Config         *config.Config
}

func NewJobsApi(jobsController *JobsController, config *config.Config) *JobsApi {
	return &JobsApi{
		JobsController: jobsController,
		Config:         config,
	}
}

func (api *JobsApi) Setup(app *fiber.App) {
	group := app.Group("/api/jobs", middleware.AuthMiddleware(api.Config.SkipAuth))
	group.Get("/runs", api.JobsController.ListRuns)
	group.Post("/:name/run", api.JobsController.Run)
}
