package jobs

import (
	"github.com/gofiber/fiber/v2"
)

type JobsController struct {
	JobService JobService
}

func NewJobsController(jobService JobService) *JobsController {
	return &JobsController{JobService: jobService}
}

// Run executes a named job immediately, outside its schedule.
func (c *JobsController) Run(ctx *fiber.Ctx) error {
	name := ctx.Params("name")
	run, err := c.JobService.RunJob(ctx.Context(), name)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(run)
}

// ListRuns returns recent job executions, optionally filtered by job name.
func (c *JobsController) ListRuns(ctx *fiber.Ctx) error {
	runs, err := c.JobService.ListRuns(ctx.Context(), ctx.Query("job"), int64(ctx.QueryInt("limit")))
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(runs)
}
