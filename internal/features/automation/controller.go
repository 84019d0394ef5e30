package automation

import (
	"fmt"
	"time"

	"coachkit/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AutomationController struct {
	AutomationService AutomationService
}

func NewAutomationController(automationService AutomationService) *AutomationController {
	return &AutomationController{AutomationService: automationService}
}

// RunDue triggers one evaluation pass over every enabled automation.
func (c *AutomationController) RunDue(ctx *fiber.Ctx) error {
	summary := c.AutomationService.RunDue(ctx.Context(), time.Now().UTC())
	return ctx.JSON(fiber.Map{
		"success":   true,
		"processed": summary.Processed,
		"runs":      summary.Runs,
	})
}

// ListRuns returns the org's run history, newest first.
func (c *AutomationController) ListRuns(ctx *fiber.Ctx) error {
	orgID, filter, err := runQueryFromRequest(ctx)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	runs, err := c.AutomationService.ListRuns(ctx.Context(), orgID, filter)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(runs)
}

// ExportRuns downloads the filtered run history as an Excel workbook.
func (c *AutomationController) ExportRuns(ctx *fiber.Ctx) error {
	orgID, filter, err := runQueryFromRequest(ctx)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	data, filename, err := c.AutomationService.ExportRuns(ctx.Context(), orgID, filter)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	ctx.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	ctx.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	return ctx.Send(data)
}

func runQueryFromRequest(ctx *fiber.Ctx) (primitive.ObjectID, RunFilter, error) {
	claims := middleware.UserClaims(ctx)
	if claims == nil || claims.OrgID == "" {
		return primitive.NilObjectID, RunFilter{}, fmt.Errorf("organization not resolved from token")
	}
	orgID, err := primitive.ObjectIDFromHex(claims.OrgID)
	if err != nil {
		return primitive.NilObjectID, RunFilter{}, fmt.Errorf("invalid organization id")
	}

	filter := RunFilter{
		Status: RunStatus(ctx.Query("status")),
		Limit:  int64(ctx.QueryInt("limit")),
	}
	if raw := ctx.Query("automation_id"); raw != "" {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			return primitive.NilObjectID, RunFilter{}, fmt.Errorf("invalid automation_id")
		}
		filter.AutomationID = &id
	}
	if raw := ctx.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return primitive.NilObjectID, RunFilter{}, fmt.Errorf("since must be RFC3339")
		}
		filter.Since = &t
	}
	if raw := ctx.Query("until"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return primitive.NilObjectID, RunFilter{}, fmt.Errorf("until must be RFC3339")
		}
		filter.Until = &t
	}

	return orgID, filter, nil
}
