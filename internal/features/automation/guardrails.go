package automation

import (
	"context"
	"fmt"
	"time"

	"coachkit/pkg/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type GuardrailResult struct {
	Allowed bool
	Reason  string
}

// GuardrailChecker enforces the per-client throttling policy against the run
// history. Only ok runs count toward the caps; skipped runs never do.
type GuardrailChecker interface {
	Check(ctx context.Context, policy GuardrailPolicy, automationID, clientID primitive.ObjectID, now time.Time) (GuardrailResult, error)
}

type GuardrailCheckerImpl struct {
	runs RunRepository
}

func NewGuardrailChecker(runs RunRepository) GuardrailChecker {
	return &GuardrailCheckerImpl{runs: runs}
}

// Check evaluates quiet hours, then dedupe, then the daily cap, then the
// weekly cap. The first failing check wins and decides the reason; unset
// policy fields skip their check entirely.
func (g *GuardrailCheckerImpl) Check(ctx context.Context, policy GuardrailPolicy, automationID, clientID primitive.ObjectID, now time.Time) (GuardrailResult, error) {
	if policy.QuietHoursStart != nil && policy.QuietHoursEnd != nil {
		if utils.InQuietHours(now.Hour(), *policy.QuietHoursStart, *policy.QuietHoursEnd) {
			return GuardrailResult{Allowed: false, Reason: "Quiet hours"}, nil
		}
	}

	if policy.DedupeHours != nil && *policy.DedupeHours > 0 {
		since := now.Add(-time.Duration(*policy.DedupeHours) * time.Hour)
		count, err := g.runs.CountOKSince(ctx, automationID, clientID, since)
		if err != nil {
			return GuardrailResult{}, fmt.Errorf("dedupe check failed: %w", err)
		}
		if count > 0 {
			return GuardrailResult{Allowed: false, Reason: fmt.Sprintf("Already fired within %dh", *policy.DedupeHours)}, nil
		}
	}

	if policy.MaxPerClientPerDay != nil && *policy.MaxPerClientPerDay > 0 {
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		count, err := g.runs.CountOKSince(ctx, automationID, clientID, midnight)
		if err != nil {
			return GuardrailResult{}, fmt.Errorf("daily cap check failed: %w", err)
		}
		if count >= int64(*policy.MaxPerClientPerDay) {
			return GuardrailResult{Allowed: false, Reason: "Daily limit reached"}, nil
		}
	}

	if policy.MaxPerClientPerWeek != nil && *policy.MaxPerClientPerWeek > 0 {
		weekAgo := now.Add(-7 * 24 * time.Hour)
		count, err := g.runs.CountOKSince(ctx, automationID, clientID, weekAgo)
		if err != nil {
			return GuardrailResult{}, fmt.Errorf("weekly cap check failed: %w", err)
		}
		if count >= int64(*policy.MaxPerClientPerWeek) {
			return GuardrailResult{Allowed: false, Reason: "Weekly limit reached"}, nil
		}
	}

	return GuardrailResult{Allowed: true}, nil
}
