package automation

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Summary is what a pass reports back to the scheduler that invoked it.
type Summary struct {
	Processed int `json:"processed"` // enabled automations examined
	Runs      int `json:"runs"`      // ok runs created
}

// AutomationService drives one evaluation pass over every enabled rule.
//
// RunDue never returns an error: the entry point is hit by infrastructure on
// a fixed interval and has no caller that could act on a failure. Everything
// that goes wrong is logged and reflected in the summary counts. Invoking it
// twice inside a cadence window does not re-fire a scheduled trigger. Event
// triggers whose conditions still match are always re-evaluated; only
// guardrails throttle those.
type AutomationService interface {
	RunDue(ctx context.Context, now time.Time) Summary
	ListRuns(ctx context.Context, orgID primitive.ObjectID, filter RunFilter) ([]AutomationRun, error)
	ExportRuns(ctx context.Context, orgID primitive.ObjectID, filter RunFilter) ([]byte, string, error)
}

type AutomationServiceImpl struct {
	rules      RuleRepository
	runs       RunRepository
	gatherer   ContextGatherer
	guardrails GuardrailChecker
	executor   ActionExecutor
	logger     *zap.Logger
}

func NewAutomationService(
	rules RuleRepository,
	runs RunRepository,
	gatherer ContextGatherer,
	guardrails GuardrailChecker,
	executor ActionExecutor,
	logger *zap.Logger,
) AutomationService {
	return &AutomationServiceImpl{
		rules:      rules,
		runs:       runs,
		gatherer:   gatherer,
		guardrails: guardrails,
		executor:   executor,
		logger:     logger,
	}
}

func (s *AutomationServiceImpl) RunDue(ctx context.Context, now time.Time) Summary {
	rules, err := s.rules.ListEnabled(ctx)
	if err != nil {
		s.logger.Error("Automation pass aborted: failed to list rules", zap.Error(err))
		return Summary{}
	}

	summary := Summary{Processed: len(rules)}
	for i := range rules {
		summary.Runs += s.processAutomation(ctx, &rules[i], now)
	}
	return summary
}

func (s *AutomationServiceImpl) processAutomation(ctx context.Context, rule *AutomationRule, now time.Time) int {
	due, err := s.isTriggerDue(ctx, rule, now)
	if err != nil {
		s.logger.Error("Skipping automation: trigger check failed",
			zap.String("automation_id", rule.ID.Hex()), zap.Error(err))
		return 0
	}
	if !due {
		return 0
	}

	contexts, err := s.gatherer.GatherContexts(ctx, rule.OrgID, now)
	if err != nil {
		s.logger.Error("Skipping automation: context gathering failed",
			zap.String("automation_id", rule.ID.Hex()),
			zap.String("org_id", rule.OrgID.Hex()), zap.Error(err))
		return 0
	}

	runsCreated := 0
	for _, cc := range contexts {
		if !EvaluateConditions(rule.Conditions, cc) {
			continue
		}

		result, err := s.guardrails.Check(ctx, rule.Guardrails, rule.ID, cc.ID, now)
		if err != nil {
			// Transient history-read failure: skip this client without a
			// recorded run for the cycle, on to the next one.
			s.logger.Warn("Skipping client: guardrail check failed",
				zap.String("automation_id", rule.ID.Hex()),
				zap.String("client_id", cc.ID.Hex()), zap.Error(err))
			continue
		}

		if !result.Allowed {
			s.recordRun(ctx, rule, cc.ID, RunSkipped, result.Reason, nil, now)
			continue
		}

		fired := s.executor.ExecuteActions(ctx, rule.Actions, cc, rule.OrgID)
		s.recordRun(ctx, rule, cc.ID, RunOK, "", fired, now)
		runsCreated++
	}

	return runsCreated
}

// isTriggerDue implements the due-ness contract: event triggers are always
// due; schedule triggers are due when there is no prior ok run or the
// cadence period has elapsed since the last one.
func (s *AutomationServiceImpl) isTriggerDue(ctx context.Context, rule *AutomationRule, now time.Time) (bool, error) {
	switch rule.Trigger.Type {
	case TriggerEvent:
		return true, nil
	case TriggerSchedule:
		last, err := s.runs.LastOKFiredAt(ctx, rule.ID)
		if err != nil {
			return false, err
		}
		return isScheduleDue(rule.Trigger.Schedule, last, now), nil
	default:
		return false, nil
	}
}

func isScheduleDue(cadence ScheduleCadence, lastFiredAt *time.Time, now time.Time) bool {
	if lastFiredAt == nil {
		return true // never fired
	}
	elapsed := now.Sub(*lastFiredAt)
	switch cadence {
	case CadenceDaily:
		return elapsed >= 24*time.Hour
	case CadenceWeekly:
		return elapsed >= 7*24*time.Hour
	default:
		// Unknown cadence strings fire; matches the event-trigger default.
		return true
	}
}

func (s *AutomationServiceImpl) recordRun(ctx context.Context, rule *AutomationRule, clientID primitive.ObjectID, status RunStatus, reason string, fired []Action, now time.Time) {
	run := &AutomationRun{
		OrgID:        rule.OrgID,
		AutomationID: rule.ID,
		ClientID:     clientID,
		Status:       status,
		Reason:       reason,
		ActionsFired: fired,
		FiredAt:      now,
	}
	if err := s.runs.Insert(ctx, run); err != nil {
		s.logger.Error("Failed to record automation run",
			zap.String("automation_id", rule.ID.Hex()),
			zap.String("client_id", clientID.Hex()), zap.Error(err))
	}
}

func (s *AutomationServiceImpl) ListRuns(ctx context.Context, orgID primitive.ObjectID, filter RunFilter) ([]AutomationRun, error) {
	return s.runs.ListByOrg(ctx, orgID, filter)
}
