package automation

import (
	"context"
	"time"

	"coachkit/internal/features/client"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type mockRuleRepository struct {
	rules   []AutomationRule
	listErr error
}

func (m *mockRuleRepository) ListEnabled(ctx context.Context) ([]AutomationRule, error) {
	return m.rules, m.listErr
}

func (m *mockRuleRepository) GetByID(ctx context.Context, id string) (*AutomationRule, error) {
	for i := range m.rules {
		if m.rules[i].ID.Hex() == id {
			return &m.rules[i], nil
		}
	}
	return nil, nil
}

type mockRunRepository struct {
	inserted  []AutomationRun
	insertErr error
	lastOKFn  func(automationID primitive.ObjectID) (*time.Time, error)
	countFn   func(automationID, clientID primitive.ObjectID, since time.Time) (int64, error)
}

func (m *mockRunRepository) Insert(ctx context.Context, run *AutomationRun) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	run.ID = primitive.NewObjectID()
	m.inserted = append(m.inserted, *run)
	return nil
}

func (m *mockRunRepository) LastOKFiredAt(ctx context.Context, automationID primitive.ObjectID) (*time.Time, error) {
	if m.lastOKFn != nil {
		return m.lastOKFn(automationID)
	}
	return nil, nil
}

func (m *mockRunRepository) CountOKSince(ctx context.Context, automationID, clientID primitive.ObjectID, since time.Time) (int64, error) {
	if m.countFn != nil {
		return m.countFn(automationID, clientID, since)
	}
	return 0, nil
}

func (m *mockRunRepository) ListByOrg(ctx context.Context, orgID primitive.ObjectID, filter RunFilter) ([]AutomationRun, error) {
	return m.inserted, nil
}

func (m *mockRunRepository) EnsureIndexes(ctx context.Context) error { return nil }

type mockContextGatherer struct {
	contexts []client.ClientContext
	err      error
}

func (m *mockContextGatherer) GatherContexts(ctx context.Context, orgID primitive.ObjectID, now time.Time) ([]client.ClientContext, error) {
	return m.contexts, m.err
}

type mockGuardrailChecker struct {
	results map[string]GuardrailResult // keyed by client id hex
	err     error
}

func (m *mockGuardrailChecker) Check(ctx context.Context, policy GuardrailPolicy, automationID, clientID primitive.ObjectID, now time.Time) (GuardrailResult, error) {
	if m.err != nil {
		return GuardrailResult{}, m.err
	}
	if result, ok := m.results[clientID.Hex()]; ok {
		return result, nil
	}
	return GuardrailResult{Allowed: true}, nil
}

type mockActionExecutor struct {
	executed []executedCall
}

type executedCall struct {
	clientID primitive.ObjectID
	actions  []Action
}

func (m *mockActionExecutor) ExecuteActions(ctx context.Context, actions []Action, cc client.ClientContext, orgID primitive.ObjectID) []Action {
	m.executed = append(m.executed, executedCall{clientID: cc.ID, actions: actions})
	return actions
}

func (m *mockActionExecutor) ExecuteAction(ctx context.Context, action Action, cc client.ClientContext, orgID primitive.ObjectID) error {
	return nil
}
