package automation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestGuardrailCheckNoPolicy(t *testing.T) {
	checker := NewGuardrailChecker(&mockRunRepository{})
	result, err := checker.Check(context.Background(), GuardrailPolicy{},
		primitive.NewObjectID(), primitive.NewObjectID(), time.Now())
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !result.Allowed {
		t.Errorf("empty policy should allow, got reason %q", result.Reason)
	}
}

func TestGuardrailDedupe(t *testing.T) {
	automationID := primitive.NewObjectID()
	clientID := primitive.NewObjectID()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	firedAt := base // prior ok run at T

	repo := &mockRunRepository{
		countFn: func(aID, cID primitive.ObjectID, since time.Time) (int64, error) {
			if !firedAt.Before(since) {
				return 1, nil
			}
			return 0, nil
		},
	}
	checker := NewGuardrailChecker(repo)
	policy := GuardrailPolicy{DedupeHours: intPtr(24)}

	// One hour later the prior run is inside the window.
	result, err := checker.Check(context.Background(), policy, automationID, clientID, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if result.Allowed {
		t.Error("expected dedupe to deny at T+1h")
	}
	if result.Reason != "Already fired within 24h" {
		t.Errorf("reason = %q, want %q", result.Reason, "Already fired within 24h")
	}

	// Twenty-five hours later it is outside the window.
	result, err = checker.Check(context.Background(), policy, automationID, clientID, base.Add(25*time.Hour))
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !result.Allowed {
		t.Errorf("expected allow at T+25h, got reason %q", result.Reason)
	}
}

func TestGuardrailDailyCap(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	midnight := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	repo := &mockRunRepository{
		countFn: func(aID, cID primitive.ObjectID, since time.Time) (int64, error) {
			if !since.Equal(midnight) {
				return 0, fmt.Errorf("unexpected since %v", since)
			}
			return 1, nil
		},
	}
	checker := NewGuardrailChecker(repo)

	result, err := checker.Check(context.Background(),
		GuardrailPolicy{MaxPerClientPerDay: intPtr(1)},
		primitive.NewObjectID(), primitive.NewObjectID(), now)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if result.Allowed {
		t.Error("expected daily cap to deny")
	}
	if result.Reason != "Daily limit reached" {
		t.Errorf("reason = %q, want %q", result.Reason, "Daily limit reached")
	}
}

func TestGuardrailWeeklyCap(t *testing.T) {
	repo := &mockRunRepository{
		countFn: func(aID, cID primitive.ObjectID, since time.Time) (int64, error) {
			return 3, nil
		},
	}
	checker := NewGuardrailChecker(repo)

	result, err := checker.Check(context.Background(),
		GuardrailPolicy{MaxPerClientPerWeek: intPtr(3)},
		primitive.NewObjectID(), primitive.NewObjectID(), time.Now())
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if result.Allowed {
		t.Error("expected weekly cap to deny")
	}
	if result.Reason != "Weekly limit reached" {
		t.Errorf("reason = %q, want %q", result.Reason, "Weekly limit reached")
	}
}

func TestGuardrailQuietHoursWrap(t *testing.T) {
	checker := NewGuardrailChecker(&mockRunRepository{})
	policy := GuardrailPolicy{QuietHoursStart: intPtr(21), QuietHoursEnd: intPtr(8)}

	tests := []struct {
		hour      int
		wantAllow bool
	}{
		{hour: 23, wantAllow: false},
		{hour: 5, wantAllow: false},
		{hour: 21, wantAllow: false},
		{hour: 8, wantAllow: true},
		{hour: 12, wantAllow: true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("hour_%d", tt.hour), func(t *testing.T) {
			now := time.Date(2026, 3, 10, tt.hour, 30, 0, 0, time.UTC)
			result, err := checker.Check(context.Background(), policy,
				primitive.NewObjectID(), primitive.NewObjectID(), now)
			if err != nil {
				t.Fatalf("Check() error = %v", err)
			}
			if result.Allowed != tt.wantAllow {
				t.Errorf("hour %d: allowed = %v, want %v", tt.hour, result.Allowed, tt.wantAllow)
			}
			if !tt.wantAllow && result.Reason != "Quiet hours" {
				t.Errorf("reason = %q, want %q", result.Reason, "Quiet hours")
			}
		})
	}
}

func TestGuardrailQuietHoursBeforeCountChecks(t *testing.T) {
	// During quiet hours the history is never read.
	repo := &mockRunRepository{
		countFn: func(aID, cID primitive.ObjectID, since time.Time) (int64, error) {
			return 0, errors.New("history should not be consulted")
		},
	}
	checker := NewGuardrailChecker(repo)
	policy := GuardrailPolicy{
		QuietHoursStart:    intPtr(22),
		QuietHoursEnd:      intPtr(7),
		DedupeHours:        intPtr(24),
		MaxPerClientPerDay: intPtr(1),
	}
	now := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)

	result, err := checker.Check(context.Background(), policy,
		primitive.NewObjectID(), primitive.NewObjectID(), now)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if result.Allowed || result.Reason != "Quiet hours" {
		t.Errorf("got (%v, %q), want quiet hours denial", result.Allowed, result.Reason)
	}
}

func TestGuardrailRepoError(t *testing.T) {
	repo := &mockRunRepository{
		countFn: func(aID, cID primitive.ObjectID, since time.Time) (int64, error) {
			return 0, errors.New("connection reset")
		},
	}
	checker := NewGuardrailChecker(repo)

	_, err := checker.Check(context.Background(),
		GuardrailPolicy{DedupeHours: intPtr(24)},
		primitive.NewObjectID(), primitive.NewObjectID(), time.Now())
	if err == nil {
		t.Fatal("expected error to propagate")
	}
}
