package sms

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// fakeClaimer scripts the per-row swap: ids in taken were grabbed by a
// concurrent pass between candidate listing and the swap.
type fakeClaimer struct {
	taken  map[primitive.ObjectID]bool
	errOn  map[primitive.ObjectID]error
	calls  []primitive.ObjectID
	byID   map[primitive.ObjectID]SmsMessage
	locked []primitive.ObjectID
}

func (f *fakeClaimer) claimOne(ctx context.Context, id primitive.ObjectID, now, lockUntil time.Time) (*SmsMessage, error) {
	f.calls = append(f.calls, id)
	if err := f.errOn[id]; err != nil {
		return nil, err
	}
	if f.taken[id] {
		return nil, nil
	}
	f.locked = append(f.locked, id)
	msg := f.byID[id]
	msg.Status = StatusSending
	return &msg, nil
}

func claimFixture(n int) ([]SmsMessage, *fakeClaimer) {
	candidates := make([]SmsMessage, n)
	byID := make(map[primitive.ObjectID]SmsMessage, n)
	for i := range candidates {
		candidates[i] = SmsMessage{ID: primitive.NewObjectID(), Status: StatusQueued}
		byID[candidates[i].ID] = candidates[i]
	}
	return candidates, &fakeClaimer{
		taken: map[primitive.ObjectID]bool{},
		errOn: map[primitive.ObjectID]error{},
		byID:  byID,
	}
}

func TestClaimCandidatesSkipsRowLostToConcurrentPass(t *testing.T) {
	candidates, claimer := claimFixture(3)
	// The middle candidate is claimed by another pass after listing.
	claimer.taken[candidates[1].ID] = true

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	claimed, err := claimCandidates(context.Background(), claimer, candidates, now, now.Add(VisibilityTimeout))
	if err != nil {
		t.Fatalf("claimCandidates() error = %v", err)
	}

	if len(claimed) != 2 {
		t.Fatalf("claimed %d messages, want 2", len(claimed))
	}
	if claimed[0].ID != candidates[0].ID || claimed[1].ID != candidates[2].ID {
		t.Errorf("claimed wrong rows: %v and %v", claimed[0].ID.Hex(), claimed[1].ID.Hex())
	}
	for _, msg := range claimed {
		if msg.ID == candidates[1].ID {
			t.Fatal("row lost to a concurrent pass must not be claimed again")
		}
		if msg.Status != StatusSending {
			t.Errorf("claimed row status = %q, want sending", msg.Status)
		}
	}
	// Every candidate still gets exactly one swap attempt.
	if len(claimer.calls) != 3 {
		t.Errorf("swap attempts = %d, want 3", len(claimer.calls))
	}
}

func TestClaimCandidatesAllLost(t *testing.T) {
	candidates, claimer := claimFixture(2)
	claimer.taken[candidates[0].ID] = true
	claimer.taken[candidates[1].ID] = true

	claimed, err := claimCandidates(context.Background(), claimer, candidates, time.Now(), time.Now().Add(VisibilityTimeout))
	if err != nil {
		t.Fatalf("claimCandidates() error = %v", err)
	}
	if len(claimed) != 0 {
		t.Errorf("claimed = %v, want none", claimed)
	}
}

func TestClaimCandidatesStopsOnError(t *testing.T) {
	candidates, claimer := claimFixture(3)
	claimer.errOn[candidates[1].ID] = errors.New("connection reset")

	claimed, err := claimCandidates(context.Background(), claimer, candidates, time.Now(), time.Now().Add(VisibilityTimeout))
	if err == nil {
		t.Fatal("expected the swap error to propagate")
	}
	// The first row was already claimed and must be returned so its lease is
	// not silently abandoned.
	if len(claimed) != 1 || claimed[0].ID != candidates[0].ID {
		t.Errorf("claimed = %v, want the first row only", claimed)
	}
	if len(claimer.calls) != 2 {
		t.Errorf("swap attempts = %d, want to stop after the failure", len(claimer.calls))
	}
}
