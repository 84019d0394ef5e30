package sms

import (
	"context"
	"time"

	"coachkit/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MessageRepository interface {
	Insert(ctx context.Context, msg *SmsMessage) error
	FindByIdempotencyKey(ctx context.Context, key string) (*SmsMessage, error)
	// CountForClientSince counts non-failed messages for the client created at
	// or after since. Used by the per-client daily rate limit.
	CountForClientSince(ctx context.Context, clientID primitive.ObjectID, since time.Time) (int64, error)
	// PromotePending releases pending rows whose next_attempt_at has passed.
	PromotePending(ctx context.Context, now time.Time) (int64, error)
	// ClaimDue atomically moves up to limit due queued rows to sending with a
	// lease until lockUntil. A row claimed here is invisible to concurrent
	// passes until the lease expires or the worker settles it.
	ClaimDue(ctx context.Context, now time.Time, limit int, lockUntil time.Time) ([]SmsMessage, error)
	// Requeue returns a leased row to queued with an updated attempt count,
	// retry time and error, releasing the lease.
	Requeue(ctx context.Context, id primitive.ObjectID, nextAttemptAt time.Time, attemptCount int, lastError string) error
	MarkSent(ctx context.Context, id primitive.ObjectID, providerMessageID string, attemptCount int, now time.Time) error
	MarkFailed(ctx context.Context, id primitive.ObjectID, reason string, attemptCount int, now time.Time) error
	InsertAttempt(ctx context.Context, attempt *SmsAttempt) error
	// UpdateDeliveryStatus applies a provider delivery receipt to the message
	// it references. Unknown provider ids are ignored.
	UpdateDeliveryStatus(ctx context.Context, providerMessageID string, status MessageStatus, deliveryError string) error
	EnsureIndexes(ctx context.Context) error
}

type MessageRepositoryImpl struct {
	Collection *mongo.Collection
	Attempts   *mongo.Collection
}

func NewMessageRepository(mongodb *database.MongodbDB) MessageRepository {
	return &MessageRepositoryImpl{
		Collection: mongodb.DB.Collection("sms_messages"),
		Attempts:   mongodb.DB.Collection("sms_attempts"),
	}
}

func (r *MessageRepositoryImpl) Insert(ctx context.Context, msg *SmsMessage) error {
	msg.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	msg.CreatedAt = now
	msg.UpdatedAt = now
	_, err := r.Collection.InsertOne(ctx, msg)
	return err
}

func (r *MessageRepositoryImpl) FindByIdempotencyKey(ctx context.Context, key string) (*SmsMessage, error) {
	var msg SmsMessage
	err := r.Collection.FindOne(ctx, bson.M{"idempotency_key": key}).Decode(&msg)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

func (r *MessageRepositoryImpl) CountForClientSince(ctx context.Context, clientID primitive.ObjectID, since time.Time) (int64, error) {
	return r.Collection.CountDocuments(ctx, bson.M{
		"client_id":  clientID,
		"status":     bson.M{"$ne": StatusFailed},
		"created_at": bson.M{"$gte": since},
	})
}

func (r *MessageRepositoryImpl) PromotePending(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.Collection.UpdateMany(ctx, bson.M{
		"status":          StatusPending,
		"next_attempt_at": bson.M{"$lte": now},
	}, bson.M{
		"$set": bson.M{"status": StatusQueued, "updated_at": now},
	})
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

// claimEligibleFilter matches rows a pass may claim: queued, due, and either
// never leased or holding an expired lease. With id set it pins the filter to
// one row for the compare-and-swap.
func claimEligibleFilter(now time.Time, id *primitive.ObjectID) bson.M {
	filter := bson.M{
		"status":          StatusQueued,
		"next_attempt_at": bson.M{"$lte": now},
		"$or": []bson.M{
			{"locked_until": bson.M{"$exists": false}},
			{"locked_until": nil},
			{"locked_until": bson.M{"$lte": now}},
		},
	}
	if id != nil {
		filter["_id"] = *id
	}
	return filter
}

// messageClaimer is the per-row swap ClaimDue runs over its candidates. A nil
// message without error means another pass claimed the row first.
type messageClaimer interface {
	claimOne(ctx context.Context, id primitive.ObjectID, now, lockUntil time.Time) (*SmsMessage, error)
}

// claimCandidates attempts the swap on each candidate in order. A candidate
// lost to a concurrent pass is skipped, never double-claimed.
func claimCandidates(ctx context.Context, claimer messageClaimer, candidates []SmsMessage, now, lockUntil time.Time) ([]SmsMessage, error) {
	claimed := make([]SmsMessage, 0, len(candidates))
	for _, candidate := range candidates {
		msg, err := claimer.claimOne(ctx, candidate.ID, now, lockUntil)
		if err != nil {
			return claimed, err
		}
		if msg == nil {
			continue // lost the race
		}
		claimed = append(claimed, *msg)
	}
	return claimed, nil
}

func (r *MessageRepositoryImpl) ClaimDue(ctx context.Context, now time.Time, limit int, lockUntil time.Time) ([]SmsMessage, error) {
	// Candidates first, then a per-row compare-and-swap. The swap re-checks
	// the full eligibility filter so a row grabbed by a concurrent pass in
	// between simply fails the match and is skipped.
	opts := options.Find().
		SetSort(bson.D{{Key: "next_attempt_at", Value: 1}}).
		SetLimit(int64(limit))
	cursor, err := r.Collection.Find(ctx, claimEligibleFilter(now, nil), opts)
	if err != nil {
		return nil, err
	}
	var candidates []SmsMessage
	if err = cursor.All(ctx, &candidates); err != nil {
		return nil, err
	}

	return claimCandidates(ctx, r, candidates, now, lockUntil)
}

func (r *MessageRepositoryImpl) claimOne(ctx context.Context, id primitive.ObjectID, now, lockUntil time.Time) (*SmsMessage, error) {
	update := bson.M{"$set": bson.M{
		"status":       StatusSending,
		"locked_until": lockUntil,
		"updated_at":   now,
	}}
	after := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var msg SmsMessage
	err := r.Collection.FindOneAndUpdate(ctx, claimEligibleFilter(now, &id), update, after).Decode(&msg)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

func (r *MessageRepositoryImpl) Requeue(ctx context.Context, id primitive.ObjectID, nextAttemptAt time.Time, attemptCount int, lastError string) error {
	_, err := r.Collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"status":          StatusQueued,
			"next_attempt_at": nextAttemptAt,
			"attempt_count":   attemptCount,
			"last_error":      lastError,
			"locked_until":    nil,
			"updated_at":      time.Now().UTC(),
		},
	})
	return err
}

func (r *MessageRepositoryImpl) MarkSent(ctx context.Context, id primitive.ObjectID, providerMessageID string, attemptCount int, now time.Time) error {
	_, err := r.Collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"status":              StatusSent,
			"provider_message_id": providerMessageID,
			"attempt_count":       attemptCount,
			"sent_at":             now,
			"last_error":          "",
			"locked_until":        nil,
			"updated_at":          now,
		},
	})
	return err
}

func (r *MessageRepositoryImpl) MarkFailed(ctx context.Context, id primitive.ObjectID, reason string, attemptCount int, now time.Time) error {
	_, err := r.Collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"status":        StatusFailed,
			"last_error":    reason,
			"attempt_count": attemptCount,
			"locked_until":  nil,
			"updated_at":    now,
		},
	})
	return err
}

func (r *MessageRepositoryImpl) InsertAttempt(ctx context.Context, attempt *SmsAttempt) error {
	attempt.ID = primitive.NewObjectID()
	attempt.CreatedAt = time.Now().UTC()
	_, err := r.Attempts.InsertOne(ctx, attempt)
	return err
}

func (r *MessageRepositoryImpl) UpdateDeliveryStatus(ctx context.Context, providerMessageID string, status MessageStatus, deliveryError string) error {
	update := bson.M{"status": status, "updated_at": time.Now().UTC()}
	if deliveryError != "" {
		update["last_error"] = deliveryError
	}
	_, err := r.Collection.UpdateOne(ctx,
		bson.M{"provider_message_id": providerMessageID},
		bson.M{"$set": update},
	)
	return err
}

func (r *MessageRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.Collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "next_attempt_at", Value: 1}}},
		{Keys: bson.D{{Key: "client_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{
			Keys: bson.D{{Key: "idempotency_key", Value: 1}},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(
				bson.M{"idempotency_key": bson.M{"$type": "string"}},
			),
		},
	})
	if err != nil {
		return err
	}
	_, err = r.Attempts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "message_id", Value: 1}, {Key: "attempt_number", Value: 1}},
	})
	return err
}

type SuppressionRepository interface {
	// Upsert records the suppression unless the (org, phone) pair already has
	// one; the original reason is kept.
	Upsert(ctx context.Context, s *SmsSuppression) error
	IsSuppressed(ctx context.Context, orgID primitive.ObjectID, phone string) (bool, error)
	EnsureIndexes(ctx context.Context) error
}

type SuppressionRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewSuppressionRepository(mongodb *database.MongodbDB) SuppressionRepository {
	return &SuppressionRepositoryImpl{
		Collection: mongodb.DB.Collection("sms_suppressions"),
	}
}

func (r *SuppressionRepositoryImpl) Upsert(ctx context.Context, s *SmsSuppression) error {
	_, err := r.Collection.UpdateOne(ctx,
		bson.M{"org_id": s.OrgID, "phone": s.Phone},
		bson.M{"$setOnInsert": bson.M{
			"org_id":     s.OrgID,
			"phone":      s.Phone,
			"reason":     s.Reason,
			"created_at": time.Now().UTC(),
		}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *SuppressionRepositoryImpl) IsSuppressed(ctx context.Context, orgID primitive.ObjectID, phone string) (bool, error) {
	count, err := r.Collection.CountDocuments(ctx, bson.M{"org_id": orgID, "phone": phone})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *SuppressionRepositoryImpl) EnsureIndexes(ctx context.Context) error {
	_, err := r.Collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "org_id", Value: 1}, {Key: "phone", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

type ScheduleRepository interface {
	ListEnabledByKind(ctx context.Context, kind ScheduleKind) ([]SmsSchedule, error)
}

type ScheduleRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewScheduleRepository(mongodb *database.MongodbDB) ScheduleRepository {
	return &ScheduleRepositoryImpl{
		Collection: mongodb.DB.Collection("sms_schedules"),
	}
}

func (r *ScheduleRepositoryImpl) ListEnabledByKind(ctx context.Context, kind ScheduleKind) ([]SmsSchedule, error) {
	cursor, err := r.Collection.Find(ctx, bson.M{"kind": kind, "enabled": true})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var schedules []SmsSchedule
	if err = cursor.All(ctx, &schedules); err != nil {
		return nil, err
	}
	return schedules, nil
}
