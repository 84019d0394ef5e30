package booking

import (
	"context"
	"time"

	"coachkit/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type BookingRepository interface {
	ListConfirmedStartingBetween(ctx context.Context, from, to time.Time) ([]Booking, error)
	ListCompletedEndingBetween(ctx context.Context, from, to time.Time) ([]Booking, error)
	// ListUnconfirmedStartingBetween finds confirmed bookings in the window
	// that the client was asked to confirm but has not.
	ListUnconfirmedStartingBetween(ctx context.Context, from, to time.Time) ([]Booking, error)
	// CountUpcomingForClient counts the client's pending and confirmed
	// bookings starting after now.
	CountUpcomingForClient(ctx context.Context, clientID primitive.ObjectID, now time.Time) (int64, error)
	// CompletePastConfirmed flips confirmed bookings whose end time has
	// passed to completed. Returns the number of bookings updated.
	CompletePastConfirmed(ctx context.Context, now time.Time) (int64, error)
}

type BookingRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewBookingRepository(mongodb *database.MongodbDB) BookingRepository {
	return &BookingRepositoryImpl{
		Collection: mongodb.DB.Collection("bookings"),
	}
}

func (r *BookingRepositoryImpl) ListConfirmedStartingBetween(ctx context.Context, from, to time.Time) ([]Booking, error) {
	filter := bson.M{
		"status":     StatusConfirmed,
		"start_time": bson.M{"$gte": from, "$lte": to},
	}
	opts := options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}})
	cursor, err := r.Collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var bookings []Booking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *BookingRepositoryImpl) ListCompletedEndingBetween(ctx context.Context, from, to time.Time) ([]Booking, error) {
	filter := bson.M{
		"status":   StatusCompleted,
		"end_time": bson.M{"$gte": from, "$lte": to},
	}
	opts := options.Find().SetSort(bson.D{{Key: "end_time", Value: 1}})
	cursor, err := r.Collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var bookings []Booking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *BookingRepositoryImpl) ListUnconfirmedStartingBetween(ctx context.Context, from, to time.Time) ([]Booking, error) {
	filter := bson.M{
		"status":               StatusConfirmed,
		"client_confirmed":     false,
		"confirmation_sent_at": bson.M{"$ne": nil},
		"start_time":           bson.M{"$gte": from, "$lte": to},
	}
	cursor, err := r.Collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var bookings []Booking
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *BookingRepositoryImpl) CountUpcomingForClient(ctx context.Context, clientID primitive.ObjectID, now time.Time) (int64, error) {
	return r.Collection.CountDocuments(ctx, bson.M{
		"client_id":  clientID,
		"status":     bson.M{"$in": []BookingStatus{StatusPending, StatusConfirmed}},
		"start_time": bson.M{"$gt": now},
	})
}

func (r *BookingRepositoryImpl) CompletePastConfirmed(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.Collection.UpdateMany(ctx,
		bson.M{"status": StatusConfirmed, "end_time": bson.M{"$lt": now}},
		bson.M{"$set": bson.M{"status": StatusCompleted}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
