package settings

import (
	"context"

	"coachkit/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type SettingsRepository interface {
	GetByOrg(ctx context.Context, orgID primitive.ObjectID) (*SmsSettings, error)
	ListByOrgs(ctx context.Context, orgIDs []primitive.ObjectID) (map[primitive.ObjectID]*SmsSettings, error)
}

type SettingsRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewSettingsRepository(mongodb *database.MongodbDB) SettingsRepository {
	return &SettingsRepositoryImpl{
		Collection: mongodb.DB.Collection("sms_settings"),
	}
}

func (r *SettingsRepositoryImpl) GetByOrg(ctx context.Context, orgID primitive.ObjectID) (*SmsSettings, error) {
	var s SmsSettings
	err := r.Collection.FindOne(ctx, bson.M{"org_id": orgID}).Decode(&s)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *SettingsRepositoryImpl) ListByOrgs(ctx context.Context, orgIDs []primitive.ObjectID) (map[primitive.ObjectID]*SmsSettings, error) {
	cursor, err := r.Collection.Find(ctx, bson.M{"org_id": bson.M{"$in": orgIDs}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	result := make(map[primitive.ObjectID]*SmsSettings)
	for cursor.Next(ctx) {
		var s SmsSettings
		if err := cursor.Decode(&s); err != nil {
			return nil, err
		}
		copied := s
		result[s.OrgID] = &copied
	}
	return result, cursor.Err()
}
