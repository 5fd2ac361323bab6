package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"greenhouse/db"
	"greenhouse/models"
)

type MongoSubscriptionRepository struct {
	coll *mongo.Collection
}

func NewMongoSubscriptionRepository(database *mongo.Database) *MongoSubscriptionRepository {
	return &MongoSubscriptionRepository{coll: database.Collection(db.SubscriptionsCollection)}
}

func subscriptionKey(botID, userID primitive.ObjectID) bson.M {
	return bson.M{"bot": botID, "user": userID}
}

func (r *MongoSubscriptionRepository) Get(ctx context.Context, botID, userID primitive.ObjectID) (*models.Subscription, error) {
	return findOne[models.Subscription](ctx, r.coll, subscriptionKey(botID, userID))
}

func (r *MongoSubscriptionRepository) Upsert(ctx context.Context, s *models.Subscription) error {
	update := bson.M{
		"$set": bson.M{
			"subscriptionType": s.SubscriptionType,
			"properties":       s.Properties,
			"botEngine":        s.BotEngine,
			"services":         s.Services,
			"channels":         s.Channels,
			"updatedAt":        s.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"_id":       s.ID,
			"token":     s.Token,
			"createdAt": s.CreatedAt,
		},
	}
	_, err := r.coll.UpdateOne(ctx, subscriptionKey(s.BotID, s.UserID), update, options.Update().SetUpsert(true))
	if err != nil {
		// Two concurrent first subscribes race on the unique (bot, user)
		// index; the loser retries as a plain update.
		if mongo.IsDuplicateKeyError(err) {
			_, err = r.coll.UpdateOne(ctx, subscriptionKey(s.BotID, s.UserID), bson.M{"$set": update["$set"]})
		}
		if err != nil {
			return fmt.Errorf("upsert subscription: %w", err)
		}
	}
	return nil
}

func (r *MongoSubscriptionRepository) Delete(ctx context.Context, botID, userID primitive.ObjectID) error {
	res, err := r.coll.DeleteOne(ctx, subscriptionKey(botID, userID))
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoSubscriptionRepository) ListByBot(ctx context.Context, botID primitive.ObjectID) ([]models.Subscription, error) {
	return findAll[models.Subscription](ctx, r.coll, bson.M{"bot": botID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
}

func (r *MongoSubscriptionRepository) DeleteByBot(ctx context.Context, botID primitive.ObjectID) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.M{"bot": botID})
	if err != nil {
		return 0, fmt.Errorf("delete subscriptions of bot %s: %w", botID.Hex(), err)
	}
	return res.DeletedCount, nil
}

func (r *MongoSubscriptionRepository) CountByBot(ctx context.Context, botID primitive.ObjectID) (int64, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"bot": botID})
	if err != nil {
		return 0, fmt.Errorf("count subscriptions of bot %s: %w", botID.Hex(), err)
	}
	return n, nil
}
