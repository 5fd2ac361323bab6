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

type MongoSnapshotRepository struct {
	engines     *mongo.Collection
	subscribers *mongo.Collection
}

func NewMongoSnapshotRepository(database *mongo.Database) *MongoSnapshotRepository {
	return &MongoSnapshotRepository{
		engines:     database.Collection(db.EngineSnapshotsCollection),
		subscribers: database.Collection(db.SubscriberSnapshotsCollection),
	}
}

func engineKey(botID primitive.ObjectID) bson.M {
	return bson.M{"botId": botID}
}

func subscriberKey(botID primitive.ObjectID, publisherName string) bson.M {
	return bson.M{"botId": botID, "publisherName": publisherName}
}

// replace swaps the document at key for doc in one atomic write, inserting
// it when absent. doc must not carry an _id so the existing one is kept.
func replace(ctx context.Context, coll *mongo.Collection, key bson.M, doc any) error {
	_, err := coll.ReplaceOne(ctx, key, doc, options.Replace().SetUpsert(true))
	if err != nil && mongo.IsDuplicateKeyError(err) {
		// Lost an insert race with a concurrent projection of the same
		// key; the document now exists so a plain replace succeeds.
		_, err = coll.ReplaceOne(ctx, key, doc)
	}
	if err != nil {
		return fmt.Errorf("replace in %s: %w", coll.Name(), err)
	}
	return nil
}

func deleteOne(ctx context.Context, coll *mongo.Collection, key bson.M) error {
	if _, err := coll.DeleteOne(ctx, key); err != nil {
		return fmt.Errorf("delete from %s: %w", coll.Name(), err)
	}
	return nil
}

func (r *MongoSnapshotRepository) ReplaceEngine(ctx context.Context, s *models.EngineSnapshot) error {
	doc := *s
	doc.ID = primitive.NilObjectID
	return replace(ctx, r.engines, engineKey(s.BotID), &doc)
}

func (r *MongoSnapshotRepository) GetEngine(ctx context.Context, botID primitive.ObjectID) (*models.EngineSnapshot, error) {
	return findOne[models.EngineSnapshot](ctx, r.engines, engineKey(botID))
}

// DeleteEngine succeeds when there is nothing to delete so a failed cascade
// can be retried.
func (r *MongoSnapshotRepository) DeleteEngine(ctx context.Context, botID primitive.ObjectID) error {
	return deleteOne(ctx, r.engines, engineKey(botID))
}

func (r *MongoSnapshotRepository) ReplaceSubscriber(ctx context.Context, s *models.SubscriberSnapshot) error {
	doc := *s
	doc.ID = primitive.NilObjectID
	return replace(ctx, r.subscribers, subscriberKey(s.BotID, s.PublisherName), &doc)
}

func (r *MongoSnapshotRepository) GetSubscriber(ctx context.Context, botID primitive.ObjectID, publisherName string) (*models.SubscriberSnapshot, error) {
	return findOne[models.SubscriberSnapshot](ctx, r.subscribers, subscriberKey(botID, publisherName))
}

func (r *MongoSnapshotRepository) DeleteSubscriber(ctx context.Context, botID primitive.ObjectID, publisherName string) error {
	return deleteOne(ctx, r.subscribers, subscriberKey(botID, publisherName))
}

func (r *MongoSnapshotRepository) DeleteSubscribersByBot(ctx context.Context, botID primitive.ObjectID) (int64, error) {
	res, err := r.subscribers.DeleteMany(ctx, bson.M{"botId": botID})
	if err != nil {
		return 0, fmt.Errorf("delete subscriber snapshots of bot %s: %w", botID.Hex(), err)
	}
	return res.DeletedCount, nil
}
