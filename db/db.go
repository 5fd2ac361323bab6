package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	UsersCollection               = "users"
	ComponentsCollection          = "components"
	BotsCollection                = "bots"
	SubscriptionsCollection       = "botsubscriptions"
	ReviewsCollection             = "reviews"
	EngineSnapshotsCollection     = "dotbots"
	SubscriberSnapshotsCollection = "dotbotpublishers"
)

// Index names. Duplicate key errors are traced back to fields through them.
const (
	IndexNameKey      = "nameKey_1"
	IndexKey          = "key_1"
	IndexBotID        = "botId_1"
	IndexSubscription = "bot_1_user_1"
	IndexReview       = "instanceType_1_instanceId_1_user_1"
	IndexPublisher    = "botId_1_publisherName_1"
)

// Connect opens a client to uri and checks it with a ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the unique indexes the services rely on for
// natural-key upserts and uniqueness of names.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	unique := func(name string, keys bson.D) mongo.IndexModel {
		return mongo.IndexModel{Keys: keys, Options: options.Index().SetName(name).SetUnique(true)}
	}
	plain := func(keys bson.D) mongo.IndexModel {
		return mongo.IndexModel{Keys: keys}
	}

	specs := map[string][]mongo.IndexModel{
		ComponentsCollection: {
			unique(IndexNameKey, bson.D{{Key: "nameKey", Value: 1}}),
			unique(IndexKey, bson.D{{Key: "key", Value: 1}}),
			plain(bson.D{{Key: "user", Value: 1}}),
		},
		BotsCollection: {
			unique(IndexNameKey, bson.D{{Key: "nameKey", Value: 1}}),
			unique(IndexBotID, bson.D{{Key: "botId", Value: 1}}),
			plain(bson.D{{Key: "user", Value: 1}}),
			plain(bson.D{{Key: "botEngine.component", Value: 1}}),
			plain(bson.D{{Key: "services.component", Value: 1}}),
			plain(bson.D{{Key: "channels.component", Value: 1}}),
		},
		SubscriptionsCollection: {
			unique(IndexSubscription, bson.D{{Key: "bot", Value: 1}, {Key: "user", Value: 1}}),
		},
		ReviewsCollection: {
			unique(IndexReview, bson.D{{Key: "instanceType", Value: 1}, {Key: "instanceId", Value: 1}, {Key: "user", Value: 1}}),
		},
		EngineSnapshotsCollection: {
			unique(IndexBotID, bson.D{{Key: "botId", Value: 1}}),
		},
		SubscriberSnapshotsCollection: {
			unique(IndexPublisher, bson.D{{Key: "botId", Value: 1}, {Key: "publisherName", Value: 1}}),
		},
	}

	for coll, models := range specs {
		if _, err := database.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}
