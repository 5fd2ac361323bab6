package rdx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"greenhouse/models"
)

// SnapshotCache keeps runtime snapshots in Redis as JSON for the runtime
// read endpoints. Entries expire after ttl and are dropped whenever the
// projector rewrites or deletes the snapshot.
type SnapshotCache struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewSnapshotCache(rdb redis.UniversalClient, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{rdb: rdb, ttl: ttl}
}

func engineKey(botID primitive.ObjectID) string {
	return "snapshot:engine:" + botID.Hex()
}

func subscriberKey(botID primitive.ObjectID, publisherName string) string {
	return "snapshot:subscriber:" + botID.Hex() + ":" + publisherName
}

// subscriberSetKey names the set of subscriber entry keys cached for a bot.
// Keys are tracked there so invalidation never matches on usernames.
func subscriberSetKey(botID primitive.ObjectID) string {
	return "snapshot:subscribers:" + botID.Hex()
}

func (c *SnapshotCache) get(ctx context.Context, key string, out any) (bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		// A corrupt entry is treated as a miss and dropped.
		c.rdb.Del(ctx, key)
		return false, nil
	}
	return true, nil
}

func (c *SnapshotCache) set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

func (c *SnapshotCache) Engine(ctx context.Context, botID primitive.ObjectID) (*models.EngineSnapshot, bool, error) {
	var s models.EngineSnapshot
	ok, err := c.get(ctx, engineKey(botID), &s)
	if !ok || err != nil {
		return nil, false, err
	}
	return &s, true, nil
}

func (c *SnapshotCache) StoreEngine(ctx context.Context, s *models.EngineSnapshot) error {
	return c.set(ctx, engineKey(s.BotID), s)
}

func (c *SnapshotCache) Subscriber(ctx context.Context, botID primitive.ObjectID, publisherName string) (*models.SubscriberSnapshot, bool, error) {
	var s models.SubscriberSnapshot
	ok, err := c.get(ctx, subscriberKey(botID, publisherName), &s)
	if !ok || err != nil {
		return nil, false, err
	}
	return &s, true, nil
}

func (c *SnapshotCache) StoreSubscriber(ctx context.Context, s *models.SubscriberSnapshot) error {
	key := subscriberKey(s.BotID, s.PublisherName)
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	set := subscriberSetKey(s.BotID)
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, c.ttl)
		pipe.SAdd(ctx, set, key)
		pipe.Expire(ctx, set, c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

func (c *SnapshotCache) InvalidateEngine(ctx context.Context, botID primitive.ObjectID) error {
	return c.rdb.Del(ctx, engineKey(botID)).Err()
}

func (c *SnapshotCache) InvalidateSubscriber(ctx context.Context, botID primitive.ObjectID, publisherName string) error {
	key := subscriberKey(botID, publisherName)
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.SRem(ctx, subscriberSetKey(botID), key)
		return nil
	})
	return err
}

// InvalidateBot drops the engine entry and every subscriber entry of a bot.
func (c *SnapshotCache) InvalidateBot(ctx context.Context, botID primitive.ObjectID) error {
	set := subscriberSetKey(botID)
	members, err := c.rdb.SMembers(ctx, set).Result()
	if err != nil {
		return fmt.Errorf("list cache keys of bot %s: %w", botID.Hex(), err)
	}
	keys := append([]string{engineKey(botID), set}, members...)
	return c.rdb.Del(ctx, keys...).Err()
}
