package mq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"greenhouse/models"
)

// SnapshotChannel is the pub/sub channel snapshot events are published on.
const SnapshotChannel = "snapshot-events"

// Emitter publishes snapshot events to Redis and lets consumers listen for
// them.
type Emitter struct {
	rdb     redis.UniversalClient
	channel string
	log     *logrus.Logger
}

func NewEmitter(rdb redis.UniversalClient, log *logrus.Logger) *Emitter {
	return &Emitter{rdb: rdb, channel: SnapshotChannel, log: log}
}

// Publish sends ev to every listener.
func (e *Emitter) Publish(ctx context.Context, ev models.SnapshotEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal snapshot event: %w", err)
	}
	if err := e.rdb.Publish(ctx, e.channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", e.channel, err)
	}
	e.log.WithFields(logrus.Fields{
		"kind":    ev.Kind,
		"action":  ev.Action,
		"bot_id":  ev.BotID,
		"channel": e.channel,
	}).Debug("snapshot event published")
	return nil
}

// Listen delivers every event received on the channel to handle until ctx
// is cancelled. Undecodable payloads are logged and skipped.
func (e *Emitter) Listen(ctx context.Context, handle func(models.SnapshotEvent)) error {
	sub := e.rdb.Subscribe(ctx, e.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", e.channel, err)
	}
	ch := sub.Channel()

	e.log.WithField("channel", e.channel).Info("listening for snapshot events")
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev models.SnapshotEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				e.log.WithError(err).Warn("dropping malformed snapshot event")
				continue
			}
			handle(ev)
		}
	}
}
