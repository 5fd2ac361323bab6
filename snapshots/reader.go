package snapshots

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"greenhouse/apperr"
	"greenhouse/metrics"
	"greenhouse/models"
	"greenhouse/repository"
)

const errForbidden = "domain.snapshot.validation.forbidden_snapshot"

// Reader serves snapshots to the runtime, reading through the cache when
// one is configured.
type Reader struct {
	snapshots repository.SnapshotRepository
	cache     Cache
	log       *logrus.Logger
}

func NewReader(snapshots repository.SnapshotRepository, cache Cache, log *logrus.Logger) *Reader {
	return &Reader{snapshots: snapshots, cache: cache, log: log}
}

// EngineFor returns the engine snapshot of botID to the bot owner only.
func (r *Reader) EngineFor(ctx context.Context, actor models.Actor, botID primitive.ObjectID) (*models.EngineSnapshot, error) {
	s, err := r.Engine(ctx, botID)
	if err != nil {
		return nil, err
	}
	if !isUser(actor, s.OwnerName) {
		return nil, apperr.Forbidden(errForbidden)
	}
	return s, nil
}

// SubscriberFor returns the subscriber snapshot of publisherName on botID
// when actor is that subscriber or owns the bot.
func (r *Reader) SubscriberFor(ctx context.Context, actor models.Actor, botID primitive.ObjectID, publisherName string) (*models.SubscriberSnapshot, error) {
	if !isUser(actor, publisherName) {
		if _, err := r.EngineFor(ctx, actor, botID); err != nil {
			return nil, err
		}
	}
	return r.Subscriber(ctx, botID, publisherName)
}

func isUser(actor models.Actor, username string) bool {
	return actor.Username != "" && actor.Username == username
}

func (r *Reader) Engine(ctx context.Context, botID primitive.ObjectID) (*models.EngineSnapshot, error) {
	if r.cache != nil {
		s, ok, err := r.cache.Engine(ctx, botID)
		if err != nil {
			r.log.WithError(err).Warn("snapshot cache read failed")
		}
		metrics.RecordCacheLookup(ok)
		if ok {
			return s, nil
		}
	}

	s, err := r.snapshots.GetEngine(ctx, botID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("domain.snapshot.validation.engine_not_found")
	}
	if err != nil {
		return nil, apperr.Internal("get engine snapshot", err)
	}
	if r.cache != nil {
		if err := r.cache.StoreEngine(ctx, s); err != nil {
			r.log.WithError(err).Warn("snapshot cache write failed")
		}
	}
	return s, nil
}

func (r *Reader) Subscriber(ctx context.Context, botID primitive.ObjectID, publisherName string) (*models.SubscriberSnapshot, error) {
	if r.cache != nil {
		s, ok, err := r.cache.Subscriber(ctx, botID, publisherName)
		if err != nil {
			r.log.WithError(err).Warn("snapshot cache read failed")
		}
		metrics.RecordCacheLookup(ok)
		if ok {
			return s, nil
		}
	}

	s, err := r.snapshots.GetSubscriber(ctx, botID, publisherName)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("domain.snapshot.validation.subscriber_not_found")
	}
	if err != nil {
		return nil, apperr.Internal("get subscriber snapshot", err)
	}
	if r.cache != nil {
		if err := r.cache.StoreSubscriber(ctx, s); err != nil {
			r.log.WithError(err).Warn("snapshot cache write failed")
		}
	}
	return s, nil
}
