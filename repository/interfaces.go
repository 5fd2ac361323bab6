package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"greenhouse/models"
)

// ErrNotFound is returned when a lookup matches no document.
var ErrNotFound = errors.New("repository: not found")

// DuplicateKeyError reports a write rejected by a unique index. Field is
// the document field the index covers, empty when it cannot be told.
type DuplicateKeyError struct {
	Field string
	Err   error
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key on %q: %v", e.Field, e.Err)
}

func (e *DuplicateKeyError) Unwrap() error { return e.Err }

// ComponentRepository defines the persistence operations on components.
type ComponentRepository interface {
	Create(ctx context.Context, c *models.Component) error
	Update(ctx context.Context, c *models.Component) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Component, error)
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Component, error)
	Search(ctx context.Context, f SearchFilter) ([]models.Component, int64, error)
	UpdateRating(ctx context.Context, id primitive.ObjectID, r models.Rating) error
}

// BotRepository defines the persistence operations on bots.
type BotRepository interface {
	Create(ctx context.Context, b *models.Bot) error
	Update(ctx context.Context, b *models.Bot) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Bot, error)
	Search(ctx context.Context, f SearchFilter) ([]models.Bot, int64, error)
	UpdateRating(ctx context.Context, id primitive.ObjectID, r models.Rating) error
	SetSubscriptionsCount(ctx context.Context, id primitive.ObjectID, n int64) error
	// CountReferencing counts the bots whose engine, services or channels
	// reference the component.
	CountReferencing(ctx context.Context, componentID primitive.ObjectID) (int64, error)
}

// SubscriptionRepository defines the persistence operations on
// subscriptions. A subscription is identified by its (bot, user) pair.
type SubscriptionRepository interface {
	Get(ctx context.Context, botID, userID primitive.ObjectID) (*models.Subscription, error)
	// Upsert inserts or updates s by its (bot, user) pair. Token, ID and
	// CreatedAt are written on insert only.
	Upsert(ctx context.Context, s *models.Subscription) error
	Delete(ctx context.Context, botID, userID primitive.ObjectID) error
	ListByBot(ctx context.Context, botID primitive.ObjectID) ([]models.Subscription, error)
	DeleteByBot(ctx context.Context, botID primitive.ObjectID) (int64, error)
	CountByBot(ctx context.Context, botID primitive.ObjectID) (int64, error)
}

// SnapshotRepository stores the runtime projections. Writes replace the
// document with the same natural key or insert it.
type SnapshotRepository interface {
	ReplaceEngine(ctx context.Context, s *models.EngineSnapshot) error
	GetEngine(ctx context.Context, botID primitive.ObjectID) (*models.EngineSnapshot, error)
	DeleteEngine(ctx context.Context, botID primitive.ObjectID) error
	ReplaceSubscriber(ctx context.Context, s *models.SubscriberSnapshot) error
	GetSubscriber(ctx context.Context, botID primitive.ObjectID, publisherName string) (*models.SubscriberSnapshot, error)
	DeleteSubscriber(ctx context.Context, botID primitive.ObjectID, publisherName string) error
	DeleteSubscribersByBot(ctx context.Context, botID primitive.ObjectID) (int64, error)
}

// ReviewRepository defines the persistence operations on reviews.
type ReviewRepository interface {
	// Upsert inserts or updates r by its (instanceType, instanceId, user) key.
	Upsert(ctx context.Context, r *models.Review) error
	Find(ctx context.Context, t models.InstanceType, instanceID, userID primitive.ObjectID) (*models.Review, error)
	Delete(ctx context.Context, t models.InstanceType, instanceID, userID primitive.ObjectID) error
	Aggregate(ctx context.Context, t models.InstanceType, instanceID primitive.ObjectID) (models.Rating, error)
	List(ctx context.Context, t models.InstanceType, instanceID primitive.ObjectID, page, pageSize int) ([]models.Review, int64, error)
}

// UserRepository reads the user directory owned upstream.
type UserRepository interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error)
}
