// Package snapshots builds the denormalized engine and subscriber documents
// the bot runtime reads, and serves them back to it.
package snapshots

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"greenhouse/apperr"
	"greenhouse/metrics"
	"greenhouse/models"
	"greenhouse/repository"
	"greenhouse/resolve"
)

// EventPublisher announces snapshot changes to runtimes.
type EventPublisher interface {
	Publish(ctx context.Context, ev models.SnapshotEvent) error
}

// Cache holds snapshots for the runtime read endpoints.
type Cache interface {
	Engine(ctx context.Context, botID primitive.ObjectID) (*models.EngineSnapshot, bool, error)
	StoreEngine(ctx context.Context, s *models.EngineSnapshot) error
	Subscriber(ctx context.Context, botID primitive.ObjectID, publisherName string) (*models.SubscriberSnapshot, bool, error)
	StoreSubscriber(ctx context.Context, s *models.SubscriberSnapshot) error
	InvalidateEngine(ctx context.Context, botID primitive.ObjectID) error
	InvalidateSubscriber(ctx context.Context, botID primitive.ObjectID, publisherName string) error
	InvalidateBot(ctx context.Context, botID primitive.ObjectID) error
}

// Deps are the collaborators of a Projector. Events and Cache are optional.
type Deps struct {
	Components    repository.ComponentRepository
	Users         repository.UserRepository
	Subscriptions repository.SubscriptionRepository
	Snapshots     repository.SnapshotRepository
	Events        EventPublisher
	Cache         Cache
	Log           *logrus.Logger
}

// Projector rebuilds snapshots from bots and subscriptions. Every write
// replaces the whole document under its natural key, so projecting the
// same input again is harmless.
type Projector struct {
	components    repository.ComponentRepository
	users         repository.UserRepository
	subscriptions repository.SubscriptionRepository
	snapshots     repository.SnapshotRepository
	events        EventPublisher
	cache         Cache
	log           *logrus.Logger
	now           func() time.Time
}

func NewProjector(d Deps) *Projector {
	return &Projector{
		components:    d.Components,
		users:         d.Users,
		subscriptions: d.Subscriptions,
		snapshots:     d.Snapshots,
		events:        d.Events,
		cache:         d.Cache,
		log:           d.Log,
		now:           time.Now,
	}
}

// BuildEngine resolves the bot's engine against the developer layer only.
func (p *Projector) BuildEngine(ctx context.Context, bot *models.Bot) (*models.EngineSnapshot, error) {
	owner, err := p.user(ctx, bot.UserID, "owner of bot "+bot.BotID)
	if err != nil {
		return nil, err
	}
	engine, err := p.component(ctx, bot.BotEngine.Component, "engine of bot "+bot.BotID)
	if err != nil {
		return nil, err
	}
	return &models.EngineSnapshot{
		BotID:         bot.ID,
		OwnerName:     owner.Username,
		Name:          bot.BotID,
		Title:         bot.Name,
		Description:   bot.Description,
		ChatbotEngine: resolve.Properties(engine.Properties, resolve.Layers{DeveloperValues: bot.BotEngine.Values}),
		PricingModel:  models.PricingTag(bot.PricingModel),
		PerUseCost:    bot.PricePerUse,
		PerMonthCost:  bot.PricePerMonth,
		UpdatedAt:     bot.UpdatedAt,
	}, nil
}

// BuildSubscriber resolves the bot's channels and services for one
// subscription. The bot's references supply the developer layer and the
// subscription's entry for the same component the subscriber layer.
func (p *Projector) BuildSubscriber(ctx context.Context, bot *models.Bot, sub *models.Subscription) (*models.SubscriberSnapshot, error) {
	subscriber, err := p.user(ctx, sub.UserID, "subscriber of bot "+bot.BotID)
	if err != nil {
		return nil, err
	}
	comps, err := p.referenced(ctx, bot)
	if err != nil {
		return nil, err
	}

	channels := models.NewOrderedMap[models.OrderedMap[string]](len(bot.Channels))
	for _, ref := range bot.Channels {
		c := comps[ref.Component]
		layers := resolve.Layers{DeveloperValues: ref.Values, SubscriberValues: sub.ChannelValues(ref.Component)}
		channels.Set(c.Key, resolve.Properties(c.Properties, layers))
	}

	services := make([]models.ServiceSnapshot, 0, len(bot.Services))
	for _, ref := range bot.Services {
		c := comps[ref.Component]
		owner, err := p.user(ctx, c.UserID, "owner of component "+c.ID.Hex())
		if err != nil {
			return nil, err
		}
		layers := resolve.Layers{DeveloperValues: ref.Values, SubscriberValues: sub.ServiceValues(ref.Component)}
		services = append(services, models.ServiceSnapshot{
			OwnerName:        owner.Username,
			Name:             c.Key,
			Title:            c.Name,
			Category:         c.Category,
			URL:              c.URL,
			Method:           strings.ToLower(c.HTTPMethod),
			Timeout:          c.Timeout,
			FunctionName:     c.FunctionName,
			SubscriptionID:   ref.ID,
			SubscriptionType: models.SubscriptionTag(ref.SubscriptionType),
			Cost:             c.Cost(ref.SubscriptionType),
			Headers:          resolve.Properties(c.Headers, layers),
			PredefinedVars:   resolve.Properties(c.PredefinedVars, layers),
			MappedVars:       resolve.Names(c.MappedVars),
		})
	}

	return &models.SubscriberSnapshot{
		SubscriptionID:   sub.ID,
		BotID:            bot.ID,
		PublisherName:    subscriber.Username,
		BotName:          bot.BotID,
		Token:            sub.Token,
		SubscriptionType: models.SubscriptionTag(sub.SubscriptionType),
		UpdatedAt:        sub.UpdatedAt,
		Channels:         channels,
		Services:         services,
	}, nil
}

// ProjectEngine rebuilds and stores the bot's engine snapshot.
func (p *Projector) ProjectEngine(ctx context.Context, bot *models.Bot) (err error) {
	start := p.now()
	defer func() { p.finish(models.SnapshotEngine, bot, "", start, err) }()

	snap, err := p.BuildEngine(ctx, bot)
	if err != nil {
		return err
	}
	if err := p.snapshots.ReplaceEngine(ctx, snap); err != nil {
		return apperr.Internal("replace engine snapshot", err)
	}
	p.invalidate(ctx, func(ctx context.Context) error { return p.cache.InvalidateEngine(ctx, bot.ID) })
	p.emit(ctx, models.SnapshotEngine, models.ActionReplaced, bot, "")
	return nil
}

// ProjectSubscriber rebuilds and stores the snapshot of one subscription.
func (p *Projector) ProjectSubscriber(ctx context.Context, bot *models.Bot, sub *models.Subscription) (err error) {
	start := p.now()
	var name string
	defer func() { p.finish(models.SnapshotSubscriber, bot, name, start, err) }()

	snap, err := p.BuildSubscriber(ctx, bot, sub)
	if err != nil {
		return err
	}
	name = snap.PublisherName
	if err := p.snapshots.ReplaceSubscriber(ctx, snap); err != nil {
		return apperr.Internal("replace subscriber snapshot", err)
	}
	p.invalidate(ctx, func(ctx context.Context) error { return p.cache.InvalidateSubscriber(ctx, bot.ID, name) })
	p.emit(ctx, models.SnapshotSubscriber, models.ActionReplaced, bot, name)
	return nil
}

// ProjectBot rebuilds the engine snapshot and the snapshot of every
// subscription of the bot. It stops at the first failure.
func (p *Projector) ProjectBot(ctx context.Context, bot *models.Bot) error {
	if err := p.ProjectEngine(ctx, bot); err != nil {
		return err
	}
	subs, err := p.subscriptions.ListByBot(ctx, bot.ID)
	if err != nil {
		return apperr.Internal("list subscriptions", err)
	}
	for i := range subs {
		if err := p.ProjectSubscriber(ctx, bot, &subs[i]); err != nil {
			return err
		}
	}
	return nil
}

// RemoveSubscriber deletes the snapshot of one subscriber. Deleting a
// missing snapshot is not an error.
func (p *Projector) RemoveSubscriber(ctx context.Context, bot *models.Bot, publisherName string) error {
	if err := p.snapshots.DeleteSubscriber(ctx, bot.ID, publisherName); err != nil {
		return apperr.Internal("delete subscriber snapshot", err)
	}
	p.invalidate(ctx, func(ctx context.Context) error { return p.cache.InvalidateSubscriber(ctx, bot.ID, publisherName) })
	p.emit(ctx, models.SnapshotSubscriber, models.ActionDeleted, bot, publisherName)
	return nil
}

// RemoveSubscribers deletes every subscriber snapshot of the bot and
// announces it with a single bot-level event.
func (p *Projector) RemoveSubscribers(ctx context.Context, bot *models.Bot) error {
	n, err := p.snapshots.DeleteSubscribersByBot(ctx, bot.ID)
	if err != nil {
		return apperr.Internal("delete subscriber snapshots", err)
	}
	p.invalidate(ctx, func(ctx context.Context) error { return p.cache.InvalidateBot(ctx, bot.ID) })
	p.log.WithFields(logrus.Fields{"bot_id": bot.ID.Hex(), "count": n}).Debug("subscriber snapshots deleted")
	p.emit(ctx, models.SnapshotSubscriber, models.ActionDeleted, bot, "")
	return nil
}

// RemoveEngine deletes the bot's engine snapshot.
func (p *Projector) RemoveEngine(ctx context.Context, bot *models.Bot) error {
	if err := p.snapshots.DeleteEngine(ctx, bot.ID); err != nil {
		return apperr.Internal("delete engine snapshot", err)
	}
	p.invalidate(ctx, func(ctx context.Context) error { return p.cache.InvalidateEngine(ctx, bot.ID) })
	p.emit(ctx, models.SnapshotEngine, models.ActionDeleted, bot, "")
	return nil
}

// referenced loads every component the bot's services and channels point
// to. A missing component is an integrity fault.
func (p *Projector) referenced(ctx context.Context, bot *models.Bot) (map[primitive.ObjectID]*models.Component, error) {
	ids := make([]primitive.ObjectID, 0, len(bot.Services)+len(bot.Channels))
	for _, ref := range bot.Services {
		ids = append(ids, ref.Component)
	}
	for _, ref := range bot.Channels {
		ids = append(ids, ref.Component)
	}
	found, err := p.components.FindByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Internal("find components", err)
	}
	byID := make(map[primitive.ObjectID]*models.Component, len(found))
	for i := range found {
		byID[found[i].ID] = &found[i]
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, apperr.Integrity("component %s referenced by bot %s does not exist", id.Hex(), bot.BotID)
		}
	}
	return byID, nil
}

func (p *Projector) component(ctx context.Context, id primitive.ObjectID, role string) (*models.Component, error) {
	c, err := p.components.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Integrity("component %s (%s) does not exist", id.Hex(), role)
	}
	if err != nil {
		return nil, apperr.Internal("find component", err)
	}
	return c, nil
}

func (p *Projector) user(ctx context.Context, id primitive.ObjectID, role string) (*models.User, error) {
	u, err := p.users.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Integrity("user %s (%s) does not exist", id.Hex(), role)
	}
	if err != nil {
		return nil, apperr.Internal("find user", err)
	}
	return u, nil
}

func (p *Projector) finish(kind string, bot *models.Bot, publisherName string, start time.Time, err error) {
	metrics.RecordProjection(kind, p.now().Sub(start), err)
	if err == nil {
		return
	}
	entry := p.log.WithFields(logrus.Fields{
		"kind":   kind,
		"bot_id": bot.ID.Hex(),
		"bot":    bot.BotID,
	})
	if publisherName != "" {
		entry = entry.WithField("publisher", publisherName)
	}
	if apperr.KindOf(err) == apperr.KindIntegrity {
		entry.WithError(err).Error("snapshot projection hit a dangling reference")
		return
	}
	entry.WithError(err).Warn("snapshot projection failed")
}

// invalidate drops a cache entry. Failures only cost a stale read until
// the entry expires, so they are logged and not returned.
func (p *Projector) invalidate(ctx context.Context, fn func(context.Context) error) {
	if p.cache == nil {
		return
	}
	if err := fn(ctx); err != nil {
		p.log.WithError(err).Warn("snapshot cache invalidation failed")
	}
}

func (p *Projector) emit(ctx context.Context, kind, action string, bot *models.Bot, publisherName string) {
	if p.events == nil {
		return
	}
	ev := models.SnapshotEvent{
		Kind:          kind,
		Action:        action,
		BotID:         bot.ID.Hex(),
		BotName:       bot.BotID,
		PublisherName: publisherName,
		At:            p.now().UTC(),
	}
	if err := p.events.Publish(ctx, ev); err != nil {
		p.log.WithError(err).WithField("bot_id", ev.BotID).Warn("snapshot event not published")
	}
}
