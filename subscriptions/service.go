// Package subscriptions activates bots for users and keeps each
// subscriber's snapshot and the bot's subscriber count current.
package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"greenhouse/apperr"
	"greenhouse/models"
	"greenhouse/repository"
	"greenhouse/validation"
)

const (
	errBotNotFound  = "domain.bot.validation.bot_not_found"
	errNotFound     = "domain.subscription.validation.subscription_not_found"
	errBotDisabled  = "domain.subscription.validation.bot_disabled"
	errNoUser       = "domain.user.validation.user_not_found"
	errNotReferred  = "domain.subscription.validation.component_not_in_bot"
	errUnknownValue = "domain.subscription.validation.unknown_property"
)

// Projector maintains subscriber snapshots.
type Projector interface {
	ProjectSubscriber(ctx context.Context, bot *models.Bot, sub *models.Subscription) error
	RemoveSubscriber(ctx context.Context, bot *models.Bot, publisherName string) error
}

type Deps struct {
	Bots          repository.BotRepository
	Components    repository.ComponentRepository
	Subscriptions repository.SubscriptionRepository
	Users         repository.UserRepository
	Projector     Projector
	Validator     *validation.Validator
	Log           *logrus.Logger
}

type Service struct {
	bots          repository.BotRepository
	components    repository.ComponentRepository
	subscriptions repository.SubscriptionRepository
	users         repository.UserRepository
	projector     Projector
	validate      *validation.Validator
	log           *logrus.Logger
	now           func() time.Time
	newToken      func() string
}

func NewService(d Deps) *Service {
	return &Service{
		bots:          d.Bots,
		components:    d.Components,
		subscriptions: d.Subscriptions,
		users:         d.Users,
		projector:     d.Projector,
		validate:      d.Validator,
		log:           d.Log,
		now:           time.Now,
		newToken:      uuid.NewString,
	}
}

// Subscribe creates or updates the actor's subscription to the bot. An
// empty subscription type defaults to the one the bot's pricing implies.
// The token minted on the first subscribe is kept on every later one.
func (s *Service) Subscribe(ctx context.Context, actor models.Actor, botID primitive.ObjectID, in *models.Subscription) (*models.Subscription, error) {
	bot, err := s.findBot(ctx, botID)
	if err != nil {
		return nil, err
	}
	if bot.Status != models.StatusEnabled && bot.UserID != actor.ID {
		return nil, apperr.Field("bot", errBotDisabled)
	}
	return s.subscribe(ctx, bot, actor.ID, in)
}

// SubscribeOwner subscribes the bot's owner with the default subscription
// type and no override values, keeping any existing overrides.
func (s *Service) SubscribeOwner(ctx context.Context, bot *models.Bot) (*models.Subscription, error) {
	in := &models.Subscription{SubscriptionType: models.DefaultSubscriptionType(bot.PricingModel)}
	if prev, err := s.subscriptions.Get(ctx, bot.ID, bot.UserID); err == nil {
		in = prev
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Internal("get subscription", err)
	}
	return s.subscribe(ctx, bot, bot.UserID, in)
}

func (s *Service) subscribe(ctx context.Context, bot *models.Bot, userID primitive.ObjectID, in *models.Subscription) (*models.Subscription, error) {
	if _, err := s.user(ctx, userID); err != nil {
		return nil, err
	}

	in.UserID = userID
	in.BotID = bot.ID
	if in.SubscriptionType == "" {
		in.SubscriptionType = models.DefaultSubscriptionType(bot.PricingModel)
	}
	in.Prepare()
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	if !models.AllowsSubscription(bot.PricingModel, in.SubscriptionType) {
		return nil, apperr.Field("subscriptionType", "validation.option")
	}
	if err := s.checkOverrides(ctx, bot, in); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	in.ID = primitive.NewObjectID()
	in.Token = s.newToken()
	in.CreatedAt, in.UpdatedAt = now, now
	if err := s.subscriptions.Upsert(ctx, in); err != nil {
		return nil, apperr.Internal("upsert subscription", err)
	}
	// The stored document is authoritative for id, token and creation time.
	sub, err := s.subscriptions.Get(ctx, bot.ID, userID)
	if err != nil {
		return nil, apperr.Internal("get subscription", err)
	}
	if err := s.recount(ctx, bot); err != nil {
		return nil, err
	}
	if err := s.projector.ProjectSubscriber(ctx, bot, sub); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"bot_id":            bot.ID.Hex(),
		"user_id":           userID.Hex(),
		"subscription_type": sub.SubscriptionType,
	}).Info("subscribed")
	return sub, nil
}

// Unsubscribe removes the actor's subscription and its snapshot.
func (s *Service) Unsubscribe(ctx context.Context, actor models.Actor, botID primitive.ObjectID) error {
	bot, err := s.findBot(ctx, botID)
	if err != nil {
		return err
	}
	if _, err := s.Get(ctx, actor, botID); err != nil {
		return err
	}
	u, err := s.user(ctx, actor.ID)
	if err != nil {
		return err
	}

	if err := s.projector.RemoveSubscriber(ctx, bot, u.Username); err != nil {
		return err
	}
	if err := s.subscriptions.Delete(ctx, botID, actor.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return apperr.Internal("delete subscription", err)
	}
	if err := s.recount(ctx, bot); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"bot_id": botID.Hex(), "user_id": actor.ID.Hex()}).Info("unsubscribed")
	return nil
}

// Get returns the actor's subscription to the bot.
func (s *Service) Get(ctx context.Context, actor models.Actor, botID primitive.ObjectID) (*models.Subscription, error) {
	sub, err := s.subscriptions.Get(ctx, botID, actor.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound(errNotFound)
	}
	if err != nil {
		return nil, apperr.Internal("get subscription", err)
	}
	return sub, nil
}

// recount stores a fresh count so concurrent subscribes cannot leave it
// drifting.
func (s *Service) recount(ctx context.Context, bot *models.Bot) error {
	n, err := s.subscriptions.CountByBot(ctx, bot.ID)
	if err != nil {
		return apperr.Internal("count subscriptions", err)
	}
	if err := s.bots.SetSubscriptionsCount(ctx, bot.ID, n); err != nil {
		return apperr.Internal("set subscriptions count", err)
	}
	bot.SubscriptionsCount = n
	return nil
}

// checkOverrides verifies that every override targets a component the bot
// references in the same slot and names only properties that component
// declares. Bot level values must name the bot's own properties.
func (s *Service) checkOverrides(ctx context.Context, bot *models.Bot, sub *models.Subscription) error {
	found, err := s.components.FindByIDs(ctx, bot.ComponentIDs())
	if err != nil {
		return apperr.Internal("find components", err)
	}
	byID := make(map[primitive.ObjectID]*models.Component, len(found))
	for i := range found {
		byID[found[i].ID] = &found[i]
	}

	fields := map[string]string{}
	check := func(path string, refs []models.ComponentReference, o models.ComponentOverride) {
		var referenced bool
		for _, ref := range refs {
			if ref.Component == o.Component {
				referenced = true
				break
			}
		}
		c, ok := byID[o.Component]
		if !referenced || !ok {
			fields[path+".component"] = errNotReferred
			return
		}
		ids := c.Identities()
		for key := range o.Values {
			if _, ok := ids[key]; !ok {
				fields[path+".values."+key] = errUnknownValue
			}
		}
	}
	if sub.BotEngine != nil {
		check("botEngine", []models.ComponentReference{bot.BotEngine}, *sub.BotEngine)
	}
	for i, o := range sub.Services {
		check(fmt.Sprintf("services[%d]", i), bot.Services, o)
	}
	for i, o := range sub.Channels {
		check(fmt.Sprintf("channels[%d]", i), bot.Channels, o)
	}
	own := bot.PropertyIdentities()
	for key := range sub.Properties {
		if _, ok := own[key]; !ok {
			fields["properties."+key] = errUnknownValue
		}
	}
	if len(fields) > 0 {
		return apperr.Validation(fields)
	}
	return nil
}

func (s *Service) findBot(ctx context.Context, id primitive.ObjectID) (*models.Bot, error) {
	b, err := s.bots.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound(errBotNotFound)
	}
	if err != nil {
		return nil, apperr.Internal("find bot", err)
	}
	return b, nil
}

func (s *Service) user(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound(errNoUser)
	}
	if err != nil {
		return nil, apperr.Internal("find user", err)
	}
	return u, nil
}
