// Package bots manages bot definitions and keeps their runtime snapshots
// in step with every write.
package bots

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"greenhouse/apperr"
	"greenhouse/models"
	"greenhouse/repository"
	"greenhouse/validation"
)

const (
	errNotFound     = "domain.bot.validation.bot_not_found"
	errForbidden    = "domain.bot.validation.forbidden_bot"
	errNoUser       = "domain.user.validation.user_not_found"
	errNoComponent  = "domain.component.validation.component_not_found"
	errWrongType    = "domain.bot.validation.component_type"
	errUnknownValue = "domain.bot.validation.unknown_property"
)

// Projector rebuilds and removes the snapshots of a bot.
type Projector interface {
	ProjectEngine(ctx context.Context, bot *models.Bot) error
	ProjectBot(ctx context.Context, bot *models.Bot) error
	RemoveSubscribers(ctx context.Context, bot *models.Bot) error
	RemoveEngine(ctx context.Context, bot *models.Bot) error
}

// OwnerSubscriber subscribes a bot's owner to the bot.
type OwnerSubscriber interface {
	SubscribeOwner(ctx context.Context, bot *models.Bot) (*models.Subscription, error)
}

type Deps struct {
	Bots          repository.BotRepository
	Components    repository.ComponentRepository
	Subscriptions repository.SubscriptionRepository
	Users         repository.UserRepository
	Projector     Projector
	Owners        OwnerSubscriber
	Validator     *validation.Validator
	Pictures      models.PictureURLs
	Log           *logrus.Logger
}

type Service struct {
	bots          repository.BotRepository
	components    repository.ComponentRepository
	subscriptions repository.SubscriptionRepository
	users         repository.UserRepository
	projector     Projector
	owners        OwnerSubscriber
	validate      *validation.Validator
	pictures      models.PictureURLs
	log           *logrus.Logger
	now           func() time.Time
}

func NewService(d Deps) *Service {
	return &Service{
		bots:          d.Bots,
		components:    d.Components,
		subscriptions: d.Subscriptions,
		users:         d.Users,
		projector:     d.Projector,
		owners:        d.Owners,
		validate:      d.Validator,
		pictures:      d.Pictures,
		log:           d.Log,
		now:           time.Now,
	}
}

// Create stores a new bot owned by actor, projects its engine snapshot and
// subscribes the owner with the subscription type its pricing implies.
func (s *Service) Create(ctx context.Context, actor models.Actor, b *models.Bot) (*models.Bot, error) {
	owner, err := s.users.FindByID(ctx, actor.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound(errNoUser)
	}
	if err != nil {
		return nil, apperr.Internal("find user", err)
	}

	b.ID = primitive.NewObjectID()
	b.UserID = owner.ID
	b.AverageRating, b.ReviewsCount, b.SubscriptionsCount = 0, 0, 0
	if err := s.prepare(ctx, b); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	if err := s.bots.Create(ctx, b); err != nil {
		return nil, writeError("create bot", err)
	}

	log := s.log.WithFields(logrus.Fields{"bot_id": b.ID.Hex(), "bot": b.BotID})
	log.WithField("user", owner.Username).Info("bot created")

	if err := s.projector.ProjectEngine(ctx, b); err != nil {
		return nil, err
	}
	sub, err := s.owners.SubscribeOwner(ctx, b)
	if err != nil {
		return nil, err
	}
	log.WithField("subscription_type", sub.SubscriptionType).Debug("owner subscribed")

	b.Owner = owner.Ref()
	b.PictureURL = s.pictures.Bot(b.Picture)
	return b, nil
}

// Update replaces the editable fields of the bot with id and re-projects
// the engine snapshot and every subscriber snapshot.
func (s *Service) Update(ctx context.Context, actor models.Actor, id primitive.ObjectID, in *models.Bot) (*models.Bot, error) {
	existing, err := s.FindOwned(ctx, id, actor.ID)
	if err != nil {
		return nil, err
	}

	in.ID = existing.ID
	in.UserID = existing.UserID
	in.AverageRating = existing.AverageRating
	in.ReviewsCount = existing.ReviewsCount
	in.SubscriptionsCount = existing.SubscriptionsCount
	in.CreatedAt = existing.CreatedAt
	if err := s.prepare(ctx, in); err != nil {
		return nil, err
	}
	in.UpdatedAt = s.now().UTC()
	if err := s.bots.Update(ctx, in); err != nil {
		return nil, writeError("update bot", err)
	}
	s.log.WithFields(logrus.Fields{"bot_id": id.Hex(), "bot": in.BotID}).Info("bot updated")

	if err := s.projector.ProjectBot(ctx, in); err != nil {
		return nil, err
	}
	in.Owner = existing.Owner
	in.PictureURL = s.pictures.Bot(in.Picture)
	return in, nil
}

// Get returns the bot with id and its owner.
func (s *Service) Get(ctx context.Context, id primitive.ObjectID) (*models.Bot, error) {
	b, err := s.bots.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound(errNotFound)
	}
	if err != nil {
		return nil, apperr.Internal("find bot", err)
	}
	s.decorate(ctx, []*models.Bot{b})
	return b, nil
}

// FindOwned returns the bot with id when userID owns it.
func (s *Service) FindOwned(ctx context.Context, id, userID primitive.ObjectID) (*models.Bot, error) {
	b, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.UserID != userID {
		return nil, apperr.Forbidden(errForbidden)
	}
	return b, nil
}

// Delete removes a bot the actor owns together with its subscriptions and
// snapshots. Dependents go first and the bot last, so a failed step leaves
// the bot in place and the whole delete can be retried.
func (s *Service) Delete(ctx context.Context, actor models.Actor, id primitive.ObjectID) error {
	b, err := s.FindOwned(ctx, id, actor.ID)
	if err != nil {
		return err
	}
	log := s.log.WithFields(logrus.Fields{"bot_id": id.Hex(), "bot": b.BotID})

	if err := s.projector.RemoveSubscribers(ctx, b); err != nil {
		return err
	}
	n, err := s.subscriptions.DeleteByBot(ctx, b.ID)
	if err != nil {
		return apperr.Internal("delete subscriptions", err)
	}
	if err := s.projector.RemoveEngine(ctx, b); err != nil {
		return err
	}
	if err := s.bots.Delete(ctx, b.ID); err != nil {
		log.WithError(err).Warn("bot delete failed after its dependents were removed")
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound(errNotFound)
		}
		return apperr.Internal("delete bot", err)
	}
	log.WithField("subscriptions", n).Info("bot deleted")
	return nil
}

// Marketplace searches all bots.
func (s *Service) Marketplace(ctx context.Context, f repository.SearchFilter) (models.Page[models.Bot], error) {
	return s.search(ctx, f)
}

// ByUser searches the bots owned by username.
func (s *Service) ByUser(ctx context.Context, username string, f repository.SearchFilter) (models.Page[models.Bot], error) {
	u, err := s.users.FindByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Page[models.Bot]{}, apperr.NotFound(errNoUser)
	}
	if err != nil {
		return models.Page[models.Bot]{}, apperr.Internal("find user", err)
	}
	f.Owner = u.ID
	return s.search(ctx, f)
}

func (s *Service) search(ctx context.Context, f repository.SearchFilter) (models.Page[models.Bot], error) {
	f = f.Normalize()
	results, total, err := s.bots.Search(ctx, f)
	if err != nil {
		return models.Page[models.Bot]{}, apperr.Internal("search bots", err)
	}
	ptrs := make([]*models.Bot, len(results))
	for i := range results {
		ptrs[i] = &results[i]
	}
	s.decorate(ctx, ptrs)
	return models.NewPage(results, total, f.Page, f.PageSize), nil
}

// prepare normalizes and validates b, including its component references.
func (s *Service) prepare(ctx context.Context, b *models.Bot) error {
	b.Prepare()
	if err := s.validate.Struct(b); err != nil {
		return err
	}
	if path, ok := b.RepeatedIdentity(); ok {
		return apperr.Field(path, "validation.unique")
	}
	return s.checkReferences(ctx, b)
}

// checkReferences verifies that every referenced component exists, has the
// type its slot requires and declares every property the override values
// name.
func (s *Service) checkReferences(ctx context.Context, b *models.Bot) error {
	found, err := s.components.FindByIDs(ctx, b.ComponentIDs())
	if err != nil {
		return apperr.Internal("find components", err)
	}
	byID := make(map[primitive.ObjectID]*models.Component, len(found))
	for i := range found {
		byID[found[i].ID] = &found[i]
	}

	fields := map[string]string{}
	check := func(path, wantType string, ref models.ComponentReference) {
		c, ok := byID[ref.Component]
		if !ok {
			fields[path+".component"] = errNoComponent
			return
		}
		if c.ComponentType != wantType {
			fields[path+".component"] = errWrongType
			return
		}
		ids := c.Identities()
		for key := range ref.Values {
			if _, ok := ids[key]; !ok {
				fields[path+".values."+key] = errUnknownValue
			}
		}
	}
	check("botEngine", models.ComponentBotEngine, b.BotEngine)
	for i, ref := range b.Services {
		check(fmt.Sprintf("services[%d]", i), models.ComponentService, ref)
	}
	for i, ref := range b.Channels {
		check(fmt.Sprintf("channels[%d]", i), models.ComponentChannel, ref)
	}
	if len(fields) > 0 {
		return apperr.Validation(fields)
	}
	return nil
}

func (s *Service) decorate(ctx context.Context, list []*models.Bot) {
	ids := make([]primitive.ObjectID, 0, len(list))
	for _, b := range list {
		ids = append(ids, b.UserID)
		b.PictureURL = s.pictures.Bot(b.Picture)
	}
	if len(ids) == 0 {
		return
	}
	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		s.log.WithError(err).Warn("bot owners not loaded")
		return
	}
	byID := make(map[primitive.ObjectID]*models.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}
	for _, b := range list {
		if u, ok := byID[b.UserID]; ok {
			b.Owner = u.Ref()
		}
	}
}

// writeError reports unique index violations against the field the user
// typed.
func writeError(op string, err error) error {
	var dup *repository.DuplicateKeyError
	if errors.As(err, &dup) && dup.Field != "" {
		return apperr.Field(dup.Field, "domain.bot.validation.unique_"+dup.Field)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound(errNotFound)
	}
	return apperr.Internal(op, err)
}
