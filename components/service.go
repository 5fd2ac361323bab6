// Package components manages the reusable building blocks bots are
// assembled from.
package components

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"greenhouse/apperr"
	"greenhouse/models"
	"greenhouse/repository"
	"greenhouse/validation"
)

const (
	errNotFound  = "domain.component.validation.component_not_found"
	errForbidden = "domain.component.validation.forbidden_component"
	errInUse     = "domain.component.validation.component_in_use"
	errNoUser    = "domain.user.validation.user_not_found"
)

// MarketplaceTypes are listed when a marketplace search names no type.
// Services are browsed through their own listing.
var MarketplaceTypes = []string{models.ComponentBotEngine, models.ComponentChannel}

type Deps struct {
	Components repository.ComponentRepository
	Bots       repository.BotRepository
	Users      repository.UserRepository
	Validator  *validation.Validator
	Pictures   models.PictureURLs
	Log        *logrus.Logger
}

type Service struct {
	components repository.ComponentRepository
	bots       repository.BotRepository
	users      repository.UserRepository
	validate   *validation.Validator
	pictures   models.PictureURLs
	log        *logrus.Logger
	now        func() time.Time
}

func NewService(d Deps) *Service {
	return &Service{
		components: d.Components,
		bots:       d.Bots,
		users:      d.Users,
		validate:   d.Validator,
		pictures:   d.Pictures,
		log:        d.Log,
		now:        time.Now,
	}
}

// Create stores a new component owned by actor.
func (s *Service) Create(ctx context.Context, actor models.Actor, c *models.Component) (*models.Component, error) {
	owner, err := s.users.FindByID(ctx, actor.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound(errNoUser)
	}
	if err != nil {
		return nil, apperr.Internal("find user", err)
	}

	c.ID = primitive.NewObjectID()
	c.UserID = owner.ID
	c.AverageRating, c.ReviewsCount = 0, 0
	if err := s.prepare(c); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	if err := s.components.Create(ctx, c); err != nil {
		return nil, writeError("create component", err)
	}

	s.log.WithFields(logrus.Fields{"component_id": c.ID.Hex(), "key": c.Key, "user": owner.Username}).Info("component created")
	c.Owner = owner.Ref()
	c.PictureURL = s.pictures.Component(c.Picture)
	return c, nil
}

// Update replaces the editable fields of the component with id. Ratings,
// ownership and creation time are kept. The component type can only change
// while no bot references the component.
func (s *Service) Update(ctx context.Context, actor models.Actor, id primitive.ObjectID, in *models.Component) (*models.Component, error) {
	existing, err := s.FindOwned(ctx, id, actor.ID)
	if err != nil {
		return nil, err
	}
	if in.ComponentType != existing.ComponentType {
		n, err := s.bots.CountReferencing(ctx, id)
		if err != nil {
			return nil, apperr.Internal("count referencing bots", err)
		}
		if n > 0 {
			return nil, apperr.Conflict(errInUse)
		}
	}

	in.ID = existing.ID
	in.UserID = existing.UserID
	in.AverageRating = existing.AverageRating
	in.ReviewsCount = existing.ReviewsCount
	in.CreatedAt = existing.CreatedAt
	if err := s.prepare(in); err != nil {
		return nil, err
	}
	in.UpdatedAt = s.now().UTC()
	if err := s.components.Update(ctx, in); err != nil {
		return nil, writeError("update component", err)
	}

	s.log.WithField("component_id", id.Hex()).Info("component updated")
	in.Owner = existing.Owner
	in.PictureURL = s.pictures.Component(in.Picture)
	return in, nil
}

// Get returns the component with id and its owner.
func (s *Service) Get(ctx context.Context, id primitive.ObjectID) (*models.Component, error) {
	c, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	s.decorate(ctx, []*models.Component{c})
	return c, nil
}

// FindOwned returns the component with id when userID owns it.
func (s *Service) FindOwned(ctx context.Context, id, userID primitive.ObjectID) (*models.Component, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, apperr.Forbidden(errForbidden)
	}
	return c, nil
}

// Delete removes a component the actor owns. Components still referenced
// by a bot cannot be deleted.
func (s *Service) Delete(ctx context.Context, actor models.Actor, id primitive.ObjectID) error {
	if _, err := s.FindOwned(ctx, id, actor.ID); err != nil {
		return err
	}
	n, err := s.bots.CountReferencing(ctx, id)
	if err != nil {
		return apperr.Internal("count referencing bots", err)
	}
	if n > 0 {
		return apperr.Conflict(errInUse)
	}
	if err := s.components.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound(errNotFound)
		}
		return apperr.Internal("delete component", err)
	}
	s.log.WithField("component_id", id.Hex()).Info("component deleted")
	return nil
}

// PropertiesFor returns the component summary restricted to properties
// whose value comes from source. Only services expose headers and
// variables.
func (s *Service) PropertiesFor(ctx context.Context, id primitive.ObjectID, source models.ValueSource) (*models.ComponentProperties, error) {
	if !source.Valid() {
		return nil, apperr.Field("valueType", "validation.option")
	}
	c, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	out := &models.ComponentProperties{
		ID:             c.ID,
		Name:           c.Name,
		PictureURL:     s.pictures.Component(c.Picture),
		PricingModel:   c.PricingModel,
		PricePerUse:    c.PricePerUse,
		PricePerMonth:  c.PricePerMonth,
		Status:         c.Status,
		Properties:     []models.Property{},
		Headers:        []models.Property{},
		PredefinedVars: []models.Property{},
		MappedVars:     []models.Property{},
	}
	targets := map[models.Collection]*[]models.Property{
		models.CollectionProperties:     &out.Properties,
		models.CollectionHeaders:        &out.Headers,
		models.CollectionPredefinedVars: &out.PredefinedVars,
		models.CollectionMappedVars:     &out.MappedVars,
	}
	for _, name := range c.Collections() {
		for _, p := range c.Collection(name) {
			if p.ValueType == source {
				*targets[name] = append(*targets[name], p)
			}
		}
	}
	return out, nil
}

// Lookup returns the short form of every component in ids that exists.
func (s *Service) Lookup(ctx context.Context, ids []primitive.ObjectID) ([]models.ComponentLookup, error) {
	found, err := s.components.FindByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Internal("find components", err)
	}
	out := make([]models.ComponentLookup, 0, len(found))
	for _, c := range found {
		out = append(out, models.ComponentLookup{ID: c.ID, Name: c.Name, PictureURL: s.pictures.Component(c.Picture)})
	}
	return out, nil
}

// Marketplace searches all components, limited to MarketplaceTypes unless
// the filter names types.
func (s *Service) Marketplace(ctx context.Context, f repository.SearchFilter) (models.Page[models.Component], error) {
	if len(f.ComponentTypes) == 0 {
		f.ComponentTypes = MarketplaceTypes
	}
	return s.search(ctx, f)
}

// ByType searches the components of a single type.
func (s *Service) ByType(ctx context.Context, componentType string, f repository.SearchFilter) (models.Page[models.Component], error) {
	f.ComponentTypes = []string{componentType}
	return s.search(ctx, f)
}

// ByUser searches the components owned by username, of any type.
func (s *Service) ByUser(ctx context.Context, username string, f repository.SearchFilter) (models.Page[models.Component], error) {
	u, err := s.users.FindByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Page[models.Component]{}, apperr.NotFound(errNoUser)
	}
	if err != nil {
		return models.Page[models.Component]{}, apperr.Internal("find user", err)
	}
	f.Owner = u.ID
	return s.search(ctx, f)
}

func (s *Service) search(ctx context.Context, f repository.SearchFilter) (models.Page[models.Component], error) {
	f = f.Normalize()
	results, total, err := s.components.Search(ctx, f)
	if err != nil {
		return models.Page[models.Component]{}, apperr.Internal("search components", err)
	}
	ptrs := make([]*models.Component, len(results))
	for i := range results {
		ptrs[i] = &results[i]
	}
	s.decorate(ctx, ptrs)
	return models.NewPage(results, total, f.Page, f.PageSize), nil
}

// prepare normalizes and validates c. Property identities must be unique
// across all collections of the component.
func (s *Service) prepare(c *models.Component) error {
	c.Prepare()
	if err := s.validate.Struct(c); err != nil {
		return err
	}
	if path, ok := c.RepeatedIdentity(); ok {
		return apperr.Field(path, "validation.unique")
	}
	return nil
}

func (s *Service) find(ctx context.Context, id primitive.ObjectID) (*models.Component, error) {
	c, err := s.components.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound(errNotFound)
	}
	if err != nil {
		return nil, apperr.Internal("find component", err)
	}
	return c, nil
}

// decorate fills in owners and picture URLs. Owners missing from the user
// directory are left empty.
func (s *Service) decorate(ctx context.Context, list []*models.Component) {
	ids := make([]primitive.ObjectID, 0, len(list))
	for _, c := range list {
		ids = append(ids, c.UserID)
		c.PictureURL = s.pictures.Component(c.Picture)
	}
	if len(ids) == 0 {
		return
	}
	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		s.log.WithError(err).Warn("component owners not loaded")
		return
	}
	byID := make(map[primitive.ObjectID]*models.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}
	for _, c := range list {
		if u, ok := byID[c.UserID]; ok {
			c.Owner = u.Ref()
		}
	}
}

// writeError reports unique index violations against the field the user
// typed.
func writeError(op string, err error) error {
	var dup *repository.DuplicateKeyError
	if errors.As(err, &dup) && dup.Field != "" {
		return apperr.Field(dup.Field, "domain.component.validation.unique_"+dup.Field)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound(errNotFound)
	}
	return apperr.Internal(op, err)
}
