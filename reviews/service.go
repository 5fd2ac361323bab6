// Package reviews stores user ratings of bots and components and keeps the
// aggregate rating on each rated entity current.
package reviews

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"greenhouse/apperr"
	"greenhouse/models"
	"greenhouse/repository"
	"greenhouse/validation"
)

const (
	errInstanceNotFound = "domain.review.validation.instance_not_found"
	errNotFound         = "domain.review.validation.review_not_found"
	errForbidden        = "domain.review.validation.forbidden_review"
	errNoUser           = "domain.user.validation.user_not_found"
)

// Target is an entity reviews can be attached to.
type Target interface {
	Exists(ctx context.Context, id primitive.ObjectID) error
	UpdateRating(ctx context.Context, id primitive.ObjectID, r models.Rating) error
}

type ratedRepository[T any] interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*T, error)
	UpdateRating(ctx context.Context, id primitive.ObjectID, r models.Rating) error
}

type repoTarget[T any] struct {
	repo ratedRepository[T]
}

func (t repoTarget[T]) Exists(ctx context.Context, id primitive.ObjectID) error {
	_, err := t.repo.FindByID(ctx, id)
	return err
}

func (t repoTarget[T]) UpdateRating(ctx context.Context, id primitive.ObjectID, r models.Rating) error {
	return t.repo.UpdateRating(ctx, id, r)
}

func ComponentTarget(repo repository.ComponentRepository) Target {
	return repoTarget[models.Component]{repo: repo}
}

func BotTarget(repo repository.BotRepository) Target {
	return repoTarget[models.Bot]{repo: repo}
}

// Result is a saved review together with the target's new aggregate.
type Result struct {
	Review *models.Review `json:"review"`
	models.Rating
}

type Deps struct {
	Reviews       repository.ReviewRepository
	Users         repository.UserRepository
	Targets       map[models.InstanceType]Target
	Validator     *validation.Validator
	AdminUsername string
	Log           *logrus.Logger
}

type Service struct {
	reviews  repository.ReviewRepository
	users    repository.UserRepository
	targets  map[models.InstanceType]Target
	validate *validation.Validator
	admin    string
	log      *logrus.Logger
	now      func() time.Time
}

func NewService(d Deps) *Service {
	return &Service{
		reviews:  d.Reviews,
		users:    d.Users,
		targets:  d.Targets,
		validate: d.Validator,
		admin:    strings.TrimSpace(d.AdminUsername),
		log:      d.Log,
		now:      time.Now,
	}
}

// Save creates or replaces the actor's review of the target and recomputes
// the target's rating.
func (s *Service) Save(ctx context.Context, actor models.Actor, instanceType string, instanceID primitive.ObjectID, in *models.Review) (*Result, error) {
	t, target, err := s.findInstance(ctx, instanceType, instanceID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	in.ID = primitive.NewObjectID()
	in.InstanceType = t
	in.InstanceID = instanceID
	in.UserID = actor.ID
	in.Comments = strings.TrimSpace(in.Comments)
	in.CreatedAt, in.UpdatedAt = now, now
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	if err := s.reviews.Upsert(ctx, in); err != nil {
		return nil, apperr.Internal("upsert review", err)
	}
	saved, err := s.reviews.Find(ctx, t, instanceID, actor.ID)
	if err != nil {
		return nil, apperr.Internal("find review", err)
	}

	rating, err := s.updateRating(ctx, t, target, instanceID)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"instance_type": t,
		"instance_id":   instanceID.Hex(),
		"user_id":       actor.ID.Hex(),
		"rating":        saved.Rating,
	}).Info("review saved")
	return &Result{Review: saved, Rating: rating}, nil
}

// Find returns the actor's own review of the target.
func (s *Service) Find(ctx context.Context, actor models.Actor, instanceType string, instanceID primitive.ObjectID) (*models.Review, error) {
	t, _, err := s.findInstance(ctx, instanceType, instanceID)
	if err != nil {
		return nil, err
	}
	rv, err := s.reviews.Find(ctx, t, instanceID, actor.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound(errNotFound)
	}
	if err != nil {
		return nil, apperr.Internal("find review", err)
	}
	return rv, nil
}

// Delete removes userID's review of the target. Only the administrator may
// delete reviews.
func (s *Service) Delete(ctx context.Context, actor models.Actor, instanceType string, instanceID, userID primitive.ObjectID) (models.Rating, error) {
	admin, err := s.isAdmin(ctx, actor)
	if err != nil {
		return models.Rating{}, err
	}
	if !admin {
		return models.Rating{}, apperr.Forbidden(errForbidden)
	}
	t, target, err := s.findInstance(ctx, instanceType, instanceID)
	if err != nil {
		return models.Rating{}, err
	}

	err = s.reviews.Delete(ctx, t, instanceID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Rating{}, apperr.NotFound(errNotFound)
	}
	if err != nil {
		return models.Rating{}, apperr.Internal("delete review", err)
	}
	rating, err := s.updateRating(ctx, t, target, instanceID)
	if err != nil {
		return models.Rating{}, err
	}
	s.log.WithFields(logrus.Fields{
		"instance_type": t,
		"instance_id":   instanceID.Hex(),
		"user_id":       userID.Hex(),
	}).Info("review deleted")
	return rating, nil
}

// List returns a page of the target's reviews, most recently updated first.
func (s *Service) List(ctx context.Context, instanceType string, instanceID primitive.ObjectID, page, pageSize int) (models.Page[models.Review], error) {
	t, _, err := s.findInstance(ctx, instanceType, instanceID)
	if err != nil {
		return models.Page[models.Review]{}, err
	}
	f := repository.SearchFilter{Page: page, PageSize: pageSize}.Normalize()
	list, total, err := s.reviews.List(ctx, t, instanceID, f.Page, f.PageSize)
	if err != nil {
		return models.Page[models.Review]{}, apperr.Internal("list reviews", err)
	}
	s.decorate(ctx, list)
	return models.NewPage(list, total, f.Page, f.PageSize), nil
}

func (s *Service) findInstance(ctx context.Context, instanceType string, id primitive.ObjectID) (models.InstanceType, Target, error) {
	t := models.InstanceType(instanceType)
	target, ok := s.targets[t]
	if !ok {
		return "", nil, apperr.InvalidInstanceType(instanceType)
	}
	err := target.Exists(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return "", nil, apperr.NotFound(errInstanceNotFound)
	}
	if err != nil {
		return "", nil, apperr.Internal("find "+instanceType, err)
	}
	return t, target, nil
}

func (s *Service) updateRating(ctx context.Context, t models.InstanceType, target Target, id primitive.ObjectID) (models.Rating, error) {
	rating, err := s.reviews.Aggregate(ctx, t, id)
	if err != nil {
		return models.Rating{}, apperr.Internal("aggregate reviews", err)
	}
	if err := target.UpdateRating(ctx, id, rating); err != nil {
		return models.Rating{}, apperr.Internal("update rating", err)
	}
	return rating, nil
}

// isAdmin compares the actor's username with the configured administrator,
// ignoring case. No one is admin when none is configured.
func (s *Service) isAdmin(ctx context.Context, actor models.Actor) (bool, error) {
	if s.admin == "" {
		return false, nil
	}
	username := actor.Username
	if username == "" {
		u, err := s.users.FindByID(ctx, actor.ID)
		if errors.Is(err, repository.ErrNotFound) {
			return false, apperr.NotFound(errNoUser)
		}
		if err != nil {
			return false, apperr.Internal("find user", err)
		}
		username = u.Username
	}
	return strings.EqualFold(username, s.admin), nil
}

func (s *Service) decorate(ctx context.Context, list []models.Review) {
	if len(list) == 0 {
		return
	}
	ids := make([]primitive.ObjectID, 0, len(list))
	for _, rv := range list {
		ids = append(ids, rv.UserID)
	}
	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		s.log.WithError(err).Warn("review authors not loaded")
		return
	}
	byID := make(map[primitive.ObjectID]*models.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}
	for i := range list {
		if u, ok := byID[list[i].UserID]; ok {
			list[i].Owner = u.Ref()
		}
	}
}
