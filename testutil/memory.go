// Package testutil provides in-memory repositories and fixtures for
// service tests.
package testutil

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"greenhouse/models"
	"greenhouse/repository"
)

// clone deep-copies v through its BSON encoding so stored values never
// alias what callers hold.
func clone[T any](v *T) *T {
	data, err := bson.Marshal(v)
	if err != nil {
		panic(err)
	}
	var out T
	if err := bson.Unmarshal(data, &out); err != nil {
		panic(err)
	}
	return &out
}

// Store bundles one in-memory instance of every repository.
type Store struct {
	Components    *Components
	Bots          *Bots
	Subscriptions *Subscriptions
	Snapshots     *Snapshots
	Reviews       *Reviews
	Users         *Users
}

func NewStore() *Store {
	return &Store{
		Components:    &Components{docs: map[primitive.ObjectID]*models.Component{}},
		Bots:          &Bots{docs: map[primitive.ObjectID]*models.Bot{}},
		Subscriptions: &Subscriptions{docs: map[[2]primitive.ObjectID]*models.Subscription{}},
		Snapshots: &Snapshots{
			engines:     map[primitive.ObjectID]*models.EngineSnapshot{},
			subscribers: map[subscriberKey]*models.SubscriberSnapshot{},
		},
		Reviews: &Reviews{docs: map[reviewKey]*models.Review{}},
		Users:   &Users{docs: map[primitive.ObjectID]*models.User{}},
	}
}

// Components implements repository.ComponentRepository.
type Components struct {
	mu   sync.Mutex
	docs map[primitive.ObjectID]*models.Component
}

func (r *Components) unique(c *models.Component) error {
	for id, other := range r.docs {
		if id == c.ID {
			continue
		}
		if other.NameKey == c.NameKey {
			return &repository.DuplicateKeyError{Field: "name", Err: errors.New("dup nameKey")}
		}
		if other.Key == c.Key {
			return &repository.DuplicateKeyError{Field: "key", Err: errors.New("dup key")}
		}
	}
	return nil
}

func (r *Components) Create(_ context.Context, c *models.Component) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.unique(c); err != nil {
		return err
	}
	r.docs[c.ID] = clone(c)
	return nil
}

func (r *Components) Update(_ context.Context, c *models.Component) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[c.ID]; !ok {
		return repository.ErrNotFound
	}
	if err := r.unique(c); err != nil {
		return err
	}
	r.docs[c.ID] = clone(c)
	return nil
}

func (r *Components) Delete(_ context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.docs, id)
	return nil
}

func (r *Components) FindByID(_ context.Context, id primitive.ObjectID) (*models.Component, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(c), nil
}

func (r *Components) FindByIDs(_ context.Context, ids []primitive.ObjectID) ([]models.Component, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Component{}
	for _, id := range ids {
		if c, ok := r.docs[id]; ok {
			out = append(out, *clone(c))
		}
	}
	return out, nil
}

func (r *Components) Search(_ context.Context, f repository.SearchFilter) ([]models.Component, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f = f.Normalize()
	var all []models.Component
	for _, c := range r.docs {
		if !matches(f, c.UserID, c.Name, c.Description, c.Status, c.Category) {
			continue
		}
		if len(f.ComponentTypes) > 0 && !contains(f.ComponentTypes, c.ComponentType) {
			continue
		}
		all = append(all, *clone(c))
	}
	sortPage(all, f, func(c models.Component) (string, int64, primitive.ObjectID) {
		return c.Name, c.UpdatedAt.UnixNano(), c.ID
	})
	res, total := page(all, f)
	return res, total, nil
}

func (r *Components) UpdateRating(_ context.Context, id primitive.ObjectID, rating models.Rating) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.docs[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.AverageRating, c.ReviewsCount = rating.Average, rating.Count
	return nil
}

// Bots implements repository.BotRepository.
type Bots struct {
	mu   sync.Mutex
	docs map[primitive.ObjectID]*models.Bot

	// FailDelete makes Delete fail once with this error.
	FailDelete error
}

func (r *Bots) unique(b *models.Bot) error {
	for id, other := range r.docs {
		if id == b.ID {
			continue
		}
		if other.NameKey == b.NameKey {
			return &repository.DuplicateKeyError{Field: "name", Err: errors.New("dup nameKey")}
		}
		if other.BotID == b.BotID {
			return &repository.DuplicateKeyError{Field: "botId", Err: errors.New("dup botId")}
		}
	}
	return nil
}

func (r *Bots) Create(_ context.Context, b *models.Bot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.unique(b); err != nil {
		return err
	}
	r.docs[b.ID] = clone(b)
	return nil
}

func (r *Bots) Update(_ context.Context, b *models.Bot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[b.ID]; !ok {
		return repository.ErrNotFound
	}
	if err := r.unique(b); err != nil {
		return err
	}
	r.docs[b.ID] = clone(b)
	return nil
}

func (r *Bots) Delete(_ context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.FailDelete; err != nil {
		r.FailDelete = nil
		return err
	}
	if _, ok := r.docs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.docs, id)
	return nil
}

func (r *Bots) FindByID(_ context.Context, id primitive.ObjectID) (*models.Bot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(b), nil
}

func (r *Bots) Search(_ context.Context, f repository.SearchFilter) ([]models.Bot, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f = f.Normalize()
	var all []models.Bot
	for _, b := range r.docs {
		if matches(f, b.UserID, b.Name, b.Description, b.Status, b.Category) {
			all = append(all, *clone(b))
		}
	}
	sortPage(all, f, func(b models.Bot) (string, int64, primitive.ObjectID) {
		return b.Name, b.UpdatedAt.UnixNano(), b.ID
	})
	res, total := page(all, f)
	return res, total, nil
}

func (r *Bots) UpdateRating(_ context.Context, id primitive.ObjectID, rating models.Rating) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.docs[id]
	if !ok {
		return repository.ErrNotFound
	}
	b.AverageRating, b.ReviewsCount = rating.Average, rating.Count
	return nil
}

func (r *Bots) SetSubscriptionsCount(_ context.Context, id primitive.ObjectID, n int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.docs[id]
	if !ok {
		return repository.ErrNotFound
	}
	b.SubscriptionsCount = n
	return nil
}

func (r *Bots) CountReferencing(_ context.Context, componentID primitive.ObjectID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, b := range r.docs {
		if contains(b.ComponentIDs(), componentID) {
			n++
		}
	}
	return n, nil
}

// Subscriptions implements repository.SubscriptionRepository.
type Subscriptions struct {
	mu   sync.Mutex
	docs map[[2]primitive.ObjectID]*models.Subscription
}

func (r *Subscriptions) Get(_ context.Context, botID, userID primitive.ObjectID) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.docs[[2]primitive.ObjectID{botID, userID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(s), nil
}

func (r *Subscriptions) Upsert(_ context.Context, s *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := [2]primitive.ObjectID{s.BotID, s.UserID}
	next := clone(s)
	if prev, ok := r.docs[key]; ok {
		next.ID, next.Token, next.CreatedAt = prev.ID, prev.Token, prev.CreatedAt
	}
	r.docs[key] = next
	return nil
}

func (r *Subscriptions) Delete(_ context.Context, botID, userID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := [2]primitive.ObjectID{botID, userID}
	if _, ok := r.docs[key]; !ok {
		return repository.ErrNotFound
	}
	delete(r.docs, key)
	return nil
}

func (r *Subscriptions) ListByBot(_ context.Context, botID primitive.ObjectID) ([]models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.Subscription{}
	for key, s := range r.docs {
		if key[0] == botID {
			out = append(out, *clone(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Hex() < out[j].ID.Hex() })
	return out, nil
}

func (r *Subscriptions) DeleteByBot(_ context.Context, botID primitive.ObjectID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for key := range r.docs {
		if key[0] == botID {
			delete(r.docs, key)
			n++
		}
	}
	return n, nil
}

func (r *Subscriptions) CountByBot(_ context.Context, botID primitive.ObjectID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for key := range r.docs {
		if key[0] == botID {
			n++
		}
	}
	return n, nil
}

type subscriberKey struct {
	bot  primitive.ObjectID
	name string
}

// Snapshots implements repository.SnapshotRepository.
type Snapshots struct {
	mu          sync.Mutex
	engines     map[primitive.ObjectID]*models.EngineSnapshot
	subscribers map[subscriberKey]*models.SubscriberSnapshot
}

func (r *Snapshots) ReplaceEngine(_ context.Context, s *models.EngineSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[s.BotID] = clone(s)
	return nil
}

func (r *Snapshots) GetEngine(_ context.Context, botID primitive.ObjectID) (*models.EngineSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.engines[botID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(s), nil
}

func (r *Snapshots) DeleteEngine(_ context.Context, botID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.engines, botID)
	return nil
}

func (r *Snapshots) ReplaceSubscriber(_ context.Context, s *models.SubscriberSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers[subscriberKey{s.BotID, s.PublisherName}] = clone(s)
	return nil
}

func (r *Snapshots) GetSubscriber(_ context.Context, botID primitive.ObjectID, publisherName string) (*models.SubscriberSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subscribers[subscriberKey{botID, publisherName}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(s), nil
}

func (r *Snapshots) DeleteSubscriber(_ context.Context, botID primitive.ObjectID, publisherName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subscribers, subscriberKey{botID, publisherName})
	return nil
}

func (r *Snapshots) DeleteSubscribersByBot(_ context.Context, botID primitive.ObjectID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for key := range r.subscribers {
		if key.bot == botID {
			delete(r.subscribers, key)
			n++
		}
	}
	return n, nil
}

// SubscriberCount returns the number of stored subscriber snapshots.
func (r *Snapshots) SubscriberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subscribers)
}

type reviewKey struct {
	t        models.InstanceType
	instance primitive.ObjectID
	user     primitive.ObjectID
}

// Reviews implements repository.ReviewRepository.
type Reviews struct {
	mu   sync.Mutex
	docs map[reviewKey]*models.Review
}

func (r *Reviews) Upsert(_ context.Context, rv *models.Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := reviewKey{rv.InstanceType, rv.InstanceID, rv.UserID}
	next := clone(rv)
	if prev, ok := r.docs[key]; ok {
		next.ID, next.CreatedAt = prev.ID, prev.CreatedAt
	}
	r.docs[key] = next
	return nil
}

func (r *Reviews) Find(_ context.Context, t models.InstanceType, instanceID, userID primitive.ObjectID) (*models.Review, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rv, ok := r.docs[reviewKey{t, instanceID, userID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clone(rv), nil
}

func (r *Reviews) Delete(_ context.Context, t models.InstanceType, instanceID, userID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := reviewKey{t, instanceID, userID}
	if _, ok := r.docs[key]; !ok {
		return repository.ErrNotFound
	}
	delete(r.docs, key)
	return nil
}

func (r *Reviews) Aggregate(_ context.Context, t models.InstanceType, instanceID primitive.ObjectID) (models.Rating, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out models.Rating
	sum := 0
	for key, rv := range r.docs {
		if key.t == t && key.instance == instanceID {
			out.Count++
			sum += rv.Rating
		}
	}
	if out.Count > 0 {
		out.Average = float64(sum) / float64(out.Count)
	}
	return out, nil
}

func (r *Reviews) List(_ context.Context, t models.InstanceType, instanceID primitive.ObjectID, pg, pageSize int) ([]models.Review, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := repository.SearchFilter{Page: pg, PageSize: pageSize}.Normalize()
	var all []models.Review
	for key, rv := range r.docs {
		if key.t == t && key.instance == instanceID {
			all = append(all, *clone(rv))
		}
	}
	sortPage(all, f, func(rv models.Review) (string, int64, primitive.ObjectID) {
		return "", rv.UpdatedAt.UnixNano(), rv.ID
	})
	res, total := page(all, f)
	return res, total, nil
}

// Users implements repository.UserRepository.
type Users struct {
	mu   sync.Mutex
	docs map[primitive.ObjectID]*models.User
}

// Add stores a user and returns it.
func (r *Users) Add(username string) models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := models.User{ID: primitive.NewObjectID(), Username: username, AccountStatus: "active"}
	r.docs[u.ID] = &u
	return u
}

func (r *Users) FindByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *Users) FindByUsername(_ context.Context, username string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.docs {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *Users) FindByIDs(_ context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []models.User{}
	for _, id := range ids {
		if u, ok := r.docs[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func matches(f repository.SearchFilter, owner primitive.ObjectID, name, description, status, category string) bool {
	if !f.Owner.IsZero() && owner != f.Owner {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(name), q) && !strings.Contains(strings.ToLower(description), q) {
			return false
		}
	}
	if f.Status != "" && status != f.Status {
		return false
	}
	if f.Category != "" && category != f.Category {
		return false
	}
	return true
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func sortPage[T any](items []T, f repository.SearchFilter, keys func(T) (string, int64, primitive.ObjectID)) {
	sort.Slice(items, func(i, j int) bool {
		ni, ti, idi := keys(items[i])
		nj, tj, idj := keys(items[j])
		less := idi.Hex() < idj.Hex()
		switch {
		case f.SortBy == "name" && ni != nj:
			less = ni < nj
		case f.SortBy != "name" && ti != tj:
			less = ti < tj
		}
		if f.SortType == "desc" {
			return !less
		}
		return less
	})
}

func page[T any](items []T, f repository.SearchFilter) ([]T, int64) {
	total := int64(len(items))
	start := (f.Page - 1) * f.PageSize
	if start >= len(items) {
		return []T{}, total
	}
	end := start + f.PageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], total
}

// Remove deletes a user, leaving any documents that reference it dangling.
func (r *Users) Remove(id primitive.ObjectID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, id)
}
