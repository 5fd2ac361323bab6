package testutil

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"greenhouse/models"
)

// Publisher records published snapshot events. Err, when set, is returned
// from every Publish after the event is recorded.
type Publisher struct {
	mu     sync.Mutex
	events []models.SnapshotEvent
	Err    error
}

func (p *Publisher) Publish(_ context.Context, ev models.SnapshotEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.Err
}

// Events returns a copy of the recorded events in publish order.
func (p *Publisher) Events() []models.SnapshotEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.SnapshotEvent(nil), p.events...)
}

// Cache is an in-memory snapshot cache. Err, when set, fails every call.
type Cache struct {
	mu          sync.Mutex
	engines     map[primitive.ObjectID]*models.EngineSnapshot
	subscribers map[subscriberKey]*models.SubscriberSnapshot
	Err         error
}

func NewCache() *Cache {
	return &Cache{
		engines:     map[primitive.ObjectID]*models.EngineSnapshot{},
		subscribers: map[subscriberKey]*models.SubscriberSnapshot{},
	}
}

func (c *Cache) Engine(_ context.Context, botID primitive.ObjectID) (*models.EngineSnapshot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, false, c.Err
	}
	s, ok := c.engines[botID]
	if !ok {
		return nil, false, nil
	}
	return clone(s), true, nil
}

func (c *Cache) StoreEngine(_ context.Context, s *models.EngineSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.engines[s.BotID] = clone(s)
	return nil
}

func (c *Cache) Subscriber(_ context.Context, botID primitive.ObjectID, publisherName string) (*models.SubscriberSnapshot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, false, c.Err
	}
	s, ok := c.subscribers[subscriberKey{botID, publisherName}]
	if !ok {
		return nil, false, nil
	}
	return clone(s), true, nil
}

func (c *Cache) StoreSubscriber(_ context.Context, s *models.SubscriberSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.subscribers[subscriberKey{s.BotID, s.PublisherName}] = clone(s)
	return nil
}

func (c *Cache) InvalidateEngine(_ context.Context, botID primitive.ObjectID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	delete(c.engines, botID)
	return nil
}

func (c *Cache) InvalidateSubscriber(_ context.Context, botID primitive.ObjectID, publisherName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	delete(c.subscribers, subscriberKey{botID, publisherName})
	return nil
}

func (c *Cache) InvalidateBot(_ context.Context, botID primitive.ObjectID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	delete(c.engines, botID)
	for key := range c.subscribers {
		if key.bot == botID {
			delete(c.subscribers, key)
		}
	}
	return nil
}

// Len returns the number of cached snapshots.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.engines) + len(c.subscribers)
}
