package testutil

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"greenhouse/models"
)

// Prop builds a saved property with a fresh identity.
func Prop(name string, source models.ValueSource, value string) models.Property {
	return models.Property{
		ID:        primitive.NewObjectID(),
		Name:      name,
		ValueType: source,
		InputType: "text",
		Required:  "yes",
		Value:     value,
	}
}

// Component builds a valid, free, enabled component of type typ.
func Component(owner primitive.ObjectID, typ, key string) *models.Component {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &models.Component{
		ComponentType: typ,
		Category:      "general",
		Name:          "Component " + key,
		NameKey:       models.NameKey("Component " + key),
		Description:   "description of " + key,
		Features:      "features",
		License:       "MIT",
		Key:           key,
		FunctionName:  key,
		URL:           "https://example.com/" + key,
		HTTPMethod:    "GET",
		Timeout:       models.DefaultTimeout,
		PricingModel:  models.PricingFree,
		Status:        models.StatusEnabled,
		UserID:        owner,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Bot builds a valid, free, enabled bot on the given engine.
func Bot(owner, engine primitive.ObjectID, botID string) *models.Bot {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &models.Bot{
		BotID:        botID,
		Category:     "general",
		Name:         "Bot " + botID,
		NameKey:      models.NameKey("Bot " + botID),
		Description:  "description of " + botID,
		Features:     "features",
		License:      "MIT",
		PricingModel: models.PricingFree,
		Status:       models.StatusEnabled,
		UserID:       owner,
		BotEngine: models.ComponentReference{
			ID:               primitive.NewObjectID(),
			Component:        engine,
			SubscriptionType: models.SubscriptionFree,
			Values:           models.Values{},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Ref builds a reference to component with the given developer values.
func Ref(component primitive.ObjectID, values models.Values) models.ComponentReference {
	if values == nil {
		values = models.Values{}
	}
	return models.ComponentReference{
		ID:               primitive.NewObjectID(),
		Component:        component,
		SubscriptionType: models.SubscriptionFree,
		Values:           values,
	}
}

// SeedComponent assigns an id to c when it has none and stores it.
func (s *Store) SeedComponent(c *models.Component) *models.Component {
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	if err := s.Components.Create(context.Background(), c); err != nil {
		panic(err)
	}
	return c
}

// SeedBot assigns an id to b when it has none and stores it.
func (s *Store) SeedBot(b *models.Bot) *models.Bot {
	if b.ID.IsZero() {
		b.ID = primitive.NewObjectID()
	}
	if err := s.Bots.Create(context.Background(), b); err != nil {
		panic(err)
	}
	return b
}

// SeedSubscription assigns an id to sub when it has none and stores it.
func (s *Store) SeedSubscription(sub *models.Subscription) *models.Subscription {
	if sub.ID.IsZero() {
		sub.ID = primitive.NewObjectID()
	}
	if err := s.Subscriptions.Upsert(context.Background(), sub); err != nil {
		panic(err)
	}
	return sub
}
