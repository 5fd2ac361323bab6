package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ComponentReference binds a component into a bot together with the
// developer-tier override values and how the bot owner pays for it.
type ComponentReference struct {
	ID               primitive.ObjectID `json:"_id" bson:"_id"`
	Component        primitive.ObjectID `json:"component" bson:"component" validate:"required"`
	SubscriptionType SubscriptionType   `json:"subscriptionType" bson:"subscriptionType" validate:"required,oneof=free month use"`
	Values           Values             `json:"values" bson:"values"`
}

// ComponentOverride carries a subscriber's override values for one of the
// components the subscribed bot references.
type ComponentOverride struct {
	ID        primitive.ObjectID `json:"_id" bson:"_id"`
	Component primitive.ObjectID `json:"component" bson:"component" validate:"required"`
	Values    Values             `json:"values" bson:"values"`
}

// Bot is a published marketplace entity: one bot engine plus any number of
// services and channels.
type Bot struct {
	ID                 primitive.ObjectID `json:"_id" bson:"_id"`
	BotID              string             `json:"botId" bson:"botId" validate:"required,identifier"`
	Category           string             `json:"category" bson:"category" validate:"required,category"`
	Name               string             `json:"name" bson:"name" validate:"required"`
	NameKey            string             `json:"-" bson:"nameKey"`
	Description        string             `json:"description" bson:"description" validate:"required"`
	Features           string             `json:"features" bson:"features" validate:"required"`
	License            string             `json:"license" bson:"license" validate:"required"`
	PricingModel       string             `json:"pricingModel" bson:"pricingModel" validate:"required,oneof=free pay_per_use pay_per_month pay_per_use_or_month"`
	PricePerUse        float64            `json:"pricePerUse" bson:"pricePerUse" validate:"gte=0,lte=9999"`
	PricePerMonth      float64            `json:"pricePerMonth" bson:"pricePerMonth" validate:"gte=0,lte=9999"`
	Status             string             `json:"status" bson:"status" validate:"required,oneof=enabled disabled"`
	Picture            string             `json:"picture" bson:"picture"`
	AverageRating      float64            `json:"averageRating" bson:"averageRating"`
	ReviewsCount       int64              `json:"reviewsCount" bson:"reviewsCount"`
	SubscriptionsCount int64              `json:"subscriptionsCount" bson:"subscriptionsCount"`
	UserID             primitive.ObjectID `json:"userId" bson:"user" validate:"required"`

	Properties []Property           `json:"properties" bson:"properties" validate:"dive"`
	BotEngine  ComponentReference   `json:"botEngine" bson:"botEngine"`
	Services   []ComponentReference `json:"services" bson:"services" validate:"dive"`
	Channels   []ComponentReference `json:"channels" bson:"channels" validate:"dive"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`

	Owner      *UserRef `json:"user,omitempty" bson:"-"`
	PictureURL string   `json:"pictureUrl,omitempty" bson:"-"`
}

// RepeatedIdentity reports the path of the first bot property whose identity
// is already used by an earlier one.
func (b *Bot) RepeatedIdentity() (string, bool) {
	return repeatedIdentity(make(map[primitive.ObjectID]struct{}), "properties", b.Properties)
}

// Prepare trims user input, applies defaults, normalizes prices and mints
// ids for new properties and references.
func (b *Bot) Prepare() {
	b.BotID = trim(b.BotID)
	b.Category = trim(b.Category)
	if b.Category == "" {
		b.Category = "general"
	}
	b.Name = trim(b.Name)
	b.NameKey = NameKey(b.Name)
	b.Description = trim(b.Description)
	b.Features = trim(b.Features)
	b.License = trim(b.License)
	b.PricingModel = trim(b.PricingModel)
	b.Status = trim(b.Status)
	b.Picture = trim(b.Picture)
	NormalizePrices(b.PricingModel, &b.PricePerUse, &b.PricePerMonth)

	PrepareProperties(b.Properties)
	prepareReference(&b.BotEngine)
	for i := range b.Services {
		prepareReference(&b.Services[i])
	}
	for i := range b.Channels {
		prepareReference(&b.Channels[i])
	}
}

// ComponentIDs returns every component the bot references, engine first.
func (b *Bot) ComponentIDs() []primitive.ObjectID {
	ids := make([]primitive.ObjectID, 0, 1+len(b.Services)+len(b.Channels))
	ids = append(ids, b.BotEngine.Component)
	for _, ref := range b.Services {
		ids = append(ids, ref.Component)
	}
	for _, ref := range b.Channels {
		ids = append(ids, ref.Component)
	}
	return ids
}

// PropertyIdentities returns the identities of the bot's own properties.
func (b *Bot) PropertyIdentities() map[string]struct{} {
	ids := make(map[string]struct{}, len(b.Properties))
	for _, p := range b.Properties {
		ids[p.Identity()] = struct{}{}
	}
	return ids
}

func prepareReference(ref *ComponentReference) {
	if ref.ID.IsZero() {
		ref.ID = primitive.NewObjectID()
	}
	if ref.Values == nil {
		ref.Values = Values{}
	}
}
