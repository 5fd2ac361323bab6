package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EngineSnapshot is the runtime's view of a bot's engine configuration.
// Field names are a wire contract with the bot runtime.
type EngineSnapshot struct {
	ID            primitive.ObjectID `json:"-" bson:"_id,omitempty"`
	BotID         primitive.ObjectID `json:"botId" bson:"botId"`
	OwnerName     string             `json:"ownerName" bson:"ownerName"`
	Name          string             `json:"name" bson:"name"`
	Title         string             `json:"title" bson:"title"`
	Description   string             `json:"description" bson:"description"`
	ChatbotEngine OrderedMap[string] `json:"chatbotEngine" bson:"chatbotEngine"`
	PricingModel  string             `json:"pricingModel" bson:"pricingModel"`
	PerUseCost    float64            `json:"perUseCost" bson:"perUseCost"`
	PerMonthCost  float64            `json:"perMonthCost" bson:"perMonthCost"`
	UpdatedAt     time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// SubscriberSnapshot is the runtime's view of one subscription: channel
// configuration keyed by component key and the ordered service list.
type SubscriberSnapshot struct {
	ID               primitive.ObjectID             `json:"-" bson:"_id,omitempty"`
	SubscriptionID   primitive.ObjectID             `json:"subscriptionId" bson:"subscriptionId"`
	BotID            primitive.ObjectID             `json:"botId" bson:"botId"`
	PublisherName    string                         `json:"publisherName" bson:"publisherName"`
	BotName          string                         `json:"botName" bson:"botName"`
	Token            string                         `json:"token" bson:"token"`
	SubscriptionType string                         `json:"subscriptionType" bson:"subscriptionType"`
	UpdatedAt        time.Time                      `json:"updatedAt" bson:"updatedAt"`
	Channels         OrderedMap[OrderedMap[string]] `json:"channels" bson:"channels"`
	Services         []ServiceSnapshot              `json:"services" bson:"services"`
}

// ServiceSnapshot is one resolved service entry of a SubscriberSnapshot.
type ServiceSnapshot struct {
	OwnerName        string             `json:"ownerName" bson:"ownerName"`
	Name             string             `json:"name" bson:"name"`
	Title            string             `json:"title" bson:"title"`
	Category         string             `json:"category" bson:"category"`
	URL              string             `json:"url" bson:"url"`
	Method           string             `json:"method" bson:"method"`
	Timeout          int                `json:"timeout" bson:"timeout"`
	FunctionName     string             `json:"function_name" bson:"function_name"`
	SubscriptionID   primitive.ObjectID `json:"subscriptionId" bson:"subscriptionId"`
	SubscriptionType string             `json:"subscriptionType" bson:"subscriptionType"`
	Cost             float64            `json:"cost" bson:"cost"`
	Headers          OrderedMap[string] `json:"headers" bson:"headers"`
	PredefinedVars   OrderedMap[string] `json:"predefined_vars" bson:"predefined_vars"`
	MappedVars       []string           `json:"mapped_vars" bson:"mapped_vars"`
}

// PricingTag translates a pricing model into the runtime vocabulary.
func PricingTag(model string) string {
	switch model {
	case PricingPayPerUse:
		return "perUse"
	case PricingPayPerMonth:
		return "perMonth"
	case PricingPayPerUseOrMonth:
		return "perUse_perMonth"
	default:
		return "free"
	}
}

// SubscriptionTag translates a subscription type into the runtime vocabulary.
func SubscriptionTag(t SubscriptionType) string {
	switch t {
	case SubscriptionUse:
		return "perUse"
	case SubscriptionMonth:
		return "perMonth"
	default:
		return "free"
	}
}

// Cost is what a component charges under subscription type t.
func (c *Component) Cost(t SubscriptionType) float64 {
	switch t {
	case SubscriptionUse:
		return c.PricePerUse
	case SubscriptionMonth:
		return c.PricePerMonth
	default:
		return 0
	}
}
