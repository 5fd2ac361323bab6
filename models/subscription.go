package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Subscription is one user's activation of one bot. Token is minted on the
// first subscribe and kept across re-subscriptions.
type Subscription struct {
	ID               primitive.ObjectID  `json:"_id" bson:"_id"`
	UserID           primitive.ObjectID  `json:"userId" bson:"user" validate:"required"`
	BotID            primitive.ObjectID  `json:"bot" bson:"bot" validate:"required"`
	SubscriptionType SubscriptionType    `json:"subscriptionType" bson:"subscriptionType" validate:"required,oneof=free month use"`
	Token            string              `json:"token" bson:"token"`
	Properties       Values              `json:"properties" bson:"properties"`
	BotEngine        *ComponentOverride  `json:"botEngine,omitempty" bson:"botEngine,omitempty"`
	Services         []ComponentOverride `json:"services" bson:"services" validate:"dive"`
	Channels         []ComponentOverride `json:"channels" bson:"channels" validate:"dive"`
	CreatedAt        time.Time           `json:"createdAt" bson:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt" bson:"updatedAt"`
}

// Prepare mints ids for new override entries and replaces nil value maps.
func (s *Subscription) Prepare() {
	if s.Properties == nil {
		s.Properties = Values{}
	}
	if s.BotEngine != nil {
		prepareOverride(s.BotEngine)
	}
	for i := range s.Services {
		prepareOverride(&s.Services[i])
	}
	for i := range s.Channels {
		prepareOverride(&s.Channels[i])
	}
}

// ServiceValues returns the subscriber-tier values for a service component,
// or nil when the subscription carries none.
func (s *Subscription) ServiceValues(component primitive.ObjectID) Values {
	return overrideValues(s.Services, component)
}

// ChannelValues returns the subscriber-tier values for a channel component,
// or nil when the subscription carries none.
func (s *Subscription) ChannelValues(component primitive.ObjectID) Values {
	return overrideValues(s.Channels, component)
}

func overrideValues(list []ComponentOverride, component primitive.ObjectID) Values {
	for _, o := range list {
		if o.Component == component {
			return o.Values
		}
	}
	return nil
}

func prepareOverride(o *ComponentOverride) {
	if o.ID.IsZero() {
		o.ID = primitive.NewObjectID()
	}
	if o.Values == nil {
		o.Values = Values{}
	}
}
