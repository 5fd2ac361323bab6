package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InstanceType names the kind of entity a review is attached to.
type InstanceType string

const (
	InstanceComponent InstanceType = "component"
	InstanceBot       InstanceType = "bot"
)

// Review is a user's rating of a bot or a component. A user holds at most
// one review per target.
type Review struct {
	ID           primitive.ObjectID `json:"_id" bson:"_id"`
	InstanceType InstanceType       `json:"instanceType" bson:"instanceType" validate:"required,oneof=component bot"`
	InstanceID   primitive.ObjectID `json:"instanceId" bson:"instanceId" validate:"required"`
	UserID       primitive.ObjectID `json:"userId" bson:"user" validate:"required"`
	Rating       int                `json:"rating" bson:"rating" validate:"gte=0,lte=5"`
	Comments     string             `json:"comments" bson:"comments" validate:"required"`
	CreatedAt    time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt" bson:"updatedAt"`

	Owner *UserRef `json:"user,omitempty" bson:"-"`
}

// Rating is the aggregate of all reviews for one target.
type Rating struct {
	Count   int64   `json:"reviewsCount" bson:"count"`
	Average float64 `json:"averageRating" bson:"average"`
}
