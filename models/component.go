package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Component types.
const (
	ComponentBotEngine = "botengine"
	ComponentService   = "service"
	ComponentChannel   = "channel"
)

// DefaultTimeout is the service call timeout in seconds used when a request
// omits it. An explicit 0 is kept.
const DefaultTimeout = 30

// NewComponentInput returns the component a request body is decoded into,
// carrying the defaults of fields the body may omit.
func NewComponentInput() *Component {
	return &Component{Timeout: DefaultTimeout}
}

// Component is a reusable building block a bot integrates. Only service
// components make use of headers, predefinedVars and mappedVars.
type Component struct {
	ID            primitive.ObjectID `json:"_id" bson:"_id"`
	ComponentType string             `json:"componentType" bson:"componentType" validate:"required,oneof=botengine service channel"`
	Category      string             `json:"category" bson:"category" validate:"required,category"`
	Name          string             `json:"name" bson:"name" validate:"required"`
	NameKey       string             `json:"-" bson:"nameKey"`
	Description   string             `json:"description" bson:"description" validate:"required"`
	Features      string             `json:"features" bson:"features" validate:"required"`
	License       string             `json:"license" bson:"license" validate:"required"`
	Key           string             `json:"key" bson:"key" validate:"required,keyname"`
	FunctionName  string             `json:"functionName" bson:"functionName" validate:"required,keyname"`
	URL           string             `json:"url" bson:"url"`
	HTTPMethod    string             `json:"httpMethod" bson:"httpMethod" validate:"required,oneof=GET POST"`
	Timeout       int                `json:"timeout" bson:"timeout" validate:"gte=0,lte=9999"`
	PricingModel  string             `json:"pricingModel" bson:"pricingModel" validate:"required,oneof=free pay_per_use pay_per_month pay_per_use_or_month"`
	PricePerUse   float64            `json:"pricePerUse" bson:"pricePerUse" validate:"gte=0,lte=9999"`
	PricePerMonth float64            `json:"pricePerMonth" bson:"pricePerMonth" validate:"gte=0,lte=9999"`
	Status        string             `json:"status" bson:"status" validate:"required,oneof=enabled disabled"`
	Picture       string             `json:"picture" bson:"picture"`
	AverageRating float64            `json:"averageRating" bson:"averageRating"`
	ReviewsCount  int64              `json:"reviewsCount" bson:"reviewsCount"`
	UserID        primitive.ObjectID `json:"userId" bson:"user" validate:"required"`

	Properties     []Property `json:"properties" bson:"properties" validate:"dive"`
	Headers        []Property `json:"headers" bson:"headers" validate:"dive"`
	PredefinedVars []Property `json:"predefinedVars" bson:"predefinedVars" validate:"dive"`
	MappedVars     []Property `json:"mappedVars" bson:"mappedVars" validate:"dive"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`

	// Populated on reads, never stored.
	Owner      *UserRef `json:"user,omitempty" bson:"-"`
	PictureURL string   `json:"pictureUrl,omitempty" bson:"-"`
}

// Collection returns the declared properties of the named collection.
func (c *Component) Collection(name Collection) []Property {
	switch name {
	case CollectionProperties:
		return c.Properties
	case CollectionHeaders:
		return c.Headers
	case CollectionPredefinedVars:
		return c.PredefinedVars
	case CollectionMappedVars:
		return c.MappedVars
	}
	return nil
}

// Collections lists the property collections that are meaningful for the
// component's type.
func (c *Component) Collections() []Collection {
	if c.ComponentType == ComponentService {
		return AllCollections
	}
	return []Collection{CollectionProperties}
}

// Identities returns the set of property identities declared across all
// four collections.
func (c *Component) Identities() map[string]struct{} {
	ids := make(map[string]struct{})
	for _, name := range AllCollections {
		for _, p := range c.Collection(name) {
			ids[p.Identity()] = struct{}{}
		}
	}
	return ids
}

// Prepare trims user input, applies defaults and normalizes prices before
// validation.
func (c *Component) Prepare() {
	c.ComponentType = trim(c.ComponentType)
	c.Category = trim(c.Category)
	if c.Category == "" {
		c.Category = "general"
	}
	c.Name = trim(c.Name)
	c.NameKey = NameKey(c.Name)
	c.Description = trim(c.Description)
	c.Features = trim(c.Features)
	c.License = trim(c.License)
	c.Key = trim(c.Key)
	c.FunctionName = trim(c.FunctionName)
	c.URL = trim(c.URL)
	c.HTTPMethod = trim(c.HTTPMethod)
	if c.HTTPMethod == "" {
		c.HTTPMethod = "GET"
	}
	c.PricingModel = trim(c.PricingModel)
	if c.PricingModel == "" {
		c.PricingModel = PricingFree
	}
	c.Status = trim(c.Status)
	c.Picture = trim(c.Picture)
	NormalizePrices(c.PricingModel, &c.PricePerUse, &c.PricePerMonth)

	for _, name := range AllCollections {
		PrepareProperties(c.Collection(name))
	}
}

// RepeatedIdentity reports the path of the first property, across all
// collections, whose identity is already used by an earlier property.
func (c *Component) RepeatedIdentity() (string, bool) {
	seen := make(map[primitive.ObjectID]struct{})
	for _, name := range AllCollections {
		if path, ok := repeatedIdentity(seen, string(name), c.Collection(name)); ok {
			return path, true
		}
	}
	return "", false
}

// ComponentProperties is a component summary restricted to the properties
// of a single value source.
type ComponentProperties struct {
	ID             primitive.ObjectID `json:"_id"`
	Name           string             `json:"name"`
	PictureURL     string             `json:"pictureUrl"`
	PricingModel   string             `json:"pricingModel"`
	PricePerUse    float64            `json:"pricePerUse"`
	PricePerMonth  float64            `json:"pricePerMonth"`
	Status         string             `json:"status"`
	Properties     []Property         `json:"properties"`
	Headers        []Property         `json:"headers"`
	PredefinedVars []Property         `json:"predefinedVars"`
	MappedVars     []Property         `json:"mappedVars"`
}

// ComponentLookup is the short form returned by id lookups.
type ComponentLookup struct {
	ID         primitive.ObjectID `json:"_id"`
	Name       string             `json:"name"`
	PictureURL string             `json:"pictureUrl"`
}
