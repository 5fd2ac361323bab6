package models

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ValueSource says which marketplace party supplies a property's value.
type ValueSource string

const (
	// SourceFixed values come from the component author and are never overridden.
	SourceFixed ValueSource = "fixed"
	// SourceDeveloper values come from the bot owner's reference to the component.
	SourceDeveloper ValueSource = "developer"
	// SourceSubscriber values come from the user subscribing to the bot.
	// The persisted and wire token is "publisher".
	SourceSubscriber ValueSource = "publisher"
)

// Valid reports whether s is one of the known value sources.
func (s ValueSource) Valid() bool {
	switch s {
	case SourceFixed, SourceDeveloper, SourceSubscriber:
		return true
	}
	return false
}

// Property declares one configurable slot on a component or a bot.
// Its ID is the property identity used as key in override Values and
// must not change once the property has been saved.
type Property struct {
	ID        primitive.ObjectID `json:"_id" bson:"_id"`
	Name      string             `json:"name" bson:"name" validate:"required,identifier"`
	ValueType ValueSource        `json:"valueType" bson:"valueType" validate:"required,oneof=fixed developer publisher"`
	InputType string             `json:"inputType" bson:"inputType" validate:"required,oneof=select text textarea"`
	Options   string             `json:"options,omitempty" bson:"options,omitempty"`
	Required  string             `json:"required" bson:"required" validate:"required,oneof=yes no"`
	Value     string             `json:"value,omitempty" bson:"value,omitempty"`
	Tooltip   string             `json:"tooltip" bson:"tooltip"`
}

// Identity returns the key under which override values for p are stored.
func (p Property) Identity() string {
	return p.ID.Hex()
}

// Values maps a property identity to an override literal.
type Values map[string]string

// Lookup returns the value stored for identity. A nil map has no values.
func (v Values) Lookup(identity string) (string, bool) {
	if v == nil {
		return "", false
	}
	val, ok := v[identity]
	return val, ok
}

// Collection names one of the property lists a component carries.
type Collection string

const (
	CollectionProperties     Collection = "properties"
	CollectionHeaders        Collection = "headers"
	CollectionPredefinedVars Collection = "predefinedVars"
	CollectionMappedVars     Collection = "mappedVars"
)

// AllCollections lists the property collections in their canonical order.
var AllCollections = []Collection{
	CollectionProperties,
	CollectionHeaders,
	CollectionPredefinedVars,
	CollectionMappedVars,
}

// PrepareProperties trims the string fields of each property, applies the
// schema defaults and mints an identity for properties that do not have one.
func PrepareProperties(props []Property) {
	for i := range props {
		p := &props[i]
		p.Name = trim(p.Name)
		p.Options = trim(p.Options)
		p.Value = trim(p.Value)
		p.Tooltip = trim(p.Tooltip)
		if p.ValueType == "" {
			p.ValueType = SourceFixed
		}
		if p.InputType == "" {
			p.InputType = "text"
		}
		if p.Required == "" {
			p.Required = "yes"
		}
		if p.ID.IsZero() {
			p.ID = primitive.NewObjectID()
		}
	}
}

func repeatedIdentity(seen map[primitive.ObjectID]struct{}, collection string, props []Property) (string, bool) {
	for i, p := range props {
		if p.ID.IsZero() {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Sprintf("%s[%d]._id", collection, i), true
		}
		seen[p.ID] = struct{}{}
	}
	return "", false
}
