// Package resolve computes the effective configuration of a component from
// its declared properties and the override values supplied by the bot
// owner and the subscriber.
//
// Every function here is pure: the same inputs always yield the same
// output, nothing is retained between calls, and missing override values
// resolve to the empty string rather than failing.
package resolve

import "greenhouse/models"

// Layers holds the two override tiers. Either may be nil.
type Layers struct {
	DeveloperValues  models.Values
	SubscriberValues models.Values
}

// Value returns the effective value of p under layers.
func Value(p models.Property, layers Layers) string {
	switch p.ValueType {
	case models.SourceFixed:
		return p.Value
	case models.SourceDeveloper:
		v, _ := layers.DeveloperValues.Lookup(p.Identity())
		return v
	case models.SourceSubscriber:
		v, _ := layers.SubscriberValues.Lookup(p.Identity())
		return v
	}
	return ""
}

// Properties resolves props into a map from property name to value, in
// declaration order. A later property with a duplicate name overwrites the
// value but keeps the earlier position.
func Properties(props []models.Property, layers Layers) models.OrderedMap[string] {
	out := models.NewOrderedMap[string](len(props))
	for _, p := range props {
		out.Set(p.Name, Value(p, layers))
	}
	return out
}

// Names returns the declared names of props in order. Mapped variables are
// filled in by the runtime, so only their names are projected.
func Names(props []models.Property) []string {
	names := make([]string, len(props))
	for i, p := range props {
		names[i] = p.Name
	}
	return names
}

// Result is the resolution of one property collection.
type Result struct {
	Collection models.Collection
	// Values is empty for mapped variables.
	Values models.OrderedMap[string]
	Names  []string
}

// Collection resolves one of c's property collections.
func Collection(c *models.Component, name models.Collection, layers Layers) Result {
	props := c.Collection(name)
	if name == models.CollectionMappedVars {
		return Result{Collection: name, Names: Names(props)}
	}
	return Result{Collection: name, Values: Properties(props, layers), Names: Names(props)}
}

// Component resolves every collection meaningful for c's type: all four for
// services, properties only otherwise.
func Component(c *models.Component, layers Layers) map[models.Collection]Result {
	cols := c.Collections()
	out := make(map[models.Collection]Result, len(cols))
	for _, name := range cols {
		out[name] = Collection(c, name, layers)
	}
	return out
}
