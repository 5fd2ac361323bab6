package resolve

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"greenhouse/models"
)

func prop(name string, source models.ValueSource, literal string) models.Property {
	return models.Property{
		ID:        primitive.NewObjectID(),
		Name:      name,
		ValueType: source,
		Value:     literal,
	}
}

// bothLayers supplies an override in both tiers for every property.
func bothLayers(props ...models.Property) Layers {
	l := Layers{DeveloperValues: models.Values{}, SubscriberValues: models.Values{}}
	for _, p := range props {
		l.DeveloperValues[p.Identity()] = "dev-" + p.Name
		l.SubscriberValues[p.Identity()] = "sub-" + p.Name
	}
	return l
}

func TestFixedIgnoresOverrides(t *testing.T) {
	p := prop("region", models.SourceFixed, "eu-west")

	assert.Equal(t, "eu-west", Value(p, Layers{}))
	assert.Equal(t, "eu-west", Value(p, bothLayers(p)))
}

func TestDeveloperUsesDeveloperLayerOnly(t *testing.T) {
	p := prop("apiKey", models.SourceDeveloper, "ignored")

	assert.Equal(t, "dev-apiKey", Value(p, bothLayers(p)))
	assert.Equal(t, "", Value(p, Layers{SubscriberValues: models.Values{p.Identity(): "sub"}}))
	assert.Equal(t, "", Value(p, Layers{}))
}

func TestSubscriberUsesSubscriberLayerOnly(t *testing.T) {
	p := prop("token", models.SourceSubscriber, "ignored")

	assert.Equal(t, "sub-token", Value(p, bothLayers(p)))
	assert.Equal(t, "", Value(p, Layers{DeveloperValues: models.Values{p.Identity(): "dev"}}))
	assert.Equal(t, "", Value(p, Layers{}))
}

func TestUnknownSourceResolvesEmpty(t *testing.T) {
	p := prop("x", "owner", "lit")
	assert.Equal(t, "", Value(p, bothLayers(p)))
}

func TestMappedVarsYieldNamesOnly(t *testing.T) {
	mapped := []models.Property{
		prop("city", models.SourceFixed, "Paris"),
		prop("date", models.SourceDeveloper, ""),
		prop("unit", models.SourceSubscriber, ""),
	}
	c := &models.Component{ComponentType: models.ComponentService, MappedVars: mapped}

	res := Collection(c, models.CollectionMappedVars, bothLayers(mapped...))

	assert.Equal(t, []string{"city", "date", "unit"}, res.Names)
	assert.Zero(t, res.Values.Len())
}

func TestPropertiesKeepDeclarationOrder(t *testing.T) {
	props := []models.Property{
		prop("zeta", models.SourceFixed, "1"),
		prop("alpha", models.SourceDeveloper, ""),
		prop("mid", models.SourceSubscriber, ""),
	}
	layers := Layers{DeveloperValues: models.Values{props[1].Identity(): "2"}}

	first := Properties(props, layers)
	second := Properties(props, layers)

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, first.Keys())
	assert.Equal(t, first.Pairs(), second.Pairs())
	assert.Equal(t, []models.Pair[string]{
		{Key: "zeta", Value: "1"},
		{Key: "alpha", Value: "2"},
		{Key: "mid", Value: ""},
	}, first.Pairs())
}

func TestResolveDoesNotMutateInputs(t *testing.T) {
	p := prop("k", models.SourceDeveloper, "")
	layers := Layers{DeveloperValues: models.Values{p.Identity(): "v"}}
	props := []models.Property{p}

	Properties(props, layers)

	assert.Equal(t, models.Values{p.Identity(): "v"}, layers.DeveloperValues)
	assert.Nil(t, layers.SubscriberValues)
	assert.Equal(t, p, props[0])
}

func TestComponentCollectionsByType(t *testing.T) {
	header := prop("Authorization", models.SourceSubscriber, "")
	c := &models.Component{
		ComponentType: models.ComponentChannel,
		Properties:    []models.Property{prop("name", models.SourceFixed, "slack")},
		Headers:       []models.Property{header},
	}

	res := Component(c, Layers{})
	assert.Len(t, res, 1)
	assert.Contains(t, res, models.CollectionProperties)

	c.ComponentType = models.ComponentService
	res = Component(c, bothLayers(header))
	assert.Len(t, res, 4)
	v, _ := res[models.CollectionHeaders].Values.Get("Authorization")
	assert.Equal(t, "sub-Authorization", v)
}

func TestConcurrentResolution(t *testing.T) {
	props := []models.Property{
		prop("a", models.SourceDeveloper, ""),
		prop("b", models.SourceSubscriber, ""),
	}
	layers := bothLayers(props...)
	want := Properties(props, layers).Pairs()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, want, Properties(props, layers).Pairs())
		}()
	}
	wg.Wait()
}
