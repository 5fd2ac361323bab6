package components

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"greenhouse/apperr"
	"greenhouse/logging"
	"greenhouse/models"
	"greenhouse/repository"
	"greenhouse/testutil"
	"greenhouse/validation"
)

func newService(store *testutil.Store) *Service {
	return NewService(Deps{
		Components: store.Components,
		Bots:       store.Bots,
		Users:      store.Users,
		Validator:  validation.New(),
		Pictures:   models.PictureURLs{CDNURL: "https://cdn.test", GreenhouseURL: "https://gh.test"},
		Log:        logging.Discard(),
	})
}

func fields(t *testing.T, err error) map[string]string {
	t.Helper()
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae), "expected *apperr.Error, got %v", err)
	return ae.Fields
}

func TestCreate(t *testing.T) {
	store := testutil.NewStore()
	svc := newService(store)
	dev := store.Users.Add("dev")

	in := testutil.Component(primitive.NilObjectID, models.ComponentService, "weather")
	in.Name = "  Weather  "
	in.Timeout = 0
	in.PricingModel = models.PricingPayPerMonth
	in.PricePerUse = 3
	in.PricePerMonth = 7
	in.AverageRating = 5
	in.Headers = []models.Property{{Name: "Accept", Value: "application/json"}}

	c, err := svc.Create(context.Background(), models.Actor{ID: dev.ID, Username: "dev"}, in)
	require.NoError(t, err)

	assert.False(t, c.ID.IsZero())
	assert.Equal(t, dev.ID, c.UserID)
	assert.Equal(t, "Weather", c.Name)
	assert.Zero(t, c.Timeout)
	assert.Zero(t, c.PricePerUse)
	assert.Equal(t, 7.0, c.PricePerMonth)
	assert.Zero(t, c.AverageRating)
	assert.Equal(t, "dev", c.Owner.Username)
	assert.Equal(t, "https://gh.test/images/component-default.png", c.PictureURL)
	require.Len(t, c.Headers, 1)
	assert.False(t, c.Headers[0].ID.IsZero())
	assert.Equal(t, models.SourceFixed, c.Headers[0].ValueType)

	stored, err := store.Components.FindByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Weather", stored.Name)
}

func TestCreateValidation(t *testing.T) {
	store := testutil.NewStore()
	svc := newService(store)
	dev := store.Users.Add("dev")
	actor := models.Actor{ID: dev.ID}

	in := testutil.Component(primitive.NilObjectID, models.ComponentService, "bad key")
	in.HTTPMethod = "PATCH"
	_, err := svc.Create(context.Background(), actor, in)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	f := fields(t, err)
	assert.Equal(t, "validation.regex", f["key"])
	assert.Equal(t, "validation.option", f["httpMethod"])
}

func TestCreateRejectsRepeatedPropertyIdentity(t *testing.T) {
	store := testutil.NewStore()
	svc := newService(store)
	dev := store.Users.Add("dev")
	actor := models.Actor{ID: dev.ID}

	header := testutil.Prop("region", models.SourceDeveloper, "")
	apiKey := testutil.Prop("apiKey", models.SourceDeveloper, "")
	apiKey.ID = header.ID

	in := testutil.Component(primitive.NilObjectID, models.ComponentService, "weather")
	in.Headers = []models.Property{header}
	in.PredefinedVars = []models.Property{testutil.Prop("units", models.SourceFixed, "metric"), apiKey}

	_, err := svc.Create(context.Background(), actor, in)
	require.Error(t, err)
	assert.Equal(t, map[string]string{"predefinedVars[1]._id": "validation.unique"}, fields(t, err))
	_, total, err := store.Components.Search(context.Background(), repository.SearchFilter{}.Normalize())
	require.NoError(t, err)
	assert.Zero(t, total)

	in = testutil.Component(primitive.NilObjectID, models.ComponentService, "weather")
	in.Headers = []models.Property{header}
	c, err := svc.Create(context.Background(), actor, in)
	require.NoError(t, err)

	edit := testutil.Component(primitive.NilObjectID, models.ComponentService, "weather")
	edit.Headers = []models.Property{header, header}
	_, err = svc.Update(context.Background(), actor, c.ID, edit)
	require.Error(t, err)
	assert.Equal(t, "validation.unique", fields(t, err)["headers[1]._id"])
}

func TestCreateDuplicateName(t *testing.T) {
	store := testutil.NewStore()
	svc := newService(store)
	dev := store.Users.Add("dev")
	actor := models.Actor{ID: dev.ID}
	ctx := context.Background()

	_, err := svc.Create(ctx, actor, testutil.Component(primitive.NilObjectID, models.ComponentChannel, "slack"))
	require.NoError(t, err)

	again := testutil.Component(primitive.NilObjectID, models.ComponentChannel, "other")
	again.Name = "COMPONENT SLACK"
	_, err = svc.Create(ctx, actor, again)
	require.Error(t, err)
	assert.Equal(t, "domain.component.validation.unique_name", fields(t, err)["name"])
}

func TestCreateUnknownUser(t *testing.T) {
	svc := newService(testutil.NewStore())
	_, err := svc.Create(context.Background(), models.Actor{ID: primitive.NewObjectID()},
		testutil.Component(primitive.NilObjectID, models.ComponentChannel, "slack"))
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestUpdateOwnership(t *testing.T) {
	store := testutil.NewStore()
	svc := newService(store)
	dev := store.Users.Add("dev")
	other := store.Users.Add("other")
	c := store.SeedComponent(testutil.Component(dev.ID, models.ComponentChannel, "slack"))
	ctx := context.Background()

	in := testutil.Component(primitive.NilObjectID, models.ComponentChannel, "slack")
	in.Description = "changed"

	_, err := svc.Update(ctx, models.Actor{ID: other.ID}, c.ID, in)
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	_, err = svc.Update(ctx, models.Actor{ID: dev.ID}, primitive.NewObjectID(), in)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	updated, err := svc.Update(ctx, models.Actor{ID: dev.ID}, c.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "changed", updated.Description)
	assert.Equal(t, dev.ID, updated.UserID)
	assert.Equal(t, c.CreatedAt, updated.CreatedAt)
}

func TestTypeChangeAndDeleteWhileReferenced(t *testing.T) {
	store := testutil.NewStore()
	svc := newService(store)
	dev := store.Users.Add("dev")
	actor := models.Actor{ID: dev.ID}
	ctx := context.Background()

	engine := store.SeedComponent(testutil.Component(dev.ID, models.ComponentBotEngine, "gpt"))
	bot := store.SeedBot(testutil.Bot(dev.ID, engine.ID, "helper"))

	in := testutil.Component(primitive.NilObjectID, models.ComponentChannel, "gpt")
	_, err := svc.Update(ctx, actor, engine.ID, in)
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	err = svc.Delete(ctx, actor, engine.ID)
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	require.NoError(t, store.Bots.Delete(ctx, bot.ID))
	require.NoError(t, svc.Delete(ctx, actor, engine.ID))
	_, err = store.Components.FindByID(ctx, engine.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPropertiesFor(t *testing.T) {
	store := testutil.NewStore()
	svc := newService(store)
	dev := store.Users.Add("dev")
	ctx := context.Background()

	service := testutil.Component(dev.ID, models.ComponentService, "weather")
	service.Properties = []models.Property{testutil.Prop("region", models.SourceDeveloper, "")}
	service.Headers = []models.Property{
		testutil.Prop("Accept", models.SourceFixed, "json"),
		testutil.Prop("X-Token", models.SourceSubscriber, ""),
	}
	service.PredefinedVars = []models.Property{testutil.Prop("apiKey", models.SourceDeveloper, "")}
	store.SeedComponent(service)

	channel := testutil.Component(dev.ID, models.ComponentChannel, "slack")
	channel.Properties = []models.Property{testutil.Prop("webhook", models.SourceSubscriber, "")}
	// Channels only expose properties; stray headers are ignored.
	channel.Headers = []models.Property{testutil.Prop("X-Ignored", models.SourceSubscriber, "")}
	store.SeedComponent(channel)

	dev1, err := svc.PropertiesFor(ctx, service.ID, models.SourceDeveloper)
	require.NoError(t, err)
	assert.Len(t, dev1.Properties, 1)
	assert.Empty(t, dev1.Headers)
	require.Len(t, dev1.PredefinedVars, 1)
	assert.Equal(t, "apiKey", dev1.PredefinedVars[0].Name)

	pub, err := svc.PropertiesFor(ctx, service.ID, models.SourceSubscriber)
	require.NoError(t, err)
	require.Len(t, pub.Headers, 1)
	assert.Equal(t, "X-Token", pub.Headers[0].Name)

	ch, err := svc.PropertiesFor(ctx, channel.ID, models.SourceSubscriber)
	require.NoError(t, err)
	assert.Len(t, ch.Properties, 1)
	assert.Empty(t, ch.Headers)

	_, err = svc.PropertiesFor(ctx, channel.ID, models.ValueSource("nobody"))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestMarketplaceAndLookup(t *testing.T) {
	store := testutil.NewStore()
	svc := newService(store)
	dev := store.Users.Add("dev")
	ctx := context.Background()

	engine := store.SeedComponent(testutil.Component(dev.ID, models.ComponentBotEngine, "gpt"))
	channel := store.SeedComponent(testutil.Component(dev.ID, models.ComponentChannel, "slack"))
	service := store.SeedComponent(testutil.Component(dev.ID, models.ComponentService, "weather"))

	page, err := svc.Marketplace(ctx, repository.SearchFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.ResultsCount)
	assert.Equal(t, 1, page.PagesCount)
	for _, c := range page.Results {
		assert.NotEqual(t, models.ComponentService, c.ComponentType)
		assert.Equal(t, "dev", c.Owner.Username)
	}

	page, err = svc.ByType(ctx, models.ComponentService, repository.SearchFilter{})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, service.ID, page.Results[0].ID)

	page, err = svc.ByUser(ctx, "dev", repository.SearchFilter{PageSize: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.ResultsCount)
	assert.Equal(t, 2, page.PagesCount)

	_, err = svc.ByUser(ctx, "nobody", repository.SearchFilter{})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	found, err := svc.Lookup(ctx, []primitive.ObjectID{engine.ID, channel.ID, primitive.NewObjectID()})
	require.NoError(t, err)
	assert.Len(t, found, 2)
}
