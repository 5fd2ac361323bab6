package bots_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"greenhouse/apperr"
	"greenhouse/bots"
	"greenhouse/logging"
	"greenhouse/models"
	"greenhouse/repository"
	"greenhouse/snapshots"
	"greenhouse/subscriptions"
	"greenhouse/testutil"
	"greenhouse/validation"
)

type env struct {
	store  *testutil.Store
	bots   *bots.Service
	subs   *subscriptions.Service
	dev    models.User
	actor  models.Actor
	engine *models.Component
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := testutil.NewStore()
	log := logging.Discard()
	v := validation.New()
	projector := snapshots.NewProjector(snapshots.Deps{
		Components:    store.Components,
		Users:         store.Users,
		Subscriptions: store.Subscriptions,
		Snapshots:     store.Snapshots,
		Log:           log,
	})
	subs := subscriptions.NewService(subscriptions.Deps{
		Bots:          store.Bots,
		Components:    store.Components,
		Subscriptions: store.Subscriptions,
		Users:         store.Users,
		Projector:     projector,
		Validator:     v,
		Log:           log,
	})
	svc := bots.NewService(bots.Deps{
		Bots:          store.Bots,
		Components:    store.Components,
		Subscriptions: store.Subscriptions,
		Users:         store.Users,
		Projector:     projector,
		Owners:        subs,
		Validator:     v,
		Log:           log,
	})

	dev := store.Users.Add("dev")
	engine := testutil.Component(dev.ID, models.ComponentBotEngine, "gpt")
	engine.Properties = []models.Property{testutil.Prop("prompt", models.SourceDeveloper, "")}
	store.SeedComponent(engine)

	return &env{
		store:  store,
		bots:   svc,
		subs:   subs,
		dev:    dev,
		actor:  models.Actor{ID: dev.ID, Username: "dev"},
		engine: engine,
	}
}

func (e *env) input(botID string) *models.Bot {
	b := testutil.Bot(primitive.NilObjectID, e.engine.ID, botID)
	b.BotEngine.ID = primitive.NilObjectID
	return b
}

func TestCreateNormalizesPricingAndSubscribesOwner(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	in := e.input("helper")
	in.PricingModel = models.PricingPayPerMonth
	in.PricePerUse = 50
	in.PricePerMonth = 10

	bot, err := e.bots.Create(ctx, e.actor, in)
	require.NoError(t, err)

	stored, err := e.store.Bots.FindByID(ctx, bot.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.PricePerUse)
	assert.Equal(t, 10.0, stored.PricePerMonth)
	assert.EqualValues(t, 1, stored.SubscriptionsCount)
	assert.False(t, stored.BotEngine.ID.IsZero())

	engine, err := e.store.Snapshots.GetEngine(ctx, bot.ID)
	require.NoError(t, err)
	assert.Equal(t, "perMonth", engine.PricingModel)
	assert.Equal(t, "dev", engine.OwnerName)

	sub, err := e.store.Subscriptions.Get(ctx, bot.ID, e.dev.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionMonth, sub.SubscriptionType)
	assert.NotEmpty(t, sub.Token)

	snap, err := e.store.Snapshots.GetSubscriber(ctx, bot.ID, "dev")
	require.NoError(t, err)
	assert.Equal(t, sub.Token, snap.Token)
	assert.Equal(t, "perMonth", snap.SubscriptionType)
}

func TestCreateChecksReferences(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	channel := e.store.SeedComponent(testutil.Component(e.dev.ID, models.ComponentChannel, "slack"))

	tests := []struct {
		name  string
		edit  func(b *models.Bot)
		field string
		key   string
	}{
		{
			name:  "missing engine",
			edit:  func(b *models.Bot) { b.BotEngine.Component = primitive.NewObjectID() },
			field: "botEngine.component",
			key:   "domain.component.validation.component_not_found",
		},
		{
			name:  "channel in service slot",
			edit:  func(b *models.Bot) { b.Services = []models.ComponentReference{testutil.Ref(channel.ID, nil)} },
			field: "services[0].component",
			key:   "domain.bot.validation.component_type",
		},
		{
			name:  "unknown override key",
			edit:  func(b *models.Bot) { b.BotEngine.Values = models.Values{"deadbeef": "x"} },
			field: "botEngine.values.deadbeef",
			key:   "domain.bot.validation.unknown_property",
		},
		{
			name: "repeated property identity",
			edit: func(b *models.Bot) {
				first := testutil.Prop("region", models.SourceSubscriber, "")
				second := testutil.Prop("apiKey", models.SourceSubscriber, "")
				second.ID = first.ID
				b.Properties = []models.Property{first, second}
			},
			field: "properties[1]._id",
			key:   "validation.unique",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := e.input("helper")
			tt.edit(in)
			_, err := e.bots.Create(ctx, e.actor, in)
			require.Error(t, err)
			var ae *apperr.Error
			require.True(t, errors.As(err, &ae))
			assert.Equal(t, apperr.KindValidation, ae.Kind)
			assert.Equal(t, tt.key, ae.Fields[tt.field])
		})
	}
}

func TestCreateDuplicateBotID(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.bots.Create(ctx, e.actor, e.input("helper"))
	require.NoError(t, err)

	again := e.input("helper")
	again.Name = "Something else"
	_, err = e.bots.Create(ctx, e.actor, again)
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "domain.bot.validation.unique_botId", ae.Fields["botId"])
}

func TestUpdateReprojectsSubscribers(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	weather := testutil.Component(e.dev.ID, models.ComponentService, "weather")
	weather.PredefinedVars = []models.Property{testutil.Prop("apiKey", models.SourceDeveloper, "")}
	e.store.SeedComponent(weather)
	apiKey := weather.PredefinedVars[0].Identity()

	in := e.input("helper")
	in.Services = []models.ComponentReference{testutil.Ref(weather.ID, models.Values{apiKey: "OLD"})}
	bot, err := e.bots.Create(ctx, e.actor, in)
	require.NoError(t, err)

	ann := e.store.Users.Add("ann")
	_, err = e.subs.Subscribe(ctx, models.Actor{ID: ann.ID, Username: "ann"}, bot.ID, &models.Subscription{})
	require.NoError(t, err)

	update := e.input("helper")
	update.Services = []models.ComponentReference{testutil.Ref(weather.ID, models.Values{apiKey: "NEW"})}
	_, err = e.bots.Update(ctx, e.actor, bot.ID, update)
	require.NoError(t, err)

	for _, name := range []string{"dev", "ann"} {
		snap, err := e.store.Snapshots.GetSubscriber(ctx, bot.ID, name)
		require.NoError(t, err)
		v, _ := snap.Services[0].PredefinedVars.Get("apiKey")
		assert.Equal(t, "NEW", v, name)
	}
	stored, err := e.store.Bots.FindByID(ctx, bot.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stored.SubscriptionsCount)
}

func TestUpdateAndDeleteRequireOwner(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	bot, err := e.bots.Create(ctx, e.actor, e.input("helper"))
	require.NoError(t, err)
	mallory := models.Actor{ID: e.store.Users.Add("mallory").ID}

	_, err = e.bots.Update(ctx, mallory, bot.ID, e.input("helper"))
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
	assert.True(t, errors.Is(e.bots.Delete(ctx, mallory, bot.ID), apperr.ErrForbidden))
	assert.True(t, errors.Is(e.bots.Delete(ctx, e.actor, primitive.NewObjectID()), apperr.ErrNotFound))
}

func TestDeleteCascades(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	bot, err := e.bots.Create(ctx, e.actor, e.input("helper"))
	require.NoError(t, err)
	ann := e.store.Users.Add("ann")
	_, err = e.subs.Subscribe(ctx, models.Actor{ID: ann.ID}, bot.ID, &models.Subscription{})
	require.NoError(t, err)
	require.Equal(t, 2, e.store.Snapshots.SubscriberCount())

	// The first attempt fails on the bot itself after its dependents are gone.
	e.store.Bots.FailDelete = errors.New("connection reset")
	err = e.bots.Delete(ctx, e.actor, bot.ID)
	require.Error(t, err)
	_, err = e.store.Bots.FindByID(ctx, bot.ID)
	require.NoError(t, err)

	require.NoError(t, e.bots.Delete(ctx, e.actor, bot.ID))

	_, err = e.bots.Get(ctx, bot.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	_, err = e.store.Subscriptions.Get(ctx, bot.ID, ann.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = e.store.Subscriptions.Get(ctx, bot.ID, e.dev.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = e.store.Snapshots.GetEngine(ctx, bot.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = e.store.Snapshots.GetSubscriber(ctx, bot.ID, "ann")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Zero(t, e.store.Snapshots.SubscriberCount())
}

func TestSearch(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	for _, id := range []string{"alpha", "beta", "gamma"} {
		_, err := e.bots.Create(ctx, e.actor, e.input(id))
		require.NoError(t, err)
	}

	page, err := e.bots.Marketplace(ctx, repository.SearchFilter{Search: "beta"})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "beta", page.Results[0].BotID)
	assert.Equal(t, "dev", page.Results[0].Owner.Username)

	page, err = e.bots.ByUser(ctx, "dev", repository.SearchFilter{SortBy: "name", SortType: "asc"})
	require.NoError(t, err)
	require.Len(t, page.Results, 3)
	assert.Equal(t, "alpha", page.Results[0].BotID)
}
