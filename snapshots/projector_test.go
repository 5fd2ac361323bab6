package snapshots

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"greenhouse/apperr"
	"greenhouse/logging"
	"greenhouse/models"
	"greenhouse/resolve"
	"greenhouse/testutil"
)

type fixture struct {
	store     *testutil.Store
	events    *testutil.Publisher
	cache     *testutil.Cache
	projector *Projector
	owner     models.User
	engine    *models.Component
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := testutil.NewStore()
	f := &fixture{
		store:  store,
		events: &testutil.Publisher{},
		cache:  testutil.NewCache(),
		owner:  store.Users.Add("dev"),
	}
	f.projector = NewProjector(Deps{
		Components:    store.Components,
		Users:         store.Users,
		Subscriptions: store.Subscriptions,
		Snapshots:     store.Snapshots,
		Events:        f.events,
		Cache:         f.cache,
		Log:           logging.Discard(),
	})
	f.projector.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	engine := testutil.Component(f.owner.ID, models.ComponentBotEngine, "gpt")
	engine.Properties = []models.Property{
		testutil.Prop("model", models.SourceFixed, "large"),
		testutil.Prop("prompt", models.SourceDeveloper, ""),
		testutil.Prop("apiKey", models.SourceSubscriber, ""),
	}
	f.engine = store.SeedComponent(engine)
	return f
}

func (f *fixture) weather(source models.ValueSource) *models.Component {
	c := testutil.Component(f.owner.ID, models.ComponentService, "weather")
	c.Name = "Weather"
	c.HTTPMethod = "POST"
	c.PricingModel = models.PricingPayPerUseOrMonth
	c.PricePerUse = 0.5
	c.PricePerMonth = 9
	c.PredefinedVars = []models.Property{testutil.Prop("apiKey", source, "")}
	c.Headers = []models.Property{testutil.Prop("Accept", models.SourceFixed, "application/json")}
	c.MappedVars = []models.Property{
		testutil.Prop("city", models.SourceFixed, "ignored"),
		testutil.Prop("date", models.SourceFixed, ""),
	}
	return f.store.SeedComponent(c)
}

func TestBuildEngine(t *testing.T) {
	f := newFixture(t)
	bot := testutil.Bot(f.owner.ID, f.engine.ID, "helper")
	bot.PricingModel = models.PricingPayPerUseOrMonth
	bot.PricePerUse = 1.5
	bot.PricePerMonth = 20
	bot.BotEngine.Values = models.Values{
		f.engine.Properties[0].Identity(): "overridden",
		f.engine.Properties[1].Identity(): "be nice",
		f.engine.Properties[2].Identity(): "developer cannot set this",
	}
	f.store.SeedBot(bot)

	snap, err := f.projector.BuildEngine(context.Background(), bot)
	require.NoError(t, err)

	assert.Equal(t, bot.ID, snap.BotID)
	assert.Equal(t, "dev", snap.OwnerName)
	assert.Equal(t, "helper", snap.Name)
	assert.Equal(t, "Bot helper", snap.Title)
	assert.Equal(t, "perUse_perMonth", snap.PricingModel)
	assert.Equal(t, 1.5, snap.PerUseCost)
	assert.Equal(t, 20.0, snap.PerMonthCost)
	assert.Equal(t, []models.Pair[string]{
		{Key: "model", Value: "large"},
		{Key: "prompt", Value: "be nice"},
		{Key: "apiKey", Value: ""},
	}, snap.ChatbotEngine.Pairs())
}

func TestProjectEngineIsIdempotent(t *testing.T) {
	f := newFixture(t)
	bot := f.store.SeedBot(testutil.Bot(f.owner.ID, f.engine.ID, "helper"))
	ctx := context.Background()

	require.NoError(t, f.projector.ProjectEngine(ctx, bot))
	first, err := f.store.Snapshots.GetEngine(ctx, bot.ID)
	require.NoError(t, err)
	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)

	require.NoError(t, f.projector.ProjectEngine(ctx, bot))
	second, err := f.store.Snapshots.GetEngine(ctx, bot.ID)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)

	assert.JSONEq(t, string(firstJSON), string(secondJSON))

	events := f.events.Events()
	require.Len(t, events, 2)
	assert.Equal(t, models.SnapshotEngine, events[0].Kind)
	assert.Equal(t, models.ActionReplaced, events[0].Action)
	assert.Equal(t, "helper", events[0].BotName)
}

func TestSubscriberSnapshotUsesDeveloperValue(t *testing.T) {
	f := newFixture(t)
	weather := f.weather(models.SourceDeveloper)
	subscriber := f.store.Users.Add("ann")

	bot := testutil.Bot(f.owner.ID, f.engine.ID, "helper")
	ref := testutil.Ref(weather.ID, models.Values{weather.PredefinedVars[0].Identity(): "KEY123"})
	ref.SubscriptionType = models.SubscriptionUse
	bot.Services = []models.ComponentReference{ref}
	f.store.SeedBot(bot)

	sub := &models.Subscription{
		ID:               primitive.NewObjectID(),
		UserID:           subscriber.ID,
		BotID:            bot.ID,
		SubscriptionType: models.SubscriptionFree,
		Token:            "tok",
		// A subscriber value must not reach a developer property.
		Services: []models.ComponentOverride{{
			Component: weather.ID,
			Values:    models.Values{weather.PredefinedVars[0].Identity(): "USERKEY"},
		}},
	}

	snap, err := f.projector.BuildSubscriber(context.Background(), bot, sub)
	require.NoError(t, err)

	assert.Equal(t, "ann", snap.PublisherName)
	assert.Equal(t, "helper", snap.BotName)
	assert.Equal(t, "tok", snap.Token)
	assert.Equal(t, "free", snap.SubscriptionType)
	require.Len(t, snap.Services, 1)

	svc := snap.Services[0]
	assert.Equal(t, "dev", svc.OwnerName)
	assert.Equal(t, "weather", svc.Name)
	assert.Equal(t, "Weather", svc.Title)
	assert.Equal(t, "post", svc.Method)
	assert.Equal(t, models.DefaultTimeout, svc.Timeout)
	assert.Equal(t, ref.ID, svc.SubscriptionID)
	assert.Equal(t, "perUse", svc.SubscriptionType)
	assert.Equal(t, 0.5, svc.Cost)
	apiKey, _ := svc.PredefinedVars.Get("apiKey")
	assert.Equal(t, "KEY123", apiKey)
	accept, _ := svc.Headers.Get("Accept")
	assert.Equal(t, "application/json", accept)
	assert.Equal(t, []string{"city", "date"}, svc.MappedVars)
}

func TestSubscriberSnapshotUsesSubscriberValue(t *testing.T) {
	f := newFixture(t)
	weather := f.weather(models.SourceSubscriber)
	subscriber := f.store.Users.Add("ann")

	bot := testutil.Bot(f.owner.ID, f.engine.ID, "helper")
	bot.Services = []models.ComponentReference{testutil.Ref(weather.ID, nil)}
	f.store.SeedBot(bot)

	sub := f.store.SeedSubscription(&models.Subscription{
		UserID:           subscriber.ID,
		BotID:            bot.ID,
		SubscriptionType: models.SubscriptionFree,
		Token:            "tok",
		Services: []models.ComponentOverride{{
			ID:        primitive.NewObjectID(),
			Component: weather.ID,
			Values:    models.Values{weather.PredefinedVars[0].Identity(): "USERKEY"},
		}},
	})

	ctx := context.Background()
	require.NoError(t, f.projector.ProjectSubscriber(ctx, bot, sub))
	stored, err := f.store.Snapshots.GetSubscriber(ctx, bot.ID, "ann")
	require.NoError(t, err)
	apiKey, _ := stored.Services[0].PredefinedVars.Get("apiKey")
	assert.Equal(t, "USERKEY", apiKey)

	// Without the subscriber layer the same property resolves empty.
	bare := resolve.Properties(weather.PredefinedVars, resolve.Layers{DeveloperValues: bot.Services[0].Values})
	v, ok := bare.Get("apiKey")
	assert.True(t, ok)
	assert.Equal(t, "", v)

	engine, err := f.projector.BuildEngine(ctx, bot)
	require.NoError(t, err)
	v, _ = engine.ChatbotEngine.Get("apiKey")
	assert.Equal(t, "", v)
}

func TestSubscriberChannelsKeyedByComponentKey(t *testing.T) {
	f := newFixture(t)
	slack := testutil.Component(f.owner.ID, models.ComponentChannel, "slack")
	slack.Properties = []models.Property{
		testutil.Prop("workspace", models.SourceDeveloper, ""),
		testutil.Prop("webhook", models.SourceSubscriber, ""),
	}
	f.store.SeedComponent(slack)
	subscriber := f.store.Users.Add("ann")

	bot := testutil.Bot(f.owner.ID, f.engine.ID, "helper")
	bot.Channels = []models.ComponentReference{
		testutil.Ref(slack.ID, models.Values{slack.Properties[0].Identity(): "acme"}),
	}
	f.store.SeedBot(bot)
	sub := &models.Subscription{
		ID:     primitive.NewObjectID(),
		UserID: subscriber.ID,
		BotID:  bot.ID,
		Channels: []models.ComponentOverride{{
			Component: slack.ID,
			Values:    models.Values{slack.Properties[1].Identity(): "https://hooks"},
		}},
	}

	snap, err := f.projector.BuildSubscriber(context.Background(), bot, sub)
	require.NoError(t, err)
	assert.Equal(t, []string{"slack"}, snap.Channels.Keys())
	ch, _ := snap.Channels.Get("slack")
	assert.Equal(t, []models.Pair[string]{
		{Key: "workspace", Value: "acme"},
		{Key: "webhook", Value: "https://hooks"},
	}, ch.Pairs())
	assert.Empty(t, snap.Services)
}

func TestProjectBotCoversEverySubscriber(t *testing.T) {
	f := newFixture(t)
	bot := f.store.SeedBot(testutil.Bot(f.owner.ID, f.engine.ID, "helper"))
	for _, name := range []string{"ann", "bob", "cid"} {
		u := f.store.Users.Add(name)
		f.store.SeedSubscription(&models.Subscription{UserID: u.ID, BotID: bot.ID, SubscriptionType: models.SubscriptionFree})
	}

	require.NoError(t, f.projector.ProjectBot(context.Background(), bot))
	assert.Equal(t, 3, f.store.Snapshots.SubscriberCount())
	_, err := f.store.Snapshots.GetEngine(context.Background(), bot.ID)
	assert.NoError(t, err)
	assert.Len(t, f.events.Events(), 4)
}

func TestIntegrityFaults(t *testing.T) {
	ctx := context.Background()

	t.Run("missing engine component", func(t *testing.T) {
		f := newFixture(t)
		bot := f.store.SeedBot(testutil.Bot(f.owner.ID, primitive.NewObjectID(), "helper"))

		err := f.projector.ProjectEngine(ctx, bot)
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperr.ErrIntegrity))
		_, err = f.store.Snapshots.GetEngine(ctx, bot.ID)
		assert.Error(t, err)
		assert.Empty(t, f.events.Events())
	})

	t.Run("missing owner", func(t *testing.T) {
		f := newFixture(t)
		ghost := primitive.NewObjectID()
		bot := f.store.SeedBot(testutil.Bot(ghost, f.engine.ID, "helper"))

		err := f.projector.ProjectEngine(ctx, bot)
		assert.Equal(t, apperr.KindIntegrity, apperr.KindOf(err))
	})

	t.Run("missing service component", func(t *testing.T) {
		f := newFixture(t)
		subscriber := f.store.Users.Add("ann")
		bot := testutil.Bot(f.owner.ID, f.engine.ID, "helper")
		bot.Services = []models.ComponentReference{testutil.Ref(primitive.NewObjectID(), nil)}
		f.store.SeedBot(bot)
		sub := &models.Subscription{ID: primitive.NewObjectID(), UserID: subscriber.ID, BotID: bot.ID}

		err := f.projector.ProjectSubscriber(ctx, bot, sub)
		assert.Equal(t, apperr.KindIntegrity, apperr.KindOf(err))
		assert.Zero(t, f.store.Snapshots.SubscriberCount())
	})

	t.Run("missing subscriber", func(t *testing.T) {
		f := newFixture(t)
		bot := f.store.SeedBot(testutil.Bot(f.owner.ID, f.engine.ID, "helper"))
		sub := &models.Subscription{ID: primitive.NewObjectID(), UserID: primitive.NewObjectID(), BotID: bot.ID}

		err := f.projector.ProjectSubscriber(ctx, bot, sub)
		assert.Equal(t, apperr.KindIntegrity, apperr.KindOf(err))
	})
}

func TestSideChannelFailuresDoNotFailProjection(t *testing.T) {
	f := newFixture(t)
	f.events.Err = errors.New("redis down")
	f.cache.Err = errors.New("redis down")
	bot := f.store.SeedBot(testutil.Bot(f.owner.ID, f.engine.ID, "helper"))

	require.NoError(t, f.projector.ProjectEngine(context.Background(), bot))
	_, err := f.store.Snapshots.GetEngine(context.Background(), bot.ID)
	assert.NoError(t, err)
}

func TestRemoveSnapshots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bot := f.store.SeedBot(testutil.Bot(f.owner.ID, f.engine.ID, "helper"))
	ann := f.store.Users.Add("ann")
	f.store.SeedSubscription(&models.Subscription{UserID: ann.ID, BotID: bot.ID})
	require.NoError(t, f.projector.ProjectBot(ctx, bot))

	require.NoError(t, f.projector.RemoveSubscriber(ctx, bot, "ann"))
	require.NoError(t, f.projector.RemoveSubscribers(ctx, bot))
	require.NoError(t, f.projector.RemoveEngine(ctx, bot))
	// Removing again is harmless.
	require.NoError(t, f.projector.RemoveEngine(ctx, bot))

	assert.Zero(t, f.store.Snapshots.SubscriberCount())
	_, err := f.store.Snapshots.GetEngine(ctx, bot.ID)
	assert.Error(t, err)

	events := f.events.Events()
	require.GreaterOrEqual(t, len(events), 4)
	removed := events[len(events)-4:]
	for _, ev := range removed {
		assert.Equal(t, models.ActionDeleted, ev.Action)
		assert.Equal(t, "helper", ev.BotName)
	}
	assert.Equal(t, models.SnapshotSubscriber, removed[0].Kind)
	assert.Equal(t, "ann", removed[0].PublisherName)
	assert.Equal(t, models.SnapshotSubscriber, removed[1].Kind)
	assert.Empty(t, removed[1].PublisherName)
	assert.Equal(t, models.SnapshotEngine, removed[2].Kind)
}
