package reviews_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"greenhouse/apperr"
	"greenhouse/logging"
	"greenhouse/models"
	"greenhouse/reviews"
	"greenhouse/testutil"
	"greenhouse/validation"
)

type env struct {
	store *testutil.Store
	svc   *reviews.Service
	bot   *models.Bot
	admin models.Actor
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := testutil.NewStore()
	svc := reviews.NewService(reviews.Deps{
		Reviews: store.Reviews,
		Users:   store.Users,
		Targets: map[models.InstanceType]reviews.Target{
			models.InstanceComponent: reviews.ComponentTarget(store.Components),
			models.InstanceBot:       reviews.BotTarget(store.Bots),
		},
		Validator:     validation.New(),
		AdminUsername: "Root",
		Log:           logging.Discard(),
	})
	dev := store.Users.Add("dev")
	engine := store.SeedComponent(testutil.Component(dev.ID, models.ComponentBotEngine, "gpt"))
	bot := store.SeedBot(testutil.Bot(dev.ID, engine.ID, "helper"))
	root := store.Users.Add("root")
	return &env{store: store, svc: svc, bot: bot, admin: models.Actor{ID: root.ID}}
}

func (e *env) rate(t *testing.T, username string, rating int) models.Actor {
	t.Helper()
	u := e.store.Users.Add(username)
	actor := models.Actor{ID: u.ID, Username: username}
	_, err := e.svc.Save(context.Background(), actor, "bot", e.bot.ID, &models.Review{Rating: rating, Comments: "ok"})
	require.NoError(t, err)
	return actor
}

func TestSaveAggregatesRating(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.rate(t, "ann", 3)
	e.rate(t, "bob", 4)
	cat := e.rate(t, "cat", 1)

	// A second save by the same user replaces the first.
	res, err := e.svc.Save(ctx, cat, "bot", e.bot.ID, &models.Review{Rating: 5, Comments: "better now"})
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.Count)
	assert.InDelta(t, 4.0, res.Average, 1e-9)
	assert.Equal(t, "better now", res.Review.Comments)

	bot, err := e.store.Bots.FindByID(ctx, e.bot.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, bot.ReviewsCount)
	assert.InDelta(t, 4.0, bot.AverageRating, 1e-9)

	own, err := e.svc.Find(ctx, cat, "bot", e.bot.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, own.Rating)
}

func TestSaveRejectsBadTargets(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	actor := models.Actor{ID: primitive.NewObjectID()}

	_, err := e.svc.Save(ctx, actor, "farm", e.bot.ID, &models.Review{Rating: 1, Comments: "x"})
	assert.True(t, errors.Is(err, apperr.ErrInvalidInstanceType))

	_, err = e.svc.Save(ctx, actor, "component", e.bot.ID, &models.Review{Rating: 1, Comments: "x"})
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, apperr.KindNotFound, ae.Kind)
	assert.Equal(t, "domain.review.validation.instance_not_found", ae.Key)

	_, err = e.svc.Save(ctx, actor, "bot", e.bot.ID, &models.Review{Rating: 9})
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	assert.Contains(t, ae.Fields, "rating")
	assert.Contains(t, ae.Fields, "comments")
}

func TestDeleteIsAdminOnly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ann := e.rate(t, "ann", 2)
	e.rate(t, "bob", 4)

	_, err := e.svc.Delete(ctx, ann, "bot", e.bot.ID, ann.ID)
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	rating, err := e.svc.Delete(ctx, e.admin, "bot", e.bot.ID, ann.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rating.Count)
	assert.InDelta(t, 4.0, rating.Average, 1e-9)

	_, err = e.svc.Delete(ctx, e.admin, "bot", e.bot.ID, ann.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	_, err = e.svc.Find(ctx, ann, "bot", e.bot.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestDeleteLastReviewZeroesRating(t *testing.T) {
	e := newEnv(t)
	ann := e.rate(t, "ann", 5)

	rating, err := e.svc.Delete(context.Background(), models.Actor{ID: e.admin.ID, Username: "ROOT"}, "bot", e.bot.ID, ann.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Rating{}, rating)

	bot, err := e.store.Bots.FindByID(context.Background(), e.bot.ID)
	require.NoError(t, err)
	assert.Zero(t, bot.ReviewsCount)
	assert.Zero(t, bot.AverageRating)
}

func TestListNewestFirst(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"ann", "bob", "cat"} {
		u := e.store.Users.Add(name)
		require.NoError(t, e.store.Reviews.Upsert(ctx, &models.Review{
			ID:           primitive.NewObjectID(),
			InstanceType: models.InstanceBot,
			InstanceID:   e.bot.ID,
			UserID:       u.ID,
			Rating:       i + 1,
			Comments:     name,
			UpdatedAt:    base.Add(time.Duration(i) * time.Hour),
		}))
	}

	page, err := e.svc.List(ctx, "bot", e.bot.ID, 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.ResultsCount)
	assert.Equal(t, 2, page.PagesCount)
	require.Len(t, page.Results, 2)
	assert.Equal(t, "cat", page.Results[0].Comments)
	require.NotNil(t, page.Results[0].Owner)
	assert.Equal(t, "cat", page.Results[0].Owner.Username)
}

func TestListHandler(t *testing.T) {
	e := newEnv(t)
	e.rate(t, "ann", 4)

	router := httprouter.New()
	router.GET("/api/reviews/:instanceType/:instanceId/list", reviews.NewHandler(e.svc, logging.Discard()).ListReviews)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reviews/bot/"+e.bot.ID.Hex()+"/list", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"resultsCount":1`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reviews/farm/"+e.bot.ID.Hex()+"/list", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
