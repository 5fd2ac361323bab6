package routes

import (
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"greenhouse/bots"
	"greenhouse/components"
	"greenhouse/metrics"
	"greenhouse/middleware"
	"greenhouse/ratelim"
	"greenhouse/reviews"
	"greenhouse/runtimefeed"
	"greenhouse/snapshots"
	"greenhouse/subscriptions"
	"greenhouse/utils"
)

// Handlers groups the HTTP handlers of every feature.
type Handlers struct {
	Components    *components.Handler
	Bots          *bots.Handler
	Subscriptions *subscriptions.Handler
	Reviews       *reviews.Handler
	Runtime       *snapshots.Handler
	Feed          *runtimefeed.Hub
}

// Guards are the wrappers applied to routes.
type Guards struct {
	Auth    *middleware.Auth
	Limiter *ratelim.RateLimiter
	Timeout time.Duration
}

// open bounds a public handler by the request timeout.
func (g Guards) open(h httprouter.Handle) httprouter.Handle {
	return middleware.Timeout(g.Timeout)(h)
}

// user requires a valid token.
func (g Guards) user(h httprouter.Handle) httprouter.Handle {
	return g.Auth.Authenticate(g.open(h))
}

// write requires a valid token and is rate limited per client.
func (g Guards) write(h httprouter.Handle) httprouter.Handle {
	return g.Limiter.Limit(g.user(h))
}

func AddComponentRoutes(router *httprouter.Router, h *components.Handler, g Guards) {
	router.POST("/api/components", g.write(h.CreateComponent))
	router.PUT("/api/components/:id", g.write(h.UpdateComponent))
	router.DELETE("/api/components/:id", g.write(h.DeleteComponent))
	router.GET("/api/components", g.open(h.ListMarketplace))
	router.GET("/api/components/:id", g.open(h.GetComponent))
	router.GET("/api/components/:id/properties/:valueType", g.user(h.GetProperties))
	router.GET("/api/components-by-type/:componentType", g.open(h.ListByType))
	router.GET("/api/components-by-user/:username", g.open(h.ListByUser))
	router.GET("/api/components-lookup", g.open(h.LookupComponents))
}

func AddBotRoutes(router *httprouter.Router, h *bots.Handler, g Guards) {
	router.POST("/api/bots", g.write(h.CreateBot))
	router.PUT("/api/bots/:id", g.write(h.UpdateBot))
	router.DELETE("/api/bots/:id", g.write(h.DeleteBot))
	router.GET("/api/bots", g.open(h.ListMarketplace))
	router.GET("/api/bots/:id", g.open(h.GetBot))
	router.GET("/api/bots-by-user/:username", g.open(h.ListByUser))
}

func AddSubscriptionRoutes(router *httprouter.Router, h *subscriptions.Handler, g Guards) {
	router.POST("/api/bots/:id/subscribe", g.write(h.Subscribe))
	router.DELETE("/api/bots/:id/subscribe", g.write(h.Unsubscribe))
	router.GET("/api/bots/:id/subscription", g.user(h.GetSubscription))
}

func AddReviewsRoutes(router *httprouter.Router, h *reviews.Handler, g Guards) {
	router.GET("/api/reviews/:instanceType/:instanceId", g.user(h.GetReview))
	router.POST("/api/reviews/:instanceType/:instanceId", g.write(h.SaveReview))
	router.DELETE("/api/reviews/:instanceType/:instanceId", g.write(h.DeleteReview))
	router.GET("/api/reviews/:instanceType/:instanceId/list", g.open(h.ListReviews))
}

func AddRuntimeRoutes(router *httprouter.Router, h *snapshots.Handler, hub *runtimefeed.Hub, g Guards) {
	router.GET("/api/runtime/engines/:botId", g.user(h.GetEngine))
	router.GET("/api/runtime/subscribers/:botId/:username", g.user(h.GetSubscriber))
	// Feed connections outlive any request timeout.
	router.GET("/api/runtime/feed/:botName", g.Auth.Authenticate(runtimefeed.WebSocketHandler(hub)))
}

func AddUtilityRoutes(router *httprouter.Router) {
	router.GET("/health", Health)
	router.Handler(http.MethodGet, "/metrics", metrics.Handler())
}

// Health is a liveness probe.
func Health(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"status": "ok"})
}
