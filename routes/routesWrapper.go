package routes

import (
	"github.com/julienschmidt/httprouter"
)

// RoutesWrapper registers every route on router.
func RoutesWrapper(router *httprouter.Router, h Handlers, g Guards) {
	AddComponentRoutes(router, h.Components, g)
	AddBotRoutes(router, h.Bots, g)
	AddSubscriptionRoutes(router, h.Subscriptions, g)
	AddReviewsRoutes(router, h.Reviews, g)
	AddRuntimeRoutes(router, h.Runtime, h.Feed, g)
	AddUtilityRoutes(router)
}
