package utils

import (
	"net/http"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"greenhouse/globals"
	"greenhouse/models"
)

// ActorFromRequest returns the caller the auth middleware stored in the
// request context.
func ActorFromRequest(r *http.Request) (models.Actor, bool) {
	ctx := r.Context()
	raw, _ := ctx.Value(globals.UserIDKey).(string)
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return models.Actor{}, false
	}
	username, _ := ctx.Value(globals.UsernameKey).(string)
	return models.Actor{ID: id, Username: username}, true
}
