package subscriptions

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"

	"greenhouse/models"
	"greenhouse/utils"
)

type Handler struct {
	svc *Service
	log *logrus.Logger
}

func NewHandler(svc *Service, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Subscribe handles POST /api/bots/:id/subscribe
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, ok := utils.ActorFromRequest(r)
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	botID, err := utils.ObjectIDParam(ps, "id")
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	var in models.Subscription
	if r.ContentLength != 0 {
		if err := utils.DecodeJSON(w, r, &in); err != nil {
			utils.RespondWithAppError(w, h.log, err)
			return
		}
	}
	sub, err := h.svc.Subscribe(r.Context(), actor, botID, &in)
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, sub)
}

// Unsubscribe handles DELETE /api/bots/:id/subscribe
func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, ok := utils.ActorFromRequest(r)
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	botID, err := utils.ObjectIDParam(ps, "id")
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	if err := h.svc.Unsubscribe(r.Context(), actor, botID); err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"unsubscribed": true})
}

// GetSubscription handles GET /api/bots/:id/subscription
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, ok := utils.ActorFromRequest(r)
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	botID, err := utils.ObjectIDParam(ps, "id")
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	sub, err := h.svc.Get(r.Context(), actor, botID)
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, sub)
}
