package bots

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

// CreateBot handles POST /api/bots
func (h *Handler) CreateBot(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	actor, ok := utils.ActorFromRequest(r)
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	var in models.Bot
	if err := utils.DecodeJSON(w, r, &in); err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	c, err := h.svc.Create(r.Context(), actor, &in)
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusCreated, utils.M{"saved": true, "id": c.ID})
}

// UpdateBot handles PUT /api/bots/:id
func (h *Handler) UpdateBot(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, ok := utils.ActorFromRequest(r)
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id, err := utils.ObjectIDParam(ps, "id")
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	var in models.Bot
	if err := utils.DecodeJSON(w, r, &in); err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	c, err := h.svc.Update(r.Context(), actor, id, &in)
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"saved": true, "id": c.ID})
}

// GetBot handles GET /api/bots/:id
func (h *Handler) GetBot(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := utils.ObjectIDParam(ps, "id")
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	c, err := h.svc.Get(r.Context(), id)
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, c)
}

// DeleteBot handles DELETE /api/bots/:id
func (h *Handler) DeleteBot(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, ok := utils.ActorFromRequest(r)
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id, err := utils.ObjectIDParam(ps, "id")
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	if err := h.svc.Delete(r.Context(), actor, id); err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"deleted": true})
}

// ListMarketplace handles GET /api/bots
func (h *Handler) ListMarketplace(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	page, err := h.svc.Marketplace(r.Context(), utils.ParseSearchFilter(r))
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, page)
}

// ListByUser handles GET /api/bots-by-user/:username
func (h *Handler) ListByUser(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	page, err := h.svc.ByUser(r.Context(), ps.ByName("username"), utils.ParseSearchFilter(r))
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, page)
}
