package components

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

// CreateComponent handles POST /api/components
func (h *Handler) CreateComponent(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	actor, ok := utils.ActorFromRequest(r)
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	in := models.NewComponentInput()
	if err := utils.DecodeJSON(w, r, in); err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	c, err := h.svc.Create(r.Context(), actor, in)
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusCreated, utils.M{"saved": true, "id": c.ID})
}

// UpdateComponent handles PUT /api/components/:id
func (h *Handler) UpdateComponent(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
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
	in := models.NewComponentInput()
	if err := utils.DecodeJSON(w, r, in); err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	c, err := h.svc.Update(r.Context(), actor, id, in)
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"saved": true, "id": c.ID})
}

// GetComponent handles GET /api/components/:id
func (h *Handler) GetComponent(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
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

// DeleteComponent handles DELETE /api/components/:id
func (h *Handler) DeleteComponent(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
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

// GetProperties handles GET /api/components/:id/properties/:valueType
func (h *Handler) GetProperties(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := utils.ObjectIDParam(ps, "id")
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	source := models.ValueSource(ps.ByName("valueType"))
	if source == models.SourceFixed {
		utils.RespondWithError(w, http.StatusNotFound, "Not found")
		return
	}
	data, err := h.svc.PropertiesFor(r.Context(), id, source)
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, data)
}

// LookupComponents handles GET /api/components-lookup?ids=a,b
func (h *Handler) LookupComponents(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ids, err := utils.ObjectIDList(r.URL.Query().Get("ids"))
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	data, err := h.svc.Lookup(r.Context(), ids)
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, data)
}

// ListMarketplace handles GET /api/components
func (h *Handler) ListMarketplace(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	page, err := h.svc.Marketplace(r.Context(), utils.ParseSearchFilter(r))
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, page)
}

// ListByType handles GET /api/components-by-type/:componentType
func (h *Handler) ListByType(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	page, err := h.svc.ByType(r.Context(), ps.ByName("componentType"), utils.ParseSearchFilter(r))
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, page)
}

// ListByUser handles GET /api/components-by-user/:username
func (h *Handler) ListByUser(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	page, err := h.svc.ByUser(r.Context(), ps.ByName("username"), utils.ParseSearchFilter(r))
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, page)
}
