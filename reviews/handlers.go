package reviews

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"greenhouse/apperr"
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

// GetReview handles GET /api/reviews/:instanceType/:instanceId and returns
// the caller's own review.
func (h *Handler) GetReview(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, ok := utils.ActorFromRequest(r)
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id, err := utils.ObjectIDParam(ps, "instanceId")
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	rv, err := h.svc.Find(r.Context(), actor, ps.ByName("instanceType"), id)
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, rv)
}

// SaveReview handles POST /api/reviews/:instanceType/:instanceId
func (h *Handler) SaveReview(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, ok := utils.ActorFromRequest(r)
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id, err := utils.ObjectIDParam(ps, "instanceId")
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	var in models.Review
	if err := utils.DecodeJSON(w, r, &in); err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	res, err := h.svc.Save(r.Context(), actor, ps.ByName("instanceType"), id, &in)
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, res)
}

// DeleteReview handles DELETE /api/reviews/:instanceType/:instanceId?user=<id>
func (h *Handler) DeleteReview(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, ok := utils.ActorFromRequest(r)
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	id, err := utils.ObjectIDParam(ps, "instanceId")
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	userID, err := primitive.ObjectIDFromHex(r.URL.Query().Get("user"))
	if err != nil {
		utils.RespondWithAppError(w, h.log, apperr.Field("user", "validation.invalid_id"))
		return
	}
	rating, err := h.svc.Delete(r.Context(), actor, ps.ByName("instanceType"), id, userID)
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, rating)
}

// ListReviews handles GET /api/reviews/:instanceType/:instanceId/list
func (h *Handler) ListReviews(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, err := utils.ObjectIDParam(ps, "instanceId")
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	page, pageSize := utils.ParsePage(r)
	res, err := h.svc.List(r.Context(), ps.ByName("instanceType"), id, page, pageSize)
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, res)
}
