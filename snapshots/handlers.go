package snapshots

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"

	"greenhouse/utils"
)

// Handler exposes the runtime read endpoints.
type Handler struct {
	reader *Reader
	log    *logrus.Logger
}

func NewHandler(reader *Reader, log *logrus.Logger) *Handler {
	return &Handler{reader: reader, log: log}
}

// GetEngine handles GET /api/runtime/engines/:botId. Only the bot owner may
// read it.
func (h *Handler) GetEngine(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, ok := utils.ActorFromRequest(r)
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	botID, err := utils.ObjectIDParam(ps, "botId")
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	s, err := h.reader.EngineFor(r.Context(), actor, botID)
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, s)
}

// GetSubscriber handles GET /api/runtime/subscribers/:botId/:username for the
// subscriber and the bot owner.
func (h *Handler) GetSubscriber(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, ok := utils.ActorFromRequest(r)
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	botID, err := utils.ObjectIDParam(ps, "botId")
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	s, err := h.reader.SubscriberFor(r.Context(), actor, botID, ps.ByName("username"))
	if err != nil {
		utils.RespondWithAppError(w, h.log, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, s)
}
