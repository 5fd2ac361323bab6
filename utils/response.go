package utils

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"greenhouse/apperr"
)

// M is a shorthand for ad hoc JSON objects.
type M map[string]any

// RespondWithJSON sends data as a JSON response.
func RespondWithJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func RespondWithError(w http.ResponseWriter, code int, msg string) {
	RespondWithJSON(w, code, M{"error": msg})
}

// RespondWithAppError maps err onto its HTTP status and writes the error key
// and any field errors. Internal and integrity faults are logged and their
// detail is withheld from the client.
func RespondWithAppError(w http.ResponseWriter, log logrus.FieldLogger, err error) {
	status := apperr.HTTPStatus(err)
	body := M{"error": "internal_error"}

	var ae *apperr.Error
	if errors.As(err, &ae) {
		switch ae.Kind {
		case apperr.KindInternal, apperr.KindIntegrity:
		default:
			body["error"] = ae.Key
			if len(ae.Fields) > 0 {
				body["fields"] = ae.Fields
			}
		}
	}
	if status >= http.StatusInternalServerError {
		log.WithError(err).Error("request failed")
	}
	RespondWithJSON(w, status, body)
}
