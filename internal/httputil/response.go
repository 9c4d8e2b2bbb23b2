// Package httputil writes the JSON bodies shared by handlers and middleware.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/erpcore/erp/internal/apperror"
	"github.com/sirupsen/logrus"
)

type ErrorResponse struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func RespondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// RespondWithError maps err to its status and writes {message, details}.
// Internal failures are logged here and reach the client without detail.
func RespondWithError(w http.ResponseWriter, logger *logrus.Logger, err error) {
	kind := apperror.KindOf(err)
	status := kind.HTTPStatus()

	if status >= http.StatusInternalServerError {
		logger.WithError(err).Error("Request failed")
	}

	RespondWithJSON(w, status, ErrorResponse{
		Message: kind.String(),
		Details: apperror.DetailOf(err),
	})
}
