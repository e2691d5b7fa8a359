// Package response writes JSON errors for the plain chi handlers that sit outside huma.
// Bodies have the same {code, message, details} shape as the API's error responses.
package response

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	domainerrors "github.com/darkscore/darkscore-server/internal/errors"
)

// Error writes err with the HTTP status of its code. Errors without a code
// are logged and answered with a generic 500.
func Error(w http.ResponseWriter, err error, logger *slog.Logger) {
	var domainErr *domainerrors.Error
	if !errors.As(err, &domainErr) {
		if logger != nil {
			logger.Error("Unhandled error", "error", err)
		}
		domainErr = domainerrors.Internal("internal server error")
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(domainErr.HTTPStatus())

	if err := json.NewEncoder(w).Encode(domainErr); err != nil && logger != nil {
		logger.Error("Failed to encode error response", "error", err)
	}
}
