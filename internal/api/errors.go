package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/studio-suggest/internal/apperr"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error  string   `json:"error"`
	Kind   string   `json:"kind"`
	Fields []string `json:"fields,omitempty"`
	Retry  bool     `json:"retry,omitempty"`
}

// statusFor maps the engine's error taxonomy onto HTTP.
func statusFor(err error) int {
	switch {
	case apperr.IsValidation(err):
		return http.StatusUnprocessableEntity
	case apperr.IsNotFound(err):
		return http.StatusNotFound
	case apperr.IsConflict(err), apperr.IsConcurrency(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{
		Error: err.Error(),
		Kind:  apperr.Kind(err),
		Retry: apperr.IsConcurrency(err),
	}
	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		body.Fields = ve.Fields
	}
	if status == http.StatusInternalServerError {
		zap.L().Error("api: request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		// Storage details stay in the log.
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}

// badRequest reports a body that could not be decoded.
func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Kind: "bad_request"})
}
