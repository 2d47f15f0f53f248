package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	apperrors "github.com/runnerr0/browsedash/internal/errors"
)

type errorBody struct {
	Error   string `json:"error"`
	Detail  string `json:"detail,omitempty"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && logger != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string, logger *slog.Logger) {
	writeJSON(w, status, errorBody{Error: message}, logger)
}

// writeAppError writes err with the status of its code. The coded message
// becomes "error" and a wrapped cause becomes "detail". Uncoded errors are
// reported as 500 "Internal error".
func writeAppError(w http.ResponseWriter, err error, logger *slog.Logger) {
	body := errorBody{Error: "Internal error", Detail: err.Error()}
	var coded *apperrors.Error
	if apperrors.As(err, &coded) {
		body = errorBody{Error: coded.Message, Details: coded.Details}
		if cause := coded.Unwrap(); cause != nil {
			body.Detail = cause.Error()
		}
	}
	writeJSON(w, apperrors.StatusOf(err), body, logger)
}
