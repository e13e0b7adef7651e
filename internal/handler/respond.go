// Package handler exposes the compliance workflow over a JSON HTTP API.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/siteguardhq/siteguard/internal/domain"
)

// errorBody is the JSON error envelope.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// respondJSON writes a JSON response with the given status.
func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			// The status line is already gone; nothing to do but note it.
			slog.Default().Error("failed to encode response", "error", err)
		}
	}
}

// respondError maps a domain error to an HTTP status and writes the JSON
// error envelope.
func respondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := domain.ErrorCode(err)
	message := domain.ErrorMessage(err)
	status := statusForCode(code)

	if status >= 500 {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "code", code, "error", err)
	} else {
		logger.Info("request rejected", "method", r.Method, "path", r.URL.Path, "code", code)
	}

	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	respondJSON(w, status, body)
}

// statusForCode maps domain error codes to HTTP status codes.
func statusForCode(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest
	case domain.ENOTFOUND:
		return http.StatusNotFound
	case domain.ECONFLICT:
		return http.StatusConflict
	case domain.ETIMEOUT:
		return http.StatusGatewayTimeout
	case domain.EUNAVAILABLE:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
