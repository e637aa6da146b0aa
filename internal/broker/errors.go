package broker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/dshauth/token"
)

// APIError represents a structured API error response
type APIError struct {
	Code    string `json:"error_code"`
	Message string `json:"error_message"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a structured error response
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIError{Code: code, Message: message})
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{
		"success": true,
		"data":    data,
	})
}

// writeUpstreamError maps a failed token fetch to a response. Platform
// answers are passed on as details since they carry no secrets.
func writeUpstreamError(w http.ResponseWriter, err error) {
	var invalid *token.InvalidClientIDError
	var call *token.DshCallError
	switch {
	case errors.As(err, &invalid):
		writeError(w, http.StatusBadRequest, "INVALID_CLIENT_ID", invalid.Error())
	case errors.As(err, &call):
		writeJSON(w, http.StatusBadGateway, APIError{
			Code:    "UPSTREAM_ERROR",
			Message: "DSH rejected the token request",
			Details: call.Error(),
		})
	case errors.Is(err, token.ErrMalformedToken):
		writeError(w, http.StatusBadGateway, "UPSTREAM_MALFORMED_TOKEN", "DSH returned an unreadable token")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT", "Timed out waiting for DSH")
	default:
		writeError(w, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "DSH could not be reached")
	}
}
