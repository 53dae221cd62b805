package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/felipet/lacoctelera-backend/internal/store"
	"github.com/felipet/lacoctelera-backend/internal/tokens"
	"github.com/felipet/lacoctelera-backend/internal/workflow"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string                `json:"error"`
	Message string                `json:"message,omitempty"`
	Fields  []workflow.FieldError `json:"fields,omitempty"`
}

// BaseHandler provides common functionality for all handlers
type BaseHandler struct{}

// respondWithJSON writes a JSON response
func (h *BaseHandler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"internal_error","message":"Failed to marshal response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// errorResponse maps an error onto a status code and response body
func errorResponse(err error) (int, ErrorResponse) {
	var verr *workflow.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, ErrorResponse{Error: "invalid_input", Message: "Invalid token request", Fields: verr.Fields}
	case errors.Is(err, workflow.ErrInvalidConfirmation):
		return http.StatusBadRequest, ErrorResponse{Error: "invalid_confirmation", Message: "The confirmation link is invalid or expired"}
	case errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest, ErrorResponse{Error: "invalid_input", Message: "Invalid input data"}
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Resource not found"}
	case errors.Is(err, store.ErrAlreadyExists):
		return http.StatusConflict, ErrorResponse{Error: "already_exists", Message: "Resource already exists"}
	case errors.Is(err, store.ErrAccountNotValidated), errors.Is(err, store.ErrAccountNotEnabled), errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict, ErrorResponse{Error: "conflict", Message: err.Error()}
	case errors.Is(err, store.ErrUnauthorized):
		return http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "Unauthorized"}
	case errors.Is(err, store.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, ErrorResponse{Error: "service_unavailable", Message: "Service temporarily unavailable"}
	case errors.Is(err, tokens.ErrIssuanceFailed):
		return http.StatusInternalServerError, ErrorResponse{Error: "issuance_failed", Message: "Unable to issue a token"}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "Internal server error"}
}

// respondWithError sends a standard error response
func (h *BaseHandler) respondWithError(w http.ResponseWriter, err error) {
	code, body := errorResponse(err)
	if code >= http.StatusInternalServerError {
		logging.Log.WithError(err).Error("Request failed")
	}
	if code == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	h.respondWithJSON(w, code, body)
}
