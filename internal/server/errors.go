package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fraudflow-dev/fraudflow/internal/pipeline"
	"github.com/fraudflow-dev/fraudflow/internal/provider"
)

// AppError is an application-level error rendered as a structured
// response at the HTTP boundary.
type AppError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

// NewAppError creates a boundary error.
func NewAppError(status int, code, message string) *AppError {
	return &AppError{Status: status, Code: code, Message: message}
}

// toAppError maps internal failures onto boundary errors.
func toAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var ve *pipeline.ValidationError
	if errors.As(err, &ve) {
		return NewAppError(http.StatusBadRequest, "validation_error", ve.Error())
	}

	var pe *provider.Error
	if errors.As(err, &pe) {
		return NewAppError(http.StatusBadGateway, "upstream_error", pe.Error())
	}

	return NewAppError(http.StatusInternalServerError, "internal_error", "An error occurred")
}

type errorEnvelope struct {
	Error errorDetail `json:"error"`
	Meta  errorMeta   `json:"meta"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorMeta struct {
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := toAppError(err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Error: errorDetail{Code: appErr.Code, Message: appErr.Message},
		Meta:  errorMeta{RequestID: RequestID(r.Context()), Timestamp: time.Now().UTC()},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
