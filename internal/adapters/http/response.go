package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/application"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/contracts"
	"github.com/viralforge/mesh/services/commerce/M24-retail-ordering-service/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, contracts.SuccessResponse{Status: "success", Data: data})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, contracts.SuccessResponse{Status: "success", Message: message})
}

func writeError(w http.ResponseWriter, status int, payload contracts.ErrorPayload) {
	writeJSON(w, status, contracts.ErrorResponse{Status: "error", Error: payload})
}

// mapDomainError returns the status, code and client-facing message for err.
// Details are only set for a blocked approval, which carries the guard
// evaluation.
func mapDomainError(err error) (int, contracts.ErrorPayload) {
	if evaluation, ok := application.LimitEvaluationFrom(err); ok {
		return http.StatusConflict, contracts.ErrorPayload{Code: "LIMIT_EXCEEDED", Message: err.Error(), Details: evaluation}
	}
	status, code, message := http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status, code, message = http.StatusBadRequest, "VALIDATION_ERROR", err.Error()
	case errors.Is(err, domain.ErrIdempotencyRequired):
		status, code, message = http.StatusBadRequest, "IDEMPOTENCY_KEY_REQUIRED", err.Error()
	case errors.Is(err, domain.ErrUnauthorized):
		status, code, message = http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials"
	case errors.Is(err, domain.ErrForbidden):
		status, code, message = http.StatusForbidden, "FORBIDDEN", err.Error()
	case errors.Is(err, domain.ErrNotFound):
		status, code, message = http.StatusNotFound, "NOT_FOUND", err.Error()
	case errors.Is(err, domain.ErrLimitExceeded):
		status, code, message = http.StatusConflict, "LIMIT_EXCEEDED", err.Error()
	case errors.Is(err, domain.ErrIllegalTransition):
		status, code, message = http.StatusConflict, "ILLEGAL_TRANSITION", err.Error()
	case errors.Is(err, domain.ErrChangeInFlight):
		status, code, message = http.StatusConflict, "CHANGE_IN_FLIGHT", err.Error()
	case errors.Is(err, domain.ErrIdempotencyConflict):
		status, code, message = http.StatusConflict, "IDEMPOTENCY_CONFLICT", err.Error()
	case errors.Is(err, domain.ErrConflict):
		status, code, message = http.StatusConflict, "CONFLICT", err.Error()
	case errors.Is(err, domain.ErrInsufficientStock):
		status, code, message = http.StatusUnprocessableEntity, "INSUFFICIENT_STOCK", err.Error()
	case errors.Is(err, domain.ErrAllocationConflict):
		status, code, message = http.StatusUnprocessableEntity, "ALLOCATION_CONFLICT", err.Error()
	case errors.Is(err, domain.ErrDependencyUnavailable), errors.Is(err, domain.ErrStorageUnavailable):
		status, code, message = http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "service unavailable"
	}
	return status, contracts.ErrorPayload{Code: code, Message: message}
}
