package error

import (
	"errors"
	"net/http"

	"github.com/fixora/pim/internal/domain"
)

type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (e *AppError) Error() string {
	return e.Message
}

var (
	ErrBadRequest     = &AppError{Code: "BAD_REQUEST", Message: "Bad request", Status: http.StatusBadRequest}
	ErrUnauthorized   = &AppError{Code: "UNAUTHORIZED", Message: "Unauthorized", Status: http.StatusUnauthorized}
	ErrForbidden      = &AppError{Code: "FORBIDDEN", Message: "Forbidden", Status: http.StatusForbidden}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Not found", Status: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "Internal server error", Status: http.StatusInternalServerError}
	ErrConflict       = &AppError{Code: "CONFLICT", Message: "Conflict", Status: http.StatusConflict}
)

func NewBadRequest(message string) *AppError {
	return &AppError{Code: "BAD_REQUEST", Message: message, Status: http.StatusBadRequest}
}

func NewUnauthorized(message string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Message: message, Status: http.StatusUnauthorized}
}

func NewForbidden(message string) *AppError {
	return &AppError{Code: "FORBIDDEN", Message: message, Status: http.StatusForbidden}
}

func NewNotFound(message string) *AppError {
	return &AppError{Code: "NOT_FOUND", Message: message, Status: http.StatusNotFound}
}

func NewInternalServer(message string) *AppError {
	return &AppError{Code: "INTERNAL_ERROR", Message: message, Status: http.StatusInternalServerError}
}

func NewConflict(message string) *AppError {
	return &AppError{Code: "CONFLICT", Message: message, Status: http.StatusConflict}
}

func newAppError(code string, status int, err *domain.DomainError) *AppError {
	return &AppError{Code: code, Message: err.Message, Status: status}
}

// domainMappings is checked in order; the first match wins
var domainMappings = []struct {
	err    *domain.DomainError
	code   string
	status int
}{
	{domain.ErrUnauthenticated, "UNAUTHORIZED", http.StatusUnauthorized},
	{domain.ErrInvalidCredentials, "UNAUTHORIZED", http.StatusUnauthorized},
	{domain.ErrPermissionDenied, "FORBIDDEN", http.StatusForbidden},
	{domain.ErrCannotChangeOwnRole, "FORBIDDEN", http.StatusForbidden},
	{domain.ErrProductNotFound, "NOT_FOUND", http.StatusNotFound},
	{domain.ErrUserNotFound, "NOT_FOUND", http.StatusNotFound},
	{domain.ErrAuditEntryNotFound, "NOT_FOUND", http.StatusNotFound},
	{domain.ErrProductExists, "CONFLICT", http.StatusConflict},
	{domain.ErrDuplicateSKU, "CONFLICT", http.StatusConflict},
	{domain.ErrUserExists, "CONFLICT", http.StatusConflict},
	{domain.ErrAuditEntryExists, "CONFLICT", http.StatusConflict},
	{domain.ErrProductNotEditable, "CONFLICT", http.StatusConflict},
	{domain.ErrConcurrentUpdate, "CONFLICT", http.StatusConflict},
	{domain.ErrInvalidTransition, "INVALID_TRANSITION", http.StatusUnprocessableEntity},
	{domain.ErrReadOnlyMode, "READ_ONLY", http.StatusServiceUnavailable},
	{domain.ErrRateLimited, "RATE_LIMITED", http.StatusTooManyRequests},
	{domain.ErrValidationFailed, "VALIDATION_FAILED", http.StatusBadRequest},
	{domain.ErrInvalidReviewer, "BAD_REQUEST", http.StatusBadRequest},
	{domain.ErrInvalidRole, "BAD_REQUEST", http.StatusBadRequest},
	{domain.ErrInvalidEmail, "BAD_REQUEST", http.StatusBadRequest},
	{domain.ErrUnsupportedFormat, "BAD_REQUEST", http.StatusBadRequest},
	{domain.ErrInvalidDateRange, "BAD_REQUEST", http.StatusBadRequest},
	{domain.ErrInvalidRetention, "BAD_REQUEST", http.StatusBadRequest},
	{domain.ErrNothingToUpdate, "BAD_REQUEST", http.StatusBadRequest},
}

// MapError converts any error into an AppError. Unknown errors become a generic 500 so
// internal details never reach the client.
func MapError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	for _, m := range domainMappings {
		if errors.Is(err, m.err) {
			return newAppError(m.code, m.status, m.err)
		}
	}
	return NewInternalServer("An unexpected error occurred")
}

// GetHTTPStatusCode returns the HTTP status MapError would assign to err
func GetHTTPStatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return MapError(err).Status
}
