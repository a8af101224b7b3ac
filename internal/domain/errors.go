package domain

// DomainError represents a domain-specific error
type DomainError struct {
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

func NewDomainError(message string) *DomainError {
	return &DomainError{Message: message}
}

// Custom errors
var (
	ErrProductNotFound     = NewDomainError("product not found")
	ErrProductExists       = NewDomainError("product already exists")
	ErrDuplicateSKU        = NewDomainError("sku already in use")
	ErrConcurrentUpdate    = NewDomainError("product was modified by another request")
	ErrUserNotFound        = NewDomainError("user not found")
	ErrUserExists          = NewDomainError("user already exists")
	ErrAuditEntryNotFound  = NewDomainError("audit entry not found")
	ErrAuditEntryExists    = NewDomainError("audit entry already exists")
	ErrReadOnlyMode        = NewDomainError("audit trail is in read-only mode")
	ErrInvalidTransition   = NewDomainError("invalid state transition")
	ErrPermissionDenied    = NewDomainError("permission denied")
	ErrValidationFailed    = NewDomainError("validation failed")
	ErrInvalidReviewer     = NewDomainError("invalid reviewer")
	ErrInvalidRole         = NewDomainError("invalid role")
	ErrUnsupportedFormat   = NewDomainError("unsupported export format")
	ErrInvalidDateRange    = NewDomainError("invalid date range")
	ErrInvalidRetention    = NewDomainError("retention days must be positive")
	ErrUnauthenticated     = NewDomainError("authentication required")
	ErrRateLimited         = NewDomainError("rate limit exceeded")
	ErrNothingToUpdate     = NewDomainError("no fields to update")
	ErrProductNotEditable  = NewDomainError("product cannot be edited in its current state")
	ErrCannotChangeOwnRole = NewDomainError("users cannot change their own role")
	ErrInvalidCredentials  = NewDomainError("invalid email or password")
	ErrInvalidEmail        = NewDomainError("invalid email format")
)
