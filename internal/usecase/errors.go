package usecase

import (
	"fmt"
	"strings"

	"github.com/fixora/pim/internal/domain"
)

// ValidationError carries an itemized validation outcome. It unwraps to the domain error
// describing which kind of check failed.
type ValidationError struct {
	Cause  error
	Result domain.ValidationResult
}

func (e *ValidationError) Error() string {
	if len(e.Result.Errors) == 0 {
		return e.Cause.Error()
	}
	return fmt.Sprintf("%s: %s", e.Cause, strings.Join(e.Result.Errors, "; "))
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

func newValidationError(cause error, errs ...string) *ValidationError {
	result := domain.NewValidationResult()
	for _, msg := range errs {
		result.AddError(msg)
	}
	return &ValidationError{Cause: cause, Result: result}
}
