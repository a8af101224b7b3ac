package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User represents an account that acts on products
type User struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenantId,omitempty"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// NewUser creates an active user
func NewUser(tenantID, email, name, passwordHash string, role UserRole) *User {
	now := time.Now().UTC()
	return &User{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		Email:        strings.ToLower(strings.TrimSpace(email)),
		Name:         strings.TrimSpace(name),
		PasswordHash: passwordHash,
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// CanReview reports whether the user may be assigned as a product reviewer
func (u *User) CanReview() bool {
	return u.Active && (u.Role == UserRoleReviewer || u.Role == UserRoleAdmin)
}

// UserFilter represents filters for listing users
type UserFilter struct {
	TenantID string    `json:"tenantId,omitempty"`
	Role     *UserRole `json:"role,omitempty"`
	Active   *bool     `json:"active,omitempty"`
	Limit    int       `json:"limit"`
	Offset   int       `json:"offset"`
}

// Matches reports whether the user satisfies every set criterion
func (f UserFilter) Matches(u *User) bool {
	if f.TenantID != "" && u.TenantID != f.TenantID {
		return false
	}
	if f.Role != nil && u.Role != *f.Role {
		return false
	}
	if f.Active != nil && u.Active != *f.Active {
		return false
	}
	return true
}

// Actor identifies who performs an operation
type Actor struct {
	UserID   string   `json:"userId"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	TenantID string   `json:"tenantId,omitempty"`
}

// ValidationResult is the outcome of a validation pass
type ValidationResult struct {
	IsValid  bool     `json:"isValid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// NewValidationResult returns an empty valid result
func NewValidationResult() ValidationResult {
	return ValidationResult{IsValid: true, Errors: []string{}, Warnings: []string{}}
}

// AddError records an error and marks the result invalid
func (r *ValidationResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.IsValid = false
}

// AddWarning records a warning without affecting validity
func (r *ValidationResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Merge folds other into r
func (r *ValidationResult) Merge(other ValidationResult) {
	for _, e := range other.Errors {
		r.AddError(e)
	}
	r.Warnings = append(r.Warnings, other.Warnings...)
}
