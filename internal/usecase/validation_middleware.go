package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fixora/pim/internal/domain"
	"github.com/fixora/pim/internal/logger"
)

// ValidationContext bundles everything a request validation needs
type ValidationContext struct {
	UserID         string                `json:"userId"`
	UserRole       domain.UserRole       `json:"userRole"`
	UserEmail      string                `json:"userEmail,omitempty"`
	ProductID      string                `json:"productId,omitempty"`
	Action         domain.WorkflowAction `json:"action,omitempty"`
	CurrentState   domain.WorkflowState  `json:"currentState,omitempty"`
	TargetState    domain.WorkflowState  `json:"targetState,omitempty"`
	Product        *domain.Product       `json:"product,omitempty"`
	RequireQuality bool                  `json:"requireQuality,omitempty"`
}

// ValidationMiddleware runs the ordered request checks: identity, role, permission,
// ownership, transition legality, structure and content quality.
type ValidationMiddleware struct {
	permissions  *domain.PermissionResolver
	stateManager *WorkflowStateManager
	quality      *QualityGate
	logger       logger.Logger
}

// NewValidationMiddleware creates a validation middleware
func NewValidationMiddleware(
	permissions *domain.PermissionResolver,
	stateManager *WorkflowStateManager,
	quality *QualityGate,
	log logger.Logger,
) *ValidationMiddleware {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &ValidationMiddleware{
		permissions:  permissions,
		stateManager: stateManager,
		quality:      quality,
		logger:       log,
	}
}

var ownerScopedActions = map[domain.WorkflowAction]bool{
	domain.ActionEdit:   true,
	domain.ActionDelete: true,
	domain.ActionSubmit: true,
}

var qualityGatedActions = map[domain.WorkflowAction]bool{
	domain.ActionApprove: true,
	domain.ActionPublish: true,
}

// Validate runs every check and never panics
func (v *ValidationMiddleware) Validate(ctx context.Context, vc ValidationContext) domain.ValidationResult {
	result, _ := v.run(ctx, vc)
	return result
}

// Check runs Validate and converts a failing outcome into a *ValidationError
func (v *ValidationMiddleware) Check(ctx context.Context, vc ValidationContext) error {
	result, cause := v.run(ctx, vc)
	if result.IsValid {
		return nil
	}
	return &ValidationError{Cause: cause, Result: result}
}

func (v *ValidationMiddleware) run(ctx context.Context, vc ValidationContext) (result domain.ValidationResult, cause error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = domain.NewValidationResult()
			result.AddError(fmt.Sprintf("Validation middleware error: %v", r))
			cause = domain.ErrValidationFailed
			v.logger.Error(ctx, "Validation middleware recovered from panic", nil, map[string]interface{}{
				"panic":   fmt.Sprint(r),
				"user_id": vc.UserID,
				"action":  vc.Action,
			})
		}
		v.logger.Debug(ctx, "Validation completed", map[string]interface{}{
			"user_id":     vc.UserID,
			"user_role":   vc.UserRole,
			"action":      vc.Action,
			"product_id":  vc.ProductID,
			"is_valid":    result.IsValid,
			"errors":      len(result.Errors),
			"warnings":    len(result.Warnings),
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}()

	result = domain.NewValidationResult()

	// 1. identity
	if strings.TrimSpace(vc.UserID) == "" {
		result.AddError("User ID is required")
	}
	if vc.UserRole == "" {
		result.AddError("User role is required")
	}
	if !result.IsValid {
		return result, domain.ErrUnauthenticated
	}

	// 2. role
	if !vc.UserRole.IsValid() {
		result.AddError(fmt.Sprintf("Invalid user role: %s", vc.UserRole))
		return result, domain.ErrInvalidRole
	}

	// 3. permission
	if vc.Action != "" && !v.permissions.HasPermission(vc.UserRole, vc.Action) {
		result.AddError(fmt.Sprintf("Insufficient permissions: role %s cannot perform %s", vc.UserRole, vc.Action))
		logger.LogSecurityEvent(ctx, v.logger, "permission_denied", "MEDIUM", map[string]interface{}{
			"user_id":   vc.UserID,
			"user_role": vc.UserRole,
			"action":    vc.Action,
		})
		return result, domain.ErrPermissionDenied
	}

	cause = domain.ErrValidationFailed

	// 4. ownership
	if vc.Product != nil && ownerScopedActions[vc.Action] && vc.UserRole != domain.UserRoleAdmin &&
		vc.Product.SubmittedBy != vc.UserID {
		result.AddError(fmt.Sprintf("Only the product owner can perform %s on this product", vc.Action))
		cause = domain.ErrPermissionDenied
	}

	// 5. transition legality
	current := vc.CurrentState
	if current == "" && vc.Product != nil {
		current = vc.Product.WorkflowState
	}
	if vc.Action.IsTransition() || (vc.Action == domain.ActionEdit && current == domain.WorkflowStateRejected) {
		if msg := v.checkTransition(vc, current); msg != "" {
			result.AddError(msg)
			if cause == domain.ErrValidationFailed {
				cause = domain.ErrInvalidTransition
			}
		}
	}

	// 6. structure
	if vc.Product != nil {
		result.Merge(v.stateManager.ValidateProductState(vc.Product))
	}

	// 7. quality
	if vc.Product != nil && (qualityGatedActions[vc.Action] || vc.RequireQuality) {
		result.Merge(v.quality.Check(vc.Product))
	}

	return result, cause
}

func (v *ValidationMiddleware) checkTransition(vc ValidationContext, current domain.WorkflowState) string {
	if current == "" {
		return "Current state is required to validate a workflow transition"
	}
	target, ok := vc.Action.TargetState(current)
	if !ok {
		return fmt.Sprintf("Action %s is not a workflow transition from %s", vc.Action, current)
	}
	if vc.TargetState != "" && vc.TargetState != target {
		return fmt.Sprintf("Action %s leads to %s, not %s", vc.Action, target, vc.TargetState)
	}
	if !v.stateManager.CanPerformAction(vc.Action, current, vc.UserRole) {
		return fmt.Sprintf("Transition from %s to %s is not allowed for role %s", current, target, vc.UserRole)
	}
	return ""
}
