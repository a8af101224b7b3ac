package usecase

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fixora/pim/internal/domain"
)

// TransitionRequest asks for a product to move along the workflow
type TransitionRequest struct {
	ProductID string                `json:"productId"`
	Action    domain.WorkflowAction `json:"action"`
	FromState domain.WorkflowState  `json:"fromState,omitempty"`
	ToState   domain.WorkflowState  `json:"toState,omitempty"`
	UserID    string                `json:"userId"`
	UserRole  domain.UserRole       `json:"userRole"`
	UserEmail string                `json:"userEmail,omitempty"`
	Reason    string                `json:"reason,omitempty"`
}

// TransitionEvent describes a completed transition for the caller to persist and audit
type TransitionEvent struct {
	ProductID string                `json:"productId"`
	Action    domain.WorkflowAction `json:"action"`
	FromState domain.WorkflowState  `json:"fromState"`
	ToState   domain.WorkflowState  `json:"toState"`
	UserID    string                `json:"userId"`
	UserRole  domain.UserRole       `json:"userRole"`
	UserEmail string                `json:"userEmail,omitempty"`
	Reason    string                `json:"reason,omitempty"`
	Automatic bool                  `json:"automatic"`
	Timestamp time.Time             `json:"timestamp"`
}

// TransitionResult is the outcome of ExecuteStateTransition
type TransitionResult struct {
	Success  bool                 `json:"success"`
	NewState domain.WorkflowState `json:"newState,omitempty"`
	Errors   []string             `json:"errors"`
	Event    *TransitionEvent     `json:"event,omitempty"`
}

// WorkflowStateManager enforces the transition rule table
type WorkflowStateManager struct {
	rules       []domain.TransitionRule
	permissions *domain.PermissionResolver
	now         func() time.Time
}

// NewWorkflowStateManager creates a manager over rules. Nil rules or resolver fall back to
// the defaults.
func NewWorkflowStateManager(rules []domain.TransitionRule, permissions *domain.PermissionResolver) *WorkflowStateManager {
	if rules == nil {
		rules = domain.DefaultTransitionRules()
	}
	if permissions == nil {
		permissions = domain.NewPermissionResolver(nil, nil)
	}
	return &WorkflowStateManager{
		rules:       append([]domain.TransitionRule(nil), rules...),
		permissions: permissions,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Rules returns a copy of the rule table
func (m *WorkflowStateManager) Rules() []domain.TransitionRule {
	return append([]domain.TransitionRule(nil), m.rules...)
}

// FindRule returns the rule for (from, to, role), if any
func (m *WorkflowStateManager) FindRule(from, to domain.WorkflowState, role domain.UserRole) (domain.TransitionRule, bool) {
	for _, r := range m.rules {
		if r.From == from && r.To == to && r.RequiredRole == role {
			return r, true
		}
	}
	return domain.TransitionRule{}, false
}

// CanPerformAction reports whether a rule lets role request action on a product in current.
// Actions that are not transitions from current yield false.
func (m *WorkflowStateManager) CanPerformAction(action domain.WorkflowAction, current domain.WorkflowState, role domain.UserRole) bool {
	target, ok := action.TargetState(current)
	if !ok {
		return false
	}
	_, found := m.FindRule(current, target, role)
	return found
}

// AvailableActions lists the manual transitions role may request from state, in rule order
func (m *WorkflowStateManager) AvailableActions(state domain.WorkflowState, role domain.UserRole) []domain.WorkflowAction {
	actions := []domain.WorkflowAction{}
	seen := make(map[domain.WorkflowAction]bool)
	for _, r := range m.rules {
		if r.From != state || r.RequiredRole != role || r.IsAutomatic {
			continue
		}
		action, ok := domain.ActionFor(r.From, r.To)
		if !ok || seen[action] {
			continue
		}
		seen[action] = true
		actions = append(actions, action)
	}
	return actions
}

// ExecuteStateTransition validates req against the rule table and, when every check passes,
// moves product to the target state. On failure the product is left untouched.
func (m *WorkflowStateManager) ExecuteStateTransition(req TransitionRequest, product *domain.Product) TransitionResult {
	result := TransitionResult{Errors: []string{}}

	if product == nil {
		result.Errors = append(result.Errors, "Product is required")
		return result
	}
	if req.Action == "" {
		result.Errors = append(result.Errors, "Action is required")
	}
	if !req.UserRole.IsValid() {
		result.Errors = append(result.Errors, fmt.Sprintf("Invalid user role: %s", req.UserRole))
	}
	if req.ProductID != "" && req.ProductID != product.ID {
		result.Errors = append(result.Errors, fmt.Sprintf("Request targets product %s but %s was supplied", req.ProductID, product.ID))
	}

	current := product.WorkflowState
	if req.FromState != "" && req.FromState != current {
		result.Errors = append(result.Errors, fmt.Sprintf("Product is in state %s, not %s", current, req.FromState))
	}
	if len(result.Errors) > 0 {
		return result
	}

	target, ok := req.Action.TargetState(current)
	if !ok {
		result.Errors = append(result.Errors, fmt.Sprintf("Action %s is not a workflow transition from %s", req.Action, current))
		return result
	}
	if req.ToState != "" && req.ToState != target {
		result.Errors = append(result.Errors, fmt.Sprintf("Action %s leads to %s, not %s", req.Action, target, req.ToState))
		return result
	}

	if !m.CanPerformAction(req.Action, current, req.UserRole) {
		result.Errors = append(result.Errors, fmt.Sprintf("Transition from %s to %s is not allowed for role %s", current, target, req.UserRole))
		return result
	}
	rule, _ := m.FindRule(current, target, req.UserRole)

	if !m.permissions.HasAllPermissions(req.UserRole, rule.RequiredPermissions) {
		result.Errors = append(result.Errors, fmt.Sprintf("Role %s lacks required permissions: %s",
			req.UserRole, strings.Join(rule.RequiredPermissions, ", ")))
	}
	result.Errors = append(result.Errors, m.checkConditions(rule, req, product)...)
	if len(result.Errors) > 0 {
		return result
	}

	now := m.now()
	product.WorkflowState = target
	product.UpdatedAt = now
	switch {
	case target == domain.WorkflowStatePublished:
		product.PublishedAt = &now
	case current == domain.WorkflowStatePublished:
		product.PublishedAt = nil
	}
	product.WorkflowHistory = append(product.WorkflowHistory, domain.WorkflowHistoryEntry{
		FromState: current,
		ToState:   target,
		Action:    req.Action,
		UserID:    req.UserID,
		UserRole:  req.UserRole,
		Reason:    strings.TrimSpace(req.Reason),
		Timestamp: now,
	})

	result.Success = true
	result.NewState = target
	result.Event = &TransitionEvent{
		ProductID: product.ID,
		Action:    req.Action,
		FromState: current,
		ToState:   target,
		UserID:    req.UserID,
		UserRole:  req.UserRole,
		UserEmail: req.UserEmail,
		Reason:    strings.TrimSpace(req.Reason),
		Automatic: rule.IsAutomatic,
		Timestamp: now,
	}
	return result
}

// checkConditions returns one error per unmet rule condition, in name order
func (m *WorkflowStateManager) checkConditions(rule domain.TransitionRule, req TransitionRequest, product *domain.Product) []string {
	names := make([]string, 0, len(rule.Conditions))
	for name, required := range rule.Conditions {
		if required {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var errs []string
	for _, name := range names {
		switch name {
		case domain.ConditionAssignedReviewer:
			if !product.HasReviewer() {
				errs = append(errs, "A reviewer must be assigned before submitting for review")
			}
		case domain.ConditionRejectionReason:
			if strings.TrimSpace(req.Reason) == "" {
				errs = append(errs, "A rejection reason is required")
			}
		case domain.ConditionReason:
			if strings.TrimSpace(req.Reason) == "" {
				errs = append(errs, "A reason is required for this transition")
			}
		case domain.ConditionRequiredFields:
			if missing := product.MissingRequiredFields(); len(missing) > 0 {
				errs = append(errs, fmt.Sprintf("Missing required fields: %s", strings.Join(missing, ", ")))
			}
		default:
			errs = append(errs, fmt.Sprintf("Unknown transition condition: %s", name))
		}
	}
	return errs
}

// ValidateProductState checks a product for structural consistency
func (m *WorkflowStateManager) ValidateProductState(product *domain.Product) domain.ValidationResult {
	result := domain.NewValidationResult()
	if product == nil {
		result.AddError("Product is required")
		return result
	}

	if !product.WorkflowState.IsValid() {
		result.AddError(fmt.Sprintf("Invalid workflow state: %s", product.WorkflowState))
	}
	for _, field := range product.MissingRequiredFields() {
		result.AddError(fmt.Sprintf("Product %s is required", field))
	}

	last, ok := product.LastHistoryEntry()
	if !ok {
		result.AddError("Product has no workflow history")
	} else if last.ToState != product.WorkflowState {
		result.AddError(fmt.Sprintf("Workflow history ends in %s but product is %s", last.ToState, product.WorkflowState))
	}

	if product.WorkflowState == domain.WorkflowStateReview && !product.HasReviewer() {
		result.AddWarning("Product is in review without an assigned reviewer")
	}
	if product.Price <= 0 {
		result.AddWarning("Product price should be greater than zero")
	}
	if product.WorkflowState == domain.WorkflowStateRejected && ok && last.ToState == domain.WorkflowStateRejected && last.Reason == "" {
		result.AddWarning("Rejected product has no recorded rejection reason")
	}
	return result
}
