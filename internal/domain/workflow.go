package domain

import (
	"fmt"
	"time"
)

// WorkflowState represents the editorial state of a product
type WorkflowState string

const (
	WorkflowStateDraft     WorkflowState = "DRAFT"
	WorkflowStateReview    WorkflowState = "REVIEW"
	WorkflowStateApproved  WorkflowState = "APPROVED"
	WorkflowStatePublished WorkflowState = "PUBLISHED"
	WorkflowStateRejected  WorkflowState = "REJECTED"
)

// AllWorkflowStates lists every workflow state in lifecycle order
var AllWorkflowStates = []WorkflowState{
	WorkflowStateDraft,
	WorkflowStateReview,
	WorkflowStateApproved,
	WorkflowStatePublished,
	WorkflowStateRejected,
}

// IsValid reports whether s is one of the five workflow states
func (s WorkflowState) IsValid() bool {
	switch s {
	case WorkflowStateDraft, WorkflowStateReview, WorkflowStateApproved,
		WorkflowStatePublished, WorkflowStateRejected:
		return true
	}
	return false
}

// UserRole represents the role of a user account
type UserRole string

const (
	UserRoleAdmin    UserRole = "ADMIN"
	UserRoleEditor   UserRole = "EDITOR"
	UserRoleReviewer UserRole = "REVIEWER"
	UserRoleViewer   UserRole = "VIEWER"
)

// AllUserRoles lists every role
var AllUserRoles = []UserRole{UserRoleAdmin, UserRoleEditor, UserRoleReviewer, UserRoleViewer}

// IsValid reports whether r is one of the four roles
func (r UserRole) IsValid() bool {
	switch r {
	case UserRoleAdmin, UserRoleEditor, UserRoleReviewer, UserRoleViewer:
		return true
	}
	return false
}

// WorkflowAction represents something a user asks to do with a product or the system
type WorkflowAction string

const (
	ActionCreate         WorkflowAction = "CREATE"
	ActionEdit           WorkflowAction = "EDIT"
	ActionDelete         WorkflowAction = "DELETE"
	ActionView           WorkflowAction = "VIEW"
	ActionSubmit         WorkflowAction = "SUBMIT"
	ActionApprove        WorkflowAction = "APPROVE"
	ActionReject         WorkflowAction = "REJECT"
	ActionPublish        WorkflowAction = "PUBLISH"
	ActionUnpublish      WorkflowAction = "UNPUBLISH"
	ActionReopen         WorkflowAction = "REOPEN"
	ActionAssignReviewer WorkflowAction = "ASSIGN_REVIEWER"
	ActionBulkEdit       WorkflowAction = "BULK_EDIT"
	ActionViewAudit      WorkflowAction = "VIEW_AUDIT"
	ActionExportAudit    WorkflowAction = "EXPORT_AUDIT"
	ActionManageAudit    WorkflowAction = "MANAGE_AUDIT"
	ActionViewUsers      WorkflowAction = "VIEW_USERS"
	ActionManageUsers    WorkflowAction = "MANAGE_USERS"
)

// AllWorkflowActions lists every action known to the permission tables
var AllWorkflowActions = []WorkflowAction{
	ActionCreate, ActionEdit, ActionDelete, ActionView,
	ActionSubmit, ActionApprove, ActionReject, ActionPublish, ActionUnpublish, ActionReopen,
	ActionAssignReviewer, ActionBulkEdit,
	ActionViewAudit, ActionExportAudit, ActionManageAudit,
	ActionViewUsers, ActionManageUsers,
}

// TargetState returns the state an action moves a product to when requested from current.
// The second return value is false when the action is not a state transition.
func (a WorkflowAction) TargetState(current WorkflowState) (WorkflowState, bool) {
	switch a {
	case ActionSubmit:
		return WorkflowStateReview, true
	case ActionApprove:
		return WorkflowStateApproved, true
	case ActionReject:
		return WorkflowStateRejected, true
	case ActionPublish:
		return WorkflowStatePublished, true
	case ActionUnpublish:
		return WorkflowStateDraft, true
	case ActionReopen:
		return WorkflowStateReview, true
	case ActionEdit:
		if current == WorkflowStateRejected {
			return WorkflowStateDraft, true
		}
		return "", false
	default:
		return "", false
	}
}

var canonicalActions = map[[2]WorkflowState]WorkflowAction{
	{WorkflowStateDraft, WorkflowStateReview}:       ActionSubmit,
	{WorkflowStateReview, WorkflowStateApproved}:    ActionApprove,
	{WorkflowStateReview, WorkflowStateRejected}:    ActionReject,
	{WorkflowStateApproved, WorkflowStatePublished}: ActionPublish,
	{WorkflowStatePublished, WorkflowStateDraft}:    ActionUnpublish,
	{WorkflowStateApproved, WorkflowStateReview}:    ActionReopen,
	{WorkflowStateRejected, WorkflowStateDraft}:     ActionEdit,
}

// ActionFor returns the action that requests the from -> to move. SUBMIT and REOPEN share
// a target, so the source state decides between them.
func ActionFor(from, to WorkflowState) (WorkflowAction, bool) {
	if a, ok := canonicalActions[[2]WorkflowState{from, to}]; ok {
		return a, true
	}
	for _, a := range AllWorkflowActions {
		if target, ok := a.TargetState(from); ok && target == to {
			return a, true
		}
	}
	return "", false
}

// IsTransition reports whether the action can ever move a product between states
func (a WorkflowAction) IsTransition() bool {
	switch a {
	case ActionSubmit, ActionApprove, ActionReject, ActionPublish, ActionUnpublish, ActionReopen:
		return true
	}
	return false
}

// Condition names that a TransitionRule may declare
const (
	ConditionAssignedReviewer = "assignedReviewer"
	ConditionRejectionReason  = "rejectionReason"
	ConditionReason           = "reason"
	ConditionRequiredFields   = "requiredFields"
)

// TransitionRule states that a product may move From -> To when requested by RequiredRole
type TransitionRule struct {
	From                WorkflowState   `json:"from" yaml:"from"`
	To                  WorkflowState   `json:"to" yaml:"to"`
	RequiredRole        UserRole        `json:"requiredRole" yaml:"requiredRole"`
	RequiredPermissions []string        `json:"requiredPermissions" yaml:"requiredPermissions"`
	IsAutomatic         bool            `json:"isAutomatic" yaml:"isAutomatic"`
	Conditions          map[string]bool `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Description         string          `json:"description,omitempty" yaml:"description,omitempty"`
}

// Requires reports whether the rule declares the named condition as required
func (r TransitionRule) Requires(condition string) bool {
	return r.Conditions[condition]
}

// DefaultTransitionRules is the built-in editorial workflow
func DefaultTransitionRules() []TransitionRule {
	return []TransitionRule{
		{
			From: WorkflowStateDraft, To: WorkflowStateReview, RequiredRole: UserRoleEditor,
			RequiredPermissions: []string{"workflow:submit"},
			Conditions:          map[string]bool{ConditionAssignedReviewer: true, ConditionRequiredFields: true},
			Description:         "Editor submits a draft for review",
		},
		{
			From: WorkflowStateDraft, To: WorkflowStateReview, RequiredRole: UserRoleAdmin,
			RequiredPermissions: []string{"workflow:submit"},
			Conditions:          map[string]bool{ConditionRequiredFields: true},
			Description:         "Admin submits a draft for review",
		},
		{
			From: WorkflowStateReview, To: WorkflowStateApproved, RequiredRole: UserRoleReviewer,
			RequiredPermissions: []string{"workflow:approve"},
			Description:         "Reviewer approves a product",
		},
		{
			From: WorkflowStateReview, To: WorkflowStateApproved, RequiredRole: UserRoleAdmin,
			RequiredPermissions: []string{"workflow:approve"},
			Description:         "Admin approves a product",
		},
		{
			From: WorkflowStateReview, To: WorkflowStateRejected, RequiredRole: UserRoleReviewer,
			RequiredPermissions: []string{"workflow:reject"},
			Conditions:          map[string]bool{ConditionRejectionReason: true},
			Description:         "Reviewer rejects a product with a reason",
		},
		{
			From: WorkflowStateReview, To: WorkflowStateRejected, RequiredRole: UserRoleAdmin,
			RequiredPermissions: []string{"workflow:reject"},
			Conditions:          map[string]bool{ConditionRejectionReason: true},
			Description:         "Admin rejects a product with a reason",
		},
		{
			From: WorkflowStateApproved, To: WorkflowStatePublished, RequiredRole: UserRoleAdmin,
			RequiredPermissions: []string{"workflow:publish"},
			Description:         "Admin publishes an approved product",
		},
		{
			From: WorkflowStateRejected, To: WorkflowStateDraft, RequiredRole: UserRoleEditor,
			RequiredPermissions: []string{"products:write"},
			IsAutomatic:         true,
			Description:         "Editing a rejected product returns it to draft",
		},
		{
			From: WorkflowStateRejected, To: WorkflowStateDraft, RequiredRole: UserRoleAdmin,
			RequiredPermissions: []string{"products:write"},
			IsAutomatic:         true,
			Description:         "Editing a rejected product returns it to draft",
		},
		{
			From: WorkflowStatePublished, To: WorkflowStateDraft, RequiredRole: UserRoleAdmin,
			RequiredPermissions: []string{"workflow:unpublish"},
			Conditions:          map[string]bool{ConditionReason: true},
			Description:         "Admin unpublishes a product",
		},
		{
			From: WorkflowStateApproved, To: WorkflowStateReview, RequiredRole: UserRoleAdmin,
			RequiredPermissions: []string{"workflow:reopen"},
			Conditions:          map[string]bool{ConditionReason: true},
			Description:         "Admin reopens an approved product for review",
		},
	}
}

// ValidateTransitionRules checks a rule table for unknown states/roles and for more than
// one non-automatic rule per (from, to, role).
func ValidateTransitionRules(rules []TransitionRule) error {
	seen := make(map[string]bool, len(rules))
	for i, r := range rules {
		if !r.From.IsValid() || !r.To.IsValid() {
			return fmt.Errorf("rule %d: invalid state %s -> %s", i, r.From, r.To)
		}
		if !r.RequiredRole.IsValid() {
			return fmt.Errorf("rule %d: invalid role %q", i, r.RequiredRole)
		}
		if r.From == r.To {
			return fmt.Errorf("rule %d: self transition %s", i, r.From)
		}
		if r.IsAutomatic {
			continue
		}
		key := string(r.From) + "|" + string(r.To) + "|" + string(r.RequiredRole)
		if seen[key] {
			return fmt.Errorf("rule %d: duplicate rule for %s -> %s as %s", i, r.From, r.To, r.RequiredRole)
		}
		seen[key] = true
	}
	return nil
}

// WorkflowHistoryEntry records one state change of a product
type WorkflowHistoryEntry struct {
	FromState WorkflowState  `json:"fromState,omitempty"`
	ToState   WorkflowState  `json:"toState"`
	Action    WorkflowAction `json:"action"`
	UserID    string         `json:"userId"`
	UserRole  UserRole       `json:"userRole"`
	Reason    string         `json:"reason,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
