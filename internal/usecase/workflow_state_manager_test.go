package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixora/pim/internal/domain"
)

func draftProduct(owner string) *domain.Product {
	return domain.NewProduct(testTenant, domain.ProductFields{Name: "Mug", SKU: "MUG-1", Brand: "Acme", Price: 9}, owner, domain.UserRoleEditor)
}

func TestWorkflowStateManager_CanPerformAction(t *testing.T) {
	m := NewWorkflowStateManager(nil, nil)

	tests := []struct {
		name    string
		action  domain.WorkflowAction
		current domain.WorkflowState
		role    domain.UserRole
		want    bool
	}{
		{"editor submits draft", domain.ActionSubmit, domain.WorkflowStateDraft, domain.UserRoleEditor, true},
		{"reviewer approves", domain.ActionApprove, domain.WorkflowStateReview, domain.UserRoleReviewer, true},
		{"editor cannot approve", domain.ActionApprove, domain.WorkflowStateReview, domain.UserRoleEditor, false},
		{"editor cannot publish draft", domain.ActionPublish, domain.WorkflowStateDraft, domain.UserRoleEditor, false},
		{"admin cannot publish draft", domain.ActionPublish, domain.WorkflowStateDraft, domain.UserRoleAdmin, false},
		{"admin publishes approved", domain.ActionPublish, domain.WorkflowStateApproved, domain.UserRoleAdmin, true},
		{"edit rejected goes through automatic rule", domain.ActionEdit, domain.WorkflowStateRejected, domain.UserRoleEditor, true},
		{"edit on draft is not a transition", domain.ActionEdit, domain.WorkflowStateDraft, domain.UserRoleEditor, false},
		{"view is never a transition", domain.ActionView, domain.WorkflowStateDraft, domain.UserRoleAdmin, false},
		{"viewer cannot submit", domain.ActionSubmit, domain.WorkflowStateDraft, domain.UserRoleViewer, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.CanPerformAction(tt.action, tt.current, tt.role))
		})
	}
}

func TestWorkflowStateManager_NoDirectDraftToPublished(t *testing.T) {
	m := NewWorkflowStateManager(nil, nil)
	_, found := m.FindRule(domain.WorkflowStateDraft, domain.WorkflowStatePublished, domain.UserRoleEditor)
	assert.False(t, found)
}

func TestWorkflowStateManager_AvailableActions(t *testing.T) {
	m := NewWorkflowStateManager(nil, nil)

	assert.Equal(t, []domain.WorkflowAction{domain.ActionApprove, domain.ActionReject},
		m.AvailableActions(domain.WorkflowStateReview, domain.UserRoleReviewer))
	assert.Equal(t, []domain.WorkflowAction{domain.ActionPublish, domain.ActionReopen},
		m.AvailableActions(domain.WorkflowStateApproved, domain.UserRoleAdmin))
	// the automatic edit rule is not offered as a manual action
	assert.Empty(t, m.AvailableActions(domain.WorkflowStateRejected, domain.UserRoleEditor))
	assert.Empty(t, m.AvailableActions(domain.WorkflowStateDraft, domain.UserRoleViewer))
}

func TestWorkflowStateManager_SubmitRequiresReviewer(t *testing.T) {
	m := NewWorkflowStateManager(nil, nil)
	p := draftProduct("editor-1")

	result := m.ExecuteStateTransition(TransitionRequest{
		Action: domain.ActionSubmit, UserID: "editor-1", UserRole: domain.UserRoleEditor,
	}, p)

	assert.False(t, result.Success)
	assert.Contains(t, result.Errors, "A reviewer must be assigned before submitting for review")
	assert.Equal(t, domain.WorkflowStateDraft, p.WorkflowState)
	assert.Len(t, p.WorkflowHistory, 1)
}

func TestWorkflowStateManager_RejectRequiresReason(t *testing.T) {
	m := NewWorkflowStateManager(nil, nil)
	p := draftProduct("editor-1")
	reviewer := "reviewer-1"
	p.AssignedReviewerID = &reviewer
	p.WorkflowState = domain.WorkflowStateReview
	p.WorkflowHistory = append(p.WorkflowHistory, domain.WorkflowHistoryEntry{
		FromState: domain.WorkflowStateDraft, ToState: domain.WorkflowStateReview, Action: domain.ActionSubmit,
	})

	result := m.ExecuteStateTransition(TransitionRequest{
		Action: domain.ActionReject, UserID: reviewer, UserRole: domain.UserRoleReviewer, Reason: "   ",
	}, p)
	assert.False(t, result.Success)
	assert.Equal(t, []string{"A rejection reason is required"}, result.Errors)
	assert.Equal(t, domain.WorkflowStateReview, p.WorkflowState)

	result = m.ExecuteStateTransition(TransitionRequest{
		Action: domain.ActionReject, UserID: reviewer, UserRole: domain.UserRoleReviewer, Reason: "Missing size chart",
	}, p)
	require.True(t, result.Success)
	assert.Equal(t, domain.WorkflowStateRejected, result.NewState)
	require.NotNil(t, result.Event)
	assert.Equal(t, domain.WorkflowStateReview, result.Event.FromState)
	assert.Equal(t, "Missing size chart", result.Event.Reason)
	assert.False(t, result.Event.Automatic)

	last, _ := p.LastHistoryEntry()
	assert.Equal(t, domain.ActionReject, last.Action)
	assert.Equal(t, "Missing size chart", last.Reason)
}

func TestWorkflowStateManager_PublishStampsPublishedAt(t *testing.T) {
	m := NewWorkflowStateManager(nil, nil)
	p := draftProduct("editor-1")
	p.WorkflowState = domain.WorkflowStateApproved

	result := m.ExecuteStateTransition(TransitionRequest{Action: domain.ActionPublish, UserID: "admin", UserRole: domain.UserRoleAdmin}, p)
	require.True(t, result.Success, result.Errors)
	require.NotNil(t, p.PublishedAt)

	result = m.ExecuteStateTransition(TransitionRequest{Action: domain.ActionUnpublish, UserID: "admin", UserRole: domain.UserRoleAdmin}, p)
	assert.False(t, result.Success)
	assert.Contains(t, result.Errors, "A reason is required for this transition")

	result = m.ExecuteStateTransition(TransitionRequest{Action: domain.ActionUnpublish, UserID: "admin", UserRole: domain.UserRoleAdmin, Reason: "recall"}, p)
	require.True(t, result.Success, result.Errors)
	assert.Equal(t, domain.WorkflowStateDraft, p.WorkflowState)
	assert.Nil(t, p.PublishedAt)
}

func TestWorkflowStateManager_RequestMismatches(t *testing.T) {
	m := NewWorkflowStateManager(nil, nil)
	p := draftProduct("editor-1")

	result := m.ExecuteStateTransition(TransitionRequest{
		Action: domain.ActionSubmit, FromState: domain.WorkflowStateReview, UserRole: domain.UserRoleEditor,
	}, p)
	assert.Equal(t, []string{"Product is in state DRAFT, not REVIEW"}, result.Errors)

	result = m.ExecuteStateTransition(TransitionRequest{
		Action: domain.ActionSubmit, ToState: domain.WorkflowStatePublished, UserRole: domain.UserRoleEditor,
	}, p)
	assert.Equal(t, []string{"Action SUBMIT leads to REVIEW, not PUBLISHED"}, result.Errors)

	result = m.ExecuteStateTransition(TransitionRequest{Action: domain.ActionSubmit, UserRole: "GUEST"}, p)
	assert.Equal(t, []string{"Invalid user role: GUEST"}, result.Errors)

	result = m.ExecuteStateTransition(TransitionRequest{Action: domain.ActionSubmit, UserRole: domain.UserRoleEditor}, nil)
	assert.Equal(t, []string{"Product is required"}, result.Errors)

	result = m.ExecuteStateTransition(TransitionRequest{Action: domain.ActionApprove, UserRole: domain.UserRoleReviewer}, p)
	assert.Equal(t, []string{"Transition from DRAFT to APPROVED is not allowed for role REVIEWER"}, result.Errors)
}

func TestWorkflowStateManager_PermissionTableOverridesRule(t *testing.T) {
	// editors lose workflow:submit even though the rule still names them
	perms := domain.NewPermissionResolver(map[domain.UserRole][]string{
		domain.UserRoleEditor: {"products:*"},
	}, nil)
	m := NewWorkflowStateManager(nil, perms)
	p := draftProduct("editor-1")
	reviewer := "r"
	p.AssignedReviewerID = &reviewer

	result := m.ExecuteStateTransition(TransitionRequest{Action: domain.ActionSubmit, UserRole: domain.UserRoleEditor}, p)
	assert.False(t, result.Success)
	assert.Equal(t, []string{"Role EDITOR lacks required permissions: workflow:submit"}, result.Errors)
}

func TestWorkflowStateManager_ValidateProductState(t *testing.T) {
	m := NewWorkflowStateManager(nil, nil)

	p := draftProduct("editor-1")
	result := m.ValidateProductState(p)
	assert.True(t, result.IsValid)
	assert.Empty(t, result.Warnings)

	p.Price = 0
	p.Brand = ""
	p.WorkflowState = domain.WorkflowStateReview
	result = m.ValidateProductState(p)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Errors, "Product brand is required")
	assert.Contains(t, result.Errors, "Workflow history ends in DRAFT but product is REVIEW")
	assert.Contains(t, result.Warnings, "Product is in review without an assigned reviewer")
	assert.Contains(t, result.Warnings, "Product price should be greater than zero")

	p.WorkflowState = "ARCHIVED"
	result = m.ValidateProductState(p)
	assert.Contains(t, result.Errors, "Invalid workflow state: ARCHIVED")
}
