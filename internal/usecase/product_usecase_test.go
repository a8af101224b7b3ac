package usecase

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixora/pim/internal/domain"
	"github.com/fixora/pim/internal/logger"
	"github.com/fixora/pim/internal/ports"
)

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

// moveToReview assigns the fixture reviewer and submits the product as editor
func (f *fixture) moveToReview(t *testing.T, p *domain.Product) *domain.Product {
	t.Helper()
	ctx := context.Background()
	_, err := f.productUC.AssignReviewer(ctx, f.admin, p.ID, f.reviewer.UserID)
	require.NoError(t, err)
	p, _, err = f.productUC.TransitionProduct(ctx, f.editor, p.ID, TransitionInput{Action: domain.ActionSubmit})
	require.NoError(t, err)
	require.Equal(t, domain.WorkflowStateReview, p.WorkflowState)
	return p
}

func TestProductUseCase_ReviewCycleIsAudited(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	p := f.createProduct(t, f.editor, "SHOE-1")
	assert.Equal(t, domain.WorkflowStateDraft, p.WorkflowState)

	p, err := f.productUC.AssignReviewer(ctx, f.admin, p.ID, f.reviewer.UserID)
	require.NoError(t, err)
	require.NotNil(t, p.AssignedReviewerID)

	p, ev, err := f.productUC.TransitionProduct(ctx, f.editor, p.ID, TransitionInput{Action: domain.ActionSubmit})
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStateReview, p.WorkflowState)
	assert.Equal(t, domain.WorkflowStateDraft, ev.FromState)

	_, _, err = f.productUC.TransitionProduct(ctx, f.reviewer, p.ID, TransitionInput{Action: domain.ActionReject})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Contains(t, err.Error(), "A rejection reason is required")

	p, ev, err = f.productUC.TransitionProduct(ctx, f.reviewer, p.ID, TransitionInput{Action: domain.ActionReject, Reason: "Missing size chart"})
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStateRejected, p.WorkflowState)
	assert.Equal(t, "Missing size chart", ev.Reason)

	p, err = f.productUC.UpdateProduct(ctx, f.editor, p.ID, UpdateProductRequest{Price: floatPtr(79.90), Reason: "added size chart"})
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStateDraft, p.WorkflowState)
	assert.Equal(t, 79.90, p.Price)
	last, _ := p.LastHistoryEntry()
	assert.Equal(t, domain.ActionEdit, last.Action)

	entries := f.entries(t)
	require.Len(t, entries, 5)

	want := []struct {
		action   domain.AuditAction
		priority domain.AuditPriority
	}{
		{domain.AuditActionProductCreate, domain.AuditPriorityMedium},
		{domain.AuditActionReviewerAssign, domain.AuditPriorityHigh},
		{domain.AuditActionWorkflowTransition, domain.AuditPriorityHigh},
		{domain.AuditActionWorkflowTransition, domain.AuditPriorityHigh},
		{domain.AuditActionProductUpdate, domain.AuditPriorityHigh},
	}
	for i, w := range want {
		assert.Equal(t, w.action, entries[i].Action, "entry %d", i)
		assert.Equal(t, w.priority, entries[i].Priority, "entry %d", i)
		assert.Equal(t, p.ID, entries[i].SubjectID)
	}

	assert.Equal(t, f.editor.UserID, entries[0].ActorID)
	assert.Equal(t, "SHOE-1", entries[0].Metadata["sku"])
	assert.Equal(t, f.admin.UserID, entries[1].ActorID)
	assert.Equal(t, "Missing size chart", entries[3].Reason)
	assert.Equal(t, string(domain.ActionReject), entries[3].Metadata["transitionAction"])

	update := entries[4]
	assert.Equal(t, "true", update.Metadata["automaticTransition"])
	require.Len(t, update.FieldChanges, 2)
	assert.Equal(t, "price", update.FieldChanges[0].Field)
	assert.Equal(t, "workflowState", update.FieldChanges[1].Field)

	chain, err := f.audit.VerifyChain(ctx, testTenant)
	require.NoError(t, err)
	assert.True(t, chain.Valid, chain.Error)
	assert.Equal(t, 5, chain.Entries)

	assert.Len(t, f.publisher.OfType(ports.EventTypeWorkflowTransitioned), 2)
	assert.Len(t, f.publisher.Events(), 5)
}

func TestProductUseCase_ApproveRequiresQualityContent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	thin := f.moveToReview(t, f.createProduct(t, f.editor, "THIN-1"))
	_, _, err := f.productUC.TransitionProduct(ctx, f.reviewer, thin.ID, TransitionInput{Action: domain.ActionApprove})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
	assert.Contains(t, err.Error(), "Description must be at least 50 characters")

	rich, err := f.productUC.CreateProduct(ctx, f.editor, completeFields("RICH-1"))
	require.NoError(t, err)
	rich = f.moveToReview(t, rich)

	rich, _, err = f.productUC.TransitionProduct(ctx, f.reviewer, rich.ID, TransitionInput{Action: domain.ActionApprove})
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStateApproved, rich.WorkflowState)

	_, _, err = f.productUC.TransitionProduct(ctx, f.editor, rich.ID, TransitionInput{Action: domain.ActionPublish})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	rich, _, err = f.productUC.TransitionProduct(ctx, f.admin, rich.ID, TransitionInput{Action: domain.ActionPublish, ToState: domain.WorkflowStatePublished})
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStatePublished, rich.WorkflowState)
	assert.NotNil(t, rich.PublishedAt)
}

func TestProductUseCase_CreateValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.productUC.CreateProduct(ctx, f.viewer, domain.ProductFields{Name: "x", SKU: "x", Brand: "x"})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = f.productUC.CreateProduct(ctx, f.editor, domain.ProductFields{Name: "No brand", SKU: "NB-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
	assert.Contains(t, err.Error(), "Product brand is required")

	f.createProduct(t, f.editor, "DUP-1")
	_, err = f.productUC.CreateProduct(ctx, f.editor, domain.ProductFields{Name: "Again", SKU: "DUP-1", Brand: "Acme"})
	assert.ErrorIs(t, err, domain.ErrDuplicateSKU)

	// skus are unique per tenant
	other := domain.Actor{UserID: "globex-editor", Role: domain.UserRoleEditor, TenantID: "globex"}
	_, err = f.productUC.CreateProduct(ctx, other, domain.ProductFields{Name: "Again", SKU: "DUP-1", Brand: "Globex"})
	assert.NoError(t, err)

	_, err = f.productUC.CreateProduct(ctx, domain.Actor{Role: domain.UserRoleEditor}, domain.ProductFields{})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestProductUseCase_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.createProduct(t, f.editor, "ISO-1")

	outsider := domain.Actor{UserID: "globex-admin", Role: domain.UserRoleAdmin, TenantID: "globex"}
	_, err := f.productUC.GetProduct(ctx, outsider, p.ID)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	err = f.productUC.DeleteProduct(ctx, outsider, p.ID)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	products, total, err := f.productUC.ListProducts(ctx, outsider, domain.ProductFilter{})
	require.NoError(t, err)
	assert.Empty(t, products)
	assert.Equal(t, 0, total)

	products, total, err = f.productUC.ListProducts(ctx, f.viewer, domain.ProductFilter{})
	require.NoError(t, err)
	assert.Len(t, products, 1)
	assert.Equal(t, 1, total)
}

func TestProductUseCase_UpdateRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.createProduct(t, f.editor, "UPD-1")
	f.createProduct(t, f.editor, "UPD-2")

	_, err := f.productUC.UpdateProduct(ctx, f.editor, p.ID, UpdateProductRequest{Name: strPtr(p.Name)})
	assert.ErrorIs(t, err, domain.ErrNothingToUpdate)

	_, err = f.productUC.UpdateProduct(ctx, f.editor, p.ID, UpdateProductRequest{SKU: strPtr("UPD-2")})
	assert.ErrorIs(t, err, domain.ErrDuplicateSKU)

	other := f.addUser(t, "editor2@acme.test", domain.UserRoleEditor)
	_, err = f.productUC.UpdateProduct(ctx, other, p.ID, UpdateProductRequest{Name: strPtr("Hijacked")})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	updated, err := f.productUC.UpdateProduct(ctx, f.editor, p.ID, UpdateProductRequest{Name: strPtr("Renamed shoe")})
	require.NoError(t, err)
	assert.Equal(t, "Renamed shoe", updated.Name)

	entries := f.entries(t)
	last := entries[len(entries)-1]
	assert.Equal(t, domain.AuditActionProductUpdate, last.Action)
	assert.Equal(t, domain.AuditPriorityMedium, last.Priority)
	assert.Empty(t, last.Metadata["automaticTransition"])

	f.moveToReview(t, updated)
	_, err = f.productUC.UpdateProduct(ctx, f.editor, p.ID, UpdateProductRequest{Name: strPtr("Too late")})
	assert.ErrorIs(t, err, domain.ErrProductNotEditable)
}

func TestProductUseCase_AssignReviewer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.createProduct(t, f.editor, "ASG-1")

	_, err := f.productUC.AssignReviewer(ctx, f.editor, p.ID, f.reviewer.UserID)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = f.productUC.AssignReviewer(ctx, f.admin, p.ID, f.viewer.UserID)
	assert.ErrorIs(t, err, domain.ErrInvalidReviewer)

	_, err = f.productUC.AssignReviewer(ctx, f.admin, p.ID, "missing-user")
	assert.ErrorIs(t, err, domain.ErrInvalidReviewer)

	foreign := domain.NewUser("globex", "rev@globex.test", "Foreign Reviewer", "hashed:x", domain.UserRoleReviewer)
	require.NoError(t, f.users.Create(ctx, foreign))
	_, err = f.productUC.AssignReviewer(ctx, f.admin, p.ID, foreign.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidReviewer)

	// admins may review
	p, err = f.productUC.AssignReviewer(ctx, f.admin, p.ID, f.admin.UserID)
	require.NoError(t, err)
	p, err = f.productUC.AssignReviewer(ctx, f.admin, p.ID, f.reviewer.UserID)
	require.NoError(t, err)
	assert.Equal(t, f.reviewer.UserID, *p.AssignedReviewerID)

	entries := f.entries(t)
	last := entries[len(entries)-1]
	assert.Equal(t, domain.AuditActionReviewerAssign, last.Action)
	require.Len(t, last.FieldChanges, 1)
	assert.Equal(t, f.admin.UserID, last.FieldChanges[0].OldValue)
	assert.Equal(t, f.reviewer.UserID, last.FieldChanges[0].NewValue)
}

func TestProductUseCase_DeleteIsCritical(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.createProduct(t, f.editor, "DEL-1")

	err := f.productUC.DeleteProduct(ctx, f.editor, p.ID)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	require.NoError(t, f.productUC.DeleteProduct(ctx, f.admin, p.ID))
	_, err = f.productUC.GetProduct(ctx, f.admin, p.ID)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	entries := f.entries(t)
	last := entries[len(entries)-1]
	assert.Equal(t, domain.AuditActionProductDelete, last.Action)
	assert.Equal(t, domain.AuditPriorityCritical, last.Priority)
	assert.Equal(t, "DEL-1", last.Metadata["sku"])
	assert.Len(t, f.publisher.OfType(ports.EventTypeProductDeleted), 1)
}

func TestProductUseCase_BulkUpdate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.createProduct(t, f.editor, "BLK-1")
	b := f.createProduct(t, f.editor, "BLK-2")
	locked := f.moveToReview(t, f.createProduct(t, f.editor, "BLK-3"))

	_, err := f.productUC.BulkUpdate(ctx, f.editor, BulkUpdateRequest{ProductIDs: []string{a.ID}})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = f.productUC.BulkUpdate(ctx, f.admin, BulkUpdateRequest{})
	assert.ErrorIs(t, err, domain.ErrValidationFailed)

	before := len(f.entries(t))
	result, err := f.productUC.BulkUpdate(ctx, f.admin, BulkUpdateRequest{
		ProductIDs: []string{a.ID, b.ID, a.ID, locked.ID, "missing"},
		Changes:    UpdateProductRequest{Price: floatPtr(99)},
		Reason:     "seasonal pricing",
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, result.Updated)
	assert.Len(t, result.Failed, 2)
	assert.Contains(t, result.Failed, locked.ID)
	assert.Contains(t, result.Failed, "missing")

	entries := f.entries(t)[before:]
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, domain.AuditActionBulkOperation, e.Action)
		assert.Equal(t, domain.AuditPriorityHigh, e.Priority)
		assert.Equal(t, result.BulkID, e.Metadata["bulkId"])
		assert.Equal(t, "seasonal pricing", e.Reason)
	}

	got, err := f.productUC.GetProduct(ctx, f.viewer, b.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(99), got.Price)
}

func TestProductUseCase_AvailableActions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.createProduct(t, f.editor, "ACT-1")

	actions, err := f.productUC.AvailableActions(ctx, f.editor, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStateDraft, actions.State)
	assert.Equal(t, []domain.WorkflowAction{domain.ActionSubmit}, actions.Actions)

	actions, err = f.productUC.AvailableActions(ctx, f.viewer, p.ID)
	require.NoError(t, err)
	assert.Empty(t, actions.Actions)
}

func TestProductUseCase_ReadOnlyAuditBlocksWrites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.createProduct(t, f.editor, "RO-1")
	f.audit.EnableReadOnlyMode()

	_, err := f.productUC.CreateProduct(ctx, f.editor, domain.ProductFields{Name: "n", SKU: "RO-2", Brand: "b"})
	assert.ErrorIs(t, err, domain.ErrReadOnlyMode)
	_, err = f.productUC.UpdateProduct(ctx, f.editor, p.ID, UpdateProductRequest{Name: strPtr("changed")})
	assert.ErrorIs(t, err, domain.ErrReadOnlyMode)
	err = f.productUC.DeleteProduct(ctx, f.admin, p.ID)
	assert.ErrorIs(t, err, domain.ErrReadOnlyMode)

	got, err := f.productUC.GetProduct(ctx, f.viewer, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)
	assert.Len(t, f.entries(t), 1)
}

func TestProductUseCase_AuditFailureLeavesProductUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rec := &flakyRecorder{AuditRecorder: f.audit}
	uc := NewProductUseCase(f.products, f.users, f.states, f.validator, rec, f.publisher, logger.NewNopLogger())

	p := f.createProduct(t, f.editor, "AUD-1")
	_, err := uc.AssignReviewer(ctx, f.admin, p.ID, f.reviewer.UserID)
	require.NoError(t, err)
	current, err := f.products.FindByID(ctx, p.ID)
	require.NoError(t, err)
	before := len(f.entries(t))

	rec.failing.Store(true)

	_, _, err = uc.TransitionProduct(ctx, f.editor, p.ID, TransitionInput{Action: domain.ActionSubmit})
	require.ErrorIs(t, err, errAuditDown)
	_, err = uc.UpdateProduct(ctx, f.editor, p.ID, UpdateProductRequest{Name: strPtr("Renamed while down")})
	require.ErrorIs(t, err, errAuditDown)
	_, err = uc.AssignReviewer(ctx, f.admin, p.ID, f.admin.UserID)
	require.ErrorIs(t, err, errAuditDown)
	_, err = uc.BulkUpdate(ctx, f.admin, BulkUpdateRequest{ProductIDs: []string{p.ID}, Changes: UpdateProductRequest{Price: floatPtr(10)}})
	require.ErrorIs(t, err, errAuditDown)
	require.ErrorIs(t, uc.DeleteProduct(ctx, f.admin, p.ID), errAuditDown)
	_, err = uc.CreateProduct(ctx, f.editor, domain.ProductFields{Name: "Ghost Shoe", SKU: "AUD-2", Brand: "Acme", Price: 10})
	require.ErrorIs(t, err, errAuditDown)

	stored, err := f.products.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStateDraft, stored.WorkflowState)
	assert.Equal(t, current.Name, stored.Name)
	assert.Equal(t, current.Price, stored.Price)
	assert.Equal(t, current.AssignedReviewerID, stored.AssignedReviewerID)
	assert.Len(t, stored.WorkflowHistory, len(current.WorkflowHistory))
	_, err = f.products.FindBySKU(ctx, testTenant, "AUD-2")
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
	assert.Len(t, f.entries(t), before)

	rec.failing.Store(false)
	moved, _, err := uc.TransitionProduct(ctx, f.editor, p.ID, TransitionInput{Action: domain.ActionSubmit})
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStateReview, moved.WorkflowState)
	assert.Len(t, f.entries(t), before+1)
}

func TestProductUseCase_ConcurrentTransitionsOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.moveToReview(t, f.createProduct(t, f.editor, "RACE-1"))
	before := len(f.entries(t))

	uc := NewProductUseCase(newGatedProducts(f.products), f.users, f.states, f.validator, f.audit, f.publisher, logger.NewNopLogger())

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = uc.TransitionProduct(ctx, f.reviewer, p.ID, TransitionInput{Action: domain.ActionReject, Reason: "Missing size chart"})
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		lost++
		assert.ErrorIs(t, err, domain.ErrConcurrentUpdate)
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)

	entries := f.entries(t)
	require.Len(t, entries, before+1)
	assert.Equal(t, domain.AuditActionWorkflowTransition, entries[len(entries)-1].Action)

	stored, err := f.products.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStateRejected, stored.WorkflowState)
	last, _ := stored.LastHistoryEntry()
	assert.Equal(t, domain.WorkflowStateReview, last.FromState)
}
