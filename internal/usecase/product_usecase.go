package usecase

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/uuid"

	"github.com/fixora/pim/internal/domain"
	"github.com/fixora/pim/internal/logger"
	"github.com/fixora/pim/internal/ports"
)

// UpdateProductRequest carries the fields to change; nil fields are left alone
type UpdateProductRequest struct {
	Name        *string                `json:"name,omitempty"`
	SKU         *string                `json:"sku,omitempty"`
	Brand       *string                `json:"brand,omitempty"`
	Description *string                `json:"description,omitempty"`
	Price       *float64               `json:"price,omitempty"`
	Categories  *[]string              `json:"categories,omitempty"`
	Keywords    *[]string              `json:"keywords,omitempty"`
	Images      *[]domain.ProductImage `json:"images,omitempty"`
	Reason      string                 `json:"reason,omitempty"`
}

// TransitionInput asks for a workflow action on a product
type TransitionInput struct {
	Action  domain.WorkflowAction `json:"action"`
	ToState domain.WorkflowState  `json:"toState,omitempty"`
	Reason  string                `json:"reason,omitempty"`
}

// BulkUpdateRequest applies the same change to several products
type BulkUpdateRequest struct {
	ProductIDs []string             `json:"productIds"`
	Changes    UpdateProductRequest `json:"changes"`
	Reason     string               `json:"reason,omitempty"`
}

// BulkUpdateResult reports the per-product outcome of a bulk update
type BulkUpdateResult struct {
	BulkID  string            `json:"bulkId"`
	Updated []string          `json:"updated"`
	Failed  map[string]string `json:"failed"`
}

// ProductActions lists the transitions available to the caller
type ProductActions struct {
	ProductID string                  `json:"productId"`
	State     domain.WorkflowState    `json:"state"`
	Actions   []domain.WorkflowAction `json:"actions"`
}

// Products may only be edited while being drafted or after rejection
var editableStates = map[domain.WorkflowState]bool{
	domain.WorkflowStateDraft:    true,
	domain.WorkflowStateRejected: true,
}

var assignableStates = map[domain.WorkflowState]bool{
	domain.WorkflowStateDraft:    true,
	domain.WorkflowStateReview:   true,
	domain.WorkflowStateRejected: true,
}

// MaxBulkProducts caps a single bulk update
const MaxBulkProducts = 100

// ProductUseCase handles product business logic on top of the workflow core
type ProductUseCase struct {
	productRepo    ports.ProductRepository
	userRepo       ports.UserRepository
	stateManager   *WorkflowStateManager
	validator      *ValidationMiddleware
	audit          AuditRecorder
	eventPublisher ports.EventPublisher
	logger         logger.Logger
}

// NewProductUseCase creates a new product use case
func NewProductUseCase(
	productRepo ports.ProductRepository,
	userRepo ports.UserRepository,
	stateManager *WorkflowStateManager,
	validator *ValidationMiddleware,
	audit AuditRecorder,
	eventPublisher ports.EventPublisher,
	log logger.Logger,
) *ProductUseCase {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &ProductUseCase{
		productRepo:    productRepo,
		userRepo:       userRepo,
		stateManager:   stateManager,
		validator:      validator,
		audit:          audit,
		eventPublisher: eventPublisher,
		logger:         log,
	}
}

// readOnlyReporter is implemented by audit recorders that can refuse writes
type readOnlyReporter interface {
	IsReadOnly() bool
}

func (uc *ProductUseCase) ensureWritable() error {
	if ro, ok := uc.audit.(readOnlyReporter); ok && ro.IsReadOnly() {
		return domain.ErrReadOnlyMode
	}
	return nil
}

func (uc *ProductUseCase) check(ctx context.Context, actor domain.Actor, action domain.WorkflowAction, product *domain.Product) error {
	vc := ValidationContext{
		UserID:    actor.UserID,
		UserRole:  actor.Role,
		UserEmail: actor.Email,
		Action:    action,
	}
	if product != nil {
		vc.ProductID = product.ID
		vc.CurrentState = product.WorkflowState
		vc.Product = product
	}
	return uc.validator.Check(ctx, vc)
}

func (uc *ProductUseCase) loadProduct(ctx context.Context, actor domain.Actor, productID string) (*domain.Product, error) {
	if productID == "" {
		return nil, fmt.Errorf("product ID is required")
	}
	product, err := uc.productRepo.FindByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	if product.TenantID != actor.TenantID {
		return nil, fmt.Errorf("failed to get product: %w", domain.ErrProductNotFound)
	}
	return product, nil
}

func (uc *ProductUseCase) publish(ctx context.Context, actor domain.Actor, eventType, productID string, data map[string]interface{}) {
	if uc.eventPublisher == nil {
		return
	}
	event := ports.NewEvent(eventType, ports.AggregateProduct, productID, data, 1).WithActor(actor.UserID, actor.TenantID)
	if err := uc.eventPublisher.Publish(ctx, *event); err != nil {
		uc.logger.Warn(ctx, "Failed to publish product event", map[string]interface{}{
			"event_type": eventType,
			"product_id": productID,
			"error":      err.Error(),
		})
	}
}

func (uc *ProductUseCase) record(ctx context.Context, in AuditInput) error {
	if _, err := uc.audit.Record(ctx, in); err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// recordOrUndo records in; when the append fails, undo puts the stored product back so
// no change outlives its missing audit entry.
func (uc *ProductUseCase) recordOrUndo(ctx context.Context, in AuditInput, undo func(context.Context) error) error {
	err := uc.record(ctx, in)
	if err == nil {
		return nil
	}
	if undoErr := undo(context.WithoutCancel(ctx)); undoErr != nil {
		uc.logger.Error(ctx, "Failed to undo product change after audit failure", undoErr, map[string]interface{}{
			"product_id": in.SubjectID,
			"action":     in.Action,
		})
	}
	return err
}

// restore writes previous back over the stored applied version
func (uc *ProductUseCase) restore(previous, applied *domain.Product) func(context.Context) error {
	return func(ctx context.Context) error {
		back := previous.Clone()
		back.Version = applied.Version
		return uc.productRepo.Update(ctx, back)
	}
}

// CreateProduct creates a product in DRAFT owned by actor
func (uc *ProductUseCase) CreateProduct(ctx context.Context, actor domain.Actor, fields domain.ProductFields) (*domain.Product, error) {
	if err := uc.check(ctx, actor, domain.ActionCreate, nil); err != nil {
		return nil, err
	}
	if err := uc.ensureWritable(); err != nil {
		return nil, err
	}

	product := domain.NewProduct(actor.TenantID, fields, actor.UserID, actor.Role)
	if missing := product.MissingRequiredFields(); len(missing) > 0 {
		errs := make([]string, 0, len(missing))
		for _, field := range missing {
			errs = append(errs, fmt.Sprintf("Product %s is required", field))
		}
		return nil, newValidationError(domain.ErrValidationFailed, errs...)
	}
	if err := uc.ensureUniqueSKU(ctx, actor.TenantID, product.SKU, ""); err != nil {
		return nil, err
	}

	if err := uc.productRepo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	in := AuditInputFor(actor, domain.AuditActionProductCreate, SubjectProduct, product.ID)
	in.Metadata = map[string]string{
		"name":          product.Name,
		"sku":           product.SKU,
		"workflowState": string(product.WorkflowState),
	}
	undo := func(ctx context.Context) error { return uc.productRepo.Delete(ctx, product.ID) }
	if err := uc.recordOrUndo(ctx, in, undo); err != nil {
		return nil, err
	}

	uc.publish(ctx, actor, ports.EventTypeProductCreated, product.ID, map[string]interface{}{
		"name":           product.Name,
		"sku":            product.SKU,
		"workflow_state": product.WorkflowState,
		"created_by":     product.CreatedBy,
	})
	return product, nil
}

func (uc *ProductUseCase) ensureUniqueSKU(ctx context.Context, tenantID, sku, exceptID string) error {
	existing, err := uc.productRepo.FindBySKU(ctx, tenantID, sku)
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("failed to check sku: %w", err)
	case existing.ID != exceptID:
		return domain.ErrDuplicateSKU
	}
	return nil
}

// GetProduct retrieves a product by ID
func (uc *ProductUseCase) GetProduct(ctx context.Context, actor domain.Actor, productID string) (*domain.Product, error) {
	if err := uc.check(ctx, actor, domain.ActionView, nil); err != nil {
		return nil, err
	}
	return uc.loadProduct(ctx, actor, productID)
}

// ListProducts retrieves the actor's tenant products matching filter
func (uc *ProductUseCase) ListProducts(ctx context.Context, actor domain.Actor, filter domain.ProductFilter) ([]*domain.Product, int, error) {
	if err := uc.check(ctx, actor, domain.ActionView, nil); err != nil {
		return nil, 0, err
	}

	// Set default pagination
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	filter.TenantID = actor.TenantID

	products, err := uc.productRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}

	count, err := uc.productRepo.Count(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	return products, count, nil
}

// UpdateProduct edits a product. Editing a rejected product moves it back to DRAFT through
// the automatic workflow rule; the edit and the transition share one audit entry.
func (uc *ProductUseCase) UpdateProduct(ctx context.Context, actor domain.Actor, productID string, req UpdateProductRequest) (*domain.Product, error) {
	product, err := uc.loadProduct(ctx, actor, productID)
	if err != nil {
		return nil, err
	}
	if err := uc.ensureWritable(); err != nil {
		return nil, err
	}

	updated, changes, err := uc.edit(ctx, actor, product, req)
	if err != nil {
		return nil, err
	}

	in := AuditInputFor(actor, domain.AuditActionProductUpdate, SubjectProduct, updated.ID)
	in.FieldChanges = changes
	in.Reason = req.Reason
	if product.WorkflowState != updated.WorkflowState {
		in.Metadata = map[string]string{
			"automaticTransition": "true",
			"transitionAction":    string(domain.ActionEdit),
		}
	}
	if err := uc.recordOrUndo(ctx, in, uc.restore(product, updated)); err != nil {
		return nil, err
	}

	uc.publish(ctx, actor, ports.EventTypeProductUpdated, updated.ID, map[string]interface{}{
		"fields":         changedFieldNames(changes),
		"workflow_state": updated.WorkflowState,
	})
	return updated, nil
}

// edit validates, applies and persists req on a copy of product
func (uc *ProductUseCase) edit(ctx context.Context, actor domain.Actor, product *domain.Product, req UpdateProductRequest) (*domain.Product, []domain.FieldChange, error) {
	if !editableStates[product.WorkflowState] {
		return nil, nil, fmt.Errorf("%w: product is %s", domain.ErrProductNotEditable, product.WorkflowState)
	}

	updated := product.Clone()
	changes := applyProductChanges(updated, req)
	if len(changes) == 0 {
		return nil, nil, domain.ErrNothingToUpdate
	}

	if err := uc.check(ctx, actor, domain.ActionEdit, updated); err != nil {
		return nil, nil, err
	}
	if updated.SKU != product.SKU {
		if err := uc.ensureUniqueSKU(ctx, product.TenantID, updated.SKU, product.ID); err != nil {
			return nil, nil, err
		}
	}

	if updated.WorkflowState == domain.WorkflowStateRejected {
		result := uc.stateManager.ExecuteStateTransition(TransitionRequest{
			ProductID: updated.ID,
			Action:    domain.ActionEdit,
			UserID:    actor.UserID,
			UserRole:  actor.Role,
			UserEmail: actor.Email,
			Reason:    req.Reason,
		}, updated)
		if !result.Success {
			return nil, nil, newValidationError(domain.ErrInvalidTransition, result.Errors...)
		}
		changes = append(changes, domain.FieldChange{
			Field:    "workflowState",
			OldValue: result.Event.FromState,
			NewValue: result.Event.ToState,
		})
	}

	if err := uc.productRepo.Update(ctx, updated); err != nil {
		return nil, nil, fmt.Errorf("failed to update product: %w", err)
	}
	return updated, changes, nil
}

// applyProductChanges mutates p and returns one FieldChange per attribute that differs
func applyProductChanges(p *domain.Product, req UpdateProductRequest) []domain.FieldChange {
	var changes []domain.FieldChange
	note := func(field string, oldValue, newValue interface{}) {
		changes = append(changes, domain.FieldChange{Field: field, OldValue: oldValue, NewValue: newValue})
	}

	if req.Name != nil && strings.TrimSpace(*req.Name) != p.Name {
		v := strings.TrimSpace(*req.Name)
		note("name", p.Name, v)
		p.Name = v
	}
	if req.SKU != nil && strings.TrimSpace(*req.SKU) != p.SKU {
		v := strings.TrimSpace(*req.SKU)
		note("sku", p.SKU, v)
		p.SKU = v
	}
	if req.Brand != nil && strings.TrimSpace(*req.Brand) != p.Brand {
		v := strings.TrimSpace(*req.Brand)
		note("brand", p.Brand, v)
		p.Brand = v
	}
	if req.Description != nil && *req.Description != p.Description {
		note("description", p.Description, *req.Description)
		p.Description = *req.Description
	}
	if req.Price != nil && *req.Price != p.Price {
		note("price", p.Price, *req.Price)
		p.Price = *req.Price
	}
	if req.Categories != nil && !reflect.DeepEqual(nonNil(*req.Categories), nonNil(p.Categories)) {
		v := append([]string{}, *req.Categories...)
		note("categories", p.Categories, v)
		p.Categories = v
	}
	if req.Keywords != nil && !reflect.DeepEqual(nonNil(*req.Keywords), nonNil(p.Keywords)) {
		v := append([]string{}, *req.Keywords...)
		note("keywords", p.Keywords, v)
		p.Keywords = v
	}
	if req.Images != nil && !reflect.DeepEqual(append([]domain.ProductImage{}, *req.Images...), append([]domain.ProductImage{}, p.Images...)) {
		v := append([]domain.ProductImage{}, *req.Images...)
		note("images", p.Images, v)
		p.Images = v
	}
	return changes
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func changedFieldNames(changes []domain.FieldChange) []string {
	names := make([]string, 0, len(changes))
	for _, c := range changes {
		names = append(names, c.Field)
	}
	return names
}

// DeleteProduct removes a product
func (uc *ProductUseCase) DeleteProduct(ctx context.Context, actor domain.Actor, productID string) error {
	product, err := uc.loadProduct(ctx, actor, productID)
	if err != nil {
		return err
	}
	if err := uc.check(ctx, actor, domain.ActionDelete, product); err != nil {
		return err
	}
	if err := uc.ensureWritable(); err != nil {
		return err
	}

	if err := uc.productRepo.Delete(ctx, product.ID); err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	in := AuditInputFor(actor, domain.AuditActionProductDelete, SubjectProduct, product.ID)
	in.Metadata = map[string]string{
		"sku":           product.SKU,
		"workflowState": string(product.WorkflowState),
	}
	undo := func(ctx context.Context) error { return uc.productRepo.Create(ctx, product) }
	if err := uc.recordOrUndo(ctx, in, undo); err != nil {
		return err
	}

	uc.publish(ctx, actor, ports.EventTypeProductDeleted, product.ID, map[string]interface{}{
		"sku": product.SKU,
	})
	return nil
}

// AssignReviewer assigns a reviewer to a product. The reviewer must be an active REVIEWER
// or ADMIN of the same tenant.
func (uc *ProductUseCase) AssignReviewer(ctx context.Context, actor domain.Actor, productID, reviewerID string) (*domain.Product, error) {
	if reviewerID == "" {
		return nil, fmt.Errorf("reviewer ID is required")
	}
	product, err := uc.loadProduct(ctx, actor, productID)
	if err != nil {
		return nil, err
	}
	if err := uc.check(ctx, actor, domain.ActionAssignReviewer, product); err != nil {
		return nil, err
	}
	if err := uc.ensureWritable(); err != nil {
		return nil, err
	}
	if !assignableStates[product.WorkflowState] {
		return nil, fmt.Errorf("%w: product is %s", domain.ErrProductNotEditable, product.WorkflowState)
	}

	reviewer, err := uc.userRepo.FindByID(ctx, reviewerID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidReviewer
		}
		return nil, fmt.Errorf("failed to get reviewer: %w", err)
	}
	if reviewer.TenantID != product.TenantID || !reviewer.CanReview() {
		return nil, domain.ErrInvalidReviewer
	}

	var previous interface{}
	if product.AssignedReviewerID != nil {
		previous = *product.AssignedReviewerID
	}
	updated := product.Clone()
	updated.AssignedReviewerID = &reviewer.ID
	updated.UpdatedAt = uc.stateManager.now()

	if err := uc.productRepo.Update(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	in := AuditInputFor(actor, domain.AuditActionReviewerAssign, SubjectProduct, updated.ID)
	in.FieldChanges = []domain.FieldChange{{Field: "assignedReviewerId", OldValue: previous, NewValue: reviewer.ID}}
	if err := uc.recordOrUndo(ctx, in, uc.restore(product, updated)); err != nil {
		return nil, err
	}

	uc.publish(ctx, actor, ports.EventTypeReviewerAssigned, updated.ID, map[string]interface{}{
		"reviewer_id": reviewer.ID,
		"assigned_by": actor.UserID,
	})
	return updated, nil
}

// TransitionProduct runs the request through validation and the state manager, persists the
// new state, records one audit entry and publishes one event. The write only lands on the
// version that was validated, so of two racing requests for the same move one gets
// domain.ErrConcurrentUpdate and leaves no entry.
func (uc *ProductUseCase) TransitionProduct(ctx context.Context, actor domain.Actor, productID string, in TransitionInput) (*domain.Product, *TransitionEvent, error) {
	product, err := uc.loadProduct(ctx, actor, productID)
	if err != nil {
		return nil, nil, err
	}
	if in.Action == "" {
		return nil, nil, newValidationError(domain.ErrValidationFailed, "Action is required")
	}

	vc := ValidationContext{
		UserID:       actor.UserID,
		UserRole:     actor.Role,
		UserEmail:    actor.Email,
		ProductID:    product.ID,
		Action:       in.Action,
		CurrentState: product.WorkflowState,
		TargetState:  in.ToState,
		Product:      product,
	}
	if err := uc.validator.Check(ctx, vc); err != nil {
		return nil, nil, err
	}
	if err := uc.ensureWritable(); err != nil {
		return nil, nil, err
	}

	updated := product.Clone()
	result := uc.stateManager.ExecuteStateTransition(TransitionRequest{
		ProductID: product.ID,
		Action:    in.Action,
		FromState: product.WorkflowState,
		ToState:   in.ToState,
		UserID:    actor.UserID,
		UserRole:  actor.Role,
		UserEmail: actor.Email,
		Reason:    in.Reason,
	}, updated)
	if !result.Success {
		return nil, nil, newValidationError(domain.ErrInvalidTransition, result.Errors...)
	}

	if err := uc.productRepo.Update(ctx, updated); err != nil {
		return nil, nil, fmt.Errorf("failed to update product: %w", err)
	}

	ev := result.Event
	audit := AuditInputFor(actor, domain.AuditActionWorkflowTransition, SubjectProduct, updated.ID)
	audit.FieldChanges = []domain.FieldChange{{Field: "workflowState", OldValue: ev.FromState, NewValue: ev.ToState}}
	audit.Reason = ev.Reason
	audit.Metadata = map[string]string{"transitionAction": string(ev.Action)}
	if err := uc.recordOrUndo(ctx, audit, uc.restore(product, updated)); err != nil {
		return nil, nil, err
	}

	uc.publish(ctx, actor, ports.EventTypeWorkflowTransitioned, updated.ID, map[string]interface{}{
		"action":     ev.Action,
		"from_state": ev.FromState,
		"to_state":   ev.ToState,
		"reason":     ev.Reason,
		"automatic":  ev.Automatic,
	})

	uc.logger.Info(ctx, "Product workflow transitioned", map[string]interface{}{
		"product_id": updated.ID,
		"action":     ev.Action,
		"from_state": ev.FromState,
		"to_state":   ev.ToState,
		"user_id":    actor.UserID,
	})
	return updated, ev, nil
}

// BulkUpdate applies one change set to several products. Each product succeeds or fails on
// its own; every updated product gets its own BULK_OPERATION entry sharing the bulk id.
func (uc *ProductUseCase) BulkUpdate(ctx context.Context, actor domain.Actor, req BulkUpdateRequest) (*BulkUpdateResult, error) {
	if err := uc.check(ctx, actor, domain.ActionBulkEdit, nil); err != nil {
		return nil, err
	}
	if len(req.ProductIDs) == 0 {
		return nil, newValidationError(domain.ErrValidationFailed, "At least one product ID is required")
	}
	if len(req.ProductIDs) > MaxBulkProducts {
		return nil, newValidationError(domain.ErrValidationFailed,
			fmt.Sprintf("At most %d products can be updated at once", MaxBulkProducts))
	}
	if err := uc.ensureWritable(); err != nil {
		return nil, err
	}

	result := &BulkUpdateResult{
		BulkID:  uuid.NewString(),
		Updated: []string{},
		Failed:  make(map[string]string),
	}
	changes := req.Changes
	if changes.Reason == "" {
		changes.Reason = req.Reason
	}

	seen := make(map[string]bool, len(req.ProductIDs))
	for _, id := range req.ProductIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		product, err := uc.loadProduct(ctx, actor, id)
		if err != nil {
			result.Failed[id] = err.Error()
			continue
		}
		updated, fieldChanges, err := uc.edit(ctx, actor, product, changes)
		if err != nil {
			result.Failed[id] = err.Error()
			continue
		}

		in := AuditInputFor(actor, domain.AuditActionBulkOperation, SubjectProduct, id)
		in.FieldChanges = fieldChanges
		in.Reason = req.Reason
		in.Metadata = map[string]string{"bulkId": result.BulkID}
		if err := uc.recordOrUndo(ctx, in, uc.restore(product, updated)); err != nil {
			return result, err
		}

		uc.publish(ctx, actor, ports.EventTypeBulkUpdated, id, map[string]interface{}{
			"bulk_id":        result.BulkID,
			"fields":         changedFieldNames(fieldChanges),
			"workflow_state": updated.WorkflowState,
		})
		result.Updated = append(result.Updated, id)
	}

	uc.logger.Info(ctx, "Bulk product update completed", map[string]interface{}{
		"bulk_id": result.BulkID,
		"updated": len(result.Updated),
		"failed":  len(result.Failed),
	})
	return result, nil
}

// AvailableActions lists the manual transitions the actor may request on a product
func (uc *ProductUseCase) AvailableActions(ctx context.Context, actor domain.Actor, productID string) (*ProductActions, error) {
	product, err := uc.GetProduct(ctx, actor, productID)
	if err != nil {
		return nil, err
	}
	return &ProductActions{
		ProductID: product.ID,
		State:     product.WorkflowState,
		Actions:   uc.stateManager.AvailableActions(product.WorkflowState, actor.Role),
	}, nil
}
