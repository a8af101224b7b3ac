package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/fixora/pim/internal/domain"
	"github.com/fixora/pim/internal/usecase"
)

// ProductService is the product behavior the handler depends on
type ProductService interface {
	CreateProduct(ctx context.Context, actor domain.Actor, fields domain.ProductFields) (*domain.Product, error)
	GetProduct(ctx context.Context, actor domain.Actor, productID string) (*domain.Product, error)
	ListProducts(ctx context.Context, actor domain.Actor, filter domain.ProductFilter) ([]*domain.Product, int, error)
	UpdateProduct(ctx context.Context, actor domain.Actor, productID string, req usecase.UpdateProductRequest) (*domain.Product, error)
	DeleteProduct(ctx context.Context, actor domain.Actor, productID string) error
	AssignReviewer(ctx context.Context, actor domain.Actor, productID, reviewerID string) (*domain.Product, error)
	TransitionProduct(ctx context.Context, actor domain.Actor, productID string, in usecase.TransitionInput) (*domain.Product, *usecase.TransitionEvent, error)
	BulkUpdate(ctx context.Context, actor domain.Actor, req usecase.BulkUpdateRequest) (*usecase.BulkUpdateResult, error)
	AvailableActions(ctx context.Context, actor domain.Actor, productID string) (*usecase.ProductActions, error)
}

// ProductHandler handles HTTP requests for products
type ProductHandler struct {
	products ProductService
}

// NewProductHandler creates a new product handler
func NewProductHandler(products ProductService) *ProductHandler {
	return &ProductHandler{products: products}
}

// ListProductsResponse is one page of products
type ListProductsResponse struct {
	Products []*domain.Product `json:"products"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PerPage  int               `json:"perPage"`
}

// TransitionResponse carries the transitioned product and the emitted event
type TransitionResponse struct {
	Product *domain.Product          `json:"product"`
	Event   *usecase.TransitionEvent `json:"event"`
}

type assignReviewerRequest struct {
	ReviewerID string `json:"reviewerId"`
}

// RegisterRoutes registers product routes. guard wraps the write-heavy routes.
func (h *ProductHandler) RegisterRoutes(router *mux.Router, guard func(http.Handler) http.Handler) {
	router.HandleFunc("/api/v1/products", h.CreateProduct).Methods("POST")
	router.HandleFunc("/api/v1/products", h.ListProducts).Methods("GET")
	router.Handle("/api/v1/products/bulk", guard(http.HandlerFunc(h.BulkUpdate))).Methods("POST")
	router.HandleFunc("/api/v1/products/{id}", h.GetProduct).Methods("GET")
	router.HandleFunc("/api/v1/products/{id}", h.UpdateProduct).Methods("PATCH")
	router.HandleFunc("/api/v1/products/{id}", h.DeleteProduct).Methods("DELETE")
	router.HandleFunc("/api/v1/products/{id}/reviewer", h.AssignReviewer).Methods("POST")
	router.Handle("/api/v1/products/{id}/transitions", guard(http.HandlerFunc(h.TransitionProduct))).Methods("POST")
	router.HandleFunc("/api/v1/products/{id}/actions", h.AvailableActions).Methods("GET")
}

// CreateProduct handles product creation
func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var fields domain.ProductFields
	if err := decodeJSON(r, &fields); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	product, err := h.products.CreateProduct(r.Context(), ActorFromContext(r.Context()), fields)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Product created successfully", product)
}

// GetProduct handles retrieving one product
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.products.GetProduct(r.Context(), ActorFromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Product retrieved successfully", product)
}

// ListProducts handles listing with filters and page/per_page pagination
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, perPage := parsePagination(r)

	filter := domain.ProductFilter{
		Search: strings.TrimSpace(q.Get("search")),
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	}
	if v := q.Get("state"); v != "" {
		state := domain.WorkflowState(strings.ToUpper(v))
		if !state.IsValid() {
			writeFailure(w, http.StatusBadRequest, "Invalid workflow state")
			return
		}
		filter.WorkflowState = &state
	}
	if v := q.Get("brand"); v != "" {
		filter.Brand = &v
	}
	if v := q.Get("category"); v != "" {
		filter.Category = &v
	}
	if v := q.Get("created_by"); v != "" {
		filter.CreatedBy = &v
	}
	if v := q.Get("reviewer"); v != "" {
		filter.AssignedReviewerID = &v
	}

	products, total, err := h.products.ListProducts(r.Context(), ActorFromContext(r.Context()), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Products retrieved successfully", ListProductsResponse{
		Products: products,
		Total:    total,
		Page:     page,
		PerPage:  perPage,
	})
}

// UpdateProduct handles partial product updates
func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req usecase.UpdateProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	product, err := h.products.UpdateProduct(r.Context(), ActorFromContext(r.Context()), mux.Vars(r)["id"], req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Product updated successfully", product)
}

// DeleteProduct handles product deletion
func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.products.DeleteProduct(r.Context(), ActorFromContext(r.Context()), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Product deleted successfully", nil)
}

// AssignReviewer handles reviewer assignment
func (h *ProductHandler) AssignReviewer(w http.ResponseWriter, r *http.Request) {
	var req assignReviewerRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.ReviewerID) == "" {
		writeFailure(w, http.StatusBadRequest, "reviewerId is required")
		return
	}

	product, err := h.products.AssignReviewer(r.Context(), ActorFromContext(r.Context()), mux.Vars(r)["id"], req.ReviewerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Reviewer assigned successfully", product)
}

// TransitionProduct handles workflow actions
func (h *ProductHandler) TransitionProduct(w http.ResponseWriter, r *http.Request) {
	var in usecase.TransitionInput
	if err := decodeJSON(r, &in); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	in.Action = domain.WorkflowAction(strings.ToUpper(strings.TrimSpace(string(in.Action))))
	in.ToState = domain.WorkflowState(strings.ToUpper(strings.TrimSpace(string(in.ToState))))

	product, event, err := h.products.TransitionProduct(r.Context(), ActorFromContext(r.Context()), mux.Vars(r)["id"], in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Workflow transition completed", TransitionResponse{Product: product, Event: event})
}

// BulkUpdate handles bulk edits
func (h *ProductHandler) BulkUpdate(w http.ResponseWriter, r *http.Request) {
	var req usecase.BulkUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.products.BulkUpdate(r.Context(), ActorFromContext(r.Context()), req)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if len(result.Failed) > 0 {
		status = http.StatusMultiStatus
	}
	writeSuccess(w, status, "Bulk update completed", result)
}

// AvailableActions lists the workflow actions open to the caller
func (h *ProductHandler) AvailableActions(w http.ResponseWriter, r *http.Request) {
	actions, err := h.products.AvailableActions(r.Context(), ActorFromContext(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Available actions retrieved", actions)
}

// parsePagination reads page and per_page, defaulting to 1 and 20 with per_page capped at 100
func parsePagination(r *http.Request) (int, int) {
	page, perPage := 1, 20
	if v := r.URL.Query().Get("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			page = p
		}
	}
	if v := r.URL.Query().Get("per_page"); v != "" {
		if pp, err := strconv.Atoi(v); err == nil && pp > 0 {
			perPage = pp
		}
	}
	if perPage > 100 {
		perPage = 100
	}
	return page, perPage
}
