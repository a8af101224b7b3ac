package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/fixora/pim/internal/domain"
	"github.com/fixora/pim/internal/usecase"
)

// RequestValidator runs the ordered request checks
type RequestValidator interface {
	Validate(ctx context.Context, vc usecase.ValidationContext) domain.ValidationResult
}

// ValidateHandler exposes the validation middleware as a dry-run endpoint
type ValidateHandler struct {
	validator RequestValidator
	products  ProductService
}

// NewValidateHandler creates a validate handler. products loads the product named by
// productId when the body carries none.
func NewValidateHandler(validator RequestValidator, products ProductService) *ValidateHandler {
	return &ValidateHandler{validator: validator, products: products}
}

// validateRequest is the body of POST /api/v1/validate; identity comes from the caller
type validateRequest struct {
	ProductID      string                `json:"productId,omitempty"`
	Action         domain.WorkflowAction `json:"action,omitempty"`
	CurrentState   domain.WorkflowState  `json:"currentState,omitempty"`
	TargetState    domain.WorkflowState  `json:"targetState,omitempty"`
	Product        *domain.Product       `json:"product,omitempty"`
	RequireQuality bool                  `json:"requireQuality,omitempty"`
}

// RegisterRoutes registers the validate route
func (h *ValidateHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/validate", h.Validate).Methods("POST")
}

// Validate answers 200 when the request would pass and 400 with the itemized result otherwise
func (h *ValidateHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	actor := ActorFromContext(r.Context())
	vc := usecase.ValidationContext{
		UserID:         actor.UserID,
		UserRole:       actor.Role,
		UserEmail:      actor.Email,
		ProductID:      req.ProductID,
		Action:         domain.WorkflowAction(strings.ToUpper(string(req.Action))),
		CurrentState:   domain.WorkflowState(strings.ToUpper(string(req.CurrentState))),
		TargetState:    domain.WorkflowState(strings.ToUpper(string(req.TargetState))),
		Product:        req.Product,
		RequireQuality: req.RequireQuality,
	}

	if vc.Product == nil && vc.ProductID != "" && h.products != nil {
		product, err := h.products.GetProduct(r.Context(), actor, vc.ProductID)
		if err != nil {
			writeError(w, err)
			return
		}
		vc.Product = product
	}

	result := h.validator.Validate(r.Context(), vc)
	if !result.IsValid {
		writeJSON(w, http.StatusBadRequest, false, "Validation failed", result)
		return
	}
	writeSuccess(w, http.StatusOK, "Validation passed", result)
}
