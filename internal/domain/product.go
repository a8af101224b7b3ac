package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ProductImage is a single product image reference
type ProductImage struct {
	URL     string `json:"url"`
	AltText string `json:"altText,omitempty"`
}

// Product represents a product record managed by the editorial workflow
type Product struct {
	ID                 string                 `json:"id"`
	TenantID           string                 `json:"tenantId,omitempty"`
	Name               string                 `json:"name"`
	SKU                string                 `json:"sku"`
	Brand              string                 `json:"brand"`
	Description        string                 `json:"description"`
	Price              float64                `json:"price"`
	Categories         []string               `json:"categories"`
	Keywords           []string               `json:"keywords"`
	Images             []ProductImage         `json:"images"`
	WorkflowState      WorkflowState          `json:"workflowState"`
	AssignedReviewerID *string                `json:"assignedReviewerId,omitempty"`
	SubmittedBy        string                 `json:"submittedBy"`
	CreatedBy          string                 `json:"createdBy"`
	WorkflowHistory    []WorkflowHistoryEntry `json:"workflowHistory"`
	CreatedAt          time.Time              `json:"createdAt"`
	UpdatedAt          time.Time              `json:"updatedAt"`
	PublishedAt        *time.Time             `json:"publishedAt,omitempty"`
	// Version increases on every stored update; Update only succeeds against the version it read
	Version int64 `json:"version"`
}

// ProductFields carries the editable attributes of a product
type ProductFields struct {
	Name        string         `json:"name"`
	SKU         string         `json:"sku"`
	Brand       string         `json:"brand"`
	Description string         `json:"description"`
	Price       float64        `json:"price"`
	Categories  []string       `json:"categories"`
	Keywords    []string       `json:"keywords"`
	Images      []ProductImage `json:"images"`
}

// NewProduct creates a product in DRAFT owned by the creating user
func NewProduct(tenantID string, fields ProductFields, createdBy string, role UserRole) *Product {
	now := time.Now().UTC()
	return &Product{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		Name:          strings.TrimSpace(fields.Name),
		SKU:           strings.TrimSpace(fields.SKU),
		Brand:         strings.TrimSpace(fields.Brand),
		Description:   fields.Description,
		Price:         fields.Price,
		Categories:    append([]string(nil), fields.Categories...),
		Keywords:      append([]string(nil), fields.Keywords...),
		Images:        append([]ProductImage(nil), fields.Images...),
		WorkflowState: WorkflowStateDraft,
		SubmittedBy:   createdBy,
		CreatedBy:     createdBy,
		WorkflowHistory: []WorkflowHistoryEntry{{
			ToState:   WorkflowStateDraft,
			Action:    ActionCreate,
			UserID:    createdBy,
			UserRole:  role,
			Timestamp: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
}

// HasReviewer reports whether a reviewer is assigned
func (p *Product) HasReviewer() bool {
	return p.AssignedReviewerID != nil && *p.AssignedReviewerID != ""
}

// MissingRequiredFields returns the names of required attributes that are blank
func (p *Product) MissingRequiredFields() []string {
	var missing []string
	if strings.TrimSpace(p.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(p.SKU) == "" {
		missing = append(missing, "sku")
	}
	if strings.TrimSpace(p.Brand) == "" {
		missing = append(missing, "brand")
	}
	return missing
}

// LastHistoryEntry returns the most recent workflow history record
func (p *Product) LastHistoryEntry() (WorkflowHistoryEntry, bool) {
	if len(p.WorkflowHistory) == 0 {
		return WorkflowHistoryEntry{}, false
	}
	return p.WorkflowHistory[len(p.WorkflowHistory)-1], true
}

// Clone returns a deep copy of the product
func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	c := *p
	c.Categories = append([]string(nil), p.Categories...)
	c.Keywords = append([]string(nil), p.Keywords...)
	c.Images = append([]ProductImage(nil), p.Images...)
	c.WorkflowHistory = append([]WorkflowHistoryEntry(nil), p.WorkflowHistory...)
	if p.AssignedReviewerID != nil {
		id := *p.AssignedReviewerID
		c.AssignedReviewerID = &id
	}
	if p.PublishedAt != nil {
		t := *p.PublishedAt
		c.PublishedAt = &t
	}
	return &c
}

// ProductFilter represents filters for listing products
type ProductFilter struct {
	TenantID           string         `json:"tenantId,omitempty"`
	WorkflowState      *WorkflowState `json:"workflowState,omitempty"`
	Brand              *string        `json:"brand,omitempty"`
	Category           *string        `json:"category,omitempty"`
	CreatedBy          *string        `json:"createdBy,omitempty"`
	AssignedReviewerID *string        `json:"assignedReviewerId,omitempty"`
	Search             string         `json:"search,omitempty"`
	Limit              int            `json:"limit"`
	Offset             int            `json:"offset"`
}

// Matches reports whether the product satisfies every set criterion (pagination ignored)
func (f ProductFilter) Matches(p *Product) bool {
	if f.TenantID != "" && p.TenantID != f.TenantID {
		return false
	}
	if f.WorkflowState != nil && p.WorkflowState != *f.WorkflowState {
		return false
	}
	if f.Brand != nil && !strings.EqualFold(p.Brand, *f.Brand) {
		return false
	}
	if f.Category != nil && !containsFold(p.Categories, *f.Category) {
		return false
	}
	if f.CreatedBy != nil && p.CreatedBy != *f.CreatedBy {
		return false
	}
	if f.AssignedReviewerID != nil && (p.AssignedReviewerID == nil || *p.AssignedReviewerID != *f.AssignedReviewerID) {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(p.Name), q) && !strings.Contains(strings.ToLower(p.SKU), q) {
			return false
		}
	}
	return true
}

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}
