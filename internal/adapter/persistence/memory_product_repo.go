package persistence

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/fixora/pim/internal/domain"
	"github.com/fixora/pim/internal/ports"
)

// MemoryProductRepository implements ProductRepository in process memory
type MemoryProductRepository struct {
	mu       sync.RWMutex
	products map[string]*domain.Product
}

// NewMemoryProductRepository creates an empty in-memory product repository
func NewMemoryProductRepository() *MemoryProductRepository {
	return &MemoryProductRepository{products: make(map[string]*domain.Product)}
}

var _ ports.ProductRepository = (*MemoryProductRepository)(nil)

// Create saves a new product
func (r *MemoryProductRepository) Create(ctx context.Context, product *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.products[product.ID]; exists {
		return domain.ErrProductExists
	}
	if r.skuTaken(product.TenantID, product.SKU, product.ID) {
		return domain.ErrDuplicateSKU
	}
	r.products[product.ID] = product.Clone()
	return nil
}

func (r *MemoryProductRepository) skuTaken(tenantID, sku, exceptID string) bool {
	for _, p := range r.products {
		if p.ID != exceptID && p.TenantID == tenantID && strings.EqualFold(p.SKU, sku) {
			return true
		}
	}
	return false
}

// FindByID retrieves a product by its ID
func (r *MemoryProductRepository) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return p.Clone(), nil
}

// FindBySKU retrieves a product by SKU within a tenant
func (r *MemoryProductRepository) FindBySKU(ctx context.Context, tenantID, sku string) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.products {
		if p.TenantID == tenantID && strings.EqualFold(p.SKU, sku) {
			return p.Clone(), nil
		}
	}
	return nil, domain.ErrProductNotFound
}

// Update replaces an existing product when product.Version matches the stored one
func (r *MemoryProductRepository) Update(ctx context.Context, product *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.products[product.ID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if current.Version != product.Version {
		return domain.ErrConcurrentUpdate
	}
	if r.skuTaken(product.TenantID, product.SKU, product.ID) {
		return domain.ErrDuplicateSKU
	}
	stored := product.Clone()
	stored.Version++
	r.products[product.ID] = stored
	product.Version = stored.Version
	return nil
}

// List returns products matching filter, newest first
func (r *MemoryProductRepository) List(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, error) {
	matches := r.matching(filter)
	if filter.Offset > 0 {
		if filter.Offset >= len(matches) {
			return []*domain.Product{}, nil
		}
		matches = matches[filter.Offset:]
	}
	if filter.Limit > 0 && len(matches) > filter.Limit {
		matches = matches[:filter.Limit]
	}
	return matches, nil
}

// Count returns the number of products matching filter
func (r *MemoryProductRepository) Count(ctx context.Context, filter domain.ProductFilter) (int, error) {
	return len(r.matching(filter)), nil
}

func (r *MemoryProductRepository) matching(filter domain.ProductFilter) []*domain.Product {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := []*domain.Product{}
	for _, p := range r.products {
		if filter.Matches(p) {
			matches = append(matches, p.Clone())
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	return matches
}

// Delete removes a product
func (r *MemoryProductRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[id]; !ok {
		return domain.ErrProductNotFound
	}
	delete(r.products, id)
	return nil
}
