package ports

import (
	"context"
	"time"

	"github.com/fixora/pim/internal/domain"
)

// ProductRepository defines the interface for product persistence
type ProductRepository interface {
	// Create saves a new product
	Create(ctx context.Context, product *domain.Product) error

	// FindByID retrieves a product by its ID
	FindByID(ctx context.Context, id string) (*domain.Product, error)

	// FindBySKU retrieves a product by SKU within a tenant
	FindBySKU(ctx context.Context, tenantID, sku string) (*domain.Product, error)

	// Update stores product if the stored version still equals product.Version and bumps
	// product.Version on success. A stale version yields domain.ErrConcurrentUpdate.
	Update(ctx context.Context, product *domain.Product) error

	// List retrieves products based on filter criteria
	List(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, error)

	// Delete removes a product
	Delete(ctx context.Context, id string) error

	// Count returns the number of products matching the filter
	Count(ctx context.Context, filter domain.ProductFilter) (int, error)
}

// UserRepository defines the interface for user persistence
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, tenantID, email string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	// Delete removes a user outright; only used to undo a registration whose audit entry failed
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter domain.UserFilter) ([]*domain.User, error)
	Count(ctx context.Context, filter domain.UserFilter) (int, error)
}

// AuditRepository is the append-only store behind the audit trail.
// Implementations return copies; callers cannot mutate stored entries.
type AuditRepository interface {
	// Append stores a new entry at the end of the log
	Append(ctx context.Context, entry domain.AuditTrailEntry) error

	// FindByID retrieves an entry by its ID
	FindByID(ctx context.Context, id string) (domain.AuditTrailEntry, error)

	// FindByChainHash retrieves the entry of a tenant chain whose chain hash is hash
	FindByChainHash(ctx context.Context, tenantID, hash string) (domain.AuditTrailEntry, error)

	// Latest returns the most recently appended entry of a tenant chain, or false if the chain is empty
	Latest(ctx context.Context, tenantID string) (domain.AuditTrailEntry, bool, error)

	// Query returns the page of entries matching filter together with the total match count.
	// A non-positive Limit returns every match.
	Query(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditTrailEntry, int, error)

	// Archive flags entries older than cutoff that are not yet archived and returns how many changed
	Archive(ctx context.Context, cutoff, archivedAt time.Time) (int, error)

	// Purge physically removes entries whose ExpiresAt is before now. Only the head of each
	// tenant chain is removed: an expired entry stays until every older entry of its tenant
	// has been purged, so chains never have gaps.
	Purge(ctx context.Context, now time.Time) (int, error)

	// PurgeAll removes every entry whose ExpiresAt is before now, wherever it sits in its chain
	PurgeAll(ctx context.Context, now time.Time) (int, error)
}
