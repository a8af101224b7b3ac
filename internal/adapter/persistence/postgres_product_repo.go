package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/fixora/pim/internal/domain"
	"github.com/fixora/pim/internal/ports"
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

const productColumns = `id, tenant_id, name, sku, brand, description, price, categories, keywords, images,
	workflow_state, assigned_reviewer_id, submitted_by, created_by, workflow_history, created_at, updated_at, published_at,
	version`

// PostgresProductRepository implements ProductRepository using PostgreSQL
type PostgresProductRepository struct {
	db *sql.DB
}

// NewPostgresProductRepository creates a new PostgreSQL product repository
func NewPostgresProductRepository(db *sql.DB) ports.ProductRepository {
	return &PostgresProductRepository{db: db}
}

// productJSON holds the JSONB encoded collections of a product
type productJSON struct {
	categories, keywords, images, history []byte
}

func encodeProduct(p *domain.Product) (productJSON, error) {
	var out productJSON
	var err error
	if out.categories, err = json.Marshal(nonNilStrings(p.Categories)); err != nil {
		return out, fmt.Errorf("failed to marshal categories: %w", err)
	}
	if out.keywords, err = json.Marshal(nonNilStrings(p.Keywords)); err != nil {
		return out, fmt.Errorf("failed to marshal keywords: %w", err)
	}
	images := p.Images
	if images == nil {
		images = []domain.ProductImage{}
	}
	if out.images, err = json.Marshal(images); err != nil {
		return out, fmt.Errorf("failed to marshal images: %w", err)
	}
	history := p.WorkflowHistory
	if history == nil {
		history = []domain.WorkflowHistoryEntry{}
	}
	if out.history, err = json.Marshal(history); err != nil {
		return out, fmt.Errorf("failed to marshal workflow history: %w", err)
	}
	return out, nil
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// Create saves a new product
func (r *PostgresProductRepository) Create(ctx context.Context, product *domain.Product) error {
	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	enc, err := encodeProduct(product)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query,
		product.ID,
		product.TenantID,
		product.Name,
		product.SKU,
		product.Brand,
		product.Description,
		product.Price,
		enc.categories,
		enc.keywords,
		enc.images,
		string(product.WorkflowState),
		product.AssignedReviewerID,
		product.SubmittedBy,
		product.CreatedBy,
		enc.history,
		product.CreatedAt,
		product.UpdatedAt,
		product.PublishedAt,
		product.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateSKU
		}
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var p domain.Product
	var reviewer sql.NullString
	var publishedAt sql.NullTime
	var categories, keywords, images, history []byte

	err := row.Scan(
		&p.ID,
		&p.TenantID,
		&p.Name,
		&p.SKU,
		&p.Brand,
		&p.Description,
		&p.Price,
		&categories,
		&keywords,
		&images,
		&p.WorkflowState,
		&reviewer,
		&p.SubmittedBy,
		&p.CreatedBy,
		&history,
		&p.CreatedAt,
		&p.UpdatedAt,
		&publishedAt,
		&p.Version,
	)
	if err != nil {
		return nil, err
	}

	if reviewer.Valid {
		p.AssignedReviewerID = &reviewer.String
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		p.PublishedAt = &t
	}
	for _, field := range []struct {
		raw  []byte
		dest interface{}
		name string
	}{
		{categories, &p.Categories, "categories"},
		{keywords, &p.Keywords, "keywords"},
		{images, &p.Images, "images"},
		{history, &p.WorkflowHistory, "workflow history"},
	} {
		if len(field.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(field.raw, field.dest); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", field.name, err)
		}
	}
	return &p, nil
}

// FindByID retrieves a product by its ID
func (r *PostgresProductRepository) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	product, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product: %w", err)
	}
	return product, nil
}

// FindBySKU retrieves a product by SKU within a tenant, ignoring case
func (r *PostgresProductRepository) FindBySKU(ctx context.Context, tenantID, sku string) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE tenant_id = $1 AND LOWER(sku) = LOWER($2)`

	product, err := scanProduct(r.db.QueryRowContext(ctx, query, tenantID, sku))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by sku: %w", err)
	}
	return product, nil
}

// Update updates an existing product, guarded by its version
func (r *PostgresProductRepository) Update(ctx context.Context, product *domain.Product) error {
	query := `
		UPDATE products
		SET name = $2, sku = $3, brand = $4, description = $5, price = $6, categories = $7,
			keywords = $8, images = $9, workflow_state = $10, assigned_reviewer_id = $11,
			submitted_by = $12, workflow_history = $13, updated_at = $14, published_at = $15,
			version = version + 1
		WHERE id = $1 AND version = $16
		RETURNING version
	`

	enc, err := encodeProduct(product)
	if err != nil {
		return err
	}

	var version int64
	err = r.db.QueryRowContext(ctx, query,
		product.ID,
		product.Name,
		product.SKU,
		product.Brand,
		product.Description,
		product.Price,
		enc.categories,
		enc.keywords,
		enc.images,
		string(product.WorkflowState),
		product.AssignedReviewerID,
		product.SubmittedBy,
		enc.history,
		product.UpdatedAt,
		product.PublishedAt,
		product.Version,
	).Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return r.missOrConflict(ctx, product.ID)
	case err != nil:
		if isUniqueViolation(err) {
			return domain.ErrDuplicateSKU
		}
		return fmt.Errorf("failed to update product: %w", err)
	}
	product.Version = version
	return nil
}

// missOrConflict tells a deleted product apart from a stale version
func (r *PostgresProductRepository) missOrConflict(ctx context.Context, id string) error {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check product: %w", err)
	}
	if !exists {
		return domain.ErrProductNotFound
	}
	return domain.ErrConcurrentUpdate
}

// productConditions builds the WHERE clause shared by List and Count
func productConditions(filter domain.ProductFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filter.TenantID != "" {
		add("tenant_id = $%d", filter.TenantID)
	}
	if filter.WorkflowState != nil {
		add("workflow_state = $%d", string(*filter.WorkflowState))
	}
	if filter.Brand != nil {
		add("LOWER(brand) = LOWER($%d)", *filter.Brand)
	}
	if filter.Category != nil {
		add("EXISTS (SELECT 1 FROM jsonb_array_elements_text(categories) c WHERE LOWER(c) = LOWER($%d))", *filter.Category)
	}
	if filter.CreatedBy != nil {
		add("created_by = $%d", *filter.CreatedBy)
	}
	if filter.AssignedReviewerID != nil {
		add("assigned_reviewer_id = $%d", *filter.AssignedReviewerID)
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf("(LOWER(name) LIKE $%d OR LOWER(sku) LIKE $%d)", n, n))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " AND " + strings.Join(conditions, " AND "), args
}

// List retrieves products based on filter criteria, newest first
func (r *PostgresProductRepository) List(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, error) {
	where, args := productConditions(filter)
	query := `SELECT ` + productColumns + ` FROM products WHERE 1=1` + where + ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}
	return products, nil
}

// Delete removes a product
func (r *PostgresProductRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

// Count returns the number of products matching the filter
func (r *PostgresProductRepository) Count(ctx context.Context, filter domain.ProductFilter) (int, error) {
	where, args := productConditions(filter)
	query := `SELECT COUNT(*) FROM products WHERE 1=1` + where

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return count, nil
}
