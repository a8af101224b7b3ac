package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fixora/pim/internal/adapter/events"
	"github.com/fixora/pim/internal/adapter/persistence"
	"github.com/fixora/pim/internal/domain"
	"github.com/fixora/pim/internal/integrity"
	"github.com/fixora/pim/internal/logger"
	"github.com/fixora/pim/internal/ports"
)

const testTenant = "acme"

type fixture struct {
	products  *persistence.MemoryProductRepository
	users     *persistence.MemoryUserRepository
	auditRepo *persistence.MemoryAuditRepository
	publisher *events.MemoryPublisher

	permissions *domain.PermissionResolver
	states      *WorkflowStateManager
	validator   *ValidationMiddleware
	base        *AuditTrailService
	audit       *ImmutableAuditTrailService
	productUC   *ProductUseCase
	userUC      *UserUseCase

	admin    domain.Actor
	editor   domain.Actor
	reviewer domain.Actor
	viewer   domain.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		products:    persistence.NewMemoryProductRepository(),
		users:       persistence.NewMemoryUserRepository(),
		auditRepo:   persistence.NewMemoryAuditRepository(),
		publisher:   events.NewMemoryPublisher(0),
		permissions: domain.NewPermissionResolver(nil, nil),
	}
	log := logger.NewNopLogger()
	f.states = NewWorkflowStateManager(nil, f.permissions)
	f.validator = NewValidationMiddleware(f.permissions, f.states, NewQualityGate(domain.DefaultQualityThresholds()), log)
	f.base = NewAuditTrailService(f.auditRepo, integrity.SHA256Digester{}, domain.DefaultRetentionPolicy(), log)
	f.audit = NewImmutableAuditTrailService(f.base, ImmutableOptions{ClockSkew: 5 * time.Minute})
	f.productUC = NewProductUseCase(f.products, f.users, f.states, f.validator, f.audit, f.publisher, log)
	f.userUC = NewUserUseCase(f.users, &fakePasswordService{}, &fakeTokenService{}, f.validator, f.audit, f.publisher, log)

	f.admin = f.addUser(t, "admin@acme.test", domain.UserRoleAdmin)
	f.editor = f.addUser(t, "editor@acme.test", domain.UserRoleEditor)
	f.reviewer = f.addUser(t, "reviewer@acme.test", domain.UserRoleReviewer)
	f.viewer = f.addUser(t, "viewer@acme.test", domain.UserRoleViewer)
	return f
}

func (f *fixture) addUser(t *testing.T, email string, role domain.UserRole) domain.Actor {
	t.Helper()
	u := domain.NewUser(testTenant, email, "Test User", "hashed:secret-pass-1", role)
	require.NoError(t, f.users.Create(context.Background(), u))
	return domain.Actor{UserID: u.ID, Role: role, Email: u.Email, TenantID: testTenant}
}

func (f *fixture) createProduct(t *testing.T, actor domain.Actor, sku string) *domain.Product {
	t.Helper()
	p, err := f.productUC.CreateProduct(context.Background(), actor, domain.ProductFields{
		Name:  "Trail Shoe " + sku,
		SKU:   sku,
		Brand: "Acme",
		Price: 89.90,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) entries(t *testing.T) []domain.AuditTrailEntry {
	t.Helper()
	entries, _, err := f.auditRepo.Query(context.Background(), domain.AuditFilter{TenantID: testTenant, IncludeArchived: true})
	require.NoError(t, err)
	return entries
}

func completeFields(sku string) domain.ProductFields {
	return domain.ProductFields{
		Name:        "Trail Shoe " + sku,
		SKU:         sku,
		Brand:       "Acme",
		Description: "A lightweight trail running shoe with a grippy outsole and breathable mesh upper.",
		Price:       120,
		Categories:  []string{"footwear"},
		Keywords:    []string{"trail", "running", "shoe"},
		Images:      []domain.ProductImage{{URL: "https://cdn.example.com/shoe.jpg"}},
	}
}

// fakePasswordService stands in for bcrypt: the hash is the password with a prefix
type fakePasswordService struct{}

func (fakePasswordService) HashPassword(password string) (string, error) {
	return "hashed:" + password, nil
}

func (fakePasswordService) VerifyPassword(hashed, password string) error {
	if hashed != "hashed:"+password {
		return errors.New("password mismatch")
	}
	return nil
}

func (fakePasswordService) ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	return nil
}

type fakeTokenService struct{}

func (fakeTokenService) GenerateToken(actor domain.Actor) (string, time.Time, error) {
	return "token-" + actor.UserID, time.Now().Add(time.Hour), nil
}

func (fakeTokenService) ValidateToken(token string) (domain.Actor, error) {
	return domain.Actor{}, errors.New("not implemented")
}

// tamperingRepo rewrites stored entries on every read, the way an attacker with
// database access would.
type tamperingRepo struct {
	ports.AuditRepository

	mu      sync.Mutex
	mutates map[string]func(*domain.AuditTrailEntry)
}

func newTamperingRepo(inner ports.AuditRepository) *tamperingRepo {
	return &tamperingRepo{AuditRepository: inner, mutates: make(map[string]func(*domain.AuditTrailEntry))}
}

func (r *tamperingRepo) tamper(id string, fn func(*domain.AuditTrailEntry)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mutates[id] = fn
}

func (r *tamperingRepo) apply(e domain.AuditTrailEntry) domain.AuditTrailEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fn, ok := r.mutates[e.ID]; ok {
		fn(&e)
	}
	return e
}

func (r *tamperingRepo) FindByID(ctx context.Context, id string) (domain.AuditTrailEntry, error) {
	e, err := r.AuditRepository.FindByID(ctx, id)
	if err != nil {
		return e, err
	}
	return r.apply(e), nil
}

func (r *tamperingRepo) Latest(ctx context.Context, tenantID string) (domain.AuditTrailEntry, bool, error) {
	e, ok, err := r.AuditRepository.Latest(ctx, tenantID)
	if err != nil || !ok {
		return e, ok, err
	}
	return r.apply(e), true, nil
}

func (r *tamperingRepo) Query(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditTrailEntry, int, error) {
	entries, total, err := r.AuditRepository.Query(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	for i := range entries {
		entries[i] = r.apply(entries[i])
	}
	return entries, total, nil
}

var errAuditDown = errors.New("audit store unavailable")

// flakyRecorder forwards to the wrapped recorder until failing is set
type flakyRecorder struct {
	AuditRecorder
	failing atomic.Bool
}

func (r *flakyRecorder) Record(ctx context.Context, in AuditInput) (domain.AuditTrailEntry, error) {
	if r.failing.Load() {
		return domain.AuditTrailEntry{}, errAuditDown
	}
	return r.AuditRecorder.Record(ctx, in)
}

// gatedProducts holds product reads until two readers have arrived, so two requests
// always act on the same stored version.
type gatedProducts struct {
	ports.ProductRepository

	mu      sync.Mutex
	readers int
	open    chan struct{}
}

func newGatedProducts(inner ports.ProductRepository) *gatedProducts {
	return &gatedProducts{ProductRepository: inner, open: make(chan struct{})}
}

func (r *gatedProducts) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	p, err := r.ProductRepository.FindByID(ctx, id)
	r.mu.Lock()
	r.readers++
	if r.readers == 2 {
		close(r.open)
	}
	r.mu.Unlock()
	<-r.open
	return p, err
}
