package persistence

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/fixora/pim/internal/domain"
	"github.com/fixora/pim/internal/ports"
)

// MemoryUserRepository implements UserRepository in process memory
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

// NewMemoryUserRepository creates an empty in-memory user repository
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]*domain.User)}
}

var _ ports.UserRepository = (*MemoryUserRepository)(nil)

func copyUser(u *domain.User) *domain.User {
	c := *u
	return &c
}

// Create saves a new user; emails are unique per tenant
func (r *MemoryUserRepository) Create(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[user.ID]; exists {
		return domain.ErrUserExists
	}
	for _, u := range r.users {
		if u.TenantID == user.TenantID && strings.EqualFold(u.Email, user.Email) {
			return domain.ErrUserExists
		}
	}
	r.users[user.ID] = copyUser(user)
	return nil
}

// FindByID retrieves a user by its ID
func (r *MemoryUserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return copyUser(u), nil
}

// FindByEmail retrieves a user by email within a tenant
func (r *MemoryUserRepository) FindByEmail(ctx context.Context, tenantID, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.TenantID == tenantID && strings.EqualFold(u.Email, email) {
			return copyUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

// Update replaces an existing user
func (r *MemoryUserRepository) Update(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; !ok {
		return domain.ErrUserNotFound
	}
	r.users[user.ID] = copyUser(user)
	return nil
}

// Delete removes a user
func (r *MemoryUserRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return domain.ErrUserNotFound
	}
	delete(r.users, id)
	return nil
}

// List returns users matching filter ordered by email
func (r *MemoryUserRepository) List(ctx context.Context, filter domain.UserFilter) ([]*domain.User, error) {
	matches := r.matching(filter)
	if filter.Offset > 0 {
		if filter.Offset >= len(matches) {
			return []*domain.User{}, nil
		}
		matches = matches[filter.Offset:]
	}
	if filter.Limit > 0 && len(matches) > filter.Limit {
		matches = matches[:filter.Limit]
	}
	return matches, nil
}

// Count returns the number of users matching filter
func (r *MemoryUserRepository) Count(ctx context.Context, filter domain.UserFilter) (int, error) {
	return len(r.matching(filter)), nil
}

func (r *MemoryUserRepository) matching(filter domain.UserFilter) []*domain.User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := []*domain.User{}
	for _, u := range r.users {
		if filter.Matches(u) {
			matches = append(matches, copyUser(u))
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Email < matches[j].Email })
	return matches
}
