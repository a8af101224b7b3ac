package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixora/pim/internal/domain"
)

func TestMemoryProductRepository_UpdateRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryProductRepository()
	p := domain.NewProduct("acme", domain.ProductFields{Name: "Trail Shoe", SKU: "MEM-1", Brand: "Acme"}, "u1", domain.UserRoleEditor)
	require.NoError(t, repo.Create(ctx, p))

	first, err := repo.FindByID(ctx, p.ID)
	require.NoError(t, err)
	second, err := repo.FindByID(ctx, p.ID)
	require.NoError(t, err)

	first.Name = "First writer"
	require.NoError(t, repo.Update(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	second.Name = "Second writer"
	assert.ErrorIs(t, repo.Update(ctx, second), domain.ErrConcurrentUpdate)

	stored, err := repo.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "First writer", stored.Name)
	assert.Equal(t, int64(2), stored.Version)

	require.NoError(t, repo.Delete(ctx, p.ID))
	assert.ErrorIs(t, repo.Update(ctx, stored), domain.ErrProductNotFound)
}

func TestMemoryUserRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	u := domain.NewUser("acme", "editor@acme.test", "Ed", "hash", domain.UserRoleEditor)
	require.NoError(t, repo.Create(ctx, u))

	require.NoError(t, repo.Delete(ctx, u.ID))
	_, err := repo.FindByEmail(ctx, "acme", "editor@acme.test")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, u.ID), domain.ErrUserNotFound)

	require.NoError(t, repo.Create(ctx, domain.NewUser("acme", "editor@acme.test", "Ed", "hash", domain.UserRoleEditor)))
}
