package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fixora/pim/internal/app"
	"github.com/fixora/pim/internal/domain"
	"github.com/fixora/pim/internal/usecase"
)

type seededUser struct {
	Email  string          `json:"email"`
	Role   domain.UserRole `json:"role"`
	ID     string          `json:"id"`
	Status string          `json:"status"`
}

type seedResult struct {
	Tenant    string       `json:"tenant"`
	Users     []seededUser `json:"users"`
	ProductID string       `json:"productId,omitempty"`
}

func newSeedCmd(e *env) *cobra.Command {
	var tenant, emailDomain, password string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed a tenant with one user per role and a draft product",
		Long:  "Creates admin@, editor@, reviewer@ and viewer@ accounts under the given domain. Existing accounts are kept.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = getenvDefault("SEED_USER_PASSWORD", "Demo1234!")
			}

			a, err := e.build(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := seedTenant(cmd.Context(), a, tenant, emailDomain, password)
			if err != nil {
				return err
			}

			return printOutput(cmd.OutOrStdout(), e.outputFmt, result, func(w io.Writer) error {
				rows := make([][]string, 0, len(result.Users))
				for _, u := range result.Users {
					rows = append(rows, []string{u.Email, string(u.Role), u.ID, u.Status})
				}
				if err := printTable(w, []string{"email", "role", "id", "status"}, rows); err != nil {
					return err
				}
				if result.ProductID != "" {
					fmt.Fprintf(w, "\nDraft product %s assigned to reviewer@%s\n", result.ProductID, emailDomain)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "default", "tenant to seed")
	cmd.Flags().StringVar(&emailDomain, "domain", "example.com", "email domain of the seeded accounts")
	cmd.Flags().StringVar(&password, "password", "", "password for every seeded account (default: SEED_USER_PASSWORD or Demo1234!)")
	return cmd
}

func seedTenant(ctx context.Context, a *app.App, tenant, emailDomain, password string) (*seedResult, error) {
	result := &seedResult{Tenant: tenant}

	admin, status, err := findOrCreate(ctx, a, nil, tenant, "admin@"+emailDomain, domain.UserRoleAdmin, password)
	if err != nil {
		return nil, err
	}
	result.Users = append(result.Users, seededUser{admin.Email, admin.Role, admin.ID, status})
	adminActor := domain.Actor{UserID: admin.ID, Role: admin.Role, Email: admin.Email, TenantID: tenant}

	byRole := map[domain.UserRole]*domain.User{}
	for _, role := range []domain.UserRole{domain.UserRoleEditor, domain.UserRoleReviewer, domain.UserRoleViewer} {
		email := strings.ToLower(string(role)) + "@" + emailDomain
		user, status, err := findOrCreate(ctx, a, &adminActor, tenant, email, role, password)
		if err != nil {
			return nil, err
		}
		byRole[role] = user
		result.Users = append(result.Users, seededUser{user.Email, user.Role, user.ID, status})
	}

	editor := byRole[domain.UserRoleEditor]
	editorActor := domain.Actor{UserID: editor.ID, Role: editor.Role, Email: editor.Email, TenantID: tenant}
	product, err := a.ProductUC.CreateProduct(ctx, editorActor, domain.ProductFields{
		Name:        "Demo Running Shoe",
		SKU:         "DEMO-001",
		Brand:       "Fixora",
		Description: "Lightweight running shoe used to try the editorial workflow.",
		Price:       89.90,
		Categories:  []string{"footwear"},
		Keywords:    []string{"running", "shoe"},
	})
	switch {
	case errors.Is(err, domain.ErrDuplicateSKU):
		return result, nil
	case err != nil:
		return nil, fmt.Errorf("failed to seed product: %w", err)
	}
	if _, err := a.ProductUC.AssignReviewer(ctx, adminActor, product.ID, byRole[domain.UserRoleReviewer].ID); err != nil {
		return nil, fmt.Errorf("failed to assign reviewer: %w", err)
	}
	result.ProductID = product.ID
	return result, nil
}

// findOrCreate bootstraps when actor is nil and creates through the admin otherwise
func findOrCreate(ctx context.Context, a *app.App, actor *domain.Actor, tenant, email string, role domain.UserRole, password string) (*domain.User, string, error) {
	existing, err := a.Users.FindByEmail(ctx, tenant, email)
	switch {
	case err == nil:
		return existing, "existing", nil
	case !errors.Is(err, domain.ErrUserNotFound):
		return nil, "", fmt.Errorf("failed to look up %s: %w", email, err)
	}

	req := usecase.CreateUserRequest{
		Email:    email,
		Name:     "Demo " + strings.ToLower(string(role)),
		Password: password,
		Role:     role,
	}
	var user *domain.User
	if actor == nil {
		user, err = a.UserUC.Bootstrap(ctx, tenant, req)
	} else {
		user, err = a.UserUC.CreateUser(ctx, *actor, req)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to seed %s: %w", email, err)
	}
	return user, "created", nil
}

func getenvDefault(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
