package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/fixora/pim/internal/domain"
	"github.com/fixora/pim/internal/usecase"
)

func newCreateAdminCmd(e *env) *cobra.Command {
	var tenant, email, name, password string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create the first ADMIN account of a tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.build(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if a.DB == nil {
				fmt.Fprintln(e.stderr, "warning: DATABASE_URL not set, the account only lives for this process")
			}

			user, err := a.UserUC.Bootstrap(cmd.Context(), tenant, usecase.CreateUserRequest{
				Email:    email,
				Name:     name,
				Password: password,
				Role:     domain.UserRoleAdmin,
			})
			if err != nil {
				return fmt.Errorf("failed to create admin: %w", err)
			}

			return printOutput(cmd.OutOrStdout(), e.outputFmt, user, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Admin %s created (id %s, tenant %s)\n", user.Email, user.ID, user.TenantID)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "default", "tenant to bootstrap")
	cmd.Flags().StringVar(&email, "email", "", "admin email")
	cmd.Flags().StringVar(&name, "name", "Administrator", "admin display name")
	cmd.Flags().StringVar(&password, "password", "", "admin password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
