package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newVerifyChainCmd(e *env) *cobra.Command {
	var tenant string

	cmd := &cobra.Command{
		Use:   "verify-chain",
		Short: "Verify the audit hash chain of a tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.build(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Audit.VerifyChain(cmd.Context(), tenant)
			if err != nil {
				return err
			}

			err = printOutput(cmd.OutOrStdout(), e.outputFmt, result, func(w io.Writer) error {
				status := "valid"
				if !result.Valid {
					status = "BROKEN"
				}
				fmt.Fprintf(w, "Tenant:   %s\n", result.TenantID)
				fmt.Fprintf(w, "Entries:  %d\n", result.Entries)
				fmt.Fprintf(w, "Chain:    %s\n", status)
				if result.Error != "" {
					fmt.Fprintf(w, "Error:    %s (entry %s)\n", result.Error, result.ErrorEntry)
				}
				for _, warning := range result.Warnings {
					fmt.Fprintf(w, "Warning:  %s\n", warning)
				}
				return nil
			})
			if err != nil {
				return err
			}
			if !result.Valid {
				return fmt.Errorf("audit chain for tenant %s is broken", tenant)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "default", "tenant whose chain to verify")
	return cmd
}
