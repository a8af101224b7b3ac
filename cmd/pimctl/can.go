package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fixora/pim/internal/domain"
	"github.com/fixora/pim/internal/usecase"
)

type permissionCheck struct {
	Role     domain.UserRole       `json:"role"`
	Action   domain.WorkflowAction `json:"action"`
	From     domain.WorkflowState  `json:"from,omitempty"`
	Allowed  bool                  `json:"allowed"`
	Required []string              `json:"requiredPermissions"`
}

func newCanCmd(e *env) *cobra.Command {
	var from string

	cmd := &cobra.Command{
		Use:   "can <role> <action>",
		Short: "Check whether a role may perform an action",
		Long:  "Checks the permission tables and, with --from, the transition rules. Exits non-zero when denied.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role := domain.UserRole(strings.ToUpper(args[0]))
			if !role.IsValid() {
				return fmt.Errorf("unknown role: %s", args[0])
			}
			action := domain.WorkflowAction(strings.ToUpper(args[1]))
			if !knownAction(action) {
				return fmt.Errorf("unknown action: %s", args[1])
			}

			workflow, err := e.workflow()
			if err != nil {
				return err
			}
			permissions := domain.NewPermissionResolver(workflow.RolePermissions, workflow.ActionPermissions)

			check := permissionCheck{
				Role:     role,
				Action:   action,
				Allowed:  permissions.HasPermission(role, action),
				Required: permissions.RequiredPermissions(action),
			}
			if from != "" {
				state := domain.WorkflowState(strings.ToUpper(from))
				if !state.IsValid() {
					return fmt.Errorf("unknown state: %s", from)
				}
				check.From = state
				states := usecase.NewWorkflowStateManager(workflow.Rules, permissions)
				check.Allowed = check.Allowed && states.CanPerformAction(action, state, role)
			}

			err = printOutput(cmd.OutOrStdout(), e.outputFmt, check, func(w io.Writer) error {
				verdict := "denied"
				if check.Allowed {
					verdict = "allowed"
				}
				_, err := fmt.Fprintln(w, verdict)
				return err
			})
			if err != nil {
				return err
			}
			if !check.Allowed {
				return fmt.Errorf("%s may not %s", role, action)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "current product state for transition actions")
	return cmd
}

func knownAction(action domain.WorkflowAction) bool {
	for _, a := range domain.AllWorkflowActions {
		if a == action {
			return true
		}
	}
	return false
}
