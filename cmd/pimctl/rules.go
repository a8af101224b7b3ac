package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fixora/pim/internal/domain"
)

func newRulesCmd(e *env) *cobra.Command {
	var from, role string

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List workflow transition rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			workflow, err := e.workflow()
			if err != nil {
				return err
			}

			var rules []domain.TransitionRule
			for _, r := range workflow.Rules {
				if from != "" && !strings.EqualFold(string(r.From), from) {
					continue
				}
				if role != "" && !strings.EqualFold(string(r.RequiredRole), role) {
					continue
				}
				rules = append(rules, r)
			}

			return printOutput(cmd.OutOrStdout(), e.outputFmt, rules, func(w io.Writer) error {
				rows := make([][]string, 0, len(rules))
				for _, r := range rules {
					rows = append(rows, []string{
						string(r.From),
						string(r.To),
						string(r.RequiredRole),
						conditionList(r.Conditions),
						strconv.FormatBool(r.IsAutomatic),
					})
				}
				if len(rows) == 0 {
					fmt.Fprintln(w, "No rules found.")
					return nil
				}
				return printTable(w, []string{"from", "to", "role", "conditions", "automatic"}, rows)
			})
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "only rules leaving this state")
	cmd.Flags().StringVar(&role, "role", "", "only rules for this role")
	return cmd
}

func conditionList(conditions map[string]bool) string {
	var names []string
	for name, required := range conditions {
		if required {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "-"
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
