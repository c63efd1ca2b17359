package main

import (
	"github.com/spf13/cobra"
)

// Show run history
func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [service-name]",
		Short: "Show recent task executions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}
			service := ""
			if len(args) > 0 {
				service = args[0]
			}
			limit, _ := cmd.Flags().GetInt("limit")
			orch := a.orchestrator()
			if err := orch.Health(cmd.Context()); err != nil {
				return err
			}
			return orch.History(cmd.Context(), service, limit)
		},
	}
	cmd.Flags().IntP("limit", "n", 20, "Maximum number of executions to show")
	return cmd
}
