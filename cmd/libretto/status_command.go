package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"libretto/internal/staging"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show staging queue summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStaging(func(store *staging.Store) error {
				health, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}
				if health.Total == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Staging queue is empty")
					return nil
				}
				rows := [][]string{
					{"pending", strconv.Itoa(health.Pending)},
					{"processing", strconv.Itoa(health.Processing)},
					{"normalized", strconv.Itoa(health.Normalized)},
					{"failed", strconv.Itoa(health.Failed)},
					{"total", strconv.Itoa(health.Total)},
				}
				out := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
}
