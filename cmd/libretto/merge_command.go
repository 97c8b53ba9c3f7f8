package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"libretto/internal/catalog"
	"libretto/internal/dedupe"
	"libretto/internal/identity"
)

func newMergeCommand(ctx *commandContext) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "merge <survivorID> <mergedID...>",
		Short: "Merge duplicate canonical identities into the first ID",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withIdentityAndCatalog(func(identities *identity.Store, catalogStore *catalog.SQLStore) error {
				merger := dedupe.NewMerger(identities, catalogStore, nil)
				survivor, err := merger.Merge(cmd.Context(), args, reason)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Merged %d identities into %s\n", len(args)-1, survivor)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "operator merge", "Reason recorded on the tombstones")
	return cmd
}
