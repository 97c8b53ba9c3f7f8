package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"libretto/internal/mapping"
)

func newMappingsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "mappings",
		Short: "List registered entity mappings",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := mapping.NewDefaultRegistry()
			mappings := registry.All()
			if len(mappings) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No mappings registered")
				return nil
			}
			rows := make([][]string, 0, len(mappings))
			for _, m := range mappings {
				rows = append(rows, []string{
					m.Source,
					m.EntityType,
					strings.Join(m.KeyFields, ", "),
					strings.Join(m.DeduplicationFields, ", "),
					strconv.Itoa(len(m.Fields)),
					strconv.Itoa(len(m.QualityRules)),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Source", "Entity", "Key Fields", "Dedup Fields", "Fields", "Rules"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight},
			))
			return nil
		},
	}
}
