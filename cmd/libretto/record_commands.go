package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"libretto/internal/catalog"
	"libretto/internal/staging"
)

func newStageCommand(ctx *commandContext) *cobra.Command {
	var (
		source     string
		sourceID   string
		entityType string
		dataJSON   string
		checksum   string
	)

	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Stage a raw record for normalization",
		RunE: func(cmd *cobra.Command, args []string) error {
			if source == "" || sourceID == "" || entityType == "" {
				return errors.New("--source, --source-id, and --entity-type are required")
			}
			rawData := map[string]any{}
			if strings.TrimSpace(dataJSON) != "" {
				if err := json.Unmarshal([]byte(dataJSON), &rawData); err != nil {
					return fmt.Errorf("parse --data: %w", err)
				}
			}
			if checksum == "" {
				sum := sha256.Sum256([]byte(dataJSON))
				checksum = hex.EncodeToString(sum[:])
			}

			return ctx.withStaging(func(store *staging.Store) error {
				record, err := store.Stage(cmd.Context(), source, sourceID, entityType, rawData, checksum)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Staged record %s (%s)\n", record.ID, record.Status)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Ingestion source name (e.g. ddex)")
	cmd.Flags().StringVar(&sourceID, "source-id", "", "Source-native record identifier")
	cmd.Flags().StringVar(&entityType, "entity-type", "", "Catalog entity type (e.g. release)")
	cmd.Flags().StringVar(&dataJSON, "data", "", "Raw payload as a JSON object")
	cmd.Flags().StringVar(&checksum, "checksum", "", "Payload checksum (derived from --data when omitted)")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <recordID>",
		Short: "Show one staging record and its audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStaging(func(store *staging.Store) error {
				record, err := store.GetByID(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if record == nil {
					return fmt.Errorf("record %s not found", args[0])
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "ID:          %s\n", record.ID)
				fmt.Fprintf(out, "Source:      %s / %s\n", record.Source, record.SourceID)
				fmt.Fprintf(out, "Entity type: %s\n", record.EntityType)
				fmt.Fprintf(out, "Status:      %s\n", record.Status)
				fmt.Fprintf(out, "Received:    %s\n", record.ReceivedAt.Format(time.RFC3339))
				if record.ProcessedAt != nil {
					fmt.Fprintf(out, "Processed:   %s\n", record.ProcessedAt.Format(time.RFC3339))
				}
				if record.ErrorMessage != "" {
					fmt.Fprintf(out, "Error:       %s\n", record.ErrorMessage)
				}
				if payload, err := json.MarshalIndent(record.RawData, "", "  "); err == nil {
					fmt.Fprintf(out, "Raw data:\n%s\n", payload)
				}

				return ctx.withCatalog(func(catalogStore *catalog.SQLStore) error {
					history, err := catalogStore.IngestHistory(cmd.Context(), record.ID)
					if err != nil || len(history) == 0 {
						return nil
					}
					rows := make([][]string, 0, len(history))
					for _, entry := range history {
						rows = append(rows, []string{
							entry.CreatedAt.Format(time.RFC3339),
							entry.Status,
							entry.CanonicalID,
							entry.Error,
						})
					}
					fmt.Fprintln(out, "Ingest log:")
					fmt.Fprintln(out, renderTable(
						[]string{"At", "Status", "Canonical ID", "Error"},
						rows,
						[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
					))
					return nil
				})
			})
		},
	}
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var (
		listStatuses []string
		limit        int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List staging records",
		RunE: func(cmd *cobra.Command, args []string) error {
			var statuses []staging.Status
			for _, raw := range listStatuses {
				status, ok := staging.ParseStatus(raw)
				if !ok {
					return fmt.Errorf("unknown status %q", raw)
				}
				statuses = append(statuses, status)
			}

			return ctx.withStaging(func(store *staging.Store) error {
				records, err := store.List(cmd.Context(), limit, statuses...)
				if err != nil {
					return err
				}
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No staging records")
					return nil
				}
				rows := make([][]string, 0, len(records))
				for _, record := range records {
					rows = append(rows, []string{
						record.ID,
						record.Source,
						record.SourceID,
						record.EntityType,
						string(record.Status),
						record.ReceivedAt.Format(time.RFC3339),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Source", "Source ID", "Entity", "Status", "Received"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum records to list")
	return cmd
}

func newRequeueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue [recordID...]",
		Short: "Return failed records to pending",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStaging(func(store *staging.Store) error {
				moved, err := store.Requeue(cmd.Context(), args...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d failed records\n", moved)
				return nil
			})
		},
	}
}
