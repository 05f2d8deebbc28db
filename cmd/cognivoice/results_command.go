package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"cognivoice/internal/results"
)

func newResultsCommand(cmdCtx *commandContext) *cobra.Command {
	var ownerID string
	var limit int

	cmd := &cobra.Command{
		Use:   "results",
		Short: "List persisted analysis results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}

			store, err := results.Open(cfg)
			if err != nil {
				return fmt.Errorf("open results store: %w", err)
			}
			defer store.Close()

			var records []*results.Record
			if ownerID != "" {
				records, err = store.ListByOwner(cmd.Context(), ownerID)
			} else {
				records, err = store.Recent(cmd.Context(), limit)
			}
			if err != nil {
				return fmt.Errorf("list results: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No results recorded.")
				return nil
			}

			if !isTerminal(out) {
				for _, record := range records {
					fmt.Fprintf(out, "%s\t%s\t%s\t%.2f\t%s\t%s\n",
						record.JobID,
						record.OwnerID,
						record.Result.FinalPrediction,
						float64(record.Result.Confidence),
						record.Result.RiskLevel,
						record.CreatedAt.UTC().Format(time.RFC3339),
					)
				}
				return nil
			}

			fmt.Fprintln(out, renderResultsTable(records))
			return nil
		},
	}

	cmd.Flags().StringVar(&ownerID, "owner", "", "Filter results by owner id")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum rows when no owner filter is set")
	return cmd
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
