package main

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"cognivoice/internal/results"
)

// renderResultsTable lays out persisted analysis records for terminal output.
// Confidence is right-aligned so the two-decimal values line up in a column.
func renderResultsTable(records []*results.Record) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"JOB", "OWNER", "PREDICTION", "CONFIDENCE", "RISK", "CREATED"})

	for _, record := range records {
		tw.AppendRow(table.Row{
			record.JobID,
			record.OwnerID,
			record.Result.FinalPrediction,
			fmt.Sprintf("%.2f", float64(record.Result.Confidence)),
			string(record.Result.RiskLevel),
			record.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})

	return tw.Render()
}
