package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pgEdge/warehouse-loader/internal/db"
	"github.com/pgEdge/warehouse-loader/internal/staging"
)

var (
	statusBatchID string
	statusLimit   int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show batch ledger entries",
	Long: `Show batch ledger entries. Without --batch-id the most recent batches
are listed, newest first. With --batch-id the full stored batch report
is printed.

Example:
  warehouse-loader status --postgres "postgres://..."
  warehouse-loader status --batch-id batch-2023-11-01 --postgres "postgres://..."`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusBatchID, "batch-id", "",
		"show the report for one batch id")
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10,
		"number of recent batches to list")
}

func runStatus(cmd *cobra.Command, args []string) error {
	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Connect to the warehouse
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("failed to connect to warehouse: %w", err)
	}
	defer pool.Close()

	ledger := staging.NewLedger(pool)

	if statusBatchID != "" {
		entry, err := ledger.Get(ctx, statusBatchID)
		if err != nil {
			return err
		}
		printEntry(cmd, *entry)
		if len(entry.Report) > 0 {
			var buf bytes.Buffer
			if err := json.Indent(&buf, entry.Report, "", "  "); err != nil {
				return fmt.Errorf("stored report is unreadable: %w", err)
			}
			cmd.Println(buf.String())
		}
		return nil
	}

	entries, err := ledger.Recent(ctx, statusLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		cmd.Println("No batches recorded.")
		return nil
	}

	cmd.Printf("%-32s %-12s %-10s %-20s %s\n",
		"BATCH", "SOURCE", "STATUS", "STARTED", "COMPLETED")
	for _, e := range entries {
		printEntry(cmd, e)
	}

	return nil
}

func printEntry(cmd *cobra.Command, e staging.Entry) {
	const layout = "2006-01-02 15:04:05"
	completed := "-"
	if e.CompletedAt != nil {
		completed = e.CompletedAt.Format(layout)
	}
	cmd.Printf("%-32s %-12s %-10s %-20s %s\n",
		e.BatchID, e.Source, e.Status, e.StartedAt.Format(layout), completed)
}
