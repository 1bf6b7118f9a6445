package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pgEdge/warehouse-loader/internal/datedim"
	"github.com/pgEdge/warehouse-loader/internal/db"
	"github.com/pgEdge/warehouse-loader/internal/docstore"
	"github.com/pgEdge/warehouse-loader/internal/docsync"
	"github.com/pgEdge/warehouse-loader/internal/keymap"
	"github.com/pgEdge/warehouse-loader/internal/load"
	"github.com/pgEdge/warehouse-loader/internal/logging"
	"github.com/pgEdge/warehouse-loader/internal/staging"
	"github.com/pgEdge/warehouse-loader/internal/validate"
	"github.com/pgEdge/warehouse-loader/internal/warehouse"
)

var (
	loadBatchID          string
	loadSource           string
	loadWorkers          int
	loadChunkSize        int
	loadMeasureTolerance float64
	loadSkipDocuments    bool
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load one staged batch into the warehouse",
	Long: `Load one staged batch into the warehouse. Stages run in dependency
order: customer, product, and location dimensions first, then the date
dimension, then transaction, line item, and inventory facts, and finally
the document projections. A stage failure stops the pipeline; committed
stages stay committed and the partial report lands in the batch ledger.

Re-running a completed batch id is a no-op that prints the stored
report. Interrupting with Ctrl+C stops between records; re-run the same
batch id to finish the remainder.

Example:
  warehouse-loader load --batch-id batch-2023-11-01 --postgres "postgres://..." --mongo "mongodb://..."
  warehouse-loader load --batch-id batch-2023-11-01 --skip-documents --workers 16`,
	RunE: runLoad,
}

func init() {
	loadCmd.Flags().StringVar(&loadBatchID, "batch-id", "",
		"batch id to load (required)")
	loadCmd.Flags().StringVar(&loadSource, "source", "simulator",
		"source system name for the ledger entry")
	loadCmd.Flags().IntVar(&loadWorkers, "workers", 0,
		"worker pool size per stage")
	loadCmd.Flags().IntVar(&loadChunkSize, "chunk-size", 0,
		"rows per multi-row insert or key lookup")
	loadCmd.Flags().Float64Var(&loadMeasureTolerance, "measure-tolerance", 0,
		"largest allowed supplied/computed measure difference")
	loadCmd.Flags().BoolVar(&loadSkipDocuments, "skip-documents", false,
		"skip document store synchronization")
	_ = loadCmd.MarkFlagRequired("batch-id")
}

func runLoad(cmd *cobra.Command, args []string) error {
	// Override config with CLI flags
	if loadWorkers > 0 {
		cfg.Load.Workers = loadWorkers
	}
	if loadChunkSize > 0 {
		cfg.Load.ChunkSize = loadChunkSize
	}
	if loadMeasureTolerance > 0 {
		cfg.Load.MeasureTolerance = loadMeasureTolerance
	}
	if loadSkipDocuments {
		cfg.Load.SkipDocuments = true
	}

	// Validate configuration
	if err := cfg.ValidateLoad(); err != nil {
		return err
	}

	// Connect to the warehouse
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("failed to connect to warehouse: %w", err)
	}
	defer pool.Close()

	// Connect to the document store unless documents are skipped
	var documents load.DocumentSyncer
	if !cfg.Load.SkipDocuments {
		client, err := db.ConnectMongo(ctx, cfg.Mongo)
		if err != nil {
			return fmt.Errorf("failed to connect to document store: %w", err)
		}
		defer db.DisconnectMongo(context.Background(), client)
		documents = docsync.New(docstore.New(client, cfg.MongoDatabase))
	}

	logging.Info().
		Str("batch_id", loadBatchID).
		Str("source", loadSource).
		Int("workers", cfg.Load.Workers).
		Bool("skip_documents", cfg.Load.SkipDocuments).
		Msg("Starting batch load")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logging.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
		cancel()
	}()

	store := warehouse.NewWithChunkSize(pool, cfg.Load.ChunkSize)
	coordinator := load.New(load.Options{
		Warehouse: store,
		Staging:   staging.NewStore(pool),
		Ledger:    staging.NewLedger(pool),
		Resolver:  keymap.New(store),
		Dates:     datedim.NewGenerator(store),
		Validator: validate.New(),
		Documents: documents,
		Config:    cfg.Load,
	})

	report, err := coordinator.ProcessBatch(ctx, loadBatchID, loadSource)
	if report != nil {
		printReport(cmd, report)
	}
	if err != nil {
		if ctx.Err() != nil {
			logging.Info().Msg("Batch load interrupted; committed stages are kept")
		}
		return fmt.Errorf("batch %s did not complete: %w", loadBatchID, err)
	}

	return nil
}

func printReport(cmd *cobra.Command, report any) {
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		logging.Warn().Err(err).Msg("Could not render batch report")
		return
	}
	cmd.Println(string(out))
}
