package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pgEdge/warehouse-loader/internal/datagen"
	"github.com/pgEdge/warehouse-loader/internal/db"
	"github.com/pgEdge/warehouse-loader/internal/docstore"
	"github.com/pgEdge/warehouse-loader/internal/staging"
)

var (
	seedCustomers    int
	seedProducts     int
	seedLocations    int
	seedTransactions int
	seedStartDate    string
	seedEndDate      string
	seedBatchID      string
	seedSource       string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Stage a synthetic retail batch",
	Long: `Stage a synthetic retail batch: customers, products, locations,
transactions with line items, and an inventory snapshot, all tagged with
one batch id. When a MongoDB URI is configured, browsing history and
cart documents are seeded alongside.

The staged rows are not loaded; run 'warehouse-loader load' with the
same batch id to move them into the warehouse.

Example:
  warehouse-loader seed --customers 1000 --transactions 5000 --postgres "postgres://..."`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().IntVar(&seedCustomers, "customers", 0,
		"number of customers to stage")
	seedCmd.Flags().IntVar(&seedProducts, "products", 0,
		"number of products to stage")
	seedCmd.Flags().IntVar(&seedLocations, "locations", 0,
		"number of store locations to stage")
	seedCmd.Flags().IntVar(&seedTransactions, "transactions", 0,
		"number of transactions to stage")
	seedCmd.Flags().StringVar(&seedStartDate, "start-date", "",
		"earliest transaction date (YYYY-MM-DD)")
	seedCmd.Flags().StringVar(&seedEndDate, "end-date", "",
		"latest transaction date (YYYY-MM-DD)")
	seedCmd.Flags().StringVar(&seedBatchID, "batch-id", "",
		"batch id to tag staged rows with (default: generated)")
	seedCmd.Flags().StringVar(&seedSource, "source", "simulator",
		"source system name recorded on staged rows")
}

func runSeed(cmd *cobra.Command, args []string) error {
	// Override config with CLI flags
	if seedCustomers > 0 {
		cfg.Seed.Customers = seedCustomers
	}
	if seedProducts > 0 {
		cfg.Seed.Products = seedProducts
	}
	if seedLocations > 0 {
		cfg.Seed.Locations = seedLocations
	}
	if seedTransactions > 0 {
		cfg.Seed.Transactions = seedTransactions
	}
	if seedStartDate != "" {
		cfg.Seed.StartDate = seedStartDate
	}
	if seedEndDate != "" {
		cfg.Seed.EndDate = seedEndDate
	}

	// Validate configuration
	if err := cfg.ValidateSeed(); err != nil {
		return err
	}

	start, end, err := cfg.Seed.Window()
	if err != nil {
		return err
	}

	batchID := seedBatchID
	if batchID == "" {
		batchID = fmt.Sprintf("seed-%s", uuid.NewString()[:8])
	}

	// Connect to the warehouse
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("failed to connect to warehouse: %w", err)
	}
	defer pool.Close()

	// Seed documents only when a document store is configured
	var docs datagen.DocumentInserter
	if cfg.Mongo != "" {
		client, err := db.ConnectMongo(ctx, cfg.Mongo)
		if err != nil {
			return fmt.Errorf("failed to connect to document store: %w", err)
		}
		defer db.DisconnectMongo(ctx, client)
		docs = docstore.New(client, cfg.MongoDatabase)
	}

	seeder := datagen.NewSeeder(staging.NewStore(pool), docs)
	result, err := seeder.Seed(ctx, datagen.Params{
		Customers:    cfg.Seed.Customers,
		Products:     cfg.Seed.Products,
		Locations:    cfg.Seed.Locations,
		Transactions: cfg.Seed.Transactions,
		Start:        start,
		End:          end,
		BatchID:      batchID,
		Source:       seedSource,
	})
	if err != nil {
		return fmt.Errorf("failed to seed batch: %w", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render seed result: %w", err)
	}
	cmd.Println(string(out))
	cmd.Printf("Staged batch %s; load it with: warehouse-loader load --batch-id %s\n", batchID, batchID)

	return nil
}
