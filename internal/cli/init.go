package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pgEdge/warehouse-loader/internal/db"
	"github.com/pgEdge/warehouse-loader/internal/docstore"
	"github.com/pgEdge/warehouse-loader/internal/logging"
	"github.com/pgEdge/warehouse-loader/internal/warehouse"
)

var initDropExisting bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the warehouse schema and document store indexes",
	Long: `Initialize the PostgreSQL warehouse: the staging schema that ingestion
batches land in, the retail star schema they load into, and the batch
ledger. When a MongoDB URI is configured, the document store collections
are indexed as well.

Both sides are created idempotently, so running init against an already
initialized warehouse is safe unless --drop-existing is given.

Example:
  warehouse-loader init --postgres "postgres://..." --mongo "mongodb://..."`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initDropExisting, "drop-existing", false,
		"drop existing schemas and collections before initialization")
}

func runInit(cmd *cobra.Command, args []string) error {
	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.Info().Msg("Initializing warehouse")

	// Connect to the warehouse
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("failed to connect to warehouse: %w", err)
	}
	defer pool.Close()

	// Drop existing schemas if requested
	if initDropExisting {
		logging.Warn().Msg("Dropping existing schemas")
		if err := warehouse.DropSchema(ctx, pool); err != nil {
			return fmt.Errorf("failed to drop schemas: %w", err)
		}
	}

	// Create staging and retail schemas
	logging.Info().Msg("Creating schemas")
	if err := warehouse.CreateSchema(ctx, pool); err != nil {
		return fmt.Errorf("failed to create schemas: %w", err)
	}

	// Prepare the document store when one is configured
	if cfg.Mongo != "" {
		client, err := db.ConnectMongo(ctx, cfg.Mongo)
		if err != nil {
			return fmt.Errorf("failed to connect to document store: %w", err)
		}
		defer db.DisconnectMongo(ctx, client)

		store := docstore.New(client, cfg.MongoDatabase)
		if initDropExisting {
			logging.Warn().Str("database", cfg.MongoDatabase).Msg("Dropping document store database")
			if err := store.Drop(ctx); err != nil {
				return fmt.Errorf("failed to drop document store: %w", err)
			}
		}
		if err := store.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("failed to index document store: %w", err)
		}
	}

	logging.Info().Msg("Warehouse initialization complete")

	return nil
}
