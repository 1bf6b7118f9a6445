//-------------------------------------------------------------------------
//
// pgEdge Warehouse Loader
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package cli implements the command-line interface for warehouse-loader.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/pgEdge/warehouse-loader/internal/config"
	"github.com/pgEdge/warehouse-loader/internal/logging"
	"github.com/pgEdge/warehouse-loader/pkg/version"
)

var (
	// Global flags
	cfgFile  string
	postgres string
	mongoURI string
	logLevel string

	// Global config
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "warehouse-loader",
		Short: "Staging-to-warehouse load engine for retail analytics",
		Long: `warehouse-loader moves staged retail batches into an analytics
warehouse: dimension and fact tables in a PostgreSQL star schema, plus
customer and product document projections in MongoDB.

Batches are validated, keyed, and loaded in dependency order so facts
never reference a missing dimension. Every batch is recorded in a
ledger, which makes re-running a completed batch id a safe no-op.`,
		Version: version.Short(),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ./warehouse-loader.yaml)")
	rootCmd.PersistentFlags().StringVar(&postgres, "postgres", "",
		"PostgreSQL connection string for the warehouse")
	rootCmd.PersistentFlags().StringVar(&mongoURI, "mongo", "",
		"MongoDB connection URI for the document store")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level (debug, info, warn, error)")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(statusCmd)
}

func initConfig() error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}

	// Override with CLI flags
	if postgres != "" {
		cfg.Postgres = postgres
	}
	if mongoURI != "" {
		cfg.Mongo = mongoURI
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	// Reinitialize logger with config
	logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(version.Info())
	},
}
