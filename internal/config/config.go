//-------------------------------------------------------------------------
//
// pgEdge Warehouse Loader
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package config handles configuration management for warehouse-loader.
// Configuration is loaded from config files and CLI flags (no environment variables).
// CLI flags take precedence over config file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for warehouse-loader.
type Config struct {
	// Postgres is the PostgreSQL connection string for the warehouse.
	Postgres string `mapstructure:"postgres"`

	// Mongo is the MongoDB connection URI for the document store.
	Mongo string `mapstructure:"mongo"`

	// MongoDatabase is the document store database name.
	MongoDatabase string `mapstructure:"mongo_database"`

	// LogLevel controls logging verbosity (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level"`

	// Load holds configuration for the load subcommand.
	Load LoadConfig `mapstructure:"load"`

	// Seed holds configuration for the seed subcommand.
	Seed SeedConfig `mapstructure:"seed"`
}

// LoadConfig holds configuration for batch loading.
type LoadConfig struct {
	// Workers is the bounded pool size for record-level parallelism
	// within an entity-type stage.
	Workers int `mapstructure:"workers"`

	// ChunkSize is the number of rows per multi-row insert or keyed
	// lookup against the warehouse.
	ChunkSize int `mapstructure:"chunk_size"`

	// MeasureTolerance is the largest absolute difference allowed
	// between a supplied measure and its computed value.
	MeasureTolerance float64 `mapstructure:"measure_tolerance"`

	// SkipDocuments disables document-store synchronization. The
	// relational warehouse still loads normally.
	SkipDocuments bool `mapstructure:"skip_documents"`
}

// SeedConfig holds configuration for synthetic staging batches.
type SeedConfig struct {
	// Customers is the number of customer records to stage.
	Customers int `mapstructure:"customers"`

	// Products is the number of product records to stage.
	Products int `mapstructure:"products"`

	// Locations is the number of location records to stage.
	Locations int `mapstructure:"locations"`

	// Transactions is the number of transactions to stage. Items are
	// generated per transaction.
	Transactions int `mapstructure:"transactions"`

	// StartDate and EndDate bound transaction timestamps (YYYY-MM-DD).
	StartDate string `mapstructure:"start_date"`
	EndDate   string `mapstructure:"end_date"`
}

// Window returns the parsed seed date range.
func (s SeedConfig) Window() (time.Time, time.Time, error) {
	start, err := parseDate(s.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid seed.start_date: %w", err)
	}
	end, err := parseDate(s.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid seed.end_date: %w", err)
	}
	return start, end, nil
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		MongoDatabase: "retail",
		LogLevel:      "info",
		Load: LoadConfig{
			Workers:          8,
			ChunkSize:        500,
			MeasureTolerance: 0.01,
		},
		Seed: SeedConfig{
			Customers:    1000,
			Products:     500,
			Locations:    100,
			Transactions: 5000,
			StartDate:    "2023-01-01",
			EndDate:      "2023-12-31",
		},
	}
}

// Load reads configuration from config files.
// Config file locations (in order of precedence):
// 1. Path specified by configFile parameter
// 2. ./warehouse-loader.yaml
// 3. ~/.config/warehouse-loader/config.yaml
func Load(configFile string) (*Config, error) {
	v := viper.New()

	// Set config name and type
	v.SetConfigName("warehouse-loader")
	v.SetConfigType("yaml")

	// Add config paths
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "warehouse-loader"))
	}

	// Use specific config file if provided
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Start with defaults
	cfg := DefaultConfig()

	// Unmarshal config file values
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Postgres == "" {
		return fmt.Errorf("postgres connection string is required")
	}
	return nil
}

// ValidateLoad checks configuration required for the load command.
func (c *Config) ValidateLoad() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if !c.Load.SkipDocuments && c.Mongo == "" {
		return fmt.Errorf("mongo URI is required unless load.skip_documents is set")
	}
	if c.Load.Workers < 1 {
		return fmt.Errorf("load.workers must be at least 1")
	}
	if c.Load.ChunkSize < 1 {
		return fmt.Errorf("load.chunk_size must be at least 1")
	}
	if c.Load.MeasureTolerance < 0 {
		return fmt.Errorf("load.measure_tolerance must be non-negative")
	}
	return nil
}

// ValidateSeed checks configuration required for the seed command.
func (c *Config) ValidateSeed() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Seed.Customers < 1 || c.Seed.Products < 1 || c.Seed.Locations < 1 {
		return fmt.Errorf("seed counts must be at least 1")
	}
	if c.Seed.Transactions < 0 {
		return fmt.Errorf("seed.transactions must be non-negative")
	}
	if _, err := parseDate(c.Seed.StartDate); err != nil {
		return fmt.Errorf("invalid seed.start_date: %w", err)
	}
	end, err := parseDate(c.Seed.EndDate)
	if err != nil {
		return fmt.Errorf("invalid seed.end_date: %w", err)
	}
	start, _ := parseDate(c.Seed.StartDate)
	if end.Before(start) {
		return fmt.Errorf("seed.end_date must not precede seed.start_date")
	}
	return nil
}

func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}
