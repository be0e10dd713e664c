// Command aidctl is the operator tool for the aid eligibility backend:
// schema setup, seed data and one-off eligibility analyses.
package main

import (
	"context"
	"fmt"
	"os"

	"aidflow-backend/config"
	"aidflow-backend/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	verbose bool
	cfgFile string
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "aidctl",
	Short:         "Operate the aid eligibility backend",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedUserCmd)
	rootCmd.AddCommand(seedProgramsCmd)
	rootCmd.AddCommand(analyzeCmd)
}

// loadConfig loads the configuration. Database-only commands skip
// validation so they run without AI credentials.
func loadConfig(validate bool) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case cfgFile != "":
		cfg, err = config.LoadFromFile(cfgFile)
	case validate:
		cfg, err = config.Load()
	default:
		cfg, err = config.LoadUnvalidated()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) logger.Logger {
	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	return logger.NewStructured(level, "console")
}

func openDB(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := loadConfig(false)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return pool, nil
}
