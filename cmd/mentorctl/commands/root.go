// Package commands provides the CLI commands of mentorctl, the operator
// tool of mentor-hub.
package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mentor-hub/mentor-hub/config"
	"github.com/mentor-hub/mentor-hub/internal/infrastructure/persistence"
	"github.com/mentor-hub/mentor-hub/pkg/logger"
	"github.com/mentor-hub/mentor-hub/pkg/timeutil"
)

// Version is set at build time.
var Version = "dev"

// Global flags
var (
	databaseURL string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "mentorctl",
	Short: "Operator tool for mentor-hub",
	Long: `mentorctl manages the mentor-hub database: migrations, seeding programs
and prompts, publishing syllabi and reading monthly usage.

The database comes from DATABASE_URL (or .env) unless --database is set.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database", "", "Database URL (postgres:// or sqlite://), overrides DATABASE_URL")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(unpublishCmd)
	rootCmd.AddCommand(regenerateCmd)
	rootCmd.AddCommand(usageCmd)
	rootCmd.AddCommand(hashKeyCmd)
}

// ExecuteContext runs the root command with ctx.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// env is what most subcommands need.
type env struct {
	cfg    *config.Config
	log    *logger.Logger
	zone   *time.Location
	stores *persistence.Stores
}

// openEnv loads the configuration and opens the stores. Callers must Close.
func openEnv(ctx context.Context, migrate bool) (*env, error) {
	if databaseURL != "" {
		if err := os.Setenv("DATABASE_URL", databaseURL); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	zone, err := timeutil.LoadZone(cfg.App.Timezone)
	if err != nil {
		return nil, err
	}

	level := logger.LevelWarn
	if verbose {
		level = logger.LevelDebug
	}
	log := logger.New(logger.Options{Output: os.Stderr, Level: level, Format: "text"})

	stores, err := persistence.Open(ctx, cfg.Database, persistence.Options{Migrate: migrate}, log)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log, zone: zone, stores: stores}, nil
}

func (e *env) Close() { e.stores.Close() }
