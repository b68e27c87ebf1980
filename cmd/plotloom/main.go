package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"plotloom/internal/config"
	"plotloom/internal/logging"
	"plotloom/internal/persist"
)

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "plotloom",
	Short: "plotloom - plot hook lifecycle engine for conversational fiction",
	Long: `plotloom generates, previews and injects short plot hooks into an ongoing
roleplay conversation.

It watches the host chat state until it stabilizes, drives a single-flight
generation pipeline against a configurable LLM provider, and manages the
resulting hook through a ready/paused/injected lifecycle with an auto-commit
countdown, bounded history and per-identity persistence.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

// versionCmd prints the version
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the plotloom version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(config.DefaultConfig().Version)
	},
}

// loadConfig resolves the config path and initializes categorized logging.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath(workspace)
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := logging.Initialize(workspace, logging.Settings{
		DebugMode:  cfg.Logging.DebugMode,
		Level:      cfg.Logging.Level,
		Categories: cfg.Logging.Categories,
	}); err != nil {
		logger.Warn("Debug logging unavailable", zap.Error(err))
	}
	return cfg, nil
}

// buildAdapter assembles the persistence stack: redis first when configured
// and reachable, the sqlite cache always.
func buildAdapter(cfg *config.Config) *persist.Adapter {
	var backends []persist.Backend
	if cfg.Persistence.RedisAddr != "" {
		redisStore, err := persist.NewRedisStore(cfg.Persistence.RedisAddr)
		if err != nil {
			logger.Warn("Shared store unavailable, continuing with local cache only", zap.Error(err))
		} else {
			backends = append(backends, redisStore)
		}
	}
	dbPath := cfg.Persistence.DatabasePath
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(workspace, dbPath)
	}
	sqliteStore, err := persist.NewSQLiteStore(dbPath)
	if err != nil {
		logger.Warn("Local cache unavailable, running in-memory only", zap.Error(err))
	} else {
		backends = append(backends, sqliteStore)
	}
	if len(backends) == 0 {
		return nil
	}
	return persist.NewAdapter(backends...)
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default .plotloom/config.yaml under the workspace)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
