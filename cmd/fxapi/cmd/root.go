package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.pilab.hu/fxapi/config"
	"go.pilab.hu/fxapi/log"
)

// Version is set at build time with -ldflags.
var Version = "1.0.0"

var (
	cfg       *config.ServerConfig
	appLogger log.Logger
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "fxapi",
		Short:         "fxapi serves the FX converter API",
		Long:          `fxapi runs the currency converter backend: accounts, sessions, conversions and the audit trail.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if err := loaded.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			cfg = loaded
			appLogger = log.Setup(cfg.LogLevel, cfg.LogPretty, cfg.OtelServiceName)
			appLogger.Debug(cmd.Context(), "Configuration loaded", log.Fields{
				"env":           cfg.AppEnv,
				"http_port":     cfg.HTTPPort,
				"storage":       cfg.StorageBackend,
				"mongo_db_name": cfg.MongoDBName,
				"rate_cache":    cfg.RateCacheBackend,
				"google":        cfg.GoogleEnabled(),
			})
			return nil
		},
	}

	root.AddCommand(newServeCmd(), newEnsureIndexesCmd(), newPurgeExpiredCmd(), newConfigCmd(), newVersionCmd())
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		if appLogger != nil {
			appLogger.Error(context.Background(), "Command failed", err)
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		// Skips config loading.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(Version)
		},
	}
}
