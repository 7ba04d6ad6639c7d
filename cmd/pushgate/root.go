package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/veranda-social/pushgate/internal/application"
	"github.com/veranda-social/pushgate/internal/config"
	"github.com/veranda-social/pushgate/internal/logger"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd is the pushgate CLI entry point.
var rootCmd = &cobra.Command{
	Use:   "pushgate",
	Short: "pushgate delivers real-time notifications over SSE and WebSocket",
	Long:  `Real-time notification push gateway: persists notification events, keeps per-user unread counters, and fans new events out to live stream connections.`,
	Example: `
  pushgate start --db-host localhost --db-port 5432
  pushgate start --log-level debug
  pushgate start --config /path/to/config.yaml`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile, nil)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %v", err)
		}

		flags := cmd.Flags()
		if flags.Changed("db-host") {
			cfg.Database.Server, _ = flags.GetString("db-host")
		}
		if flags.Changed("db-port") {
			cfg.Database.Port, _ = flags.GetInt("db-port")
		}
		if flags.Changed("listen-addr") {
			cfg.Push.ListenAddr, _ = flags.GetString("listen-addr")
		}
		if flags.Changed("log-level") {
			cfg.Logging.Level, _ = flags.GetString("log-level")
			if err := logger.SetLevel(cfg.Logging.Level); err != nil {
				return fmt.Errorf("invalid log level: %v", err)
			}
		}

		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		if err := cmd.Help(); err != nil {
			fmt.Fprintf(os.Stderr, "Error displaying help: %v\n", err)
		}
	},
}

// Execute runs the root command with the provided context.
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to custom config file (optional)")
	rootCmd.PersistentFlags().String("db-host", "localhost", "PostgreSQL host")
	rootCmd.PersistentFlags().IntP("db-port", "", 5432, "PostgreSQL port")
	rootCmd.PersistentFlags().String("listen-addr", "", "API listen address, ':port' or 'host:port'")
	rootCmd.PersistentFlags().String("log-level", "info", "Logging level (debug, info, warn, error, fatal)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the pushgate version",
		Run: func(cmd *cobra.Command, args []string) {
			if detailed, _ := cmd.Flags().GetBool("detailed"); detailed {
				fmt.Println(GetFullVersionInfo())
			} else {
				fmt.Println(GetVersionWithPrefix())
			}
		},
	}
	versionCmd.Flags().BoolP("detailed", "d", false, "Show detailed version information")
	rootCmd.AddCommand(versionCmd)

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the pushgate server",
		Long:  "Start the pushgate server with the specified configuration",
		Run: func(cmd *cobra.Command, args []string) {
			if cfgFile != "" {
				absPath, err := filepath.Abs(cfgFile)
				if err != nil {
					logger.Error("Failed to resolve config path", zap.Error(err))
					os.Exit(1)
				}
				logger.Info("Using config file", zap.String("config_file", absPath))
			}

			ctx := cmd.Context()

			app, err := application.New(ctx, cfg)
			if err != nil {
				logger.Error("Failed to initialize pushgate", zap.Error(err))
				os.Exit(1)
			}

			if err := app.Run(ctx); err != nil {
				logger.Error("pushgate exited with error", zap.Error(err))
				os.Exit(1)
			}
		},
	}
	rootCmd.AddCommand(startCmd)
}
