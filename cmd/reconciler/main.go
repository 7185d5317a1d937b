package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eshaffer321/receipt-reconciler/internal/cli"
	"github.com/eshaffer321/receipt-reconciler/internal/infrastructure/config"
)

var (
	cfgFile string
	envFile string
	cfg     *config.Config

	rootCmd = &cobra.Command{
		Use:   "reconciler",
		Short: "Match receipts to credit-card charges",
		Long: `reconciler pairs uploaded receipts with statement charges, scores each
candidate with fixed rules blended with a learned model, auto-matches the
confident ones and files receipt images by statement.`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
	}
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().String("db-path", "", "SQLite database path")
	rootCmd.PersistentFlags().String("storage-root", "", "root directory of the receipt file tree")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")

	// Bind flags to viper; RECON_DB_PATH etc. are picked up automatically.
	_ = viper.BindPFlag("db_path", rootCmd.PersistentFlags().Lookup("db-path"))
	_ = viper.BindPFlag("storage_root", rootCmd.PersistentFlags().Lookup("storage-root"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(attemptCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(trainCmd())
	rootCmd.AddCommand(aliasCmd())
	rootCmd.AddCommand(normalizeCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(importChargesCmd())
	rootCmd.AddCommand(statsCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig layers configuration: .env, then the YAML file (or environment
// fallback), then RECON_* variables and flags through viper.
func initConfig(_ *cobra.Command, _ []string) error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	viper.SetEnvPrefix("RECON")
	viper.AutomaticEnv()

	cfg = config.LoadOrEnvWithPath(cfgFile)

	if viper.IsSet("db_path") {
		cfg.Storage.DatabasePath = viper.GetString("db_path")
	}
	if viper.IsSet("storage_root") {
		cfg.Files.Root = viper.GetString("storage_root")
	}
	if viper.IsSet("log_level") {
		cfg.Observability.Logging.Level = viper.GetString("log_level")
	}
	if viper.IsSet("log_format") {
		cfg.Observability.Logging.Format = viper.GetString("log_format")
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// withApp wires the engine for one command and tears it down afterwards.
func withApp(cmd *cobra.Command, system string, fn func(ctx context.Context, app *cli.App) error) error {
	ctx := cmd.Context()

	app, err := cli.NewApp(ctx, cfg, system)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Warn("failed to close app", "error", err)
		}
	}()

	return fn(ctx, app)
}
