package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"repochat/internal/config"
	"repochat/internal/logging"
	"repochat/internal/service"
)

var (
	configPath string
	verbose    bool
	dataDir    string
)

var rootCmd = &cobra.Command{
	Use:   "repochat",
	Short: "Ask questions about a source-code repository",
	Long: `repochat indexes a repository (local path or git URL) and answers
natural-language questions about it with a language model grounded on the
retrieved source.

The index is cached under the data directory, so later runs on the same
repository skip re-embedding.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to YAML config file (default: ./config.yaml or ~/.config/repochat/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging (also VERBOSE_LOGS=true)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "",
		"Directory for repository snapshots and indexes (overrides data_dir)")
}

// loadConfig reads .env, then the YAML config, validates it, then applies
// flag overrides. Default config is written to the user path only once it
// validates.
func loadConfig(requireLLM bool) (*config.AppConfig, error) {
	_ = godotenv.Load()

	var cfg *config.AppConfig
	var path string
	var err error
	if configPath == "" {
		cfg, path, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(configPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(requireLLM); err != nil {
		return nil, err
	}
	if path != "" {
		if _, err := config.SaveIfMissing(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	return cfg, nil
}

func isVerbose() bool { return verbose || logging.VerboseFromEnv() }

func newLogger() (*zap.Logger, error) {
	return logging.New(isVerbose())
}

// newFileLogger logs into the data directory, for commands that own the terminal.
func newFileLogger(cfg *config.AppConfig) (*zap.Logger, error) {
	return logging.NewFile(isVerbose(), filepath.Join(cfg.DataDir, "repochat.log"))
}

func newContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// handleOpenError turns an empty repository into a warning with a zero
// exit status; every other error is returned.
func handleOpenError(cmd *cobra.Command, err error) error {
	if errors.Is(err, service.ErrNoDocuments) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
		return nil
	}
	return err
}
