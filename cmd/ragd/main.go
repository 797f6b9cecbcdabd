// Package main implements the ragd CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/generation"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
	"github.com/fyrsmithlabs/ragd/internal/services"
	"github.com/fyrsmithlabs/ragd/internal/telemetry"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

var (
	// Build information, set with -ldflags.
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	cfgFile    string
	logLevel   string
	collection string
)

// Exit codes by failure kind.
const (
	exitOther         = 1
	exitConfiguration = 2
	exitExtraction    = 3
	exitEmbedding     = 4
	exitIndex         = 5
	exitGeneration    = 6
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(exitCode(err))
	}
}

// run executes the root command and always flushes telemetry and logs,
// including when the command fails.
func run(ctx context.Context) error {
	defer teardown(ctx)
	return rootCmd.ExecuteContext(ctx)
}

// exitCode maps an error to the process exit code.
func exitCode(err error) int {
	switch ragerr.Kind(err) {
	case ragerr.ErrConfiguration:
		return exitConfiguration
	case ragerr.ErrExtraction:
		return exitExtraction
	case ragerr.ErrEmbedding:
		return exitEmbedding
	case ragerr.ErrIndex:
		return exitIndex
	case ragerr.ErrGeneration:
		return exitGeneration
	default:
		return exitOther
	}
}

var rootCmd = &cobra.Command{
	Use:   "ragd",
	Short: "Retrieval-augmented question answering over your documents",
	Long: `ragd extracts text from PDF and text documents, splits it into overlapping
chunks, embeds them and stores them in a vector index (Qdrant or an embedded
chromem database). Questions are answered from the most relevant chunks only.

Configuration is read from --config, ./ragd.yaml or ~/.config/ragd/config.yaml,
then overridden by RAGD_* environment variables.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml or toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&collection, "collection", "", "collection name override")
	rootCmd.Version = version
}

// runtime holds what setup initialized for the running command.
var rt struct {
	cfg    *config.Config
	logger *logging.Logger
	tel    *telemetry.Telemetry
}

// setup loads configuration and initializes logging and telemetry.
func setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	tel, err := telemetry.New(cmd.Context(), telemetry.FromAppConfig(cfg.Telemetry))
	if err != nil {
		return fmt.Errorf("%w: %w", ragerr.ErrConfiguration, err)
	}

	logCfg, err := logging.FromAppConfig(cfg.Logging)
	if err != nil {
		return fmt.Errorf("%w: %w", ragerr.ErrConfiguration, err)
	}
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("%w: %w", ragerr.ErrConfiguration, err)
	}
	if derr := tel.Degraded(); derr != nil {
		logger.Warn(cmd.Context(), "telemetry degraded", zap.Error(derr))
	}

	rt.cfg, rt.logger, rt.tel = cfg, logger, tel
	return nil
}

// teardown shuts telemetry down and syncs the logger. Calling it again is a
// no-op.
func teardown(ctx context.Context) {
	defer func() { rt.cfg, rt.logger, rt.tel = nil, nil, nil }()
	if rt.tel != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := rt.tel.Shutdown(shutdownCtx); err != nil && rt.logger != nil {
			rt.logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
		}
	}
	if rt.logger != nil {
		_ = rt.logger.Sync()
	}
}

// overrides replace configured components; tests set them.
var overrides struct {
	provider  embeddings.Provider
	index     vectorstore.Index
	generator generation.Generator
}

// build wires the components a command needs. The caller closes the registry.
func build(ctx context.Context, needs services.Need) (services.Registry, error) {
	if rt.cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	ctx = logging.WithCollection(ctx, rt.cfg.VectorStore.Collection)
	return services.Build(ctx, rt.cfg, services.BuildOptions{
		Collection: collection,
		Logger:     rt.logger,
		Needs:      needs,
		Provider:   overrides.provider,
		Index:      overrides.index,
		Generator:  overrides.generator,
	})
}
