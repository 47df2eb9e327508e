package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pigcharles06/remote-course-system/internal/config"
	"github.com/pigcharles06/remote-course-system/internal/generator"
	"github.com/pigcharles06/remote-course-system/internal/llm"
	"github.com/pigcharles06/remote-course-system/internal/logging"
	"github.com/pigcharles06/remote-course-system/internal/pipeline"
	"github.com/pigcharles06/remote-course-system/internal/storage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	rootCmd = &cobra.Command{
		Use:   "plandoc",
		Short: "Teaching plan document generator",
	}
	configPath string
	dbPath     string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Path to the generation history database (SQLite); overrides config")

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(serveCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dbPath != "" {
		cfg.Storage.DBPath = dbPath
	}
	return cfg, nil
}

// initStore opens the generation history database.
func initStore(cfg *config.Config) (*storage.SQLiteStore, error) {
	return storage.NewSQLiteStore(cfg.Storage.DBPath)
}

// initAssembler wires provider, generator and assembler from configuration.
// A reference that cannot be loaded is logged and skipped.
func initAssembler(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*pipeline.Assembler, error) {
	if cfg.Template.Path == "" {
		return nil, fmt.Errorf("template path not configured (template.path or PLANDOC_TEMPLATE)")
	}

	provider, err := llm.NewProvider(ctx, llm.ProviderOptions{
		Provider:    cfg.AI.Provider,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		BaseURL:     cfg.AI.BaseURL,
		Temperature: *cfg.AI.Temperature,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}

	var ref *llm.Reference
	if cfg.Template.ReferencePath != "" {
		ref, err = llm.LoadReference(cfg.Template.ReferencePath)
		if err != nil {
			logger.Warn("reference document unavailable, continuing without it",
				zap.String("path", cfg.Template.ReferencePath), zap.Error(err))
			ref = nil
		}
	}

	gen := generator.New(provider, generator.Options{
		BatchSize:   cfg.Generation.BatchSize,
		MaxRounds:   cfg.Generation.MaxRounds,
		CallTimeout: cfg.AI.Timeout,
		Logger:      logger,
	})

	return pipeline.NewAssembler(pipeline.Options{
		TemplatePath: cfg.Template.Path,
		Reference:    ref,
		Generator:    gen,
		Logger:       logger,
	})
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Log.Level, cfg.Log.Development)
}
