package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eshaffer321/receipt-reconciler/internal/application/service"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/confidence"
	"github.com/eshaffer321/receipt-reconciler/internal/domain/merchant"
	"github.com/eshaffer321/receipt-reconciler/internal/infrastructure/config"
	"github.com/eshaffer321/receipt-reconciler/internal/infrastructure/filestore"
	"github.com/eshaffer321/receipt-reconciler/internal/infrastructure/logging"
	"github.com/eshaffer321/receipt-reconciler/internal/infrastructure/storage"
)

// App bundles the wired engine for a single command invocation.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Store      *storage.Storage
	Files      *filestore.LocalStore
	Normalizer *merchant.Normalizer
	Reconciler *service.Reconciler
}

// NewApp wires config, logging, storage, merchant rules, the file store and
// the reconciler, then loads persisted weights and aliases. system tags log
// lines (reconcile, api, train).
func NewApp(ctx context.Context, cfg *config.Config, system string) (*App, error) {
	logger := logging.NewLoggerWithSystem(cfg.Observability.Logging, system)

	normalizer, err := LoadNormalizer(cfg.Merchant)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewStorage(cfg.Storage.DatabasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Storage.DatabasePath, err)
	}

	retry := filestore.DefaultRetryOptions()
	if cfg.Files.MoveAttempts > 0 {
		retry.MaxAttempts = cfg.Files.MoveAttempts
	}
	files := filestore.NewLocalStore(cfg.Files.Root, retry, logger)

	// Weights live in the database unless a YAML file is configured.
	var weights confidence.WeightStore
	if cfg.Model.WeightsFile != "" {
		weights = confidence.NewFileWeightStore(cfg.Model.WeightsFile)
	}

	rec := service.NewReconciler(EngineConfig(cfg), store, weights, normalizer, files, logger)
	if err := rec.Init(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize reconciler: %w", err)
	}

	return &App{
		Config:     cfg,
		Logger:     logger,
		Store:      store,
		Files:      files,
		Normalizer: normalizer,
		Reconciler: rec,
	}, nil
}

// Close waits for background writes and closes the database.
func (a *App) Close() error {
	a.Reconciler.Wait()
	return a.Store.Close()
}

// EngineConfig maps file/env configuration onto the engine's tunables.
// Unset (zero) values keep the engine defaults.
func EngineConfig(cfg *config.Config) service.Config {
	ec := service.DefaultConfig()

	if cfg.Matching.RuleWeight > 0 || cfg.Matching.LearnedWeight > 0 {
		ec.Matcher.RuleWeight = cfg.Matching.RuleWeight
		ec.Matcher.LearnedWeight = cfg.Matching.LearnedWeight
	}
	if cfg.Matching.InclusionFloor > 0 {
		ec.Matcher.InclusionFloor = cfg.Matching.InclusionFloor
	}
	ec.AllowCrossStatement = cfg.Matching.AllowCrossStatement

	if cfg.Model.LearningRate > 0 {
		ec.Model.LearningRate = cfg.Model.LearningRate
	}
	if cfg.Model.Epochs > 0 {
		ec.Model.Epochs = cfg.Model.Epochs
	}
	if cfg.Model.MinSamples > 0 {
		ec.Model.MinSamples = cfg.Model.MinSamples
	}

	return ec
}

// LoadNormalizer builds the normalizer from the built-in rules merged with
// the optional rules file.
func LoadNormalizer(cfg config.MerchantConfig) (*merchant.Normalizer, error) {
	rules := merchant.DefaultRules()
	if cfg.RulesFile != "" {
		extra, err := merchant.LoadRules(cfg.RulesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load merchant rules: %w", err)
		}
		rules = rules.Merge(extra)
	}
	return merchant.NewNormalizer(rules)
}
