package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/shoplens/backend/config"
	httpDelivery "github.com/shoplens/backend/internal/delivery/http"
	"github.com/shoplens/backend/internal/domain"
	"github.com/shoplens/backend/internal/infrastructure/fetch"
	"github.com/shoplens/backend/internal/infrastructure/llm"
	"github.com/shoplens/backend/internal/infrastructure/research"
	"github.com/shoplens/backend/internal/infrastructure/store"
	"github.com/shoplens/backend/internal/usecase"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger := newLogger(cfg.Server.Environment)
	defer logger.Sync()

	logger.Info("starting shoplens backend",
		zap.String("environment", cfg.Server.Environment),
		zap.String("port", cfg.Server.Port),
		zap.String("store", cfg.Store.Type))

	// Initialize infrastructure dependencies
	productStore, prefStore, closeStore, err := buildStores(cfg)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer closeStore()

	generator, err := llm.NewGemini(context.Background(), llm.Config{
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	}, logger.Named("llm"))
	if err != nil {
		logger.Fatal("failed to create text generator", zap.Error(err))
	}

	researcher := research.NewClient(research.Config{
		APIKey:            cfg.Research.APIKey,
		BaseURL:           cfg.Research.BaseURL,
		Timeout:           cfg.Research.Timeout,
		RequestsPerSecond: cfg.Research.RequestsPerSecond,
	}, logger.Named("research"))

	fetcher := fetch.NewFetcher(fetch.Config{
		Timeout:      cfg.Fetch.Timeout,
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
	})

	// Initialize usecase layer
	classifier := usecase.NewClassifier(generator, logger.Named("classifier"))
	productCache := usecase.NewProductCache(productStore, logger.Named("cache"))
	extractor := usecase.NewExtractor(generator, usecase.ExtractorConfig{
		ConfidenceFloor: cfg.Discovery.ConfidenceFloor,
		MaxCandidates:   cfg.Discovery.MaxResults,
	}, logger.Named("extract"))
	enricher := usecase.NewEnricher(generator, logger.Named("enrich"))
	resolver := usecase.NewResolver(researcher, fetcher, generator, usecase.ResolverConfig{
		MaxParallel: cfg.Discovery.MaxParallelResolutions,
	}, logger.Named("resolve"))
	learner := usecase.NewPreferenceLearner(prefStore, usecase.LearnerConfig{
		DecayFactor:       cfg.Preferences.DecayFactor,
		WeightFloor:       cfg.Preferences.WeightFloor,
		MaxCategories:     cfg.Preferences.MaxCategories,
		MaxBrands:         cfg.Preferences.MaxBrands,
		MaxRecentSearches: cfg.Preferences.MaxRecentSearches,
	}, logger.Named("learner"))

	discovery := usecase.NewDiscoveryService(
		classifier, productCache, extractor, enricher, resolver, learner,
		researcher, generator,
		usecase.DiscoveryConfig{
			CacheFallbackFloor: cfg.Discovery.CacheFallbackFloor,
			CacheSearchLimit:   cfg.Discovery.CacheSearchLimit,
			MaxResults:         cfg.Discovery.MaxResults,
		},
		logger.Named("discovery"))
	comparison := usecase.NewComparisonService(researcher, extractor, generator, logger.Named("comparison"))

	// Create HTTP handler with dependencies
	handler := httpDelivery.NewHandler(discovery, comparison, productCache, prefStore, logger.Named("http"))

	// Setup router
	router := httpDelivery.SetupRouter(cfg, handler)

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	logger.Info("server listening", zap.String("addr", addr))

	if err := router.Run(addr); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// buildStores selects the store backend from configuration
func buildStores(cfg *config.Config) (domain.ProductStore, domain.PreferenceStore, func(), error) {
	switch cfg.Store.Type {
	case "sqlite":
		s, err := store.NewSQLite(cfg.Store.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		return s, s, func() { s.Close() }, nil
	default:
		m := store.NewMemory()
		return m, m, func() {}, nil
	}
}

func newLogger(environment string) *zap.Logger {
	if environment == "production" {
		logger, err := zap.NewProduction()
		if err != nil {
			panic(err)
		}
		return logger
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return logger
}
