package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/adot20/product-search-backend/config"
	httpDelivery "github.com/adot20/product-search-backend/internal/delivery/http"
	"github.com/adot20/product-search-backend/internal/domain"
	"github.com/adot20/product-search-backend/internal/infrastructure/cache"
	"github.com/adot20/product-search-backend/internal/infrastructure/fetch"
	"github.com/adot20/product-search-backend/internal/infrastructure/logging"
	"github.com/adot20/product-search-backend/internal/infrastructure/retailer"
	"github.com/adot20/product-search-backend/internal/usecase"
)

const cacheCleanupInterval = 10 * time.Minute

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting product search backend",
		zap.String("version", "1.0.0"),
		zap.String("environment", cfg.Server.Environment),
		zap.String("port", cfg.Server.Port),
		zap.String("cache", cfg.Cache.Type),
		zap.Duration("cache_ttl", cfg.Cache.TTL))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize infrastructure dependencies
	store, err := openCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeQuietly(logger, "cache", store)

	fetcher, closeFetcher, err := buildFetcher(cfg, logger)
	if err != nil {
		return err
	}
	defer closeFetcher()

	// Initialize usecase layer
	matcher := usecase.NewMatchingService(usecase.MatchConfig{
		MinScore:           cfg.Matching.MinScore,
		MinTermLength:      cfg.Matching.MinTermLength,
		EnableDebugLogging: cfg.Matching.EnableDebugLogging,
	}, logger)

	registry, err := retailer.NewRegistry(matcher, logger,
		retailer.WithMaxCandidates(cfg.Matching.MaxCandidates))
	if err != nil {
		return fmt.Errorf("build extractors: %w", err)
	}
	extractors := enabledExtractors(registry, cfg.Search.SiteIDs())

	logger.Info("matching configured",
		zap.Int("min_score", cfg.Matching.MinScore),
		zap.Int("min_term_length", cfg.Matching.MinTermLength),
		zap.Int("max_candidates", cfg.Matching.MaxCandidates),
		zap.Int("sites", len(extractors)))

	searchService := usecase.NewSearchService(
		store,
		fetcher,
		extractors,
		usecase.SearchServiceConfig{
			SiteTimeout:   cfg.Search.SiteTimeout,
			SearchTimeout: cfg.Search.SearchTimeout,
		},
		logger,
	)

	// Create HTTP handler with dependencies
	handler := httpDelivery.NewHandler(searchService, cfg.Cache.Type, logger)
	router := httpDelivery.SetupRouter(cfg, handler, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// cacheStore is a product cache that owns resources
type cacheStore interface {
	domain.ProductCache
	io.Closer
}

func openCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cacheStore, error) {
	opts := cache.Options{
		TTL:             cfg.Cache.TTL,
		CleanupInterval: cacheCleanupInterval,
	}

	if cfg.Cache.Type == "memory" {
		return cache.NewMemoryStore(opts), nil
	}

	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	store, err := cache.OpenSQLStore(openCtx, cfg.Cache.Type, cfg.Cache.DSN, opts, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s cache: %w", cfg.Cache.Type, err)
	}
	return store, nil
}

// buildFetcher returns the plain HTTP fetcher, escalating to a headless
// browser when the renderer is enabled.
func buildFetcher(cfg *config.Config, logger *zap.Logger) (domain.PageFetcher, func(), error) {
	httpFetcher := fetch.NewHTTPFetcher(fetch.Config{
		DelayMin:      cfg.Fetch.DelayMin,
		DelayMax:      cfg.Fetch.DelayMax,
		RatePerSecond: cfg.Fetch.RatePerSecond,
		Burst:         cfg.Fetch.Burst,
		MaxAttempts:   cfg.Fetch.MaxAttempts,
		MaxBodyBytes:  cfg.Fetch.MaxBodyBytes,
		Proxy:         cfg.Fetch.Proxy,
		Timeout:       cfg.Search.SiteTimeout,
	}, logger)

	if !cfg.Renderer.Enabled {
		return fetch.NewChain(logger, httpFetcher), func() {}, nil
	}

	renderer, err := fetch.NewRenderFetcher(fetch.RenderConfig{
		Headless:  cfg.Renderer.Headless,
		NoSandbox: cfg.Renderer.NoSandbox,
		Bin:       cfg.Renderer.Bin,
		Proxy:     cfg.Fetch.Proxy,
		MaxPages:  cfg.Renderer.MaxPages,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("start renderer: %w", err)
	}
	logger.Info("headless renderer enabled", zap.Int("max_pages", cfg.Renderer.MaxPages))

	return fetch.NewChain(logger, httpFetcher, renderer), func() {
		closeQuietly(logger, "renderer", renderer)
	}, nil
}

// enabledExtractors keeps only the configured sites. Sites left out are
// reported as not supported.
func enabledExtractors(registry map[domain.SiteID]domain.Extractor, sites []domain.SiteID) map[domain.SiteID]domain.Extractor {
	out := make(map[domain.SiteID]domain.Extractor, len(sites))
	for _, site := range sites {
		if ex, ok := registry[site]; ok {
			out[site] = ex
		}
	}
	return out
}

func closeQuietly(logger *zap.Logger, name string, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Warn("close failed", zap.String("resource", name), zap.Error(err))
	}
}
