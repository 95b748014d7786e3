package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"stealthcompany.com/openbroker/internal/api"
	"stealthcompany.com/openbroker/internal/broker"
	"stealthcompany.com/openbroker/internal/config"
	"stealthcompany.com/openbroker/internal/metrics"
	"stealthcompany.com/openbroker/internal/rpde"
	"stealthcompany.com/openbroker/internal/store"
	"stealthcompany.com/openbroker/pkg/zerolog_config"
)

func main() {
	// Load .env if present, otherwise assume environment variables are set
	if err := godotenv.Load(".env"); err != nil {
		log.Info().Msg("Not found .env file, assuming environment variables are set")
	}

	cfg := config.Load()

	zerolog_config.SetAppPrefix("openbroker")
	zerolog_config.StartupWithEnv(cfg.ElasticsearchURL, "logs", cfg.LogLevel)

	log.Info().Msg("Starting openbroker service")

	metrics.StartSystemMetrics(15 * time.Second)

	recordStore, err := newRecordStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize record store")
	}

	b := broker.New(cfg, recordStore)
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.NewServer(cfg, b).SetupRoutes(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start server in goroutine
	go func() {
		log.Info().
			Str("port", cfg.Port).
			Msg("Server starting")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().
				Err(err).
				Msg("Failed to start server")
		}
	}()

	startHarvesters(ctx, cfg, b)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("Received shutdown signal, shutting down gracefully...")

	// Stop all harvest loops
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Closing record store...")
	if err := recordStore.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close record store")
	}

	log.Info().Msg("Broker service shutdown complete")
}

// newRecordStore selects the store backend from configuration.
func newRecordStore(cfg *config.Config) (store.RecordStore, error) {
	switch cfg.StoreBackend {
	case "memory":
		log.Info().Msg("Using in-memory record store")
		return store.NewMemoryStore(), nil
	case "couchbase":
		return store.NewCouchbaseStore(cfg.CouchbaseURL, cfg.CouchbaseUsername, cfg.CouchbasePassword, cfg.CouchbaseBucket)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// startHarvesters launches one harvest loop per configured feed: upstream
// parent and child feeds, the broker's own republished feed, and the orders
// feed when configured.
func startHarvesters(ctx context.Context, cfg *config.Config, b *broker.Broker) {
	for i, feedURL := range cfg.ParentFeedURLs {
		feedName := fmt.Sprintf("parent-%d", i)
		runHarvester(ctx, rpde.NewHarvester(feedName, b.ParentPageHandler(feedName)), feedURL, cfg)
	}

	for i, feedURL := range cfg.ChildFeedURLs {
		feedName := fmt.Sprintf("child-%d", i)
		runHarvester(ctx, rpde.NewHarvester(feedName, b.ChildPageHandler(feedName)), feedURL, cfg)
	}

	// The broker learns about every change, in delivery order, by polling
	// its own output.
	runHarvester(ctx, rpde.NewHarvester("self", b.SelfFeedHandler()), cfg.SelfFeedURL(), cfg)

	if cfg.OrdersFeedURL != "" {
		harvester := rpde.NewHarvester("orders", b.OrdersHandler())
		harvester.AuthHeader = "X-Api-Key"
		harvester.AuthValue = cfg.OrdersAPIKey
		runHarvester(ctx, harvester, cfg.OrdersFeedURL, cfg)
	} else {
		log.Info().Msg("No orders feed configured, skipping orders monitor")
	}
}

func runHarvester(ctx context.Context, h *rpde.Harvester, feedURL string, cfg *config.Config) {
	h.PageDelay = cfg.PageDelay
	h.RetryDelay = cfg.RetryDelay

	go func() {
		log.Info().
			Str("feed", h.FeedName).
			Str("url", feedURL).
			Msg("Starting harvest loop")

		if err := h.Run(ctx, feedURL); err != nil && ctx.Err() == nil {
			log.Error().
				Err(err).
				Str("feed", h.FeedName).
				Msg("Harvest loop stopped")
		}
	}()
}
