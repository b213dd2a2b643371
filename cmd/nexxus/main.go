// main is the entry point of the Nexxus metaserver.
// It initializes the configuration, logger, database, GeoIP provider,
// security pipeline, and starts the HTTP server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/basictheprogram/crossfire-nexxus/internal/config"
	"github.com/basictheprogram/crossfire-nexxus/internal/fake"
	"github.com/basictheprogram/crossfire-nexxus/internal/geoip"
	"github.com/basictheprogram/crossfire-nexxus/internal/logger"
	"github.com/basictheprogram/crossfire-nexxus/internal/maintenance"
	"github.com/basictheprogram/crossfire-nexxus/internal/ratelimit"
	"github.com/basictheprogram/crossfire-nexxus/internal/security"
	"github.com/basictheprogram/crossfire-nexxus/internal/server"
	"github.com/basictheprogram/crossfire-nexxus/internal/storage"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg := config.Parse()

	logger.Setup(cfg.Logger)
	log.Info().Msg("Starting nexxus service...")

	// GeoIP
	var geoProvider *geoip.Provider
	if !cfg.GeoIP.Disable {
		if err := geoip.EnsureDB(cfg.GeoIP.Path, cfg.GeoIP.URL, cfg.GeoIP.Interval); err != nil {
			log.Error().Err(err).Msg("Failed to download GeoIP database")
		}

		var err error
		geoProvider, err = geoip.Open(cfg.GeoIP.Path)
		if err != nil {
			log.Error().Err(err).Msg("Failed to open GeoIP database, country detection disabled")
			geoProvider = nil
		} else {
			defer func() {
				if err := geoProvider.Close(); err != nil {
					log.Error().Err(err).Msg("Error closing GeoIP provider")
				}
			}()
		}
	}

	// Database
	store, err := storage.New(cfg.Storage.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database")
		}
	}()

	// Data generation or database maintenance
	if cfg.Storage.GenerateCount > 0 {
		fake.GenerateData(store, cfg.Storage.GenerateCount)
		return
	} else if maintenance.Run(cfg, store) {
		return
	}

	// Security pipeline
	pipe, closeCounters, err := buildPipeline(cfg, store)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize security pipeline")
	}
	defer closeCounters()
	log.Info().Int("checks", pipe.Len()).Msg("Security pipeline configured")

	// Init server
	srvHandler := server.New(store, geoProvider, pipe, cfg)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      srvHandler.Run(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// buildPipeline assembles the configured security checks in their fixed
// order: blacklists, credentials, then rate limiting. The returned closer
// releases the counter store connection, if any.
func buildPipeline(cfg *config.Config, store *storage.Repository) (*security.Pipeline, func(), error) {
	var checks []security.Check
	closeCounters := func() {}

	if !cfg.Security.DisableIPBlacklist {
		checks = append(checks, &security.IPBlacklistCheck{Store: store})
	}
	if !cfg.Security.DisableHostnameBlacklist {
		checks = append(checks, &security.HostnameBlacklistCheck{Store: store})
	}
	if cfg.Security.APIKey != "" {
		checks = append(checks, &security.APIKeyCheck{Key: cfg.Security.APIKey})
	}
	if cfg.Security.HMACSecret != "" {
		checks = append(checks, &security.HMACSignatureCheck{Secret: []byte(cfg.Security.HMACSecret)})
	}

	if cfg.RateLimit.Threshold > 0 {
		var counters security.Counter
		if cfg.RateLimit.RedisURL != "" {
			redisStore, err := ratelimit.NewRedisStore(cfg.RateLimit.RedisURL)
			if err != nil {
				return nil, closeCounters, err
			}
			closeCounters = func() {
				if err := redisStore.Close(); err != nil {
					log.Error().Err(err).Msg("Error closing counter store")
				}
			}
			counters = redisStore
		} else {
			counters = ratelimit.NewMemoryStore()
		}

		checks = append(checks, &security.RateLimitCheck{
			Counter:   counters,
			Threshold: cfg.RateLimit.Threshold,
			Window:    cfg.RateLimit.Window,
		})
	}

	return security.NewPipeline(checks...), closeCounters, nil
}
