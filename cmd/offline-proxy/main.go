// Command offline-proxy runs the offline cache as a reverse proxy in front
// of a single application origin.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/offline-cache/pkg/config"
	"github.com/Sternrassler/offline-cache/pkg/logging"
	"github.com/Sternrassler/offline-cache/pkg/storage"
	"github.com/Sternrassler/offline-cache/pkg/storage/memory"
	"github.com/Sternrassler/offline-cache/pkg/storage/redisstore"
	"github.com/Sternrassler/offline-cache/pkg/storage/sqlite"
	"github.com/Sternrassler/offline-cache/pkg/transport"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Setup(logging.NewConfig(cfg.LogLevel, cfg.LogPretty))
	logger := logging.NewLogger("offline-proxy")

	backend, err := openStorage(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.StorageBackend).Msg("Failed to open storage")
	}
	defer backend.Close()

	network := transport.New(transport.Config{
		DialTimeout:           cfg.DialTimeout,
		ResponseHeaderTimeout: cfg.HTTPTimeout,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := newServer(ctx, cfg, backend, network, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to start cache runtime")
	}
	defer srv.Close()

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.ListenAddr).
			Str("origin", cfg.OriginURL).
			Str("generation", cfg.Generation).
			Str("backend", cfg.StorageBackend).
			Msg("Starting offline proxy")
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Shutdown failed")
		}
		logger.Info().Msg("Offline proxy stopped")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("Server failed")
		}
	}
}

func openStorage(cfg config.Config) (storage.Storage, error) {
	switch cfg.StorageBackend {
	case config.BackendRedis:
		return redisstore.Dial(cfg.RedisURL, cfg.RedisPrefix)
	case config.BackendSQLite:
		return sqlite.Open(cfg.SQLitePath)
	default:
		return memory.New(), nil
	}
}
