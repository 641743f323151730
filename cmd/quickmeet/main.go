package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/example/quickmeet/internal/application"
	"github.com/example/quickmeet/internal/cache"
	"github.com/example/quickmeet/internal/config"
	"github.com/example/quickmeet/internal/gateway"
	httptransport "github.com/example/quickmeet/internal/http"
	"github.com/example/quickmeet/internal/logging"
	"github.com/example/quickmeet/internal/tokencipher"
)

func main() {
	logger := logging.New(os.Stdout, slog.LevelInfo)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		logger.Error("failed to open cache store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := closeStore(); cerr != nil {
			logger.Error("failed to close cache store", "error", cerr)
		}
	}()

	cipher, err := tokencipher.New(cfg.EncryptionKey)
	if err != nil {
		logger.Error("failed to initialize token cipher", "error", err)
		os.Exit(1)
	}

	gateways := gateway.Selector{
		Real: gateway.NewGoogleGateway(gateway.GoogleConfig{
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			RedirectURL:  cfg.OAuthRedirectURL,
		}, nil, logger),
		Mock: gateway.NewMockGateway(store, time.Now, logger),
	}

	directoryService := application.NewDirectoryService(gateways, store, cfg.RoomsCacheTTL, cfg.PeopleCacheTTL, logger)
	availabilityService := application.NewAvailabilityService(gateways, directoryService, logger)
	eventService := application.NewEventService(gateways, directoryService, availabilityService, logger)
	authService := application.NewAuthService(gateways, cipher, directoryService, logger)

	purger := startCachePurge(cfg.CachePurgeSchedule, store, logger)
	defer purger.Stop()

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Auth:              httptransport.NewAuthHandler(authService, cfg.UseMockGateway, logger),
		Rooms:             httptransport.NewRoomHandler(directoryService, availabilityService, logger),
		Events:            httptransport.NewEventHandler(eventService, logger),
		SessionMiddleware: httptransport.RequireSession(cipher, cfg.UseMockGateway, logger),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.RequestLogger(logger),
		},
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("quickmeet API listening", "addr", server.Addr, "mock_gateway", cfg.UseMockGateway)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}

func openStore(cfg config.Config) (cache.Store, func() error, error) {
	if cfg.CacheDSN == "" {
		return cache.NewMemoryStore(time.Now), func() error { return nil }, nil
	}
	store, err := cache.OpenSQLiteStore(cfg.CacheDSN, time.Now)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

// startCachePurge schedules periodic removal of expired cache rows so a
// long-running SQLite store does not accumulate stale collections.
func startCachePurge(schedule string, store cache.Store, logger *slog.Logger) *cron.Cron {
	runner := cron.New()
	_, err := runner.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := store.PurgeExpired(ctx); err != nil {
			logger.Error("cache purge failed", "error", err)
		}
	})
	if err != nil {
		logger.Error("invalid cache purge schedule; purge disabled", "schedule", schedule, "error", err)
	}
	runner.Start()
	return runner
}
