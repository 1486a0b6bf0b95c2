package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"grantflow/api/internal/app"
	"grantflow/api/internal/cache"
	"grantflow/api/internal/config"
	"grantflow/api/internal/store"
)

func main() {
	cfg := config.Load()

	logger := newLogger(cfg.Env)
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	client, err := store.Open(ctx, cfg.MongoURL)
	if err != nil {
		logger.Fatal("mongo connection failed", zap.Error(err))
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	dataStore := store.NewMongoStore(client.Database(cfg.MongoDB))
	if err := dataStore.EnsureIndexes(ctx); err != nil {
		logger.Fatal("index bootstrap failed", zap.Error(err))
	}

	var service *app.Service
	if cfg.RedisURL != "" {
		listCache, err := cache.NewRedisCache(cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			logger.Fatal("redis connection failed", zap.Error(err))
		}
		defer listCache.Close()
		logger.Info("list caching enabled", zap.Duration("ttl", cfg.CacheTTL))
		service = app.NewWithCache(cfg, dataStore, listCache, logger)
	} else {
		logger.Info("list caching disabled")
		service = app.New(cfg, dataStore, logger)
	}

	httpServer := app.NewHTTPServer(service, logger, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("GrantFlow API listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

func newLogger(env string) *zap.Logger {
	if env == "production" {
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
