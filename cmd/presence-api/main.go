package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"dispresence/internal/broadcast"
	"dispresence/internal/cache"
	"dispresence/internal/config"
	"dispresence/internal/discord"
	"dispresence/internal/handlers"
	"dispresence/internal/ingest"
	"dispresence/internal/logging"
	"dispresence/internal/metrics"
	"dispresence/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	defer logger.Sync()

	ttl, _ := cfg.Cache.GetTTL()
	store := cache.New(cache.Config{
		TTL:      ttl,
		RedisURL: cfg.Cache.RedisURL,
		NATS: cache.NATSConfig{
			ServerURL:  cfg.NATS.ServerURL,
			BucketName: cfg.NATS.KVBucket,
			Embedded:   cfg.NATS.Embedded,
			DataDir:    cfg.NATS.DataDir,
		},
		MaxCost:     cfg.Cache.MaxCost,
		NumCounters: cfg.Cache.NumCounters,
		BufferItems: cfg.Cache.BufferItems,
	}, logger)
	logger.Info("cache ready", zap.String("backend", store.Backend()))

	hub := broadcast.NewHub(logger)

	// The gateway connection is best-effort: without it the API still
	// serves cached and offline-default data.
	var source *discord.Client
	if cfg.Discord.BotToken == "" {
		logger.Warn("DISCORD_BOT_TOKEN not set, serving cache only")
	} else {
		source, err = discord.New(cfg.Discord.BotToken, logger)
		if err != nil {
			logger.Error("discord client init failed", zap.Error(err))
		} else if err := source.Open(); err != nil {
			logger.Error("discord gateway connect failed", zap.Error(err))
			source = nil
		}
	}

	ingestCtx, stopIngest := context.WithCancel(context.Background())
	defer stopIngest()
	if source != nil {
		go ingest.New(source.Events(), store, hub, logger).Run(ingestCtx)
	}

	var live service.LiveSource
	if source != nil {
		live = source
	}
	svc := service.New(store, live, logger)
	h := handlers.New(svc, logger, handlers.DebugInfo{
		TokenSet:    cfg.Discord.BotToken != "",
		RedisURLSet: cfg.Cache.RedisURL != "",
		Port:        cfg.Service.Port,
		APIVersion:  cfg.Service.APIVersion,
	})

	r := mux.NewRouter()
	r.HandleFunc("/", h.Root).Methods(http.MethodGet)
	r.HandleFunc("/ping", h.Ping).Methods(http.MethodGet)
	r.HandleFunc("/debug", h.Debug).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/ws", broadcast.ServeWS(hub, logger))

	api := r.PathPrefix("/" + cfg.Service.APIVersion).Subrouter()
	api.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}", h.GetUser).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/presence/{id}", h.GetPresence).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/guilds", h.GetGuilds).Methods(http.MethodGet, http.MethodOptions)

	var handler http.Handler = r
	handler = handlers.RecoverMiddleware(logger, handler)
	handler = handlers.CORSMiddleware(cfg.Service.CORSOrigin, handler)
	handler = metrics.Middleware("api", handler, store)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Service.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.Int("port", cfg.Service.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	// Stop accepting work first, then the live source, then the cache
	// backend, so in-flight events still have somewhere to land.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	hub.Close()
	stopIngest()
	if source != nil {
		if err := source.Close(); err != nil {
			logger.Warn("gateway close", zap.Error(err))
		}
	}
	if err := store.Close(); err != nil {
		logger.Warn("cache close", zap.Error(err))
	}
	logger.Info("bye")
}
