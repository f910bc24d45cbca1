package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Juanpabl/simECG-2022/internal/config"
	"github.com/Juanpabl/simECG-2022/internal/handler"
	"github.com/Juanpabl/simECG-2022/internal/repository"
	"github.com/Juanpabl/simECG-2022/internal/service"
	"github.com/Juanpabl/simECG-2022/internal/websocket"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger := newLogger(cfg.Log.Level)
	defer logger.Sync()

	logger.Info("starting simECG server", zap.String("http_port", cfg.Server.HTTPPort))

	// Хранилище: PostgreSQL при заданном DSN, иначе in-memory
	var repo repository.Repository
	if cfg.Storage.PostgresDSN != "" {
		pgRepo, err := repository.NewPostgresRepositoryFromDSN(cfg.Storage.PostgresDSN)
		if err != nil {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		repo = pgRepo
		logger.Info("using postgres repository")
	} else {
		repo = repository.NewMemoryRepository()
		logger.Info("using in-memory repository")
	}
	defer repo.Close()

	// Кэш: Redis при заданном адресе, иначе in-memory
	var cache repository.CacheStore
	if cfg.Storage.RedisAddr != "" {
		ttl := time.Duration(cfg.Storage.CacheTTLSeconds) * time.Second
		redisCache, err := repository.NewRedisCacheFromAddr(
			cfg.Storage.RedisAddr, cfg.Storage.RedisPassword, cfg.Storage.RedisDB, ttl)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		cache = redisCache
		logger.Info("using redis cache", zap.String("addr", cfg.Storage.RedisAddr))
	} else {
		cache = repository.NewMemoryCache()
		logger.Info("using in-memory cache")
	}
	defer cache.Close()

	hub := websocket.NewHub(logger)
	go hub.Run()

	simService := service.NewSimulationService(repo, cache, hub, logger)

	router := mux.NewRouter()
	httpHandler := handler.NewHTTPHandler(simService, cfg.Simulation, logger)
	httpHandler.Register(router)
	router.HandleFunc("/ws/simulations", hub.HandleWebSocket)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrChan:
		logger.Error("server error", zap.Error(err))
	case sig := <-shutdownChan:
		logger.Info("received signal, starting graceful shutdown", zap.String("signal", sig.String()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

// newLogger настраивает zap с уровнем из конфигурации
func newLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := cfg.Build()
	if err != nil {
		panic("failed to build logger: " + err.Error())
	}
	return logger
}
