package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/quartzlabs/econd/internal/adapter/bus"
	"github.com/quartzlabs/econd/internal/adapter/handler"
	"github.com/quartzlabs/econd/internal/adapter/storage"
	"github.com/quartzlabs/econd/internal/config"
	"github.com/quartzlabs/econd/internal/core/service"
)

const defaultConfigPath = "config.yaml"

func main() {
	_ = godotenv.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if os.Getenv("ECOND_DEBUG") != "" {
		log.SetLevel(logrus.DebugLevel)
	}

	configPath := os.Getenv("ECOND_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	if pw := os.Getenv("ECOND_DB_PASSWORD"); pw != "" {
		cfg.Storage.Password = pw
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage backend
	store, err := storage.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to construct storage backend")
	}
	if err := store.Load(ctx); err != nil {
		log.WithError(err).Fatal("failed to load storage backend")
	}
	log.WithField("type", cfg.Storage.Type).Info("storage backend ready")

	// Ledger and audit log
	ledger := service.NewLedger(store, nil, cfg.Currency, log)
	audit := service.NewAuditLog(store, cfg.Audit.File, cfg.Audit.QueueSize, log)

	// Invalidation bus (optional, best-effort)
	var (
		rdb    *redis.Client
		invBus *bus.Bus
	)
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		})
		invBus = bus.New(rdb, cfg.Redis.Channel, ledger, nil, log)
		invBus.Start(ctx)
		ledger.SetPublisher(invBus)
		log.WithField("channel", cfg.Redis.Channel).Info("invalidation bus started")
	}

	// HTTP surface
	httpHandler := handler.NewHTTPHandler(ledger, audit)
	mux := http.NewServeMux()
	httpHandler.Register(mux)

	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: mux,
	}

	go func() {
		log.WithField("addr", cfg.HTTP.Addr).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.WithError(err).Error("HTTP server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	log.Info("HTTP server stopped")

	if invBus != nil {
		invBus.Close()
		rdb.Close()
		log.Info("invalidation bus stopped")
	}

	audit.Close()
	log.Info("audit log drained")

	if err := store.Close(shutdownCtx); err != nil {
		log.WithError(err).Error("storage shutdown error")
	}
	log.Info("storage closed")
}
