// Command tradeledger runs the trading service: HTTP boundary, settlement
// worker pool and cache coherence against one ledger database.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/finbase/tradeledger/internal/admission"
	"github.com/finbase/tradeledger/internal/api"
	"github.com/finbase/tradeledger/internal/cache"
	"github.com/finbase/tradeledger/internal/config"
	"github.com/finbase/tradeledger/internal/ledger"
	"github.com/finbase/tradeledger/internal/settlement"
	"github.com/finbase/tradeledger/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "tradeledger: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	store := ledger.NewStore(db, log)
	if err := store.AutoMigrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	cacheLayer := buildCache(cfg, log)
	coherence := cache.NewCoherence(cacheLayer, cfg.Cache.Version, log)
	checker := admission.NewChecker(store)

	queue, err := buildQueue(cfg.Queue, log)
	if err != nil {
		return fmt.Errorf("init queue: %w", err)
	}

	executor := settlement.NewExecutor(store, queue, coherence, settlement.ExecutorConfig{
		Workers:      cfg.Settlement.Workers,
		MaxRetries:   cfg.Settlement.MaxRetries,
		RetryBackoff: cfg.Settlement.RetryBackoff,
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Workers run past the shutdown signal so accepted trades drain; they
	// stop when the queue is closed.
	executor.Start(context.Background())

	server := api.NewServer(store, cacheLayer, coherence, checker, queue, cfg.Cache, log)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", zap.Error(err))
	}

	// Stop intake, let the workers drain what was already accepted.
	if err := queue.Close(); err != nil {
		log.Warn("queue close failed", zap.Error(err))
	}
	executor.Wait()
	log.Info("settlement drained, exiting")
	return nil
}

func openDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Driver {
	case "postgres":
		return ledger.OpenPostgres(cfg.DSN)
	case "sqlite":
		return ledger.OpenSQLite(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func buildCache(cfg *config.Config, log *zap.Logger) cache.Cache {
	if cfg.Cache.Driver == "memory" {
		return cache.NewMemory()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	log.Info("redis cache configured", zap.String("addr", cfg.Redis.Addr))
	return cache.NewRedis(client)
}

func buildQueue(cfg config.QueueConfig, log *zap.Logger) (settlement.Queue, error) {
	switch cfg.Driver {
	case "memory":
		return settlement.NewMemoryQueue(cfg.Capacity), nil
	case "kafka":
		return settlement.NewKafkaQueue(settlement.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		}, log), nil
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Driver)
	}
}
