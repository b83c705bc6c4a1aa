package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"paycore/config"
	"paycore/internal/database"
	"paycore/internal/events"
	"paycore/internal/lock"
	"paycore/internal/logger"
	"paycore/internal/router"
	"paycore/pkg/payment"
)

func main() {
	cfg := config.Load()
	log := logger.Must(cfg.Server.Env)
	defer log.Sync()

	if cfg.JWT.AccessSecret == "" {
		log.Fatal("JWT_ACCESS_SECRET is required")
	}
	if cfg.Payment.AllowUnsignedWebhooks {
		log.Warn("unsigned webhooks are enabled for providers that opt in; their status is re-fetched before use")
	}

	db, err := database.NewDB(&cfg.Database, log)
	if err != nil {
		log.Fatal("database", zap.Error(err))
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	var locker lock.Locker
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Fatal("redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb, cfg.Payment.LockTTL)
		log.Info("order locks use redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		locker = lock.NewLocalLocker()
		log.Info("order locks are process-local; run a single instance or set REDIS_ADDR")
	}

	var publisher events.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		writer := events.NewKafkaWriter(cfg.Kafka.Brokers)
		defer writer.Close()
		publisher = events.NewKafkaPublisher(writer, cfg.Kafka.Topic)
		log.Info("intent events go to kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	engine := router.Setup(cfg, db, router.Deps{
		Log:       log,
		Registry:  payment.DefaultRegistry(cfg.Payment.ProviderTimeout),
		Locker:    locker,
		Publisher: publisher,
	})
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		log.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("env", cfg.Server.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}
	log.Info("server stopped")
}
