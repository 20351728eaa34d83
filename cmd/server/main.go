package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/allocation/internal/adapter/handler"
	"github.com/rl1809/allocation/internal/adapter/notification"
	"github.com/rl1809/allocation/internal/adapter/pubsub"
	"github.com/rl1809/allocation/internal/adapter/storage"
	"github.com/rl1809/allocation/internal/core/service"
)

const (
	httpPort   = ":8080"
	mysqlDSN   = "root:root@tcp(localhost:3306)/allocation?parseTime=true&clientFoundRows=true"
	redisAddr  = "localhost:6379"
	smtpAddr   = "localhost:1025"
	mailFrom   = "allocations@example.com"
	alertEmail = "stock@example.com"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MySQL
	db, err := sql.Open("mysql", getEnv("MYSQL_DSN", mysqlDSN))
	if err != nil {
		logger.Fatal("failed to open mysql", zap.Error(err))
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		logger.Fatal("failed to ping mysql", zap.Error(err))
	}
	if err := storage.EnsureSchema(ctx, db); err != nil {
		logger.Fatal("failed to ensure schema", zap.Error(err))
	}
	logger.Info("connected to mysql")

	// Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     getEnv("REDIS_ADDR", redisAddr),
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect redis", zap.Error(err))
	}
	logger.Info("connected to redis")

	// Adapters and bus
	uow := storage.NewMySQLUnitOfWorkStarter(db)
	notifier := notification.NewEmailNotifier(getEnv("SMTP_ADDR", smtpAddr), mailFrom)
	publisher := pubsub.NewRedisPublisher(rdb)

	bus, err := service.NewBus(uow, notifier, publisher, getEnv("ALERT_EMAIL", alertEmail), logger)
	if err != nil {
		logger.Fatal("failed to build message bus", zap.Error(err))
	}

	// Redis command consumer
	consumer := pubsub.NewRedisConsumer(rdb, bus, logger)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("redis consumer stopped", zap.Error(err))
		}
	}()
	logger.Info("redis consumer started", zap.String("channel", pubsub.ChangeBatchQuantityChannel))

	// HTTP server
	httpHandler := handler.NewHTTPHandler(bus)
	mux := http.NewServeMux()
	mux.HandleFunc("/health", httpHandler.HealthCheck)
	mux.HandleFunc("/api/batches", httpHandler.AddBatch)
	mux.HandleFunc("/api/allocations", httpHandler.Allocate)

	httpServer := &http.Server{
		Addr:    getEnv("HTTP_PORT", httpPort),
		Handler: mux,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	logger.Info("http server stopped")

	cancel()
	<-consumerDone
	logger.Info("redis consumer stopped")

	rdb.Close()
	db.Close()
	logger.Info("connections closed")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
