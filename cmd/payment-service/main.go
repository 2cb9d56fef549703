package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jcmexdev/payment-saga/internal/payment/adapters/kafkax"
	"github.com/jcmexdev/payment-saga/internal/payment/adapters/ledgercache"
	"github.com/jcmexdev/payment-saga/internal/payment/adapters/sqlite"
	"github.com/jcmexdev/payment-saga/internal/payment/app"
	"github.com/jcmexdev/payment-saga/internal/payment/domain"
	"github.com/jcmexdev/payment-saga/internal/payment/infra/httpx"
	"github.com/jcmexdev/payment-saga/internal/pkg/cache"
	"github.com/jcmexdev/payment-saga/internal/pkg/telemetry"
)

type Config struct {
	ServiceName         string
	HTTPPort            string
	DBPath              string
	KafkaBrokers        []string
	GroupID             string
	TopicPaymentSuccess string
	TopicPaymentFail    string
	TopicOrchestrator   string
	HandlerTimeout      time.Duration
	RedisAddr           string // empty disables the existence cache
	CacheTTL            time.Duration
}

func loadConfig() Config {
	return Config{
		ServiceName:         getEnv("OTEL_SERVICE_NAME", "payment-service"),
		HTTPPort:            getEnv("HTTP_PORT", "8083"),
		DBPath:              getEnv("PAYMENT_SQLITE_PATH", "./data/payment.db"),
		KafkaBrokers:        parseCSV(getEnv("KAFKA_BROKERS", "localhost:9092")),
		GroupID:             getEnv("KAFKA_GROUP_ID", "payment-group"),
		TopicPaymentSuccess: getEnv("KAFKA_TOPIC_PAYMENT_SUCCESS", "payment-success"),
		TopicPaymentFail:    getEnv("KAFKA_TOPIC_PAYMENT_FAIL", "payment-fail"),
		TopicOrchestrator:   getEnv("KAFKA_TOPIC_ORCHESTRATOR", "orchestrator"),
		HandlerTimeout:      getDuration("HANDLER_TIMEOUT", 10*time.Second),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		CacheTTL:            getDuration("CACHE_TTL", 24*time.Hour),
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry.InitLogger()
	cfg := loadConfig()

	shutdown, err := telemetry.SetupTracer(ctx, cfg.ServiceName)
	if err != nil {
		slog.Error("failed to initialise tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Error("tracer shutdown error", "error", err)
		}
	}()

	repo, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open payment ledger", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	var ledger domain.Repository = repo
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisCache(cfg.RedisAddr, cfg.ServiceName)
		defer redisCache.Close()
		ledger = ledgercache.Wrap(repo, redisCache, cfg.CacheTTL)
	}

	producer := kafkax.NewProducer(cfg.KafkaBrokers, cfg.TopicOrchestrator)
	defer producer.Close()

	handler := app.NewPaymentHandler(ledger, producer)

	// Explicit channel → handler bindings. The handler is channel-agnostic;
	// the topology lives only here, built from configuration.
	bindings := map[string]kafkax.EventHandler{
		cfg.TopicPaymentSuccess: handler.HandleSuccess,
		cfg.TopicPaymentFail:    handler.HandleRollback,
	}

	for topic, handle := range bindings {
		consumer := kafkax.NewConsumer(cfg.KafkaBrokers, topic, cfg.GroupID, cfg.HandlerTimeout, handle)
		defer consumer.Close()

		go func(topic string, consumer *kafkax.Consumer) {
			if err := consumer.Run(ctx); err != nil {
				slog.Error("consumer stopped", "topic", topic, "error", err)
				stop()
			}
		}(topic, consumer)
		slog.Info("consuming topic", "topic", topic, "group_id", cfg.GroupID)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           httpx.NewRouter(httpx.NewHandler(ledger)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("payment service running",
		"http_addr", srv.Addr,
		"db_path", cfg.DBPath,
		"brokers", cfg.KafkaBrokers,
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server failed", "error", err)
		os.Exit(1)
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Warn("invalid duration, using default", "key", key, "value", value, "default", fallback)
	}
	return fallback
}

func parseCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
