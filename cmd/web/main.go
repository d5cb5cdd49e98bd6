package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"rfm-dashboard/internal/config"
	"rfm-dashboard/internal/handlers"
	"rfm-dashboard/internal/ingest"
	"rfm-dashboard/internal/kafka"
	"rfm-dashboard/internal/middleware"
	"rfm-dashboard/internal/observability"
	"rfm-dashboard/internal/server"
	"rfm-dashboard/internal/services"
	"rfm-dashboard/internal/source"
)

const connectTimeout = 10 * time.Second

func newAnalyzer(cfg *config.Config, logger *slog.Logger, publisher services.Publisher) *services.Analyzer {
	return services.NewAnalyzer(logger, services.Options{
		Ingest:         ingest.Options{MaxRows: cfg.Upload.MaxRows},
		TTL:            cfg.Session.TTL,
		MaxSessions:    cfg.Session.MaxSessions,
		Publisher:      publisher,
		PublishTimeout: cfg.Kafka.PublishTimeout,
	})
}

// newHandler wires routes and the middleware chain. loader may be nil.
func newHandler(cfg *config.Config, logger *slog.Logger, analyzer *services.Analyzer, loader handlers.TableLoader) http.Handler {
	srv := server.NewServer(analyzer, logger, server.Options{
		Loader:    loader,
		MaxUpload: cfg.Upload.MaxBytes,
	})

	rateLimiter := middleware.NewRateLimiter(cfg.Security)

	middlewareChain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Tracing(logger),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Security),
		middleware.TrustedProxy(cfg.Security),
		middleware.RateLimit(rateLimiter, logger),
		middleware.Compression(cfg.Security.EnableCompression, logger),
		middleware.MaxBodyBytes(cfg.Upload.MaxBytes),
	)

	return middlewareChain(srv)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"version", "1.0.0",
		"addr", cfg.Address(),
		"source_enabled", cfg.Source.Enabled(),
		"kafka_enabled", cfg.Kafka.Enabled(),
	)

	var (
		publisher services.Publisher
		producer  *kafka.Producer
	)
	if cfg.Kafka.Enabled() {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		publisher = producer
		logger.Info("publishing results to kafka", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	var (
		loader handlers.TableLoader
		pg     *source.PostgresLoader
	)
	if cfg.Source.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		pool, err := source.Connect(ctx, cfg.Source.PostgresDSN)
		cancel()
		if err != nil {
			logger.Error("failed to connect to transaction database", "error", err)
			os.Exit(1)
		}
		pg = source.NewPostgresLoader(pool, source.OptionsFromConfig(cfg.Source, cfg.Upload.MaxRows))
		loader = pg
		logger.Info("transaction table configured", "source", pg.Name())
	}

	analyzer := newAnalyzer(cfg, logger, publisher)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      newHandler(cfg, logger, analyzer, loader),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg)

	if producer != nil {
		gracefulServer.RegisterShutdownHook("kafka producer", func(ctx context.Context) error {
			return producer.Close()
		})
	}
	if pg != nil {
		gracefulServer.RegisterShutdownHook("postgres pool", func(ctx context.Context) error {
			pg.Close()
			return nil
		})
	}

	logger.Info("starting graceful server")
	if err := gracefulServer.ListenAndServe(context.Background()); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("application stopped gracefully")
}
