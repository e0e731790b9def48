package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/api"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/events"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/extract"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/ocr/tesseract"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/preview"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/query"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/database"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/resilience"
	"github.com/google/uuid"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	watch := flag.Bool("watch", false, "ingest files dropped into the corpus while serving")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting document service",
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
		"corpus", cfg.Corpus.Root,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *database.Client
	err = resilience.Retry(ctx, "store-connect", resilience.RetryConfig{MaxAttempts: 5, InitialDelay: time.Second}, func(ctx context.Context) error {
		var openErr error
		db, openErr = database.Open(ctx, cfg)
		return openErr
	})
	if err != nil {
		slog.Error("failed to connect to document store", "error", err)
		os.Exit(1)
	}
	st := store.New(db)
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		slog.Error("failed to migrate document store", "error", err)
		os.Exit(1)
	}
	slog.Info("document store ready", "driver", db.Dialect)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownMetrics(shutdownCtx)
		}()
	}

	checker := health.NewChecker()
	checker.Require("store", st.Ping)

	var queryCache *query.Cache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = query.NewCache(redisClient, cfg.Redis.CacheTTL, m)
			checker.Optional("redis", redisClient.Ping)
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	extractor := extract.New(tesseract.New(),
		extract.WithFailurePolicy(cfg.Ingest.OCRFailurePolicy),
		extract.WithMetrics(m),
	)
	opts := []ingest.Option{
		ingest.WithMetrics(m),
		ingest.WithExtensions(cfg.Corpus.Extensions...),
	}
	if queryCache != nil {
		opts = append(opts, ingest.WithNotifier(queryCache))
	}

	origin := instanceID()
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngested)
		defer producer.Close()
		opts = append(opts, ingest.WithNotifier(events.NewPublisher(producer, origin, m)))
		slog.Info("document events enabled", "topic", cfg.Kafka.Topics.DocumentIngested, "origin", origin)

		if queryCache != nil {
			consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngested, "cache-"+origin, events.InvalidateCache(queryCache, origin))
			go func() {
				if err := consumer.Start(ctx); err != nil {
					slog.Error("cache invalidation consumer stopped", "error", err)
				}
			}()
		}
	}
	coordinator := ingest.New(st, extractor, cfg.Ingest, opts...)

	if *watch {
		go func() {
			err := coordinator.Watch(ctx, cfg.Corpus.Root, func(res document.Result) {
				if res.Outcome == document.OutcomeFailed {
					slog.Warn("watched file failed", "category", res.Category, "filename", res.Filename, "error", res.Err)
				}
			})
			if err != nil {
				slog.Error("corpus watcher stopped", "error", err)
			}
		}()
	}

	engine := query.New(st, query.FSResolver{CorpusRoot: cfg.Corpus.Root, PreviewRoot: cfg.Corpus.PreviewRoot},
		query.WithCache(queryCache),
		query.WithTimeout(cfg.Search.Timeout),
		query.WithMetrics(m),
	)
	renderer := preview.NewRasterizer(preview.ExecRunner{}, cfg.Preview, cfg.Corpus.PreviewRoot, cfg.Ingest.Workers)
	h := api.New(coordinator, engine,
		query.FSResolver{CorpusRoot: cfg.Corpus.Root, PreviewRoot: cfg.Corpus.PreviewRoot},
		queryCache, renderer,
		api.Config{CorpusRoot: cfg.Corpus.Root, MaxUploadBytes: cfg.Ingest.MaxUploadBytes},
	)

	routerCfg := api.RouterConfig{Timeout: cfg.Server.WriteTimeout, CORSOrigins: cfg.Server.CORSOrigins}
	if cfg.Ingest.UploadsPerMinute > 0 {
		routerCfg.UploadLimiter = middleware.NewLimiter(cfg.Ingest.UploadsPerMinute, time.Minute)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(h, checker, m, routerCfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("document service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("document service stopped")
}

// instanceID names this process in published events.
func instanceID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}
