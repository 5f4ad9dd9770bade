package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/recordshop/internal/config"
	"github.com/mamadbah2/recordshop/internal/repository/cache"
	"github.com/mamadbah2/recordshop/internal/repository/kafka"
	"github.com/mamadbah2/recordshop/internal/repository/mongodb"
	"github.com/mamadbah2/recordshop/internal/repository/sheets"
	"github.com/mamadbah2/recordshop/internal/scheduler"
	"github.com/mamadbah2/recordshop/internal/server/handlers"
	"github.com/mamadbah2/recordshop/internal/server/router"
	eventsvc "github.com/mamadbah2/recordshop/internal/service/events"
	ordersvc "github.com/mamadbah2/recordshop/internal/service/orders"
	recordsvc "github.com/mamadbah2/recordshop/internal/service/records"
	reportingsvc "github.com/mamadbah2/recordshop/internal/service/reporting"
	"github.com/mamadbah2/recordshop/pkg/clients/musicbrainz"
	"github.com/mamadbah2/recordshop/pkg/logger"
	"github.com/mamadbah2/recordshop/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Telemetry.ServiceName))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	shutdownTracing, err := telemetry.Setup(startupCtx, cfg.Telemetry)
	if err != nil {
		baseLogger.Fatal("failed to init tracing", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			baseLogger.Error("failed to flush traces", zap.Error(err))
		}
	}()

	mongoRepo, err := mongodb.NewMongoDBRepository(startupCtx, cfg.MongoDB.URI, cfg.MongoDB.DBName)
	if err != nil {
		baseLogger.Fatal("failed to init mongodb repository", zap.Error(err))
	}
	defer func() {
		if err := mongoRepo.Close(context.Background()); err != nil {
			baseLogger.Error("failed to close mongodb connection", zap.Error(err))
		}
	}()
	if err := mongoRepo.EnsureIndexes(startupCtx); err != nil {
		baseLogger.Fatal("failed to ensure mongodb indexes", zap.Error(err))
	}

	var appCache cache.Cache
	redisClient, err := cache.NewRedisClient(startupCtx, cfg.Redis)
	if err != nil {
		baseLogger.Warn("redis unavailable, caching disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	} else {
		defer func() { _ = redisClient.Close() }()
		appCache = cache.NewRedisCache(redisClient)
	}

	mbClient := musicbrainz.NewClient(cfg.MusicBrainz)
	releases := recordsvc.NewCachedReleases(mbClient, appCache, cfg.MusicBrainz.CacheTTL, baseLogger.Named("svc.releases"))
	recordService := recordsvc.NewService(mongoRepo, releases, appCache, cfg.Redis.RecordsCacheTTL, baseLogger.Named("svc.records"))
	orderService := ordersvc.NewService(mongoRepo, mongoRepo, mongoRepo, mongoRepo, cfg.Orders, baseLogger.Named("svc.orders"))

	var relay scheduler.OutboxFlusher
	if len(cfg.Kafka.Brokers) > 0 {
		writer := kafka.NewWriter(cfg.Kafka.Brokers)
		defer func() {
			if err := writer.Close(); err != nil {
				baseLogger.Error("failed to close kafka writer", zap.Error(err))
			}
		}()
		relay = eventsvc.NewRelay(mongoRepo, writer, cfg.Kafka.OrdersTopic, baseLogger.Named("svc.events"))
		baseLogger.Info("order event relay enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.OrdersTopic))
	} else {
		baseLogger.Warn("kafka brokers missing, order events stay in the outbox")
	}

	var exporter scheduler.SalesExporter
	if cfg.Sheets.Enabled() {
		sheetsRepo, err := sheets.NewGoogleSheetRepository(startupCtx, cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
		exporter = reportingsvc.NewService(mongoRepo, mongoRepo, sheetsRepo, baseLogger.Named("svc.reporting"))
	} else {
		baseLogger.Warn("google sheets credentials missing, sales export disabled")
	}

	sched, err := scheduler.NewScheduler(*cfg, relay, exporter, baseLogger.Named("scheduler"))
	if err != nil {
		baseLogger.Fatal("failed to init scheduler", zap.Error(err))
	}
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	engine := router.New(router.Handlers{
		Orders:  handlers.NewOrdersHandler(orderService, baseLogger.Named("handlers.orders")),
		Records: handlers.NewRecordsHandler(recordService, baseLogger.Named("handlers.records")),
		Health:  handlers.NewHealthHandler(mongoRepo, baseLogger.Named("handlers.health")),
	}, baseLogger.Named("router"))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
