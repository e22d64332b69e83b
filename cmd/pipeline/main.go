package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"syscall"
	"time"

	"os/signal"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	_ "github.com/lib/pq" // postgres driver

	"github.com/trafficlens/trafficlens/internal/adapter/logsource"
	"github.com/trafficlens/trafficlens/internal/adapter/metrics"
	"github.com/trafficlens/trafficlens/internal/adapter/pii"
	"github.com/trafficlens/trafficlens/internal/adapter/repository/postgres"
	redisrepo "github.com/trafficlens/trafficlens/internal/adapter/repository/redis"
	"github.com/trafficlens/trafficlens/internal/classify"
	"github.com/trafficlens/trafficlens/internal/denylist"
	"github.com/trafficlens/trafficlens/internal/domain"
	"github.com/trafficlens/trafficlens/internal/enrich"
	"github.com/trafficlens/trafficlens/internal/pkg/config"
	"github.com/trafficlens/trafficlens/internal/pkg/logger"
	signalx "github.com/trafficlens/trafficlens/internal/signal"
	"github.com/trafficlens/trafficlens/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)
	log.Info("starting ingestion pipeline")

	m := metrics.NewPipelineMetrics()

	// --- Admin & metrics server ---
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	adminServer := &http.Server{Addr: cfg.MetricsAddr, Handler: adminMux}
	go func() {
		log.Info("starting admin & metrics server", "addr", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("admin & metrics server failed", "error", err)
		}
	}()

	// --- Graceful shutdown context ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- PostgreSQL (required) ---
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		log.Error("failed to open postgres connection", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	log.Info("connected to postgres")

	// --- Enrichment datasets (degrade to null lookups when missing) ---
	geo, err := enrich.OpenGeoResolver(cfg.GeoCityDBPath)
	if err != nil {
		log.Warn("geo dataset unavailable, geo enrichment disabled", "path", cfg.GeoCityDBPath, "error", err)
		geo = &enrich.GeoResolver{}
	}
	defer geo.Close()

	netOrigin, err := enrich.OpenNetOriginResolver(cfg.GeoASNDBPath, enrich.DefaultProviderTable())
	if err != nil {
		log.Warn("ASN dataset unavailable, network-origin enrichment disabled", "path", cfg.GeoASNDBPath, "error", err)
		netOrigin = &enrich.NetOriginResolver{}
	}
	defer netOrigin.Close()

	// --- Redis: reputation denylist + run lock (optional) ---
	var (
		deny *denylist.Cache
		lock domain.RunLock = domain.NopRunLock{}
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("could not connect to redis, running without denylist and run lock", "error", err)
		} else {
			log.Info("connected to redis")
			reputation := redisrepo.NewReputationRepository(redisClient, cfg.DenylistSetKey, log)
			deny = denylist.New(reputation, cfg.DenylistTTL, log)
			lock = redisrepo.NewRunLock(redisClient, cfg.RunLockKey, cfg.RunLockTTL, log)
		}
	}

	ingestRun := usecase.NewIngestRunUseCase(usecase.IngestRunParams{
		Source:    logsource.NewFileSource(cfg.AccessLogGlob, log),
		Store:     postgres.NewEventRepository(db, log),
		Lock:      lock,
		Denylist:  deny,
		Geo:       geo,
		NetOrigin: netOrigin,
		Signals:   signalx.NewExtractor(cfg.WebshellTokens),
		Engine:    classify.New(classify.Config{WebshellTokens: cfg.WebshellTokens}),
		Redactor:  pii.NewRedactor(cfg.RedactHeaders),
		Filters: usecase.FilterRules{
			OperatorAddresses: cfg.OperatorAddresses,
			ExcludedSites:     cfg.ExcludedSites,
			NoisePatterns:     cfg.NoisePatterns,
		},
		Metrics:          m,
		Logger:           log,
		BatchSize:        cfg.BatchSize,
		FirstRunLookback: cfg.FirstRunLookback,
	})

	// Run once at startup, then on the interval.
	runOnce(ctx, log, ingestRun)

	ticker := time.NewTicker(cfg.RunInterval)
	defer ticker.Stop()

	log.Info("pipeline started", "interval", cfg.RunInterval)

Loop:
	for {
		select {
		case <-ticker.C:
			runOnce(ctx, log, ingestRun)
		case <-ctx.Done():
			log.Info("context cancelled, shutting down pipeline")
			break Loop
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = adminServer.Shutdown(shutdownCtx)

	log.Info("pipeline shut down gracefully")
}

func runOnce(ctx context.Context, log *slog.Logger, ingestRun *usecase.IngestRunUseCase) {
	if ctx.Err() != nil {
		return
	}
	if _, err := ingestRun.Run(ctx); err != nil {
		// The run left the cursor untouched; the next tick retries the
		// same window.
		log.Error("ingestion run failed", "error", err)
	}
}
