package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/calltrail/calltrail/internal/api"
	"github.com/calltrail/calltrail/internal/audit"
	"github.com/calltrail/calltrail/internal/config"
	"github.com/calltrail/calltrail/internal/database"
	"github.com/calltrail/calltrail/internal/metrics"
	"github.com/calltrail/calltrail/internal/outbound"
	"github.com/calltrail/calltrail/internal/retention"
	"github.com/calltrail/calltrail/internal/storage"
	"github.com/calltrail/calltrail/internal/webhook"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging.
	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	slog.Info("starting calltrail",
		"http_port", cfg.HTTPPort,
		"data_dir", cfg.DataDir,
		"require_signature", cfg.RequireSignature,
	)

	// Open database and run migrations.
	db, err := database.Open(cfg.DataDir)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Application context for background goroutines.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// Repositories over the shared database.
	orgs := database.NewOrgRepository(db)
	calls := database.NewCallLogRepository(db)
	events := database.NewCallEventRepository(db)
	recordings := database.NewRecordingRepository(db)
	outEvents := database.NewOutboundEventRepository(db)
	attempts := database.NewDeliveryAttemptRepository(db)
	holds := database.NewLegalHoldRepository(db)
	transcripts := database.NewTranscriptRepository(db)

	// Audit sink: the external PostgreSQL archive when configured,
	// otherwise the local audit_log table.
	var auditSink audit.Sink
	if cfg.AuditDSN != "" {
		pgSink, err := audit.NewPGSink(cfg.AuditDSN, logger)
		if err != nil {
			slog.Error("failed to open audit archive", "error", err)
			os.Exit(1)
		}
		defer pgSink.Close()
		auditSink = pgSink
	} else {
		auditSink = audit.NewSQLiteSink(db, logger)
	}

	// Webhook signature verification.
	pubKey, err := cfg.WebhookPublicKeyBytes()
	if err != nil {
		slog.Error("failed to decode webhook public key", "error", err)
		os.Exit(1)
	}
	verifier := webhook.NewVerifier(pubKey)
	if !cfg.RequireSignature {
		slog.Warn("webhook signature verification disabled")
	}

	// Optional redis duplicate-delivery cache.
	var dedup webhook.DedupCache
	if cfg.RedisAddr != "" {
		cache := webhook.NewRedisDedupCache(cfg.RedisAddr, logger)
		defer cache.Close()
		dedup = cache
		slog.Info("dedup cache enabled", "redis_addr", cfg.RedisAddr)
	}

	resolver := retention.StaticResolver{
		BillingDays:     cfg.RetentionBillingDays,
		OperationalDays: cfg.RetentionOperationalDays,
	}

	processor := webhook.NewProcessor(verifier, cfg.RequireSignature,
		orgs, calls, events, recordings, resolver, auditSink, dedup, logger)

	// Retention pruning for expired recordings.
	retention.StartCleanupTicker(appCtx, recordings, holds, auditSink, time.Hour)

	// Outbound dispatch through the messaging provider.
	sender := outbound.NewProviderClient(outbound.ProviderConfig{
		BaseURL: cfg.ProviderBaseURL,
		APIKey:  cfg.ProviderAPIKey,
	})
	dispatcher := outbound.NewDispatcher(outEvents, attempts, sender, auditSink, logger)

	// Recording media store.
	store, err := storage.NewFSBackend(filepath.Join(cfg.DataDir, "recordings"))
	if err != nil {
		slog.Error("failed to open recording store", "error", err)
		os.Exit(1)
	}

	operatorSecret, err := cfg.OperatorSecretBytes()
	if err != nil {
		slog.Error("failed to load operator secret", "error", err)
		os.Exit(1)
	}

	// Prometheus registry with the scrape-time collector.
	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics.NewCollector(calls, events, outEvents, processor, time.Now()))

	apiServer := api.NewServer(cfg, api.ServerDeps{
		DB:             db,
		Orgs:           orgs,
		Calls:          calls,
		Events:         events,
		Recordings:     recordings,
		OutEvents:      outEvents,
		Attempts:       attempts,
		Holds:          holds,
		Transcripts:    transcripts,
		Processor:      processor,
		Dispatcher:     dispatcher,
		Store:          store,
		AuditSink:      auditSink,
		OperatorSecret: operatorSecret,
	})
	defer apiServer.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/", apiServer)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	// Graceful shutdown with timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down server")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("calltrail stopped")
}
