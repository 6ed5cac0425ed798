package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"pulsemetrics/internal/config"
	"pulsemetrics/internal/db"
	"pulsemetrics/internal/http/handlers"
	appmw "pulsemetrics/internal/http/middleware"
	"pulsemetrics/internal/http/respond"
	"pulsemetrics/internal/identity"
	"pulsemetrics/internal/ingest"
	"pulsemetrics/internal/logging"
	"pulsemetrics/internal/metrics"
	"pulsemetrics/internal/query"
	"pulsemetrics/internal/sysinfo"
	"pulsemetrics/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pulsemetrics: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, err := logging.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Options{
		Endpoint:    cfg.OTELEndpoint,
		Insecure:    cfg.OTELInsecure,
		ServiceName: cfg.OTELServiceName,
		Version:     cfg.ServiceVersion,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			log.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	gdb, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	retention := db.Retention{
		AI:          cfg.RetentionAIDays,
		Engagement:  cfg.RetentionEngagementDays,
		Sales:       cfg.RetentionSalesDays,
		Performance: cfg.RetentionPerformanceDays,
	}
	db.StartRetentionWorker(ctx, gdb, cfg.RetentionSweepInterval, log.Named("retention"))

	store := db.NewStore(gdb)
	registry := metrics.New()
	writer := respond.New(cfg.Production(), log)

	r := handlers.Routes(handlers.Deps{
		Ingest:    ingest.NewService(store, registry, retention, log.Named("ingest")),
		Query:     query.NewEngine(store, log.Named("query")),
		Metrics:   registry,
		System:    sysinfo.NewReader(),
		Store:     store,
		Verifier:  identity.NewClient(cfg.AuthServiceURL, cfg.AuthTimeout),
		Writer:    writer,
		AdminRole: cfg.AdminRole,
		Service:   cfg.ServiceName,
		Version:   cfg.ServiceVersion,
	})

	// Global middleware chain: request logger, tracing, panic recovery, then router
	handler := appmw.Chain(r.Handler,
		appmw.RequestLogger(log.Named("http")),
		appmw.Instrument(),
		appmw.Recover(writer),
	)

	srv := &fasthttp.Server{
		Handler:      handler,
		Name:         cfg.ServiceName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.ListenAddr))
		errCh <- srv.ListenAndServe(cfg.ListenAddr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.ShutdownWithContext(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
