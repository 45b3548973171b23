// Fika scheduling server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"

	"github.com/makenakalei/fika-scheduling/internal/api"
	"github.com/makenakalei/fika-scheduling/internal/config"
	"github.com/makenakalei/fika-scheduling/internal/identity"
	"github.com/makenakalei/fika-scheduling/internal/metrics"
	"github.com/makenakalei/fika-scheduling/internal/middleware"
	"github.com/makenakalei/fika-scheduling/internal/policystore"
	"github.com/makenakalei/fika-scheduling/internal/rpc"
	"github.com/makenakalei/fika-scheduling/internal/scheduler"
	"github.com/makenakalei/fika-scheduling/internal/store"
	"github.com/makenakalei/fika-scheduling/internal/worker"
	"github.com/makenakalei/fika-scheduling/web"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	// Stored timestamps are local-naive; interpret them in the configured zone.
	time.Local = cfg.Location

	slog.Info("Starting server", "port", cfg.Port, "grpc_port", cfg.GRPCPort, "driver", cfg.DBDriver, "dev", cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	repo, err := store.Open(ctx, store.Options{Driver: cfg.DBDriver, Path: cfg.DBPath, DatabaseURL: cfg.DatabaseURL})
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	genOpts := []scheduler.GeneratorOption{
		scheduler.WithRecorder(collector),
		scheduler.WithLogger(logger),
	}
	if cfg.PolicyDir != "" {
		tables, err := policystore.New(cfg.PolicyDir)
		if err != nil {
			slog.Error("Failed to initialize policy store", "error", err)
			os.Exit(1)
		}
		genOpts = append(genOpts, scheduler.WithTableStore(tables))
		slog.Info("Policy persistence enabled", "dir", cfg.PolicyDir)
	}
	gen := scheduler.NewGenerator(repo, scheduler.GeneratorConfig{
		Workday:       cfg.Workday,
		ClearExisting: cfg.ClearBeforeGenerate,
	}, genOpts...)

	origins := []string{"*"}
	if cfg.FrontendURL != "" {
		origins = []string{cfg.FrontendURL}
	}

	handler := api.NewRouter(api.RouterConfig{
		Repo:            repo,
		Generator:       gen,
		GenerateTimeout: cfg.GenerateTimeout,
		AllowedOrigins:  origins,
		GenerateLimiter: middleware.NewRateLimiter(cfg.GenerateRatePerSec, cfg.GenerateBurst, identity.UserIDFromRequest),
		Metrics:         collector.Handler(),
		Frontend:        web.SPAHandler(),
		RequestLogging:  cfg.IsDevelopment(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.GenerateTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Optional gRPC endpoint.
	var grpcSrv *grpc.Server
	if cfg.GRPCPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			slog.Error("Failed to listen for gRPC", "port", cfg.GRPCPort, "error", err)
			os.Exit(1)
		}
		grpcSrv = rpc.NewGRPCServer(rpc.NewServer(gen, repo, cfg.GenerateTimeout, logger))
		go func() {
			slog.Info("gRPC server listening", "addr", lis.Addr().String())
			if err := grpcSrv.Serve(lis); err != nil {
				slog.Error("gRPC server failed", "error", err)
			}
		}()
	}

	// Optional regeneration sweep.
	if cfg.RegenerateCron != "" {
		sweeper := worker.NewSweeper(repo, gen, worker.Config{
			Spec:       cfg.RegenerateCron,
			Location:   cfg.Location,
			RunTimeout: cfg.GenerateTimeout,
		}, collector, logger)
		if err := sweeper.Start(ctx); err != nil {
			slog.Error("Failed to start regeneration sweep", "error", err)
			os.Exit(1)
		}
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
