package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mgaillard/solbatch/internal/config"
	"github.com/mgaillard/solbatch/internal/jobs"
	"github.com/mgaillard/solbatch/internal/jobs/poll"
	"github.com/mgaillard/solbatch/internal/ledger"
	"github.com/mgaillard/solbatch/internal/logging"
	"github.com/mgaillard/solbatch/internal/metrics"
	"github.com/mgaillard/solbatch/internal/ops"
	"github.com/mgaillard/solbatch/internal/server"
	"github.com/mgaillard/solbatch/internal/version"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file (default: ./config.yaml or /app/config.yaml)")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		info := version.Get()
		fmt.Printf("solbatch %s\n", info.Version)
		fmt.Printf("  Commit:     %s\n", info.Commit)
		fmt.Printf("  Built:      %s\n", info.BuildDate)
		fmt.Printf("  Go version: %s\n", info.GoVersion)
		fmt.Printf("  OS/Arch:    %s\n", info.Platform)
		os.Exit(0)
	}

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logging - env vars override config
	logLevel := cfg.General.LogLevel
	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		logLevel = envLevel
	}
	logFormat := "json" // default to JSON for k8s/production
	if envFormat := os.Getenv("LOG_FORMAT"); envFormat != "" {
		logFormat = envFormat
	}
	logger := logging.Setup(logLevel, logFormat)
	info := version.Get()
	logger.Info("starting solbatch",
		"version", info.Version,
		"commit", info.Commit,
		"built", info.BuildDate,
		"rpc_url", cfg.Ledger.RPCURL,
	)

	// Metrics registry, shared by collectors and the /metrics endpoint
	promRegistry := prometheus.NewRegistry()
	collector := metrics.NewCollector(promRegistry)

	// Ledger client
	ledgerClient := ledger.NewClient(ledger.ClientConfig{
		RPCURL:              cfg.Ledger.RPCURL,
		RequestTimeout:      cfg.Ledger.RequestTimeout,
		ConfirmTimeout:      cfg.Ledger.ConfirmTimeout,
		ConfirmPollInterval: cfg.Ledger.ConfirmPollInterval,
		SkipTLS:             cfg.Ledger.SkipTLSVerify,
		Logger:              logger,
	})
	defer ledgerClient.Close()

	// Job registry, poller and strategies
	registry := jobs.NewRegistry(cfg.Jobs.MaxJobs, collector, logger)
	poller := poll.NewService(registry, logger)
	opsService := ops.NewService(ledgerClient, registry, cfg.Ops, collector, logger)

	srv := server.New(cfg.Server, cfg.Polling, registry, poller, opsService, promRegistry, logger)

	// Graceful shutdown on SIGINT/SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received")
		cancel()
	}()

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	// Let in-flight jobs finish their current chunk before exiting
	logger.Info("waiting for running jobs to finish")
	registry.Wait()
	logger.Info("shutdown complete")
}
