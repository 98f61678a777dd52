package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"tickerpipe/internal/config"
	"tickerpipe/internal/infra"
	"tickerpipe/internal/orchestrator"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", infra.ResolveConfigPath(), "path to configuration file")
	product := flag.String("product", "", "override the configured product id (e.g. BTC-USD)")
	output := flag.String("output", "", "override the configured CSV output path")
	wsURL := flag.String("ws-url", "", "override the configured WebSocket feed URL")
	flag.Parse()

	level := slog.LevelInfo
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		return 1
	}
	cfg = config.ApplyFlags(cfg, *product, *output, *wsURL)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		return 1
	}

	if lvl, ok := parseLevel(cfg.Logging.Level); ok {
		log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
		slog.SetDefault(log)
	}

	workspaceDir := infra.GetWorkspaceDir()
	if err := infra.EnsureDir(workspaceDir); err != nil {
		log.Error("failed to create workspace directory", "path", workspaceDir, "error", err)
		return 1
	}

	unlock, err := infra.CreateLockFile(workspaceDir)
	if err != nil {
		log.Error("failed to acquire single-instance lock", "error", err)
		return 1
	}
	defer unlock()

	infra.PrintBanner(cfg.Product, cfg.Output, cfg.EMAInterval())

	pipeline, err := orchestrator.New(cfg, log)
	if err != nil {
		log.Error("pipeline failed to initialize", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := pipeline.Start(ctx); err != nil {
		log.Error("pipeline failed to start", "error", err)
		return 1
	}

	log.Info("tickerpipe running", "product", cfg.Product, "output", cfg.Output)

	runErr := pipeline.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	pipeline.Shutdown(shutdownCtx)

	if runErr != nil {
		log.Error("transport session ended", "error", runErr)
		return 1
	}

	log.Info("tickerpipe shut down cleanly")
	return 0
}

func parseLevel(s string) (slog.Level, bool) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, false
	}
	return lvl, true
}
