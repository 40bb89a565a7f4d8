package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"lagarb/internal/app"
	"lagarb/internal/domain"
	"lagarb/internal/infra"
)

const (
	exitOK        = 0
	exitBootstrap = 1
	exitRiskHalt  = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration")
	flag.Parse()

	// Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootstrap := app.NewBootstrap()
	defer bootstrap.Close()
	if err := bootstrap.Initialize(ctx, *configPath); err != nil {
		slog.Error("Bootstrapping failed", slog.Any("error", err))
		return exitBootstrap
	}

	orch, err := bootstrap.BuildEngine()
	if err != nil {
		slog.Error("Engine assembly failed", slog.Any("error", err))
		return exitBootstrap
	}

	ops := infra.NewOpsServer(bootstrap.Config.Ops.ListenAddr, bootstrap.Metrics, bootstrap.StatusFunc(orch))
	ops.Start(ctx)

	slog.InfoContext(ctx, "Engine operational. Press Ctrl+C to exit.")

	err = orch.Run(ctx)
	switch {
	case err == nil:
		slog.Info("Shutting down gracefully...")
		return exitOK
	case errors.Is(err, domain.ErrRiskHalt):
		slog.Error("Trading halted by risk manager", slog.Any("error", err))
		return exitRiskHalt
	default:
		slog.Error("Engine failed", slog.Any("error", err))
		return exitBootstrap
	}
}
