package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"stemd/internal/api"
	"stemd/internal/config"
	"stemd/internal/daemon"
	"stemd/internal/download"
	"stemd/internal/logging"
	"stemd/internal/pipeline"
	"stemd/internal/queue"
	"stemd/internal/separation"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := queue.Open(ctx, cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return
	}

	separator := separation.NewCLI(
		separation.WithBinary(cfg.Separation.Binary),
		separation.WithGPU(cfg.Separation.GPUEnabled),
	)
	downloader := download.NewCLI(
		download.WithBinary(cfg.Download.Binary),
		download.WithFormat(cfg.Download.Format),
	)
	catalog := separation.NewCatalog(config.KnownModels())

	orchestrator := pipeline.New(cfg, store, separator, downloader, catalog, logger)
	service := api.NewService(cfg, store, downloader, catalog, logger)

	d, err := daemon.New(cfg, store, service, orchestrator, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("stemd shutting down")
}
