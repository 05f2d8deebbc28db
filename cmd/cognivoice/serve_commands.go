package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"cognivoice/internal/config"
	"cognivoice/internal/gateway"
	"cognivoice/internal/logging"
	"cognivoice/internal/pipeline"
	"cognivoice/internal/progress"
	"cognivoice/internal/results"
	"cognivoice/internal/webhook"
	"cognivoice/internal/worker"
)

func newServeCommand(cmdCtx *commandContext) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a cognivoice service",
	}

	serveCmd.AddCommand(newServeWorkerCommand(cmdCtx))
	serveCmd.AddCommand(newServeGatewayCommand(cmdCtx))

	return serveCmd
}

func newServeWorkerCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the analysis worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			return runWorker(cfg)
		},
	}
}

func newServeGatewayCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the client-facing gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			return runGateway(cfg)
		},
	}
}

// acquireLock guards against a second instance of the same service sharing
// scratch or data directories.
func acquireLock(cfg *config.Config, name string) (*flock.Flock, error) {
	lock := flock.New(filepath.Join(cfg.Paths.LogDir, name+".lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("another cognivoice %s instance is already running", name)
	}
	return lock, nil
}

func runWorker(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	lock, err := acquireLock(cfg, "worker")
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	bus := progress.NewBus(time.Duration(cfg.Progress.HeartbeatInterval)*time.Second, logger)
	go bus.Run(ctx)

	pipe, err := pipeline.NewFromConfig(cfg, logger)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	notifier := webhook.NewNotifier(cfg)

	orchestrator, err := worker.NewOrchestrator(cfg, bus, pipe, notifier, logger)
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}

	server, err := worker.NewServer(cfg, orchestrator, bus, logger)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("worker shutting down", slog.String(logging.FieldComponent, "worker"))
	server.Stop()
	orchestrator.Wait()
	return nil
}

func runGateway(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	lock, err := acquireLock(cfg, "gateway")
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	store, err := results.Open(cfg)
	if err != nil {
		return fmt.Errorf("open results store: %w", err)
	}
	defer store.Close()

	bus := progress.NewBus(time.Duration(cfg.Progress.HeartbeatInterval)*time.Second, logger)
	go bus.Run(ctx)

	server, err := gateway.NewServer(cfg, bus, store, logger)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("gateway shutting down", slog.String(logging.FieldComponent, "gateway"))
	server.Stop()
	return nil
}
