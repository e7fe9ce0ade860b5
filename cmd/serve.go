package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"tunesync/internal/server"
)

// Serve starts the HTTP API and the schedule runner, blocking until the
// process receives an interrupt.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	stack, err := r.openStack(cmd.String("config"))
	if err != nil {
		return err
	}
	defer stack.Close()

	if err := stack.scheduler.RegisterAll(ctx); err != nil {
		return fmt.Errorf("failed to register schedules: %w", err)
	}
	stack.scheduler.Start()
	defer stack.scheduler.Stop()

	api := server.NewAPI(stack.store, stack.auth, stack.executor, stack.scheduler, r.logger)
	srv := server.NewServer(stack.config.Server, r.logger, api)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		r.logger.Info("shutting down", "signal", sig)
	case <-ctx.Done():
		r.logger.Info("shutting down", "reason", ctx.Err())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
