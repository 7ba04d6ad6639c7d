package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/veranda-social/pushgate/internal/config"
	"github.com/veranda-social/pushgate/internal/logger"
)

// Set at build time via -ldflags.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	config.SetVersion(version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		sig := <-signals
		logger.Info("termination signal received, shutting down",
			zap.String("signal", sig.String()))
		cancel()
	}()

	Execute(ctx)
	logger.Shutdown()
}
