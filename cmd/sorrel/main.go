package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ramsey-B/sorrel/config"
	"github.com/Ramsey-B/sorrel/pkg/logging"
	"github.com/Ramsey-B/sorrel/pkg/startup"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, flush, err := logging.NewLogger(cfg.AppName, cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer flush()

	app := newApp(cfg, logger)

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	boot.AddDependency(app.tracingDependency())
	boot.AddDependency(app.databaseDependency())
	if cfg.RedisEnabled {
		boot.AddDependency(app.redisDependency())
	}
	if cfg.KafkaEnabled {
		boot.AddDependency(app.kafkaDependency())
	}
	boot.AddDependency(app.serverDependency())

	if err := boot.Start(ctx); err != nil {
		logger.WithError(err).Error("Startup failed")
		flush()
		os.Exit(1)
	}

	logger.WithField("port", cfg.Port).Infof("%s started on port %d", cfg.AppName, cfg.Port)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := boot.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown did not complete cleanly")
	}
}
