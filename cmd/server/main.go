package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"graphql-admin/internal/config"
	"graphql-admin/internal/logging"
	"graphql-admin/internal/serverapp"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	pflag.Bool("version", false, "Print version and exit")
	pflag.Bool("check-config", false, "Validate the configuration and exit")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if showVersion, _ := pflag.CommandLine.GetBool("version"); showVersion {
		fmt.Printf("graphql-admin %s (%s)\n", Version, Commit)
		return nil
	}

	if cfg.Observability.ServiceVersion == "" {
		cfg.Observability.ServiceVersion = Version
	}

	if err := reportValidation(slog.Default(), cfg.Validate()); err != nil {
		return err
	}
	if checkOnly, _ := pflag.CommandLine.GetBool("check-config"); checkOnly {
		fmt.Println("configuration is valid")
		return nil
	}

	logger, loggerProvider, err := serverapp.InitLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	app, err := serverapp.New(cfg, logger)
	if err != nil {
		if loggerProvider != nil {
			_ = loggerProvider.Shutdown(context.Background(), logger.Logger)
		}
		return err
	}
	app.AttachLoggerProvider(loggerProvider)

	return serve(app, cfg, logger)
}

// serve runs the app until SIGINT/SIGTERM or a server failure, then shuts it down
// within the configured timeout.
func serve(app *serverapp.App, cfg *config.Config, logger *logging.Logger) error {
	shutdown := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return app.Shutdown(ctx)
	}

	if err := app.Init(context.Background()); err != nil {
		return err
	}
	serverErrors, err := app.Start()
	if err != nil {
		return errors.Join(err, shutdown())
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	reason, waitErr := app.WaitForStop(stop, serverErrors)
	logger.Info("shutting down", slog.String("reason", reason))
	if err := errors.Join(waitErr, shutdown()); err != nil {
		return err
	}

	logger.Info("server stopped")
	return nil
}

// reportValidation logs every warning and error and fails when any error was found.
func reportValidation(logger *slog.Logger, result *config.ValidationResult) error {
	for _, warn := range result.Warnings {
		logger.Warn("configuration warning",
			slog.String("field", warn.Field),
			slog.String("message", warn.Message),
			slog.String("hint", warn.Hint),
		)
	}
	if !result.HasErrors() {
		return nil
	}
	for _, err := range result.Errors {
		logger.Error("configuration error",
			slog.String("field", err.Field),
			slog.String("message", err.Message),
			slog.String("hint", err.Hint),
		)
	}
	return fmt.Errorf("configuration validation failed: %s", result.Error())
}
