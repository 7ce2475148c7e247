// Package main is the entry point of the operations API.
//
// It serves /health, /info and the /v1/units routes used to inspect units
// and push failed ones back into the notifier queue. Graceful shutdown is
// handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"receiptnotifier/internal/api/handlers"
	"receiptnotifier/internal/config"
	"receiptnotifier/internal/core"
	"receiptnotifier/internal/db"
	notifcore "receiptnotifier/internal/notifications/core"
	"receiptnotifier/internal/types"
)

const shutdownTimeout = 10 * time.Second

type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	var provider config.SecretProvider
	if os.Getenv("APP_ENV") != "local" {
		provider = config.NewSSMProvider(os.Getenv("AWS_REGION")).WithEndpoint(os.Getenv("AWS_ENDPOINT_URL"))
	}
	cfg, err := config.LoadConfig(provider)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel).With("service", cfg.Service)
	logger.Info("operations API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	publisher := notifcore.NewRequeuePublisher(sqsClient, cfg.AWS.RetryQueue,
		notifcore.RequeueDelayPolicy, cfg.Notifier.CompressThreshold, &slogAdapter{logger: logger})

	srv, err := newServer(cfg, logger, pool, db.NewUnitRepository(pool), db.NewMessageRepository(pool), publisher)
	if err != nil {
		return err
	}
	return serve(srv, cfg, logger)
}

// newServer builds the router with the database probe and the unit routes.
func newServer(
	cfg *config.Config,
	logger *slog.Logger,
	pinger db.Pinger,
	units handlers.UnitRepo,
	messages handlers.MessageCounter,
	publisher handlers.UnitPublisher,
) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}
	srv.HealthProbes = append(srv.HealthProbes, db.NewHealthProbe(pinger))

	if cfg.Server.APIKeyHash.IsZero() {
		if cfg.Environment != "local" {
			return nil, fmt.Errorf("OPS_API_KEY_HASH is required outside local")
		}
		logger.Warn("OPS_API_KEY_HASH not set, /v1 routes are unauthenticated")
	}
	srv.APIKeyHash = []byte(cfg.Server.APIKeyHash.Unmask())

	unitsHandler := handlers.NewUnitsHandler(units, messages, publisher, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, unitsHandler.RegisterRoutes)

	srv.MountRoutes()
	return srv, nil
}

func serve(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("server stopped cleanly")
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

var _ types.Logger = (*slogAdapter)(nil)
