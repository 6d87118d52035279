// Command authd serves the authcore HTTP API.
//
// Configuration comes from the YAML file named by -config (optional) and the
// environment; JWT_ACCESS_SECRET and JWT_REFRESH_SECRET are required.
//
//	JWT_ACCESS_SECRET=... JWT_REFRESH_SECRET=... REDIS_DRIVER=miniredis go run ./cmd/authd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/zuzu-app/authcore"
	"github.com/zuzu-app/authcore/accountstore"
	"github.com/zuzu-app/authcore/httpapi"
	"github.com/zuzu-app/authcore/internal/config"
	"github.com/zuzu-app/authcore/mail"
	"github.com/zuzu-app/authcore/metrics/export/otel"
	"github.com/zuzu-app/authcore/metrics/export/prometheus"
	otelglobal "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/zuzu-app/authcore"

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "path to the YAML config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)
	logger := setupLogger(cfg.Env)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("authd stopped", "error", err)
		os.Exit(1)
	}
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case config.EnvLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case config.EnvDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}
	return log
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, closeRedis, err := openRedis(cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	store, closeStore, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	mailer, err := openMailer(cfg.Mail, logger)
	if err != nil {
		return err
	}

	engine, err := authcore.New().
		WithConfig(cfg.EngineConfig()).
		WithRedis(rdb).
		WithAccountStore(store).
		WithMailer(mailer).
		WithLogger(logger).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = prometheus.New(engine).Handler()
		if cfg.Metrics.OTel {
			provider, err := openMeterProvider(cfg.Metrics, os.Stdout)
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTPServer.ShutdownTimeout)
				defer cancel()
				if err := provider.Shutdown(ctx); err != nil {
					logger.Error("otel shutdown", "error", err)
				}
			}()
			exp, err := otel.New(provider.Meter(meterName), engine)
			if err != nil {
				return fmt.Errorf("otel exporter: %w", err)
			}
			defer exp.Close()
		}
	}

	router := httpapi.NewRouter(engine, httpapi.Options{
		Logger:        logger,
		SecureCookies: cfg.Env == config.EnvProd,
		TrustProxy:    cfg.HTTPServer.TrustProxy,
		Redis:         rdb,
		RateLimits:    httpapi.DefaultRateLimits(),
		Metrics:       metricsHandler,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("authd listening", "address", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPServer.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if err := engine.Shutdown(shutdownCtx); err != nil {
		logger.Error("audit drain", "error", err, "dropped", engine.AuditDropped())
	}
	return nil
}

// openMeterProvider builds the SDK provider behind the OTel exporter. A
// periodic reader pushes JSON-encoded metrics to w every cfg.OTelInterval.
func openMeterProvider(cfg config.Metrics, w io.Writer) (*sdkmetric.MeterProvider, error) {
	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("otel stdout exporter: %w", err)
	}
	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTelInterval))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otelglobal.SetMeterProvider(provider)
	return provider, nil
}

func openRedis(cfg config.Redis, logger *slog.Logger) (redis.UniversalClient, func(), error) {
	switch cfg.Driver {
	case "miniredis":
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		logger.Warn("using in-process miniredis; state is lost on restart", "addr", mr.Addr())
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		return rdb, func() {
			_ = rdb.Close()
			mr.Close()
		}, nil
	default:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		return rdb, func() { _ = rdb.Close() }, nil
	}
}

func openStore(ctx context.Context, cfg config.Database, logger *slog.Logger) (authcore.AccountStore, func(), error) {
	switch cfg.Driver {
	case "sqlite":
		s, err := accountstore.Open(ctx, accountstore.DriverSQLite, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "postgres":
		s, err := accountstore.Open(ctx, accountstore.DriverPostgres, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		logger.Warn("using in-memory account store; accounts are lost on restart")
		return accountstore.NewMemory(nil), func() {}, nil
	}
}

func openMailer(cfg config.Mail, logger *slog.Logger) (authcore.Mailer, error) {
	if cfg.Driver == "smtp" {
		return mail.NewSMTPMailer(mail.SMTPConfig{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Username: cfg.Username,
			Password: cfg.Password,
			From:     cfg.From,
		})
	}
	return mail.NewLogMailer(logger, 0), nil
}
