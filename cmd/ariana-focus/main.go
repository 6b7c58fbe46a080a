// Package main runs the focus daemon: it follows the newest vault under the
// configured roots, keeps its event stream open and exposes metrics, health
// and an optional NATS republish of every batch.
package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iammusetouch/ariana/config"
	"github.com/iammusetouch/ariana/errors"
	"github.com/iammusetouch/ariana/focus"
	"github.com/iammusetouch/ariana/health"
	"github.com/iammusetouch/ariana/metric"
	"github.com/iammusetouch/ariana/publish"
	"github.com/iammusetouch/ariana/vault"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "ariana-focus"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cliCfg, err := parseFlags(args, stderr)
	if err != nil {
		if stderrors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("invalid flags: %w", err)
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		return nil
	}

	logger := setupLogger(stdout, cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return err
	}
	if cliCfg.Validate {
		logger.Info("Configuration is valid", "config_path", cliCfg.ConfigPath)
		return nil
	}

	logger.Info("Starting focus daemon",
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath,
		"endpoint", cfg.Endpoint,
		"roots", cfg.Roots)

	return serve(ctx, cfg, logger, cliCfg.ShutdownTimeout)
}

func loadConfig(cliCfg *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	if cliCfg.ConfigPath != "" {
		loader.AddLayer(cliCfg.ConfigPath)
	}
	// Flags are applied after the environment, so validate once at the end.
	loader.EnableValidation(false)

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cliCfg.Endpoint != "" {
		cfg.Endpoint = cliCfg.Endpoint
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// serve runs the focus manager, the metrics server and the NATS publisher
// until ctx is done or one of them fails.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, shutdownTimeout time.Duration) error {
	registry := metric.NewMetricsRegistry()

	manager, err := focus.NewManager(cfg.FocusConfig(),
		vault.DirRoots(cfg.Roots),
		vault.NewResolver(logger),
		focus.WithLogger(logger),
		focus.WithMetrics(registry),
	)
	if err != nil {
		return errors.WrapFatal(err, "main", "serve", "create focus manager")
	}

	var pub *publish.Publisher
	if cfg.NATS.URL != "" {
		pub, err = publish.Connect(ctx, cfg.PublishConfig(), logger)
		if err != nil {
			return errors.WrapFatal(err, "main", "serve", "connect publisher")
		}
		defer func() {
			if err := pub.Close(); err != nil {
				logger.Warn("Closing publisher failed", "error", err)
			}
		}()
		pub.Attach(manager)
		logger.Info("Republishing batches to NATS", "url", cfg.NATS.URL, "focus_subject", pub.FocusSubject())
	}

	manager.OnFocusChange(func(src *focus.Source) {
		logger.Info("Focus changed",
			"vault", src.ID(),
			"retry", src.Retry(),
			"connected", src.Connected())
	})

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Port > 0 {
		srv := metric.NewServer(":"+strconv.Itoa(cfg.Metrics.Port), cfg.Metrics.Path, registry,
			func() (bool, any) {
				report := healthReport(manager, pub)
				return report.Serving(), report
			})
		g.Go(func() error {
			logger.Info("Metrics server listening", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			return srv.Run(gctx)
		})
	}

	g.Go(func() error {
		if err := manager.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()

		stopped := make(chan struct{})
		go func() {
			manager.Stop()
			close(stopped)
		}()
		select {
		case <-stopped:
			return nil
		case <-time.After(shutdownTimeout):
			return errors.WrapTransient(
				fmt.Errorf("shutdown timeout after %v", shutdownTimeout),
				"main", "serve", "stop focus manager")
		}
	})

	err = g.Wait()
	logger.Info("Focus daemon stopped")
	if err != nil && !stderrors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func healthReport(manager *focus.Manager, pub *publish.Publisher) health.Status {
	parts := []health.Status{manager.HealthStatus()}
	if pub != nil {
		parts = append(parts, pub.HealthStatus())
	}
	return health.Aggregate(appName, parts)
}
