package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	agenthub "github.com/stackmesh/agenthub"
	"github.com/stackmesh/agenthub/config"
	"github.com/stackmesh/agenthub/health"
	"github.com/stackmesh/agenthub/internal/metrics"
	"github.com/stackmesh/agenthub/internal/telemetry"
	"github.com/stackmesh/agenthub/router"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "serve":
		serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
		configPath := serveCmd.String("config", "", "path to the YAML config file")
		_ = serveCmd.Parse(os.Args[2:])
		if err := serve(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "version":
		fmt.Println("agenthub", version)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: agenthub <serve|version> [flags]")
}

func serve(configPath string) error {
	cfg, err := config.NewLoader().WithConfigPath(configPath).Load()
	if err != nil {
		return err
	}

	logger, err := buildLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(ctx); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	collector := metrics.NewCollector("agenthub", logger)
	backend := newBackendClient(cfg.Backend, logger)

	hub, err := agenthub.New(cfg, logger,
		agenthub.WithMetrics(collector),
		agenthub.WithTools(func(reg *router.Registry) error {
			return router.RegisterCommerce(reg, backend.handler)
		}),
		agenthub.WithProber(health.ProberFunc{
			GroupName: router.GroupCommerce,
			Fn:        backend.Probe,
		}, true),
		agenthub.WithProber(health.ProberFunc{
			GroupName: router.GroupPayments,
			Fn:        backend.Probe,
		}, true),
		agenthub.WithProber(health.ProberFunc{
			GroupName: router.GroupMarketing,
			Fn:        backend.Probe,
		}, false),
	)
	if err != nil {
		return err
	}

	server := NewServer(cfg, hub, collector, logger)
	if err := server.Start(); err != nil {
		return err
	}
	logger.Info("agenthub running",
		zap.String("version", version),
		zap.Int("http_port", cfg.Server.HTTPPort),
		zap.Int("metrics_port", cfg.Server.MetricsPort))
	server.WaitForShutdown()
	return nil
}

func buildLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	if len(cfg.OutputPaths) > 0 {
		zapCfg.OutputPaths = cfg.OutputPaths
	}
	return zapCfg.Build()
}
