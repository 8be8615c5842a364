// Package main is the entry point for the mesos-tracker binary.
// It wires all internal packages together and starts the connection loop.
//
// Startup sequence:
//  1. Parse CLI flags / environment variables
//  2. Build logger
//  3. Build entity store, subscriber registry, and metrics collector
//  4. Build the Tracker actor and the connection manager
//  5. Start the metrics and health servers
//  6. Run the connection manager and the Tracker actor concurrently
//  7. Block until SIGINT/SIGTERM, then graceful shutdown
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dcos-net/mesos-tracker/internal/connection"
	"github.com/dcos-net/mesos-tracker/internal/healthsrv"
	"github.com/dcos-net/mesos-tracker/internal/obsmetrics"
	"github.com/dcos-net/mesos-tracker/internal/resolver"
	"github.com/dcos-net/mesos-tracker/internal/state"
	"github.com/dcos-net/mesos-tracker/internal/subscriber"
	"github.com/dcos-net/mesos-tracker/internal/tracker"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type config struct {
	masterURL   string
	logLevel    string
	metricsAddr string
	healthAddr  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "mesos-tracker",
		Short: "mesos-tracker — cluster-state tracker for a Mesos master's Operator API",
		Long: `mesos-tracker subscribes to a Mesos master's Operator API event stream,
projects the raw event sequence into a normalized view of agents, frameworks
and tasks, and republishes task state changes to in-process subscribers.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&cfg.masterURL, "master-url", envOrDefault("TRACKER_MASTER_URL", "http://leader.mesos:5050"), "Base URL of the Mesos master to subscribe to")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("TRACKER_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&cfg.metricsAddr, "metrics-addr", envOrDefault("TRACKER_METRICS_ADDR", ":9090"), "Address to serve Prometheus metrics on")
	root.PersistentFlags().StringVar(&cfg.healthAddr, "health-addr", envOrDefault("TRACKER_HEALTH_ADDR", ":9091"), "Address to serve the gRPC health service on")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mesos-tracker %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cfg *config) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting mesos-tracker",
		zap.String("version", version),
		zap.String("master_url", cfg.masterURL),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// --- Resolver ---
	res, err := resolver.NewStaticResolver(cfg.masterURL)
	if err != nil {
		return fmt.Errorf("failed to build master resolver: %w", err)
	}

	// --- Store, registry, metrics ---
	store := state.NewStore(logger)
	registry := subscriber.NewRegistry(logger)
	reg := prometheus.NewRegistry()
	collector := obsmetrics.NewCollector(reg)

	// --- Tracker actor ---
	trk := tracker.New(logger, store, registry, collector)

	// --- Health server ---
	health := healthsrv.New(logger, cfg.healthAddr)

	// --- Connection manager ---
	mgr := connection.New(logger, http.DefaultClient, res, trk)
	mgr.OnReconnect(collector.Reconnected)
	mgr.OnConnected(func(connected bool) {
		collector.SetConnected(connected)
		health.SetServing(connected)
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.metricsAddr, Handler: mux}
		go func() {
			<-gctx.Done()
			srv.Close() //nolint:errcheck
		}()
		logger.Info("metrics server listening", zap.String("addr", cfg.metricsAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		go func() {
			<-gctx.Done()
			health.Stop()
		}()
		if err := health.ListenAndServe(); err != nil {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		err := trk.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		err := mgr.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	err = g.Wait()
	logger.Info("mesos-tracker stopped", zap.Error(err))
	return err
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
