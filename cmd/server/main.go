// Package main runs a ledger node: the JSON API, Prometheus metrics and any
// background height watcher, on the storage backend named in the config.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"time-ledger/internal/api"
	"time-ledger/internal/config"
	"time-ledger/internal/logging"
	"time-ledger/internal/observability"
	"time-ledger/internal/orchestrator"
)

const (
	configFlag      = "config"
	listenFlag      = "listen"
	metricsAddrFlag = "metrics-addr"
	logLevelFlag    = "log-level"
	logFileFlag     = "log-file"
	logFormatFlag   = "log-format"
)

const (
	shutdownTimeout = 10 * time.Second
	forceExitAfter  = 30 * time.Second
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "time-ledger-server",
		Short: "Serve the TIME exchange and staking ledger over HTTP",
		Long: `time-ledger-server restores the ledger from the configured store,
runs genesis on a fresh one and serves the JSON API and Prometheus metrics.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}

	flags := cmd.Flags()
	flags.String(configFlag, os.Getenv("TIME_LEDGER_CONFIG"), "HJSON configuration file")
	flags.String(listenFlag, "", "API listen address (overrides config)")
	flags.String(metricsAddrFlag, "", "Prometheus metrics address; empty or equal to --listen serves /metrics on the API")
	flags.String(logLevelFlag, "", "log level: debug, info, warn, error")
	flags.String(logFormatFlag, "", "log format: text or json")
	flags.String(logFileFlag, "", "also write logs to this rotating file")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString(configFlag)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	overrides := map[string]*string{
		listenFlag:      &cfg.Listen,
		metricsAddrFlag: &cfg.MetricsAddr,
		logLevelFlag:    &cfg.Log.Level,
		logFormatFlag:   &cfg.Log.Format,
		logFileFlag:     &cfg.Log.File,
	}
	for name, dst := range overrides {
		if cmd.Flags().Changed(name) {
			*dst, _ = cmd.Flags().GetString(name)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(cfg *config.Config) error {
	logger, err := logging.Setup(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
	if err != nil {
		return err
	}
	log := logrus.NewEntry(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	node, err := orchestrator.Build(ctx, orchestrator.Options{Config: *cfg, Logger: log})
	if err != nil {
		return fmt.Errorf("build ledger: %w", err)
	}
	defer func() {
		if err := node.Close(); err != nil {
			log.WithError(err).Warn("close ledger")
		}
	}()

	router := api.New(node, api.WithLogger(log.WithField("component", "api"))).Router()
	servers := []*http.Server{newServer(cfg.Listen, router)}
	if cfg.MetricsAddr == "" || cfg.MetricsAddr == cfg.Listen {
		router.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)
	} else {
		metrics := mux.NewRouter()
		metrics.Handle("/metrics", observability.Handler())
		servers = append(servers, newServer(cfg.MetricsAddr, metrics))
	}

	// Channel to signal completion
	done := make(chan struct{})
	defer close(done)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			log.WithField("signal", sig.String()).Info("initiating graceful shutdown")
			cancel()
		case <-done:
			return
		}

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			log.WithField("signal", sig.String()).Warn("forcing immediate shutdown")
			os.Exit(1)
		case <-time.After(forceExitAfter):
			log.Error("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	errCh := make(chan error, len(servers)+1)
	for _, srv := range servers {
		go func(srv *http.Server) {
			log.WithField("addr", srv.Addr).Info("starting HTTP server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server %s: %w", srv.Addr, err)
			}
		}(srv)
	}
	go func() {
		if err := node.Run(ctx); err != nil {
			errCh <- fmt.Errorf("background work: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		log.WithError(runErr).Error("server failed")
		cancel()
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).WithField("addr", srv.Addr).Warn("http shutdown")
		}
	}

	log.Info("shutdown complete")
	return runErr
}

func newServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
