// Command offsync runs the offline-availability worker: the caching gateway
// and sync engine that keeps saved city guides openable without a network.
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/urbanpack/offsync/internal/api"
	"github.com/urbanpack/offsync/internal/clients"
	"github.com/urbanpack/offsync/internal/conf"
	"github.com/urbanpack/offsync/internal/discover"
	"github.com/urbanpack/offsync/internal/fetcher"
	"github.com/urbanpack/offsync/internal/lifecycle"
	"github.com/urbanpack/offsync/internal/logger"
	"github.com/urbanpack/offsync/internal/metrics"
	"github.com/urbanpack/offsync/internal/netfetch"
	"github.com/urbanpack/offsync/internal/partition"
	"github.com/urbanpack/offsync/internal/router"
	"github.com/urbanpack/offsync/internal/shell"
	"github.com/urbanpack/offsync/internal/syncer"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var configPath string

	root := &cobra.Command{
		Use:          "offsync",
		Short:        "Offline-availability worker for city guides",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string) error {
	settings, err := conf.Load(configPath)
	if err != nil {
		return err
	}

	log := logger.NewSlogLogger(os.Stderr, logger.LogLevel(settings.LogLevel), nil)

	db, err := partition.OpenDatabase(settings.Database.Driver, settings.Database.Path, settings.Database.DSN)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	repo := partition.NewEntryRepository(db)
	registry := partition.NewRegistry(repo, log)
	httpFetcher := netfetch.NewHTTPFetcher(settings.Fetch.Timeout.Std())

	disc, err := discover.New(httpFetcher, settings.Upstream, log)
	if err != nil {
		return err
	}
	shellMgr, err := shell.NewManager(shell.Config{
		Registry: registry,
		Disc:     disc,
		Fetcher:  httpFetcher,
		Upstream: settings.Upstream,
		Prefix:   settings.Cache.Prefix,
		Version:  settings.Cache.ShellVersion,
		Assets:   settings.Shell.Assets,
		Boot:     settings.Shell.Boot,
		Log:      log,
		Metrics:  m,
	})
	if err != nil {
		return err
	}

	hub := clients.NewHub(log)
	entityFetcher, err := fetcher.New(fetcher.Config{
		Registry:      registry,
		Fetcher:       httpFetcher,
		Upstream:      settings.Upstream,
		Prefix:        settings.Cache.Prefix,
		EntityVersion: settings.Cache.EntityVersion,
		Routes:        settings.Entity,
		Hub:           hub,
		Log:           log,
		Metrics:       m,
	})
	if err != nil {
		return err
	}

	rt, err := router.New(router.Config{
		Registry:      registry,
		Fetcher:       httpFetcher,
		Upstream:      settings.Upstream,
		Prefix:        settings.Cache.Prefix,
		ShellVersion:  settings.Cache.ShellVersion,
		EntityVersion: settings.Cache.EntityVersion,
		Routes:        settings.Entity,
		FallbackDoc:   settings.Shell.FallbackDoc(),
		Log:           log,
		Metrics:       m,
	})
	if err != nil {
		return err
	}

	controller := lifecycle.NewController(registry, shellMgr, hub,
		settings.Cache.Prefix, settings.Cache.ShellVersion, log, m)
	orch := syncer.New(shellMgr, entityFetcher, log, m)

	server, err := api.NewServer(api.Config{
		Orchestrator: orch,
		Hub:          hub,
		Router:       rt,
		Lifecycle:    controller,
		Upstream:     settings.Upstream,
		Gatherer:     reg,
		Log:          log,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Install and activate before serving. An install failure is not fatal
	// for the worker: request interception still degrades gracefully, and
	// the shell refreshes on the next sync message.
	if err := controller.Run(ctx); err != nil {
		log.Error("lifecycle startup incomplete", logger.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(settings.Listen)
	}()
	log.Info("worker serving",
		logger.String("listen", settings.Listen),
		logger.String("upstream", settings.Upstream),
		logger.String("shell_version", settings.Cache.ShellVersion))

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
