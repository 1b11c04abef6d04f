// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

// Package main is the entry point for forgekeeperd.
//
// forgekeeperd supervises a fleet of Minecraft Java Edition servers: it
// launches and monitors the JVM processes, reconciles persisted state
// against the live process table on boot and periodically thereafter,
// runs scheduled backups, fans out status/log/backup events to
// subscribers, and exposes a thin read-only HTTP/WebSocket boundary.
//
// # Application Architecture
//
// The daemon initializes components in the following order:
//
//  1. Configuration: load settings from environment variables and an
//     optional config file (Koanf v2)
//  2. Database: open the embedded DuckDB store
//  3. Supervisor: the per-server process supervision core
//  4. Reconciler: adopts already-running servers on boot, then
//     verifies state at a fixed interval
//  5. Backup scheduler: runs due backup schedules
//  6. WebSocket hub + event relay: fan out status/log/backup events
//  7. HTTP server: the thin, unauthenticated external boundary
//
// # Process Re-exec
//
// Before any of the above, main checks whether it was re-invoked as the
// double-fork launch helper (internal/process). If so, it runs the
// helper body and exits immediately rather than starting the daemon.
//
// # Signal Handling
//
// The daemon handles graceful shutdown on SIGINT and SIGTERM: the
// supervisor tree is given its configured shutdown timeout to stop
// every service (HTTP server drains in-flight requests, scheduler and
// reconciler loops exit, the WebSocket hub closes every client) before
// the process exits.
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

	"github.com/forgekeeper/forgekeeper/internal/api"
	"github.com/forgekeeper/forgekeeper/internal/backup"
	"github.com/forgekeeper/forgekeeper/internal/config"
	"github.com/forgekeeper/forgekeeper/internal/database"
	"github.com/forgekeeper/forgekeeper/internal/eventbus"
	"github.com/forgekeeper/forgekeeper/internal/logging"
	"github.com/forgekeeper/forgekeeper/internal/portalloc"
	"github.com/forgekeeper/forgekeeper/internal/process"
	"github.com/forgekeeper/forgekeeper/internal/reconciler"
	"github.com/forgekeeper/forgekeeper/internal/supervisor"
	"github.com/forgekeeper/forgekeeper/internal/supervisor/services"
	ws "github.com/forgekeeper/forgekeeper/internal/websocket"
)

//nolint:gocyclo // sequential composition root, not business logic
func main() {
	if process.IsHelperInvocation(os.Args) {
		os.Exit(process.RunHelper())
	}

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Msg("starting forgekeeperd")

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing database")
		}
	}()
	logging.Info().Str("path", cfg.Database.Path).Msg("database ready")

	var enc *config.CredentialEncryptor
	if cfg.Security.MasterSecret != "" {
		enc, err = config.NewCredentialEncryptor(cfg)
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to initialize credential encryptor")
		}
		if err := enc.SelfCheck(); err != nil {
			logging.Fatal().Err(err).Msg("credential encryptor self-check failed")
		}
	} else {
		logging.Warn().Msg("SECURITY_MASTER_SECRET not set - RCON passwords will not be cached at rest")
	}

	bus := eventbus.New(cfg.Record.SubscriberQueue)
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing event bus")
		}
	}()

	launcher, err := process.NewLauncher()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to resolve own executable path")
	}

	allocator := portalloc.New(cfg.Port.RangeStart, cfg.Port.RangeEnd, 0)

	slogLogger := logging.NewSlogLogger()
	treeConfig := supervisor.DefaultTreeConfig()
	treeConfig.ShutdownTimeout = cfg.Timeouts.GracefulStop()
	tree, err := supervisor.NewSupervisorTree(slogLogger, treeConfig)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to create supervisor tree")
	}

	sup := supervisor.New(cfg, db, tree, allocator, launcher, bus, enc)

	recon := reconciler.New(db, sup, cfg.Timeouts.ReconcileInterval())
	tree.AddSchedulerService(recon)
	logging.Info().Dur("interval", cfg.Timeouts.ReconcileInterval()).Msg("reconciler registered")

	backupManager := backup.NewManager(db, cfg.Paths.BackupsRoot)
	backupScheduler := backup.NewScheduler(db, sup, backupManager, cfg.Scheduler.Tick(), bus)
	tree.AddSchedulerService(backupScheduler)
	logging.Info().Dur("tick", cfg.Scheduler.Tick()).Msg("backup scheduler registered")

	wsHub := ws.NewHub()
	tree.AddAPIService(services.NewWebSocketHubService(wsHub))

	relay := ws.NewRelay(bus, db, wsHub)
	tree.AddAPIService(relay)
	logging.Info().Msg("websocket hub and event relay registered")

	handler := api.NewHandler(db, sup, wsHub, time.Now())
	router := api.NewRouter(handler)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	tree.AddAPIService(services.NewHTTPServerService(httpServer, cfg.Timeouts.GracefulStop()))
	logging.Info().Str("addr", httpServer.Addr).Msg("http server registered")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("context canceled, waiting for supervisor tree to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("service failed to stop")
		}
	}

	logging.Info().Msg("forgekeeperd stopped gracefully")
}
