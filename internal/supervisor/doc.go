// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

/*
Package supervisor provides process supervision for forgekeeper using suture v4.

This package implements a hierarchical supervisor tree that manages the
lifecycle of every long-running task in the application, plus the
Supervisor orchestrator that drives individual Minecraft server
processes through their lifecycle.

# Overview

The supervisor tree organizes tasks into three layers for failure isolation:

	SupervisorTree ("forgekeeper")
	├── process-layer
	│   ├── logpump:<server_id>     (one per running server)
	│   └── exitwatcher:<server_id> (one per running server)
	├── scheduler-layer
	│   ├── Reconciler's periodic loop
	│   └── BackupScheduler's tick loop
	└── api-layer
	    └── HTTP/WebSocket demo boundary

This hierarchy ensures that:
  - A crash in one server's log pump doesn't affect any other server
  - A Reconciler failure doesn't impact API availability
  - Each layer can restart independently

# Key Features

Automatic Restart:
  - Crashed per-server tasks are automatically restarted
  - Exponential backoff prevents restart storms
  - Configurable failure thresholds and decay rates

Failure Isolation:
  - Tasks are organized into logical groups
  - Child supervisor failures don't propagate upward
  - Each layer has independent failure counting

Graceful Shutdown:
  - Context cancellation triggers orderly shutdown
  - Configurable shutdown timeout per service
  - UnstoppedServiceReport for debugging hangs
  - Running servers are gracefully stopped on shutdown; already-orphaned
    JVMs are deliberately left alone so the Reconciler can re-adopt them
    after a restart (§5)

Structured Logging:
  - Integration with slog for structured events
  - Logs service starts, stops, failures, and restarts
  - Event hooks via sutureslog adapter

# The Supervisor orchestrator

SupervisorTree hosts goroutines; Supervisor (supervisor.go) is the
operation surface callers actually use: Create, Start, Stop, Restart,
Command, Status, Tail, SubscribeLogs, SubscribeStatus. Each managed
server has a ServerRecord (internal/record) holding its status, pid, log
ring buffer, and subscriber sets, plus a small amount of Supervisor-local
bookkeeping (RCON address/credentials, the stdin fallback writer, and
which process-layer tokens belong to it).

Start launches the JVM via internal/process, registers a LogPump and an
exitWatcher on the process-layer supervisor, and returns immediately with
status Starting — the startup detector (log line matching) or a timeout
drives the eventual transition to Running. Stop prefers RCON's "stop"
command, falls back to writing to the JVM's stdin, and escalates through
SIGTERM to SIGKILL if the process outlives the graceful-stop timeout.

# Usage Example

Basic setup in main.go:

	import (
	    "log/slog"
	    "github.com/forgekeeper/forgekeeper/internal/supervisor"
	)

	func main() {
	    logger := slog.Default()
	    config := supervisor.DefaultTreeConfig()

	    tree, err := supervisor.NewSupervisorTree(logger, config)
	    if err != nil {
	        log.Fatal(err)
	    }

	    sup := supervisor.New(cfg, db, tree, allocator, launcher, bus, encryptor)

	    ctx := context.Background()
	    errCh := tree.ServeBackground(ctx)

	    id, err := sup.Create(ctx, supervisor.CreateSpec{Name: "survival", OwnerID: "op", Version: "1.20.4", ...})
	    snap, err := sup.Start(ctx, id.ID.String())

	    if err := <-errCh; err != nil {
	        log.Printf("supervisor tree stopped: %v", err)
	    }
	}

# Configuration

The TreeConfig controls restart behavior:

	config := supervisor.TreeConfig{
	    FailureThreshold: 5.0,          // Failures before backoff
	    FailureDecay:     30.0,         // Seconds for failures to decay
	    FailureBackoff:   15 * time.Second, // Backoff duration
	    ShutdownTimeout:  10 * time.Second, // Per-service shutdown timeout
	}

Default values match suture's production-ready defaults:
  - FailureThreshold: 5 failures
  - FailureDecay: 30 seconds
  - FailureBackoff: 15 seconds
  - ShutdownTimeout: 10 seconds

# Failure Handling

The supervisor uses a failure counter with exponential decay:

 1. Each service failure increments the counter
 2. Counter decays exponentially over time (FailureDecay seconds)
 3. When counter exceeds FailureThreshold, supervisor enters backoff
 4. During backoff, restarts are delayed by FailureBackoff duration

Example failure scenarios:

	# Single crash - immediate restart
	logpump crashes -> Counter: 1 -> Restart immediately

	# Rapid crashes - backoff triggered
	logpump crashes 5x in 10s -> Counter: 5+ -> Wait 15s before restart

	# Isolated failures - counter decays
	logpump crashes once, stable for 60s -> Counter: ~0.13 -> Normal restart

# Service Interface

All services must implement suture.Service:

	type Service interface {
	    Serve(ctx context.Context) error
	}

Return behavior:
  - Return nil: Service stopped cleanly, will not be restarted
  - Return error: Service crashed, will be restarted
  - Context canceled: Shutdown requested, return promptly

exitWatcher always returns nil on detecting a process exit — it is a
one-shot observer, not a task that should be restarted once its job is
done; Supervisor.Start registers a fresh one on the next launch.

# What Is NOT Supervised

The embedded DuckDB handle is intentionally not supervised:
  - It's an embedded library, not a long-running service
  - Connections are managed by the database package
  - A DuckDB failure would require a process restart anyway

The JVM processes themselves are not suture services — they run detached
from the supervisor's own process tree entirely (§4.1); logpump and
exitWatcher merely observe them.

# Debugging Shutdown Issues

If services don't stop within the timeout:

	report, err := tree.UnstoppedServiceReport()
	for _, svc := range report {
	    log.Printf("Service didn't stop: %v", svc)
	}

Common causes:
  - Goroutines not respecting context cancellation
  - Blocked network I/O without deadlines
  - A JVM ignoring RCON stop/stdin and outliving SIGTERM

# Thread Safety

Supervisor and SupervisorTree are both safe for concurrent use:
  - Per-server transitions serialize on that server's ServerRecord lock
  - Cross-server operations run in parallel
  - The id->server map is guarded by Supervisor.mu, held only for map
    lookups/mutations, never across a blocking wait
*/
package supervisor
