// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

/*
Package metrics provides Prometheus instrumentation for the fleet
supervisor (§6 Metrics).

# Metrics Endpoint

Metrics are exposed at /metrics in Prometheus text format, served by
promhttp.Handler() mounted on the same chi router as the health and
server-list demo endpoints.

# Available Metrics

Fleet state:
  - forgekeeper_servers: current server count by status (gauge)
    Labels: status (stopped, starting, running, stopping, crashed)

Launch/supervision:
  - forgekeeper_launch_failures_total: failed Start attempts (counter)
  - forgekeeper_startup_timeouts_total: Starting exceeded its timeout and
    was marked Running anyway (counter)
  - forgekeeper_crashes_total: unrequested process exits (counter)

RCON:
  - forgekeeper_rcon_command_duration_seconds: command latency (histogram)
  - forgekeeper_rcon_breaker_state: circuit breaker state per address
    (gauge); 0=closed, 1=half-open, 2=open

Backups:
  - forgekeeper_backups_executed_total: scheduled backups that ran
  - forgekeeper_backups_skipped_total: scheduled backups skipped
    Labels: reason

Reconciliation:
  - forgekeeper_reconcile_drift_corrected_total: adoptions and
    mark-stopped corrections applied by the reconciler (counter)
    Labels: kind (adopted, marked_stopped)

Subscribers:
  - forgekeeper_subscriber_overflow_total: drop-oldest events on a
    full status/log/backup subscriber channel (counter)
    Labels: channel (status, log, backup)
*/
package metrics
