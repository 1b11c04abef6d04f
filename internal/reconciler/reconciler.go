// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

package reconciler

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	gopsprocess "github.com/shirou/gopsutil/v4/process"

	"github.com/forgekeeper/forgekeeper/internal/logging"
	"github.com/forgekeeper/forgekeeper/internal/metrics"
	"github.com/forgekeeper/forgekeeper/internal/models"
	"github.com/forgekeeper/forgekeeper/internal/process"
	"github.com/forgekeeper/forgekeeper/internal/supervisor"
)

const defaultInterval = 15 * time.Second

// ServerDB is the persistence surface the Reconciler needs; satisfied
// by *internal/database.DB.
type ServerDB interface {
	ListServers(ctx context.Context) ([]*models.Server, error)
}

// Reconciler is a suture.Service that walks every persisted server on
// boot and at a fixed interval thereafter (§4.6).
type Reconciler struct {
	db       ServerDB
	sup      *supervisor.Supervisor
	interval time.Duration
}

// New constructs a Reconciler. interval <= 0 falls back to 15s.
func New(db ServerDB, sup *supervisor.Supervisor, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Reconciler{db: db, sup: sup, interval: interval}
}

func (r *Reconciler) String() string { return "reconciler" }

// Serve runs an immediate pass (the boot-time adoption scan) and then
// repeats at r.interval until ctx is canceled.
func (r *Reconciler) Serve(ctx context.Context) error {
	r.runPass(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.runPass(ctx)
		}
	}
}

func (r *Reconciler) runPass(ctx context.Context) {
	servers, err := r.db.ListServers(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("reconciler: list servers failed")
		return
	}
	for _, sv := range servers {
		if sv.DeletedAt != nil {
			continue
		}
		r.reconcileOne(ctx, sv)
	}
	r.refreshStatusCounts(servers)
}

// refreshStatusCounts recomputes the server-count-by-status gauge from
// every registered server's known in-memory status, since a reconciler
// pass is the one place that already walks the full fleet (§6 Metrics).
func (r *Reconciler) refreshStatusCounts(servers []*models.Server) {
	counts := make(map[string]int, 5)
	for _, sv := range servers {
		if sv.DeletedAt != nil {
			continue
		}
		status, ok := r.sup.KnownStatus(sv.ID.String())
		if !ok {
			continue
		}
		counts[string(status)]++
	}
	metrics.SetServerStatusCounts(counts)
}

func (r *Reconciler) reconcileOne(ctx context.Context, sv *models.Server) {
	id := sv.ID.String()

	if err := r.sup.Register(ctx, sv); err != nil {
		logging.Warn().Err(err).Str("server_id", id).Msg("reconciler: register failed")
		return
	}

	status, ok := r.sup.KnownStatus(id)
	if !ok {
		return
	}

	pidFile := filepath.Join(sv.Directory, "server.pid")
	pid, pidErr := process.ReadPIDFile(pidFile)
	alive := pidErr == nil && r.verifyProcess(pid, sv)

	switch status {
	case models.StatusStopped:
		// Case (b): a pid file materialized for a server we believe
		// stopped — an operator started it outside the supervisor.
		if alive {
			if _, err := r.sup.Adopt(ctx, id, pid); err != nil {
				logging.Warn().Err(err).Str("server_id", id).Msg("reconciler: adopt failed")
				return
			}
			metrics.RecordReconcileDriftCorrected("adopted")
			logging.Info().Str("server_id", id).Int("pid", pid).Msg("reconciler: adopted externally started server")
			return
		}
		if pidErr == nil {
			_ = process.RemovePIDFile(pidFile)
		}

	case models.StatusStarting, models.StatusRunning, models.StatusStopping:
		// Case (a): the process died without our own exitWatcher firing.
		// Only reachable across a supervisor restart — within one run,
		// the exitWatcher Adopt/Start registered already races this
		// same check.
		if alive {
			return
		}
		if _, err := r.sup.MarkStopped(ctx, id, "external-exit"); err != nil {
			logging.Warn().Err(err).Str("server_id", id).Msg("reconciler: mark stopped failed")
			return
		}
		_ = process.RemovePIDFile(pidFile)
		metrics.RecordReconcileDriftCorrected("marked_stopped")
		logging.Warn().Str("server_id", id).Msg("reconciler: process exited without being observed, marked stopped")

	case models.StatusCrashed:
		// Left alone: a Crashed server waits for an explicit Start, not
		// automatic recovery.
	}
}

// verifyProcess reports whether pid is alive and its command line
// references both sv.Directory and the server jar, per §4.6 step 2.
func (r *Reconciler) verifyProcess(pid int, sv *models.Server) bool {
	if !process.Alive(pid) {
		return false
	}
	proc, err := gopsprocess.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	cmdline, err := proc.Cmdline()
	if err != nil {
		return false
	}
	return strings.Contains(cmdline, sv.Directory) && strings.Contains(cmdline, "server.jar")
}
