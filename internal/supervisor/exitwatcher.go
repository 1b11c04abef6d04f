// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

package supervisor

import (
	"context"
	"time"

	"github.com/forgekeeper/forgekeeper/internal/process"
)

// pidPollInterval is how often exitWatcher checks liveness. A double-fork
// orphan is not a child of this process, so there is no wait(2) to block
// on — liveness has to be polled the same way the Reconciler does it.
const pidPollInterval = 1 * time.Second

// exitWatcher is a one-shot suture.Service: it polls pid until it is no
// longer alive, then hands control to Supervisor.handleExit to record the
// outcome. It always returns nil so suture never restarts it — the
// Supervisor re-adds a fresh watcher on the next Start.
type exitWatcher struct {
	supervisor *Supervisor
	id         string
	pid        int
}

func (w *exitWatcher) String() string { return "exitwatcher:" + w.id }

func (w *exitWatcher) Serve(ctx context.Context) error {
	ticker := time.NewTicker(pidPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !process.Alive(w.pid) {
				w.supervisor.handleExit(w.id)
				return nil
			}
		}
	}
}
