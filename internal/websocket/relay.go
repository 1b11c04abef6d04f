// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/forgekeeper/forgekeeper/internal/logging"
	"github.com/forgekeeper/forgekeeper/internal/models"
)

// EventSource is the subset of internal/eventbus's EventBus the Relay
// needs: per-server status/log subscriptions plus the global backup
// feed.
type EventSource interface {
	SubscribeStatus(ctx context.Context, serverID string) (<-chan models.ServerStatusChanged, func(), error)
	SubscribeLog(ctx context.Context, serverID string) (<-chan models.LogLine, func(), error)
	SubscribeBackups(ctx context.Context) (<-chan models.BackupCompleted, func(), error)
}

// ServerLister is the subset of internal/database's DB the Relay needs
// to discover which servers currently exist.
type ServerLister interface {
	ListServers(ctx context.Context) ([]*models.Server, error)
}

const relayDiscoveryInterval = 10 * time.Second

// Relay forwards EventBus events into a Hub's broadcast methods. This
// is the boundary SPEC_FULL's external-demo section describes: it is
// intentionally thin, so rather than require each caller of Create to
// also register its new server with the Relay, it discovers servers by
// periodically listing them and subscribing status/log for any it
// hasn't seen yet. Backups are subscribed once, since EventBus already
// carries them on a single global topic.
type Relay struct {
	bus  EventSource
	db   ServerLister
	hub  *Hub
	seen sync.Map
}

// NewRelay constructs a Relay. Call Serve to run it as a suture.Service.
func NewRelay(bus EventSource, db ServerLister, hub *Hub) *Relay {
	return &Relay{bus: bus, db: db, hub: hub}
}

func (r *Relay) String() string { return "websocket-relay" }

// Serve implements suture.Service.
func (r *Relay) Serve(ctx context.Context) error {
	backups, cancel, err := r.bus.SubscribeBackups(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	go func() {
		for ev := range backups {
			r.hub.BroadcastBackup(ev)
		}
	}()

	r.discover(ctx)

	ticker := time.NewTicker(relayDiscoveryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.discover(ctx)
		}
	}
}

func (r *Relay) discover(ctx context.Context) {
	servers, err := r.db.ListServers(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("websocket relay: failed to list servers for discovery")
		return
	}
	for _, sv := range servers {
		id := sv.ID.String()
		if _, already := r.seen.LoadOrStore(id, struct{}{}); already {
			continue
		}
		r.subscribeServer(ctx, id)
	}
}

func (r *Relay) subscribeServer(ctx context.Context, id string) {
	statuses, _, err := r.bus.SubscribeStatus(ctx, id)
	if err != nil {
		logging.Warn().Err(err).Str("server_id", id).Msg("websocket relay: status subscribe failed")
		r.seen.Delete(id)
		return
	}
	logs, _, err := r.bus.SubscribeLog(ctx, id)
	if err != nil {
		logging.Warn().Err(err).Str("server_id", id).Msg("websocket relay: log subscribe failed")
		r.seen.Delete(id)
		return
	}

	go func() {
		for ev := range statuses {
			r.hub.BroadcastStatus(ev)
		}
	}()
	go func() {
		for ev := range logs {
			r.hub.BroadcastLog(ev)
		}
	}()
}
