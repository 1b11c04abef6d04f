// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/forgekeeper/forgekeeper/internal/models"
	"github.com/forgekeeper/forgekeeper/internal/supervisorerr"
	ws "github.com/forgekeeper/forgekeeper/internal/websocket"
)

// ServerStore is the read-only subset of internal/database's DB the
// Handler needs to list servers and check connectivity.
type ServerStore interface {
	ListServers(ctx context.Context) ([]*models.Server, error)
	Ping(ctx context.Context) error
}

// StatusLookup is the subset of internal/supervisor's Supervisor the
// Handler needs to report a server's live, in-memory status rather
// than its possibly-stale persisted one.
type StatusLookup interface {
	KnownStatus(id string) (models.Status, bool)
	CrashDetails(id string) (*supervisorerr.CrashDetails, bool)
}

// Handler implements the endpoints this package mounts.
type Handler struct {
	db        ServerStore
	sup       StatusLookup
	wsHub     *ws.Hub
	startTime time.Time
}

// NewHandler builds a Handler. startTime should be the process's own
// start time, used to report uptime. wsHub may be nil, in which case
// the /ws endpoint responds 503 rather than panicking.
func NewHandler(db ServerStore, sup StatusLookup, wsHub *ws.Hub, startTime time.Time) *Handler {
	return &Handler{db: db, sup: sup, wsHub: wsHub, startTime: startTime}
}

// serverView is the externally visible projection of a models.Server:
// the persisted row enriched with the Supervisor's live status when
// the server is registered in-memory.
type serverView struct {
	*models.Server
	LiveStatus   models.Status               `json:"live_status,omitempty"`
	CrashDetails *supervisorerr.CrashDetails `json:"crash_details,omitempty"`
}

// Healthz reports liveness and database connectivity. It always
// returns 200 unless the handler itself is misconfigured — readiness
// (whether the database is reachable) is reported in the body, not
// the status code, since liveness probes should not restart a process
// over a transient database hiccup.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	dbConnected := h.db.Ping(r.Context()) == nil

	writeSuccess(w, r, map[string]interface{}{
		"alive":          true,
		"database_ready": dbConnected,
		"uptime_seconds": time.Since(h.startTime).Seconds(),
	})
}

// Serversz returns a snapshot of every non-deleted server: its
// persisted row plus, where the Supervisor has it registered, the
// live in-memory status (§3.1/§3.4 distinguish the two explicitly).
func (h *Handler) Serversz(w http.ResponseWriter, r *http.Request) {
	servers, err := h.db.ListServers(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, ErrCodeNotReady, "failed to list servers")
		return
	}

	views := make([]serverView, 0, len(servers))
	for _, sv := range servers {
		view := serverView{Server: sv}
		if status, ok := h.sup.KnownStatus(sv.ID.String()); ok {
			view.LiveStatus = status
			if status == models.StatusCrashed {
				if details, ok := h.sup.CrashDetails(sv.ID.String()); ok {
					view.CrashDetails = details
				}
			}
		}
		views = append(views, view)
	}

	writeSuccess(w, r, views)
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
	HandshakeTimeout: 10 * time.Second,
	CheckOrigin:      func(r *http.Request) bool { return true },
}

// WS upgrades the connection and hands it to the websocket Hub. This
// demo boundary has no configured allowlist of origins to check
// against, so every origin is accepted — acceptable for a read-only,
// unauthenticated status feed.
func (h *Handler) WS(w http.ResponseWriter, r *http.Request) {
	if h.wsHub == nil {
		writeError(w, r, http.StatusServiceUnavailable, ErrCodeNotReady, "websocket hub not available")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	h.wsHub.Register <- client
	client.Start()
}
