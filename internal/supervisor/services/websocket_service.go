// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

package services

import "context"

// ContextHub matches *websocket.Hub.RunWithContext, avoiding a direct
// import of internal/websocket here.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// WebSocketHubService delegates straight to the Hub's own context-aware
// run loop, which already implements suture's Serve pattern.
type WebSocketHubService struct {
	hub ContextHub
}

// NewWebSocketHubService wraps hub for the API layer supervisor.
func NewWebSocketHubService(hub ContextHub) *WebSocketHubService {
	return &WebSocketHubService{hub: hub}
}

func (w *WebSocketHubService) String() string { return "websocket-hub" }

// Serve implements suture.Service.
func (w *WebSocketHubService) Serve(ctx context.Context) error {
	return w.hub.RunWithContext(ctx)
}
