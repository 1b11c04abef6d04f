// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

// Package eventbus fans ServerStatusChanged, LogLine, and
// BackupCompleted events out to the HTTP/WebSocket boundary (§4.9).
// Delivery is best-effort: each subscriber owns a bounded, drop-oldest
// queue so one slow reader never back-pressures the producer or the
// other subscribers.
package eventbus
