// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

// Package record implements ServerRecord, the in-memory per-server state
// described in §3.2: status, PID, log ring buffer, start/stop waiters,
// and log/status subscribers. All mutation goes through the record's
// lock; subscriber channel writes happen outside the lock so a slow
// consumer never stalls a status transition (§4.4, §5).
package record
