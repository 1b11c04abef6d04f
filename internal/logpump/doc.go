// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

// Package logpump implements LogPump (§4.2): it tails a running server's
// log file, detects rotation, feeds every new line into the server's
// ServerRecord, and watches for the startup marker that drives
// Starting→Running.
package logpump
