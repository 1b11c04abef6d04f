// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

// Package rcon implements RconClient (§4.3): the Source-engine RCON wire
// protocol Minecraft servers speak, a lazily-connecting session per
// server, and a circuit breaker around Execute so a wedged JVM fails
// fast instead of stacking up blocked commands.
package rcon
