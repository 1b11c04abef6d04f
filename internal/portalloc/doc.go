// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

// Package portalloc implements PortAllocator and JavaResolver (§4.8):
// finding a free, non-colliding port for a new server, and resolving the
// Java binary a given Minecraft version requires.
package portalloc
