// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

/*
Package services adapts long-running components that don't natively
speak suture's Serve(ctx) error pattern into suture.Service, so
cmd/forgekeeperd can add them to a SupervisorTree's api layer
alongside the per-server process tasks.
*/
package services
