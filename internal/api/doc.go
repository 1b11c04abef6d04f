// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

/*
Package api provides a thin HTTP boundary in front of the Supervisor:
health/readiness checks, a read-only fleet status snapshot, and the
Prometheus scrape endpoint. It intentionally does not implement the
full server-management product surface (create/start/stop/command/
backup-schedule CRUD) or any authentication/authorization layer —
those are out of scope here and left to the caller embedding this
package.
*/
package api
