// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

/*
Package reconciler implements boot-time adoption and periodic drift
correction for forgekeeper's managed servers.

A Supervisor only knows about the servers it has itself Created or
Registered in the current process lifetime. Across a restart, the
in-memory ServerRecord set starts empty while the database still holds
every server's last known status and pid-file location. Reconciler
closes that gap: on its first pass it registers every persisted row and
either adopts a still-live process or marks the record Stopped; on
every subsequent pass it looks for the same drift happening mid-run —
an operator starting a server outside the supervisor, or a process
dying in the narrow window around a supervisor crash before its own
exitWatcher could observe it.

Verification (§4.6) checks two things before trusting a pid: the
process is alive, and its command line references the server's
directory and jar, so Reconciler never adopts an unrelated process that
happens to reuse a recycled pid.
*/
package reconciler
