// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

/*
Package backup implements per-server archive creation, retention, restore,
and the scheduler that triggers them on a timer (§4.7).

Manager owns the archive lifecycle: creating a tar.gz snapshot of a
server's directory, pruning old scheduled archives once a server exceeds
its configured limit, and extracting one back over a stopped server's
directory on restore.

Scheduler loads every enabled BackupSchedule into an in-memory cache keyed
by server id at startup, then wakes on a fixed tick. Each due schedule is
evaluated against the Server row and the Supervisor's live status before
Manager is asked to act; the result (executed, or skipped with a reason)
is appended to that schedule's audit log and next_backup_at is advanced
either way, so a failing or skipped backup never retries in a tight loop.

Schedule CRUD (create/update/delete) goes through Scheduler rather than
directly against the database so the in-memory cache never drifts from
what's persisted.
*/
package backup
