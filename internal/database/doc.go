// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

// Package database is the embedded DuckDB persistence layer for the four
// durable entities named in §3.1: servers, backup_schedules,
// backup_schedule_logs, and backups.
//
// Session handles are obtained per operation rather than held for a
// task's lifetime (§9): the Reconciler and BackupScheduler call into DB
// methods that each acquire, use, and release a connection from the
// pool via database/sql, never stashing one on a long-lived struct.
package database
