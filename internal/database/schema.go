// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

package database

import (
	"context"
	"fmt"
	"time"
)

func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// createTables creates the four durable tables named in §3.1 if they do
// not already exist. Foreign keys cascade on server deletion (§6.4).
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range []string{
		`CREATE TABLE IF NOT EXISTS servers (
			id VARCHAR PRIMARY KEY,
			name VARCHAR NOT NULL,
			owner_id VARCHAR NOT NULL,
			version VARCHAR NOT NULL,
			type VARCHAR NOT NULL,
			directory VARCHAR NOT NULL,
			port INTEGER NOT NULL,
			memory_min_mb INTEGER NOT NULL,
			memory_max_mb INTEGER NOT NULL,
			max_players INTEGER NOT NULL,
			status VARCHAR NOT NULL DEFAULT 'stopped',
			rcon_password_enc VARCHAR,
			deleted_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS backup_schedules (
			id VARCHAR PRIMARY KEY,
			server_id VARCHAR NOT NULL REFERENCES servers(id),
			interval_hours INTEGER NOT NULL,
			max_backups INTEGER NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT true,
			only_when_running BOOLEAN NOT NULL DEFAULT true,
			last_backup_at TIMESTAMP,
			next_backup_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS backup_schedule_logs (
			id VARCHAR PRIMARY KEY,
			schedule_id VARCHAR NOT NULL REFERENCES backup_schedules(id),
			action VARCHAR NOT NULL,
			reason VARCHAR,
			actor VARCHAR,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS backups (
			id VARCHAR PRIMARY KEY,
			server_id VARCHAR NOT NULL REFERENCES servers(id),
			name VARCHAR NOT NULL,
			path VARCHAR NOT NULL,
			size_bytes BIGINT NOT NULL DEFAULT 0,
			type VARCHAR NOT NULL,
			status VARCHAR NOT NULL,
			error VARCHAR,
			created_at TIMESTAMP NOT NULL
		)`,
	} {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	// servers.port is unique only among non-deleted rows (§3.1) — DuckDB
	// does not support partial unique indexes, so uniqueness is enforced
	// transactionally in CreateServer instead of via a constraint here.
	return nil
}

func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range []string{
		`CREATE INDEX IF NOT EXISTS idx_servers_port ON servers(port)`,
		`CREATE INDEX IF NOT EXISTS idx_servers_directory ON servers(directory)`,
		`CREATE INDEX IF NOT EXISTS idx_backup_schedules_server_id ON backup_schedules(server_id)`,
		`CREATE INDEX IF NOT EXISTS idx_backup_schedules_next_backup_at ON backup_schedules(next_backup_at)`,
		`CREATE INDEX IF NOT EXISTS idx_backup_schedule_logs_schedule_id ON backup_schedule_logs(schedule_id)`,
		`CREATE INDEX IF NOT EXISTS idx_backups_server_id ON backups(server_id)`,
	} {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
