// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/forgekeeper/forgekeeper/internal/models"
)

// CreateBackup inserts archive metadata for one backup attempt.
func (db *DB) CreateBackup(ctx context.Context, b *models.Backup) error {
	return withRetry(ctx, func() error {
		if b.ID == uuid.Nil {
			b.ID = uuid.New()
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = time.Now()
		}
		_, err := db.conn.ExecContext(ctx, `INSERT INTO backups
			(id, server_id, name, path, size_bytes, type, status, error, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			b.ID.String(), b.ServerID.String(), b.Name, b.Path, b.SizeBytes, string(b.Type), string(b.Status), b.Error, b.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert backup: %w", err)
		}
		return nil
	})
}

// ListBackups returns every backup for a server, newest first.
func (db *DB) ListBackups(ctx context.Context, serverID uuid.UUID) ([]*models.Backup, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT
		id, server_id, name, path, size_bytes, type, status, error, created_at
		FROM backups WHERE server_id = ? ORDER BY created_at DESC`, serverID.String())
	if err != nil {
		return nil, fmt.Errorf("query backups: %w", err)
	}
	defer rows.Close()

	var out []*models.Backup
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListScheduledBackups returns scheduled (non-manual) backups for a server
// ordered oldest-first, used by the retention pruner (§4.7 step 3, §9's
// "prune oldest beyond the new limit, applied only to backup_type=scheduled"
// resolution of the open question on shrinking max_backups).
func (db *DB) ListScheduledBackups(ctx context.Context, serverID uuid.UUID) ([]*models.Backup, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT
		id, server_id, name, path, size_bytes, type, status, error, created_at
		FROM backups WHERE server_id = ? AND type = ? ORDER BY created_at ASC`,
		serverID.String(), string(models.BackupTypeScheduled))
	if err != nil {
		return nil, fmt.Errorf("query scheduled backups: %w", err)
	}
	defer rows.Close()

	var out []*models.Backup
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// DeleteBackup removes a backup's metadata row. Deleting the archive file
// itself is the caller's responsibility (internal/backup owns the archive
// lifecycle; this package only owns the row).
func (db *DB) DeleteBackup(ctx context.Context, id uuid.UUID) error {
	return withRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx, `DELETE FROM backups WHERE id = ?`, id.String())
		if err != nil {
			return fmt.Errorf("delete backup: %w", err)
		}
		return nil
	})
}

func scanBackup(row rowScanner) (*models.Backup, error) {
	var (
		b            models.Backup
		id, serverID string
		typ, status  string
		errText      sql.NullString
	)
	if err := row.Scan(&id, &serverID, &b.Name, &b.Path, &b.SizeBytes, &typ, &status, &errText, &b.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	b.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	b.ServerID, err = uuid.Parse(serverID)
	if err != nil {
		return nil, err
	}
	b.Type = models.BackupType(typ)
	b.Status = models.BackupStatus(status)
	b.Error = errText.String
	return &b, nil
}
