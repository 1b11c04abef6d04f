// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/forgekeeper/forgekeeper/internal/models"
	"github.com/forgekeeper/forgekeeper/internal/supervisorerr"
)

// CreateServer inserts a new Server row after checking port and directory
// uniqueness within the same transaction, so a racing Create never leaves
// a half-written row (§8.3 scenario 6: atomicity on PortInUse).
func (db *DB) CreateServer(ctx context.Context, s *models.Server) error {
	return withRetry(ctx, func() error {
		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var portTaken int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM servers WHERE port = ? AND deleted_at IS NULL`, s.Port,
		).Scan(&portTaken); err != nil {
			return fmt.Errorf("check port uniqueness: %w", err)
		}
		if portTaken > 0 {
			return supervisorerr.New(supervisorerr.KindPortInUse, "", fmt.Sprintf("port %d already in use", s.Port))
		}

		var dirTaken int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM servers WHERE directory = ?`, s.Directory,
		).Scan(&dirTaken); err != nil {
			return fmt.Errorf("check directory uniqueness: %w", err)
		}
		if dirTaken > 0 {
			return supervisorerr.New(supervisorerr.KindInternal, "", fmt.Sprintf("directory %s already in use", s.Directory))
		}

		now := time.Now()
		s.CreatedAt, s.UpdatedAt = now, now
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		if s.Status == "" {
			s.Status = models.PersistedStopped
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO servers
			(id, name, owner_id, version, type, directory, port, memory_min_mb, memory_max_mb, max_players, status, rcon_password_enc, deleted_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.ID.String(), s.Name, s.OwnerID, s.Version, string(s.Type), s.Directory, s.Port,
			s.MemoryMinMB, s.MemoryMaxMB, s.MaxPlayers, string(s.Status), nullableString(s.RconPasswordEnc), nil, s.CreatedAt, s.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert server: %w", err)
		}

		return tx.Commit()
	})
}

// GetServer loads a single non-deleted Server by id.
func (db *DB) GetServer(ctx context.Context, id uuid.UUID) (*models.Server, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT
		id, name, owner_id, version, type, directory, port, memory_min_mb, memory_max_mb,
		max_players, status, rcon_password_enc, deleted_at, created_at, updated_at
		FROM servers WHERE id = ? AND deleted_at IS NULL`, id.String())

	s, err := scanServer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, supervisorerr.New(supervisorerr.KindNotFound, id.String(), "server not found")
	}
	return s, err
}

// ListServers returns every non-deleted Server, ordered by creation time.
func (db *DB) ListServers(ctx context.Context) ([]*models.Server, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT
		id, name, owner_id, version, type, directory, port, memory_min_mb, memory_max_mb,
		max_players, status, rcon_password_enc, deleted_at, created_at, updated_at
		FROM servers WHERE deleted_at IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query servers: %w", err)
	}
	defer rows.Close()

	var out []*models.Server
	for rows.Next() {
		s, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpdateServerStatus persists the last-known status for a server (§3.1).
// The in-memory ServerRecord is authoritative while the supervisor runs;
// this write keeps the durable row from drifting too far for the
// Reconciler to use at boot.
func (db *DB) UpdateServerStatus(ctx context.Context, id uuid.UUID, status models.PersistedStatus) error {
	return withRetry(ctx, func() error {
		res, err := db.conn.ExecContext(ctx,
			`UPDATE servers SET status = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
			string(status), time.Now(), id.String())
		if err != nil {
			return fmt.Errorf("update server status: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return supervisorerr.New(supervisorerr.KindNotFound, id.String(), "server not found")
		}
		return nil
	})
}

// DeleteServer soft-deletes a Server row; BackupSchedule rows for it
// cascade-delete (§3.1).
func (db *DB) DeleteServer(ctx context.Context, id uuid.UUID) error {
	return withRetry(ctx, func() error {
		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx,
			`UPDATE servers SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
			time.Now(), time.Now(), id.String())
		if err != nil {
			return fmt.Errorf("soft delete server: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return supervisorerr.New(supervisorerr.KindNotFound, id.String(), "server not found")
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM backup_schedules WHERE server_id = ?`, id.String()); err != nil {
			return fmt.Errorf("cascade delete backup schedules: %w", err)
		}

		return tx.Commit()
	})
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanServer(row rowScanner) (*models.Server, error) {
	var (
		s         models.Server
		id        string
		typ       string
		status    string
		rconEnc   sql.NullString
		deletedAt sql.NullTime
	)
	if err := row.Scan(&id, &s.Name, &s.OwnerID, &s.Version, &typ, &s.Directory, &s.Port,
		&s.MemoryMinMB, &s.MemoryMaxMB, &s.MaxPlayers, &status, &rconEnc, &deletedAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse server id: %w", err)
	}
	s.ID = parsed
	s.Type = models.ServerType(typ)
	s.Status = models.PersistedStatus(status)
	if rconEnc.Valid {
		s.RconPasswordEnc = rconEnc.String
	}
	if deletedAt.Valid {
		s.DeletedAt = &deletedAt.Time
	}
	return &s, nil
}

// nullableString converts an empty string to a SQL NULL so an unset
// RconPasswordEnc doesn't persist as an empty-string sentinel.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
