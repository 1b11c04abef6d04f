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

// CreateBackupSchedule inserts a BackupSchedule row and its "created" audit
// log entry in one transaction (§4.7's audit semantics).
func (db *DB) CreateBackupSchedule(ctx context.Context, sched *models.BackupSchedule, actor string) error {
	return withRetry(ctx, func() error {
		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		now := time.Now()
		sched.CreatedAt, sched.UpdatedAt = now, now
		if sched.ID == uuid.Nil {
			sched.ID = uuid.New()
		}
		if sched.NextBackupAt.IsZero() {
			sched.NextBackupAt = now.Add(time.Duration(sched.IntervalHours) * time.Hour)
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO backup_schedules
			(id, server_id, interval_hours, max_backups, enabled, only_when_running, last_backup_at, next_backup_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sched.ID.String(), sched.ServerID.String(), sched.IntervalHours, sched.MaxBackups,
			sched.Enabled, sched.OnlyWhenRunning, sched.LastBackupAt, sched.NextBackupAt, sched.CreatedAt, sched.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert backup schedule: %w", err)
		}

		if err := appendScheduleLog(ctx, tx, sched.ID, models.ScheduleActionCreated, "", actor); err != nil {
			return err
		}

		return tx.Commit()
	})
}

// GetBackupSchedule loads a schedule by server id.
func (db *DB) GetBackupSchedule(ctx context.Context, serverID uuid.UUID) (*models.BackupSchedule, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT
		id, server_id, interval_hours, max_backups, enabled, only_when_running, last_backup_at, next_backup_at, created_at, updated_at
		FROM backup_schedules WHERE server_id = ?`, serverID.String())

	sched, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, supervisorerr.New(supervisorerr.KindNotFound, serverID.String(), "backup schedule not found")
	}
	return sched, err
}

// ListDueBackupSchedules returns every enabled schedule whose next_backup_at
// has elapsed, for the scheduler's startup cache load and periodic refresh.
func (db *DB) ListEnabledBackupSchedules(ctx context.Context) ([]*models.BackupSchedule, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT
		id, server_id, interval_hours, max_backups, enabled, only_when_running, last_backup_at, next_backup_at, created_at, updated_at
		FROM backup_schedules WHERE enabled = true`)
	if err != nil {
		return nil, fmt.Errorf("query backup schedules: %w", err)
	}
	defer rows.Close()

	var out []*models.BackupSchedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sched)
	}
	return out, rows.Err()
}

// UpdateBackupSchedule persists mutated schedule fields and appends an
// "updated" log entry (or a caller-chosen action, e.g. "executed"/"skipped"
// via AdvanceBackupSchedule).
func (db *DB) UpdateBackupSchedule(ctx context.Context, sched *models.BackupSchedule, actor string) error {
	return withRetry(ctx, func() error {
		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		sched.UpdatedAt = time.Now()
		res, err := tx.ExecContext(ctx, `UPDATE backup_schedules SET
			interval_hours = ?, max_backups = ?, enabled = ?, only_when_running = ?,
			last_backup_at = ?, next_backup_at = ?, updated_at = ?
			WHERE id = ?`,
			sched.IntervalHours, sched.MaxBackups, sched.Enabled, sched.OnlyWhenRunning,
			sched.LastBackupAt, sched.NextBackupAt, sched.UpdatedAt, sched.ID.String())
		if err != nil {
			return fmt.Errorf("update backup schedule: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return supervisorerr.New(supervisorerr.KindNotFound, sched.ServerID.String(), "backup schedule not found")
		}

		if err := appendScheduleLog(ctx, tx, sched.ID, models.ScheduleActionUpdated, "", actor); err != nil {
			return err
		}

		return tx.Commit()
	})
}

// AdvanceBackupSchedule is the scheduler's tick-path write: it updates
// last_backup_at/next_backup_at and appends an executed/skipped log entry
// atomically, per §4.7 step 3/4.
func (db *DB) AdvanceBackupSchedule(ctx context.Context, scheduleID uuid.UUID, lastBackupAt *time.Time, nextBackupAt time.Time, action models.ScheduleAction, reason string) error {
	return withRetry(ctx, func() error {
		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		_, err = tx.ExecContext(ctx, `UPDATE backup_schedules SET
			last_backup_at = COALESCE(?, last_backup_at), next_backup_at = ?, updated_at = ?
			WHERE id = ?`, lastBackupAt, nextBackupAt, time.Now(), scheduleID.String())
		if err != nil {
			return fmt.Errorf("advance backup schedule: %w", err)
		}

		if err := appendScheduleLog(ctx, tx, scheduleID, action, reason, ""); err != nil {
			return err
		}

		return tx.Commit()
	})
}

// DeleteBackupSchedule removes a schedule and appends a "deleted" log entry
// before the schedule row disappears (the log's schedule_id foreign key
// still resolves since the log table is append-only and read independently).
func (db *DB) DeleteBackupSchedule(ctx context.Context, id uuid.UUID, actor string) error {
	return withRetry(ctx, func() error {
		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if err := appendScheduleLog(ctx, tx, id, models.ScheduleActionDeleted, "", actor); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM backup_schedules WHERE id = ?`, id.String())
		if err != nil {
			return fmt.Errorf("delete backup schedule: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return supervisorerr.New(supervisorerr.KindNotFound, "", "backup schedule not found")
		}

		return tx.Commit()
	})
}

// ListBackupScheduleLogs returns the audit trail for a schedule, newest first.
func (db *DB) ListBackupScheduleLogs(ctx context.Context, scheduleID uuid.UUID) ([]*models.BackupScheduleLog, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT
		id, schedule_id, action, reason, actor, created_at
		FROM backup_schedule_logs WHERE schedule_id = ? ORDER BY created_at DESC`, scheduleID.String())
	if err != nil {
		return nil, fmt.Errorf("query backup schedule logs: %w", err)
	}
	defer rows.Close()

	var out []*models.BackupScheduleLog
	for rows.Next() {
		var (
			l       models.BackupScheduleLog
			id, sid string
			action  string
			reason  sql.NullString
			actor   sql.NullString
		)
		if err := rows.Scan(&id, &sid, &action, &reason, &actor, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, err
		}
		l.ScheduleID, err = uuid.Parse(sid)
		if err != nil {
			return nil, err
		}
		l.Action = models.ScheduleAction(action)
		l.Reason = reason.String
		if actor.Valid {
			l.Actor = &actor.String
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

func appendScheduleLog(ctx context.Context, tx *sql.Tx, scheduleID uuid.UUID, action models.ScheduleAction, reason, actor string) error {
	var actorPtr interface{}
	if actor != "" {
		actorPtr = actor
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO backup_schedule_logs (id, schedule_id, action, reason, actor, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), scheduleID.String(), string(action), reason, actorPtr, time.Now())
	if err != nil {
		return fmt.Errorf("append schedule log: %w", err)
	}
	return nil
}

func scanSchedule(row rowScanner) (*models.BackupSchedule, error) {
	var (
		sched        models.BackupSchedule
		id, serverID string
		lastBackupAt sql.NullTime
	)
	if err := row.Scan(&id, &serverID, &sched.IntervalHours, &sched.MaxBackups, &sched.Enabled,
		&sched.OnlyWhenRunning, &lastBackupAt, &sched.NextBackupAt, &sched.CreatedAt, &sched.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	sched.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	sched.ServerID, err = uuid.Parse(serverID)
	if err != nil {
		return nil, err
	}
	if lastBackupAt.Valid {
		sched.LastBackupAt = &lastBackupAt.Time
	}
	return &sched, nil
}
