// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/forgekeeper/forgekeeper/internal/logging"
	"github.com/forgekeeper/forgekeeper/internal/models"
	"github.com/forgekeeper/forgekeeper/internal/supervisorerr"
)

// DB is the persistence surface Manager and Scheduler need. Satisfied by
// *internal/database.DB.
type DB interface {
	GetServer(ctx context.Context, id uuid.UUID) (*models.Server, error)

	CreateBackupSchedule(ctx context.Context, sched *models.BackupSchedule, actor string) error
	GetBackupSchedule(ctx context.Context, serverID uuid.UUID) (*models.BackupSchedule, error)
	ListEnabledBackupSchedules(ctx context.Context) ([]*models.BackupSchedule, error)
	UpdateBackupSchedule(ctx context.Context, sched *models.BackupSchedule, actor string) error
	AdvanceBackupSchedule(ctx context.Context, scheduleID uuid.UUID, lastBackupAt *time.Time, nextBackupAt time.Time, action models.ScheduleAction, reason string) error
	DeleteBackupSchedule(ctx context.Context, id uuid.UUID, actor string) error
	ListBackupScheduleLogs(ctx context.Context, scheduleID uuid.UUID) ([]*models.BackupScheduleLog, error)

	CreateBackup(ctx context.Context, b *models.Backup) error
	ListBackups(ctx context.Context, serverID uuid.UUID) ([]*models.Backup, error)
	ListScheduledBackups(ctx context.Context, serverID uuid.UUID) ([]*models.Backup, error)
	DeleteBackup(ctx context.Context, id uuid.UUID) error
}

// Manager creates, lists, prunes, and restores per-server archives.
type Manager struct {
	db          DB
	backupsRoot string
}

// NewManager constructs a Manager. backupsRoot is the directory archives
// are written under, one subdirectory per server (§6.6 BACKUPS_ROOT).
func NewManager(db DB, backupsRoot string) *Manager {
	return &Manager{db: db, backupsRoot: backupsRoot}
}

func (m *Manager) serverBackupDir(serverID uuid.UUID) string {
	return filepath.Join(m.backupsRoot, serverID.String())
}

// CreateScheduled archives server's directory as a scheduled backup and
// prunes older scheduled backups beyond its schedule's max_backups
// (§4.7 step 3). Called only by Scheduler's tick path.
func (m *Manager) CreateScheduled(ctx context.Context, server *models.Server, maxBackups int) (*models.Backup, error) {
	b, err := m.createArchive(ctx, server, models.BackupTypeScheduled)
	if err != nil {
		return nil, err
	}
	if err := m.pruneScheduled(ctx, server.ID, maxBackups); err != nil {
		logging.Warn().Err(err).Str("server_id", server.ID.String()).Msg("backup: retention prune failed")
	}
	return b, nil
}

// CreateManual archives server's directory as an operator-triggered
// backup, outside of any schedule (§9 supplemented feature).
func (m *Manager) CreateManual(ctx context.Context, serverID uuid.UUID) (*models.Backup, error) {
	server, err := m.db.GetServer(ctx, serverID)
	if err != nil {
		return nil, err
	}
	return m.createArchive(ctx, server, models.BackupTypeManual)
}

func (m *Manager) createArchive(ctx context.Context, server *models.Server, backupType models.BackupType) (*models.Backup, error) {
	dir := m.serverBackupDir(server.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}

	name := fmt.Sprintf("%s-%s-%s.tar.gz", server.ID.String(), backupType, time.Now().UTC().Format("20060102T150405Z"))
	path := filepath.Join(dir, name)

	b := &models.Backup{
		ID:       uuid.New(),
		ServerID: server.ID,
		Name:     name,
		Path:     path,
		Type:     backupType,
	}

	size, archiveErr := createArchive(server.Directory, path)
	if archiveErr != nil {
		b.Status = models.BackupStatusFailed
		b.Error = archiveErr.Error()
		logging.Error().Err(archiveErr).Str("server_id", server.ID.String()).Msg("backup: archive creation failed")
	} else {
		b.Status = models.BackupStatusComplete
		b.SizeBytes = size
	}

	if err := m.db.CreateBackup(ctx, b); err != nil {
		return nil, fmt.Errorf("persist backup metadata: %w", err)
	}
	if archiveErr != nil {
		return b, archiveErr
	}
	return b, nil
}

// pruneScheduled deletes the oldest scheduled backups for serverID beyond
// maxBackups, leaving manual backups untouched (§9's resolution of the
// open question on shrinking max_backups).
func (m *Manager) pruneScheduled(ctx context.Context, serverID uuid.UUID, maxBackups int) error {
	if maxBackups <= 0 {
		return nil
	}
	scheduled, err := m.db.ListScheduledBackups(ctx, serverID)
	if err != nil {
		return fmt.Errorf("list scheduled backups: %w", err)
	}
	if len(scheduled) <= maxBackups {
		return nil
	}

	excess := len(scheduled) - maxBackups
	for _, b := range scheduled[:excess] {
		if err := os.Remove(b.Path); err != nil && !os.IsNotExist(err) {
			logging.Warn().Err(err).Str("backup_id", b.ID.String()).Msg("backup: failed to remove pruned archive file")
		}
		if err := m.db.DeleteBackup(ctx, b.ID); err != nil {
			logging.Warn().Err(err).Str("backup_id", b.ID.String()).Msg("backup: failed to delete pruned backup row")
		}
	}
	return nil
}

// List returns every backup recorded for a server, newest first.
func (m *Manager) List(ctx context.Context, serverID uuid.UUID) ([]*models.Backup, error) {
	return m.db.ListBackups(ctx, serverID)
}

// Restore extracts backupID's archive over targetServerID's directory.
// The target server must be Stopped; the caller (the Supervisor-adjacent
// API layer) is responsible for enforcing that before invoking this, since
// Manager has no view of live process state (§9 supplemented feature).
func (m *Manager) Restore(ctx context.Context, backupID, targetServerID uuid.UUID) error {
	backups, err := m.db.ListBackups(ctx, targetServerID)
	if err != nil {
		return err
	}
	var backup *models.Backup
	for _, b := range backups {
		if b.ID == backupID {
			backup = b
			break
		}
	}
	if backup == nil {
		return supervisorerr.New(supervisorerr.KindNotFound, targetServerID.String(), "backup not found for server")
	}
	if backup.Status != models.BackupStatusComplete {
		return supervisorerr.New(supervisorerr.KindInternal, targetServerID.String(), "cannot restore a non-complete backup")
	}

	server, err := m.db.GetServer(ctx, targetServerID)
	if err != nil {
		return err
	}

	if err := extractArchive(backup.Path, server.Directory); err != nil {
		return fmt.Errorf("extract backup %s: %w", backupID, err)
	}
	logging.Info().Str("server_id", targetServerID.String()).Str("backup_id", backupID.String()).Msg("backup: restored")
	return nil
}
