// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

package backup

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forgekeeper/forgekeeper/internal/eventbus"
	"github.com/forgekeeper/forgekeeper/internal/logging"
	"github.com/forgekeeper/forgekeeper/internal/metrics"
	"github.com/forgekeeper/forgekeeper/internal/models"
	"github.com/forgekeeper/forgekeeper/internal/record"
	"github.com/forgekeeper/forgekeeper/internal/supervisorerr"
	"github.com/forgekeeper/forgekeeper/internal/validation"
)

const defaultTick = 30 * time.Second

// StatusChecker reports a server's live status. Satisfied by
// *internal/supervisor.Supervisor.
type StatusChecker interface {
	Status(id string) (record.Snapshot, error)
}

// Scheduler is a suture.Service that wakes on a fixed tick and runs every
// due, enabled BackupSchedule (§4.7).
type Scheduler struct {
	db      DB
	sup     StatusChecker
	manager *Manager
	tick    time.Duration
	bus     *eventbus.EventBus

	mu    sync.Mutex
	cache map[string]*models.BackupSchedule
}

// NewScheduler constructs a Scheduler. tick <= 0 falls back to 30s.
// bus may be nil, in which case completed backups are never published
// to subscribers (the scheduler still runs and advances schedules).
func NewScheduler(db DB, sup StatusChecker, manager *Manager, tick time.Duration, bus *eventbus.EventBus) *Scheduler {
	if tick <= 0 {
		tick = defaultTick
	}
	return &Scheduler{db: db, sup: sup, manager: manager, tick: tick, bus: bus, cache: make(map[string]*models.BackupSchedule)}
}

func (s *Scheduler) String() string { return "backup-scheduler" }

// Serve loads the cache from the database, then runs a pass every tick
// until ctx is canceled.
func (s *Scheduler) Serve(ctx context.Context) error {
	if err := s.loadCache(ctx); err != nil {
		logging.Warn().Err(err).Msg("backup scheduler: initial cache load failed")
	}

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runPass(ctx)
		}
	}
}

func (s *Scheduler) loadCache(ctx context.Context) error {
	schedules, err := s.db.ListEnabledBackupSchedules(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*models.BackupSchedule, len(schedules))
	for _, sched := range schedules {
		s.cache[sched.ServerID.String()] = sched
	}
	return nil
}

func (s *Scheduler) runPass(ctx context.Context) {
	now := time.Now()
	s.mu.Lock()
	due := make([]*models.BackupSchedule, 0, len(s.cache))
	for _, sched := range s.cache {
		if sched.Enabled && !sched.NextBackupAt.After(now) {
			due = append(due, sched)
		}
	}
	s.mu.Unlock()

	for _, sched := range due {
		s.runOne(ctx, sched)
	}
}

func (s *Scheduler) runOne(ctx context.Context, sched *models.BackupSchedule) {
	interval := time.Duration(sched.IntervalHours) * time.Hour
	next := time.Now().Add(interval)

	server, err := s.db.GetServer(ctx, sched.ServerID)
	if err != nil || server.DeletedAt != nil {
		s.advance(ctx, sched, nil, next, models.ScheduleActionSkipped, "server missing or deleted")
		metrics.RecordBackupSkipped("server missing or deleted")
		return
	}
	if !sched.Enabled {
		s.advance(ctx, sched, nil, next, models.ScheduleActionSkipped, "disabled")
		metrics.RecordBackupSkipped("disabled")
		return
	}

	if sched.OnlyWhenRunning {
		snap, err := s.sup.Status(sched.ServerID.String())
		if err != nil || snap.Status != models.StatusRunning {
			s.advance(ctx, sched, nil, next, models.ScheduleActionSkipped, "not running")
			metrics.RecordBackupSkipped("not running")
			return
		}
	}

	b, err := s.manager.CreateScheduled(ctx, server, sched.MaxBackups)
	now := time.Now()
	if err != nil {
		s.advance(ctx, sched, nil, next, models.ScheduleActionExecuted, "error="+err.Error())
		metrics.RecordBackupSkipped("archive error")
		s.publishBackup(sched.ServerID.String(), "", "failed", 0, err.Error())
		return
	}
	s.advance(ctx, sched, &now, next, models.ScheduleActionExecuted, "")
	metrics.RecordBackupExecuted()
	s.publishBackup(sched.ServerID.String(), b.ID.String(), "completed", b.SizeBytes, "")
}

func (s *Scheduler) publishBackup(serverID, backupID, status string, size int64, errMsg string) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishBackup(models.BackupCompleted{
		ServerID: serverID,
		BackupID: backupID,
		Status:   status,
		Size:     size,
		Error:    errMsg,
	}); err != nil {
		logging.Warn().Err(err).Msg("backup scheduler: failed to publish backup completion event")
	}
}

func (s *Scheduler) advance(ctx context.Context, sched *models.BackupSchedule, lastBackupAt *time.Time, next time.Time, action models.ScheduleAction, reason string) {
	if err := s.db.AdvanceBackupSchedule(ctx, sched.ID, lastBackupAt, next, action, reason); err != nil {
		logging.Warn().Err(err).Str("schedule_id", sched.ID.String()).Msg("backup scheduler: failed to advance schedule")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cached, ok := s.cache[sched.ServerID.String()]; ok && cached.ID == sched.ID {
		if lastBackupAt != nil {
			cached.LastBackupAt = lastBackupAt
		}
		cached.NextBackupAt = next
	}
}

// CreateSchedule persists a new BackupSchedule and adds it to the cache.
func (s *Scheduler) CreateSchedule(ctx context.Context, sched *models.BackupSchedule, actor string) error {
	if err := validateSchedule(sched); err != nil {
		return err
	}
	if err := s.db.CreateBackupSchedule(ctx, sched, actor); err != nil {
		return err
	}
	s.mu.Lock()
	s.cache[sched.ServerID.String()] = sched
	s.mu.Unlock()
	return nil
}

// UpdateSchedule persists mutated schedule fields and replaces the cache
// entry atomically (§4.7's cache coherence requirement).
func (s *Scheduler) UpdateSchedule(ctx context.Context, sched *models.BackupSchedule, actor string) error {
	if err := validateSchedule(sched); err != nil {
		return err
	}
	if err := s.db.UpdateBackupSchedule(ctx, sched, actor); err != nil {
		return err
	}
	s.mu.Lock()
	s.cache[sched.ServerID.String()] = sched
	s.mu.Unlock()
	return nil
}

// DeleteSchedule removes a schedule and its cache entry.
func (s *Scheduler) DeleteSchedule(ctx context.Context, scheduleID, serverID uuid.UUID, actor string) error {
	if err := s.db.DeleteBackupSchedule(ctx, scheduleID, actor); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.cache, serverID.String())
	s.mu.Unlock()
	return nil
}

// Schedule returns the cached schedule for a server, if any.
func (s *Scheduler) Schedule(serverID string) (*models.BackupSchedule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sched, ok := s.cache[serverID]
	return sched, ok
}

func validateSchedule(sched *models.BackupSchedule) error {
	if err := validation.Struct(sched); err != nil {
		return supervisorerr.Wrap(supervisorerr.KindInternal, sched.ServerID.String(), "invalid backup schedule", err)
	}
	return nil
}
