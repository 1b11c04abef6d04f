// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

// Package models defines the durable and ephemeral data structures shared
// across the supervisor, database, and backup packages.
package models

import (
	"time"

	"github.com/google/uuid"
)

// ServerType names the distribution a Server runs.
type ServerType string

const (
	ServerTypeVanilla ServerType = "vanilla"
	ServerTypePaper   ServerType = "paper"
	ServerTypeSpigot  ServerType = "spigot"
	ServerTypeForge   ServerType = "forge"
	ServerTypeFabric  ServerType = "fabric"
)

// PersistedStatus is the last known status written to the servers table.
// It lags the in-memory ServerRecord.Status, which is authoritative while
// the supervisor is running (§3.1/§3.4).
type PersistedStatus string

const (
	PersistedStopped  PersistedStatus = "stopped"
	PersistedStarting PersistedStatus = "starting"
	PersistedRunning  PersistedStatus = "running"
	PersistedStopping PersistedStatus = "stopping"
	PersistedError    PersistedStatus = "error"
)

// Server is the durable record backing one managed Minecraft server (§3.1).
//
// Invariants enforced by the database layer: Port is unique among rows
// with DeletedAt == nil; Directory is unique among all rows.
type Server struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	OwnerID     string          `json:"owner_id"`
	Version     string          `json:"version"`
	Type        ServerType      `json:"type"`
	Directory   string          `json:"directory"`
	Port        int             `json:"port"`
	MemoryMinMB int             `json:"memory_min_mb"`
	MemoryMaxMB int             `json:"memory_max_mb"`
	MaxPlayers  int             `json:"max_players"`
	Status      PersistedStatus `json:"status"`
	// RconPasswordEnc is the AES-256-GCM-sealed RCON password cached from
	// this server's server.properties (§6.3) so the Reconciler and
	// BackupScheduler can check RCON availability without re-reading the
	// file from disk. Never serialized; decrypt via
	// config.CredentialEncryptor before use.
	RconPasswordEnc string     `json:"-"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// BackupSchedule is 1:1 with a Server and cascade-deletes with it (§3.1, §4.7).
type BackupSchedule struct {
	ID              uuid.UUID  `json:"id"`
	ServerID        uuid.UUID  `json:"server_id"`
	IntervalHours   int        `json:"interval_hours" validate:"min=1,max=168"`
	MaxBackups      int        `json:"max_backups" validate:"min=1,max=30"`
	Enabled         bool       `json:"enabled"`
	OnlyWhenRunning bool       `json:"only_when_running"`
	LastBackupAt    *time.Time `json:"last_backup_at,omitempty"`
	NextBackupAt    time.Time  `json:"next_backup_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ScheduleAction enumerates BackupScheduleLog event kinds.
type ScheduleAction string

const (
	ScheduleActionCreated  ScheduleAction = "created"
	ScheduleActionUpdated  ScheduleAction = "updated"
	ScheduleActionDeleted  ScheduleAction = "deleted"
	ScheduleActionExecuted ScheduleAction = "executed"
	ScheduleActionSkipped  ScheduleAction = "skipped"
)

// BackupScheduleLog is an append-only audit trail of schedule activity (§3.1).
type BackupScheduleLog struct {
	ID         uuid.UUID      `json:"id"`
	ScheduleID uuid.UUID      `json:"schedule_id"`
	Action     ScheduleAction `json:"action"`
	Reason     string         `json:"reason,omitempty"`
	Actor      *string        `json:"actor,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// BackupType distinguishes operator-triggered backups from scheduled ones.
type BackupType string

const (
	BackupTypeManual    BackupType = "manual"
	BackupTypeScheduled BackupType = "scheduled"
)

// BackupStatus is the terminal outcome of an archive attempt.
type BackupStatus string

const (
	BackupStatusComplete BackupStatus = "complete"
	BackupStatusFailed   BackupStatus = "failed"
)

// Backup is archive metadata for one backup attempt (§3.1).
type Backup struct {
	ID        uuid.UUID    `json:"id"`
	ServerID  uuid.UUID    `json:"server_id"`
	Name      string       `json:"name"`
	Path      string       `json:"path"`
	SizeBytes int64        `json:"size_bytes"`
	Type      BackupType   `json:"type"`
	Status    BackupStatus `json:"status"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}
