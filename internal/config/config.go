// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration loaded from environment
// variables and an optional config file. See §6.6 for the authoritative
// list of recognized environment variables.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: built-in sensible defaults for every field
//  2. Config File: optional YAML file (config.yaml) for persistent settings
//  3. Environment Variables: override any setting, highest priority
//
// Config is immutable after Load() and safe for concurrent read access.
type Config struct {
	Paths     PathsConfig     `koanf:"paths"`
	Java      JavaConfig      `koanf:"java"`
	Timeouts  TimeoutsConfig  `koanf:"timeouts"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Record    RecordConfig    `koanf:"record"`
	Port      PortConfig      `koanf:"port"`
	Rcon      RconConfig      `koanf:"rcon"`
	Database  DatabaseConfig  `koanf:"database"`
	Server    ServerConfig    `koanf:"server"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// PathsConfig holds the base directories the supervisor reads and writes.
type PathsConfig struct {
	// ServersRoot is the parent directory of every <server_id>/ tree (§6.1).
	ServersRoot string `koanf:"servers_root"`
	// BackupsRoot is where backup archives are written.
	BackupsRoot string `koanf:"backups_root"`
}

// JavaConfig holds Java binary resolution settings (§4.8).
type JavaConfig struct {
	Java8Path      string `koanf:"java8_path"`
	Java16Path     string `koanf:"java16_path"`
	Java17Path     string `koanf:"java17_path"`
	Java21Path     string `koanf:"java21_path"`
	DiscoveryPaths string `koanf:"discovery_paths"`
}

// TimeoutsConfig holds every explicit timeout named in §5.
type TimeoutsConfig struct {
	StartupSeconds        int `koanf:"startup_seconds"`
	GracefulStopSeconds   int `koanf:"graceful_stop_seconds"`
	RconConnectSeconds    int `koanf:"rcon_connect_seconds"`
	RconCallSeconds       int `koanf:"rcon_call_seconds"`
	ReconcileIntervalSecs int `koanf:"reconcile_interval_seconds"`
}

func (t TimeoutsConfig) Startup() time.Duration      { return time.Duration(t.StartupSeconds) * time.Second }
func (t TimeoutsConfig) GracefulStop() time.Duration { return time.Duration(t.GracefulStopSeconds) * time.Second }
func (t TimeoutsConfig) RconConnect() time.Duration  { return time.Duration(t.RconConnectSeconds) * time.Second }
func (t TimeoutsConfig) RconCall() time.Duration     { return time.Duration(t.RconCallSeconds) * time.Second }
func (t TimeoutsConfig) ReconcileInterval() time.Duration {
	return time.Duration(t.ReconcileIntervalSecs) * time.Second
}

// SchedulerConfig holds the backup scheduler's tick cadence (§4.7).
type SchedulerConfig struct {
	TickSeconds int `koanf:"tick_seconds"`
}

func (s SchedulerConfig) Tick() time.Duration { return time.Duration(s.TickSeconds) * time.Second }

// RecordConfig holds ServerRecord sizing (§3.2, §4.9).
type RecordConfig struct {
	LogRingSize     int `koanf:"log_ring_size"`
	SubscriberQueue int `koanf:"subscriber_queue"`
}

// PortConfig holds the allocator's scan range (§4.8).
type PortConfig struct {
	RangeStart int `koanf:"range_start"`
	RangeEnd   int `koanf:"range_end"`
}

// RconConfig controls whether newly created servers get RCON turned on
// in their generated server.properties. Per §9's resolution, this
// defaults to off; an operator opts in explicitly (§4.5 Create).
type RconConfig struct {
	EnabledByDefault bool `koanf:"enabled_by_default"`
}

// DatabaseConfig holds the embedded DuckDB file location.
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// ServerConfig holds the thin external HTTP/WebSocket demo boundary.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// SecurityConfig holds the master secret used to derive the at-rest
// RCON credential encryption key (internal/config/encryption.go).
type SecurityConfig struct {
	MasterSecret string `koanf:"master_secret"`
}

// LoggingConfig mirrors internal/logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks that required configuration is present and internally
// consistent, per the invariants named throughout §3-§6.
func (c *Config) Validate() error {
	if c.Paths.ServersRoot == "" {
		return fmt.Errorf("paths.servers_root (SERVERS_ROOT) must not be empty")
	}
	if c.Paths.BackupsRoot == "" {
		return fmt.Errorf("paths.backups_root (BACKUPS_ROOT) must not be empty")
	}
	if c.Timeouts.StartupSeconds <= 0 {
		return fmt.Errorf("timeouts.startup_seconds must be positive")
	}
	if c.Timeouts.GracefulStopSeconds <= 0 {
		return fmt.Errorf("timeouts.graceful_stop_seconds must be positive")
	}
	if c.Timeouts.ReconcileIntervalSecs <= 0 {
		return fmt.Errorf("timeouts.reconcile_interval_seconds must be positive")
	}
	if c.Scheduler.TickSeconds <= 0 {
		return fmt.Errorf("scheduler.tick_seconds must be positive")
	}
	if c.Record.LogRingSize <= 0 {
		return fmt.Errorf("record.log_ring_size must be positive")
	}
	if c.Record.SubscriberQueue <= 0 {
		return fmt.Errorf("record.subscriber_queue must be positive")
	}
	if c.Port.RangeStart <= 0 || c.Port.RangeEnd <= c.Port.RangeStart {
		return fmt.Errorf("port.range_start/range_end must describe a non-empty range")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	return nil
}
