// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order
// of priority. The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/forgekeeper/config.yaml",
	"/etc/forgekeeper/config.yml",
}

// ConfigPathEnvVar overrides the config file search with an explicit path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with every field set to its documented
// default (§6.6).
func defaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			ServersRoot: "/data/servers",
			BackupsRoot: "/data/backups",
		},
		Java: JavaConfig{},
		Timeouts: TimeoutsConfig{
			StartupSeconds:        180,
			GracefulStopSeconds:   30,
			RconConnectSeconds:    5,
			RconCallSeconds:       10,
			ReconcileIntervalSecs: 15,
		},
		Scheduler: SchedulerConfig{TickSeconds: 30},
		Record: RecordConfig{
			LogRingSize:     500,
			SubscriberQueue: 128,
		},
		Port: PortConfig{
			RangeStart: 25565,
			RangeEnd:   25700,
		},
		Rcon:     RconConfig{EnabledByDefault: false},
		Database: DatabaseConfig{Path: "/data/forgekeeper.duckdb"},
		Server:   ServerConfig{Host: "0.0.0.0", Port: 8080},
		Security: SecurityConfig{},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// envMap maps the literal environment variable names from §6.6 to their
// koanf dotted path. Names not present here fall back to a generic
// lowercase-with-underscore transform.
var envMap = map[string]string{
	"SERVERS_ROOT":                  "paths.servers_root",
	"BACKUPS_ROOT":                  "paths.backups_root",
	"JAVA_8_PATH":                   "java.java8_path",
	"JAVA_16_PATH":                  "java.java16_path",
	"JAVA_17_PATH":                  "java.java17_path",
	"JAVA_21_PATH":                  "java.java21_path",
	"JAVA_DISCOVERY_PATHS":          "java.discovery_paths",
	"STARTUP_TIMEOUT_SECONDS":       "timeouts.startup_seconds",
	"GRACEFUL_STOP_TIMEOUT_SECONDS": "timeouts.graceful_stop_seconds",
	"RCON_CONNECT_TIMEOUT_SECONDS":  "timeouts.rcon_connect_seconds",
	"RCON_CALL_TIMEOUT_SECONDS":     "timeouts.rcon_call_seconds",
	"RECONCILE_INTERVAL_SECONDS":    "timeouts.reconcile_interval_seconds",
	"SCHEDULER_TICK_SECONDS":        "scheduler.tick_seconds",
	"LOG_RING_SIZE":                 "record.log_ring_size",
	"SUBSCRIBER_QUEUE":              "record.subscriber_queue",
	"PORT_RANGE_START":              "port.range_start",
	"PORT_RANGE_END":                "port.range_end",
	"RCON_ENABLED_BY_DEFAULT":       "rcon.enabled_by_default",
	"DATABASE_PATH":                 "database.path",
	"HTTP_HOST":                     "server.host",
	"HTTP_PORT":                     "server.port",
	"MASTER_SECRET":                 "security.master_secret",
	"LOG_LEVEL":                     "logging.level",
	"LOG_FORMAT":                    "logging.format",
	"LOG_CALLER":                    "logging.caller",
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config File: optional YAML config file (if one is found)
//  3. Environment Variables: override any setting, highest priority
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file, checking the override
// environment variable first, then the default search paths.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps a raw environment variable name to its koanf
// dotted config path, consulting envMap first and falling back to a
// generic lowercase transform for anything unrecognized.
func envTransformFunc(key string) string {
	if path, ok := envMap[key]; ok {
		return path
	}
	return strings.ToLower(key)
}
