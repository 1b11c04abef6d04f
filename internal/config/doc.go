// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

// Package config loads and validates forgekeeper's configuration.
//
// # Quick Start
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal("failed to load config:", err)
//	}
//
// # Precedence
//
// Defaults < config file (config.yaml) < environment variables. See
// envMap in koanf.go for the exact environment variable names recognized
// (§6.6: SERVERS_ROOT, BACKUPS_ROOT, JAVA_*_PATH, *_TIMEOUT_SECONDS, and
// so on).
//
// # Secrets
//
// RCON passwords cached on a Server row are encrypted at rest with
// CredentialEncryptor (encryption.go), keyed from MASTER_SECRET.
package config
