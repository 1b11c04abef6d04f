// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

// Package process implements ProcessLauncher (§4.1): it starts a JVM
// detached from the supervisor's own session, redirects its stdio to log
// files before any descriptor cleanup, and writes the resulting PID to an
// atomically-renamed pid file.
package process
