// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

package supervisor

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"
)

// serverProperties is a minimal key=value reader/writer for
// server.properties (§6.1, §6.3). Minecraft's own format is line-
// oriented text, CRLF tolerant, with '#' comment lines — there is no
// third-party properties-file library in the retrieval pack, and the
// format is too small (a handful of keys this system ever reads or
// writes) to justify pulling one in; see DESIGN.md.
type serverProperties map[string]string

// readServerProperties parses path, ignoring blank lines and comments.
func readServerProperties(path string) (serverProperties, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	props := make(serverProperties)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		props[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return props, sc.Err()
}

// writeServerProperties writes props to path, keys sorted for
// deterministic output.
func writeServerProperties(path string, props serverProperties) error {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("#Minecraft server properties, managed by forgekeeper\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, props[k])
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// writeEULA writes eula.txt accepting the Mojang EULA on the operator's
// behalf — creating a server through this supervisor is itself the
// acceptance (§4.5 Create).
func writeEULA(path string) error {
	return os.WriteFile(path, []byte("#Generated by forgekeeper\neula=true\n"), 0o644)
}

// generateRconPassword returns a random hex credential for a newly
// created server's RCON listener.
func generateRconPassword() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate rcon password: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// rconPortFor derives the RCON listener port from the game port using
// the convention Minecraft server templates commonly ship with
// (game port + 10), avoiding a second allocator pass for a port that
// only this supervisor and the adjacent JVM ever talk over loopback.
func rconPortFor(gamePort int) int {
	return gamePort + 10
}
