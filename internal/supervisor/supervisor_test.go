// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

package supervisor

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/forgekeeper/forgekeeper/internal/config"
	"github.com/forgekeeper/forgekeeper/internal/eventbus"
	"github.com/forgekeeper/forgekeeper/internal/logpump"
	"github.com/forgekeeper/forgekeeper/internal/models"
	"github.com/forgekeeper/forgekeeper/internal/portalloc"
	"github.com/forgekeeper/forgekeeper/internal/process"
)

// fakeDB is an in-memory ServerDB double, standing in for
// internal/database.DB the same way MockService stands in for a real
// suture.Service.
type fakeDB struct {
	mu      sync.Mutex
	servers map[uuid.UUID]*models.Server
}

func newFakeDB() *fakeDB { return &fakeDB{servers: make(map[uuid.UUID]*models.Server)} }

func (f *fakeDB) CreateServer(ctx context.Context, s *models.Server) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.servers[s.ID] = s
	return nil
}

func (f *fakeDB) GetServer(ctx context.Context, id uuid.UUID) (*models.Server, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.servers[id]
	if !ok {
		return nil, os.ErrNotExist
	}
	return s, nil
}

func (f *fakeDB) ListServers(ctx context.Context) ([]*models.Server, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Server, 0, len(f.servers))
	for _, s := range f.servers {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeDB) UpdateServerStatus(ctx context.Context, id uuid.UUID, status models.PersistedStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.servers[id]; ok {
		s.Status = status
	}
	return nil
}

func (f *fakeDB) DeleteServer(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.servers, id)
	return nil
}

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()

	cfg := &config.Config{}
	cfg.Paths.ServersRoot = t.TempDir()
	cfg.Port.RangeStart = 30000
	cfg.Port.RangeEnd = 30100
	cfg.Record.LogRingSize = 50
	cfg.Record.SubscriberQueue = 8
	cfg.Timeouts.StartupSeconds = 1
	cfg.Timeouts.GracefulStopSeconds = 1

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	tree, err := NewSupervisorTree(logger, TreeConfig{})
	if err != nil {
		t.Fatalf("NewSupervisorTree: %v", err)
	}

	launcher, err := process.NewLauncher()
	if err != nil {
		t.Fatalf("NewLauncher: %v", err)
	}

	allocator := portalloc.New(cfg.Port.RangeStart, cfg.Port.RangeEnd, 100)
	bus := eventbus.New(16)

	return New(cfg, newFakeDB(), tree, allocator, launcher, bus, nil)
}

func TestSupervisorCreate(t *testing.T) {
	sup := newTestSupervisor(t)
	ctx := context.Background()

	server, err := sup.Create(ctx, CreateSpec{
		Name:        "survival",
		OwnerID:     "op-1",
		Version:     "1.20.4",
		Type:        models.ServerTypeVanilla,
		MemoryMinMB: 1024,
		MemoryMaxMB: 2048,
		MaxPlayers:  10,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if server.Port < 30000 || server.Port > 30100 {
		t.Errorf("expected allocated port in configured range, got %d", server.Port)
	}
	if server.Status != models.PersistedStopped {
		t.Errorf("expected new server to start Stopped, got %s", server.Status)
	}
	if server.RconPasswordEnc != "" {
		t.Errorf("expected no encrypted rcon password without a CredentialEncryptor, got %q", server.RconPasswordEnc)
	}

	if _, err := os.Stat(server.Directory + "/server.properties"); err != nil {
		t.Errorf("expected server.properties to be written: %v", err)
	}
	if _, err := os.Stat(server.Directory + "/eula.txt"); err != nil {
		t.Errorf("expected eula.txt to be written: %v", err)
	}

	props, err := readServerProperties(server.Directory + "/server.properties")
	if err != nil {
		t.Fatalf("readServerProperties: %v", err)
	}
	if props["enable-rcon"] != "false" {
		t.Errorf("expected rcon disabled by default, got enable-rcon=%q", props["enable-rcon"])
	}

	snap, err := sup.Status(server.ID.String())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if snap.Status != models.StatusStopped {
		t.Errorf("expected in-memory record to start Stopped, got %s", snap.Status)
	}
}

func TestSupervisorCreateRejectsDuplicateName(t *testing.T) {
	sup := newTestSupervisor(t)
	ctx := context.Background()
	spec := CreateSpec{Name: "survival", OwnerID: "op-1", Type: models.ServerTypeVanilla}

	if _, err := sup.Create(ctx, spec); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if _, err := sup.Create(ctx, spec); err == nil {
		t.Error("expected second Create with the same owner/name to fail")
	}
}

func TestSupervisorCreateExplicitPortConflictFails(t *testing.T) {
	sup := newTestSupervisor(t)
	ctx := context.Background()

	first, err := sup.Create(ctx, CreateSpec{Name: "survival", OwnerID: "op-1", Type: models.ServerTypeVanilla, Port: 30050})
	if err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if first.Port != 30050 {
		t.Fatalf("expected explicit port 30050, got %d", first.Port)
	}

	_, err = sup.Create(ctx, CreateSpec{Name: "creative", OwnerID: "op-2", Type: models.ServerTypeVanilla, Port: 30050})
	if err == nil {
		t.Fatal("expected Create with an already-taken explicit port to fail")
	}

	servers, err := sup.db.ListServers(ctx)
	if err != nil {
		t.Fatalf("ListServers: %v", err)
	}
	if len(servers) != 1 {
		t.Errorf("expected no DB row written for the rejected port-conflict Create, got %d servers", len(servers))
	}
}

func TestSupervisorCreateRequiresNameAndOwner(t *testing.T) {
	sup := newTestSupervisor(t)
	ctx := context.Background()

	if _, err := sup.Create(ctx, CreateSpec{OwnerID: "op-1"}); err == nil {
		t.Error("expected Create without a name to fail")
	}
	if _, err := sup.Create(ctx, CreateSpec{Name: "survival"}); err == nil {
		t.Error("expected Create without an owner to fail")
	}
}

func TestSupervisorUnknownServerErrors(t *testing.T) {
	sup := newTestSupervisor(t)
	ctx := context.Background()
	missing := uuid.New().String()

	if _, err := sup.Status(missing); err == nil {
		t.Error("expected Status on an unknown id to fail")
	}
	if _, err := sup.Start(ctx, missing); err == nil {
		t.Error("expected Start on an unknown id to fail")
	}
	if _, err := sup.Stop(ctx, missing, false); err == nil {
		t.Error("expected Stop on an unknown id to fail")
	}
	if _, err := sup.Command(ctx, missing, "list"); err == nil {
		t.Error("expected Command on an unknown id to fail")
	}
}

func TestSupervisorStopRejectsFromStopped(t *testing.T) {
	sup := newTestSupervisor(t)
	ctx := context.Background()

	server, err := sup.Create(ctx, CreateSpec{Name: "survival", OwnerID: "op-1", Type: models.ServerTypeVanilla})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := sup.Stop(ctx, server.ID.String(), false); err == nil {
		t.Error("expected Stop on a Stopped server to be rejected as an illegal transition")
	}
}

func TestSupervisorHandleExitPopulatesCrashDetails(t *testing.T) {
	sup := newTestSupervisor(t)
	ctx := context.Background()

	server, err := sup.Create(ctx, CreateSpec{Name: "survival", OwnerID: "op-1", Type: models.ServerTypeVanilla})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	id := server.ID.String()

	st, err := sup.lookup(id)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}

	errPath := filepath.Join(t.TempDir(), "server_error.log")
	if err := os.WriteFile(errPath, []byte("java.lang.OutOfMemoryError: Java heap space\nat Foo.bar\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	st.pump = &logpump.Pump{ServerID: id, ErrPath: errPath}
	st.record.Transition(models.StatusStarting, "test")

	sup.handleExit(id)

	snap, err := sup.Status(id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if snap.Status != models.StatusCrashed {
		t.Fatalf("expected StatusCrashed, got %s", snap.Status)
	}
	if !strings.Contains(snap.Reason, "OutOfMemoryError") {
		t.Errorf("expected crash reason to include the server_error.log tail, got %q", snap.Reason)
	}

	details, ok := sup.CrashDetails(id)
	if !ok {
		t.Fatal("expected CrashDetails to report the crashed server")
	}
	if details.ExitCode != -1 {
		t.Errorf("expected unobservable exit code -1, got %d", details.ExitCode)
	}
	if len(details.Tail) == 0 {
		t.Error("expected a non-empty stderr tail")
	}
}

func TestSupervisorHandleExitStopRequestedSkipsCrashDetails(t *testing.T) {
	sup := newTestSupervisor(t)
	ctx := context.Background()

	server, err := sup.Create(ctx, CreateSpec{Name: "survival", OwnerID: "op-1", Type: models.ServerTypeVanilla})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	id := server.ID.String()

	st, err := sup.lookup(id)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	st.record.Transition(models.StatusStarting, "test")
	st.stopRequested = true

	sup.handleExit(id)

	snap, err := sup.Status(id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if snap.Status != models.StatusStopped {
		t.Fatalf("expected StatusStopped, got %s", snap.Status)
	}
	if _, ok := sup.CrashDetails(id); ok {
		t.Error("expected no CrashDetails for a requested stop")
	}
}

func TestSupervisorCommandRejectsBlockedAndNonRunning(t *testing.T) {
	sup := newTestSupervisor(t)
	ctx := context.Background()

	server, err := sup.Create(ctx, CreateSpec{Name: "survival", OwnerID: "op-1", Type: models.ServerTypeVanilla})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := sup.Command(ctx, server.ID.String(), "list"); err == nil {
		t.Error("expected Command against a Stopped server to fail")
	}

	st, err := sup.lookup(server.ID.String())
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	st.record.Transition(models.StatusStarting, "test")
	st.record.Transition(models.StatusRunning, "test")

	if _, err := sup.Command(ctx, server.ID.String(), "stop"); err == nil {
		t.Error("expected Command(\"stop\") to be rejected by the blocklist")
	}
}

func TestSupervisorTailAndSubscribe(t *testing.T) {
	sup := newTestSupervisor(t)
	ctx := context.Background()

	server, err := sup.Create(ctx, CreateSpec{Name: "survival", OwnerID: "op-1", Type: models.ServerTypeVanilla})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	st, err := sup.lookup(server.ID.String())
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	st.record.AppendLog("hello world")

	lines, err := sup.Tail(server.ID.String(), 10)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(lines) != 1 || lines[0] != "hello world" {
		t.Errorf("unexpected tail contents: %v", lines)
	}

	ch, closeFn, err := sup.SubscribeLogs(server.ID.String())
	if err != nil {
		t.Fatalf("SubscribeLogs: %v", err)
	}
	defer closeFn()

	st.record.AppendLog("second line")
	select {
	case line := <-ch:
		if line.Line != "second line" {
			t.Errorf("expected subscriber to observe the new line, got %q", line.Line)
		}
	case <-time.After(time.Second):
		t.Error("timed out waiting for subscribed log line")
	}
}

func TestPersistedStatusFor(t *testing.T) {
	cases := map[models.Status]models.PersistedStatus{
		models.StatusRunning:  models.PersistedRunning,
		models.StatusStarting: models.PersistedStarting,
		models.StatusStopping: models.PersistedStopping,
		models.StatusCrashed:  models.PersistedError,
		models.StatusStopped:  models.PersistedStopped,
	}
	for in, want := range cases {
		if got := persistedStatusFor(in); got != want {
			t.Errorf("persistedStatusFor(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestSplitDiscoveryPaths(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"/opt/java8", []string{"/opt/java8"}},
		{"/opt/java8:/opt/java17", []string{"/opt/java8", "/opt/java17"}},
		{"/opt/java8::/opt/java17", []string{"/opt/java8", "/opt/java17"}},
	}
	for _, c := range cases {
		got := splitDiscoveryPaths(c.in)
		if len(got) != len(c.want) {
			t.Errorf("splitDiscoveryPaths(%q) = %v, want %v", c.in, got, c.want)
			continue
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Errorf("splitDiscoveryPaths(%q) = %v, want %v", c.in, got, c.want)
				break
			}
		}
	}
}

func TestRconPortFor(t *testing.T) {
	if got := rconPortFor(25565); got != 25575 {
		t.Errorf("rconPortFor(25565) = %d, want 25575", got)
	}
}

func TestGenerateRconPassword(t *testing.T) {
	a, err := generateRconPassword()
	if err != nil {
		t.Fatalf("generateRconPassword: %v", err)
	}
	b, err := generateRconPassword()
	if err != nil {
		t.Fatalf("generateRconPassword: %v", err)
	}
	if a == "" {
		t.Error("expected a non-empty password")
	}
	if a == b {
		t.Error("expected two calls to generate different passwords")
	}
}
