// forgekeeper - Minecraft server fleet supervisor
// Copyright 2026 The forgekeeper Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/forgekeeper/forgekeeper

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thejerf/suture/v4"

	"github.com/forgekeeper/forgekeeper/internal/config"
	"github.com/forgekeeper/forgekeeper/internal/eventbus"
	"github.com/forgekeeper/forgekeeper/internal/logging"
	"github.com/forgekeeper/forgekeeper/internal/logpump"
	"github.com/forgekeeper/forgekeeper/internal/metrics"
	"github.com/forgekeeper/forgekeeper/internal/models"
	"github.com/forgekeeper/forgekeeper/internal/portalloc"
	"github.com/forgekeeper/forgekeeper/internal/process"
	"github.com/forgekeeper/forgekeeper/internal/rcon"
	"github.com/forgekeeper/forgekeeper/internal/record"
	"github.com/forgekeeper/forgekeeper/internal/supervisorerr"
	"github.com/forgekeeper/forgekeeper/internal/validation"
)

// ServerDB is the persistence surface the Supervisor needs; satisfied by
// *internal/database.DB. Narrowed to an interface so tests can swap in a
// fake without touching DuckDB.
type ServerDB interface {
	CreateServer(ctx context.Context, s *models.Server) error
	GetServer(ctx context.Context, id uuid.UUID) (*models.Server, error)
	ListServers(ctx context.Context) ([]*models.Server, error)
	UpdateServerStatus(ctx context.Context, id uuid.UUID, status models.PersistedStatus) error
	DeleteServer(ctx context.Context, id uuid.UUID) error
}

// CreateSpec describes a new server for Supervisor.Create (§4.5).
type CreateSpec struct {
	Name        string `validate:"required"`
	OwnerID     string `validate:"required"`
	Version     string
	Type        models.ServerType
	MemoryMinMB int `validate:"omitempty,min=256,max=65536"`
	MemoryMaxMB int `validate:"omitempty,min=256,max=65536"`
	MaxPlayers  int `validate:"omitempty,min=1,max=1000"`
	// Port is the preferred game port; 0 asks the allocator to assign one
	// starting from the configured default (§4.8).
	Port int `validate:"omitempty,min=1,max=65535"`
	Motd string
}

// serverState is the Supervisor's bookkeeping for one managed server,
// kept alongside the ServerRecord it wraps. Everything here is mutated
// only under Supervisor.mu; the record itself has its own finer-grained
// lock for status/pid/subscribers (§4.4).
// crashTailLines bounds how many trailing server_error.log lines get
// folded into a Crashed reason and CrashDetails (§3.2, §8.3 Scenario 3).
const crashTailLines = 20

type serverState struct {
	record *record.ServerRecord
	server *models.Server

	rconAddr     string
	rconPassword string
	rconEnabled  bool
	rconClient   *rcon.Client

	stdin io.WriteCloser

	// pump is the log tailer for the server's current run, retained so
	// handleExit can pull a stderr tail for the Crashed reason (§3.2
	// ProcessExitEvent, §8.3 Scenario 3). Nil before the first Start/Adopt.
	pump *logpump.Pump

	logToken  suture.ServiceToken
	exitToken suture.ServiceToken
	hasTokens bool

	stopRequested bool
}

// Supervisor is the orchestrator described in §4.5: it owns every
// managed server's ServerRecord, drives its legal status transitions,
// and is the only component that talks to the ProcessLauncher, RCON
// client, and PortAllocator on a server's behalf. Structured as a
// map[string]*serverState guarded by a RWMutex, with
// Create/Delete/Status/Stop entry points, generalized
// from "one sync service per media server" to "one JVM per managed
// Minecraft server".
type Supervisor struct {
	mu      sync.RWMutex
	servers map[string]*serverState

	db        ServerDB
	tree      *SupervisorTree
	allocator *portalloc.Allocator
	launcher  *process.Launcher
	bus       *eventbus.EventBus
	cfg       *config.Config
	enc       *config.CredentialEncryptor
	javaPaths portalloc.JavaPaths
}

// New constructs a Supervisor. launcher and allocator are required;
// enc may be nil, in which case RconPasswordEnc is never populated
// (servers still work, the cache is simply absent).
func New(cfg *config.Config, db ServerDB, tree *SupervisorTree, allocator *portalloc.Allocator,
	launcher *process.Launcher, bus *eventbus.EventBus, enc *config.CredentialEncryptor) *Supervisor {
	return &Supervisor{
		servers:   make(map[string]*serverState),
		db:        db,
		tree:      tree,
		allocator: allocator,
		launcher:  launcher,
		bus:       bus,
		cfg:       cfg,
		enc:       enc,
		javaPaths: portalloc.JavaPaths{
			Java8:     cfg.Java.Java8Path,
			Java16:    cfg.Java.Java16Path,
			Java17:    cfg.Java.Java17Path,
			Java21:    cfg.Java.Java21Path,
			Discovery: splitDiscoveryPaths(cfg.Java.DiscoveryPaths),
		},
	}
}

func splitDiscoveryPaths(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			if s[start:i] != "" {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if s[start:] != "" {
		out = append(out, s[start:])
	}
	return out
}

// Create validates and persists a new server, writes its on-disk
// configuration, and registers an in-memory record in Stopped — it does
// not start the JVM (§4.5 Create).
func (s *Supervisor) Create(ctx context.Context, spec CreateSpec) (*models.Server, error) {
	if err := validation.Struct(spec); err != nil {
		return nil, supervisorerr.Wrap(supervisorerr.KindInternal, "", "invalid create spec", err)
	}

	existing, err := s.db.ListServers(ctx)
	if err != nil {
		return nil, supervisorerr.Wrap(supervisorerr.KindDatabaseTransient, "", "list servers", err)
	}
	taken := make(map[int]bool, len(existing))
	for _, sv := range existing {
		if sv.OwnerID == spec.OwnerID && sv.Name == spec.Name {
			return nil, supervisorerr.New(supervisorerr.KindInternal, "", fmt.Sprintf("server %q already exists for owner", spec.Name))
		}
		taken[sv.Port] = true
	}

	isTaken := func(p int) bool { return taken[p] }
	var port int
	if spec.Port > 0 {
		// An explicit port must either be honored or the request must
		// fail outright — never silently substitute a different port
		// (§8.3 Scenario 6).
		port, err = s.allocator.AllocateExplicit(ctx, spec.Port, isTaken)
		if err != nil {
			return nil, supervisorerr.Wrap(supervisorerr.KindPortInUse, "", "allocate port", err)
		}
	} else {
		port, err = s.allocator.Allocate(ctx, s.cfg.Port.RangeStart, isTaken)
		if err != nil {
			return nil, supervisorerr.Wrap(supervisorerr.KindPortInUse, "", "allocate port", err)
		}
	}

	id := uuid.New()
	dir := filepath.Join(s.cfg.Paths.ServersRoot, id.String())
	if err := os.MkdirAll(filepath.Join(dir, "logs"), 0o755); err != nil {
		return nil, supervisorerr.Wrap(supervisorerr.KindInternal, id.String(), "create server directory", err)
	}

	rconPassword, err := generateRconPassword()
	if err != nil {
		return nil, supervisorerr.Wrap(supervisorerr.KindInternal, id.String(), "generate rcon password", err)
	}
	rconPort := rconPortFor(port)
	rconEnabled := s.cfg.Rcon.EnabledByDefault

	motd := spec.Motd
	if motd == "" {
		motd = "A forgekeeper-managed server"
	}
	props := serverProperties{
		"server-port":           strconv.Itoa(port),
		"max-players":           strconv.Itoa(spec.MaxPlayers),
		"motd":                  motd,
		"enable-rcon":           strconv.FormatBool(rconEnabled),
		"rcon.port":             strconv.Itoa(rconPort),
		"rcon.password":         rconPassword,
		"white-list":            "false",
		"online-mode":           "true",
		"level-name":            "world",
		"difficulty":            "normal",
		"gamemode":              "survival",
		"enable-command-block": "false",
	}
	if err := writeServerProperties(filepath.Join(dir, "server.properties"), props); err != nil {
		return nil, supervisorerr.Wrap(supervisorerr.KindInternal, id.String(), "write server.properties", err)
	}
	if err := writeEULA(filepath.Join(dir, "eula.txt")); err != nil {
		return nil, supervisorerr.Wrap(supervisorerr.KindInternal, id.String(), "write eula.txt", err)
	}

	var rconEnc string
	if s.enc != nil {
		rconEnc, err = s.enc.Encrypt(rconPassword)
		if err != nil {
			return nil, supervisorerr.Wrap(supervisorerr.KindInternal, id.String(), "encrypt rcon password", err)
		}
	}

	server := &models.Server{
		ID:              id,
		Name:            spec.Name,
		OwnerID:         spec.OwnerID,
		Version:         spec.Version,
		Type:            spec.Type,
		Directory:       dir,
		Port:            port,
		MemoryMinMB:     spec.MemoryMinMB,
		MemoryMaxMB:     spec.MemoryMaxMB,
		MaxPlayers:      spec.MaxPlayers,
		Status:          models.PersistedStopped,
		RconPasswordEnc: rconEnc,
	}
	if err := s.db.CreateServer(ctx, server); err != nil {
		return nil, err
	}

	rec := record.New(id.String(), s.cfg.Record.LogRingSize, s.cfg.Record.SubscriberQueue)
	st := &serverState{
		record:       rec,
		server:       server,
		rconAddr:     fmt.Sprintf("127.0.0.1:%d", rconPort),
		rconPassword: rconPassword,
		rconEnabled:  rconEnabled,
	}

	s.mu.Lock()
	s.servers[id.String()] = st
	s.mu.Unlock()

	logging.Info().Str("server_id", id.String()).Str("name", spec.Name).Int("port", port).Msg("server created")
	return server, nil
}

// logPathFor, errPathFor, and pidFileFor centralize the on-disk layout
// convention (§4.1) so Start and Adopt agree on where a server's log,
// error log, and pid file live without passing the paths between them.
func logPathFor(dir string) string { return filepath.Join(dir, "logs", "latest.log") }
func errPathFor(dir string) string { return filepath.Join(dir, "server_error.log") }
func pidFileFor(dir string) string { return filepath.Join(dir, "server.pid") }

func (s *Supervisor) lookup(id string) (*serverState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.servers[id]
	if !ok {
		return nil, supervisorerr.New(supervisorerr.KindNotFound, id, "server not found")
	}
	return st, nil
}

// Register idempotently brings a persisted Server row into memory as a
// Stopped ServerRecord, without starting anything. The Reconciler calls
// this for every row on every pass (§4.6) so a server created in an
// earlier process lifetime — or found only in the database after a
// restart — has a ServerRecord to adopt into or leave alone.
func (s *Supervisor) Register(ctx context.Context, server *models.Server) error {
	id := server.ID.String()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.servers[id]; ok {
		return nil
	}

	rconPassword := ""
	if server.RconPasswordEnc != "" && s.enc != nil {
		var err error
		rconPassword, err = s.enc.Decrypt(server.RconPasswordEnc)
		if err != nil {
			logging.Warn().Err(err).Str("server_id", id).Msg("failed to decrypt cached rcon password")
		}
	}

	rec := record.New(id, s.cfg.Record.LogRingSize, s.cfg.Record.SubscriberQueue)
	s.servers[id] = &serverState{
		record:       rec,
		server:       server,
		rconAddr:     fmt.Sprintf("127.0.0.1:%d", rconPortFor(server.Port)),
		rconPassword: rconPassword,
		rconEnabled:  rconPassword != "",
	}
	return nil
}

// KnownStatus reports the in-memory status of a registered server, or
// false if it is not yet registered (§4.6).
func (s *Supervisor) KnownStatus(id string) (models.Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.servers[id]
	if !ok {
		return "", false
	}
	return st.record.Status(), true
}

// Adopt re-attaches to a JVM the Supervisor did not itself launch — one
// found alive and verified by the Reconciler at boot or mid-run (§4.6
// steps 1-2). It walks the record Stopped->Starting->Running (the only
// legal path to Running), registers a LogPump seeked to end-of-file so
// history already on disk is not replayed as if newly printed, and a
// fresh exitWatcher so ordinary crash detection resumes transparently.
func (s *Supervisor) Adopt(ctx context.Context, id string, pid int) (record.Snapshot, error) {
	st, err := s.lookup(id)
	if err != nil {
		return record.Snapshot{}, err
	}

	if st.record.Status() != models.StatusStopped {
		return record.Snapshot{}, supervisorerr.New(supervisorerr.KindIllegalTransition, id,
			fmt.Sprintf("cannot adopt from %s", st.record.Status()))
	}

	res := st.record.Transition(models.StatusStarting, "adopted")
	s.publishStatus(res, id)
	res = st.record.Transition(models.StatusRunning, "adopted")
	s.publishStatus(res, id)
	if !res.OK {
		return record.Snapshot{}, supervisorerr.New(supervisorerr.KindIllegalTransition, id, "adopt transition rejected")
	}

	dir := st.server.Directory
	logPath := logPathFor(dir)
	errPath := errPathFor(dir)
	pidFile := pidFileFor(dir)

	st.record.SetLaunchInfo(pid, pidFile, logPath, errPath, st.server.Port)

	startOffset := int64(0)
	if info, statErr := os.Stat(logPath); statErr == nil {
		startOffset = info.Size()
	}

	pump := &logpump.Pump{
		ServerID:    id,
		LogPath:     logPath,
		ErrPath:     errPath,
		Record:      st.record,
		StartOffset: startOffset,
		OnLine: func(line string) {
			_ = s.bus.PublishLog(models.LogLine{ServerID: id, Line: line, Timestamp: time.Now().Unix()})
		},
	}

	s.mu.Lock()
	st.stopRequested = false
	st.pump = pump
	st.logToken = s.tree.AddProcessService(pump)
	st.exitToken = s.tree.AddProcessService(&exitWatcher{supervisor: s, id: id, pid: pid})
	st.hasTokens = true
	s.mu.Unlock()

	_ = s.db.UpdateServerStatus(ctx, st.server.ID, models.PersistedRunning)
	logging.Info().Str("server_id", id).Int("pid", pid).Msg("adopted externally running server")
	return st.record.Snapshot(), nil
}

// MarkStopped walks a record down to Stopped along whatever legal edge
// applies to its current status, for the Reconciler's drift-correction
// pass (§4.6 periodic). It is a no-op if the record is already Stopped.
func (s *Supervisor) MarkStopped(ctx context.Context, id, reason string) (record.Snapshot, error) {
	st, err := s.lookup(id)
	if err != nil {
		return record.Snapshot{}, err
	}

	for {
		cur := st.record.Status()
		if cur == models.StatusStopped {
			break
		}
		next := models.StatusStopping
		if cur == models.StatusStopping || cur == models.StatusCrashed {
			next = models.StatusStopped
		}
		res := st.record.Transition(next, reason)
		s.publishStatus(res, id)
		if !res.OK {
			break
		}
	}

	s.mu.Lock()
	logToken, exitToken, hasTokens := st.logToken, st.exitToken, st.hasTokens
	st.hasTokens = false
	s.mu.Unlock()
	if hasTokens {
		_ = s.tree.RemoveProcessService(logToken)
		_ = s.tree.RemoveProcessService(exitToken)
	}

	_ = s.db.UpdateServerStatus(ctx, st.server.ID, models.PersistedStopped)
	return st.record.Snapshot(), nil
}

// Start launches the JVM for server id (§4.5 Start). It returns once the
// record has moved to Starting; Running is driven asynchronously by the
// LogPump's startup detector or the startup timeout.
func (s *Supervisor) Start(ctx context.Context, id string) (record.Snapshot, error) {
	st, err := s.lookup(id)
	if err != nil {
		return record.Snapshot{}, err
	}

	res := st.record.Transition(models.StatusStarting, "start requested")
	if !res.OK {
		return record.Snapshot{}, supervisorerr.New(supervisorerr.KindIllegalTransition, id,
			fmt.Sprintf("cannot start from %s", res.Old))
	}
	s.publishStatus(res, id)

	javaBin, err := portalloc.Resolve(st.server.Version, s.javaPaths)
	if err != nil {
		st.record.Transition(models.StatusCrashed, "java resolution failed")
		return record.Snapshot{}, supervisorerr.Wrap(supervisorerr.KindJavaNotFound, id, "resolve java binary", err)
	}

	argv := []string{
		javaBin,
		fmt.Sprintf("-Xms%dM", st.server.MemoryMinMB),
		fmt.Sprintf("-Xmx%dM", st.server.MemoryMaxMB),
		"-jar", filepath.Join(st.server.Directory, "server.jar"), "nogui",
	}
	logPath := logPathFor(st.server.Directory)
	errPath := errPathFor(st.server.Directory)
	pidFile := pidFileFor(st.server.Directory)

	result, err := s.launcher.Launch(process.Spec{
		Argv:    argv,
		Cwd:     st.server.Directory,
		Env:     os.Environ(),
		LogPath: logPath,
		ErrPath: errPath,
		PidFile: pidFile,
	})
	if err != nil {
		st.record.Transition(models.StatusCrashed, "launch failed")
		metrics.RecordLaunchFailure()
		return record.Snapshot{}, supervisorerr.Wrap(supervisorerr.KindLaunchFailed, id, "launch jvm", err)
	}

	st.record.SetLaunchInfo(result.PID, pidFile, logPath, errPath, st.server.Port)

	s.mu.Lock()
	st.stdin = result.StdinWriter
	st.stopRequested = false
	s.mu.Unlock()

	pump := &logpump.Pump{
		ServerID: id,
		LogPath:  logPath,
		ErrPath:  errPath,
		Record:   st.record,
		OnReady: func() {
			res := st.record.Transition(models.StatusRunning, "startup detected")
			s.publishStatus(res, id)
		},
		OnLine: func(line string) {
			_ = s.bus.PublishLog(models.LogLine{ServerID: id, Line: line, Timestamp: time.Now().Unix()})
		},
	}

	s.mu.Lock()
	st.pump = pump
	st.logToken = s.tree.AddProcessService(pump)
	st.exitToken = s.tree.AddProcessService(&exitWatcher{supervisor: s, id: id, pid: result.PID})
	st.hasTokens = true
	s.mu.Unlock()

	go s.awaitStartupTimeout(id, st)

	_ = s.db.UpdateServerStatus(ctx, st.server.ID, models.PersistedStarting)
	return st.record.Snapshot(), nil
}

// awaitStartupTimeout implements §4.5's "on timeout with the process
// still alive, status is set Running nonetheless" rule: Start returns
// immediately, so the actual wait happens here in the background.
func (s *Supervisor) awaitStartupTimeout(id string, st *serverState) {
	timeout := s.cfg.Timeouts.Startup()
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	if err := st.record.AwaitStartup(timeout); err != nil {
		if st.record.Status() == models.StatusStarting {
			logging.Warn().Str("server_id", id).Msg("startup timed out, process still alive, marking running")
			res := st.record.Transition(models.StatusRunning, "startup timed out")
			s.publishStatus(res, id)
			metrics.RecordStartupTimeout()
		}
	}
}

func (s *Supervisor) publishStatus(res record.TransitionResult, id string) {
	if !res.OK {
		return
	}
	ev := models.ServerStatusChanged{ServerID: id, Old: res.Old, New: res.New}
	if err := s.bus.PublishStatus(ev); err != nil {
		logging.Warn().Err(err).Str("server_id", id).Msg("failed to publish status event")
	}
}

// Stop requests a graceful (or forced) shutdown of server id (§4.5 Stop).
func (s *Supervisor) Stop(ctx context.Context, id string, force bool) (record.Snapshot, error) {
	st, err := s.lookup(id)
	if err != nil {
		return record.Snapshot{}, err
	}

	current := st.record.Status()
	if current != models.StatusStarting && current != models.StatusRunning {
		return record.Snapshot{}, supervisorerr.New(supervisorerr.KindIllegalTransition, id,
			fmt.Sprintf("cannot stop from %s", current))
	}

	res := st.record.Transition(models.StatusStopping, "stop requested")
	if !res.OK {
		return record.Snapshot{}, supervisorerr.New(supervisorerr.KindIllegalTransition, id, "stop transition rejected")
	}
	s.publishStatus(res, id)

	s.mu.Lock()
	st.stopRequested = true
	s.mu.Unlock()

	pid := st.record.PID()
	if force {
		if err := process.Kill(pid); err != nil {
			logging.Warn().Err(err).Str("server_id", id).Msg("force kill failed")
		}
		return s.awaitStop(st, id)
	}

	if !s.attemptGracefulStop(ctx, st, id) {
		s.mu.Lock()
		stdin := st.stdin
		s.mu.Unlock()
		if stdin != nil {
			_, _ = stdin.Write([]byte("stop\n"))
		}
	}

	graceful := s.cfg.Timeouts.GracefulStop()
	if graceful <= 0 {
		graceful = 30 * time.Second
	}
	if err := st.record.AwaitStop(graceful); err != nil {
		logging.Warn().Str("server_id", id).Msg("graceful stop timed out, escalating to SIGTERM")
		_ = process.Terminate(pid)
		if err := st.record.AwaitStop(5 * time.Second); err != nil {
			logging.Warn().Str("server_id", id).Msg("SIGTERM timed out, escalating to SIGKILL")
			_ = process.Kill(pid)
			_ = st.record.AwaitStop(5 * time.Second)
		}
	}

	return st.record.Snapshot(), nil
}

func (s *Supervisor) awaitStop(st *serverState, id string) (record.Snapshot, error) {
	graceful := s.cfg.Timeouts.GracefulStop()
	if graceful <= 0 {
		graceful = 30 * time.Second
	}
	_ = st.record.AwaitStop(graceful)
	return st.record.Snapshot(), nil
}

// attemptGracefulStop tries RCON's "stop" command and reports whether it
// succeeded; the caller falls back to stdin when it did not.
func (s *Supervisor) attemptGracefulStop(ctx context.Context, st *serverState, id string) bool {
	if !st.rconEnabled {
		return false
	}
	client := s.rconClientFor(st)
	_, err := client.ExecuteStop(ctx, s.cfg.Timeouts.RconCall())
	return err == nil
}

func (s *Supervisor) rconClientFor(st *serverState) *rcon.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.rconClient == nil {
		st.rconClient = rcon.New(st.rconAddr, st.rconPassword, rcon.DefaultBreakerConfig())
	}
	return st.rconClient
}

// Restart stops then starts server id, preserving the first operation's
// error (§4.5 Restart).
func (s *Supervisor) Restart(ctx context.Context, id string) (record.Snapshot, error) {
	if _, err := s.Stop(ctx, id, false); err != nil {
		return record.Snapshot{}, err
	}
	return s.Start(ctx, id)
}

// Command runs text via RCON against a Running server (§4.5 Command).
func (s *Supervisor) Command(ctx context.Context, id, text string) (string, error) {
	st, err := s.lookup(id)
	if err != nil {
		return "", err
	}
	if st.record.Status() != models.StatusRunning {
		return "", supervisorerr.New(supervisorerr.KindIllegalTransition, id, "command requires a running server")
	}
	if rcon.IsBlocked(text) {
		return "", supervisorerr.New(supervisorerr.KindInternal, id, "command is blocked, use Stop/Restart")
	}
	if !st.rconEnabled {
		return "", supervisorerr.New(supervisorerr.KindRconUnavailable, id, "rcon is not enabled for this server")
	}

	client := s.rconClientFor(st)
	resp, err := client.Execute(ctx, text, s.cfg.Timeouts.RconCall())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", supervisorerr.Wrap(supervisorerr.KindRconTimeout, id, "rcon command timed out", err)
		}
		return "", supervisorerr.Wrap(supervisorerr.KindRconUnavailable, id, "rcon command failed", err)
	}
	return resp, nil
}

// Status returns a lock-free snapshot of server id's current state
// (§4.5 Status).
func (s *Supervisor) Status(id string) (record.Snapshot, error) {
	st, err := s.lookup(id)
	if err != nil {
		return record.Snapshot{}, err
	}
	return st.record.Snapshot(), nil
}

// CrashDetails returns the ProcessExitEvent-shaped detail captured for
// server id's most recent unrequested exit (§3.2, §7 "Crashed failure
// surfaced to caller (on query)"). ok is false if id is unknown or the
// server is not currently Crashed.
func (s *Supervisor) CrashDetails(id string) (*supervisorerr.CrashDetails, bool) {
	st, err := s.lookup(id)
	if err != nil {
		return nil, false
	}
	snap := st.record.Snapshot()
	if snap.Status != models.StatusCrashed {
		return nil, false
	}
	return &supervisorerr.CrashDetails{ExitCode: snap.CrashExitCode, Tail: snap.CrashTail}, true
}

// Tail returns up to n of the most recent log lines for server id
// (§4.5 Tail).
func (s *Supervisor) Tail(id string, n int) ([]string, error) {
	st, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return st.record.Tail(n), nil
}

// SubscribeLogs attaches a bounded, drop-oldest log subscriber to server
// id (§4.5 SubscribeLogs).
func (s *Supervisor) SubscribeLogs(id string) (<-chan models.LogLine, func(), error) {
	st, err := s.lookup(id)
	if err != nil {
		return nil, nil, err
	}
	sub := st.record.SubscribeLog()
	return sub.C(), sub.Close, nil
}

// SubscribeStatus attaches a coalescing status subscriber to server id
// (§4.5 SubscribeStatus).
func (s *Supervisor) SubscribeStatus(id string) (<-chan models.ServerStatusChanged, func(), error) {
	st, err := s.lookup(id)
	if err != nil {
		return nil, nil, err
	}
	sub := st.record.SubscribeStatus()
	return sub.C(), sub.Close, nil
}

// handleExit is invoked by exitWatcher once a server's JVM process has
// died. It distinguishes a requested stop (→ Stopped) from an
// unrequested death (→ Crashed), matching §3.4's transition table.
func (s *Supervisor) handleExit(id string) {
	st, err := s.lookup(id)
	if err != nil {
		return
	}

	s.mu.Lock()
	stopRequested := st.stopRequested
	logToken := st.logToken
	exitToken := st.exitToken
	hasTokens := st.hasTokens
	st.hasTokens = false
	s.mu.Unlock()

	to := models.StatusCrashed
	reason := "process exited unexpectedly"
	if stopRequested {
		to = models.StatusStopped
		reason = "process exited after stop"
	} else {
		metrics.RecordCrash()

		// The double-fork launch means this process is never the JVM's
		// parent, so wait(2) can never report a real exit status here —
		// -1 marks the code as unobserved rather than fabricating 0
		// (§3.2 ProcessExitEvent).
		const exitCode = -1
		var tail []string
		if st.pump != nil {
			tail = st.pump.ErrTail(crashTailLines)
		}
		st.record.SetCrashDetails(exitCode, tail)
		if len(tail) > 0 {
			reason = fmt.Sprintf("process exited unexpectedly; server_error.log tail: %s", strings.Join(tail, " | "))
		}

		exitEvent := models.ProcessExitEvent{
			ServerID:   id,
			PID:        st.record.PID(),
			ExitCode:   exitCode,
			ExitedAt:   time.Now().Unix(),
			StderrTail: tail,
		}
		logging.Warn().
			Str("server_id", exitEvent.ServerID).
			Int("pid", exitEvent.PID).
			Int("exit_code", exitEvent.ExitCode).
			Strs("stderr_tail", exitEvent.StderrTail).
			Msg("server process exited unexpectedly")
	}

	res := st.record.Transition(to, reason)
	s.publishStatus(res, id)
	_ = s.db.UpdateServerStatus(context.Background(), st.server.ID, persistedStatusFor(to))

	if hasTokens {
		_ = s.tree.RemoveProcessService(logToken)
		_ = s.tree.RemoveProcessService(exitToken)
	}

	s.mu.Lock()
	if st.rconClient != nil {
		_ = st.rconClient.Close()
		st.rconClient = nil
	}
	s.mu.Unlock()
}

func persistedStatusFor(status models.Status) models.PersistedStatus {
	switch status {
	case models.StatusRunning:
		return models.PersistedRunning
	case models.StatusStarting:
		return models.PersistedStarting
	case models.StatusStopping:
		return models.PersistedStopping
	case models.StatusCrashed:
		return models.PersistedError
	default:
		return models.PersistedStopped
	}
}
