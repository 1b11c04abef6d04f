package logpump

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/forgekeeper/forgekeeper/internal/logging"
	"github.com/forgekeeper/forgekeeper/internal/record"
)

// startupMarker matches the vanilla/Paper/Spigot "server is ready" log
// line, e.g. `[12:34:56] [Server thread/INFO]: Done (3.142s)! For help...`
// (§4.2 Startup detector).
var startupMarker = regexp.MustCompile(`Done \([^)]*s\)!`)

const (
	pollInterval       = 250 * time.Millisecond
	diagnosticSilence1 = 5 * time.Second
	diagnosticSilence2 = 30 * time.Second
)

// StartupDetected is implemented by the caller that wants to know when
// the startup marker has been seen — normally the Supervisor, which
// drives Starting→Running on the first call.
type StartupDetected interface {
	OnStartupDetected()
}

// Pump tails one server's log file and feeds lines into its
// ServerRecord. It implements suture.Service and is added to the
// process-layer supervisor for the lifetime of one server run.
type Pump struct {
	ServerID string
	LogPath  string
	ErrPath  string
	Record   *record.ServerRecord
	OnReady  func()
	// OnLine, if set, is called with every line in addition to the
	// record append — used to relay lines onto the cross-server event
	// bus without logpump knowing anything about it.
	OnLine func(line string)

	// StartOffset seeks the tail to this byte offset on first open
	// instead of replaying the file from the start. Used when the
	// Reconciler re-attaches to a server already running (§4.6); zero
	// for a freshly launched server, whose log file is empty anyway.
	StartOffset int64

	startedAt time.Time
}

// String implements fmt.Stringer for suture/sutureslog logging.
func (p *Pump) String() string { return "logpump:" + p.ServerID }

// Serve tails LogPath until ctx is canceled, per §4.2. It never returns
// a non-nil error for ordinary EOF/rotation conditions — only for a
// context cancellation, which suture treats as a clean stop.
func (p *Pump) Serve(ctx context.Context) error {
	p.startedAt = time.Now()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Warn().Err(err).Str("server_id", p.ServerID).Msg("logpump: fsnotify unavailable, polling only")
		watcher = nil
	}
	if watcher != nil {
		defer watcher.Close()
		if err := watcher.Add(filepath.Dir(p.LogPath)); err != nil {
			logging.Warn().Err(err).Str("server_id", p.ServerID).Msg("logpump: failed to watch log directory")
		}
	}

	st := newTailStateAt(p.LogPath, p.StartOffset)
	sink := func(line string) {
		p.Record.AppendLog(line)
		if p.OnLine != nil {
			p.OnLine(line)
		}
	}
	matched := false
	firstByteAt := time.Time{}
	warnedSilence1 := false
	warnedSilence2 := false

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			st.close()
			return ctx.Err()

		case ev, ok := <-watcherEvents(watcher):
			if !ok {
				continue
			}
			if ev.Name != p.LogPath && filepath.Dir(ev.Name) == filepath.Dir(p.LogPath) {
				// Unrelated file in the same directory; ignore.
				continue
			}
			n := st.drain(sink)
			if n > 0 && firstByteAt.IsZero() {
				firstByteAt = time.Now()
			}
			if !matched && st.matchStartup(startupMarker) {
				matched = true
				if p.OnReady != nil {
					p.OnReady()
				}
			}

		case <-ticker.C:
			n := st.drain(sink)
			if n > 0 && firstByteAt.IsZero() {
				firstByteAt = time.Now()
			}
			if !matched && st.matchStartup(startupMarker) {
				matched = true
				if p.OnReady != nil {
					p.OnReady()
				}
			}

			if !warnedSilence1 && firstByteAt.IsZero() && time.Since(p.startedAt) > diagnosticSilence1 {
				warnedSilence1 = true
				p.emitSilenceWarning("no log output within 5s of start")
			}
			if !warnedSilence2 && firstByteAt.IsZero() && time.Since(p.startedAt) > diagnosticSilence2 {
				warnedSilence2 = true
				p.emitSilenceWarning("no log output within 30s of start")
			}
		}
	}
}

func (p *Pump) emitSilenceWarning(reason string) {
	info, statErr := os.Stat(p.LogPath)
	ev := logging.Warn().Str("server_id", p.ServerID).Str("reason", reason).Str("log_path", p.LogPath)
	if statErr != nil {
		ev = ev.Bool("log_file_exists", false).Err(statErr)
	} else {
		ev = ev.Bool("log_file_exists", true).Int64("size_bytes", info.Size()).Str("mode", info.Mode().String())
	}
	ev.Msg("logpump: server produced no output")
}

// ErrTail returns the last n lines written to ErrPath, used by the
// Supervisor to populate a Crashed reason when startup never completes.
func (p *Pump) ErrTail(n int) []string {
	f, err := os.Open(p.ErrPath)
	if err != nil {
		return nil
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		lines = append(lines, sc.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	return lines
}

func watcherEvents(w *fsnotify.Watcher) chan fsnotify.Event {
	if w == nil {
		return nil
	}
	return w.Events
}

