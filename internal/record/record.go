package record

import (
	"sync"
	"time"

	"github.com/forgekeeper/forgekeeper/internal/metrics"
	"github.com/forgekeeper/forgekeeper/internal/models"
)

// LogSubscriberQueue and StatusSubscriberQueue bound how many messages a
// slow subscriber can have outstanding before it starts losing them. Both
// are sized from config.RecordConfig at construction time; these are only
// the package-level fallbacks used when a zero value slips through.
const (
	defaultLogRingSize     = 500
	defaultSubscriberQueue = 128
)

// LogSubscriber receives log lines appended to a ServerRecord after the
// moment it subscribed. Delivery is lossy: if the channel is full, the
// oldest buffered line is dropped to make room rather than blocking the
// writer (§4.2, §6.5) — grounded on the websocket hub's drop-on-full
// fan-out idiom, adapted from "drop the new message" to "drop the oldest"
// because log tailers care about recency more than completeness.
type LogSubscriber struct {
	ch     chan models.LogLine
	record *ServerRecord
}

// C returns the channel to range over for log lines.
func (s *LogSubscriber) C() <-chan models.LogLine { return s.ch }

// Close unsubscribes. Safe to call more than once.
func (s *LogSubscriber) Close() {
	s.record.removeLogSubscriber(s)
}

// StatusSubscriber receives status transitions. Unlike LogSubscriber this
// is a coalescing, latest-wins channel of size 1: a slow consumer that
// misses intermediate transitions still observes the current status,
// which is the only contract SubscribeStatus promises (§4.5).
type StatusSubscriber struct {
	ch     chan models.ServerStatusChanged
	record *ServerRecord
}

func (s *StatusSubscriber) C() <-chan models.ServerStatusChanged { return s.ch }

func (s *StatusSubscriber) Close() {
	s.record.removeStatusSubscriber(s)
}

// waiter is a one-shot completion signal used by StartupWaiters and
// StopWaiters: a caller blocked in Supervisor.Start or Supervisor.Stop
// parks one of these and it is closed exactly once when the awaited
// status is reached or the wait is abandoned.
type waiter struct {
	done  chan struct{}
	err   error
	mu    sync.Mutex
	fired bool
}

func newWaiter() *waiter {
	return &waiter{done: make(chan struct{})}
}

func (w *waiter) fire(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fired {
		return
	}
	w.fired = true
	w.err = err
	close(w.done)
}

// Wait blocks until the waiter fires and returns the error it fired with.
func (w *waiter) Wait() error {
	<-w.done
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// ServerRecord is the in-memory state for one managed server (§3.2). It
// is the single source of truth the Supervisor mutates; the database row
// is a durable mirror written on create/delete and on status changes that
// matter across a restart of the supervisor process itself.
//
// All field mutation happens under lock. Channel sends to subscribers
// happen outside the lock: the lock only ever produces a snapshot of the
// current subscriber list and the line/status to deliver, so a consumer
// stalled reading its channel can never block a status transition or a
// log append (§4.4).
type ServerRecord struct {
	mu sync.Mutex

	id     string
	status models.Status
	pid      int
	pidFile  string
	logPath  string
	errPath  string
	port     int

	startedAt time.Time
	updatedAt time.Time

	// lastReason is the reason string passed to the most recent
	// Transition call, retained so Status queries can explain the
	// current status without needing a live subscriber (§4.5 Status).
	lastReason string
	// crashExitCode and crashTail hold the ProcessExitEvent captured for
	// the most recent Crashed transition, if any (§3.2, §8.3 Scenario 3).
	// crashExitCode is -1 when no OS exit code was observable.
	crashExitCode int
	crashTail     []string

	ring       []string
	ringHead   int
	ringFilled bool
	ringSize   int

	startupWaiters []*waiter
	stopWaiters    []*waiter

	logSubs    map[*LogSubscriber]struct{}
	statusSubs map[*StatusSubscriber]struct{}
	subQueue   int

	rcon rconSession
}

// rconSession is satisfied by internal/rcon.Client; kept as a narrow
// interface here so internal/record never imports internal/rcon and the
// lazy-connect-on-first-command contract (§4.3) stays a record-level
// concern independent of the wire protocol implementation.
type rconSession interface {
	Close() error
}

// New creates a ServerRecord in StatusStopped for the given server id.
// logRingSize and subscriberQueue come from config.RecordConfig; zero
// values fall back to the package defaults.
func New(id string, logRingSize, subscriberQueue int) *ServerRecord {
	if logRingSize <= 0 {
		logRingSize = defaultLogRingSize
	}
	if subscriberQueue <= 0 {
		subscriberQueue = defaultSubscriberQueue
	}
	return &ServerRecord{
		id:         id,
		status:     models.StatusStopped,
		updatedAt:  time.Time{},
		ring:       make([]string, logRingSize),
		ringSize:   logRingSize,
		logSubs:    make(map[*LogSubscriber]struct{}),
		statusSubs: make(map[*StatusSubscriber]struct{}),
		subQueue:   subscriberQueue,
	}
}

// ID returns the server id this record tracks.
func (r *ServerRecord) ID() string { return r.id }

// Status returns the current status under lock.
func (r *ServerRecord) Status() models.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// PID returns the last known process id, or 0 if not running.
func (r *ServerRecord) PID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pid
}

// Snapshot captures every field callers typically want for a status
// response (§4.5 Status) in one locked read. CrashExitCode/CrashTail are
// only meaningful when Status is StatusCrashed; they retain whatever was
// last recorded by SetCrashDetails even after the record later returns
// to Stopped, until the next crash overwrites them.
type Snapshot struct {
	ID        string
	Status    models.Status
	PID       int
	Port      int
	StartedAt time.Time
	UpdatedAt time.Time

	Reason        string
	CrashExitCode int
	CrashTail     []string
}

func (r *ServerRecord) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		ID:            r.id,
		Status:        r.status,
		PID:           r.pid,
		Port:          r.port,
		StartedAt:     r.startedAt,
		UpdatedAt:     r.updatedAt,
		Reason:        r.lastReason,
		CrashExitCode: r.crashExitCode,
		CrashTail:     r.crashTail,
	}
}

// SetCrashDetails records the exit code (-1 if unobservable) and stderr
// tail for the server's most recent unrequested exit, so a later Status
// query can surface ProcessExitEvent-shaped detail (§3.2, §8.3 Scenario
// 3) even though the live event has already been delivered to whatever
// status subscribers were attached at the moment of the crash.
func (r *ServerRecord) SetCrashDetails(exitCode int, tail []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.crashExitCode = exitCode
	r.crashTail = tail
}

// SetLaunchInfo records the PID, pid file path, and log/err paths
// assigned by the ProcessLauncher at start time. Called before the
// record transitions out of Stopped.
func (r *ServerRecord) SetLaunchInfo(pid int, pidFile, logPath, errPath string, port int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pid = pid
	r.pidFile = pidFile
	r.logPath = logPath
	r.errPath = errPath
	r.port = port
	r.startedAt = time.Now()
}

func (r *ServerRecord) LogPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logPath
}

func (r *ServerRecord) PidFile() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pidFile
}

// TransitionResult is returned by Transition so callers can tell a legal
// transition that changed nothing (from == to, rejected) apart from an
// illegal one, and get the subscriber fan-out performed for them.
type TransitionResult struct {
	OK  bool
	Old models.Status
	New models.Status
}

// Transition attempts to move the record from its current status to to.
// It enforces models.CanTransition (§3.4) and, on success, fires any
// startup/stop waiters that the new status satisfies and fans the change
// out to status subscribers — all outside the lock.
func (r *ServerRecord) Transition(to models.Status, reason string) TransitionResult {
	r.mu.Lock()
	from := r.status
	if !models.CanTransition(from, to) {
		r.mu.Unlock()
		return TransitionResult{OK: false, Old: from, New: from}
	}
	r.status = to
	r.updatedAt = time.Now()
	r.lastReason = reason

	var fired []*waiter
	switch to {
	case models.StatusRunning, models.StatusCrashed:
		fired = append(fired, r.startupWaiters...)
		r.startupWaiters = nil
	}
	switch to {
	case models.StatusStopped, models.StatusCrashed:
		fired = append(fired, r.stopWaiters...)
		r.stopWaiters = nil
	}

	subs := make([]*StatusSubscriber, 0, len(r.statusSubs))
	for s := range r.statusSubs {
		subs = append(subs, s)
	}
	r.mu.Unlock()

	var waitErr error
	if to == models.StatusCrashed {
		waitErr = errCrashed
	}
	for _, w := range fired {
		w.fire(waitErr)
	}

	event := models.ServerStatusChanged{ServerID: r.id, Old: from, New: to, Reason: reason}
	for _, s := range subs {
		select {
		case s.ch <- event:
		default:
			// Coalescing channel: drop the stale value and push the
			// latest one through so the subscriber never blocks.
			metrics.RecordSubscriberOverflow("status")
			select {
			case <-s.ch:
			default:
			}
			select {
			case s.ch <- event:
			default:
			}
		}
	}

	return TransitionResult{OK: true, Old: from, New: to}
}

// AwaitStartup blocks until the record leaves Starting (reaches Running
// or Crashed) or ctx-equivalent timeout elapses, whichever comes first.
// Supervisor.Start uses this to implement the startup-timeout invariant
// (§4.1, §5).
func (r *ServerRecord) AwaitStartup(timeout time.Duration) error {
	r.mu.Lock()
	if r.status != models.StatusStarting {
		r.mu.Unlock()
		return nil
	}
	w := newWaiter()
	r.startupWaiters = append(r.startupWaiters, w)
	r.mu.Unlock()

	select {
	case <-w.done:
		return w.err
	case <-time.After(timeout):
		return errStartupTimeout
	}
}

// AwaitStop blocks until the record reaches Stopped or Crashed, or the
// timeout elapses.
func (r *ServerRecord) AwaitStop(timeout time.Duration) error {
	r.mu.Lock()
	if r.status == models.StatusStopped || r.status == models.StatusCrashed {
		r.mu.Unlock()
		return nil
	}
	w := newWaiter()
	r.stopWaiters = append(r.stopWaiters, w)
	r.mu.Unlock()

	select {
	case <-w.done:
		return w.err
	case <-time.After(timeout):
		return errStopTimeout
	}
}

// AppendLog writes a line into the ring buffer and fans it out to every
// log subscriber, dropping the oldest queued line for any subscriber
// whose channel is full.
func (r *ServerRecord) AppendLog(line string) {
	r.mu.Lock()
	r.ring[r.ringHead] = line
	r.ringHead = (r.ringHead + 1) % r.ringSize
	if r.ringHead == 0 {
		r.ringFilled = true
	}

	subs := make([]*LogSubscriber, 0, len(r.logSubs))
	for s := range r.logSubs {
		subs = append(subs, s)
	}
	id := r.id
	r.mu.Unlock()

	event := models.LogLine{ServerID: id, Line: line, Timestamp: time.Now().Unix()}
	for _, s := range subs {
		select {
		case s.ch <- event:
		default:
			metrics.RecordSubscriberOverflow("log")
			select {
			case <-s.ch:
			default:
			}
			select {
			case s.ch <- event:
			default:
			}
		}
	}
}

// Tail returns up to n of the most recent log lines, oldest first. n <= 0
// returns the full buffer.
func (r *ServerRecord) Tail(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ordered []string
	if r.ringFilled {
		ordered = make([]string, 0, r.ringSize)
		ordered = append(ordered, r.ring[r.ringHead:]...)
		ordered = append(ordered, r.ring[:r.ringHead]...)
	} else {
		ordered = append([]string(nil), r.ring[:r.ringHead]...)
	}

	if n <= 0 || n >= len(ordered) {
		return ordered
	}
	return ordered[len(ordered)-n:]
}

// SubscribeLog registers a new log subscriber with a buffered channel
// sized from the record's configured subscriber queue.
func (r *ServerRecord) SubscribeLog() *LogSubscriber {
	s := &LogSubscriber{ch: make(chan models.LogLine, r.subQueue), record: r}
	r.mu.Lock()
	r.logSubs[s] = struct{}{}
	r.mu.Unlock()
	return s
}

func (r *ServerRecord) removeLogSubscriber(s *LogSubscriber) {
	r.mu.Lock()
	delete(r.logSubs, s)
	r.mu.Unlock()
}

// SubscribeStatus registers a new status subscriber with a size-1
// coalescing channel, primed with the current status so the subscriber
// always has something to read immediately.
func (r *ServerRecord) SubscribeStatus() *StatusSubscriber {
	s := &StatusSubscriber{ch: make(chan models.ServerStatusChanged, 1), record: r}
	r.mu.Lock()
	r.statusSubs[s] = struct{}{}
	current := r.status
	r.mu.Unlock()
	s.ch <- models.ServerStatusChanged{ServerID: r.id, Old: current, New: current, Reason: "subscribed"}
	return s
}

func (r *ServerRecord) removeStatusSubscriber(s *StatusSubscriber) {
	r.mu.Lock()
	delete(r.statusSubs, s)
	r.mu.Unlock()
}

// LogSubscriberCount and StatusSubscriberCount expose fan-out width for
// metrics (§6).
func (r *ServerRecord) LogSubscriberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.logSubs)
}

func (r *ServerRecord) StatusSubscriberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.statusSubs)
}
