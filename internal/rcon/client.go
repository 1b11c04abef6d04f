package rcon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/forgekeeper/forgekeeper/internal/metrics"
)

// Sentinel errors matching §4.3's documented failure modes.
var (
	ErrNotRunning       = errors.New("rcon: server is not running")
	ErrNotAuthenticated = errors.New("rcon: authentication failed")
	ErrDisconnected     = errors.New("rcon: connection lost")
	ErrBlockedCommand   = errors.New("rcon: command is blocked, use the supervised stop path")
)

// blockedFirstTokens are commands that must go through Supervisor.Stop/
// Restart instead of being executed directly (§4.3 Blocklist).
var blockedFirstTokens = map[string]bool{
	"stop":     true,
	"restart":  true,
	"shutdown": true,
}

// IsBlocked reports whether command's first whitespace-delimited token
// is on the blocklist.
func IsBlocked(command string) bool {
	first, _, _ := strings.Cut(strings.TrimSpace(command), " ")
	return blockedFirstTokens[strings.ToLower(first)]
}

// BreakerConfig configures the circuit breaker guarding
// RconClient.Execute against a wedged JVM.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// DefaultBreakerConfig returns production defaults, the same values the
// teacher's DefaultCircuitBreakerConfig uses.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
	}
}

func newBreaker(name string, cfg BreakerConfig) *gobreaker.CircuitBreaker[string] {
	return gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetRconBreakerState(name, breakerStateValue(to))
		},
	})
}

// breakerStateValue maps a gobreaker.State to the 0/1/2 scale documented
// on forgekeeper_rcon_breaker_state (§6 Metrics).
func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Client is one server's lazily-connecting RCON session. A Client is
// safe for concurrent use; Execute serializes requests on the
// underlying connection since RCON has no multiplexing of its own.
type Client struct {
	addr     string
	password string
	dialer   net.Dialer

	breaker *gobreaker.CircuitBreaker[string]

	mu        sync.Mutex
	conn      net.Conn
	nextReqID atomic.Int32
}

// New creates a Client targeting host:port, authenticating with
// password on first use. Connection is established lazily on the first
// Execute call, and again after any disconnect (§4.3 Contract).
func New(addr, password string, breakerCfg BreakerConfig) *Client {
	return &Client{
		addr:     addr,
		password: password,
		breaker:  newBreaker("rcon:"+addr, breakerCfg),
	}
}

// Close tears down the underlying connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Execute runs command and returns the server's response text. It fails
// fast with gobreaker.ErrOpenState if recent attempts have been failing
// repeatedly, and with ErrBlockedCommand for stop/restart/shutdown,
// which must go through the Supervisor's supervised stop path instead.
func (c *Client) Execute(ctx context.Context, command string, timeout time.Duration) (string, error) {
	if IsBlocked(command) {
		return "", ErrBlockedCommand
	}

	return c.breaker.Execute(func() (string, error) {
		return c.execute(ctx, command, timeout)
	})
}

// ExecuteStop sends the literal "stop" command, bypassing the blocklist
// that Execute enforces. Only the Supervisor's own supervised stop path
// (§4.5 Stop) may call this; every other caller must go through Execute,
// which rejects "stop" so callers can't sidestep the graceful shutdown
// sequence (SIGTERM/SIGKILL escalation, status bookkeeping).
func (c *Client) ExecuteStop(ctx context.Context, timeout time.Duration) (string, error) {
	return c.breaker.Execute(func() (string, error) {
		return c.execute(ctx, "stop", timeout)
	})
}

func (c *Client) execute(ctx context.Context, command string, timeout time.Duration) (string, error) {
	start := time.Now()
	defer func() { metrics.RecordRconCommand(time.Since(start)) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.connectLocked(ctx, timeout); err != nil {
			return "", err
		}
	}

	deadline := time.Now().Add(timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = c.conn.SetDeadline(deadline)

	id := c.nextReqID.Add(1)
	if err := writePacket(c.conn, packet{requestID: id, pktType: TypeCommand, payload: command}); err != nil {
		c.disconnectLocked()
		return "", fmt.Errorf("%w: %v", ErrDisconnected, err)
	}

	resp, err := readPacket(c.conn)
	if err != nil {
		c.disconnectLocked()
		return "", fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	if resp.requestID != id {
		c.disconnectLocked()
		return "", fmt.Errorf("%w: response id %d does not match request id %d", ErrDisconnected, resp.requestID, id)
	}

	return resp.payload, nil
}

// connectLocked dials addr and completes the LOGIN handshake. Caller
// must hold c.mu.
func (c *Client) connectLocked(ctx context.Context, timeout time.Duration) error {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(dialCtx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", ErrNotRunning, c.addr, err)
	}
	_ = conn.SetDeadline(time.Now().Add(timeout))

	id := c.nextReqID.Add(1)
	if err := writePacket(conn, packet{requestID: id, pktType: TypeLogin, payload: c.password}); err != nil {
		conn.Close()
		return fmt.Errorf("%w: send login: %v", ErrDisconnected, err)
	}

	resp, err := readPacket(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("%w: read login response: %v", ErrDisconnected, err)
	}
	if resp.requestID == authFailedID {
		conn.Close()
		return ErrNotAuthenticated
	}

	c.conn = conn
	return nil
}

func (c *Client) disconnectLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

