package portalloc

import (
	"context"
	"errors"
	"fmt"
	"net"

	"golang.org/x/time/rate"
)

// ErrRangeExhausted is returned when no port in [RangeStart, RangeEnd]
// is both unclaimed in the database and free to bind.
var ErrRangeExhausted = errors.New("portalloc: no free port in configured range")

// ErrPortInUse is returned by AllocateExplicit when the caller's
// requested port is already claimed or fails to bind. Unlike Allocate,
// AllocateExplicit never substitutes a different port on collision.
var ErrPortInUse = errors.New("portalloc: requested port already in use")

// DefaultPreferredPort is Minecraft's conventional default (§4.8).
const DefaultPreferredPort = 25565

// Allocator finds a free, non-colliding port for a new server. Bind
// probes are paced through a rate.Limiter so a large range scan never
// hammers the kernel's ephemeral port table in a tight loop.
type Allocator struct {
	rangeStart int
	rangeEnd   int
	limiter    *rate.Limiter
}

// New creates an Allocator scanning [rangeStart, rangeEnd] inclusive,
// probing at most probesPerSecond bind attempts per second.
func New(rangeStart, rangeEnd int, probesPerSecond float64) *Allocator {
	if probesPerSecond <= 0 {
		probesPerSecond = 50
	}
	return &Allocator{
		rangeStart: rangeStart,
		rangeEnd:   rangeEnd,
		limiter:    rate.NewLimiter(rate.Limit(probesPerSecond), 1),
	}
}

// TakenFunc reports whether port is already claimed by a non-deleted
// Server row — the database-collision half of §4.8's check. Supplied by
// the caller so this package never depends on internal/database.
type TakenFunc func(port int) bool

// Allocate returns preferred if it is free, else the first free port
// found scanning upward through the configured range. A port is free
// only if TakenFunc reports it unclaimed AND a bind(0) probe succeeds.
// Use this only when the caller has no fixed port requirement — when a
// specific port was explicitly requested, use AllocateExplicit instead
// so a collision fails the request rather than silently substituting a
// different port (§8.3 Scenario 6).
func (a *Allocator) Allocate(ctx context.Context, preferred int, taken TakenFunc) (int, error) {
	if preferred > 0 && a.tryPort(ctx, preferred, taken) {
		return preferred, nil
	}

	for port := a.rangeStart; port <= a.rangeEnd; port++ {
		if port == preferred {
			continue
		}
		if a.tryPort(ctx, port, taken) {
			return port, nil
		}
	}

	return 0, fmt.Errorf("%w: [%d, %d]", ErrRangeExhausted, a.rangeStart, a.rangeEnd)
}

// AllocateExplicit probes exactly port and returns it if free, or
// ErrPortInUse if it's already claimed or fails to bind — it never
// falls through to scanning the range for a substitute.
func (a *Allocator) AllocateExplicit(ctx context.Context, port int, taken TakenFunc) (int, error) {
	if a.tryPort(ctx, port, taken) {
		return port, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrPortInUse, port)
}

func (a *Allocator) tryPort(ctx context.Context, port int, taken TakenFunc) bool {
	if taken(port) {
		return false
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return false
	}
	return probeBind(port)
}

// probeBind reports whether port can currently be bound on all
// interfaces, releasing the listener immediately after the check.
func probeBind(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}
