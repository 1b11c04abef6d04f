package portalloc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestAllocatePrefersPreferredPortWhenFree(t *testing.T) {
	a := New(30000, 30010, 200)
	taken := func(int) bool { return false }

	port, err := a.Allocate(context.Background(), 30005, taken)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if port != 30005 {
		t.Fatalf("expected preferred port 30005, got %d", port)
	}
}

func TestAllocateSkipsPortsReportedTaken(t *testing.T) {
	a := New(30000, 30010, 200)
	taken := func(p int) bool { return p == 30000 || p == 30001 }

	port, err := a.Allocate(context.Background(), 30000, taken)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if port == 30000 || port == 30001 {
		t.Fatalf("allocated a port reported taken: %d", port)
	}
	if port < 30000 || port > 30010 {
		t.Fatalf("allocated port %d outside range", port)
	}
}

func TestAllocateSkipsPortsAlreadyBound(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:30020")
	if err != nil {
		t.Skipf("could not bind fixed test port: %v", err)
	}
	defer ln.Close()

	a := New(30020, 30025, 200)
	taken := func(int) bool { return false }

	port, err := a.Allocate(context.Background(), 30020, taken)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if port == 30020 {
		t.Fatalf("allocated a port that was already bound")
	}
}

func TestAllocateReturnsErrRangeExhausted(t *testing.T) {
	a := New(30030, 30032, 200)
	taken := func(int) bool { return true }

	_, err := a.Allocate(context.Background(), 0, taken)
	if err == nil {
		t.Fatal("expected ErrRangeExhausted")
	}
}

func TestAllocateRespectsContextCancellation(t *testing.T) {
	a := New(30040, 30040, 0.001)
	taken := func(int) bool { return true }

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := a.Allocate(ctx, 0, taken)
	if err == nil {
		t.Fatal("expected an error from context cancellation or range exhaustion")
	}
}

func TestAllocateExplicitReturnsPortWhenFree(t *testing.T) {
	a := New(30050, 30060, 200)
	taken := func(int) bool { return false }

	port, err := a.AllocateExplicit(context.Background(), 30055, taken)
	if err != nil {
		t.Fatalf("AllocateExplicit: %v", err)
	}
	if port != 30055 {
		t.Fatalf("expected port 30055, got %d", port)
	}
}

func TestAllocateExplicitFailsWhenPortReportedTaken(t *testing.T) {
	a := New(30060, 30070, 200)
	taken := func(p int) bool { return p == 30065 }

	_, err := a.AllocateExplicit(context.Background(), 30065, taken)
	if err == nil {
		t.Fatal("expected ErrPortInUse")
	}
	if !errors.Is(err, ErrPortInUse) {
		t.Fatalf("expected ErrPortInUse, got %v", err)
	}
}

func TestAllocateExplicitFailsWhenPortAlreadyBound(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:30080")
	if err != nil {
		t.Skipf("could not bind fixed test port: %v", err)
	}
	defer ln.Close()

	a := New(30080, 30085, 200)
	taken := func(int) bool { return false }

	_, err = a.AllocateExplicit(context.Background(), 30080, taken)
	if !errors.Is(err, ErrPortInUse) {
		t.Fatalf("expected ErrPortInUse, got %v", err)
	}
}

func TestAllocateExplicitNeverSubstitutesAnotherPort(t *testing.T) {
	a := New(30090, 30100, 200)
	taken := func(p int) bool { return p == 30090 }

	_, err := a.AllocateExplicit(context.Background(), 30090, taken)
	if !errors.Is(err, ErrPortInUse) {
		t.Fatalf("expected ErrPortInUse with no fallback scan, got %v", err)
	}
}
