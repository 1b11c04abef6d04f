package record

import (
	"testing"
	"time"

	"github.com/forgekeeper/forgekeeper/internal/models"
)

func TestTransitionEnforcesLegalEdges(t *testing.T) {
	r := New("srv-1", 4, 2)

	res := r.Transition(models.StatusRunning, "skip starting")
	if res.OK {
		t.Fatal("expected Stopped->Running to be rejected")
	}
	if r.Status() != models.StatusStopped {
		t.Fatalf("status should be unchanged, got %v", r.Status())
	}

	res = r.Transition(models.StatusStarting, "launch")
	if !res.OK || r.Status() != models.StatusStarting {
		t.Fatalf("expected Stopped->Starting to succeed, got %+v", res)
	}

	res = r.Transition(models.StatusRunning, "startup marker seen")
	if !res.OK || r.Status() != models.StatusRunning {
		t.Fatalf("expected Starting->Running to succeed, got %+v", res)
	}
}

func TestAwaitStartupUnblocksOnRunning(t *testing.T) {
	r := New("srv-1", 4, 2)
	r.Transition(models.StatusStarting, "launch")

	done := make(chan error, 1)
	go func() {
		done <- r.AwaitStartup(time.Second)
	}()

	time.Sleep(10 * time.Millisecond)
	r.Transition(models.StatusRunning, "startup marker seen")

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("AwaitStartup did not return")
	}
}

func TestAwaitStartupTimesOut(t *testing.T) {
	r := New("srv-1", 4, 2)
	r.Transition(models.StatusStarting, "launch")

	err := r.AwaitStartup(20 * time.Millisecond)
	if err != errStartupTimeout {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestAwaitStartupReturnsCrashedError(t *testing.T) {
	r := New("srv-1", 4, 2)
	r.Transition(models.StatusStarting, "launch")

	done := make(chan error, 1)
	go func() {
		done <- r.AwaitStartup(time.Second)
	}()

	time.Sleep(10 * time.Millisecond)
	r.Transition(models.StatusCrashed, "exited before startup marker")

	select {
	case err := <-done:
		if err != errCrashed {
			t.Fatalf("expected crashed error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("AwaitStartup did not return")
	}
}

func TestRingBufferWraparoundPreservesOrder(t *testing.T) {
	r := New("srv-1", 3, 2)

	for _, line := range []string{"a", "b", "c", "d", "e"} {
		r.AppendLog(line)
	}

	got := r.Tail(0)
	want := []string{"c", "d", "e"}
	if len(got) != len(want) {
		t.Fatalf("expected %d lines, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("at %d: expected %q, got %q (full: %v)", i, want[i], got[i], got)
		}
	}
}

func TestTailReturnsLastN(t *testing.T) {
	r := New("srv-1", 10, 2)
	for _, line := range []string{"a", "b", "c"} {
		r.AppendLog(line)
	}

	got := r.Tail(2)
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Fatalf("expected [b c], got %v", got)
	}
}

func TestLogSubscriberDropsOldestOnOverflow(t *testing.T) {
	r := New("srv-1", 10, 2)
	sub := r.SubscribeLog()
	defer sub.Close()

	for _, line := range []string{"1", "2", "3"} {
		r.AppendLog(line)
	}

	var got []string
	for len(got) < 2 {
		select {
		case l := <-sub.C():
			got = append(got, l.Line)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for log lines")
		}
	}

	if got[0] != "2" || got[1] != "3" {
		t.Fatalf("expected the oldest queued line to be dropped, got %v", got)
	}
}

func TestStatusSubscriberReceivesLatestOnly(t *testing.T) {
	r := New("srv-1", 4, 2)
	sub := r.SubscribeStatus()
	defer sub.Close()

	// Drain the priming event sent at subscribe time.
	<-sub.C()

	r.Transition(models.StatusStarting, "launch")
	r.Transition(models.StatusRunning, "startup marker seen")
	r.Transition(models.StatusStopping, "stop requested")

	select {
	case ev := <-sub.C():
		if ev.New != models.StatusStopping {
			t.Fatalf("expected to observe the latest transition, got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("status subscriber received nothing")
	}

	select {
	case ev := <-sub.C():
		t.Fatalf("expected no further buffered event, got %+v", ev)
	default:
	}
}

func TestSubscribeCountsAndClose(t *testing.T) {
	r := New("srv-1", 4, 2)
	logSub := r.SubscribeLog()
	statusSub := r.SubscribeStatus()

	if r.LogSubscriberCount() != 1 {
		t.Fatalf("expected 1 log subscriber, got %d", r.LogSubscriberCount())
	}
	if r.StatusSubscriberCount() != 1 {
		t.Fatalf("expected 1 status subscriber, got %d", r.StatusSubscriberCount())
	}

	logSub.Close()
	statusSub.Close()

	if r.LogSubscriberCount() != 0 || r.StatusSubscriberCount() != 0 {
		t.Fatal("expected subscriber counts to reach zero after Close")
	}
}
