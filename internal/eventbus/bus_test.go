package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/forgekeeper/forgekeeper/internal/models"
)

func TestPublishStatusDeliversToMatchingServerSubscriber(t *testing.T) {
	bus := New(8)
	defer bus.Close()

	ch, cancel, err := bus.SubscribeStatus(context.Background(), "survival-1")
	if err != nil {
		t.Fatalf("SubscribeStatus: %v", err)
	}
	defer cancel()

	waitForGoChannelSubscription()

	ev := models.ServerStatusChanged{ServerID: "survival-1", Old: models.StatusStarting, New: models.StatusRunning}
	if err := bus.PublishStatus(ev); err != nil {
		t.Fatalf("PublishStatus: %v", err)
	}

	select {
	case got := <-ch:
		if got != ev {
			t.Fatalf("got %+v, want %+v", got, ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for status event")
	}
}

func TestPublishStatusDoesNotReachOtherServerSubscriber(t *testing.T) {
	bus := New(8)
	defer bus.Close()

	ch, cancel, err := bus.SubscribeStatus(context.Background(), "creative-1")
	if err != nil {
		t.Fatalf("SubscribeStatus: %v", err)
	}
	defer cancel()

	waitForGoChannelSubscription()

	if err := bus.PublishStatus(models.ServerStatusChanged{ServerID: "survival-1", New: models.StatusRunning}); err != nil {
		t.Fatalf("PublishStatus: %v", err)
	}

	select {
	case got := <-ch:
		t.Fatalf("unexpected event delivered to unrelated subscriber: %+v", got)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSubscribeBackupsIsGlobalAcrossServers(t *testing.T) {
	bus := New(8)
	defer bus.Close()

	ch, cancel, err := bus.SubscribeBackups(context.Background())
	if err != nil {
		t.Fatalf("SubscribeBackups: %v", err)
	}
	defer cancel()

	waitForGoChannelSubscription()

	for _, id := range []string{"a", "b"} {
		if err := bus.PublishBackup(models.BackupCompleted{ServerID: id, BackupID: "x", Status: "ok"}); err != nil {
			t.Fatalf("PublishBackup: %v", err)
		}
	}

	for i := 0; i < 2; i++ {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for backup event %d", i)
		}
	}
}

func TestSubscriberRelayDropsOldestWhenFull(t *testing.T) {
	bus := New(2)
	defer bus.Close()

	ch, cancel, err := bus.SubscribeLog(context.Background(), "lag-1")
	if err != nil {
		t.Fatalf("SubscribeLog: %v", err)
	}
	defer cancel()

	waitForGoChannelSubscription()

	for i := 0; i < 10; i++ {
		if err := bus.PublishLog(models.LogLine{ServerID: "lag-1", Line: "line"}); err != nil {
			t.Fatalf("PublishLog: %v", err)
		}
	}

	time.Sleep(200 * time.Millisecond)

	drained := 0
	for {
		select {
		case <-ch:
			drained++
		default:
			if drained == 0 {
				t.Fatal("expected at least one log line to survive the drop-oldest relay")
			}
			return
		}
	}
}

func TestPublishAfterCloseReturnsErrClosed(t *testing.T) {
	bus := New(8)
	if err := bus.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := bus.PublishStatus(models.ServerStatusChanged{ServerID: "x"}); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestSubscribeAfterCloseReturnsErrClosed(t *testing.T) {
	bus := New(8)
	if err := bus.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, _, err := bus.SubscribeStatus(context.Background(), "x"); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestCloseClosesSubscriberChannels(t *testing.T) {
	bus := New(8)

	ch, cancel, err := bus.SubscribeStatus(context.Background(), "x")
	if err != nil {
		t.Fatalf("SubscribeStatus: %v", err)
	}
	defer cancel()

	if err := bus.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected channel to be closed after bus Close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscriber channel to close")
	}
}

// waitForGoChannelSubscription gives gochannel's internal subscribe
// bookkeeping a moment to register before a publish races it — the
// same pattern watermill's own gochannel tests use, since Subscribe
// returns before the topic's subscriber list is guaranteed visible to
// a concurrent Publish.
func waitForGoChannelSubscription() {
	time.Sleep(50 * time.Millisecond)
}
