package eventbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/forgekeeper/forgekeeper/internal/metrics"
	"github.com/forgekeeper/forgekeeper/internal/models"
)

const backupTopic = "backup"

// DefaultQueueSize is the per-subscriber queue depth used when a caller
// does not override it (§4.9, §6.6 SUBSCRIBER_QUEUE).
const DefaultQueueSize = 128

// EventBus fans ServerStatusChanged, LogLine, and BackupCompleted
// events out to subscribers over an in-process Watermill gochannel
// Pub/Sub. Delivery is best-effort: gochannel itself blocks a
// publisher when a subscriber's channel fills, so each Subscribe* call
// interposes its own bounded, drop-oldest relay channel to keep a
// stalled HTTP/WebSocket reader from ever stalling the Supervisor.
type EventBus struct {
	pubsub    *gochannel.GoChannel
	queueSize int
	mu        sync.Mutex
	closed    bool
	relayWG   sync.WaitGroup
}

// New creates an EventBus whose subscriber relay channels are sized at
// queueSize (use DefaultQueueSize when the caller has no override).
func New(queueSize int) *EventBus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            int64(queueSize),
		Persistent:                     false,
		BlockPublishUntilSubscriberAck: false,
	}, newWMLogger())

	return &EventBus{pubsub: pubsub, queueSize: queueSize}
}

// Close tears down the underlying Pub/Sub and waits for every relay
// goroutine to observe its source channel closing, which in turn
// closes every channel handed out by Subscribe*.
func (b *EventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	err := b.pubsub.Close()
	b.relayWG.Wait()
	return err
}

func (b *EventBus) publish(topic string, payload interface{}) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event for topic %s: %w", topic, err)
	}
	msg := message.NewMessage(uuid.NewString(), data)
	return b.pubsub.Publish(topic, msg)
}

// PublishStatus delivers a ServerStatusChanged event to subscribers of
// that server's status topic.
func (b *EventBus) PublishStatus(ev models.ServerStatusChanged) error {
	return b.publish(statusTopic(ev.ServerID), ev)
}

// PublishLog delivers a LogLine event to subscribers of that server's
// log topic.
func (b *EventBus) PublishLog(ev models.LogLine) error {
	return b.publish(logTopic(ev.ServerID), ev)
}

// PublishBackup delivers a BackupCompleted event to the global backup
// topic (§4.9: backups are a global opt-in, not per-server).
func (b *EventBus) PublishBackup(ev models.BackupCompleted) error {
	return b.publish(backupTopic, ev)
}

// SubscribeStatus returns a channel of ServerStatusChanged events for
// one server. The returned cancel func unsubscribes and must be called
// to release the relay goroutine; it is also released automatically
// when the bus is Closed.
func (b *EventBus) SubscribeStatus(ctx context.Context, serverID string) (<-chan models.ServerStatusChanged, func(), error) {
	raw, cancel, err := b.subscribeRaw(ctx, statusTopic(serverID))
	if err != nil {
		return nil, nil, err
	}
	out := make(chan models.ServerStatusChanged, b.queueSize)
	relay(&b.relayWG, raw, out, "status", func(data []byte) (models.ServerStatusChanged, bool) {
		var ev models.ServerStatusChanged
		if err := json.Unmarshal(data, &ev); err != nil {
			return ev, false
		}
		return ev, true
	})
	return out, cancel, nil
}

// SubscribeLog returns a channel of LogLine events for one server.
func (b *EventBus) SubscribeLog(ctx context.Context, serverID string) (<-chan models.LogLine, func(), error) {
	raw, cancel, err := b.subscribeRaw(ctx, logTopic(serverID))
	if err != nil {
		return nil, nil, err
	}
	out := make(chan models.LogLine, b.queueSize)
	relay(&b.relayWG, raw, out, "log", func(data []byte) (models.LogLine, bool) {
		var ev models.LogLine
		if err := json.Unmarshal(data, &ev); err != nil {
			return ev, false
		}
		return ev, true
	})
	return out, cancel, nil
}

// SubscribeBackups returns a channel of BackupCompleted events across
// every server (§4.9: backups are opted into globally).
func (b *EventBus) SubscribeBackups(ctx context.Context) (<-chan models.BackupCompleted, func(), error) {
	raw, cancel, err := b.subscribeRaw(ctx, backupTopic)
	if err != nil {
		return nil, nil, err
	}
	out := make(chan models.BackupCompleted, b.queueSize)
	relay(&b.relayWG, raw, out, "backup", func(data []byte) (models.BackupCompleted, bool) {
		var ev models.BackupCompleted
		if err := json.Unmarshal(data, &ev); err != nil {
			return ev, false
		}
		return ev, true
	})
	return out, cancel, nil
}

func (b *EventBus) subscribeRaw(ctx context.Context, topic string) (<-chan *message.Message, func(), error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, nil, ErrClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	msgs, err := b.pubsub.Subscribe(subCtx, topic)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("subscribe topic %s: %w", topic, err)
	}
	return msgs, cancel, nil
}

// relay drains raw, decodes each message with decode, and forwards it
// into out using the drop-oldest-on-full non-blocking send idiom
// shared with internal/record's subscriber fan-out. Every message is
// Acked regardless of decode success since a malformed payload can
// never become valid on redelivery. A package-level generic function,
// since Go methods cannot take their own type parameters.
func relay[T any](wg *sync.WaitGroup, raw <-chan *message.Message, out chan T, channel string, decode func([]byte) (T, bool)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(out)
		for msg := range raw {
			ev, ok := decode(msg.Payload)
			msg.Ack()
			if !ok {
				continue
			}
			select {
			case out <- ev:
			default:
				metrics.RecordSubscriberOverflow(channel)
				select {
				case <-out:
				default:
				}
				select {
				case out <- ev:
				default:
				}
			}
		}
	}()
}

func statusTopic(serverID string) string { return "status." + serverID }
func logTopic(serverID string) string    { return "log." + serverID }

var _ watermill.LoggerAdapter = wmLogger{}
