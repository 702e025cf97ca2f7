// Package relay fans pipeline lifecycle events out to local SSE
// subscribers, giving sidebar UIs a live view of captures and syncs.
package relay

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const subscriberBufSize = 256

// Pipeline stages published on the feed.
const (
	StageCaptured   = "captured"
	StageReplayed   = "replayed"
	StageNormalized = "normalized"
	StageConfirmed  = "confirmed"
	StageSynced     = "synced"
	StageFailed     = "failed"
)

// Event is one pipeline lifecycle notification.
type Event struct {
	Stage   string
	Payload string
}

// Broker fans out events to all subscribed SSE clients.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]chan Event
	nextID      atomic.Int64
}

// NewBroker creates a new SSE event broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[int64]chan Event),
	}
}

// Subscribe registers a new client. Returns the subscriber ID and a channel
// to receive events on. The channel is buffered; slow consumers will have
// events dropped.
func (b *Broker) Subscribe() (int64, <-chan Event) {
	id := b.nextID.Add(1)
	ch := make(chan Event, subscriberBufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	ch, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish sends an event to all subscribers. Non-blocking: slow clients
// have events dropped.
func (b *Broker) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}

// PublishStage marshals detail and publishes it under the given stage,
// stamping the event time.
func (b *Broker) PublishStage(stage string, detail map[string]any) {
	if detail == nil {
		detail = make(map[string]any)
	}
	detail["at"] = time.Now().UTC().Format(time.RFC3339Nano)
	payload, err := json.Marshal(detail)
	if err != nil {
		slog.Debug("feed event marshal failed", "stage", stage, "error", err)
		return
	}
	b.Publish(Event{Stage: stage, Payload: string(payload)})
}

// ClientCount returns the number of active subscribers.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
