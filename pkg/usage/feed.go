package usage

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"mercator-hq/eventgate/pkg/gateway"
)

// DefaultFeedBuffer is the per-subscriber queue length.
const DefaultFeedBuffer = 64

// Feed fans persisted usage records out to live subscribers. Each
// subscriber has a bounded queue; a record is dropped for a subscriber whose
// queue is full so a slow reader never blocks metering.
type Feed struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	buffer  int
	dropped atomic.Int64
	logger  *slog.Logger
}

// Subscription is one live feed reader.
type Subscription struct {
	ch chan []byte
}

// C returns the channel of JSON-encoded usage records. It is closed when
// the subscription is cancelled.
func (s *Subscription) C() <-chan []byte {
	return s.ch
}

// NewFeed creates a feed with the given per-subscriber buffer.
func NewFeed(buffer int) *Feed {
	if buffer <= 0 {
		buffer = DefaultFeedBuffer
	}
	return &Feed{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		logger: slog.Default().With("component", "usage.feed"),
	}
}

// Subscribe registers a new subscriber.
func (f *Feed) Subscribe() *Subscription {
	sub := &Subscription{ch: make(chan []byte, f.buffer)}
	f.mu.Lock()
	f.subs[sub] = struct{}{}
	f.mu.Unlock()
	return sub
}

// Unsubscribe removes sub and closes its channel. It is safe to call more
// than once.
func (f *Feed) Unsubscribe(sub *Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[sub]; ok {
		delete(f.subs, sub)
		close(sub.ch)
	}
}

// Publish implements Publisher.
func (f *Feed) Publish(rec gateway.UsageRecord) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.subs) == 0 {
		return
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		f.logger.Error("failed to encode usage record", "error", err)
		return
	}

	for sub := range f.subs {
		select {
		case sub.ch <- payload:
		default:
			f.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of live subscribers.
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Dropped returns how many deliveries were dropped for slow subscribers.
func (f *Feed) Dropped() int64 {
	return f.dropped.Load()
}
