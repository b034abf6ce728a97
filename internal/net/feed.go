// Package net serves the live match to presentation clients: health and
// diagnostics over HTTP and a websocket stream of JSON messages.
package net

import (
	"sync"
	"sync/atomic"
)

// DefaultFeedBuffer is the number of queued messages a slow subscriber may
// fall behind by before messages are dropped for it.
const DefaultFeedBuffer = 64

// Feed fans encoded messages out to subscribers. Publish never blocks: a
// subscriber whose queue is full misses the message.
type Feed struct {
	mu          sync.Mutex
	buffer      int
	next        uint64
	subscribers map[uint64]chan []byte
	closed      bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

// FeedStats summarizes feed delivery for diagnostics.
type FeedStats struct {
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
}

// NewFeed constructs a feed whose subscribers each queue up to buffer
// messages.
func NewFeed(buffer int) *Feed {
	if buffer <= 0 {
		buffer = DefaultFeedBuffer
	}
	return &Feed{
		buffer:      buffer,
		subscribers: make(map[uint64]chan []byte),
	}
}

// Subscribe registers a new subscriber. ok is false once the feed is closed.
func (f *Feed) Subscribe() (id uint64, messages <-chan []byte, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, nil, false
	}
	f.next++
	ch := make(chan []byte, f.buffer)
	f.subscribers[f.next] = ch
	return f.next, ch, true
}

// Unsubscribe removes a subscriber and closes its channel.
func (f *Feed) Unsubscribe(id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.subscribers[id]; ok {
		delete(f.subscribers, id)
		close(ch)
	}
}

// Publish queues data for every subscriber.
func (f *Feed) Publish(data []byte) {
	if len(data) == 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.published.Add(1)
	for _, ch := range f.subscribers {
		select {
		case ch <- data:
		default:
			f.dropped.Add(1)
		}
	}
}

// Stats reports subscriber and delivery counts.
func (f *Feed) Stats() FeedStats {
	f.mu.Lock()
	subscribers := len(f.subscribers)
	f.mu.Unlock()
	return FeedStats{
		Subscribers: subscribers,
		Published:   f.published.Load(),
		Dropped:     f.dropped.Load(),
	}
}

// Close disconnects every subscriber and rejects new ones.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, ch := range f.subscribers {
		delete(f.subscribers, id)
		close(ch)
	}
}
