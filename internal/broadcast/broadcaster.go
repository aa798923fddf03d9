// Package broadcast fans published snapshots out to live subscribers such as
// WebSocket connections.
package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/mr1hm/go-disaster-map/internal/models"
)

// DefaultBuffer is the per-subscriber queue depth. Snapshots are whole
// replacements, so a subscriber only ever needs the latest few.
const DefaultBuffer = 8

type Broadcaster struct {
	subscribers map[uint64]chan *models.Snapshot
	nextID      atomic.Uint64
	dropped     atomic.Uint64
	buffer      int
	mu          sync.RWMutex
	closed      bool
}

func NewBroadcaster(buffer int) *Broadcaster {
	if buffer < 1 {
		buffer = DefaultBuffer
	}
	return &Broadcaster{
		subscribers: make(map[uint64]chan *models.Snapshot),
		buffer:      buffer,
	}
}

// Subscribe registers a new listener. After Close the returned channel is
// already closed.
func (b *Broadcaster) Subscribe() (uint64, <-chan *models.Snapshot) {
	id := b.nextID.Add(1)
	ch := make(chan *models.Snapshot, b.buffer)

	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subscribers[id] = ch
	}
	b.mu.Unlock()

	return id, ch
}

func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

// Publish delivers snap to every subscriber without blocking. Subscribers
// with a full queue miss this snapshot.
func (b *Broadcaster) Publish(snap *models.Snapshot) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- snap:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (b *Broadcaster) Dropped() uint64 {
	return b.dropped.Load()
}

// Close closes all subscriber channels so readers exit.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
