package qhybrid

import (
	"sync"
	"time"
)

/*
BroadcastGroup fans training progress out to any number of monitors.
Sends never block the training loop: a subscriber whose buffer is full
misses that epoch, and the drop is counted.
*/
type BroadcastGroup struct {
	mu sync.RWMutex

	ID          string
	subscribers []chan EpochMetrics
	metrics     BroadcastMetrics
	closed      bool
}

// BroadcastMetrics tracks what the group delivered.
type BroadcastMetrics struct {
	MessagesSent      int64
	MessagesDropped   int64
	ActiveSubscribers int
	LastBroadcastTime time.Time
}

func NewBroadcastGroup(id string) *BroadcastGroup {
	return &BroadcastGroup{ID: id}
}

/*
Subscribe registers a new monitor.

Parameters:
  - bufferSize: how many epochs the monitor may lag behind before drops

Returns:
  - <-chan EpochMetrics: closed when the group closes; a subscription made
    after Close gets an already-closed channel
*/
func (bg *BroadcastGroup) Subscribe(bufferSize int) <-chan EpochMetrics {
	bg.mu.Lock()
	defer bg.mu.Unlock()

	ch := make(chan EpochMetrics, max(bufferSize, 0))
	if bg.closed {
		close(ch)
		return ch
	}

	bg.subscribers = append(bg.subscribers, ch)
	bg.metrics.ActiveSubscribers++
	return ch
}

// Send delivers m to every subscriber with room for it.
func (bg *BroadcastGroup) Send(m EpochMetrics) {
	bg.mu.Lock()
	defer bg.mu.Unlock()

	if bg.closed {
		return
	}

	for _, ch := range bg.subscribers {
		select {
		case ch <- m:
			bg.metrics.MessagesSent++
		default:
			bg.metrics.MessagesDropped++
		}
	}
	bg.metrics.LastBroadcastTime = time.Now()
}

func (bg *BroadcastGroup) GetMetrics() BroadcastMetrics {
	bg.mu.RLock()
	defer bg.mu.RUnlock()
	return bg.metrics
}

// Close closes every subscriber channel. It is safe to call more than once.
func (bg *BroadcastGroup) Close() {
	bg.mu.Lock()
	defer bg.mu.Unlock()

	if bg.closed {
		return
	}
	bg.closed = true

	for _, ch := range bg.subscribers {
		close(ch)
	}
	bg.subscribers = nil
	bg.metrics.ActiveSubscribers = 0
}
