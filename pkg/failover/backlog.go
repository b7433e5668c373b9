package failover

import (
	"sync"
	"time"
)

// QueuedRecord is an observation that could not be written to the shared
// store. Timestamp is the time of the original call so replays land in the
// original day bucket.
type QueuedRecord struct {
	Endpoint  string    `json:"endpoint"`
	LatencyMs int64     `json:"latencyMs"`
	Success   bool      `json:"success"`
	ErrorOnly bool      `json:"errorOnly,omitempty"`
	CallerID  string    `json:"callerId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Backlog is a bounded FIFO of queued records. Push never blocks: when the
// backlog is full the oldest record is evicted. Records requeued after a
// failed replay are pushed again, so they land behind anything queued
// meanwhile and insertion order is not kept across a failed drain.
type Backlog struct {
	ch chan QueuedRecord

	// pushMu makes evict-then-insert atomic across producers.
	pushMu sync.Mutex
}

// NewBacklog returns a backlog holding at most capacity records.
func NewBacklog(capacity int) *Backlog {
	if capacity <= 0 {
		capacity = 1
	}
	return &Backlog{ch: make(chan QueuedRecord, capacity)}
}

// Push appends r and reports how many records were evicted to make room.
func (b *Backlog) Push(r QueuedRecord) (evicted int) {
	b.pushMu.Lock()
	defer b.pushMu.Unlock()

	for {
		select {
		case b.ch <- r:
			return evicted
		default:
		}
		select {
		case <-b.ch:
			evicted++
		default:
		}
	}
}

// Pop removes and returns up to n records in FIFO order.
func (b *Backlog) Pop(n int) []QueuedRecord {
	var out []QueuedRecord
	for len(out) < n {
		select {
		case r := <-b.ch:
			out = append(out, r)
		default:
			return out
		}
	}
	return out
}

// Len returns the number of queued records.
func (b *Backlog) Len() int {
	return len(b.ch)
}

// Cap returns the capacity.
func (b *Backlog) Cap() int {
	return cap(b.ch)
}
