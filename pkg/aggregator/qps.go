package aggregator

import (
	"sync/atomic"
	"time"
)

type qpsSlot struct {
	second atomic.Int64
	count  atomic.Int64
}

// qpsWindow counts events per second in a ring of one-second slots.
type qpsWindow struct {
	slots []qpsSlot
}

func newQPSWindow(seconds int) *qpsWindow {
	if seconds <= 0 {
		seconds = 1
	}
	return &qpsWindow{slots: make([]qpsSlot, seconds)}
}

func (q *qpsWindow) slot(sec int64) *qpsSlot {
	return &q.slots[sec%int64(len(q.slots))]
}

// tick counts one event in the slot of now, zeroing it first when the slot
// still holds an older second.
func (q *qpsWindow) tick(now time.Time) {
	sec := now.Unix()
	s := q.slot(sec)
	for {
		cur := s.second.Load()
		if cur == sec {
			break
		}
		if s.second.CompareAndSwap(cur, sec) {
			s.count.Store(0)
			break
		}
	}
	s.count.Add(1)
}

// at returns the count recorded for the given epoch second, or 0 when the
// slot has since been reused.
func (q *qpsWindow) at(sec int64) int64 {
	s := q.slot(sec)
	if s.second.Load() != sec {
		return 0
	}
	return s.count.Load()
}

// current returns the count of the last completed second.
func (q *qpsWindow) current(now time.Time) int64 {
	return q.at(now.Unix() - 1)
}

// average returns the mean count over completed seconds of the window that
// saw traffic.
func (q *qpsWindow) average(now time.Time) float64 {
	last := now.Unix() - 1
	var sum, active int64
	for sec := last; sec > last-int64(len(q.slots)); sec-- {
		if c := q.at(sec); c > 0 {
			sum += c
			active++
		}
	}
	if active == 0 {
		return 0
	}
	return float64(sum) / float64(active)
}

func (q *qpsWindow) reset() {
	for i := range q.slots {
		q.slots[i].second.Store(0)
		q.slots[i].count.Store(0)
	}
}
