package render

import (
	"sync/atomic"
)

// CacheLineSize is the typical CPU cache line size (64 bytes on x86-64)
const CacheLineSize = 64

// Padding keeps producer and consumer positions on separate cache lines.
type Padding [CacheLineSize]byte

type slot[T any] struct {
	seq  atomic.Uint64
	item T
}

// EventQueue is a bounded MPSC ring buffer. Each slot carries a sequence
// number so a consumer never reads a slot whose producer has claimed it but
// not finished writing.
//
// Memory Layout:
// [Padding][head][Padding][tail][Padding][mask][slots...]
type EventQueue[T any] struct {
	_pad0 Padding

	head  atomic.Uint64 // next slot to claim (producers)
	_pad1 Padding

	tail  atomic.Uint64 // next slot to read (single consumer)
	_pad2 Padding

	mask uint64
	_pad3 Padding

	slots   []slot[T]
	dropped atomic.Uint64
}

// NewEventQueue creates a queue; capacity is rounded up to a power of 2.
func NewEventQueue[T any](capacity int) *EventQueue[T] {
	size := 1
	for size < capacity {
		size <<= 1
	}

	q := &EventQueue[T]{
		mask:  uint64(size - 1),
		slots: make([]slot[T], size),
	}
	for i := range q.slots {
		q.slots[i].seq.Store(uint64(i))
	}
	return q
}

// TryPush adds an item. It returns false and counts a drop when the queue is
// full. Safe for concurrent producers.
func (q *EventQueue[T]) TryPush(item T) bool {
	for {
		head := q.head.Load()
		s := &q.slots[head&q.mask]
		seq := s.seq.Load()

		switch {
		case seq == head:
			if q.head.CompareAndSwap(head, head+1) {
				s.item = item
				s.seq.Store(head + 1)
				return true
			}
		case seq < head:
			q.dropped.Add(1)
			return false
		}
		// Another producer advanced head, retry.
	}
}

// TryPop removes the oldest item. Single consumer only.
func (q *EventQueue[T]) TryPop() (T, bool) {
	var zero T

	tail := q.tail.Load()
	s := &q.slots[tail&q.mask]
	if s.seq.Load() != tail+1 {
		return zero, false
	}

	item := s.item
	s.item = zero
	s.seq.Store(tail + q.mask + 1)
	q.tail.Store(tail + 1)
	return item, true
}

// DrainTo reads available items into a pre-allocated slice (zero-alloc batch)
// and returns the number written.
func (q *EventQueue[T]) DrainTo(buf []T) int {
	count := 0
	for count < len(buf) {
		item, ok := q.TryPop()
		if !ok {
			break
		}
		buf[count] = item
		count++
	}
	return count
}

// Len returns the approximate number of queued items.
func (q *EventQueue[T]) Len() int {
	head := q.head.Load()
	tail := q.tail.Load()
	if head < tail {
		return 0
	}
	return int(head - tail)
}

// Cap returns the queue capacity.
func (q *EventQueue[T]) Cap() int {
	return int(q.mask + 1)
}

// Dropped returns how many pushes were rejected because the queue was full.
func (q *EventQueue[T]) Dropped() uint64 {
	return q.dropped.Load()
}
