// Package pool provides a fixed-identity object pool.
//
// Every item handed out by a Pool carries a dense integer id that is stable
// for the item's lifetime and reused after release. Items are stored by
// pointer, so growing the pool never invalidates ids or pointers that were
// handed out earlier. Pools never shrink.
package pool

import "log"

// Pool hands out *T values keyed by dense integer ids.
type Pool[T any] struct {
	name     string
	items    []*T
	live     []bool
	free     []int // LIFO freelist of released ids
	capacity int
	count    int

	newItem func(id int) *T
	reset   func(*T)
}

// New creates a pool with room for capacity items before it has to grow.
// newItem constructs a fresh item for a never-used id. reset, if non-nil,
// runs when a released item is handed out again; it never runs on first
// construction.
func New[T any](name string, capacity int, newItem func(id int) *T, reset func(*T)) *Pool[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Pool[T]{
		name:     name,
		items:    make([]*T, 0, capacity),
		live:     make([]bool, 0, capacity),
		free:     make([]int, 0, capacity),
		capacity: capacity,
		newItem:  newItem,
		reset:    reset,
	}
}

// Acquire returns a live item and its id. Released ids are reused first.
func (p *Pool[T]) Acquire() (int, *T) {
	if n := len(p.free); n > 0 {
		id := p.free[n-1]
		p.free = p.free[:n-1]
		item := p.items[id]
		if p.reset != nil {
			p.reset(item)
		}
		p.live[id] = true
		p.count++
		return id, item
	}

	id := len(p.items)
	if id >= p.capacity {
		p.capacity *= 2
		log.Printf("⚠️ Pool %q exhausted, growing to %d items", p.name, p.capacity)
	}
	item := p.newItem(id)
	p.items = append(p.items, item)
	p.live = append(p.live, true)
	p.count++
	return id, item
}

// Release returns id to the freelist. Releasing an unknown or already
// released id is a no-op and returns false.
func (p *Pool[T]) Release(id int) bool {
	if id < 0 || id >= len(p.items) || !p.live[id] {
		return false
	}
	p.live[id] = false
	p.free = append(p.free, id)
	p.count--
	return true
}

// Get returns the live item for id, or (nil, false) for stale ids.
func (p *Pool[T]) Get(id int) (*T, bool) {
	if id < 0 || id >= len(p.items) || !p.live[id] {
		return nil, false
	}
	return p.items[id], true
}

// Live reports whether id is currently handed out.
func (p *Pool[T]) Live(id int) bool {
	return id >= 0 && id < len(p.items) && p.live[id]
}

// Each calls fn for every live item in id order.
func (p *Pool[T]) Each(fn func(id int, item *T)) {
	for id, item := range p.items {
		if p.live[id] {
			fn(id, item)
		}
	}
}

// Len returns the number of live items.
func (p *Pool[T]) Len() int { return p.count }

// Constructed returns the number of items ever constructed.
func (p *Pool[T]) Constructed() int { return len(p.items) }

// Cap returns the current capacity before the next growth warning.
func (p *Pool[T]) Cap() int { return p.capacity }

// Name returns the pool's diagnostic name.
func (p *Pool[T]) Name() string { return p.name }
