// Package statemachine drives per-item lifecycles with composable bitflag
// states. Membership changes are queued and applied at fixed flush points,
// so a handler never sees its own item list change while iterating it.
package statemachine

import (
	"errors"
	"fmt"
)

// MaxStates is the number of distinct states a Machine can register.
const MaxStates = 64

// growBlock is the fixed increment used when per-item arrays run out of room.
const growBlock = 64

var (
	ErrTooManyStates = errors.New("statemachine: too many states")
	ErrUnknownState  = errors.New("statemachine: unknown state")
	ErrNoStates      = errors.New("statemachine: handler requires at least one state")
)

// State is a registered state bit.
type State uint8

type stateInfo struct {
	name     string
	handlers []*Handler
}

type actionKind uint8

const (
	actionAdd actionKind = iota
	actionRemove
	actionRelease
)

type action struct {
	kind    actionKind
	id      int
	handler *Handler
}

// Machine holds per-item state masks, the registered handlers and the queue
// of deferred membership changes.
type Machine struct {
	states   []stateInfo
	handlers []*Handler
	masks    []uint64
	pending  []action
	free     func(id int)
}

// New creates a machine. free, if non-nil, is called for each released item
// once it has left every handler.
func New(free func(id int)) *Machine {
	return &Machine{
		masks:   make([]uint64, growBlock),
		pending: make([]action, 0, growBlock),
		free:    free,
	}
}

// RegisterState assigns the next unused bit to name.
func (m *Machine) RegisterState(name string) (State, error) {
	if len(m.states) >= MaxStates {
		return 0, fmt.Errorf("%w: cannot register %q", ErrTooManyStates, name)
	}
	m.states = append(m.states, stateInfo{name: name})
	return State(len(m.states) - 1), nil
}

// StateName returns the name a state was registered with.
func (m *Machine) StateName(s State) string {
	if int(s) >= len(m.states) {
		return ""
	}
	return m.states[s].name
}

// RegisterHandler creates a handler that tracks items holding every one of
// states. Handlers run in registration order.
func (m *Machine) RegisterHandler(states ...State) (*Handler, error) {
	if len(states) == 0 {
		return nil, ErrNoStates
	}
	var mask uint64
	for _, s := range states {
		if int(s) >= len(m.states) {
			return nil, fmt.Errorf("%w: %d", ErrUnknownState, s)
		}
		mask |= 1 << s
	}

	h := &Handler{
		mask: mask,
		slot: make([]int, growBlock),
	}
	m.handlers = append(m.handlers, h)
	for s := range m.states {
		if mask&(1<<s) != 0 {
			m.states[s].handlers = append(m.states[s].handlers, h)
		}
	}
	return h, nil
}

func (m *Machine) ensure(id int) {
	if id < len(m.masks) {
		return
	}
	n := len(m.masks)
	for n <= id {
		n += growBlock
	}
	grown := make([]uint64, n)
	copy(grown, m.masks)
	m.masks = grown
}

// AddState sets s on id and queues an add for every handler whose full
// requirement is now met. Adding a held state does nothing.
func (m *Machine) AddState(id int, s State) {
	if id < 0 || int(s) >= len(m.states) {
		return
	}
	m.ensure(id)
	bit := uint64(1) << s
	if m.masks[id]&bit != 0 {
		return
	}
	m.masks[id] |= bit
	mask := m.masks[id]
	for _, h := range m.states[s].handlers {
		if mask&h.mask == h.mask {
			m.pending = append(m.pending, action{kind: actionAdd, id: id, handler: h})
		}
	}
}

// RemoveState clears s on id and queues a removal from every handler that
// required it. The mask changes immediately; handler membership changes at
// the next flush.
func (m *Machine) RemoveState(id int, s State) {
	if !m.Has(id, s) {
		return
	}
	bit := uint64(1) << s
	prev := m.masks[id]
	m.masks[id] &^= bit
	for _, h := range m.states[s].handlers {
		if prev&h.mask == h.mask {
			m.pending = append(m.pending, action{kind: actionRemove, id: id, handler: h})
		}
	}
}

// ReleaseItem clears every state of id and queues its removal from all
// handlers followed by the free callback.
func (m *Machine) ReleaseItem(id int) {
	if id < 0 {
		return
	}
	m.ensure(id)
	m.masks[id] = 0
	m.pending = append(m.pending, action{kind: actionRelease, id: id})
}

// Has reports whether id currently holds s.
func (m *Machine) Has(id int, s State) bool {
	if id < 0 || id >= len(m.masks) || int(s) >= len(m.states) {
		return false
	}
	return m.masks[id]&(1<<s) != 0
}

// Mask returns the raw state mask of id.
func (m *Machine) Mask(id int) uint64 {
	if id < 0 || id >= len(m.masks) {
		return 0
	}
	return m.masks[id]
}

// Pending returns the number of queued membership changes.
func (m *Machine) Pending() int { return len(m.pending) }

// Flush applies every queued membership change in order.
func (m *Machine) Flush() {
	for i := 0; i < len(m.pending); i++ {
		a := m.pending[i]
		switch a.kind {
		case actionAdd:
			a.handler.add(a.id)
		case actionRemove:
			a.handler.remove(a.id)
		case actionRelease:
			for _, h := range m.handlers {
				h.remove(a.id)
			}
			if m.free != nil {
				m.free(a.id)
			}
		}
	}
	m.pending = m.pending[:0]
}

// Tick flushes, then runs each handler in registration order with a flush
// after each one.
func (m *Machine) Tick() {
	m.Flush()
	for _, h := range m.handlers {
		h.run()
		m.Flush()
	}
}
