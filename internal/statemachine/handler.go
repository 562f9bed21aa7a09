package statemachine

// Handler tracks the items that hold its required states.
//
// Entered holds items added since the last entry callback, Active every
// current member and Exited items removed since the last exit callback.
// Callbacks receive slices owned by the handler; they must not retain them.
type Handler struct {
	mask uint64

	entered []int
	active  []int
	exited  []int
	slot    []int // id -> active index + 1, 0 when absent

	onEntry func(ids []int)
	onTick  func(ids []int)
	onExit  func(ids []int)
}

// OnEntry registers the callback for items that joined since the last run.
func (h *Handler) OnEntry(fn func(ids []int)) *Handler {
	h.onEntry = fn
	return h
}

// OnTick registers the callback run over every active item.
func (h *Handler) OnTick(fn func(ids []int)) *Handler {
	h.onTick = fn
	return h
}

// OnExit registers the callback for items that left since the last run.
func (h *Handler) OnExit(fn func(ids []int)) *Handler {
	h.onExit = fn
	return h
}

// Active returns the current members. Valid until the next flush.
func (h *Handler) Active() []int { return h.active }

// Len returns the number of current members.
func (h *Handler) Len() int { return len(h.active) }

// Contains reports whether id is a current member.
func (h *Handler) Contains(id int) bool {
	return id >= 0 && id < len(h.slot) && h.slot[id] != 0
}

// Mask returns the handler's required state mask.
func (h *Handler) Mask() uint64 { return h.mask }

func (h *Handler) add(id int) {
	if h.Contains(id) {
		return
	}
	if id >= len(h.slot) {
		n := len(h.slot)
		for n <= id {
			n += growBlock
		}
		grown := make([]int, n)
		copy(grown, h.slot)
		h.slot = grown
	}
	h.active = append(h.active, id)
	h.slot[id] = len(h.active)

	// Leaving and rejoining before the exit was reported is invisible to
	// the callbacks.
	for j, e := range h.exited {
		if e == id {
			h.exited = append(h.exited[:j], h.exited[j+1:]...)
			return
		}
	}
	h.entered = append(h.entered, id)
}

func (h *Handler) remove(id int) {
	if !h.Contains(id) {
		return
	}
	i := h.slot[id] - 1
	last := len(h.active) - 1
	moved := h.active[last]
	h.active[i] = moved
	h.slot[moved] = i + 1
	h.active = h.active[:last]
	h.slot[id] = 0

	// An item that leaves before its entry was reported never existed as
	// far as the callbacks are concerned.
	for j, e := range h.entered {
		if e == id {
			h.entered = append(h.entered[:j], h.entered[j+1:]...)
			return
		}
	}
	h.exited = append(h.exited, id)
}

// run invokes the registered callbacks in entry, tick, exit order.
func (h *Handler) run() {
	if h.onEntry != nil {
		h.onEntry(h.entered)
	}
	h.entered = h.entered[:0]

	if h.onTick != nil {
		h.onTick(h.active)
	}

	if h.onExit != nil {
		h.onExit(h.exited)
	}
	h.exited = h.exited[:0]
}
