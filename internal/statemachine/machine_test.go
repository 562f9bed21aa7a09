package statemachine

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"testing"
)

func mustState(t *testing.T, m *Machine, name string) State {
	t.Helper()
	s, err := m.RegisterState(name)
	if err != nil {
		t.Fatalf("RegisterState(%q): %v", name, err)
	}
	return s
}

func mustHandler(t *testing.T, m *Machine, states ...State) *Handler {
	t.Helper()
	h, err := m.RegisterHandler(states...)
	if err != nil {
		t.Fatalf("RegisterHandler: %v", err)
	}
	return h
}

func TestAddStateEnqueuesOnePerHandler(t *testing.T) {
	m := New(nil)
	a := mustState(t, m, "a")
	b := mustState(t, m, "b")
	c := mustState(t, m, "c")
	h := mustHandler(t, m, a, b)

	m.AddState(1, a)
	if m.Pending() != 0 {
		t.Errorf("Expected no pending actions with partial mask, got %d", m.Pending())
	}
	m.AddState(1, b)
	if m.Pending() != 1 {
		t.Errorf("Expected 1 pending action once the mask matches, got %d", m.Pending())
	}
	m.AddState(1, c)
	m.AddState(1, a)
	if m.Pending() != 1 {
		t.Errorf("Expected still 1 pending action, got %d", m.Pending())
	}

	m.Flush()
	if !h.Contains(1) || h.Len() != 1 {
		t.Errorf("Expected handler to contain item 1, got %v", h.Active())
	}
}

func TestCallbackOrderWithinTick(t *testing.T) {
	m := New(nil)
	s := mustState(t, m, "s")
	h := mustHandler(t, m, s)

	var log []string
	h.OnEntry(func(ids []int) { log = append(log, fmt.Sprintf("entry%v", ids)) }).
		OnTick(func(ids []int) { log = append(log, fmt.Sprintf("tick%v", ids)) }).
		OnExit(func(ids []int) { log = append(log, fmt.Sprintf("exit%v", ids)) })

	m.AddState(1, s)
	m.Tick()
	m.AddState(2, s)
	m.RemoveState(1, s)
	m.Tick()
	m.Tick()

	want := []string{
		"entry[1]", "tick[1]", "exit[]",
		"entry[2]", "tick[2]", "exit[1]",
		"entry[]", "tick[2]", "exit[]",
	}
	if !reflect.DeepEqual(log, want) {
		t.Errorf("Expected %v, got %v", want, log)
	}
}

func TestUnregisteredCallbacksAreSkipped(t *testing.T) {
	m := New(nil)
	s := mustState(t, m, "s")
	h := mustHandler(t, m, s)

	ticks := 0
	h.OnTick(func(ids []int) { ticks++ })

	m.Tick()
	m.Tick()
	if ticks != 2 {
		t.Errorf("Expected tick callback on every tick even when empty, got %d", ticks)
	}
}

func TestRemovalMidTickIsDeferred(t *testing.T) {
	m := New(nil)
	s := mustState(t, m, "s")
	first := mustHandler(t, m, s)
	second := mustHandler(t, m, s)

	for id := 1; id <= 3; id++ {
		m.AddState(id, s)
	}
	m.Flush()

	var seen []int
	first.OnTick(func(ids []int) {
		for i, id := range ids {
			if i == 0 {
				m.RemoveState(2, s)
				if len(ids) != 3 {
					t.Errorf("Active set changed mid-iteration: %v", ids)
				}
			}
			seen = append(seen, id)
		}
	})
	var secondSeen []int
	second.OnTick(func(ids []int) {
		secondSeen = append(secondSeen, ids...)
	})

	m.Tick()

	sort.Ints(seen)
	if !reflect.DeepEqual(seen, []int{1, 2, 3}) {
		t.Errorf("Expected first handler to see all 3 items, got %v", seen)
	}
	sort.Ints(secondSeen)
	if !reflect.DeepEqual(secondSeen, []int{1, 3}) {
		t.Errorf("Expected second handler to see the flushed removal, got %v", secondSeen)
	}
	if m.Has(2, s) {
		t.Error("Expected state bit cleared immediately")
	}
}

func TestAddDuringHandlerVisibleToLaterHandler(t *testing.T) {
	m := New(nil)
	a := mustState(t, m, "a")
	b := mustState(t, m, "b")
	first := mustHandler(t, m, a)
	second := mustHandler(t, m, b)

	first.OnTick(func(ids []int) {
		for _, id := range ids {
			m.AddState(id, b)
			m.RemoveState(id, a)
		}
	})
	var entered []int
	second.OnEntry(func(ids []int) { entered = append(entered, ids...) })

	m.AddState(7, a)
	m.Tick()

	if !reflect.DeepEqual(entered, []int{7}) {
		t.Errorf("Expected item 7 to reach the second handler this tick, got %v", entered)
	}
	if first.Contains(7) {
		t.Error("Expected item 7 to have left the first handler")
	}
}

func TestEntryCancelledByEarlyRemoval(t *testing.T) {
	m := New(nil)
	s := mustState(t, m, "s")
	h := mustHandler(t, m, s)

	calls := 0
	h.OnEntry(func(ids []int) { calls += len(ids) })
	h.OnExit(func(ids []int) { calls += len(ids) })

	m.AddState(4, s)
	m.RemoveState(4, s)
	m.Tick()

	if calls != 0 {
		t.Errorf("Expected no entry or exit for a cancelled add, got %d", calls)
	}
	if h.Len() != 0 {
		t.Errorf("Expected empty handler, got %v", h.Active())
	}
}

func TestReleaseItemFreesAfterRemoval(t *testing.T) {
	var freed []int
	var m *Machine
	m = New(func(id int) {
		if m.Mask(id) != 0 {
			t.Errorf("Item %d freed with states still set", id)
		}
		freed = append(freed, id)
	})
	a := mustState(t, m, "a")
	b := mustState(t, m, "b")
	ha := mustHandler(t, m, a)
	hb := mustHandler(t, m, b)

	m.AddState(3, a)
	m.AddState(3, b)
	m.Tick()

	m.ReleaseItem(3)
	if len(freed) != 0 {
		t.Fatal("Release must be deferred until the next flush")
	}
	m.Tick()

	if !reflect.DeepEqual(freed, []int{3}) {
		t.Errorf("Expected item 3 freed once, got %v", freed)
	}
	if ha.Contains(3) || hb.Contains(3) {
		t.Error("Released item still in a handler")
	}
}

func TestRegistrationErrors(t *testing.T) {
	m := New(nil)
	for i := 0; i < MaxStates; i++ {
		mustState(t, m, fmt.Sprintf("s%d", i))
	}
	if _, err := m.RegisterState("overflow"); !errors.Is(err, ErrTooManyStates) {
		t.Errorf("Expected ErrTooManyStates, got %v", err)
	}

	m2 := New(nil)
	if _, err := m2.RegisterHandler(State(5)); !errors.Is(err, ErrUnknownState) {
		t.Errorf("Expected ErrUnknownState, got %v", err)
	}
	if _, err := m2.RegisterHandler(); !errors.Is(err, ErrNoStates) {
		t.Errorf("Expected ErrNoStates, got %v", err)
	}
}

func TestRuntimeQueriesOnUnknownIDs(t *testing.T) {
	m := New(nil)
	s := mustState(t, m, "s")

	if m.Has(100000, s) || m.Has(-1, s) {
		t.Error("Expected false for unknown ids")
	}
	if m.Mask(100000) != 0 {
		t.Error("Expected zero mask for unknown id")
	}
	m.RemoveState(100000, s) // no panic

	m.AddState(1000, s)
	if !m.Has(1000, s) {
		t.Error("Expected arrays to grow for large ids")
	}
}
