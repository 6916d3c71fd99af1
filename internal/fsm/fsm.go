// Package fsm provides a table-driven state machine for single-threaded
// simulation code. Transitions are gated by a static adjacency table;
// rejections are ordinary values, not panics, because racing requests are
// expected during link negotiation.
package fsm

import (
	"fmt"
)

// RejectedTransitionError reports a request that is not in the adjacency
// table for the current state.
type RejectedTransitionError[S comparable] struct {
	From S
	To   S
}

func (e *RejectedTransitionError[S]) Error() string {
	return fmt.Sprintf("transition rejected: %v -> %v", e.From, e.To)
}

// Handler runs on entering or leaving a state. oldState and newState are the
// endpoints of the transition that triggered it.
type Handler[S comparable] func(oldState, newState S)

// Machine gates state changes against an adjacency table and fires
// enter/leave handlers on committed transitions. It is not safe for
// concurrent use; the simulation drives it from a single thread.
type Machine[S comparable] struct {
	state S
	table map[S][]S

	onEnter map[S]Handler[S]
	onLeave map[S]Handler[S]
}

// New creates a machine in the given initial state. The table maps each
// state to the states reachable from it.
func New[S comparable](initial S, table map[S][]S) *Machine[S] {
	return &Machine[S]{
		state:   initial,
		table:   table,
		onEnter: make(map[S]Handler[S]),
		onLeave: make(map[S]Handler[S]),
	}
}

// State returns the current state.
func (m *Machine[S]) State() S {
	return m.state
}

// OnEnter registers a handler fired after the machine commits to the state.
func (m *Machine[S]) OnEnter(s S, h Handler[S]) {
	m.onEnter[s] = h
}

// OnLeave registers a handler fired before the machine leaves the state.
func (m *Machine[S]) OnLeave(s S, h Handler[S]) {
	m.onLeave[s] = h
}

// CanTransition reports whether the table permits moving to the state.
// Re-entering the current state is always permitted.
func (m *Machine[S]) CanTransition(to S) bool {
	if to == m.state {
		return true
	}
	for _, s := range m.table[m.state] {
		if s == to {
			return true
		}
	}
	return false
}

// RequestTransition moves to the state if the table permits it. Re-entering
// the current state is a no-op success and fires no handlers. On rejection
// the state is unchanged and a *RejectedTransitionError is returned.
func (m *Machine[S]) RequestTransition(to S) error {
	if to == m.state {
		return nil
	}
	if !m.CanTransition(to) {
		return &RejectedTransitionError[S]{From: m.state, To: to}
	}
	m.commit(to)
	return nil
}

// ForceTransition moves to the state ignoring the table. Restore paths use
// it to re-establish persisted states whose intermediate steps were not
// saved. Handlers still fire so scoped resources stay balanced.
func (m *Machine[S]) ForceTransition(to S) {
	if to == m.state {
		return
	}
	m.commit(to)
}

// commit fires leave-then-enter around the state change.
func (m *Machine[S]) commit(to S) {
	from := m.state
	if h, ok := m.onLeave[from]; ok {
		h(from, to)
	}
	m.state = to
	if h, ok := m.onEnter[to]; ok {
		h(from, to)
	}
}
