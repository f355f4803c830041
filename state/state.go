package state

import (
	"errors"
	"sync"
)

// Status is the lifecycle stage of a room.
type Status string

const (
	Waiting  Status = "waiting"
	Playing  Status = "playing"
	Finished Status = "finished"
)

// ErrTransitionNotAllowed is returned when a state transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// TransitionFunc observes an accepted transition.
type TransitionFunc func(from, to Status)

// Machine tracks a room's status and rejects transitions missing from its
// table. Changing to the current status is always accepted and not reported.
type Machine struct {
	current     Status
	transitions map[Status]map[Status]bool
	listeners   []TransitionFunc
	mutex       sync.RWMutex
}

// NewMachine returns an empty machine with no transitions.
func NewMachine(initial Status) *Machine {
	return &Machine{
		current:     initial,
		transitions: make(map[Status]map[Status]bool),
	}
}

// NewRoomMachine returns a machine in Waiting with the room lifecycle:
//
//	waiting -> playing -> finished -> playing
//	playing|finished -> waiting
func NewRoomMachine() *Machine {
	m := NewMachine(Waiting)
	m.AddTransition(Waiting, Playing)
	m.AddTransition(Playing, Finished)
	m.AddTransition(Finished, Playing)
	m.AddTransition(Playing, Waiting)
	m.AddTransition(Finished, Waiting)
	return m
}

func (m *Machine) AddTransition(from, to Status) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.transitions[from]; !exists {
		m.transitions[from] = make(map[Status]bool)
	}
	m.transitions[from][to] = true
}

// OnTransition registers fn to run after every accepted change.
func (m *Machine) OnTransition(fn TransitionFunc) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Machine) CanTransition(to Status) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.allowed(to)
}

func (m *Machine) allowed(to Status) bool {
	return to == m.current || m.transitions[m.current][to]
}

func (m *Machine) ChangeState(to Status) error {
	m.mutex.Lock()
	if !m.allowed(to) {
		m.mutex.Unlock()
		return ErrTransitionNotAllowed
	}
	from := m.current
	m.current = to
	listeners := m.listeners
	m.mutex.Unlock()

	if from == to {
		return nil
	}
	for _, fn := range listeners {
		fn(from, to)
	}
	return nil
}

func (m *Machine) Current() Status {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.current
}
