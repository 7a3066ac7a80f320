// Package session tracks the per-user confirmation flow: a resolved query
// waits for the user to confirm it, reject it, or supply a correction.
package session

import (
	"fmt"
	"sync"
	"time"
)

type State string

const (
	StateIdle                 State = "idle"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateAwaitingCorrection   State = "awaiting_correction"
)

type Event string

const (
	EventQueryResolved   Event = "query_resolved"
	EventConfirmed       Event = "confirmed"
	EventRejected        Event = "rejected"
	EventCorrectionGiven Event = "correction_given"
	EventReset           Event = "reset"
)

// transitions is the single source of truth for the flow. A new query always
// restarts the flow, regardless of where the previous one stalled.
var transitions = map[State]map[Event]State{
	StateIdle: {
		EventQueryResolved: StateAwaitingConfirmation,
		EventReset:         StateIdle,
	},
	StateAwaitingConfirmation: {
		EventQueryResolved: StateAwaitingConfirmation,
		EventConfirmed:     StateIdle,
		EventRejected:      StateAwaitingCorrection,
		EventReset:         StateIdle,
	},
	StateAwaitingCorrection: {
		EventQueryResolved:   StateAwaitingConfirmation,
		EventCorrectionGiven: StateIdle,
		EventReset:           StateIdle,
	},
}

type InvalidTransitionError struct {
	From  State
	Event Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("event %q not allowed in state %q", e.Event, e.From)
}

// Session is the tracked state for one conversation. Question and SQL hold
// the pending resolution while confirmation is outstanding.
type Session struct {
	ID        string    `json:"id"`
	State     State     `json:"state"`
	Question  string    `json:"question,omitempty"`
	SQL       string    `json:"sql,omitempty"`
	Source    string    `json:"source,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

func NewManager(ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Manager{
		sessions: map[string]*Session{},
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns a snapshot of the session, creating an idle one if needed.
func (m *Manager) Get(id string) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.locked(id)
}

// Apply validates the event against the current state, runs update on the
// session while the lock is held, and returns the resulting snapshot.
func (m *Manager) Apply(id string, event Event, update func(*Session)) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.locked(id)
	next, ok := transitions[current.State][event]
	if !ok {
		return *current, &InvalidTransitionError{From: current.State, Event: event}
	}
	current.State = next
	current.UpdatedAt = m.now().UTC()
	if next == StateIdle {
		current.Question = ""
		current.SQL = ""
		current.Source = ""
	}
	if update != nil {
		update(current)
	}
	return *current, nil
}

// Sweep drops idle sessions untouched for longer than the TTL and returns
// how many were removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().UTC().Add(-m.ttl)
	removed := 0
	for id, s := range m.sessions {
		if s.State == StateIdle && s.UpdatedAt.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) locked(id string) *Session {
	s, ok := m.sessions[id]
	if !ok {
		s = &Session{ID: id, State: StateIdle, UpdatedAt: m.now().UTC()}
		m.sessions[id] = s
	}
	return s
}
