package service

import (
	"sync"

	"github.com/wricardo/traffic-sim/game/engine"
)

// MaxEventHistory bounds the events kept per session; older events are dropped
const MaxEventHistory = 10000

// EventLog is the append-only event history of one session
type EventLog struct {
	mu     sync.RWMutex
	events []engine.Event
	total  int
}

// NewEventLog creates an event log seeded with events
func NewEventLog(events ...engine.Event) *EventLog {
	l := &EventLog{}
	l.Append(events...)
	return l
}

// Append records events, trimming the oldest beyond MaxEventHistory
func (l *EventLog) Append(events ...engine.Event) {
	if len(events) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, events...)
	l.total += len(events)
	if over := len(l.events) - MaxEventHistory; over > 0 {
		l.events = append([]engine.Event(nil), l.events[over:]...)
	}
}

// Events returns a copy of the retained events in chronological order
func (l *EventLog) Events() []engine.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]engine.Event, len(l.events))
	copy(out, l.events)
	return out
}

// Len returns the number of retained events
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// Total returns the number of events ever appended
func (l *EventLog) Total() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}
