package device

import "sync"

// DefaultEventLogSize is how many events a device keeps by default
const DefaultEventLogSize = 50

// EventLog keeps the most recent events, oldest first
type EventLog struct {
	mu     sync.Mutex
	events []Event
	size   int
}

// NewEventLog creates a log holding at most size events
func NewEventLog(size int) *EventLog {
	if size <= 0 {
		size = DefaultEventLogSize
	}
	return &EventLog{size: size}
}

// Add appends e, dropping the oldest event when full
func (l *EventLog) Add(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, e)
	if over := len(l.events) - l.size; over > 0 {
		l.events = append(l.events[:0:0], l.events[over:]...)
	}
}

// Recent returns a copy of the logged events
func (l *EventLog) Recent() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}
