package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	AppointmentBooked      Type = "appointment_booked"
	AppointmentRescheduled Type = "appointment_rescheduled"
	AppointmentCancelled   Type = "appointment_cancelled"
)

// Event is the post-commit notification payload. Date and Start use the wire
// formats "2006-01-02" and "15:04".
type Event struct {
	Type           Type
	AppointmentID  uuid.UUID
	PractitionerID uuid.UUID
	ClinicID       uuid.UUID
	Date           string
	Start          string
	At             time.Time
}

// Handler reacts to an event. Handlers must not assume ordering across
// event types.
type Handler func(Event)

// Bus provides in-process pub/sub for post-commit events. Delivery is
// asynchronous so a slow subscriber can never stall or roll back a booking.
type Bus struct {
	mu   sync.RWMutex
	subs map[Type][]Handler
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Type][]Handler)}
}

// Subscribe registers a handler for a given event type.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[t] = append(b.subs[t], h)
}

// Publish dispatches the event to subscribers on a separate goroutine.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subs[e.Type]...)
	b.mu.RUnlock()

	if e.At.IsZero() {
		e.At = time.Now()
	}

	if len(handlers) == 0 {
		return
	}

	go func() {
		for _, h := range handlers {
			func() {
				defer func() { _ = recover() }()
				h(e)
			}()
		}
	}()
}
