// Package notify fans out change events to interested parts of the client and keeps the
// local activity feed shown in the notification panel.
package notify

import (
	"log/slog"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

const (
	// EventPendingListsUpdated fires whenever a staging desk changes a pending list.
	EventPendingListsUpdated = "pending_lists_updated"
	// EventNotificationsUpdated fires whenever the notification feed changes.
	EventNotificationsUpdated = "notifications_updated"

	eventSource = "opsportal/staging"
)

// Handler receives an event. Events carry no data; subscribers re-read the mirror.
type Handler func(e cloudevents.Event)

type subscription struct {
	id int
	fn Handler
}

// Emitter is a synchronous publish/subscribe hub keyed by event type.
type Emitter struct {
	mu     sync.Mutex
	nextID int
	subs   map[string][]subscription
	now    func() time.Time
}

// NewEmitter creates an emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{subs: make(map[string][]subscription), now: time.Now}
}

var defaultEmitter = NewEmitter()

// Default returns the process-wide emitter.
func Default() *Emitter { return defaultEmitter }

// Subscribe registers fn for events named name and returns a function that removes it.
func (e *Emitter) Subscribe(name string, fn Handler) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.subs[name] = append(e.subs[name], subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			subs := e.subs[name]
			for i, s := range subs {
				if s.id == id {
					e.subs[name] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
		})
	}
}

// Emit delivers an event named name to every subscriber, in subscription order, on the
// calling goroutine. Publishers may emit in the middle of their own work, so a handler
// should only read state, never start new work on the publisher.
func (e *Emitter) Emit(name string) {
	e.mu.Lock()
	subs := append([]subscription(nil), e.subs[name]...)
	e.mu.Unlock()
	if len(subs) == 0 {
		return
	}

	event := cloudevents.NewEvent()
	event.SetID(uuid.NewString())
	event.SetSource(eventSource)
	event.SetType(name)
	event.SetTime(e.now())
	if err := event.Validate(); err != nil {
		slog.Error("Dropping invalid event", "type", name, "error", err)
		return
	}

	for _, s := range subs {
		s.fn(event)
	}
}
