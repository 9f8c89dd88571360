package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ProgressUpdated is broadcast after every successful completion change
const ProgressUpdated = "progress-updated"

// Event is a bus message. Only Name is required; the rest is advisory.
type Event struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UserID    string    `json:"user_id,omitempty"`
	ToolID    string    `json:"tool_id,omitempty"`
	StepID    string    `json:"step_id,omitempty"`
	Completed bool      `json:"completed"`
	At        time.Time `json:"at"`
}

// NewEvent creates an event with a fresh ID and timestamp
func NewEvent(name string) Event {
	return Event{
		ID:   uuid.NewString(),
		Name: name,
		At:   time.Now().UTC(),
	}
}

// Handler receives events
type Handler func(Event)

// Publisher publishes events
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber registers handlers. The returned func removes the handler.
type Subscriber interface {
	Subscribe(name string, h Handler) (unsubscribe func())
}

// Bus is a process-wide publish/subscribe mechanism
type Bus interface {
	Publisher
	Subscriber
	Close() error
}

// LocalBus dispatches events to in-process handlers synchronously, in
// subscription order
type LocalBus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[string][]subscription
}

type subscription struct {
	id uint64
	h  Handler
}

// NewLocalBus creates an in-process bus
func NewLocalBus() *LocalBus {
	return &LocalBus{
		handlers: make(map[string][]subscription),
	}
}

// Subscribe registers h for events named name
func (b *LocalBus) Subscribe(name string, h Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[name] = append(b.handlers[name], subscription{id: id, h: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(name, id) })
	}
}

func (b *LocalBus) unsubscribe(name string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[name]
	for i, s := range subs {
		if s.id == id {
			b.handlers[name] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.handlers[name]) == 0 {
		delete(b.handlers, name)
	}
}

// Publish delivers e to every handler subscribed to e.Name
func (b *LocalBus) Publish(ctx context.Context, e Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	b.Dispatch(e)
	return nil
}

// Dispatch runs handlers for e without stamping it
func (b *LocalBus) Dispatch(e Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.handlers[e.Name]))
	copy(subs, b.handlers[e.Name])
	b.mu.RUnlock()

	for _, s := range subs {
		b.call(s.h, e)
	}
}

func (b *LocalBus) call(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event handler panicked", "event", e.Name, "event_id", e.ID, "panic", r)
		}
	}()
	h(e)
}

// HandlerCount returns the number of handlers for name
func (b *LocalBus) HandlerCount(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[name])
}

// Close removes all handlers
func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[string][]subscription)
	return nil
}
