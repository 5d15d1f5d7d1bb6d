package libchat

import (
	"sync"
)

type callback[T any] func(T)

// EventEmitter is a simple synchronous event emitter mapping events (of type
// K) to registered callbacks. Registration and removal are synchronous: once
// Off or Close returns, the listener will not be invoked again.
type EventEmitter[K comparable, V any] struct {
	listeners map[K]map[int]callback[V]
	nextID    int
	lock      sync.RWMutex
}

// NewEventEmitter creates a new EventEmitter and returns a pointer to it.
func NewEventEmitter[K comparable, V any]() *EventEmitter[K, V] {
	return &EventEmitter[K, V]{
		listeners: make(map[K]map[int]callback[V]),
	}
}

// On registers a new listener for the given event and returns a subscription
// id that can be passed to Off.
func (e *EventEmitter[K, V]) On(event K, listener callback[V]) int {
	e.lock.Lock()
	defer e.lock.Unlock()

	if e.listeners[event] == nil {
		e.listeners[event] = make(map[int]callback[V])
	}
	e.nextID++
	e.listeners[event][e.nextID] = listener
	return e.nextID
}

// Off removes the listener with the given subscription id from the event.
func (e *EventEmitter[K, V]) Off(event K, id int) {
	e.lock.Lock()
	defer e.lock.Unlock()

	delete(e.listeners[event], id)
}

// Emit triggers all listeners registered for the given event synchronously.
// It returns once every callback has run.
func (e *EventEmitter[K, V]) Emit(event K, data V) {
	e.lock.RLock()
	defer e.lock.RUnlock()

	listeners, found := e.listeners[event]
	if !found {
		return
	}

	for _, listener := range listeners {
		listener(data)
	}
}

// RemoveAllListeners removes every listener for every event.
func (e *EventEmitter[K, V]) RemoveAllListeners() {
	e.lock.Lock()
	defer e.lock.Unlock()

	e.listeners = make(map[K]map[int]callback[V])
}

// Close removes all listeners to prevent memory leaks.
func (e *EventEmitter[K, V]) Close() {
	e.RemoveAllListeners()
}
