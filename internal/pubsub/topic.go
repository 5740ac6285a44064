// Package pubsub provides the typed listener fan-out used by the price feed
// and the order engine. Publishing is synchronous: every listener runs on the
// publisher's goroutine before Publish returns.
package pubsub

import "sync"

// Topic is a set of listeners for one event type.
type Topic[T any] struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]func(T)
}

// NewTopic creates an empty topic.
func NewTopic[T any]() *Topic[T] {
	return &Topic[T]{listeners: make(map[int]func(T))}
}

// Subscribe registers a listener and returns an unsubscribe func.
func (t *Topic[T]) Subscribe(fn func(T)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	t.nextID++
	t.listeners[id] = fn

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.listeners, id)
	}
}

// Publish delivers the event to all current listeners.
func (t *Topic[T]) Publish(event T) {
	t.mu.Lock()
	fns := make([]func(T), 0, len(t.listeners))
	for _, fn := range t.listeners {
		fns = append(fns, fn)
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn(event)
	}
}

// Len returns the number of listeners.
func (t *Topic[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.listeners)
}

// KeyedTopic is a topic per string key with reference-counted keys: the
// first listener for a key starts tracking it, the last removal stops it.
type KeyedTopic[T any] struct {
	mu     sync.Mutex
	nextID int
	topics map[string]map[int]func(T)
}

// NewKeyedTopic creates an empty keyed topic.
func NewKeyedTopic[T any]() *KeyedTopic[T] {
	return &KeyedTopic[T]{topics: make(map[string]map[int]func(T))}
}

// Subscribe registers a listener for the key and returns an unsubscribe func.
func (t *KeyedTopic[T]) Subscribe(key string, fn func(T)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.topics[key] == nil {
		t.topics[key] = make(map[int]func(T))
	}
	id := t.nextID
	t.nextID++
	t.topics[key][id] = fn

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.topics[key], id)
		if len(t.topics[key]) == 0 {
			delete(t.topics, key)
		}
	}
}

// Publish delivers the event to listeners of the key.
func (t *KeyedTopic[T]) Publish(key string, event T) {
	t.mu.Lock()
	fns := make([]func(T), 0, len(t.topics[key]))
	for _, fn := range t.topics[key] {
		fns = append(fns, fn)
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn(event)
	}
}

// Tracked returns the keys that currently have at least one listener.
func (t *KeyedTopic[T]) Tracked() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	keys := make([]string, 0, len(t.topics))
	for key := range t.topics {
		keys = append(keys, key)
	}
	return keys
}
