// Copyright 2024-2026 Aiku AI

package gamelink

import (
	"sync"

	"github.com/aiku/gamerelay/pkg/relay"
)

// registry holds the subscribers of one event type.
type registry[T any] struct {
	mu       sync.Mutex
	nextID   int
	handlers []handlerEntry[T]
}

type handlerEntry[T any] struct {
	id int
	fn func(T)
}

func (r *registry[T]) add(fn func(T)) relay.Unsubscribe {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.handlers = append(r.handlers, handlerEntry[T]{id: id, fn: fn})
	var once sync.Once
	return func() {
		once.Do(func() { r.remove(id) })
	}
}

func (r *registry[T]) remove(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, h := range r.handlers {
		if h.id == id {
			r.handlers = append(r.handlers[:i:i], r.handlers[i+1:]...)
			return
		}
	}
}

// emit calls every handler in subscription order. The handler list is
// copied so handlers may unsubscribe while being called.
func (r *registry[T]) emit(v T) {
	r.mu.Lock()
	handlers := make([]func(T), len(r.handlers))
	for i, h := range r.handlers {
		handlers[i] = h.fn
	}
	r.mu.Unlock()
	for _, fn := range handlers {
		fn(v)
	}
}

func (r *registry[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}
