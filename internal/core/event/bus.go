package event

import (
	"sync"

	"go.uber.org/zap"
)

// Bus delivers events of type T to every subscriber, synchronously, in
// subscription order. Each handler is isolated: a panicking handler is
// logged and skipped, the remaining handlers still receive the event.
type Bus[T any] struct {
	mu       sync.Mutex // protects handler registration only
	nextID   uint64
	handlers []handlerEntry[T]
	log      *zap.Logger
}

type handlerEntry[T any] struct {
	id uint64
	fn func(T)
}

func NewBus[T any](log *zap.Logger) *Bus[T] {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus[T]{log: log}
}

// Subscribe registers fn and returns a function that removes it.
// The returned function is safe to call more than once.
func (b *Bus[T]) Subscribe(fn func(T)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.handlers = append(b.handlers, handlerEntry[T]{id: id, fn: fn})
	return func() { b.unsubscribe(id) }
}

func (b *Bus[T]) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, h := range b.handlers {
		if h.id == id {
			// copy so that in-flight Publish snapshots stay intact
			next := make([]handlerEntry[T], 0, len(b.handlers)-1)
			next = append(next, b.handlers[:i]...)
			b.handlers = append(next, b.handlers[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to a snapshot of the current subscribers. Handlers
// may subscribe, unsubscribe or publish from inside a callback.
func (b *Bus[T]) Publish(ev T) {
	b.mu.Lock()
	handlers := b.handlers
	b.mu.Unlock()
	for _, h := range handlers {
		b.call(h, ev)
	}
}

func (b *Bus[T]) call(h handlerEntry[T], ev T) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked", zap.Uint64("handler", h.id), zap.Any("panic", r))
		}
	}()
	h.fn(ev)
}

// Clear removes every subscriber.
func (b *Bus[T]) Clear() {
	b.mu.Lock()
	b.handlers = nil
	b.mu.Unlock()
}

// Len returns the number of subscribers.
func (b *Bus[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers)
}
