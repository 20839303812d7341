package event

import (
	"reflect"
	"sync"

	"go.uber.org/zap"
)

// Bus is a synchronous typed pub/sub. Emit delivers on the caller's
// goroutine, in subscription order, FIFO per event type. A panicking
// handler is recovered and logged so the remaining handlers still run.
// Events are operational signals, never persisted.
type Bus struct {
	mu       sync.RWMutex // protects handler registration
	handlers map[reflect.Type][]any
	log      *zap.Logger
}

func NewBus(log *zap.Logger) *Bus {
	return &Bus{
		handlers: make(map[reflect.Type][]any),
		log:      log,
	}
}

// Subscribe registers a typed handler for events of type T. Handlers
// must return quickly; long work belongs in their own goroutines.
func Subscribe[T any](b *Bus, fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.handlers[t] = append(b.handlers[t], fn)
}

// Emit delivers event to every subscriber of T before returning.
func Emit[T any](b *Bus, event T) {
	t := reflect.TypeOf((*T)(nil)).Elem()

	b.mu.RLock()
	handlers := b.handlers[t]
	b.mu.RUnlock()

	for _, h := range handlers {
		call(b.log, t, h.(func(T)), event)
	}
}

func call[T any](log *zap.Logger, t reflect.Type, fn func(T), event T) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("event handler panic",
				zap.String("event", t.String()),
				zap.Any("panic", r))
		}
	}()
	fn(event)
}
