// Package domainevent carries cross-component notifications — XPGain,
// RankChanged, VerificationWarning, PersistenceDegraded — that are
// published as side effects rather than returned values. This hub has
// no fixed tick, so dispatch happens synchronously on the publishing
// goroutine, using a generic Publish[T]/Subscribe[T] API shape. One
// lock guards handler registration; Publish copies the handler list
// under it and calls the handlers after releasing it.
package domainevent

import (
	"reflect"
	"sync"
)

// Bus is a typed, in-process publish/subscribe registry.
type Bus struct {
	mu       sync.Mutex
	handlers map[reflect.Type][]any
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[reflect.Type][]any)}
}

// Subscribe registers a typed handler for events of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.handlers[t] = append(b.handlers[t], fn)
}

// Publish delivers event to every handler subscribed to its type,
// synchronously, in subscription order.
func Publish[T any](b *Bus, event T) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.mu.Lock()
	handlers := append([]any(nil), b.handlers[t]...)
	b.mu.Unlock()
	for _, h := range handlers {
		h.(func(T))(event)
	}
}
