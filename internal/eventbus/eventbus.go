// Package eventbus dispatches lifecycle events to in-process subscribers.
// Tracing and metrics observe the server through it without the server
// knowing about either.
package eventbus

import (
	"context"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
)

// Handler processes events of type T.
type Handler[T any] func(context.Context, T)

type subscriber struct {
	id   uint64
	call func(context.Context, any)
}

// Bus routes each event to the subscribers of its dynamic type. Subscriber
// lists are replaced on change and never modified in place, so publishing
// only holds the lock long enough to read one.
type Bus struct {
	mu     sync.RWMutex
	seq    uint64
	topics map[reflect.Type][]subscriber
}

func New() *Bus { return &Bus{topics: map[reflect.Type][]subscriber{}} }

func (b *Bus) add(topic reflect.Type, call func(context.Context, any)) (unsubscribe func()) {
	b.mu.Lock()
	b.seq++
	id := b.seq
	b.topics[topic] = append(slices.Clip(b.topics[topic]), subscriber{id: id, call: call})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(topic, id) })
	}
}

func (b *Bus) remove(topic reflect.Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := slices.DeleteFunc(slices.Clone(b.topics[topic]), func(s subscriber) bool { return s.id == id })
	if len(subs) == 0 {
		delete(b.topics, topic)
		return
	}
	b.topics[topic] = subs
}

func (b *Bus) publish(ctx context.Context, e any) {
	if b == nil {
		return
	}
	b.mu.RLock()
	subs := b.topics[reflect.TypeOf(e)]
	b.mu.RUnlock()
	for _, s := range subs {
		s.call(ctx, e)
	}
}

// SubscribeTo registers h with b for events of type T.
func SubscribeTo[T any](b *Bus, h Handler[T]) (unsubscribe func()) {
	return b.add(reflect.TypeFor[T](), func(ctx context.Context, e any) { h(ctx, e.(T)) })
}

// PublishTo hands e to the subscribers of T on b. A nil bus drops it.
func PublishTo[T any](ctx context.Context, b *Bus, e T) {
	b.publish(ctx, e)
}

var global atomic.Pointer[Bus]

// Use installs b as the process-wide bus. Nil disables publishing.
func Use(b *Bus) { global.Store(b) }

// Current returns the process-wide bus, or nil.
func Current() *Bus { return global.Load() }

// Subscribe registers h with the process-wide bus. Without one it does
// nothing.
func Subscribe[T any](h Handler[T]) (unsubscribe func()) {
	b := global.Load()
	if b == nil {
		return func() {}
	}
	return SubscribeTo(b, h)
}

// Publish sends e through the process-wide bus.
func Publish[T any](ctx context.Context, e T) {
	global.Load().publish(ctx, e)
}
