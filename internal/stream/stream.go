// Package stream provides a pull-based iterator used for results that are
// delivered over time: subscription events, incremental payloads and lazily
// streamed list items.
//
// Next blocks until a value is available, the iterator is exhausted (Done) or
// ctx is cancelled. Close releases resources held by the producer and must be
// safe to call more than once; consumers call it exactly once when they stop
// reading, whether or not the iterator was exhausted.
package stream

import (
	"context"
	"errors"
	"sync"
)

// Done is returned by Next when there are no more values.
var Done = errors.New("no more items in iterator")

// Iterator is a pull-based sequence of values.
type Iterator[T any] interface {
	Next(ctx context.Context) (T, error)
	Close() error
}

// Func adapts a pair of functions into an Iterator. A nil close is allowed.
func Func[T any](next func(ctx context.Context) (T, error), close func() error) Iterator[T] {
	return &funcIterator[T]{next: next, close: close}
}

type funcIterator[T any] struct {
	next  func(ctx context.Context) (T, error)
	close func() error

	once sync.Once
	err  error
}

func (it *funcIterator[T]) Next(ctx context.Context) (T, error) { return it.next(ctx) }

func (it *funcIterator[T]) Close() error {
	it.once.Do(func() {
		if it.close != nil {
			it.err = it.close()
		}
	})
	return it.err
}

// FromSlice returns an iterator over the given values.
func FromSlice[T any](values []T) Iterator[T] {
	i := 0
	var mu sync.Mutex
	return Func(func(ctx context.Context) (T, error) {
		var zero T
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		mu.Lock()
		defer mu.Unlock()
		if i >= len(values) {
			return zero, Done
		}
		v := values[i]
		i++
		return v, nil
	}, nil)
}

// Single returns an iterator that yields v once.
func Single[T any](v T) Iterator[T] {
	return FromSlice([]T{v})
}

// FromChannel returns an iterator reading from ch until it is closed. cancel,
// if non-nil, is invoked on Close to stop the producer.
func FromChannel[T any](ch <-chan T, cancel func()) Iterator[T] {
	return Func(func(ctx context.Context) (T, error) {
		var zero T
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case v, ok := <-ch:
			if !ok {
				return zero, Done
			}
			return v, nil
		}
	}, func() error {
		if cancel != nil {
			cancel()
		}
		return nil
	})
}

// Map returns an iterator applying fn to every value of src. Closing the
// returned iterator closes src.
func Map[T, U any](src Iterator[T], fn func(ctx context.Context, v T) (U, error)) Iterator[U] {
	return Func(func(ctx context.Context) (U, error) {
		v, err := src.Next(ctx)
		if err != nil {
			var zero U
			return zero, err
		}
		return fn(ctx, v)
	}, src.Close)
}

// Collect drains it and closes it.
func Collect[T any](ctx context.Context, it Iterator[T]) ([]T, error) {
	defer it.Close()
	var out []T
	for {
		v, err := it.Next(ctx)
		if err == Done {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
}
