// Package stream provides a latest-value broadcast used to publish scanner
// state to any number of observers.
//
// Every Publish replaces the current value. Observers either read it with
// Load, receive it on a drop-old channel from Subscribe, or get a synchronous
// callback from Watch. Published values must be treated as immutable.
package stream

import (
	"errors"
	"sync"
)

var ErrClosed = errors.New("stream closed")

// Value holds the latest published T.
type Value[T any] struct {
	// pubMu serializes publishers so watchers observe values in publish order.
	pubMu sync.Mutex

	mu       sync.RWMutex
	current  T
	version  uint64
	equal    func(a, b T) bool
	watchers map[uint64]func(T)
	subs     map[uint64]chan T
	nextID   uint64
	closed   bool
}

// New returns a Value that emits on every Publish.
func New[T any](initial T) *Value[T] {
	return &Value[T]{
		current:  initial,
		watchers: make(map[uint64]func(T)),
		subs:     make(map[uint64]chan T),
	}
}

// NewDistinct returns a Value that ignores a Publish equal to the current value.
func NewDistinct[T comparable](initial T) *Value[T] {
	v := New(initial)
	v.equal = func(a, b T) bool { return a == b }
	return v
}

// Load returns the latest value.
func (v *Value[T]) Load() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current
}

// Version counts the emitted values.
func (v *Value[T]) Version() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.version
}

// Publish stores next and notifies observers. Watchers run on the caller's
// goroutine before Publish returns and must not publish to the same Value.
func (v *Value[T]) Publish(next T) error {
	v.pubMu.Lock()
	defer v.pubMu.Unlock()
	return v.emit(next)
}

// Update publishes fn applied to the current value. Concurrent publishers
// cannot interleave between the read and the write.
func (v *Value[T]) Update(fn func(T) T) error {
	v.pubMu.Lock()
	defer v.pubMu.Unlock()
	return v.emit(fn(v.Load()))
}

func (v *Value[T]) emit(next T) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	if v.equal != nil && v.equal(v.current, next) {
		v.mu.Unlock()
		return nil
	}
	v.current = next
	v.version++
	for _, ch := range v.subs {
		offerLatest(ch, next)
	}
	watchers := make([]func(T), 0, len(v.watchers))
	for _, fn := range v.watchers {
		watchers = append(watchers, fn)
	}
	v.mu.Unlock()

	for _, fn := range watchers {
		fn(next)
	}
	return nil
}

// Subscribe returns a channel that always holds the most recent value not yet
// received. The current value is delivered first. cancel releases the
// subscription and closes the channel.
func (v *Value[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, 1)

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	v.nextID++
	id := v.nextID
	v.subs[id] = ch
	ch <- v.current
	v.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			if sub, ok := v.subs[id]; ok {
				delete(v.subs, id)
				close(sub)
			}
		})
	}
}

// Watch registers fn to be called synchronously on every emitted value.
func (v *Value[T]) Watch(fn func(T)) func() {
	v.mu.Lock()
	v.nextID++
	id := v.nextID
	v.watchers[id] = fn
	v.mu.Unlock()

	return func() {
		v.mu.Lock()
		delete(v.watchers, id)
		v.mu.Unlock()
	}
}

// Close closes every subscription channel. Later publishes fail with ErrClosed.
func (v *Value[T]) Close() {
	v.pubMu.Lock()
	defer v.pubMu.Unlock()
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return
	}
	v.closed = true
	for id, ch := range v.subs {
		close(ch)
		delete(v.subs, id)
	}
	v.watchers = map[uint64]func(T){}
}

func offerLatest[T any](ch chan T, value T) {
	select {
	case ch <- value:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- value:
	default:
	}
}
