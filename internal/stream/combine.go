package stream

import "sync"

// Combine2 derives out from a and b. out is recomputed synchronously whenever
// either input emits. The returned func detaches the watchers.
func Combine2[A, B, R any](a *Value[A], b *Value[B], out *Value[R], fn func(A, B) R) func() {
	var mu sync.Mutex
	recompute := func() {
		mu.Lock()
		defer mu.Unlock()
		_ = out.Publish(fn(a.Load(), b.Load()))
	}

	stopA := a.Watch(func(A) { recompute() })
	stopB := b.Watch(func(B) { recompute() })
	recompute()

	return func() {
		stopA()
		stopB()
	}
}

// And publishes a && b on a distinct boolean Value.
func And(a, b *Value[bool]) (*Value[bool], func()) {
	out := NewDistinct(a.Load() && b.Load())
	stop := Combine2(a, b, out, func(x, y bool) bool { return x && y })
	return out, stop
}
