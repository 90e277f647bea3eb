package util

import (
	"context"
	"sync"
)

// Observable holds a latest value and notifies subscribers when it changes.
// Subscribers are called outside the lock, in registration order.
type Observable[T any] struct {
	mu     sync.RWMutex
	value  T
	nextID int
	subs   map[int]func(T)
	order  []int
}

// NewObservable creates an Observable holding initial.
func NewObservable[T any](initial T) *Observable[T] {
	return &Observable[T]{value: initial, subs: make(map[int]func(T))}
}

// Get returns the current value.
func (o *Observable[T]) Get() T {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.value
}

// Set stores v and publishes it to every subscriber.
func (o *Observable[T]) Set(v T) {
	o.mu.Lock()
	o.value = v
	fns := make([]func(T), 0, len(o.order))
	for _, id := range o.order {
		fns = append(fns, o.subs[id])
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Subscribe registers fn for future values. The returned func removes it.
func (o *Observable[T]) Subscribe(fn func(T)) (cancel func()) {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.subs[id] = fn
	o.order = append(o.order, id)
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			delete(o.subs, id)
			for i, sid := range o.order {
				if sid == id {
					o.order = append(o.order[:i:i], o.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Watch returns a channel that receives the current value immediately and
// then every later one. Slow readers only see the most recent value. The
// channel is closed when ctx is done.
func (o *Observable[T]) Watch(ctx context.Context) <-chan T {
	ch := make(chan T, 1)
	var (
		mu     sync.Mutex
		closed bool
	)
	push := func(v T) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case <-ch:
		default:
		}
		ch <- v
	}

	cancel := o.Subscribe(push)
	push(o.Get())

	go func() {
		<-ctx.Done()
		cancel()
		mu.Lock()
		closed = true
		close(ch)
		mu.Unlock()
	}()
	return ch
}
