package testutil

import (
	"sync"
)

// Recorder collects values from concurrent tasks in arrival order.
type Recorder[T any] struct {
	mu     sync.Mutex
	values []T
}

// Record appends v.
func (r *Recorder[T]) Record(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
}

// Values returns a copy of everything recorded so far.
func (r *Recorder[T]) Values() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, len(r.values))
	copy(out, r.values)
	return out
}

// Len returns the number of recorded values.
func (r *Recorder[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

// Gate is a one-shot latch. Tasks call Wait to park until the test
// calls Open.
type Gate struct {
	once sync.Once
	ch   chan struct{}
}

// NewGate creates a closed gate.
func NewGate() *Gate {
	return &Gate{ch: make(chan struct{})}
}

// Wait blocks until the gate is opened.
func (g *Gate) Wait() {
	<-g.ch
}

// Open releases all current and future waiters. Safe to call more than once.
func (g *Gate) Open() {
	g.once.Do(func() { close(g.ch) })
}
