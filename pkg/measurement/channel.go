// The measurement package links a single producer that owns slow hardware
// with any number of consumers that want a fresh value on demand.
//
// Consumers call Trigger to wake the producer and NextChange to wait for the
// value it publishes. Triggers coalesce: however many arrive while the
// producer is busy, it wakes up once. Published values are broadcast to every
// waiting consumer.
package measurement

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrNoReceivers is returned by Publish once every receiver has been closed.
	ErrNoReceivers = errors.New("measurement: no receivers left")

	// ErrClosed is returned once the sender side has been closed.
	ErrClosed = errors.New("measurement: sender closed")
)

type channel[T any] struct {
	// Single permit. A send that finds it full is dropped.
	trigger   chan struct{}
	requested atomic.Uint64

	mutex     sync.Mutex
	value     T
	version   uint64
	served    uint64
	changed   chan struct{}
	receivers int
	closed    bool
}

// Sender is the producer side. It is owned by a single goroutine.
type Sender[T any] struct {
	ch      *channel[T]
	serving uint64
}

// Receiver is the consumer side. A Receiver must not be shared between
// goroutines; use Clone to hand one to each of them.
type Receiver[T any] struct {
	ch     *channel[T]
	seen   uint64
	ticket uint64
	once   sync.Once
}

// New creates a linked sender/receiver pair whose slot holds initial.
func New[T any](initial T) (*Sender[T], *Receiver[T]) {
	ch := &channel[T]{
		trigger:   make(chan struct{}, 1),
		value:     initial,
		changed:   make(chan struct{}),
		receivers: 1,
	}
	return &Sender[T]{ch: ch}, &Receiver[T]{ch: ch}
}

// WaitForTrigger blocks until at least one Trigger call happened since the
// last wake-up, then consumes it.
func (s *Sender[T]) WaitForTrigger(ctx context.Context) error {
	select {
	case <-s.ch.trigger:
		s.serving = s.ch.requested.Load()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish stores v in the slot and wakes every receiver waiting in
// NextChange.
func (s *Sender[T]) Publish(v T) error {
	ch := s.ch
	ch.mutex.Lock()
	defer ch.mutex.Unlock()

	if ch.closed {
		return ErrClosed
	}
	if ch.receivers == 0 {
		return ErrNoReceivers
	}

	ch.value = v
	ch.version++
	if s.serving > ch.served {
		ch.served = s.serving
	}
	close(ch.changed)
	ch.changed = make(chan struct{})
	return nil
}

// Close marks the sender as gone. Pending and future NextChange calls return
// ErrClosed once they have consumed any value they had not seen yet.
func (s *Sender[T]) Close() {
	ch := s.ch
	ch.mutex.Lock()
	defer ch.mutex.Unlock()

	if ch.closed {
		return
	}
	ch.closed = true
	close(ch.changed)
}

// Trigger asks the sender for a new value. It never blocks.
func (r *Receiver[T]) Trigger() {
	r.ticket = r.ch.requested.Add(1)
	select {
	case r.ch.trigger <- struct{}{}:
	default:
	}
}

// Current returns the value in the slot without waiting.
func (r *Receiver[T]) Current() T {
	r.ch.mutex.Lock()
	defer r.ch.mutex.Unlock()
	return r.ch.value
}

// NextChange waits for a publish this receiver has not observed yet and
// returns its value. After Trigger, only a value produced by a cycle that
// woke up for that trigger (or a later one) is accepted.
func (r *Receiver[T]) NextChange(ctx context.Context) (T, error) {
	var zero T
	ch := r.ch
	for {
		ch.mutex.Lock()
		if ch.version != r.seen && ch.served >= r.ticket {
			r.seen = ch.version
			v := ch.value
			ch.mutex.Unlock()
			return v, nil
		}
		if ch.closed {
			ch.mutex.Unlock()
			return zero, ErrClosed
		}
		changed := ch.changed
		ch.mutex.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Clone returns a new receiver on the same channel. It has already observed
// the current value.
func (r *Receiver[T]) Clone() *Receiver[T] {
	ch := r.ch
	ch.mutex.Lock()
	defer ch.mutex.Unlock()

	ch.receivers++
	return &Receiver[T]{ch: ch, seen: ch.version}
}

// Close releases the receiver. Once every receiver is closed the sender's
// next Publish fails with ErrNoReceivers.
func (r *Receiver[T]) Close() {
	r.once.Do(func() {
		r.ch.mutex.Lock()
		r.ch.receivers--
		r.ch.mutex.Unlock()
	})
}
