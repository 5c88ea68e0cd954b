// Package queue implements the fixed-capacity FIFO that moves serialized
// batch frames between pipeline stages. It is safe for many producers and
// many consumers and provides the backpressure between the loading and
// augmenting stages.
package queue

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrFull is returned by Put when the queue stays full for the whole
	// timeout. Expected during steady backpressure, not a failure.
	ErrFull = errors.New("queue: full")
	// ErrEmpty is returned by GetTimeout when nothing arrives in time.
	// Expected while polling, not a failure.
	ErrEmpty = errors.New("queue: empty")
	// ErrClosed is returned once the queue has been closed.
	ErrClosed = errors.New("queue: closed")
)

// Queue is a bounded FIFO of wire frames.
type Queue struct {
	frames chan []byte
	done   chan struct{}
	once   sync.Once
}

// New returns a queue holding at most capacity frames.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		frames: make(chan []byte, capacity),
		done:   make(chan struct{}),
	}
}

// Cap returns the configured capacity.
func (q *Queue) Cap() int { return cap(q.frames) }

// Len returns the number of frames currently queued.
func (q *Queue) Len() int { return len(q.frames) }

// Put enqueues a frame. A timeout <= 0 blocks until there is room or the
// queue is closed; otherwise Put gives up with ErrFull after the timeout.
func (q *Queue) Put(frame []byte, timeout time.Duration) error {
	if timeout <= 0 {
		select {
		case q.frames <- frame:
			return nil
		case <-q.done:
			return ErrClosed
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case q.frames <- frame:
		return nil
	case <-q.done:
		return ErrClosed
	case <-timer.C:
		return ErrFull
	}
}

// Get blocks until a frame is available or the queue is closed. Frames
// already queued when Close is called are still delivered.
func (q *Queue) Get() ([]byte, error) {
	select {
	case frame := <-q.frames:
		return frame, nil
	case <-q.done:
		// Drain leftovers before reporting closure.
		select {
		case frame := <-q.frames:
			return frame, nil
		default:
			return nil, ErrClosed
		}
	}
}

// GetTimeout waits up to timeout for a frame.
func (q *Queue) GetTimeout(timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case frame := <-q.frames:
		return frame, nil
	case <-q.done:
		select {
		case frame := <-q.frames:
			return frame, nil
		default:
			return nil, ErrClosed
		}
	case <-timer.C:
		return nil, ErrEmpty
	}
}

// Drain discards everything currently queued.
func (q *Queue) Drain() {
	for {
		select {
		case <-q.frames:
		default:
			return
		}
	}
}

// Close marks the queue closed. Idempotent. Blocked producers and consumers
// are released with ErrClosed; consumers first receive any frames that were
// already queued.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.done) })
}
