// Package queue provides a fixed-capacity FIFO of raw ADC samples shared by a
// single producer (the sampling tick) and a single consumer (the drain loop).
package queue

import (
	"errors"
	"sync/atomic"
)

var (
	// ErrEmptyQueue is returned by Pop when there is nothing to pop.
	ErrEmptyQueue = errors.New("queue is empty")

	// ErrInvalidCapacity is returned by New for capacities below 1.
	ErrInvalidCapacity = errors.New("queue capacity must be at least 1")
)

// Queue is a bounded single-producer single-consumer FIFO.
//
// Push may only be called from the producer context and Pop only from the
// consumer context. Len, IsFull, IsEmpty and Overflows may be called from
// either context at any time. When full, Push drops the incoming sample and
// counts it; entries already queued are never overwritten.
type Queue struct {
	buf  []uint16
	head int // consumer only
	tail int // producer only

	length    atomic.Uint32
	overflows atomic.Uint32
}

// New creates a queue holding at most capacity samples. All storage is
// allocated here; Push and Pop never allocate.
func New(capacity int) (*Queue, error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	return &Queue{buf: make([]uint16, capacity)}, nil
}

// Push appends a sample. It reports false and increments the overflow count
// if the queue is full.
func (q *Queue) Push(s uint16) bool {
	if int(q.length.Load()) == len(q.buf) {
		q.overflows.Add(1)
		return false
	}
	q.buf[q.tail] = s
	q.tail++
	if q.tail == len(q.buf) {
		q.tail = 0
	}
	// Publish only after the slot is written.
	q.length.Add(1)
	return true
}

// Pop removes and returns the oldest sample.
func (q *Queue) Pop() (uint16, error) {
	if q.length.Load() == 0 {
		return 0, ErrEmptyQueue
	}
	s := q.buf[q.head]
	q.head++
	if q.head == len(q.buf) {
		q.head = 0
	}
	q.length.Add(^uint32(0))
	return s, nil
}

// Len returns the number of queued samples.
func (q *Queue) Len() int {
	return int(q.length.Load())
}

// Cap returns the fixed capacity.
func (q *Queue) Cap() int {
	return len(q.buf)
}

// IsFull reports whether the next Push would be dropped.
func (q *Queue) IsFull() bool {
	return int(q.length.Load()) == len(q.buf)
}

// IsEmpty reports whether Pop would fail.
func (q *Queue) IsEmpty() bool {
	return q.length.Load() == 0
}

// Overflows returns how many samples were dropped since the last Reset.
func (q *Queue) Overflows() uint32 {
	return q.overflows.Load()
}

// Reset empties the queue and clears the overflow count. It must only be
// called while no producer is active.
func (q *Queue) Reset() {
	q.head = 0
	q.tail = 0
	q.length.Store(0)
	q.overflows.Store(0)
}
