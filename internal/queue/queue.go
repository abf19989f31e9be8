// Package queue is the Go stand-in for the POSIX named-message-queue
// transport: a process-wide namespace of named, fixed-message-size,
// bounded-capacity queues, opened by name with POSIX-flavored open flags
// (O_CREAT, O_EXCL, O_NONBLOCK) and closed/unlinked the same way. See
// DESIGN.md for why this is an in-process registry rather than a real
// OS-level mqueue binding.
package queue

import (
	"errors"
	"fmt"
	"sync"
)

// ErrWouldBlock is returned by TryReceive when no message is queued,
// mirroring mq_receive on an O_NONBLOCK descriptor with nothing pending.
var ErrWouldBlock = errors.New("queue: would block")

// ErrExists is returned by Create when a queue of that name is already
// registered, mirroring mq_open(O_CREAT|O_EXCL) on an existing queue.
var ErrExists = errors.New("queue: already exists")

// ErrNotFound is returned when opening a queue name that has not been
// created, mirroring mq_open without O_CREAT on a missing queue.
var ErrNotFound = errors.New("queue: not found")

// Queue is one named message queue: a bounded FIFO of fixed-size byte
// messages. The zero value is not usable; construct via Registry.Create.
type Queue struct {
	name    string
	msgSize int
	ch      chan []byte
}

// Name returns the queue's registered name.
func (q *Queue) Name() string { return q.name }

// MsgSize returns the fixed message size this queue accepts.
func (q *Queue) MsgSize() int { return q.msgSize }

// Send enqueues msg, blocking if the queue is at capacity. len(msg) must
// equal MsgSize().
func (q *Queue) Send(msg []byte) error {
	if len(msg) != q.msgSize {
		return fmt.Errorf("queue %s: message size %d != %d", q.name, len(msg), q.msgSize)
	}
	cp := make([]byte, len(msg))
	copy(cp, msg)
	q.ch <- cp
	return nil
}

// TryReceive attempts a non-blocking receive, the Go equivalent of
// mq_receive on a descriptor opened with O_NONBLOCK: it returns ErrWouldBlock
// immediately rather than waiting for a message.
func (q *Queue) TryReceive() ([]byte, error) {
	select {
	case msg := <-q.ch:
		return msg, nil
	default:
		return nil, ErrWouldBlock
	}
}

// TryReceiveInto is the reused-buffer variant of TryReceive: it copies the
// next queued message into dst (which must be at least MsgSize() long) and
// reports whether a message was available. This is what the dispatcher uses
// against its own single preallocated IntakeBuffer per queue, rather than
// allocating a fresh slice per request.
func (q *Queue) TryReceiveInto(dst []byte) (bool, error) {
	select {
	case msg := <-q.ch:
		if len(dst) < len(msg) {
			return false, fmt.Errorf("queue %s: destination buffer too small", q.name)
		}
		copy(dst, msg)
		return true, nil
	default:
		return false, nil
	}
}

// Depth reports the number of messages currently queued.
func (q *Queue) Depth() int { return len(q.ch) }

// Registry is the process-wide queue namespace: a single mutex-guarded map
// from queue name to *Queue, matching the way vectord's four well-known
// intake queues and every per-request reply queue share one flat namespace.
type Registry struct {
	mu     sync.Mutex
	queues map[string]*Queue
}

// NewRegistry returns an empty queue namespace.
func NewRegistry() *Registry {
	return &Registry{queues: make(map[string]*Queue)}
}

// Create registers a new queue of the given name, message size and maximum
// queued-message capacity. excl mirrors O_EXCL: if true, Create fails when
// the name is already registered; if false, an existing queue of the same
// name is returned unchanged (mirroring mq_open(O_CREAT) without O_EXCL).
func (r *Registry) Create(name string, msgSize, capacity int, excl bool) (*Queue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if q, ok := r.queues[name]; ok {
		if excl {
			return nil, fmt.Errorf("%w: %s", ErrExists, name)
		}
		return q, nil
	}

	q := &Queue{name: name, msgSize: msgSize, ch: make(chan []byte, capacity)}
	r.queues[name] = q
	return q, nil
}

// Open returns the queue registered under name, or ErrNotFound.
func (r *Registry) Open(name string) (*Queue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.queues[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return q, nil
}

// Unlink removes a queue from the namespace. Unlinking a queue that is not
// registered is a no-op, matching mq_unlink's ENOENT being non-fatal for
// best-effort cleanup callers.
func (r *Registry) Unlink(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.queues, name)
}
