// Package worker implements the four request operations: Create, Set, Get
// and Destroy. Each operation decodes its wire request, does the
// validation/locking/persistence dance, and always replies exactly once via
// the client's reply queue — a failure to open or write that reply queue is
// logged but never changes the on-disk outcome.
package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/vectord/internal/lockreg"
	"github.com/adred-codev/vectord/internal/metrics"
	"github.com/adred-codev/vectord/internal/proto"
	"github.com/adred-codev/vectord/internal/queue"
	"github.com/adred-codev/vectord/internal/store"
)

// Tracker counts in-flight workers without the Add-must-precede-Wait
// discipline sync.WaitGroup requires — workers are detached goroutines
// that are never joined, so an atomic counter polled by Wait is the safer
// fit than a WaitGroup here.
type Tracker struct {
	n int64
}

func (t *Tracker) inc() { atomic.AddInt64(&t.n, 1); metrics.WorkerStarted() }
func (t *Tracker) dec() { atomic.AddInt64(&t.n, -1); metrics.WorkerFinished() }

// InFlight reports the current number of workers that have started but not
// finished.
func (t *Tracker) InFlight() int64 { return atomic.LoadInt64(&t.n) }

// Wait polls until InFlight reaches zero or ctx is done, returning the
// number still in flight at that point (0 means clean quiescence).
func (t *Tracker) Wait(ctx context.Context) int64 {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		if n := t.InFlight(); n == 0 {
			return 0
		}
		select {
		case <-ctx.Done():
			return t.InFlight()
		case <-ticker.C:
		}
	}
}

// Workers bundles the collaborators every operation needs: the lock
// registry, the persistence store, the queue namespace (for opening the
// reply queue by name) and a logger.
type Workers struct {
	Registry *lockreg.Registry
	Store    *store.Store
	Queues   *queue.Registry
	Logger   zerolog.Logger
	Tracker  *Tracker
}

func (w *Workers) replyInt(op, replyQueueName string, status int32) {
	rep := proto.IntReply{Status: status}
	buf, err := rep.MarshalBinary()
	if err != nil {
		w.Logger.Error().Err(err).Str("op", op).Msg("encoding reply failed")
		return
	}
	w.sendReply(op, replyQueueName, buf, status)
}

func (w *Workers) replyGet(replyQueueName string, value, status int32) {
	rep := proto.GetReply{Value: value, Status: status}
	buf, err := rep.MarshalBinary()
	if err != nil {
		w.Logger.Error().Err(err).Str("op", "get").Msg("encoding reply failed")
		return
	}
	w.sendReply("get", replyQueueName, buf, status)
}

func (w *Workers) sendReply(op, replyQueueName string, buf []byte, status int32) {
	q, err := w.Queues.Open(replyQueueName)
	if err != nil {
		w.Logger.Error().Err(err).Str("op", op).Str("reply_queue", replyQueueName).
			Msg("could not open reply queue for sending response")
		return
	}
	if err := q.Send(buf); err != nil {
		w.Logger.Error().Err(err).Str("op", op).Str("reply_queue", replyQueueName).
			Msg("could not send response")
		return
	}
	metrics.RecordReply(op, statusLabel(status))
}

func statusLabel(status int32) string {
	if status < 0 {
		return "error"
	}
	if status == 0 {
		return "ok"
	}
	return "ok_new"
}

// Create rejects an invalid name or a size < 1 with -1; otherwise it
// compares against any existing vector of the same name (0 if an identical
// size already exists, -1 if a different size exists), and only creates the
// file when none exists yet (1 on success).
func (w *Workers) Create(msg []byte) {
	w.Tracker.inc()
	defer w.Tracker.dec()
	metrics.RecordRequest("create")

	var req proto.CreateReq
	if err := req.UnmarshalBinary(msg); err != nil {
		w.Logger.Error().Err(err).Msg("create: decoding request failed")
		return
	}

	status := w.create(req.Name, int(req.Size))
	w.replyInt("create", req.ReplyQueue, status)
}

func (w *Workers) create(name string, size int) int32 {
	if err := proto.ValidateName(name); err != nil {
		return proto.StatusError
	}
	if size < 1 {
		return proto.StatusError
	}

	existing, err := w.Store.ReadSize(name)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// fall through to create below
	case err != nil:
		w.Logger.Error().Err(err).Str("vector", name).Msg("create: reading existing size failed")
		metrics.RecordPersistenceError("create")
		return proto.StatusError
	case existing == size:
		return proto.StatusAlreadyExists
	default:
		return proto.StatusError
	}

	h, err := w.Registry.EnsureEntry(name)
	if err != nil {
		return proto.StatusError
	}
	h.Lock()
	createErr := w.Store.CreateFile(name, size)
	h.Unlock()
	w.Registry.Release(h)

	if createErr != nil {
		w.Logger.Error().Err(createErr).Str("vector", name).Msg("create: writing file failed")
		metrics.RecordPersistenceError("create")
		return proto.StatusError
	}
	return proto.StatusCreated
}

// Set validates the name, then writes one element of an existing vector.
func (w *Workers) Set(msg []byte) {
	w.Tracker.inc()
	defer w.Tracker.dec()
	metrics.RecordRequest("set")

	var req proto.SetReq
	if err := req.UnmarshalBinary(msg); err != nil {
		w.Logger.Error().Err(err).Msg("set: decoding request failed")
		return
	}

	status := w.set(req.Name, int(req.Pos), int(req.Value))
	w.replyInt("set", req.ReplyQueue, status)
}

func (w *Workers) set(name string, pos, value int) int32 {
	if err := proto.ValidateName(name); err != nil {
		return proto.StatusSetFail
	}

	h, err := w.Registry.Acquire(name)
	if err != nil {
		return proto.StatusSetFail
	}
	defer w.Registry.Release(h)
	h.Lock()
	defer h.Unlock()

	size, err := w.Store.ReadSize(name)
	if err != nil {
		w.logStoreErr("set", name, err)
		return proto.StatusSetFail
	}
	if pos < 0 || pos >= size {
		return proto.StatusSetFail
	}

	if err := w.Store.WriteAt(name, pos, value); err != nil {
		w.logStoreErr("set", name, err)
		return proto.StatusSetFail
	}
	return proto.StatusSetOK
}

// Get validates the name, then reads one element of an existing vector.
func (w *Workers) Get(msg []byte) {
	w.Tracker.inc()
	defer w.Tracker.dec()
	metrics.RecordRequest("get")

	var req proto.GetReq
	if err := req.UnmarshalBinary(msg); err != nil {
		w.Logger.Error().Err(err).Msg("get: decoding request failed")
		return
	}

	value, status := w.get(req.Name, int(req.Pos))
	w.replyGet(req.ReplyQueue, value, status)
}

func (w *Workers) get(name string, pos int) (int32, int32) {
	if err := proto.ValidateName(name); err != nil {
		return 0, proto.StatusGetFail
	}

	h, err := w.Registry.Acquire(name)
	if err != nil {
		return 0, proto.StatusGetFail
	}
	defer w.Registry.Release(h)
	h.Lock()
	defer h.Unlock()

	size, err := w.Store.ReadSize(name)
	if err != nil {
		w.logStoreErr("get", name, err)
		return 0, proto.StatusGetFail
	}
	if pos < 0 || pos >= size {
		return 0, proto.StatusGetFail
	}

	value, err := w.Store.ReadAt(name, pos)
	if err != nil {
		w.logStoreErr("get", name, err)
		return 0, proto.StatusGetFail
	}
	return int32(value), proto.StatusGetOK
}

// Destroy acquires the entry, removes the file, tombstones the entry
// (before unlocking, so the tombstone is visible to any concurrent Acquire
// as soon as it's set), then releases.
func (w *Workers) Destroy(msg []byte) {
	w.Tracker.inc()
	defer w.Tracker.dec()
	metrics.RecordRequest("destroy")

	var req proto.DestroyReq
	if err := req.UnmarshalBinary(msg); err != nil {
		w.Logger.Error().Err(err).Msg("destroy: decoding request failed")
		return
	}

	status := w.destroy(req.Name)
	w.replyInt("destroy", req.ReplyQueue, status)
}

func (w *Workers) destroy(name string) int32 {
	if err := proto.ValidateName(name); err != nil {
		return proto.StatusDestroyFail
	}

	h, err := w.Registry.Acquire(name)
	if err != nil {
		return proto.StatusDestroyFail
	}
	h.Lock()
	removeErr := w.Store.Remove(name)
	if removeErr == nil {
		w.Registry.MarkForRemoval(h)
	}
	h.Unlock()
	w.Registry.Release(h)

	if removeErr != nil {
		w.logStoreErr("destroy", name, removeErr)
		return proto.StatusDestroyFail
	}
	return proto.StatusDestroyed
}

func (w *Workers) logStoreErr(op, name string, err error) {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrOutOfRange) {
		return
	}
	w.Logger.Error().Err(err).Str("op", op).Str("vector", name).Msg("persistence operation failed")
	metrics.RecordPersistenceError(op)
}
