package worker

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/adred-codev/vectord/internal/lockreg"
	"github.com/adred-codev/vectord/internal/proto"
	"github.com/adred-codev/vectord/internal/queue"
	"github.com/adred-codev/vectord/internal/store"
)

func newTestWorkers(t *testing.T) *Workers {
	t.Helper()
	s, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	return &Workers{
		Registry: lockreg.New(),
		Store:    s,
		Queues:   queue.NewRegistry(),
		Logger:   zerolog.Nop(),
		Tracker:  &Tracker{},
	}
}

// Create, Set, Get, then Destroy, in sequence on one vector.
func TestScenarioCreateSetGetDestroy(t *testing.T) {
	w := newTestWorkers(t)

	if got := w.create("v", 3); got != proto.StatusCreated {
		t.Fatalf("Create = %d, want %d", got, proto.StatusCreated)
	}
	if v, st := w.get("v", 0); v != 0 || st != proto.StatusGetOK {
		t.Fatalf("Get(0) = (%d, %d), want (0, %d)", v, st, proto.StatusGetOK)
	}
	if got := w.set("v", 1, 42); got != proto.StatusSetOK {
		t.Fatalf("Set(1, 42) = %d, want %d", got, proto.StatusSetOK)
	}
	if v, st := w.get("v", 1); v != 42 || st != proto.StatusGetOK {
		t.Fatalf("Get(1) = (%d, %d), want (42, %d)", v, st, proto.StatusGetOK)
	}
	if got := w.destroy("v"); got != proto.StatusDestroyed {
		t.Fatalf("Destroy = %d, want %d", got, proto.StatusDestroyed)
	}
	if _, st := w.get("v", 0); st != proto.StatusGetFail {
		t.Fatalf("Get after destroy = %d, want %d", st, proto.StatusGetFail)
	}
}

// Repeating a Create with the same size is idempotent; a different size conflicts.
func TestScenarioCreateIdempotentThenConflict(t *testing.T) {
	w := newTestWorkers(t)

	if got := w.create("v", 3); got != proto.StatusCreated {
		t.Fatalf("first Create = %d, want %d", got, proto.StatusCreated)
	}
	if got := w.create("v", 3); got != proto.StatusAlreadyExists {
		t.Fatalf("repeat Create = %d, want %d", got, proto.StatusAlreadyExists)
	}
	if got := w.create("v", 4); got != proto.StatusError {
		t.Fatalf("conflicting Create = %d, want %d", got, proto.StatusError)
	}
}

// Invalid names and non-positive sizes are rejected.
func TestScenarioInvalidArguments(t *testing.T) {
	w := newTestWorkers(t)

	if got := w.create("**bad**", 3); got != proto.StatusError {
		t.Fatalf("Create(bad name) = %d, want %d", got, proto.StatusError)
	}
	if got := w.create("x", 0); got != proto.StatusError {
		t.Fatalf("Create(size 0) = %d, want %d", got, proto.StatusError)
	}
	if got := w.create("x", -1); got != proto.StatusError {
		t.Fatalf("Create(size -1) = %d, want %d", got, proto.StatusError)
	}
}

// Every operation on a vector that was never created fails cleanly.
func TestScenarioOperationsOnNonexistentVector(t *testing.T) {
	w := newTestWorkers(t)

	if _, st := w.get("nonexistent", 0); st != proto.StatusGetFail {
		t.Fatalf("Get = %d, want %d", st, proto.StatusGetFail)
	}
	if got := w.destroy("nonexistent"); got != proto.StatusDestroyFail {
		t.Fatalf("Destroy = %d, want %d", got, proto.StatusDestroyFail)
	}
	if got := w.set("nonexistent", 0, 0); got != proto.StatusSetFail {
		t.Fatalf("Set = %d, want %d", got, proto.StatusSetFail)
	}
}

func TestOutOfRangeLeavesFileUnchanged(t *testing.T) {
	w := newTestWorkers(t)
	w.create("v", 3)

	if got := w.set("v", 5, 1); got != proto.StatusSetFail {
		t.Fatalf("Set out of range = %d, want %d", got, proto.StatusSetFail)
	}
	if _, st := w.get("v", -1); st != proto.StatusGetFail {
		t.Fatalf("Get out of range = %d, want %d", st, proto.StatusGetFail)
	}

	size, err := w.Store.ReadSize("v")
	if err != nil || size != 3 {
		t.Fatalf("size changed after out-of-range ops: size=%d err=%v", size, err)
	}
}

// Two goroutines concurrently Set every index of the
// same vector; the file is never corrupted and every Set succeeds.
func TestConcurrentSetsOnSameIndices(t *testing.T) {
	w := newTestWorkers(t)
	const n = 200
	w.create("m", n)

	var wg sync.WaitGroup
	for g := 0; g < 2; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < n; i++ {
				if got := w.set("m", i, i); got != proto.StatusSetOK {
					t.Errorf("Set(%d, %d) = %d, want %d", i, i, got, proto.StatusSetOK)
				}
			}
		}()
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		v, st := w.get("m", i)
		if st != proto.StatusGetOK || int(v) != i {
			t.Fatalf("Get(%d) = (%d, %d), want (%d, %d)", i, v, st, i, proto.StatusGetOK)
		}
	}
}

// Set and Destroy racing on the same vector
// must never leave a corrupted file; either Set completes before Destroy
// tombstones the entry, or Destroy wins and Set observes NotFound.
func TestSetDestroyRaceLeavesNoCorruption(t *testing.T) {
	for i := 0; i < 50; i++ {
		w := newTestWorkers(t)
		w.create("d", 5)

		var setStatus, destroyStatus int32
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			setStatus = w.set("d", 2, 7)
		}()
		go func() {
			defer wg.Done()
			destroyStatus = w.destroy("d")
		}()
		wg.Wait()

		if destroyStatus != proto.StatusDestroyed {
			t.Fatalf("destroy should always succeed in this race, got %d", destroyStatus)
		}
		if setStatus != proto.StatusSetOK && setStatus != proto.StatusSetFail {
			t.Fatalf("unexpected set status %d", setStatus)
		}
		if _, err := w.Store.ReadSize("d"); err == nil {
			t.Fatal("vector file should not exist after destroy")
		}
	}
}
