package dispatch

import (
	"sync"
	"testing"
	"time"
)

// fakeQueue is a minimal Queue backed by a slice of pending fixed-size
// messages, for testing the dispatcher in isolation from internal/queue.
type fakeQueue struct {
	mu       sync.Mutex
	pending  [][]byte
	msgSize  int
}

func (f *fakeQueue) push(msg []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, msg)
}

func (f *fakeQueue) TryReceiveInto(dst []byte) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		return false, nil
	}
	msg := f.pending[0]
	f.pending = f.pending[1:]
	copy(dst, msg)
	return true, nil
}

func (f *fakeQueue) MsgSize() int { return f.msgSize }
func (f *fakeQueue) Depth() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

func TestPollNoMessageReturnsFalse(t *testing.T) {
	d := New(&fakeQueue{msgSize: 4})
	ok, err := d.Poll(func([]byte) {})
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if ok {
		t.Fatal("expected no message, got ok=true")
	}
}

func TestPollDeliversPrivateCopyToWorker(t *testing.T) {
	q := &fakeQueue{msgSize: 4}
	q.push([]byte{1, 2, 3, 4})
	d := New(q)

	var got []byte
	done := make(chan struct{})
	ok, err := d.Poll(func(msg []byte) {
		got = append([]byte(nil), msg...)
		close(done)
	})
	if err != nil || !ok {
		t.Fatalf("Poll: ok=%v err=%v", ok, err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never ran")
	}
	if string(got) != "\x01\x02\x03\x04" {
		t.Fatalf("unexpected payload: %v", got)
	}
}

func TestPollReusesBufferAcrossMessages(t *testing.T) {
	q := &fakeQueue{msgSize: 4}
	q.push([]byte{1, 1, 1, 1})
	q.push([]byte{2, 2, 2, 2})
	d := New(q)

	var results [][]byte
	var mu sync.Mutex
	worker := func(msg []byte) {
		mu.Lock()
		results = append(results, append([]byte(nil), msg...))
		mu.Unlock()
	}

	for i := 0; i < 2; i++ {
		ok, err := d.Poll(worker)
		if err != nil || !ok {
			t.Fatalf("Poll[%d]: ok=%v err=%v", i, ok, err)
		}
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(results)
		mu.Unlock()
		if n == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("workers never completed")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	// Workers run independently once copied, so they may finish in either
	// order; each must still see its own message intact.
	a, b := string(results[0]), string(results[1])
	if !(a == "\x01\x01\x01\x01" && b == "\x02\x02\x02\x02") && !(a == "\x02\x02\x02\x02" && b == "\x01\x01\x01\x01") {
		t.Fatalf("unexpected results: %v", results)
	}
}
