package server

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/vectord/internal/client"
	"github.com/adred-codev/vectord/internal/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		StoreDir:               t.TempDir(),
		IntakeCapacity:         10,
		PollInterval:           time.Millisecond,
		MaxRequestsPerSec:      100000,
		RequestBurst:           100000,
		ShutdownGrace:          time.Second,
		MetricsAddr:            ":0",
		ResourceSampleInterval: time.Hour,
		LogLevel:               "info",
		LogFormat:              "json",
	}
	s, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	go s.Start()
	t.Cleanup(func() { s.Shutdown() })
	return s
}

// End-to-end Create/Set/Get/Destroy, driven over the client package
// against a running control loop rather than calling worker methods directly.
func TestEndToEndCreateSetGetDestroy(t *testing.T) {
	s := newTestServer(t)
	c := client.New(s.Queues, 2*time.Second)
	ctx := context.Background()

	status, err := c.Create(ctx, "ev", 3)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if status != 1 {
		t.Fatalf("Create status = %d, want 1", status)
	}

	if status, err = c.Set(ctx, "ev", 1, 99); err != nil || status != 0 {
		t.Fatalf("Set = (%d, %v), want (0, nil)", status, err)
	}

	value, status, err := c.Get(ctx, "ev", 1)
	if err != nil || status != 0 || value != 99 {
		t.Fatalf("Get = (%d, %d, %v), want (99, 0, nil)", value, status, err)
	}

	if status, err = c.Destroy(ctx, "ev"); err != nil || status != 1 {
		t.Fatalf("Destroy = (%d, %v), want (1, nil)", status, err)
	}

	if _, status, err = c.Get(ctx, "ev", 0); err != nil || status != -1 {
		t.Fatalf("Get after destroy = (%d, %v), want (-1, nil)", status, err)
	}
}

// End-to-end: idempotent Create, then a conflicting size.
func TestEndToEndCreateIdempotentThenConflict(t *testing.T) {
	s := newTestServer(t)
	c := client.New(s.Queues, 2*time.Second)
	ctx := context.Background()

	if status, err := c.Create(ctx, "dup", 4); err != nil || status != 1 {
		t.Fatalf("first Create = (%d, %v), want (1, nil)", status, err)
	}
	if status, err := c.Create(ctx, "dup", 4); err != nil || status != 0 {
		t.Fatalf("repeat Create = (%d, %v), want (0, nil)", status, err)
	}
	if status, err := c.Create(ctx, "dup", 5); err != nil || status != -1 {
		t.Fatalf("conflicting Create = (%d, %v), want (-1, nil)", status, err)
	}
}

// Many concurrent clients hammering distinct vectors through the real
// dispatcher/worker pipeline should all complete without cross-talk.
func TestEndToEndConcurrentClientsDistinctVectors(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	const n = 8
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			c := client.New(s.Queues, 2*time.Second)
			name := "conc" + string(rune('a'+i))
			if status, err := c.Create(ctx, name, 2); err != nil || status != 1 {
				errs <- fmt.Errorf("Create(%s) = (%d, %v), want (1, nil)", name, status, err)
				return
			}
			if status, err := c.Set(ctx, name, 0, i); err != nil || status != 0 {
				errs <- fmt.Errorf("Set(%s) = (%d, %v), want (0, nil)", name, status, err)
				return
			}
			value, status, err := c.Get(ctx, name, 0)
			if err != nil || status != 0 || int(value) != i {
				errs <- fmt.Errorf("Get(%s) = (%d, %d, %v), want (%d, 0, nil)", name, value, status, err, i)
				return
			}
			errs <- nil
		}(i)
	}
	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("concurrent client %d: %v", i, err)
		}
	}
}

// A server restarted against the same StoreDir must rediscover existing
// vectors via its startup scan so Destroy still works on them.
func TestStartupScanRediscoversExistingVectors(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		StoreDir:               dir,
		IntakeCapacity:         10,
		PollInterval:           time.Millisecond,
		MaxRequestsPerSec:      100000,
		RequestBurst:           100000,
		ShutdownGrace:          time.Second,
		MetricsAddr:            ":0",
		ResourceSampleInterval: time.Hour,
		LogLevel:               "info",
		LogFormat:              "json",
	}

	s1, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	go s1.Start()
	c1 := client.New(s1.Queues, 2*time.Second)
	if status, err := c1.Create(context.Background(), "persisted", 2); err != nil || status != 1 {
		t.Fatalf("Create: (%d, %v)", status, err)
	}
	s1.Shutdown()

	s2, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New (restart): %v", err)
	}
	go s2.Start()
	defer s2.Shutdown()

	c2 := client.New(s2.Queues, 2*time.Second)
	if status, err := c2.Destroy(context.Background(), "persisted"); err != nil || status != 1 {
		t.Fatalf("Destroy after restart = (%d, %v), want (1, nil)", status, err)
	}
}
