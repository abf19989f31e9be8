// Package server is vectord's control loop: it owns the four intake
// queues, their dispatchers, the lock registry, the persistence store, and
// the cooperative stdin-driven shutdown signal, with a
// New -> Start -> <run> -> Shutdown lifecycle.
package server

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/adred-codev/vectord/internal/config"
	"github.com/adred-codev/vectord/internal/dispatch"
	"github.com/adred-codev/vectord/internal/lockreg"
	"github.com/adred-codev/vectord/internal/metrics"
	"github.com/adred-codev/vectord/internal/proto"
	"github.com/adred-codev/vectord/internal/queue"
	"github.com/adred-codev/vectord/internal/resource"
	"github.com/adred-codev/vectord/internal/store"
	"github.com/adred-codev/vectord/internal/worker"
)

// ExitShutdownClean and ExitInitFailure are the process exit statuses
// used: 0 on clean shutdown, non-zero on initialization
// failure.
const (
	ExitShutdownClean = 0
	ExitInitFailure   = 1

	shutdownCommandLine = "q"
)

type queueSpec struct {
	name    string
	msgSize int
}

// Server owns one vectord process's runtime state.
type Server struct {
	cfg    *config.Config
	logger zerolog.Logger

	Queues   *queue.Registry
	Registry *lockreg.Registry
	Store    *store.Store
	Workers  *worker.Workers
	Metrics  *metrics.Server
	sampler  *resource.Sampler

	dispatchers map[string]*dispatch.Dispatcher
	limiters    map[string]*rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	// wg tracks background goroutines that respect ctx cancellation (the
	// resource sampler). It deliberately excludes readStdin, whose blocking
	// read on os.Stdin cannot be interrupted by ctx; Shutdown must not wait
	// on a goroutine that ctx cancellation cannot wake.
	wg sync.WaitGroup

	shutdownCh chan struct{}
	shutOnce   sync.Once
}

// New builds a Server from cfg, scanning cfg.StoreDir for existing vector
// files and opening the four well-known intake queues.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	st, err := store.New(cfg.StoreDir)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	registry := lockreg.New()
	names, err := st.ExistingNames()
	if err != nil {
		return nil, fmt.Errorf("server: scanning store: %w", err)
	}
	for _, name := range names {
		registry.RegisterExisting(name)
	}

	queues := queue.NewRegistry()
	specs := []queueSpec{
		{"/init", proto.CreateReq{}.WireSize()},
		{"/set", proto.SetReq{}.WireSize()},
		{"/get", proto.GetReq{}.WireSize()},
		{"/destroy", proto.DestroyReq{}.WireSize()},
	}

	dispatchers := make(map[string]*dispatch.Dispatcher, len(specs))
	limiters := make(map[string]*rate.Limiter, len(specs))
	for _, spec := range specs {
		q, err := queues.Create(spec.name, spec.msgSize, cfg.IntakeCapacity, true)
		if err != nil {
			return nil, fmt.Errorf("server: opening queue %s: %w", spec.name, err)
		}
		dispatchers[spec.name] = dispatch.New(q)
		limiters[spec.name] = rate.NewLimiter(rate.Limit(cfg.MaxRequestsPerSec), cfg.RequestBurst)
	}

	sampler, err := resource.New(cfg.ResourceSampleInterval, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("resource sampler unavailable, continuing without it")
		sampler = nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:         cfg,
		logger:      logger,
		Queues:      queues,
		Registry:    registry,
		Store:       st,
		dispatchers: dispatchers,
		limiters:    limiters,
		Metrics:     metrics.NewServer(cfg.MetricsAddr),
		sampler:     sampler,
		ctx:         ctx,
		cancel:      cancel,
		shutdownCh:  make(chan struct{}),
	}
	s.Workers = &worker.Workers{
		Registry: registry,
		Store:    st,
		Queues:   queues,
		Logger:   logger,
		Tracker:  &worker.Tracker{},
	}

	metrics.SetLockEntries(registry.Len())
	return s, nil
}

// Start launches the background goroutines (stdin reader, metrics server,
// resource sampler) and the control loop, then blocks until shutdown is
// signaled via a "q" line on stdin or via Shutdown being called directly.
func (s *Server) Start() error {
	s.logger.Info().Str("store_dir", s.cfg.StoreDir).Msg("vectord starting")

	metricsErrCh := make(chan error, 1)
	s.Metrics.Start(metricsErrCh)

	go s.readStdin()

	if s.sampler != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.sampler.Run(s.ctx)
		}()
	}

	s.runControlLoop(metricsErrCh)
	return nil
}

func (s *Server) runControlLoop(metricsErrCh <-chan error) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	names := [...]string{"/init", "/set", "/get", "/destroy"}
	work := map[string]func([]byte){
		"/init":    s.Workers.Create,
		"/set":     s.Workers.Set,
		"/get":     s.Workers.Get,
		"/destroy": s.Workers.Destroy,
	}

	for {
		select {
		case <-s.shutdownCh:
			return
		case err := <-metricsErrCh:
			s.logger.Error().Err(err).Msg("metrics server failed")
		case <-ticker.C:
			for _, name := range names {
				d := s.dispatchers[name]
				limiter := s.limiters[name]
				if !limiter.Allow() {
					if d.QueueHasMessage() {
						metrics.RecordRejected(name)
					}
					continue
				}
				polled, err := d.Poll(work[name])
				if err != nil {
					s.logger.Error().Err(err).Str("queue", name).Msg("intake receive failed")
					continue
				}
				if polled {
					metrics.SetQueueDepth(name, d.Depth())
				}
			}
			metrics.SetLockEntries(s.Registry.Len())
		}
	}
}

// readStdin runs for the lifetime of the process, not just until Shutdown
// returns: a blocking read on os.Stdin cannot be interrupted by ctx
// cancellation, so Shutdown never waits on this goroutine (see s.wg's
// doc comment). It is expected to be reaped by process exit once the
// caller's main has returned from Shutdown and calls os.Exit.
func (s *Server) readStdin() {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if scanner.Text() == shutdownCommandLine {
			s.triggerShutdown()
			return
		}
		if s.ctx.Err() != nil {
			return
		}
	}
	// EOF on stdin (no controlling terminal, e.g. under a test harness) is
	// not itself a shutdown signal; the caller is expected to call
	// Shutdown directly in that case.
}

func (s *Server) triggerShutdown() {
	s.shutOnce.Do(func() { close(s.shutdownCh) })
}

// Shutdown tears the server down: cancels background goroutines, waits up
// to cfg.ShutdownGrace for in-flight workers to finish (a best-effort
// quiescence barrier, added on top of graceful draining being otherwise
// out of scope), then closes and unlinks the intake queues and the
// metrics server.
func (s *Server) Shutdown() error {
	s.triggerShutdown()
	s.cancel()

	graceCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
	defer cancel()
	if n := s.Workers.Tracker.Wait(graceCtx); n > 0 {
		s.logger.Warn().Int64("in_flight", n).Msg("shutdown grace period elapsed with workers still running")
	}

	for _, name := range [...]string{"/init", "/set", "/get", "/destroy"} {
		s.Queues.Unlink(name)
	}

	metricsCtx, metricsCancel := context.WithTimeout(context.Background(), metrics.ShutdownTimeout)
	defer metricsCancel()
	if err := s.Metrics.Shutdown(metricsCtx); err != nil {
		s.logger.Warn().Err(err).Msg("metrics server shutdown error")
	}

	s.wg.Wait()
	s.logger.Info().Msg("vectord shut down cleanly")
	return nil
}
