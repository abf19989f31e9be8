// Package resource periodically samples the server process's own CPU and
// memory usage and reports it into internal/metrics. vectord has no
// accept-side backpressure gate keyed on these numbers (there is no
// connection-acceptance concept here); the sampler is observability only.
package resource

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/adred-codev/vectord/internal/metrics"
)

// Sampler periodically records process CPU and RSS into metrics.
type Sampler struct {
	interval time.Duration
	logger   zerolog.Logger
	proc     *process.Process
}

// New returns a Sampler for the current process, sampling every interval.
func New(interval time.Duration, logger zerolog.Logger) (*Sampler, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &Sampler{interval: interval, logger: logger, proc: proc}, nil
}

// Run samples on a ticker until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sampleOnce()
		}
	}
}

func (s *Sampler) sampleOnce() {
	cpuPercent, err := s.proc.CPUPercent()
	if err != nil {
		s.logger.Debug().Err(err).Msg("resource: cpu sample failed")
		return
	}
	memInfo, err := s.proc.MemoryInfo()
	if err != nil {
		s.logger.Debug().Err(err).Msg("resource: memory sample failed")
		return
	}
	metrics.SetProcessSample(cpuPercent, memInfo.RSS)
	s.logger.Debug().
		Float64("cpu_percent", cpuPercent).
		Uint64("rss_bytes", memInfo.RSS).
		Msg("resource sample")
}
