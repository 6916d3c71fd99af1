// Package monitor periodically samples engine health (tick count, live
// joints, write queue depth, runtime memory) and ships the observations to
// telemetry.
package monitor

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/attachkit/linkcore/internal/telemetry"
	"github.com/attachkit/linkcore/internal/worker"
)

// PerfSink receives the sampled observations.
type PerfSink interface {
	WriteEnginePerf(ctx context.Context, p telemetry.EnginePerf) error
}

// Dependencies holds the monitor's collaborators. Ticks and Joints are
// pull functions so the monitor stays decoupled from the engine type;
// Worker may be nil when recording is synchronous.
type Dependencies struct {
	Sink   PerfSink
	Ticks  func() int
	Joints func() int
	Worker *worker.Manager
	Log    zerolog.Logger
}

// Service samples on an interval from its own goroutine.
type Service struct {
	deps     Dependencies
	interval time.Duration
	log      zerolog.Logger

	mu        sync.Mutex
	isRunning bool
	stopChan  chan struct{}
}

// NewService creates a monitor. Interval zero defaults to five seconds.
func NewService(deps Dependencies, interval time.Duration) *Service {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Service{
		deps:     deps,
		interval: interval,
		log:      deps.Log.With().Str("component", "monitor").Logger(),
		stopChan: make(chan struct{}),
	}
}

// IsRunning reports whether the sampling goroutine is active.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// Sample collects one observation.
func (s *Service) Sample() telemetry.EnginePerf {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	p := telemetry.EnginePerf{
		Time:        time.Now(),
		Goroutines:  runtime.NumGoroutine(),
		HeapAllocMB: float64(mem.HeapAlloc) / (1024 * 1024),
	}
	if s.deps.Ticks != nil {
		p.Ticks = s.deps.Ticks()
	}
	if s.deps.Joints != nil {
		p.Joints = s.deps.Joints()
	}
	if s.deps.Worker != nil {
		p.QueueDepth = s.deps.Worker.Queues().Pending()
		p.LastFlushMs = float64(s.deps.Worker.LastFlushDuration().Milliseconds())
	}
	return p
}

// Start launches the sampling goroutine. Starting a running service is a
// no-op.
func (s *Service) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	stop := s.stopChan
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := s.deps.Sink.WriteEnginePerf(context.Background(), s.Sample()); err != nil {
					s.log.Error().Err(err).Msg("perf write failed")
				}
			}
		}
	}()
}

// Stop halts the sampling goroutine.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		s.isRunning = false
		close(s.stopChan)
	}
}
