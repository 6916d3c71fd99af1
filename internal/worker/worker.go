// Package worker moves event recording off the simulation thread. The
// engine pushes into thread-safe queues and returns immediately; a single
// flush goroutine drains them into the storage backend on an interval.
package worker

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/attachkit/linkcore/internal/queue"
	"github.com/attachkit/linkcore/internal/storage"
	"github.com/attachkit/linkcore/pkg/core"
)

// Queues holds the pending writes, one queue per record kind.
type Queues struct {
	LinkCreated  *queue.Queue[core.LinkCreated]
	LinkBroken   *queue.Queue[core.LinkBroken]
	MotorSamples *queue.Queue[core.MotorSample]
}

// NewQueues creates the empty queue set.
func NewQueues() *Queues {
	return &Queues{
		LinkCreated:  queue.New[core.LinkCreated](),
		LinkBroken:   queue.New[core.LinkBroken](),
		MotorSamples: queue.New[core.MotorSample](),
	}
}

// Pending returns the total queued record count across all kinds.
func (q *Queues) Pending() int {
	return q.LinkCreated.Len() + q.LinkBroken.Len() + q.MotorSamples.Len()
}

// Manager owns the flush goroutine. It satisfies the engine's recorder
// seam; Record* calls only enqueue and never block on the backend.
type Manager struct {
	backend  storage.Backend
	queues   *Queues
	interval time.Duration
	log      zerolog.Logger

	mu            sync.RWMutex
	isRunning     bool
	stopChan      chan struct{}
	lastFlushTook time.Duration
}

// NewManager creates a worker over the given backend. Interval is how often
// queued records are flushed; zero defaults to one second.
func NewManager(backend storage.Backend, interval time.Duration, log zerolog.Logger) *Manager {
	if interval <= 0 {
		interval = time.Second
	}
	return &Manager{
		backend:  backend,
		queues:   NewQueues(),
		interval: interval,
		log:      log.With().Str("component", "worker").Logger(),
		stopChan: make(chan struct{}),
	}
}

// Queues exposes the queue set for depth monitoring.
func (m *Manager) Queues() *Queues { return m.queues }

// LastFlushDuration returns how long the most recent flush took.
func (m *Manager) LastFlushDuration() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastFlushTook
}

// IsRunning reports whether the flush goroutine is active.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isRunning
}

func (m *Manager) RecordLinkCreated(ev core.LinkCreated) error {
	m.queues.LinkCreated.Push(ev)
	return nil
}

func (m *Manager) RecordLinkBroken(ev core.LinkBroken) error {
	m.queues.LinkBroken.Push(ev)
	return nil
}

func (m *Manager) RecordMotorSample(s core.MotorSample) error {
	m.queues.MotorSamples.Push(s)
	return nil
}

// Start launches the flush goroutine. Starting an already-running manager
// is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = true
	m.stopChan = make(chan struct{})
	stop := m.stopChan
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.Flush()
			}
		}
	}()
}

// Stop halts the flush goroutine and drains whatever is still queued.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = false
	close(m.stopChan)
	m.mu.Unlock()

	m.Flush()
}

// Flush drains all queues into the backend. Failed writes are logged and
// dropped; the queues must not grow unboundedly on a dead backend.
func (m *Manager) Flush() {
	start := time.Now()

	for {
		ev, ok := m.queues.LinkCreated.Pop()
		if !ok {
			break
		}
		if err := m.backend.RecordLinkCreated(ev); err != nil {
			m.log.Error().Err(err).Msg("link created write failed")
		}
	}
	for {
		ev, ok := m.queues.LinkBroken.Pop()
		if !ok {
			break
		}
		if err := m.backend.RecordLinkBroken(ev); err != nil {
			m.log.Error().Err(err).Msg("link broken write failed")
		}
	}
	for {
		s, ok := m.queues.MotorSamples.Pop()
		if !ok {
			break
		}
		if err := m.backend.RecordMotorSample(s); err != nil {
			m.log.Error().Err(err).Msg("motor sample write failed")
		}
	}

	m.mu.Lock()
	m.lastFlushTook = time.Since(start)
	m.mu.Unlock()
}
