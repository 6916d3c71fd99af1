// Package frame provides the end-of-frame deferral primitive: a task queue
// drained once per simulation tick after all synchronous updates. Corrective
// actions that must observe fully-initialized sibling state (restore fixups,
// decouples) go through here instead of running inline. Tasks re-validate
// their own preconditions when they run; that re-check is the system's
// idempotence guard, there are no locks.
package frame

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/attachkit/linkcore/internal/queue"
)

const instrumentationName = "github.com/attachkit/linkcore/internal/frame"

// Task is a deferred corrective action.
type Task struct {
	Name string
	Run  func()
}

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Scheduler queues tasks for the end of the current tick.
type Scheduler struct {
	tasks  *queue.Queue[Task]
	logger Logger

	executed metric.Int64Counter
}

// NewScheduler creates a scheduler using the global OTel meter.
func NewScheduler(logger Logger) (*Scheduler, error) {
	s := &Scheduler{
		tasks:  queue.New[Task](),
		logger: logger,
	}

	var err error
	s.executed, err = otel.Meter(instrumentationName).Int64Counter(
		"frame.tasks.executed",
		metric.WithDescription("Total deferred end-of-frame tasks executed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating executed counter: %w", err)
	}
	return s, nil
}

// Schedule queues a task for the end of the current tick. Tasks scheduled
// while the drain is running execute on the next tick.
func (s *Scheduler) Schedule(name string, run func()) {
	s.tasks.Push(Task{Name: name, Run: run})
}

// Pending returns the number of queued tasks.
func (s *Scheduler) Pending() int {
	return s.tasks.Len()
}

// Drain runs every task queued before the drain started, in FIFO order. The
// simulation calls this exactly once per tick, after synchronous updates.
func (s *Scheduler) Drain() {
	batch := s.tasks.DrainAll()
	for _, t := range batch {
		s.logger.Debug("running deferred task", "task", t.Name)
		t.Run()
		s.executed.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("task", t.Name)))
	}
}
