// Package messaging implements the event bus that decouples the session
// pipeline from notification fanout. A single-instance deployment only needs
// the in-memory bus; handlers run on a bounded worker pool so a slow
// subscriber cannot stall publishers.
package messaging

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/soyle-hub/soyle-practice-hub/internal/domain/shared"
)

// ErrEventBusClosed is returned when operations are attempted on a closed bus.
var ErrEventBusClosed = errors.New("event bus is closed")

// InMemoryEventBus is an in-process implementation of shared.EventBus.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	handlers    map[shared.EventType][]shared.EventHandler
	allHandlers []shared.EventHandler
	asyncMode   bool
	workerPool  chan struct{}
	logger      *slog.Logger
	metrics     *Metrics
	closed      bool
	closeCh     chan struct{}
	wg          sync.WaitGroup
}

// Config contains configuration for InMemoryEventBus.
type Config struct {
	// AsyncMode runs handlers on the worker pool instead of the publisher's
	// goroutine. Fanout must never block startSession/finalize callers, so
	// production runs async; tests run sync for determinism.
	AsyncMode bool

	// WorkerPoolSize bounds concurrent handler executions in async mode.
	WorkerPoolSize int

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		AsyncMode:      true,
		WorkerPoolSize: 8,
	}
}

// NewInMemoryEventBus creates a new in-memory event bus.
func NewInMemoryEventBus(config Config) *InMemoryEventBus {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 8
	}

	return &InMemoryEventBus{
		handlers:   make(map[shared.EventType][]shared.EventHandler),
		asyncMode:  config.AsyncMode,
		workerPool: make(chan struct{}, config.WorkerPoolSize),
		logger:     config.Logger,
		metrics:    NewMetrics(),
		closeCh:    make(chan struct{}),
	}
}

// Subscribe registers a handler for a specific event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}

	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.logger.Debug("subscribed handler", "event_type", eventType)
	return nil
}

// SubscribeAll registers a handler for all events.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}

	b.allHandlers = append(b.allHandlers, handler)
	return nil
}

// Publish sends an event to all subscribed handlers. In async mode handler
// errors are logged, never returned: publishing is fire-and-forget from the
// caller's point of view.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	handlers := make([]shared.EventHandler, 0, len(b.handlers[event.EventType()])+len(b.allHandlers))
	handlers = append(handlers, b.handlers[event.EventType()]...)
	handlers = append(handlers, b.allHandlers...)
	b.mu.RUnlock()

	b.metrics.RecordPublish(event.EventType())

	if len(handlers) == 0 {
		b.logger.Debug("no handlers for event", "event_type", event.EventType())
		return nil
	}

	for _, handler := range handlers {
		if b.asyncMode {
			b.executeAsync(event, handler)
		} else {
			if err := b.execute(event, handler); err != nil {
				b.logger.Error("handler error", "event_type", event.EventType(), "error", err)
			}
		}
	}

	return nil
}

// executeAsync runs a handler on the worker pool.
func (b *InMemoryEventBus) executeAsync(event shared.Event, handler shared.EventHandler) {
	b.wg.Add(1)

	go func() {
		defer b.wg.Done()

		select {
		case b.workerPool <- struct{}{}:
			defer func() { <-b.workerPool }()
		case <-b.closeCh:
			return
		}

		if err := b.execute(event, handler); err != nil {
			b.logger.Error("async handler error", "event_type", event.EventType(), "error", err)
		}
	}()
}

func (b *InMemoryEventBus) execute(event shared.Event, handler shared.EventHandler) error {
	start := time.Now()
	err := handler(event)
	b.metrics.RecordExecution(event.EventType(), time.Since(start), err == nil)
	return err
}

// Close stops accepting events and waits for in-flight handlers.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.closeCh)
	b.mu.Unlock()

	b.wg.Wait()
	b.logger.Info("event bus closed")
	return nil
}

// Metrics returns the bus metrics.
func (b *InMemoryEventBus) Metrics() *Metrics {
	return b.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// Metrics tracks publish and handler counters for the health endpoint.
type Metrics struct {
	mu sync.RWMutex

	published     map[shared.EventType]int64
	executions    int64
	failures      int64
	totalDuration time.Duration
}

// NewMetrics creates a metrics tracker.
func NewMetrics() *Metrics {
	return &Metrics{published: make(map[shared.EventType]int64)}
}

// RecordPublish records a published event.
func (m *Metrics) RecordPublish(eventType shared.EventType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published[eventType]++
}

// RecordExecution records a handler execution.
func (m *Metrics) RecordExecution(_ shared.EventType, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions++
	m.totalDuration += duration
	if !success {
		m.failures++
	}
}

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	Published       int64         `json:"published"`
	Executions      int64         `json:"executions"`
	Failures        int64         `json:"failures"`
	AverageDuration time.Duration `json:"average_duration"`
}

// Snapshot returns a copy of current counters.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var published int64
	for _, n := range m.published {
		published += n
	}

	avg := time.Duration(0)
	if m.executions > 0 {
		avg = m.totalDuration / time.Duration(m.executions)
	}

	return Snapshot{
		Published:       published,
		Executions:      m.executions,
		Failures:        m.failures,
		AverageDuration: avg,
	}
}
