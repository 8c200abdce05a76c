package notifications

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultQueueSize bounds the events waiting for delivery.
	DefaultQueueSize = 100

	// drainTimeout caps delivery of each event still queued at Stop.
	drainTimeout = 5 * time.Second
)

// ErrorHandler receives delivery failures. Providers never fail a run.
type ErrorHandler func(provider string, event RunEvent, err error)

// Manager fans run events out to the registered providers from a single
// background worker, so events reach each provider in the order they were
// sent and a slow endpoint never holds up the rotation.
type Manager struct {
	queue chan RunEvent
	stop  chan struct{}
	wg    sync.WaitGroup

	mu        sync.RWMutex
	providers []NotificationProvider
	onError   ErrorHandler
	started   bool

	dropped atomic.Int64
}

// NewManager returns a manager whose queue holds queueSize events, or
// DefaultQueueSize when queueSize is not positive.
func NewManager(queueSize int) *Manager {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Manager{
		queue: make(chan RunEvent, queueSize),
		stop:  make(chan struct{}),
	}
}

func (m *Manager) RegisterProvider(provider NotificationProvider) {
	m.mu.Lock()
	m.providers = append(m.providers, provider)
	m.mu.Unlock()
}

// SetErrorHandler installs fn to observe delivery failures.
func (m *Manager) SetErrorHandler(fn ErrorHandler) {
	m.mu.Lock()
	m.onError = fn
	m.mu.Unlock()
}

// Providers returns a snapshot of the registered providers.
func (m *Manager) Providers() []NotificationProvider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]NotificationProvider(nil), m.providers...)
}

// Start launches the delivery worker. Events sent before Start are ignored.
// Cancelling ctx stops the worker after it drains the queue.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	m.wg.Add(1)
	go m.run(ctx)
}

// Stop delivers whatever is still queued and waits for the worker to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	m.mu.Unlock()

	close(m.stop)
	m.wg.Wait()
}

// Send queues event without blocking. A full queue drops the event.
func (m *Manager) Send(event RunEvent) {
	m.mu.RLock()
	started := m.started
	m.mu.RUnlock()
	if !started {
		return
	}

	select {
	case m.queue <- event:
	default:
		m.dropped.Add(1)
		incrementDroppedCounter()
	}
}

// DroppedCount is the number of events lost to a full queue.
func (m *Manager) DroppedCount() int64 {
	return m.dropped.Load()
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case event := <-m.queue:
			m.deliver(ctx, event)
		case <-ctx.Done():
			m.drain()
			return
		case <-m.stop:
			m.drain()
			return
		}
	}
}

// drain delivers the remaining events with a fresh deadline each, since
// the run context may already be cancelled.
func (m *Manager) drain() {
	for {
		select {
		case event := <-m.queue:
			ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			m.deliver(ctx, event)
			cancel()
		default:
			return
		}
	}
}

func (m *Manager) deliver(ctx context.Context, event RunEvent) {
	m.mu.RLock()
	providers := m.providers
	onError := m.onError
	m.mu.RUnlock()

	for _, p := range providers {
		if !p.SupportsEvent(event.Type) {
			continue
		}
		if err := p.Send(ctx, event); err != nil {
			incrementFailedCounter(p.Name())
			if onError != nil {
				onError(p.Name(), event, err)
			}
		}
	}
}
