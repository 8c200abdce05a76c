package notifications

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider is a test double for NotificationProvider
type fakeProvider struct {
	name          string
	supportedEvts []EventType
	sendFunc      func(ctx context.Context, event RunEvent) error
	mu            sync.Mutex
	sentEvents    []RunEvent
	sendDelay     time.Duration
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{
		name:          name,
		supportedEvts: AllEventTypes(),
	}
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) SupportsEvent(eventType EventType) bool {
	for _, e := range p.supportedEvts {
		if e == eventType {
			return true
		}
	}
	return false
}

func (p *fakeProvider) Validate(ctx context.Context) error { return nil }

func (p *fakeProvider) Send(ctx context.Context, event RunEvent) error {
	if p.sendDelay > 0 {
		select {
		case <-time.After(p.sendDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if p.sendFunc != nil {
		return p.sendFunc(ctx, event)
	}

	p.mu.Lock()
	p.sentEvents = append(p.sentEvents, event)
	p.mu.Unlock()
	return nil
}

func (p *fakeProvider) getSentEvents() []RunEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]RunEvent, len(p.sentEvents))
	copy(out, p.sentEvents)
	return out
}

func TestNewManager(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultQueueSize, cap(NewManager(0).queue))
	assert.Equal(t, 5, cap(NewManager(5).queue))
}

func TestManager_RegisterProvider(t *testing.T) {
	t.Parallel()

	m := NewManager(10)
	m.RegisterProvider(newFakeProvider("a"))
	m.RegisterProvider(newFakeProvider("b"))

	providers := m.Providers()
	require.Len(t, providers, 2)
	providers[0] = nil
	assert.NotNil(t, m.Providers()[0], "Providers returns a copy")
}

func TestManager_StartStop(t *testing.T) {
	t.Parallel()

	m := NewManager(10)
	m.Start(context.Background())
	m.Start(context.Background())
	m.Stop()
	m.Stop()
}

func TestManager_StopDeliversQueuedEvents(t *testing.T) {
	t.Parallel()

	m := NewManager(10)
	provider := newFakeProvider("test")
	m.RegisterProvider(provider)
	m.Start(context.Background())

	m.Send(RunEvent{Type: EventTypeStarted, Host: "fw1"})
	m.Send(RunEvent{Type: EventTypeCompleted, Host: "fw1"})
	m.Stop()

	events := provider.getSentEvents()
	require.Len(t, events, 2)
	assert.Equal(t, EventTypeStarted, events[0].Type)
	assert.Equal(t, EventTypeCompleted, events[1].Type)
}

func TestManager_FiltersByEventType(t *testing.T) {
	t.Parallel()

	m := NewManager(10)
	provider := newFakeProvider("failures-only")
	provider.supportedEvts = []EventType{EventTypeFailed}
	m.RegisterProvider(provider)
	m.Start(context.Background())

	m.Send(RunEvent{Type: EventTypeCompleted, Host: "fw1"})
	m.Send(RunEvent{Type: EventTypeFailed, Host: "fw2"})
	m.Stop()

	events := provider.getSentEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "fw2", events[0].Host)
}

func TestManager_ErrorHandler(t *testing.T) {
	t.Parallel()

	m := NewManager(10)
	provider := newFakeProvider("broken")
	provider.sendFunc = func(context.Context, RunEvent) error { return errors.New("connection refused") }
	m.RegisterProvider(provider)

	var mu sync.Mutex
	var failures []string
	m.SetErrorHandler(func(name string, event RunEvent, err error) {
		mu.Lock()
		defer mu.Unlock()
		failures = append(failures, name+": "+err.Error())
	})

	m.Start(context.Background())
	m.Send(RunEvent{Type: EventTypeCompleted})
	m.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"broken: connection refused"}, failures)
}

func TestManager_DropsWhenQueueFull(t *testing.T) {
	t.Parallel()

	m := NewManager(1)
	provider := newFakeProvider("slow")
	provider.sendDelay = 50 * time.Millisecond
	m.RegisterProvider(provider)
	m.Start(context.Background())

	for i := 0; i < 10; i++ {
		m.Send(RunEvent{Type: EventTypeCompleted})
	}
	m.Stop()

	assert.Greater(t, m.DroppedCount(), int64(0))
}

func TestManager_SendBeforeStartIsIgnored(t *testing.T) {
	t.Parallel()

	m := NewManager(10)
	provider := newFakeProvider("test")
	m.RegisterProvider(provider)

	m.Send(RunEvent{Type: EventTypeCompleted})
	assert.Empty(t, provider.getSentEvents())
}

func TestManager_ContextCancellationDrains(t *testing.T) {
	t.Parallel()

	m := NewManager(10)
	provider := newFakeProvider("test")
	m.RegisterProvider(provider)

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	cancel()
	m.Stop()
}

func TestInitMetrics(t *testing.T) {
	// Not parallel: touches package-level counters.
	reg := prometheus.NewRegistry()
	InitMetrics(reg)
	InitMetrics(reg)

	incrementDroppedCounter()
	incrementFailedCounter("webhook:ops")

	assert.Equal(t, float64(1), testutil.ToFloat64(droppedTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(failedTotal.WithLabelValues("webhook:ops")))
}
