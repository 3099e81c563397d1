package messaging

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyle-hub/soyle-practice-hub/internal/domain/shared"
)

func syncBus() *InMemoryEventBus {
	return NewInMemoryEventBus(Config{AsyncMode: false})
}

func TestPublish_RoutesByEventType(t *testing.T) {
	bus := syncBus()

	var started, completed int
	require.NoError(t, bus.Subscribe(shared.EventSessionStarted, func(shared.Event) error {
		started++
		return nil
	}))
	require.NoError(t, bus.Subscribe(shared.EventSessionCompleted, func(shared.Event) error {
		completed++
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewSessionStartedEvent("s1", "l1", "", "ai-only", "")))
	require.NoError(t, bus.Publish(shared.NewSessionStartedEvent("s2", "l1", "", "ai-only", "")))

	assert.Equal(t, 2, started)
	assert.Equal(t, 0, completed)
}

func TestPublish_GlobalHandlerSeesEverything(t *testing.T) {
	bus := syncBus()

	var seen []shared.EventType
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		seen = append(seen, e.EventType())
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewSessionStartedEvent("s1", "l1", "", "ai-only", "")))
	require.NoError(t, bus.Publish(shared.NewSessionCompletedEvent("s1", "l1", "", "", 70, 4, false)))

	assert.Equal(t, []shared.EventType{shared.EventSessionStarted, shared.EventSessionCompleted}, seen)
}

func TestPublish_HandlerErrorDoesNotStopOthers(t *testing.T) {
	bus := syncBus()

	var second bool
	require.NoError(t, bus.Subscribe(shared.EventSessionStarted, func(shared.Event) error {
		return errors.New("boom")
	}))
	require.NoError(t, bus.Subscribe(shared.EventSessionStarted, func(shared.Event) error {
		second = true
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewSessionStartedEvent("s1", "l1", "", "ai-only", "")))
	assert.True(t, second)

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(2), snap.Executions)
	assert.Equal(t, int64(1), snap.Failures)
}

func TestPublish_AsyncCompletesBeforeClose(t *testing.T) {
	bus := NewInMemoryEventBus(Config{AsyncMode: true, WorkerPoolSize: 2})

	var mu sync.Mutex
	var handled int
	require.NoError(t, bus.Subscribe(shared.EventSessionStarted, func(shared.Event) error {
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		handled++
		mu.Unlock()
		return nil
	}))

	for i := 0; i < 6; i++ {
		require.NoError(t, bus.Publish(shared.NewSessionStartedEvent("s", "l", "", "ai-only", "")))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return handled == 6
	}, time.Second, 2*time.Millisecond)

	require.NoError(t, bus.Close())
}

func TestClosedBus_RejectsOperations(t *testing.T) {
	bus := syncBus()
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(shared.NewSessionStartedEvent("s", "l", "", "ai-only", "")), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventSessionStarted, func(shared.Event) error { return nil }), ErrEventBusClosed)
	// Double close is a no-op.
	assert.NoError(t, bus.Close())
}

func TestSubscribe_NilHandlerRejected(t *testing.T) {
	bus := syncBus()
	assert.Error(t, bus.Subscribe(shared.EventSessionStarted, nil))
	assert.Error(t, bus.SubscribeAll(nil))
}
