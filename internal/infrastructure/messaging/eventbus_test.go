package messaging

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillforge/skillforge-lms/internal/domain/shared"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSyncBus() *InMemoryEventBus {
	cfg := DefaultConfig()
	cfg.Logger = quietLogger()
	return NewInMemoryEventBus(cfg)
}

func TestEventBus_SyncDelivery(t *testing.T) {
	bus := newSyncBus()

	var typed, all int
	require.NoError(t, bus.Subscribe(shared.EventSubmissionApproved, func(shared.Event) error {
		typed++
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		all++
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewSubmissionApprovedEvent("student-1", "course-1", "lesson-1", "sub-1", "mentor-1")))
	require.NoError(t, bus.Publish(shared.NewStepCompletionChangedEvent("student-1", "course-1", "lesson-1", "s1", true)))

	// The typed handler only sees its type; the catch-all sees both.
	assert.Equal(t, 1, typed)
	assert.Equal(t, 2, all)
}

func TestEventBus_SyncHandlerErrorNotPropagated(t *testing.T) {
	bus := newSyncBus()

	require.NoError(t, bus.Subscribe(shared.EventStepCompletionChanged, func(shared.Event) error {
		return errors.New("handler blew up")
	}))

	// The write already committed by the time handlers run; Publish must not fail.
	err := bus.Publish(shared.NewStepCompletionChangedEvent("student-1", "course-1", "lesson-1", "s1", true))
	assert.NoError(t, err)
}

func TestEventBus_NoHandlers(t *testing.T) {
	bus := newSyncBus()
	assert.NoError(t, bus.Publish(shared.NewStepCompletionChangedEvent("student-1", "course-1", "lesson-1", "s1", true)))
}

func TestEventBus_NilRejected(t *testing.T) {
	bus := newSyncBus()
	assert.Error(t, bus.Subscribe(shared.EventStepCompletionChanged, nil))
	assert.Error(t, bus.SubscribeAll(nil))
	assert.Error(t, bus.Publish(nil))
}

func TestEventBus_AsyncDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(Config{
		AsyncMode:      true,
		WorkerPoolSize: 2,
		Logger:         quietLogger(),
	})

	var mu sync.Mutex
	seen := 0
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		mu.Lock()
		seen++
		mu.Unlock()
		return nil
	}))

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(shared.NewStepCompletionChangedEvent("student-1", "course-1", "lesson-1", "s1", true)))
	}

	// Close waits for in-flight async handlers.
	require.NoError(t, bus.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, seen)
}

func TestEventBus_ClosedBus(t *testing.T) {
	bus := newSyncBus()
	require.NoError(t, bus.Close())

	err := bus.Publish(shared.NewStepCompletionChangedEvent("student-1", "course-1", "lesson-1", "s1", true))
	assert.ErrorIs(t, err, ErrEventBusClosed)

	err = bus.Subscribe(shared.EventStepCompletionChanged, func(shared.Event) error { return nil })
	assert.ErrorIs(t, err, ErrEventBusClosed)

	// Closing twice is a no-op.
	assert.NoError(t, bus.Close())
}
