package shutdown

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestShutdown(timeout time.Duration) *GracefulShutdown {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewGracefulShutdown(timeout, logger)
}

func TestShutdownRunsHooksInOrder(t *testing.T) {
	gs := newTestShutdown(time.Second)

	var mu sync.Mutex
	var ran []string
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			ran = append(ran, name)
			mu.Unlock()
			return nil
		}
	}

	gs.Register("cache", OrderCloseCache, record("cache"))
	gs.Register("server", OrderStopServer, record("server"))
	gs.Register("feed", OrderFlushFeed, record("feed"))
	gs.Register("watcher", OrderStopWatcher, record("watcher"))

	assert.Equal(t, []string{"server", "watcher", "feed", "cache"}, gs.Hooks())
	assert.False(t, gs.IsShuttingDown())

	gs.Shutdown()
	gs.Shutdown()

	assert.Empty(t, gs.Wait())
	assert.Equal(t, []string{"server", "watcher", "feed", "cache"}, ran)
	assert.True(t, gs.IsShuttingDown())
	assert.Error(t, gs.Context().Err())
}

func TestShutdownCollectsErrors(t *testing.T) {
	gs := newTestShutdown(time.Second)
	boom := errors.New("boom")

	var secondRan bool
	gs.Register("first", 1, func(context.Context) error { return boom })
	gs.Register("second", 2, func(context.Context) error { secondRan = true; return nil })

	gs.Shutdown()
	failures := gs.Wait()

	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0], boom)
	assert.Contains(t, failures[0].Error(), "first")
	assert.True(t, secondRan)
}

func TestShutdownTimeoutSkipsRemaining(t *testing.T) {
	gs := newTestShutdown(20 * time.Millisecond)

	var lateRan bool
	gs.Register("slow", 1, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	gs.Register("late", 2, func(context.Context) error { lateRan = true; return nil })

	gs.Shutdown()
	failures := gs.Wait()

	assert.Len(t, failures, 2)
	assert.False(t, lateRan)
	for _, err := range failures {
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	}
}

func TestContextCancelledBeforeHooks(t *testing.T) {
	gs := newTestShutdown(time.Second)

	var sawCancel bool
	gs.Register("check", 1, func(context.Context) error {
		sawCancel = gs.Context().Err() != nil
		return nil
	})

	gs.Shutdown()
	<-gs.Done()
	assert.True(t, sawCancel)
}
