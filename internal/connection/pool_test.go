package connection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bbkexplorer/internal/config"
	explorerrors "bbkexplorer/internal/errors"
)

func newTestPool(t *testing.T) (*Pool, *time.Time) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	pool, err := NewPool([]*config.EndpointConfig{
		{Name: "backup", URL: "http://backup.example.org/api/", Priority: 2},
		{Name: "main", URL: "http://main.example.org/api", Priority: 1, RateLimit: 1000},
	}, logger)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0)
	pool.SetClock(func() time.Time { return now })
	return pool, &now
}

func TestNewPoolOrdersByPriority(t *testing.T) {
	pool, _ := newTestPool(t)
	assert.Equal(t, "main", pool.Primary().Name)

	_, err := NewPool(nil, logrus.New())
	assert.Error(t, err)
}

func TestEndpointURLFor(t *testing.T) {
	ep := &Endpoint{URL: "http://backup.example.org/api/"}
	assert.Equal(t, "http://backup.example.org/api/block/1", ep.URLFor("/block/1"))
}

func TestDoFailsOverOnNetworkError(t *testing.T) {
	pool, _ := newTestPool(t)

	var tried []string
	err := pool.Do(context.Background(), func(ep *Endpoint) error {
		tried = append(tried, ep.Name)
		if ep.Name == "main" {
			return explorerrors.WrapError(errors.New("connection refused"), explorerrors.ErrorTypeNetwork,
				explorerrors.SeverityMedium, "NETWORK_ERROR", "请求失败")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"main", "backup"}, tried)
}

func TestDoStopsOnNotFound(t *testing.T) {
	pool, _ := newTestPool(t)

	var tried []string
	err := pool.Do(context.Background(), func(ep *Endpoint) error {
		tried = append(tried, ep.Name)
		return explorerrors.NotFound("block", "123")
	})

	assert.True(t, explorerrors.IsNotFound(err))
	assert.Equal(t, []string{"main"}, tried)
}

func TestRateLimitedEndpointIsSkipped(t *testing.T) {
	pool, now := newTestPool(t)

	rateLimited := explorerrors.NewExplorerError(explorerrors.ErrorTypeRateLimit, explorerrors.SeverityMedium,
		"RATE_LIMIT_EXCEEDED", "too many requests")
	_ = pool.Do(context.Background(), func(ep *Endpoint) error {
		if ep.Name == "main" {
			return rateLimited
		}
		return nil
	})

	var tried []string
	_ = pool.Do(context.Background(), func(ep *Endpoint) error {
		tried = append(tried, ep.Name)
		return nil
	})
	assert.Equal(t, []string{"backup"}, tried)

	// 5分钟后恢复
	*now = now.Add(RateLimitCooldown + time.Second)
	tried = nil
	_ = pool.Do(context.Background(), func(ep *Endpoint) error {
		tried = append(tried, ep.Name)
		return nil
	})
	assert.Equal(t, []string{"main"}, tried)
}

func TestRepeatedFailuresDisableEndpoint(t *testing.T) {
	pool, _ := newTestPool(t)
	failing := errors.New("boom")

	for i := 0; i < DefaultFailureThreshold; i++ {
		_ = pool.Do(context.Background(), func(ep *Endpoint) error {
			if ep.Name == "main" {
				return failing
			}
			return nil
		})
	}

	stats := pool.GetStats()
	require.Len(t, stats, 2)
	assert.False(t, stats[0].Available)
	assert.Equal(t, DefaultFailureThreshold, stats[0].Failures)
	assert.Equal(t, "boom", stats[0].LastError)
	assert.True(t, stats[1].Available)

	// 健康检查通过后重新启用
	pool.checkDisabled(context.Background(), func(ctx context.Context, ep *Endpoint) error { return nil })
	assert.True(t, pool.GetStats()[0].Available)
}

func TestAllUnavailableFallsBackToAll(t *testing.T) {
	pool, _ := newTestPool(t)
	failing := errors.New("down")

	for i := 0; i < DefaultFailureThreshold; i++ {
		err := pool.Do(context.Background(), func(ep *Endpoint) error { return failing })
		assert.ErrorIs(t, err, failing)
	}

	var tried []string
	_ = pool.Do(context.Background(), func(ep *Endpoint) error {
		tried = append(tried, ep.Name)
		return nil
	})
	assert.Equal(t, []string{"main"}, tried)
}

func TestDoRespectsCanceledContext(t *testing.T) {
	pool, _ := newTestPool(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pool.Do(ctx, func(ep *Endpoint) error {
		t.Fatal("不应执行")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
