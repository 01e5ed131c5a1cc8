package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	explorerrors "bbkexplorer/internal/errors"
)

func newTestRetrier(attempts int) *Retrier {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	r := NewRetrier(&RetryConfig{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		BackoffFactor:   2,
	}, logger)
	r.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return r
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"连接拒绝", errors.New("dial tcp: connection refused"), true},
		{"超时", errors.New("i/o timeout"), true},
		{"普通错误", errors.New("invalid argument"), false},
		{"取消", context.Canceled, false},
		{"显式不可重试", NewRetryableError(errors.New("timeout"), false), false},
		{"显式可重试", NewRetryableError(errors.New("x"), true), true},
		{"ExplorerError网络", fmt.Errorf("wrap: %w", explorerrors.WrapError(errors.New("x"), explorerrors.ErrorTypeNetwork, explorerrors.SeverityMedium, "NET", "网络")), true},
		{"ExplorerError未找到", explorerrors.NotFound("block", "1"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryableError(tt.err))
		})
	}
}

func TestRetrier_Execute_SucceedsAfterTransientFailures(t *testing.T) {
	r := newTestRetrier(3)
	calls := 0

	err := r.Execute(context.Background(), "test", func() error {
		calls++
		if calls < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetrier_Execute_StopsOnPermanentError(t *testing.T) {
	r := newTestRetrier(5)
	calls := 0

	err := r.Execute(context.Background(), "test", func() error {
		calls++
		return explorerrors.NotFound("tx", "abc")
	})

	assert.True(t, explorerrors.IsNotFound(err))
	assert.Equal(t, 1, calls)
}

func TestRetrier_Execute_ExhaustsAttempts(t *testing.T) {
	r := newTestRetrier(2)
	calls := 0

	err := r.Execute(context.Background(), "test", func() error {
		calls++
		return errors.New("service unavailable")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "重试 2 次后失败")
	assert.Equal(t, 2, calls)
}

func TestDo_ReturnsValue(t *testing.T) {
	r := newTestRetrier(3)

	v, err := Do(context.Background(), r, "value", func() (int, error) {
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestDo_ContextCancelled(t *testing.T) {
	r := newTestRetrier(3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Do(ctx, r, "cancelled", func() (int, error) {
		return 0, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalculateDelay_CapsAtMaxInterval(t *testing.T) {
	r := newTestRetrier(10)

	assert.Equal(t, time.Millisecond, r.calculateDelay(1))
	assert.Equal(t, 2*time.Millisecond, r.calculateDelay(2))
	assert.Equal(t, 5*time.Millisecond, r.calculateDelay(8))
}
