package ingestion

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/vectorload/core"
)

var fastBackoff = Backoff{Base: time.Millisecond, Cap: 5 * time.Millisecond}

func TestRetryWithBackoff_Success(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), fastBackoff, 3, nil, func(ctx context.Context) error {
		attempts++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts, "should succeed on first try")
}

func TestRetryWithBackoff_EventualSuccess(t *testing.T) {
	attempts := 0
	var retried []int
	onRetry := func(attempt int, delay time.Duration, err error) {
		retried = append(retried, attempt)
	}

	err := RetryWithBackoff(context.Background(), fastBackoff, 5, onRetry, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return transient("temporary error")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts, "should succeed on third attempt")
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRetryWithBackoff_AllAttemptsFail(t *testing.T) {
	attempts := 0
	expectedErr := transient("persistent error")

	err := RetryWithBackoff(context.Background(), fastBackoff, 3, nil, func(ctx context.Context) error {
		attempts++
		return expectedErr
	})
	require.Error(t, err)
	assert.Equal(t, expectedErr, err, "should return the original error")
	assert.Equal(t, 3, attempts, "should attempt exactly maxAttempts times")
}

func TestRetryWithBackoff_PermanentNotRetried(t *testing.T) {
	for _, failure := range []error{
		permanent("constraint violation"),
		errors.New("unclassified"),
		fmt.Errorf("%w: bad request", core.ErrEmbeddingPermanent),
	} {
		attempts := 0
		err := RetryWithBackoff(context.Background(), fastBackoff, 5, nil, func(ctx context.Context) error {
			attempts++
			return failure
		})
		assert.Equal(t, failure, err)
		assert.Equal(t, 1, attempts, "%v", failure)
	}
}

func TestRetryWithBackoff_ContextCanceledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	slow := Backoff{Base: time.Hour}

	err := RetryWithBackoff(ctx, slow, 10, func(int, time.Duration, error) { cancel() }, func(ctx context.Context) error {
		attempts++
		return transient("reset")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled, "should return context.Canceled")
	assert.Contains(t, err.Error(), "reset", "keeps the last failure in the message")
	assert.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_InvalidMaxAttempts(t *testing.T) {
	err := RetryWithBackoff(context.Background(), fastBackoff, 0, nil, func(ctx context.Context) error {
		return nil
	})
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
}

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Base: time.Second, Cap: 30 * time.Second}
	assert.Equal(t, time.Second, b.Delay(1))
	assert.Equal(t, 2*time.Second, b.Delay(2))
	assert.Equal(t, 4*time.Second, b.Delay(3))
	assert.Equal(t, 16*time.Second, b.Delay(5))
	assert.Equal(t, 30*time.Second, b.Delay(6), "capped")
	assert.Equal(t, 30*time.Second, b.Delay(60), "no overflow on large attempts")

	jittered := DefaultBackoff()
	for range 50 {
		d := jittered.Delay(2)
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.Less(t, d, 2*time.Second+500*time.Millisecond)
	}
}

func TestRetryable(t *testing.T) {
	live := context.Background()
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	assert.True(t, Retryable(live, transient("x")))
	assert.True(t, Retryable(live, fmt.Errorf("%w: 503", core.ErrEmbeddingTransient)))
	assert.True(t, Retryable(live, fmt.Errorf("call: %w", context.DeadlineExceeded)), "per-call timeout")
	assert.False(t, Retryable(canceled, transient("x")), "caller gave up")
	assert.False(t, Retryable(live, permanent("x")))
	assert.False(t, Retryable(live, errors.New("unknown")))
	assert.False(t, Retryable(live, nil))
}
