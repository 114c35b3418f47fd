package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), "op", fastPolicy(), nil, func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), "op", fastPolicy(), nil, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustionWrapsLastError(t *testing.T) {
	sentinel := errors.New("still broken")
	calls := 0
	_, err := Do(context.Background(), "flaky op", fastPolicy(), nil, func(ctx context.Context) (int, error) {
		calls++
		return 0, sentinel
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, errors.Is(err, sentinel))
	assert.Contains(t, err.Error(), "flaky op failed after 3 attempts")
}

func TestDo_FatalPropagatesImmediately(t *testing.T) {
	fatal := errors.New("bad credentials")
	classify := func(err error) Class {
		if errors.Is(err, fatal) {
			return ClassFatal
		}
		return ClassRetryable
	}

	calls := 0
	_, err := Do(context.Background(), "login", fastPolicy(), classify, func(ctx context.Context) (int, error) {
		calls++
		return 0, fatal
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "fatal errors must not consume retry budget")
	assert.True(t, errors.Is(err, fatal))
	assert.NotContains(t, err.Error(), "attempts", "fatal errors propagate unwrapped")
}

func TestDo_ContextCancelledBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err := Do(ctx, "op", Policy{MaxAttempts: 5, BaseDelay: time.Second}, nil, func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("transient")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "no re-attempt after cancellation")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestDo_OnRetryObservesAttempts(t *testing.T) {
	type observed struct {
		name    string
		attempt int
	}
	var seen []observed

	p := fastPolicy()
	p.OnRetry = func(name string, attempt int, delay time.Duration, err error) {
		seen = append(seen, observed{name, attempt})
	}

	_, err := Do(context.Background(), "op", p, nil, func(ctx context.Context) (int, error) {
		return 0, errors.New("transient")
	})
	require.Error(t, err)
	require.Len(t, seen, 2, "two sleeps for three attempts")
	assert.Equal(t, observed{"op", 1}, seen[0])
	assert.Equal(t, observed{"op", 2}, seen[1])
}

func TestDelay_LinearForRetryable(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: time.Minute}

	assert.Equal(t, time.Second, p.Delay(ClassRetryable, 0))
	assert.Equal(t, 2*time.Second, p.Delay(ClassRetryable, 1))
	assert.Equal(t, 3*time.Second, p.Delay(ClassRetryable, 2))
}

func TestDelay_ExponentialForTimeout(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: time.Minute}

	assert.Equal(t, time.Second, p.Delay(ClassTimeout, 0))
	assert.Equal(t, 2*time.Second, p.Delay(ClassTimeout, 1))
	assert.Equal(t, 4*time.Second, p.Delay(ClassTimeout, 2))
}

func TestDelay_CappedAtMax(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 3 * time.Second}

	assert.Equal(t, 3*time.Second, p.Delay(ClassTimeout, 10))
	assert.Equal(t, 3*time.Second, p.Delay(ClassRetryable, 10))
}

func TestDefaultClassifier(t *testing.T) {
	assert.Equal(t, ClassFatal, DefaultClassifier(context.Canceled))
	assert.Equal(t, ClassFatal, DefaultClassifier(context.DeadlineExceeded))
	assert.Equal(t, ClassRetryable, DefaultClassifier(errors.New("anything else")))
}
