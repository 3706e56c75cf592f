package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fast = Options{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func TestDo_RetriesTransientStatus(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast, func(context.Context) error {
		calls++
		if calls < 3 {
			return &HTTPError{StatusCode: 503}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast, func(context.Context) error {
		calls++
		return &HTTPError{StatusCode: 404, Body: []byte("no such device")}
	})
	var he *HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, 404, he.StatusCode)
	assert.Equal(t, 1, calls)
}

func TestDo_ReturnsLastErrorAfterAllAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast, func(context.Context) error {
		calls++
		return Transient(errors.New("connection reset"))
	})
	require.Error(t, err)
	assert.Equal(t, "connection reset", err.Error())
	assert.Equal(t, 4, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Do(ctx, fast, func(context.Context) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.True(t, IsRetryable(&HTTPError{StatusCode: 429}))
	assert.False(t, IsRetryable(&HTTPError{StatusCode: 400}))
	assert.True(t, IsRetryable(Transient(context.DeadlineExceeded)))
	assert.ErrorIs(t, Transient(context.DeadlineExceeded), context.DeadlineExceeded)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 5*time.Second, ParseRetryAfter("5"))
	assert.Zero(t, ParseRetryAfter(""))
	assert.Zero(t, ParseRetryAfter("soon"))
	assert.Zero(t, ParseRetryAfter(time.Now().Add(-time.Hour).UTC().Format(time.RFC1123)))
	d := ParseRetryAfter(time.Now().Add(time.Hour).UTC().Format(time.RFC1123))
	assert.Greater(t, d, 50*time.Minute)
}

func TestFullJitterSleep(t *testing.T) {
	for attempt := 0; attempt < 10; attempt++ {
		d := FullJitterSleep(attempt, 10*time.Millisecond, 40*time.Millisecond)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 40*time.Millisecond)
	}
	assert.Zero(t, FullJitterSleep(3, 0, time.Second))
}
