package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesFromCode(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		retryable bool
	}{
		{ErrCodeConfigInvalid, CategoryConfig, false},
		{ErrCodeSourceUnavailable, CategorySource, true},
		{ErrCodeSourceTimeout, CategorySource, true},
		{ErrCodeProcessingError, CategoryProcessing, false},
		{ErrCodeQueryLimitExceeded, CategoryQuery, false},
		{ErrCodeStoreConflict, CategoryStore, true},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "msg", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestKBError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", SourceUnavailable("alpha", nil))
	assert.True(t, errors.Is(err, New(ErrCodeSourceUnavailable, "", nil)))
	assert.False(t, errors.Is(err, New(ErrCodeStoreConflict, "", nil)))
}

func TestKBError_Unwrap(t *testing.T) {
	cause := errors.New("disk gone")
	err := Wrap(ErrCodeStoreCorrupt, cause)
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsFatal(err))
}

func TestQueryLimitExceeded(t *testing.T) {
	err := QueryLimitExceeded(500, 200)
	assert.Equal(t, ErrCodeQueryLimitExceeded, GetCode(err))
	assert.Equal(t, "500", err.Details["requested"])
	assert.False(t, IsRetryable(err))
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2.0}

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return SourceUnavailable("alpha", nil)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 5, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1.0}

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return New(ErrCodeConfigInvalid, "bad config", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetry_BoundedAttempts(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1.0}

	attempts := 0
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		return SourceUnavailable("alpha", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts) // initial + 2 retries
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, DefaultRetryConfig(), func() error {
		return SourceUnavailable("alpha", nil)
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryWithResult(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1.0}

	attempts := 0
	got, err := RetryWithResult(context.Background(), cfg, func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", SourceUnavailable("alpha", nil)
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}
