package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNetworkError(t *testing.T) {
	baseErr := errors.New("connection refused")

	t.Run("retriable error", func(t *testing.T) {
		err := NewNetworkError("tracked", "dial", baseErr)

		assert.True(t, err.IsRetriable())
		assert.Equal(t, "tracked dial: connection refused", err.Error())
		assert.ErrorIs(t, err, baseErr)
	})

	t.Run("without venue", func(t *testing.T) {
		err := NewNetworkError("", "read", baseErr)
		assert.Equal(t, "read: connection refused", err.Error())
	})

	t.Run("fatal error", func(t *testing.T) {
		err := NewFatalNetworkError("tracked", "auth", baseErr)
		assert.False(t, err.IsRetriable())
	})

	t.Run("IsRetriable helper", func(t *testing.T) {
		assert.True(t, IsRetriable(NewNetworkError("x", "dial", baseErr)))
		assert.False(t, IsRetriable(NewFatalNetworkError("x", "auth", baseErr)))
		assert.False(t, IsRetriable(errors.New("plain error")))
		assert.True(t, IsRetriable(fmt.Errorf("wrapped: %w", NewNetworkError("x", "dial", baseErr))))
	})
}

func TestConfigError(t *testing.T) {
	err := &ConfigError{Field: "api_key", Err: errors.New("missing value")}

	assert.False(t, err.IsRetriable())
	assert.Equal(t, "config error [api_key]: missing value", err.Error())
}

func TestRiskHaltError(t *testing.T) {
	err := &RiskHaltError{DailyPnL: -500, Limit: -500}

	assert.ErrorIs(t, err, ErrRiskHalt)
	assert.ErrorIs(t, fmt.Errorf("process: %w", err), ErrRiskHalt)
	assert.Contains(t, err.Error(), "risk halt")
	assert.False(t, errors.Is(err, ErrInvalidPrice))
}

func TestExecutionFault(t *testing.T) {
	cause := errors.New("deadline exceeded")
	err := &ExecutionFault{Outcome: OutcomeTimedOut, Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.False(t, IsRetriable(err))
	assert.Equal(t, "execution TIMED_OUT: deadline exceeded", err.Error())

	withStatus := &ExecutionFault{Outcome: OutcomeFailed, Status: 502, Err: cause}
	assert.Equal(t, "execution FAILED (status 502): deadline exceeded", withStatus.Error())
}
