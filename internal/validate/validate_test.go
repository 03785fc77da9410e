// SPDX-License-Identifier: MIT

package validate

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_Accumulates(t *testing.T) {
	v := New()
	v.ListenAddr("server.listen", ":8088")
	v.Range("memory.maxTasks", 10, 0, 100)
	v.Ratio("telemetry.samplingRate", 0.5)
	v.OneOf("store.backend", "sqlite", []string{"memory", "sqlite", "badger"})
	v.PositiveDuration("grace.duration", time.Second)
	require.True(t, v.IsValid())
	require.NoError(t, v.Err())

	v.ListenAddr("server.listen", "8088")
	v.ListenAddr("server.listen", ":70000")
	v.Positive("tasks.batchConcurrency", 0)
	v.NonNegative("memory.maxTasks", -1)
	v.NotEmpty("presence.placeholderName", "  ")
	v.DurationAtMost("grace.duration", time.Hour, time.Minute)

	err := v.Err()
	require.Error(t, err)
	var ve ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Errors(), 6)
	assert.Contains(t, err.Error(), "validation failed for server.listen")
	assert.Contains(t, err.Error(), "; ")
}

func TestParseLogLevel(t *testing.T) {
	l, err := ParseLogLevel(" DEBUG ")
	require.NoError(t, err)
	assert.Equal(t, LogLevelDebug, l)

	_, err = ParseLogLevel("loud")
	assert.Equal(t, ErrInvalidLogLevel, err)
}
