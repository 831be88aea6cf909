package probes

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoSystemProbe(t *testing.T) {
	probe, err := NewGoSystemProbe(50 * time.Millisecond)
	require.NoError(t, err)
	defer probe.Stop()

	info, err := probe.GetMetrics()
	require.NoError(t, err)

	assert.Equal(t, os.Getpid(), info.PID)
	assert.Greater(t, info.CPU.Cores, 0)
	assert.GreaterOrEqual(t, info.Uptime, 0.0)
	assert.GreaterOrEqual(t, info.CPU.System, 0.0)

	// Stop is idempotent
	probe.Stop()
}

func TestRound(t *testing.T) {
	tests := []struct {
		in       float64
		decimals int
		expected float64
	}{
		{12.346, 2, 12.35},
		{12.344, 2, 12.34},
		{0.5, 0, 1},
		{7, 3, 7},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.expected, round(tt.in, tt.decimals), 1e-9)
	}
}
