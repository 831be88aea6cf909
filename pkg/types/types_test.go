package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTargetID(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		port     uint16
		expected string
	}{
		{"master port", "redis1.example.com", 6379, "redis1.example.com_6379"},
		{"replica port", "redis2.example.com", 6381, "redis2.example.com_6381"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TargetID(tt.host, tt.port))
		})
	}
}

func TestAgentTargetLabel(t *testing.T) {
	target := AgentTarget{ID: "db1_6379", Host: "db1", Port: 6379}
	assert.Equal(t, "db1_6379", target.Label())
	assert.Equal(t, "db1:6379", target.Addr())

	target.Hostname = "jobs-primary"
	assert.Equal(t, "jobs-primary", target.Label())
}

func TestReportPayloadValue(t *testing.T) {
	payload := ReportPayload{
		Metrics: []Metric{
			{Name: "Redis/Alive", Unit: "Boolean", Value: 1},
			{Name: "Queues", Unit: "Queues", Value: 4},
		},
		Timestamp: time.Now().Add(-2 * time.Second).UnixMilli(),
	}

	v, ok := payload.Value("Queues")
	assert.True(t, ok)
	assert.Equal(t, 4.0, v)

	_, ok = payload.Value("Jobs/Pending")
	assert.False(t, ok)

	age := payload.Age(time.Now())
	assert.GreaterOrEqual(t, age, 2*time.Second)
	assert.Less(t, age, 10*time.Second)
}
