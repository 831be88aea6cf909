// Package probes provides interfaces and implementations for collecting metrics.
package probes

import (
	"context"

	"github.com/gravito-framework/quasar-resque/pkg/types"
)

// SystemProbe collects metrics about the collector process itself (CPU, Memory, etc.)
type SystemProbe interface {
	GetMetrics() (*types.CollectorInfo, error)
}

// QueueProbe reads the runtime statistics of one queue backend connection.
type QueueProbe interface {
	GetInfo(ctx context.Context) (*types.QueueInfo, error)
	Close() error
}

// QueueBackend opens a QueueProbe for a target. The probe is owned by the
// caller and must be closed when the poll finishes.
type QueueBackend interface {
	Connect(target types.AgentTarget) (QueueProbe, error)
}
