// Package report collects the metrics of a poll cycle and publishes them.
package report

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gravito-framework/quasar-resque/pkg/types"
)

// Reporter receives metrics during a poll cycle
type Reporter interface {
	ReportMetric(name, unit string, value float64)
}

// Batch holds the metrics reported by one poll cycle of one agent
type Batch struct {
	ID        string
	Agent     string
	Label     string
	Metrics   []types.Metric
	Timestamp time.Time
}

// NewBatch starts an empty batch for agent
func NewBatch(agent, label string) *Batch {
	return &Batch{
		ID:        uuid.NewString(),
		Agent:     agent,
		Label:     label,
		Timestamp: time.Now(),
	}
}

// ReportMetric appends a metric to the batch
func (b *Batch) ReportMetric(name, unit string, value float64) {
	b.Metrics = append(b.Metrics, types.Metric{Name: name, Unit: unit, Value: value})
}

// Len returns the number of metrics reported so far
func (b *Batch) Len() int {
	return len(b.Metrics)
}

// Payload converts the batch into its wire form
func (b *Batch) Payload(collector *types.CollectorInfo) types.ReportPayload {
	metrics := make([]types.Metric, len(b.Metrics))
	copy(metrics, b.Metrics)

	return types.ReportPayload{
		ID:        b.ID,
		GUID:      types.AgentGUID,
		Version:   types.AgentVersion,
		Agent:     b.Agent,
		Label:     b.Label,
		Metrics:   metrics,
		Collector: collector,
		Timestamp: b.Timestamp.UnixMilli(),
	}
}

// Publisher ships a finished batch somewhere
type Publisher interface {
	Publish(ctx context.Context, b *Batch) error
}

// Forgetter is implemented by publishers that keep the last batch of an
// agent around and can drop it once the agent stops producing batches.
type Forgetter interface {
	Forget(agent string)
}

// Publishers fans a batch out to every publisher and joins their errors
type Publishers []Publisher

// Publish implements Publisher
func (ps Publishers) Publish(ctx context.Context, b *Batch) error {
	var errs []error
	for _, p := range ps {
		if err := p.Publish(ctx, b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Forget implements Forgetter for every member that supports it
func (ps Publishers) Forget(agent string) {
	for _, p := range ps {
		if f, ok := p.(Forgetter); ok {
			f.Forget(agent)
		}
	}
}

// LogPublisher writes each metric at debug level
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a LogPublisher
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

// Publish implements Publisher
func (p *LogPublisher) Publish(ctx context.Context, b *Batch) error {
	for _, m := range b.Metrics {
		p.logger.DebugContext(ctx, "Metric",
			"agent", b.Agent,
			"name", m.Name,
			"unit", m.Unit,
			"value", m.Value,
		)
	}
	return nil
}

var (
	_ Reporter  = (*Batch)(nil)
	_ Publisher = Publishers(nil)
	_ Forgetter = Publishers(nil)
	_ Publisher = (*LogPublisher)(nil)
)
