package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gravito-framework/quasar-resque/pkg/config"
	"github.com/gravito-framework/quasar-resque/pkg/report"
	"golang.org/x/sync/errgroup"
)

// ErrAllAgentsDisabled is returned by Run when every registered agent has
// been disabled by a configuration error.
var ErrAllAgentsDisabled = errors.New("all agents disabled")

// Runner schedules every registered agent on its own ticker. Agents never
// share state, so they poll concurrently; polls of one agent never overlap.
type Runner struct {
	interval  time.Duration
	timeout   time.Duration
	publisher report.Publisher
	metrics   *report.PollMetrics
	logger    *slog.Logger

	mu      sync.RWMutex
	agents  []Agent
	ids     map[string]struct{}
	running bool
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithRunnerLogger sets a custom logger
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithPublisher sets where finished batches go
func WithPublisher(p report.Publisher) RunnerOption {
	return func(r *Runner) {
		r.publisher = p
	}
}

// WithPollMetrics records poll outcomes and durations
func WithPollMetrics(m *report.PollMetrics) RunnerOption {
	return func(r *Runner) {
		r.metrics = m
	}
}

// NewRunner creates a Runner polling every interval. Each poll is bounded by timeout.
func NewRunner(interval, timeout time.Duration, opts ...RunnerOption) *Runner {
	r := &Runner{
		interval: interval,
		timeout:  timeout,
		logger:   slog.Default(),
		ids:      make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.publisher == nil {
		r.publisher = report.NewLogPublisher(r.logger)
	}
	return r
}

// Register adds an agent. Ids must be unique and registration closes once Run starts.
func (r *Runner) Register(a Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("runner already started")
	}
	if _, exists := r.ids[a.ID()]; exists {
		return fmt.Errorf("agent %q already registered", a.ID())
	}

	r.ids[a.ID()] = struct{}{}
	r.agents = append(r.agents, a)
	if r.metrics != nil {
		r.metrics.SetAgents(len(r.agents))
	}
	return nil
}

// Agents returns the registered agents in registration order
func (r *Runner) Agents() []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Agent, len(r.agents))
	copy(out, r.agents)
	return out
}

// Run polls every agent immediately and then on each tick until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("runner already started")
	}
	r.running = true
	agents := make([]Agent, len(r.agents))
	copy(agents, r.agents)
	r.mu.Unlock()

	r.logger.Info("Runner started", "agents", len(agents), "interval", r.interval)

	var disabled atomic.Int32
	g, ctx := errgroup.WithContext(ctx)
	for _, a := range agents {
		g.Go(func() error {
			if !r.loop(ctx, a) {
				disabled.Add(1)
			}
			return nil
		})
	}
	err := g.Wait()

	r.logger.Info("Runner stopped")
	if err == nil && len(agents) > 0 && int(disabled.Load()) == len(agents) {
		return ErrAllAgentsDisabled
	}
	return err
}

// loop polls a until ctx is done. It returns false if a was disabled.
func (r *Runner) loop(ctx context.Context, a Agent) bool {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if !r.pollOnce(ctx, a) {
			r.logger.Error("Agent disabled", "agent", a.ID())
			return false
		}

		select {
		case <-ctx.Done():
			return true
		case <-ticker.C:
		}
	}
}

// pollOnce runs one cycle and publishes its batch. It returns false when the
// agent is misconfigured and must not be polled again.
func (r *Runner) pollOnce(ctx context.Context, a Agent) bool {
	pollCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	batch := report.NewBatch(a.ID(), a.Label())
	start := time.Now()
	err := a.Poll(pollCtx, batch)
	outcome := Outcome(batch, err)

	if r.metrics != nil {
		r.metrics.ObservePoll(a.ID(), outcome, time.Since(start))
	}

	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		r.logger.Error("Poll failed", "agent", a.ID(), "error", err)
		if f, ok := r.publisher.(report.Forgetter); ok {
			f.Forget(a.ID())
		}

		var cfgErr *config.ConfigError
		return !errors.As(err, &cfgErr)
	}

	if err := r.publisher.Publish(ctx, batch); err != nil {
		r.logger.Warn("Publish failed", "agent", a.ID(), "error", err)
	}
	return true
}

// Outcome classifies a finished poll for metrics
func Outcome(b *report.Batch, err error) string {
	if err != nil {
		return report.OutcomeError
	}
	for _, m := range b.Metrics {
		if m.Name == MetricRedisAlive && m.Value == 0 {
			return report.OutcomeDown
		}
	}
	return report.OutcomeReported
}
