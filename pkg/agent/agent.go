// Package agent polls Resque backends and reports their statistics.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	internalredis "github.com/gravito-framework/quasar-resque/internal/redis"
	"github.com/gravito-framework/quasar-resque/pkg/config"
	"github.com/gravito-framework/quasar-resque/pkg/counter"
	"github.com/gravito-framework/quasar-resque/pkg/probes"
	"github.com/gravito-framework/quasar-resque/pkg/probes/resque"
	"github.com/gravito-framework/quasar-resque/pkg/report"
	"github.com/gravito-framework/quasar-resque/pkg/types"
)

// Metric names and units reported by a Resque agent
const (
	MetricWorkersWorking = "Workers/Working"
	MetricWorkersTotal   = "Workers/Total"
	MetricMinWorkersCrit = "MinWorkersCritical"
	MetricMinWorkersWarn = "MinWorkersWarning"
	MetricJobsPending    = "Jobs/Pending"
	MetricRateProcessed  = "Jobs/Rate/Processed"
	MetricRateFailed     = "Jobs/Rate/Failed"
	MetricQueues         = "Queues"
	MetricJobsFailed     = "Jobs/Failed"
	MetricRedisAlive     = "Redis/Alive"

	UnitWorkers       = "Workers"
	UnitJobs          = "Jobs"
	UnitJobsPerSecond = "Jobs/Second"
	UnitQueues        = "Queues"
	UnitBoolean       = "Boolean"
)

// Worker count thresholds for the MinWorkers alarms
const (
	minWorkersCriticalBelow = 10
	minWorkersWarningBelow  = 50
)

// Options a Resque agent expects to receive per target
const (
	OptionRedis     = "redis"
	OptionNamespace = "namespace"
	OptionHostname  = "hostname"
)

// Agent is a pollable unit driven by the Runner
type Agent interface {
	ID() string
	Label() string
	DeclaredOptions() []string
	Poll(ctx context.Context, r report.Reporter) error
}

// State of an agent between and during polls
type State string

const (
	StateIdle            State = "idle"
	StatePolling         State = "polling"
	StateMetricsReported State = "metrics_reported"
	StateLivenessDown    State = "liveness_down"
	StateFailed          State = "failed"
)

// Status is a snapshot of an agent's last poll
type Status struct {
	State    State     `json:"state"`
	LastPoll time.Time `json:"lastPoll,omitempty"`
	LastErr  string    `json:"lastError,omitempty"`
}

// ResqueAgent polls one Resque Redis instance. It owns a pair of rate
// counters that are never shared with another agent.
type ResqueAgent struct {
	target  types.AgentTarget
	backend probes.QueueBackend
	logger  *slog.Logger

	interval time.Duration
	clock    counter.Clock

	// mu serializes polls; the counters are not safe for concurrent use
	mu        sync.Mutex
	processed *counter.EpochCounter
	failed    *counter.EpochCounter

	statusMu sync.RWMutex
	status   Status
}

// Option is a functional option for configuring a ResqueAgent
type Option func(*ResqueAgent)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(a *ResqueAgent) {
		a.logger = logger
	}
}

// WithBackend sets the queue backend used to open connections
func WithBackend(backend probes.QueueBackend) Option {
	return func(a *ResqueAgent) {
		a.backend = backend
	}
}

// WithInterval sets the poll interval the rate counters fall back to
func WithInterval(d time.Duration) Option {
	return func(a *ResqueAgent) {
		a.interval = d
	}
}

// WithClock sets the clock used by the rate counters
func WithClock(c counter.Clock) Option {
	return func(a *ResqueAgent) {
		a.clock = c
	}
}

// NewResqueAgent creates an agent for target. A target without a usable Redis
// connection string is rejected with a *config.ConfigError.
func NewResqueAgent(target types.AgentTarget, opts ...Option) (*ResqueAgent, error) {
	a := &ResqueAgent{
		target:   target,
		logger:   slog.Default(),
		interval: 60 * time.Second,
		clock:    counter.RealClock{},
		status:   Status{State: StateIdle},
	}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.validate(); err != nil {
		return nil, err
	}

	if a.backend == nil {
		a.backend = resque.NewBackend(5 * time.Second)
	}
	a.processed = counter.New(a.interval, counter.WithClock(a.clock))
	a.failed = counter.New(a.interval, counter.WithClock(a.clock))

	return a, nil
}

func (a *ResqueAgent) validate() error {
	field := "agents." + a.target.ID + "." + OptionRedis
	if strings.TrimSpace(a.target.Redis) == "" {
		return &config.ConfigError{
			Field:   field,
			Message: "Redis connection URL is required",
		}
	}
	if _, err := internalredis.ParseConnString(a.target.Redis, internalredis.Timeouts{}); err != nil {
		return &config.ConfigError{Field: field, Message: err.Error()}
	}
	return nil
}

// ID returns the target identifier
func (a *ResqueAgent) ID() string {
	return a.target.ID
}

// Label returns the human readable name of the agent
func (a *ResqueAgent) Label() string {
	return a.target.Label()
}

// Target returns the polled target
func (a *ResqueAgent) Target() types.AgentTarget {
	return a.target
}

// DeclaredOptions lists the configuration options the agent reads
func (a *ResqueAgent) DeclaredOptions() []string {
	return []string{OptionRedis, OptionNamespace, OptionHostname}
}

// Status returns the outcome of the last poll
func (a *ResqueAgent) Status() Status {
	a.statusMu.RLock()
	defer a.statusMu.RUnlock()
	return a.status
}

func (a *ResqueAgent) setStatus(s State, err error) {
	a.statusMu.Lock()
	defer a.statusMu.Unlock()
	a.status.State = s
	if s != StatePolling {
		a.status.LastPoll = time.Now()
		a.status.LastErr = ""
		if err != nil {
			a.status.LastErr = err.Error()
		}
	}
}

// Poll fetches the queue statistics once and reports them to r.
//
// When the backend cannot be reached only Redis/Alive=0 is reported and nil
// is returned. A missing connection string returns a *config.ConfigError;
// any other failure is returned without reporting anything.
func (a *ResqueAgent) Poll(ctx context.Context, r report.Reporter) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.validate(); err != nil {
		a.setStatus(StateFailed, err)
		return err
	}

	a.setStatus(StatePolling, nil)

	info, err := a.fetch(ctx)
	if err != nil {
		if IsTransient(err) {
			a.logger.Warn("Redis unavailable", "agent", a.target.ID, "error", err)
			r.ReportMetric(MetricRedisAlive, UnitBoolean, 0)
			a.setStatus(StateLivenessDown, err)
			return nil
		}
		err = fmt.Errorf("poll %s: %w", a.target.ID, err)
		a.setStatus(StateFailed, err)
		return err
	}

	a.report(r, info)
	a.setStatus(StateMetricsReported, nil)
	return nil
}

// fetch opens a connection for this poll only and always releases it
func (a *ResqueAgent) fetch(ctx context.Context) (*types.QueueInfo, error) {
	probe, err := a.backend.Connect(a.target)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := probe.Close(); err != nil {
			a.logger.Debug("Failed to close Redis connection", "agent", a.target.ID, "error", err)
		}
	}()

	return probe.GetInfo(ctx)
}

func (a *ResqueAgent) report(r report.Reporter, info *types.QueueInfo) {
	r.ReportMetric(MetricWorkersWorking, UnitWorkers, float64(info.Working))
	r.ReportMetric(MetricWorkersTotal, UnitWorkers, float64(info.Workers))
	r.ReportMetric(MetricMinWorkersCrit, MetricMinWorkersCrit, flag(info.Workers < minWorkersCriticalBelow))
	r.ReportMetric(MetricMinWorkersWarn, MetricMinWorkersWarn, flag(info.Workers < minWorkersWarningBelow))
	r.ReportMetric(MetricJobsPending, UnitJobs, float64(info.Pending))
	r.ReportMetric(MetricRateProcessed, UnitJobsPerSecond, a.processed.Process(info.ProcessedTotal))
	r.ReportMetric(MetricRateFailed, UnitJobsPerSecond, a.failed.Process(info.FailedTotal))
	r.ReportMetric(MetricQueues, UnitQueues, float64(info.Queues))
	r.ReportMetric(MetricJobsFailed, UnitJobs, float64(info.FailedTotal))
	r.ReportMetric(MetricRedisAlive, UnitBoolean, 1)
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

var _ Agent = (*ResqueAgent)(nil)
